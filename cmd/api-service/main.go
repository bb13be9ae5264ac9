package main

import (
	"context"
	"log"

	"github.com/mintpass/mintpass-go/internal/chain"
	"github.com/mintpass/mintpass-go/internal/config"
	"github.com/mintpass/mintpass-go/internal/database"
	"github.com/mintpass/mintpass-go/internal/pinning"
	"github.com/mintpass/mintpass-go/internal/redis"
	"github.com/mintpass/mintpass-go/internal/services/event"
	"github.com/mintpass/mintpass-go/internal/services/identity"
	"github.com/mintpass/mintpass-go/internal/services/marketplace"
	"github.com/mintpass/mintpass-go/internal/services/verification"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(cfg)
	if err := redisClient.Ping(context.Background()); err != nil {
		log.Printf("Redis unavailable, event caching disabled: %v", err)
		redisClient = nil
	}

	// External collaborators
	pinner := pinning.NewClient(cfg)
	ledger := chain.NewMockLedger(cfg)

	// Create services
	identityService := identity.NewService(db, cfg)
	verificationService := verification.NewService(db, cfg, identityService)
	eventService := event.NewService(db, cfg, identityService, redisClient, pinner)
	marketplaceService := marketplace.NewService(db, cfg, identityService, ledger)

	// Setup Gin router
	r := gin.Default()

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Setup routes
	identityService.SetupRoutes(r)
	verificationService.SetupRoutes(r)
	eventService.SetupRoutes(r)
	marketplaceService.SetupRoutes(r)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "api-service",
		})
	})

	// Start server
	log.Printf("API Service starting on port %s", cfg.APIServicePort)
	if err := r.Run(":" + cfg.APIServicePort); err != nil {
		log.Fatal("Failed to start API Service:", err)
	}
}
