package main

import (
	"log"

	"github.com/mintpass/mintpass-go/internal/config"
	"github.com/mintpass/mintpass-go/internal/database"
	"github.com/mintpass/mintpass-go/internal/services/identity"
	"github.com/mintpass/mintpass-go/internal/services/ticketing"

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

	// Create services
	identityService := identity.NewService(db, cfg)
	ticketingService := ticketing.NewService(db, cfg, identityService)

	// Setup Gin router
	r := gin.Default()

	// Setup routes
	ticketingService.SetupRoutes(r)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "gate-service",
		})
	})

	// Start server
	log.Printf("Gate Service starting on port %s", cfg.GateServicePort)
	if err := r.Run(":" + cfg.GateServicePort); err != nil {
		log.Fatal("Failed to start Gate Service:", err)
	}
}
