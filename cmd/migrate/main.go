package main

import (
	"log"

	"github.com/mintpass/mintpass-go/internal/config"
	"github.com/mintpass/mintpass-go/internal/database"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Connect to database (runs migrations)
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Seed the admin wallet
	if err := database.SeedAdmin(db, cfg); err != nil {
		log.Fatal("Failed to seed admin:", err)
	}

	log.Println("Database migration and seeding completed successfully")
}
