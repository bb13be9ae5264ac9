package database

import (
	"fmt"
	"log"

	"github.com/mintpass/mintpass-go/internal/config"
	"github.com/mintpass/mintpass-go/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations
	if err := models.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("Database connected and migrated successfully")
	return db, nil
}

// SeedAdmin provisions the configured admin wallet so verification requests
// can be resolved on a fresh deployment.
func SeedAdmin(db *gorm.DB, cfg *config.Config) error {
	if cfg.AdminAddress == "" {
		return nil
	}

	var count int64
	db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count)
	if count > 0 {
		log.Println("Admin already seeded, skipping...")
		return nil
	}

	admin := models.User{
		Address:            cfg.AdminAddress,
		Email:              cfg.AdminAddress + "@wallet.local",
		Role:               models.RoleAdmin,
		VerificationStatus: models.VerificationVerified,
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	log.Printf("Seeded admin user %s", cfg.AdminAddress)
	return nil
}
