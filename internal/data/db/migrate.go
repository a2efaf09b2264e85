package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/primestride/atlas-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("automigrate: nil db")
	}
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
