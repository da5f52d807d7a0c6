package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"

	"github.com/timekeeper-hq/authcore/internal/domain"
)

// Open connects to Postgres. When replicaDSN is set, reads route to the
// replica; every write stays on the primary.
func Open(dsn, replicaDSN string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if replicaDSN != "" {
		err = gdb.Use(dbresolver.Register(dbresolver.Config{
			Replicas: []gorm.Dialector{postgres.Open(replicaDSN)},
		}))
		if err != nil {
			return nil, fmt.Errorf("register read replica: %w", err)
		}
	}
	return gdb, nil
}

// Migrate creates or updates the schema for every persisted model.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&domain.User{},
		&domain.RefreshToken{},
		&domain.ActiveSession{},
		&domain.PasswordReset{},
	)
}
