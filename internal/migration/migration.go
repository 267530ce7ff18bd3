// Package migration applies the chase schema and seeds the settings row.
package migration

import (
	"context"
	"errors"
	"time"

	"github.com/chasedesk/chasedesk/internal/config"
	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Run migrates the schema under a Postgres advisory lock so concurrent
// deploys cannot race the DDL. On sqlite the lock is skipped; there is no
// concurrent migrator in that configuration.
func Run(db *gorm.DB, cfg config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if db.Dialector.Name() == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		unlock, err := acquireAdvisoryLock(ctx, sqlDB)
		if err != nil {
			return err
		}
		defer func() {
			_ = unlock(context.Background())
		}()
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&invoicedomain.Invoice{},
		&invoicedomain.ChaseRecord{},
		&invoicedomain.ChaseSettings{},
	); err != nil {
		return err
	}

	if err := seedSettings(ctx, db, cfg); err != nil {
		return err
	}

	log.Info("migrations applied")
	return nil
}

// seedSettings creates the single settings row from environment defaults.
// An existing row is operator state and is never overwritten.
func seedSettings(ctx context.Context, db *gorm.DB, cfg config.Config) error {
	var existing invoicedomain.ChaseSettings
	err := db.WithContext(ctx).First(&existing, "id = ?", 1).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	maxCount := cfg.Chase.MaxChaseCount
	if maxCount <= 0 {
		maxCount = 5
	}
	return db.WithContext(ctx).Create(&invoicedomain.ChaseSettings{
		ID:            1,
		Enabled:       cfg.Chase.Enabled,
		MaxChaseCount: maxCount,
		UpdatedAt:     time.Now().UTC(),
	}).Error
}
