package db

import (
	"context"
	"embed"
	"io/fs"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotifyChannel is the channel the engage trigger in 0002_engage_event.sql
// publishes on.
const NotifyChannel = "engages"

//go:embed migrations/*.sql
var migrations embed.FS

type schemaMigration struct {
	Version   string    `gorm:"column:version;primaryKey"`
	AppliedAt time.Time `gorm:"column:applied_at"`
}

func (schemaMigration) TableName() string {
	return "schema_migrations"
}

// Migrate applies every embedded migration that has not been recorded in
// schema_migrations yet, each inside its own transaction. The scripts target
// postgres.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&schemaMigration{}); err != nil {
		return err
	}

	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	var applied []schemaMigration
	if err := db.WithContext(ctx).Find(&applied).Error; err != nil {
		return err
	}
	done := make(map[string]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	for _, name := range names {
		if done[name] {
			continue
		}

		script, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}

		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(string(script)).Error; err != nil {
				return err
			}
			return tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&schemaMigration{Version: name, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			zap.L().Error("[DB] migration failed", zap.String("version", name), zap.Error(err))
			return err
		}
		zap.L().Info("[DB] migration applied", zap.String("version", name))
	}

	return nil
}
