package storage

import (
	"time"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/models"

	errors "github.com/Laisky/errors/v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the configured database. Timestamps are written in UTC so that
// sqlite's text comparison of times stays consistent with postgres.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, errors.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: nowUTC,
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", cfg.Driver)
	}
	return db, nil
}

// Migrate creates or extends the schema. It never drops columns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Request{},
		&models.Reply{},
		&models.StaffAdmin{},
		&models.Broadcast{},
	); err != nil {
		return errors.Wrap(err, "auto migrate")
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
