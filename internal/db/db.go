package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parking-occupancy-backend/config"
	"parking-occupancy-backend/internal/model"
)

// Init opens the configured database, applies pool settings, migrates and seeds it.
func Init(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.Database.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeMinutes) * time.Minute)

	log.Info("running database migrations", zap.String("driver", cfg.Database.Driver))
	if err := Migrate(db); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := SeedVehicleTypes(ctx, db); err != nil {
		return nil, err
	}
	if admin := cfg.Auth.BootstrapAdmin; admin.Enabled() {
		created, err := SeedAdmin(ctx, db, admin, cfg.Auth.BcryptCost)
		if err != nil {
			return nil, err
		}
		if created {
			log.Info("bootstrap admin officer created", zap.String("email", admin.Email))
		}
	}

	log.Info("database initialization complete")
	return db, nil
}

// Dialector picks the gorm driver for the configured backend.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case "", "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate creates any missing tables. It is safe to run on every boot.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.VehicleType{},
		&model.Zone{},
		&model.ZoneTypeLimit{},
		&model.Vehicle{},
		&model.Ticket{},
		&model.Snapshot{},
		&model.Officer{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// SeedVehicleTypes inserts whichever of Light, Medium and Heavy are missing.
func SeedVehicleTypes(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, class := range model.VehicleClasses {
			var vt model.VehicleType
			err := tx.Where("type_name = ?", string(class)).First(&vt).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to look up vehicle type %s: %w", class, err)
			}
			if err := tx.Create(&model.VehicleType{TypeName: string(class)}).Error; err != nil {
				return fmt.Errorf("failed to seed vehicle type %s: %w", class, err)
			}
		}
		return nil
	})
}

// SeedAdmin creates the bootstrap admin officer unless an officer with that email exists.
func SeedAdmin(ctx context.Context, db *gorm.DB, spec config.BootstrapAdminSpec, cost int) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&model.Officer{}).Where("email = ?", spec.Email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check bootstrap admin: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(spec.Password), cost)
	if err != nil {
		return false, fmt.Errorf("failed to hash bootstrap admin password: %w", err)
	}

	name, badge := spec.Name, spec.BadgeNumber
	if name == "" {
		name = "Admin Officer"
	}
	if badge == "" {
		badge = "ADMIN001"
	}
	officer := model.Officer{
		Name:        name,
		BadgeNumber: badge,
		Email:       spec.Email,
		Password:    string(hash),
		Role:        model.RoleAdmin,
		IsActive:    true,
	}
	if err := db.WithContext(ctx).Create(&officer).Error; err != nil {
		return false, fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	return true, nil
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
