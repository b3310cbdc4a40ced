package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Store is the injected database handle every engine runs against.
type Store interface {
	DB() *gorm.DB
	// Transaction runs fn in one commit/rollback unit; any returned error rolls back.
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	Close() error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}
