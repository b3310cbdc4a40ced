package model

import (
	"time"

	"gorm.io/datatypes"
)

// Snapshot is an immutable point-in-time capture of every open ticket.
// Data holds the denormalized vehicle list so it survives zone id churn.
type Snapshot struct {
	ID           int64          `gorm:"primaryKey"`
	SnapshotTime time.Time      `gorm:"not null;index"`
	RecordsCount int            `gorm:"not null"`
	Data         datatypes.JSON `gorm:"not null"`
}

func (Snapshot) TableName() string { return "snapshots" }
