package model

import "time"

// Vehicle is keyed by its normalized plate.
type Vehicle struct {
	VehicleID     int64     `gorm:"column:vehicle_id;primaryKey"`
	VehicleNumber string    `gorm:"uniqueIndex;size:32;not null"`
	VehicleTypeID int64     `gorm:"not null;index"`
	CreatedAt     time.Time `gorm:"not null"`

	// Associations
	VehicleType VehicleType `gorm:"foreignKey:VehicleTypeID"`
}

func (Vehicle) TableName() string { return "vehicles" }
