package model

import "time"

// ZoneStatus marks whether a zone accepts vehicles. Zones are never hard-deleted.
type ZoneStatus string

const (
	ZoneActive   ZoneStatus = "ACTIVE"
	ZoneInactive ZoneStatus = "INACTIVE"
)

// Zone represents a parking area (hot counters live on the row).
type Zone struct {
	ZoneID          string     `gorm:"column:zone_id;primaryKey;size:16"`
	Seq             int        `gorm:"not null;index"`
	ZoneName        string     `gorm:"column:zone_name;size:128;not null"`
	TotalCapacity   int        `gorm:"not null"`
	CurrentOccupied int        `gorm:"not null"`
	Status          ZoneStatus `gorm:"size:16;not null;index"`
	CreatedAt       time.Time  `gorm:"not null"`

	// Associations
	Limits []ZoneTypeLimit `gorm:"foreignKey:ZoneID;references:ZoneID"`
}

func (Zone) TableName() string { return "parking_zones" }

// HasHeadroom reports whether the zone itself can take one more vehicle.
func (z Zone) HasHeadroom() bool {
	return z.Status == ZoneActive && z.CurrentOccupied < z.TotalCapacity
}

// ZoneTypeLimit is the per-type sub-limit of a zone.
type ZoneTypeLimit struct {
	ZoneID        string `gorm:"column:zone_id;primaryKey;size:16"`
	VehicleTypeID int64  `gorm:"primaryKey"`
	MaxVehicles   int    `gorm:"not null"`
	CurrentCount  int    `gorm:"not null"`

	// Associations
	VehicleType VehicleType `gorm:"foreignKey:VehicleTypeID"`
}

func (ZoneTypeLimit) TableName() string { return "zone_type_limits" }

// HasHeadroom reports whether one more vehicle of this type fits.
func (l ZoneTypeLimit) HasHeadroom() bool {
	return l.CurrentCount < l.MaxVehicles
}
