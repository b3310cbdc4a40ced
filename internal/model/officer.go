package model

import "time"

// OfficerRole gates which endpoints an officer may call.
type OfficerRole string

const (
	RoleAdmin   OfficerRole = "ADMIN"
	RoleOfficer OfficerRole = "OFFICER"
)

// Officer is a credential-store row. Password holds a bcrypt hash.
type Officer struct {
	OfficerID   int64       `gorm:"column:officer_id;primaryKey"`
	Name        string      `gorm:"size:128;not null"`
	BadgeNumber string      `gorm:"uniqueIndex;size:32;not null"`
	Email       string      `gorm:"uniqueIndex;size:255;not null"`
	Password    string      `gorm:"size:255;not null"`
	Role        OfficerRole `gorm:"size:16;not null"`
	IsActive    bool        `gorm:"not null"`
	CreatedAt   time.Time   `gorm:"not null"`
}

func (Officer) TableName() string { return "officers" }
