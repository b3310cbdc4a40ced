package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketActive   TicketStatus = "ACTIVE"
	TicketExited   TicketStatus = "EXITED"
	TicketRestored TicketStatus = "RESTORED"
)

// Ticket records one stay of a vehicle in a zone. ExitTime is nil while the vehicle is inside.
type Ticket struct {
	ID         int64        `gorm:"primaryKey"`
	TicketCode string       `gorm:"uniqueIndex;size:64;not null"`
	VehicleID  int64        `gorm:"not null;index"`
	ZoneID     string       `gorm:"column:zone_id;size:16;not null;index"`
	EntryTime  time.Time    `gorm:"not null;index"`
	ExitTime   *time.Time   `gorm:"index"`
	Status     TicketStatus `gorm:"size:16;not null"`

	// Associations
	Vehicle Vehicle `gorm:"foreignKey:VehicleID;references:VehicleID"`
	Zone    Zone    `gorm:"foreignKey:ZoneID;references:ZoneID"`
}

func (Ticket) TableName() string { return "parking_tickets" }

// IsOpen reports whether the vehicle is still inside.
func (t Ticket) IsOpen() bool {
	return t.ExitTime == nil
}

// NewTicketCode builds a human-readable code from the entry second plus the full
// 128-bit random UUID, so codes minted in bulk within one second do not collide.
func NewTicketCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "T" + now.UTC().Format("20060102150405") + "-" + suffix
}
