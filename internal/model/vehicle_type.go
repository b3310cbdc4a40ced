package model

import (
	"fmt"
	"strings"
)

// VehicleClass is the closed set of vehicle categories a zone can hold.
type VehicleClass string

const (
	ClassLight  VehicleClass = "Light"
	ClassMedium VehicleClass = "Medium"
	ClassHeavy  VehicleClass = "Heavy"
)

// VehicleClasses lists every class in seeding order.
var VehicleClasses = []VehicleClass{ClassLight, ClassMedium, ClassHeavy}

// ParseVehicleClass maps a stored or user-supplied type name onto a VehicleClass, ignoring case.
func ParseVehicleClass(s string) (VehicleClass, error) {
	s = strings.TrimSpace(s)
	for _, c := range VehicleClasses {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown vehicle type %q", s)
}

// Key is the lower-case form used as a JSON map key.
func (c VehicleClass) Key() string {
	return strings.ToLower(string(c))
}

// VehicleType is seeded reference data, one row per VehicleClass.
type VehicleType struct {
	ID       int64  `gorm:"primaryKey"`
	TypeName string `gorm:"uniqueIndex;size:32;not null"`
}

func (VehicleType) TableName() string { return "vehicle_types" }

// Class converts the stored type name back into a VehicleClass.
func (t VehicleType) Class() (VehicleClass, error) {
	return ParseVehicleClass(t.TypeName)
}
