package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-occupancy-backend/internal/model"
)

// The helpers below take the *gorm.DB of an open transaction. They never begin or commit.

var forUpdate = clause.Locking{Strength: "UPDATE"}

// LockZone reads a zone row and holds its lock until the transaction ends.
func LockZone(tx *gorm.DB, zoneID string) (model.Zone, error) {
	var zone model.Zone
	err := tx.Clauses(forUpdate).Where("zone_id = ?", zoneID).First(&zone).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return zone, fmt.Errorf("%w: zone %s", ErrNotFound, zoneID)
	}
	if err != nil {
		return zone, fmt.Errorf("failed to lock zone %s: %w", zoneID, err)
	}
	return zone, nil
}

// LockZones locks every zone row in creation order, the same order Enter walks them,
// and holds the locks until the transaction ends.
func LockZones(tx *gorm.DB) ([]model.Zone, error) {
	var zones []model.Zone
	if err := tx.Clauses(forUpdate).Order("created_at, seq").Find(&zones).Error; err != nil {
		return nil, fmt.Errorf("failed to lock zones: %w", err)
	}
	return zones, nil
}

// OpenTicketZone returns the zone of the open ticket with the given code without locking it.
func OpenTicketZone(tx *gorm.DB, code string) (string, error) {
	var ticket model.Ticket
	err := tx.Select("zone_id").Where("ticket_code = ? AND exit_time IS NULL", code).First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: no open ticket %s", ErrNotFound, code)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up ticket %s: %w", code, err)
	}
	return ticket.ZoneID, nil
}

// LockZoneTypeLimit reads and locks the (zone, type) sub-limit row.
func LockZoneTypeLimit(tx *gorm.DB, zoneID string, vehicleTypeID int64) (model.ZoneTypeLimit, error) {
	var limit model.ZoneTypeLimit
	err := tx.Clauses(forUpdate).
		Where("zone_id = ? AND vehicle_type_id = ?", zoneID, vehicleTypeID).
		First(&limit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return limit, fmt.Errorf("%w: zone %s has no limit for vehicle type %d", ErrIntegrity, zoneID, vehicleTypeID)
	}
	if err != nil {
		return limit, fmt.Errorf("failed to lock limit for zone %s: %w", zoneID, err)
	}
	return limit, nil
}

// LockOpenTicket reads and locks the open ticket with the given code.
func LockOpenTicket(tx *gorm.DB, code string) (model.Ticket, error) {
	var ticket model.Ticket
	err := tx.Clauses(forUpdate).
		Where("ticket_code = ? AND exit_time IS NULL", code).
		First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ticket, fmt.Errorf("%w: no open ticket %s", ErrNotFound, code)
	}
	if err != nil {
		return ticket, fmt.Errorf("failed to lock ticket %s: %w", code, err)
	}
	return ticket, nil
}

// VehicleTypes returns the seeded type rows keyed by class.
func VehicleTypes(tx *gorm.DB) (map[model.VehicleClass]model.VehicleType, error) {
	var rows []model.VehicleType
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load vehicle types: %w", err)
	}
	types := make(map[model.VehicleClass]model.VehicleType, len(rows))
	for _, r := range rows {
		class, err := r.Class()
		if err != nil {
			continue
		}
		types[class] = r
	}
	if len(types) != len(model.VehicleClasses) {
		return nil, fmt.Errorf("%w: vehicle types are not seeded", ErrIntegrity)
	}
	return types, nil
}

// UpsertVehicle finds a vehicle by normalized plate, creating it or re-attaching it to vehicleTypeID.
func UpsertVehicle(tx *gorm.DB, plate string, vehicleTypeID int64, now time.Time) (model.Vehicle, error) {
	var vehicle model.Vehicle
	err := tx.Where("vehicle_number = ?", plate).First(&vehicle).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		vehicle = model.Vehicle{VehicleNumber: plate, VehicleTypeID: vehicleTypeID, CreatedAt: now}
		if err := tx.Omit(clause.Associations).Create(&vehicle).Error; err != nil {
			return vehicle, fmt.Errorf("failed to create vehicle %s: %w", plate, err)
		}
		return vehicle, nil
	case err != nil:
		return vehicle, fmt.Errorf("failed to look up vehicle %s: %w", plate, err)
	}

	if vehicle.VehicleTypeID != vehicleTypeID {
		if err := tx.Model(&vehicle).UpdateColumn("vehicle_type_id", vehicleTypeID).Error; err != nil {
			return vehicle, fmt.Errorf("failed to update type of vehicle %s: %w", plate, err)
		}
		vehicle.VehicleTypeID = vehicleTypeID
	}
	return vehicle, nil
}

// FindOpenTicketByPlate returns the open ticket for a plate, or nil when the vehicle is not inside.
func FindOpenTicketByPlate(tx *gorm.DB, plate string) (*model.Ticket, error) {
	var ticket model.Ticket
	err := tx.Joins("JOIN vehicles ON vehicles.vehicle_id = parking_tickets.vehicle_id").
		Where("vehicles.vehicle_number = ? AND parking_tickets.exit_time IS NULL", plate).
		First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up open ticket for %s: %w", plate, err)
	}
	return &ticket, nil
}

// IncrementOccupancy adds one vehicle to the zone counter and the (zone, type) counter.
func IncrementOccupancy(tx *gorm.DB, zoneID string, vehicleTypeID int64) error {
	if err := tx.Model(&model.Zone{}).Where("zone_id = ?", zoneID).
		UpdateColumn("current_occupied", gorm.Expr("current_occupied + ?", 1)).Error; err != nil {
		return fmt.Errorf("failed to increment occupancy of zone %s: %w", zoneID, err)
	}
	res := tx.Model(&model.ZoneTypeLimit{}).
		Where("zone_id = ? AND vehicle_type_id = ?", zoneID, vehicleTypeID).
		UpdateColumn("current_count", gorm.Expr("current_count + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("failed to increment type count of zone %s: %w", zoneID, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: zone %s has no limit for vehicle type %d", ErrIntegrity, zoneID, vehicleTypeID)
	}
	return nil
}

// DecrementOccupancy removes one vehicle from both counters. A counter already at zero
// means bookkeeping has drifted and yields ErrIntegrity instead of clamping.
func DecrementOccupancy(tx *gorm.DB, zoneID string, vehicleTypeID int64) error {
	res := tx.Model(&model.Zone{}).Where("zone_id = ? AND current_occupied > 0", zoneID).
		UpdateColumn("current_occupied", gorm.Expr("current_occupied - ?", 1))
	if res.Error != nil {
		return fmt.Errorf("failed to decrement occupancy of zone %s: %w", zoneID, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: occupancy of zone %s would go negative", ErrIntegrity, zoneID)
	}

	res = tx.Model(&model.ZoneTypeLimit{}).
		Where("zone_id = ? AND vehicle_type_id = ? AND current_count > 0", zoneID, vehicleTypeID).
		UpdateColumn("current_count", gorm.Expr("current_count - ?", 1))
	if res.Error != nil {
		return fmt.Errorf("failed to decrement type count of zone %s: %w", zoneID, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: type %d count of zone %s would go negative", ErrIntegrity, vehicleTypeID, zoneID)
	}
	return nil
}

// OpenTicketRow is the denormalized view of a vehicle currently inside.
type OpenTicketRow struct {
	TicketID   int64
	TicketCode string
	Plate      string
	ZoneID     string
	ZoneName   string
	TypeName   string
	EntryTime  time.Time
	Status     model.TicketStatus
}

// OpenTickets lists every open ticket, optionally restricted to one zone, oldest first.
func OpenTickets(tx *gorm.DB, zoneID string) ([]OpenTicketRow, error) {
	q := tx.Table("parking_tickets AS t").
		Select("t.id AS ticket_id, t.ticket_code, v.vehicle_number AS plate, t.zone_id, " +
			"z.zone_name, vt.type_name, t.entry_time, t.status").
		Joins("JOIN vehicles v ON v.vehicle_id = t.vehicle_id").
		Joins("JOIN vehicle_types vt ON vt.id = v.vehicle_type_id").
		Joins("JOIN parking_zones z ON z.zone_id = t.zone_id").
		Where("t.exit_time IS NULL")
	if zoneID != "" {
		q = q.Where("t.zone_id = ?", zoneID)
	}

	var rows []OpenTicketRow
	if err := q.Order("t.entry_time, t.id").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list open tickets: %w", err)
	}
	return rows, nil
}
