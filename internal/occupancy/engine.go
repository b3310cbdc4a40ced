package occupancy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-occupancy-backend/internal/model"
	"parking-occupancy-backend/internal/parse"
	"parking-occupancy-backend/internal/store"
)

// Capturer appends a snapshot inside an open transaction.
type Capturer interface {
	CaptureTx(tx *gorm.DB) (model.Snapshot, error)
}

// Engine mutates tickets and occupancy counters. Every operation is one transaction.
type Engine struct {
	store    store.Store
	capturer Capturer
	log      *zap.Logger
	now      func() time.Time
}

// NewEngine creates an occupancy engine. capturer is invoked before every entry or exit commits.
func NewEngine(s store.Store, capturer Capturer, log *zap.Logger) *Engine {
	return &Engine{
		store:    s,
		capturer: capturer,
		log:      log,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// EnterRequest asks to admit a vehicle. ZoneID is an optional hint.
type EnterRequest struct {
	Plate  string
	Type   string
	ZoneID string
}

// EnterResult describes an admitted vehicle.
type EnterResult struct {
	TicketCode string             `json:"ticketCode"`
	Plate      string             `json:"vehicle"`
	Type       model.VehicleClass `json:"type"`
	ZoneID     string             `json:"zone"`
	ZoneName   string             `json:"zoneName"`
	EntryTime  time.Time          `json:"timeIn"`
	SnapshotID int64              `json:"snapshotId"`
}

// Enter admits a vehicle into the requested zone, or into the earliest-created
// active zone with headroom for its type.
func (e *Engine) Enter(ctx context.Context, req EnterRequest) (EnterResult, error) {
	plate, err := parse.NormalizePlate(req.Plate)
	if err != nil {
		return EnterResult{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	class, err := model.ParseVehicleClass(req.Type)
	if err != nil {
		return EnterResult{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	hint := strings.TrimSpace(req.ZoneID)

	var result EnterResult
	err = e.store.Transaction(ctx, func(tx *gorm.DB) error {
		types, err := store.VehicleTypes(tx)
		if err != nil {
			return err
		}
		vehicleType := types[class]

		var zone model.Zone
		if hint != "" {
			zone, err = e.claimHintedZone(tx, hint, vehicleType)
		} else {
			zone, err = e.claimFirstZone(tx, vehicleType)
		}
		if err != nil {
			return err
		}

		// Checked under the zone lock so tickets replayed by a concurrent restore are visible.
		open, err := store.FindOpenTicketByPlate(tx, plate)
		if err != nil {
			return err
		}
		if open != nil {
			return fmt.Errorf("%w: vehicle %s is already inside on ticket %s", store.ErrConflict, plate, open.TicketCode)
		}

		now := e.now()
		vehicle, err := store.UpsertVehicle(tx, plate, vehicleType.ID, now)
		if err != nil {
			return err
		}

		ticket := model.Ticket{
			TicketCode: model.NewTicketCode(now),
			VehicleID:  vehicle.VehicleID,
			ZoneID:     zone.ZoneID,
			EntryTime:  now,
			Status:     model.TicketActive,
		}
		if err := tx.Omit(clause.Associations).Create(&ticket).Error; err != nil {
			return fmt.Errorf("failed to create ticket for %s: %w", plate, err)
		}
		if err := store.IncrementOccupancy(tx, zone.ZoneID, vehicleType.ID); err != nil {
			return err
		}

		snap, err := e.capturer.CaptureTx(tx)
		if err != nil {
			return err
		}

		result = EnterResult{
			TicketCode: ticket.TicketCode,
			Plate:      plate,
			Type:       class,
			ZoneID:     zone.ZoneID,
			ZoneName:   zone.ZoneName,
			EntryTime:  now,
			SnapshotID: snap.ID,
		}
		return nil
	})
	if err != nil {
		e.logFailure("enter", err, zap.String("plate", plate), zap.String("zone", hint))
		return EnterResult{}, err
	}

	e.log.Info("vehicle entered",
		zap.String("plate", result.Plate),
		zap.String("type", string(result.Type)),
		zap.String("zone", result.ZoneID),
		zap.String("ticket", result.TicketCode))
	return result, nil
}

// claimHintedZone locks the requested zone and its type limit and checks both have headroom.
func (e *Engine) claimHintedZone(tx *gorm.DB, zoneID string, vehicleType model.VehicleType) (model.Zone, error) {
	zone, err := store.LockZone(tx, zoneID)
	if err != nil {
		return zone, err
	}
	if zone.Status != model.ZoneActive {
		return zone, fmt.Errorf("%w: zone %s is not active", store.ErrValidation, zoneID)
	}
	if !zone.HasHeadroom() {
		return zone, fmt.Errorf("%w: zone %s is full", store.ErrCapacity, zoneID)
	}
	limit, err := store.LockZoneTypeLimit(tx, zoneID, vehicleType.ID)
	if err != nil {
		return zone, err
	}
	if !limit.HasHeadroom() {
		return zone, fmt.Errorf("%w: zone %s has no room for %s vehicles", store.ErrCapacity, zoneID, vehicleType.TypeName)
	}
	return zone, nil
}

// claimFirstZone walks active zones in creation order. The unlocked prefilter only
// narrows the candidates; each one is re-checked under its row lock.
func (e *Engine) claimFirstZone(tx *gorm.DB, vehicleType model.VehicleType) (model.Zone, error) {
	var candidates []string
	err := tx.Table("parking_zones AS z").
		Joins("JOIN zone_type_limits l ON l.zone_id = z.zone_id AND l.vehicle_type_id = ?", vehicleType.ID).
		Where("z.status = ? AND z.current_occupied < z.total_capacity AND l.current_count < l.max_vehicles", model.ZoneActive).
		Order("z.created_at, z.seq").
		Pluck("z.zone_id", &candidates).Error
	if err != nil {
		return model.Zone{}, fmt.Errorf("failed to find zones with headroom: %w", err)
	}

	for _, zoneID := range candidates {
		zone, err := e.claimHintedZone(tx, zoneID, vehicleType)
		switch {
		case err == nil:
			return zone, nil
		case errors.Is(err, store.ErrCapacity), errors.Is(err, store.ErrValidation), errors.Is(err, store.ErrNotFound):
			continue
		default:
			return zone, err
		}
	}
	return model.Zone{}, fmt.Errorf("%w: no active zone has room for %s vehicles", store.ErrCapacity, vehicleType.TypeName)
}

// ExitResult describes a closed ticket.
type ExitResult struct {
	TicketCode string    `json:"ticketCode"`
	Plate      string    `json:"vehicle"`
	ZoneID     string    `json:"zone"`
	ZoneName   string    `json:"zoneName"`
	EntryTime  time.Time `json:"timeIn"`
	ExitTime   time.Time `json:"timeOut"`
	SnapshotID int64     `json:"snapshotId"`
}

// Exit closes the open ticket with the given code and frees its capacity.
func (e *Engine) Exit(ctx context.Context, ticketCode string) (ExitResult, error) {
	code := strings.ToUpper(strings.TrimSpace(ticketCode))
	if code == "" {
		return ExitResult{}, fmt.Errorf("%w: ticket code is required", store.ErrValidation)
	}

	var result ExitResult
	err := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		// Zone before ticket, the order Restore takes them in.
		zoneID, err := store.OpenTicketZone(tx, code)
		if err != nil {
			return err
		}
		zone, err := store.LockZone(tx, zoneID)
		if err != nil {
			return fmt.Errorf("%w: zone %s of ticket %s: %v", store.ErrIntegrity, zoneID, code, err)
		}
		ticket, err := store.LockOpenTicket(tx, code)
		if err != nil {
			return err
		}
		next, err := transition(ctx, ticket.Status, eventExit)
		if err != nil {
			return err
		}

		var vehicle model.Vehicle
		if err := tx.Where("vehicle_id = ?", ticket.VehicleID).First(&vehicle).Error; err != nil {
			return fmt.Errorf("%w: vehicle %d of ticket %s: %v", store.ErrIntegrity, ticket.VehicleID, code, err)
		}

		now := e.now()
		res := tx.Model(&model.Ticket{}).
			Where("id = ? AND exit_time IS NULL", ticket.ID).
			Updates(map[string]any{"exit_time": now, "status": next})
		if res.Error != nil {
			return fmt.Errorf("failed to close ticket %s: %w", code, res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: no open ticket %s", store.ErrNotFound, code)
		}
		if err := store.DecrementOccupancy(tx, ticket.ZoneID, vehicle.VehicleTypeID); err != nil {
			return err
		}

		snap, err := e.capturer.CaptureTx(tx)
		if err != nil {
			return err
		}

		result = ExitResult{
			TicketCode: ticket.TicketCode,
			Plate:      vehicle.VehicleNumber,
			ZoneID:     zone.ZoneID,
			ZoneName:   zone.ZoneName,
			EntryTime:  ticket.EntryTime.UTC(),
			ExitTime:   now,
			SnapshotID: snap.ID,
		}
		return nil
	})
	if err != nil {
		e.logFailure("exit", err, zap.String("ticket", code))
		return ExitResult{}, err
	}

	e.log.Info("vehicle exited",
		zap.String("plate", result.Plate),
		zap.String("zone", result.ZoneID),
		zap.String("ticket", result.TicketCode))
	return result, nil
}

// logFailure reports integrity breaches loudly; expected rejections stay at debug.
func (e *Engine) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	switch store.Kind(err) {
	case "INTEGRITY", "INTERNAL":
		e.log.Error("occupancy operation aborted", fields...)
	default:
		e.log.Debug("occupancy operation rejected", fields...)
	}
}
