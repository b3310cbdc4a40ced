package snapshot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-occupancy-backend/internal/model"
	"parking-occupancy-backend/internal/parse"
	"parking-occupancy-backend/internal/store"
)

// Skip reasons reported for records that could not be replayed.
const (
	SkipInvalidPlate = "invalid plate"
	SkipUnknownType  = "unknown vehicle type"
	SkipBadTimestamp = "unparseable entry time"
	SkipNoZone       = "no zone to place vehicle in"
	SkipNoTypeLimit  = "zone has no limit for vehicle type"
	SkipDuplicate    = "vehicle already restored from this snapshot"
)

// RestoredVehicle is a record that was replayed as a new RESTORED ticket.
type RestoredVehicle struct {
	Plate      string    `json:"plate"`
	Type       string    `json:"type"`
	ZoneID     string    `json:"zone"`
	ZoneName   string    `json:"zoneName"`
	TicketCode string    `json:"ticketCode"`
	EntryTime  time.Time `json:"timeIn"`
}

// SkippedVehicle is a record that was left out, with the reason.
type SkippedVehicle struct {
	Record Record `json:"record"`
	Reason string `json:"reason"`
}

// RestoreResult enumerates what a restore did.
type RestoreResult struct {
	SnapshotID       int64             `json:"snapshotId"`
	SafetySnapshotID int64             `json:"safetySnapshotId"`
	Reactivated      []string          `json:"reactivatedZones"`
	Restored         []RestoredVehicle `json:"restored"`
	Skipped          []SkippedVehicle  `json:"skipped"`
}

// RestoredCount is the number of vehicles actually placed.
func (r RestoreResult) RestoredCount() int {
	return len(r.Restored)
}

// Restore replays a snapshot into live state as a single transaction: it safety-captures
// the current state, wipes every open ticket and counter, then re-admits each recorded
// vehicle. Unresolvable records are skipped; any other failure rolls everything back.
func (e *Engine) Restore(ctx context.Context, id int64) (RestoreResult, error) {
	result := RestoreResult{
		SnapshotID:  id,
		Reactivated: []string{},
		Restored:    []RestoredVehicle{},
		Skipped:     []SkippedVehicle{},
	}

	err := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		// Holding every zone row makes Restore wait for in-flight entries and exits,
		// and keeps new ones out until the replay commits.
		if _, err := store.LockZones(tx); err != nil {
			return err
		}

		snap, err := loadSnapshot(tx, id)
		if err != nil {
			return err
		}
		payload, err := Decode(snap.Data)
		if err != nil {
			return fmt.Errorf("%w: snapshot %d: %v", store.ErrIntegrity, id, err)
		}

		safety, err := e.CaptureTx(tx)
		if err != nil {
			return fmt.Errorf("failed to capture safety snapshot: %w", err)
		}
		result.SafetySnapshotID = safety.ID

		if err := wipeOccupancy(tx); err != nil {
			return err
		}

		zones, err := loadZoneIndex(tx)
		if err != nil {
			return err
		}
		reactivated, err := zones.reactivateReferenced(tx, payload.Vehicles)
		if err != nil {
			return err
		}
		result.Reactivated = reactivated

		types, err := store.VehicleTypes(tx)
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(payload.Vehicles))
		for _, rec := range payload.Vehicles {
			restored, reason, err := e.replay(tx, rec, zones, types, seen)
			if err != nil {
				return err
			}
			if reason != "" {
				e.log.Warn("skipping snapshot record",
					zap.Int64("snapshot_id", id),
					zap.String("plate", rec.Plate),
					zap.String("zone", rec.Zone),
					zap.String("zone_name", rec.ZoneName),
					zap.String("reason", reason))
				result.Skipped = append(result.Skipped, SkippedVehicle{Record: rec, Reason: reason})
				continue
			}
			result.Restored = append(result.Restored, restored)
		}
		return nil
	})
	if err != nil {
		return RestoreResult{}, err
	}

	e.log.Info("snapshot restored",
		zap.Int64("snapshot_id", id),
		zap.Int64("safety_snapshot_id", result.SafetySnapshotID),
		zap.Int("restored", len(result.Restored)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

// replay places one record. A non-empty reason means the record was skipped.
func (e *Engine) replay(tx *gorm.DB, rec Record, zones *zoneIndex, types map[model.VehicleClass]model.VehicleType, seen map[string]bool) (RestoredVehicle, string, error) {
	plate, err := parse.NormalizePlate(rec.Plate)
	if err != nil {
		return RestoredVehicle{}, SkipInvalidPlate, nil
	}
	// Plates are unique per vehicle, so deduplicating on the plate deduplicates on vehicle id.
	if seen[plate] {
		return RestoredVehicle{}, SkipDuplicate, nil
	}
	class, err := model.ParseVehicleClass(rec.Type)
	if err != nil {
		return RestoredVehicle{}, SkipUnknownType, nil
	}
	vehicleType := types[class]
	entryTime, err := ParseTime(rec.TimeIn)
	if err != nil {
		return RestoredVehicle{}, SkipBadTimestamp, nil
	}
	zone, ok := zones.resolve(rec)
	if !ok {
		return RestoredVehicle{}, SkipNoZone, nil
	}
	if !zones.hasLimit(zone.ZoneID, vehicleType.ID) {
		return RestoredVehicle{}, SkipNoTypeLimit, nil
	}

	vehicle, err := store.UpsertVehicle(tx, plate, vehicleType.ID, e.now())
	if err != nil {
		return RestoredVehicle{}, "", err
	}
	seen[plate] = true

	ticket := model.Ticket{
		TicketCode: model.NewTicketCode(e.now()),
		VehicleID:  vehicle.VehicleID,
		ZoneID:     zone.ZoneID,
		EntryTime:  entryTime,
		Status:     model.TicketRestored,
	}
	if err := tx.Omit(clause.Associations).Create(&ticket).Error; err != nil {
		return RestoredVehicle{}, "", fmt.Errorf("failed to create restored ticket for %s: %w", plate, err)
	}
	if err := store.IncrementOccupancy(tx, zone.ZoneID, vehicleType.ID); err != nil {
		return RestoredVehicle{}, "", err
	}

	return RestoredVehicle{
		Plate:      plate,
		Type:       string(class),
		ZoneID:     zone.ZoneID,
		ZoneName:   zone.ZoneName,
		TicketCode: ticket.TicketCode,
		EntryTime:  entryTime,
	}, "", nil
}

// wipeOccupancy removes every open ticket and zeroes every counter.
func wipeOccupancy(tx *gorm.DB) error {
	if err := tx.Where("exit_time IS NULL").Delete(&model.Ticket{}).Error; err != nil {
		return fmt.Errorf("failed to clear open tickets: %w", err)
	}
	if err := tx.Model(&model.Zone{}).Where("current_occupied <> ?", 0).
		UpdateColumn("current_occupied", 0).Error; err != nil {
		return fmt.Errorf("failed to reset zone occupancy: %w", err)
	}
	if err := tx.Model(&model.ZoneTypeLimit{}).Where("current_count <> ?", 0).
		UpdateColumn("current_count", 0).Error; err != nil {
		return fmt.Errorf("failed to reset type counts: %w", err)
	}
	return nil
}
