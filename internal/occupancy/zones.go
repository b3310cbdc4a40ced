package occupancy

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-occupancy-backend/internal/model"
	"parking-occupancy-backend/internal/store"
)

// Limits holds the per-type maximum of a zone.
type Limits struct {
	Light  int `json:"light"`
	Medium int `json:"medium"`
	Heavy  int `json:"heavy"`
}

// For returns the limit of one class.
func (l Limits) For(c model.VehicleClass) int {
	switch c {
	case model.ClassLight:
		return l.Light
	case model.ClassMedium:
		return l.Medium
	case model.ClassHeavy:
		return l.Heavy
	}
	return 0
}

// Total is the zone capacity these limits imply.
func (l Limits) Total() int {
	return l.Light + l.Medium + l.Heavy
}

func (l Limits) validate() error {
	if l.Light < 0 || l.Medium < 0 || l.Heavy < 0 {
		return fmt.Errorf("%w: limits must not be negative", store.ErrValidation)
	}
	if l.Total() <= 0 {
		return fmt.Errorf("%w: total capacity must be positive", store.ErrValidation)
	}
	return nil
}

// ZoneUpdate carries the fields of an UpdateZone call. Nil fields are left alone.
type ZoneUpdate struct {
	Name   *string
	Limits *Limits
}

// CreateZone adds an active zone with the next sequential id and one limit row per type.
func (e *Engine) CreateZone(ctx context.Context, name string, limits Limits) (model.Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Zone{}, fmt.Errorf("%w: zone name is required", store.ErrValidation)
	}
	if err := limits.validate(); err != nil {
		return model.Zone{}, err
	}

	var zone model.Zone
	err := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		types, err := store.VehicleTypes(tx)
		if err != nil {
			return err
		}

		var maxSeq int
		if err := tx.Model(&model.Zone{}).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("failed to allocate zone id: %w", err)
		}
		seq := maxSeq + 1

		zone = model.Zone{
			ZoneID:        fmt.Sprintf("Z%d", seq),
			Seq:           seq,
			ZoneName:      name,
			TotalCapacity: limits.Total(),
			Status:        model.ZoneActive,
			CreatedAt:     e.now(),
		}
		if err := tx.Omit(clause.Associations).Create(&zone).Error; err != nil {
			return fmt.Errorf("failed to create zone %s: %w", zone.ZoneID, err)
		}

		for _, class := range model.VehicleClasses {
			limit := model.ZoneTypeLimit{
				ZoneID:        zone.ZoneID,
				VehicleTypeID: types[class].ID,
				MaxVehicles:   limits.For(class),
			}
			if err := tx.Omit(clause.Associations).Create(&limit).Error; err != nil {
				return fmt.Errorf("failed to create %s limit of zone %s: %w", class, zone.ZoneID, err)
			}
		}

		zone, err = loadZone(tx, zone.ZoneID)
		return err
	})
	if err != nil {
		e.logFailure("create_zone", err, zap.String("name", name))
		return model.Zone{}, err
	}

	e.log.Info("zone created", zap.String("zone", zone.ZoneID), zap.String("name", zone.ZoneName), zap.Int("capacity", zone.TotalCapacity))
	return zone, nil
}

// UpdateZone renames a zone and/or replaces its per-type limits. A limit below the
// number of vehicles of that type already parked fails with ErrCapacity and changes nothing.
func (e *Engine) UpdateZone(ctx context.Context, zoneID string, upd ZoneUpdate) (model.Zone, error) {
	var name string
	if upd.Name != nil {
		name = strings.TrimSpace(*upd.Name)
		if name == "" {
			return model.Zone{}, fmt.Errorf("%w: zone name must not be empty", store.ErrValidation)
		}
	}
	if upd.Limits != nil {
		if err := upd.Limits.validate(); err != nil {
			return model.Zone{}, err
		}
	}

	var zone model.Zone
	err := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		locked, err := store.LockZone(tx, zoneID)
		if err != nil {
			return err
		}

		updates := map[string]any{}
		if upd.Name != nil {
			updates["zone_name"] = name
		}

		if upd.Limits != nil {
			types, err := store.VehicleTypes(tx)
			if err != nil {
				return err
			}
			for _, class := range model.VehicleClasses {
				limit, err := store.LockZoneTypeLimit(tx, locked.ZoneID, types[class].ID)
				if err != nil {
					return err
				}
				want := upd.Limits.For(class)
				if want < limit.CurrentCount {
					return fmt.Errorf("%w: zone %s has %d %s vehicles parked, cannot lower limit to %d",
						store.ErrCapacity, locked.ZoneID, limit.CurrentCount, class, want)
				}
				if want == limit.MaxVehicles {
					continue
				}
				if err := tx.Model(&model.ZoneTypeLimit{}).
					Where("zone_id = ? AND vehicle_type_id = ?", locked.ZoneID, types[class].ID).
					UpdateColumn("max_vehicles", want).Error; err != nil {
					return fmt.Errorf("failed to update %s limit of zone %s: %w", class, locked.ZoneID, err)
				}
			}
			updates["total_capacity"] = upd.Limits.Total()
		}

		if len(updates) > 0 {
			if err := tx.Model(&model.Zone{}).Where("zone_id = ?", locked.ZoneID).UpdateColumns(updates).Error; err != nil {
				return fmt.Errorf("failed to update zone %s: %w", locked.ZoneID, err)
			}
		}

		zone, err = loadZone(tx, locked.ZoneID)
		return err
	})
	if err != nil {
		e.logFailure("update_zone", err, zap.String("zone", zoneID))
		return model.Zone{}, err
	}

	e.log.Info("zone updated", zap.String("zone", zone.ZoneID), zap.String("name", zone.ZoneName), zap.Int("capacity", zone.TotalCapacity))
	return zone, nil
}

// DeactivateZone soft-deletes an empty zone. Its tickets and snapshots are kept.
func (e *Engine) DeactivateZone(ctx context.Context, zoneID string) error {
	err := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		zone, err := store.LockZone(tx, zoneID)
		if err != nil {
			return err
		}
		if zone.CurrentOccupied > 0 {
			return fmt.Errorf("%w: zone %s still has %d vehicles inside", store.ErrConflict, zoneID, zone.CurrentOccupied)
		}
		if zone.Status == model.ZoneInactive {
			return nil
		}
		return tx.Model(&model.Zone{}).Where("zone_id = ?", zoneID).
			UpdateColumn("status", model.ZoneInactive).Error
	})
	if err != nil {
		e.logFailure("deactivate_zone", err, zap.String("zone", zoneID))
		return err
	}

	e.log.Info("zone deactivated", zap.String("zone", zoneID))
	return nil
}

func loadZone(tx *gorm.DB, zoneID string) (model.Zone, error) {
	var zone model.Zone
	if err := tx.Preload("Limits.VehicleType").Where("zone_id = ?", zoneID).First(&zone).Error; err != nil {
		return zone, fmt.Errorf("failed to load zone %s: %w", zoneID, err)
	}
	return zone, nil
}
