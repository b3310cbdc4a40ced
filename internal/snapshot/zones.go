package snapshot

import (
	"fmt"

	"gorm.io/gorm"

	"parking-occupancy-backend/internal/model"
)

// zoneIndex resolves snapshot zone references against the zones that exist now.
type zoneIndex struct {
	ordered []*model.Zone // creation order
	byID    map[string]*model.Zone
	byName  map[string]*model.Zone
	limits  map[string]map[int64]bool
}

func loadZoneIndex(tx *gorm.DB) (*zoneIndex, error) {
	var zones []model.Zone
	if err := tx.Order("created_at, seq").Find(&zones).Error; err != nil {
		return nil, fmt.Errorf("failed to load zones: %w", err)
	}
	var limits []model.ZoneTypeLimit
	if err := tx.Find(&limits).Error; err != nil {
		return nil, fmt.Errorf("failed to load zone limits: %w", err)
	}

	idx := &zoneIndex{
		byID:   make(map[string]*model.Zone, len(zones)),
		byName: make(map[string]*model.Zone, len(zones)),
		limits: make(map[string]map[int64]bool, len(zones)),
	}
	for i := range zones {
		z := &zones[i]
		idx.ordered = append(idx.ordered, z)
		idx.byID[z.ZoneID] = z
		// Names are not unique; an active zone wins over an inactive one, then the oldest.
		if prev, ok := idx.byName[z.ZoneName]; !ok || (prev.Status != model.ZoneActive && z.Status == model.ZoneActive) {
			idx.byName[z.ZoneName] = z
		}
	}
	for _, l := range limits {
		if idx.limits[l.ZoneID] == nil {
			idx.limits[l.ZoneID] = make(map[int64]bool)
		}
		idx.limits[l.ZoneID][l.VehicleTypeID] = true
	}
	return idx, nil
}

// lookup matches a record by zone name first, then by zone id.
func (idx *zoneIndex) lookup(rec Record) (*model.Zone, bool) {
	if rec.ZoneName != "" {
		if z, ok := idx.byName[rec.ZoneName]; ok {
			return z, true
		}
	}
	if rec.Zone != "" {
		if z, ok := idx.byID[rec.Zone]; ok {
			return z, true
		}
	}
	return nil, false
}

// resolve is lookup with a fallback to the first active zone.
func (idx *zoneIndex) resolve(rec Record) (*model.Zone, bool) {
	if z, ok := idx.lookup(rec); ok && z.Status == model.ZoneActive {
		return z, true
	}
	for _, z := range idx.ordered {
		if z.Status == model.ZoneActive {
			return z, true
		}
	}
	return nil, false
}

func (idx *zoneIndex) hasLimit(zoneID string, vehicleTypeID int64) bool {
	return idx.limits[zoneID][vehicleTypeID]
}

// reactivateReferenced flips every inactive zone that a record points at back to ACTIVE.
func (idx *zoneIndex) reactivateReferenced(tx *gorm.DB, records []Record) ([]string, error) {
	reactivated := []string{}
	for _, rec := range records {
		z, ok := idx.lookup(rec)
		if !ok || z.Status == model.ZoneActive {
			continue
		}
		if err := tx.Model(&model.Zone{}).Where("zone_id = ?", z.ZoneID).
			UpdateColumn("status", model.ZoneActive).Error; err != nil {
			return nil, fmt.Errorf("failed to reactivate zone %s: %w", z.ZoneID, err)
		}
		z.Status = model.ZoneActive
		reactivated = append(reactivated, z.ZoneID)
	}
	return reactivated, nil
}
