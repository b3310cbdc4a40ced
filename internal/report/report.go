// Package report holds the read-only aggregations behind the dashboard and reports.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"parking-occupancy-backend/internal/model"
	"parking-occupancy-backend/internal/store"
)

// Ticket statuses as reported to callers.
const (
	StatusInside = "INSIDE"
	StatusExited = "EXITED"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
	snapshotBatchSize   = 500
)

// Service answers report queries. It never writes.
type Service struct {
	store     store.Store
	log       *zap.Logger
	now       func() time.Time
	batchSize int
}

// NewService creates a report service.
func NewService(s store.Store, log *zap.Logger) *Service {
	return &Service{
		store:     s,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		batchSize: snapshotBatchSize,
	}
}

// ClassCounts is a per-type breakdown keyed the way the dashboard expects.
type ClassCounts struct {
	Light  int `json:"light"`
	Medium int `json:"medium"`
	Heavy  int `json:"heavy"`
}

func (c *ClassCounts) add(class model.VehicleClass, n int) {
	switch class {
	case model.ClassLight:
		c.Light += n
	case model.ClassMedium:
		c.Medium += n
	case model.ClassHeavy:
		c.Heavy += n
	}
}

// Total sums every class.
func (c ClassCounts) Total() int {
	return c.Light + c.Medium + c.Heavy
}

// ZoneView is one dashboard tile.
type ZoneView struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Capacity int              `json:"capacity"`
	Occupied int              `json:"occupied"`
	Status   model.ZoneStatus `json:"status"`
	Limits   ClassCounts      `json:"limits"`
	Stats    ClassCounts      `json:"stats"`
}

// ListZones returns the live dashboard in zone creation order.
func (s *Service) ListZones(ctx context.Context, includeInactive bool) ([]ZoneView, error) {
	q := s.store.DB().WithContext(ctx).Preload("Limits.VehicleType").Order("created_at, seq")
	if !includeInactive {
		q = q.Where("status = ?", model.ZoneActive)
	}

	var zones []model.Zone
	if err := q.Find(&zones).Error; err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}

	views := make([]ZoneView, 0, len(zones))
	for _, z := range zones {
		views = append(views, NewZoneView(z))
	}
	return views, nil
}

// NewZoneView renders a zone loaded with Limits.VehicleType.
func NewZoneView(z model.Zone) ZoneView {
	v := ZoneView{
		ID:       z.ZoneID,
		Name:     z.ZoneName,
		Capacity: z.TotalCapacity,
		Occupied: z.CurrentOccupied,
		Status:   z.Status,
	}
	for _, l := range z.Limits {
		class, err := l.VehicleType.Class()
		if err != nil {
			continue
		}
		v.Limits.add(class, l.MaxVehicles)
		v.Stats.add(class, l.CurrentCount)
	}
	return v
}

// VehicleView is a vehicle currently parked.
type VehicleView struct {
	TicketCode string             `json:"ticketCode"`
	Plate      string             `json:"vehicle"`
	Type       string             `json:"type"`
	ZoneID     string             `json:"zone"`
	ZoneName   string             `json:"zoneName"`
	EntryTime  time.Time          `json:"timeIn"`
	Status     model.TicketStatus `json:"ticketStatus"`
}

// ZoneVehicles lists the vehicles inside one zone, longest-parked first.
func (s *Service) ZoneVehicles(ctx context.Context, zoneID string) ([]VehicleView, error) {
	db := s.store.DB().WithContext(ctx)

	var zone model.Zone
	err := db.Where("zone_id = ?", zoneID).First(&zone).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: zone %s", store.ErrNotFound, zoneID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load zone %s: %w", zoneID, err)
	}

	rows, err := store.OpenTickets(db, zoneID)
	if err != nil {
		return nil, err
	}
	views := make([]VehicleView, 0, len(rows))
	for _, r := range rows {
		views = append(views, VehicleView{
			TicketCode: r.TicketCode,
			Plate:      r.Plate,
			Type:       r.TypeName,
			ZoneID:     r.ZoneID,
			ZoneName:   r.ZoneName,
			EntryTime:  r.EntryTime.UTC(),
			Status:     r.Status,
		})
	}
	return views, nil
}

// HistoryFilter narrows the history report. Zero values mean no restriction.
type HistoryFilter struct {
	ZoneID string
	From   *time.Time
	To     *time.Time
	Limit  int
}

// HistoryRow is one ticket in the history report.
type HistoryRow struct {
	TicketCode string     `json:"ticketCode"`
	Plate      string     `json:"vehicle"`
	Type       string     `json:"type"`
	ZoneID     string     `json:"zone"`
	ZoneName   string     `json:"zoneName"`
	EntryTime  time.Time  `json:"timeIn"`
	ExitTime   *time.Time `json:"timeOut"`
	Status     string     `json:"status"`
}

// History lists tickets that entered within the filter window, most recent first.
func (s *Service) History(ctx context.Context, f HistoryFilter) ([]HistoryRow, error) {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, fmt.Errorf("%w: 'to' is before 'from'", store.ErrValidation)
	}
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	q := s.store.DB().WithContext(ctx).Table("parking_tickets AS t").
		Select("t.ticket_code, v.vehicle_number AS plate, vt.type_name AS type, t.zone_id, z.zone_name, t.entry_time, t.exit_time").
		Joins("JOIN vehicles v ON v.vehicle_id = t.vehicle_id").
		Joins("JOIN vehicle_types vt ON vt.id = v.vehicle_type_id").
		Joins("JOIN parking_zones z ON z.zone_id = t.zone_id")
	if f.ZoneID != "" {
		q = q.Where("t.zone_id = ?", f.ZoneID)
	}
	if f.From != nil {
		q = q.Where("t.entry_time >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("t.entry_time < ?", f.To.UTC())
	}

	var rows []HistoryRow
	if err := q.Order("t.entry_time DESC, t.id DESC").Limit(limit).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for i := range rows {
		rows[i].EntryTime = rows[i].EntryTime.UTC()
		if rows[i].ExitTime == nil {
			rows[i].Status = StatusInside
			continue
		}
		exit := rows[i].ExitTime.UTC()
		rows[i].ExitTime = &exit
		rows[i].Status = StatusExited
	}
	if rows == nil {
		rows = []HistoryRow{}
	}
	return rows, nil
}

// snapshotsBetween decodes every snapshot taken in [from, to). A missing snapshots
// table reads as no snapshots.
func (s *Service) snapshotsBetween(ctx context.Context, from, to time.Time) ([]decodedSnapshot, error) {
	var out []decodedSnapshot
	err := s.eachSnapshot(ctx, from, to, func(snap decodedSnapshot) {
		out = append(out, snap)
	})
	return out, err
}

// eachSnapshot streams the snapshots taken in [from, to) to fn in id order, one batch
// of rows at a time. Undecodable rows are logged and skipped.
func (s *Service) eachSnapshot(ctx context.Context, from, to time.Time, fn func(decodedSnapshot)) error {
	db := s.store.DB().WithContext(ctx)
	if !db.Migrator().HasTable(&model.Snapshot{}) {
		return nil
	}

	var batch []model.Snapshot
	res := db.Where("snapshot_time >= ? AND snapshot_time < ?", from.UTC(), to.UTC()).
		FindInBatches(&batch, s.batchSize, func(tx *gorm.DB, _ int) error {
			for _, snap := range batch {
				decoded, ok := s.decode(snap)
				if ok {
					fn(decoded)
				}
			}
			return nil
		})
	if res.Error != nil {
		return fmt.Errorf("failed to load snapshots: %w", res.Error)
	}
	return nil
}
