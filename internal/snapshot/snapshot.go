package snapshot

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

// Engine captures, lists, deletes and restores snapshots.
type Engine struct {
	store     store.Store
	log       *zap.Logger
	listLimit int
	now       func() time.Time
}

// NewEngine creates a snapshot engine. listLimit bounds List.
func NewEngine(s store.Store, log *zap.Logger, listLimit int) *Engine {
	if listLimit <= 0 {
		listLimit = 20
	}
	return &Engine{
		store:     s,
		log:       log,
		listLimit: listLimit,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// View is a stored snapshot with its payload decoded.
type View struct {
	ID           int64     `json:"id"`
	SnapshotTime time.Time `json:"snapshotTime"`
	RecordsCount int       `json:"recordsCount"`
	Version      int       `json:"version"`
	Vehicles     []Record  `json:"vehicles"`
}

// Capture appends a snapshot of every open ticket in its own transaction.
func (e *Engine) Capture(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	err := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		snap, err = e.CaptureTx(tx)
		return err
	})
	if err != nil {
		return snap, err
	}
	e.log.Info("snapshot captured", zap.Int64("snapshot_id", snap.ID), zap.Int("records", snap.RecordsCount))
	return snap, nil
}

// CaptureTx appends a snapshot inside the caller's transaction. It only reads live state.
func (e *Engine) CaptureTx(tx *gorm.DB) (model.Snapshot, error) {
	rows, err := store.OpenTickets(tx, "")
	if err != nil {
		return model.Snapshot{}, err
	}

	records := make([]Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, Record{
			Plate:    r.Plate,
			Zone:     r.ZoneID,
			ZoneName: r.ZoneName,
			TimeIn:   FormatTime(r.EntryTime),
			Type:     r.TypeName,
		})
	}

	data, err := Encode(Payload{Version: PayloadVersion, Vehicles: records})
	if err != nil {
		return model.Snapshot{}, err
	}

	snap := model.Snapshot{
		SnapshotTime: e.now(),
		RecordsCount: len(records),
		Data:         data,
	}
	if err := tx.Create(&snap).Error; err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to store snapshot: %w", err)
	}
	return snap, nil
}

// List returns the most recent snapshots, newest first. A missing snapshots table yields an empty list.
func (e *Engine) List(ctx context.Context) ([]View, error) {
	db := e.store.DB().WithContext(ctx)
	if !db.Migrator().HasTable(&model.Snapshot{}) {
		return []View{}, nil
	}

	var snaps []model.Snapshot
	if err := db.Order("snapshot_time DESC, id DESC").Limit(e.listLimit).Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	views := make([]View, 0, len(snaps))
	for _, s := range snaps {
		v, err := toView(s)
		if err != nil {
			e.log.Warn("skipping undecodable snapshot", zap.Int64("snapshot_id", s.ID), zap.Error(err))
			continue
		}
		views = append(views, v)
	}
	return views, nil
}

// Get returns one snapshot.
func (e *Engine) Get(ctx context.Context, id int64) (View, error) {
	snap, err := loadSnapshot(e.store.DB().WithContext(ctx), id)
	if err != nil {
		return View{}, err
	}
	v, err := toView(snap)
	if err != nil {
		return View{}, fmt.Errorf("%w: snapshot %d: %v", store.ErrIntegrity, id, err)
	}
	return v, nil
}

// Delete permanently removes one snapshot.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	res := e.store.DB().WithContext(ctx).Delete(&model.Snapshot{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete snapshot %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: snapshot %d", store.ErrNotFound, id)
	}
	e.log.Info("snapshot deleted", zap.Int64("snapshot_id", id))
	return nil
}

func loadSnapshot(db *gorm.DB, id int64) (model.Snapshot, error) {
	var snap model.Snapshot
	err := db.First(&snap, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return snap, fmt.Errorf("%w: snapshot %d", store.ErrNotFound, id)
	}
	if err != nil {
		return snap, fmt.Errorf("failed to load snapshot %d: %w", id, err)
	}
	return snap, nil
}

func toView(s model.Snapshot) (View, error) {
	p, err := Decode(s.Data)
	if err != nil {
		return View{}, err
	}
	return View{
		ID:           s.ID,
		SnapshotTime: s.SnapshotTime.UTC(),
		RecordsCount: s.RecordsCount,
		Version:      p.Version,
		Vehicles:     p.Vehicles,
	}, nil
}
