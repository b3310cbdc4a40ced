// Package dbtest opens throwaway sqlite databases for package tests.
package dbtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"parking-occupancy-backend/internal/db"
	"parking-occupancy-backend/internal/model"
)

// New returns a migrated, seeded, in-memory database private to t.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dialector, err := db.Dialector("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)

	gormDB, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	// A single connection keeps the in-memory database alive and serializes transactions.
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	require.NoError(t, db.SeedVehicleTypes(context.Background(), gormDB))
	return gormDB
}

// Limits is a per-class max_vehicles set.
type Limits map[model.VehicleClass]int

// Zone inserts a zone and its type limits directly, bypassing the occupancy engine.
// seq drives both the Z<seq> id and the creation order.
func Zone(t testing.TB, gormDB *gorm.DB, seq int, name string, limits Limits) model.Zone {
	t.Helper()

	var types []model.VehicleType
	require.NoError(t, gormDB.Find(&types).Error)

	total := 0
	for _, n := range limits {
		total += n
	}
	zone := model.Zone{
		ZoneID:        fmt.Sprintf("Z%d", seq),
		Seq:           seq,
		ZoneName:      name,
		TotalCapacity: total,
		Status:        model.ZoneActive,
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, seq, 0, time.UTC),
	}
	require.NoError(t, gormDB.Omit("Limits").Create(&zone).Error)

	for _, vt := range types {
		class, err := vt.Class()
		require.NoError(t, err)
		limit := model.ZoneTypeLimit{ZoneID: zone.ZoneID, VehicleTypeID: vt.ID, MaxVehicles: limits[class]}
		require.NoError(t, gormDB.Omit("VehicleType").Create(&limit).Error)
	}
	return zone
}

// ZoneCounters reads back a zone's occupancy counters.
func ZoneCounters(t testing.TB, gormDB *gorm.DB, zoneID string) (occupied int, perClass map[model.VehicleClass]int) {
	t.Helper()

	var zone model.Zone
	require.NoError(t, gormDB.Preload("Limits.VehicleType").Where("zone_id = ?", zoneID).First(&zone).Error)

	perClass = make(map[model.VehicleClass]int)
	for _, l := range zone.Limits {
		class, err := l.VehicleType.Class()
		require.NoError(t, err)
		perClass[class] = l.CurrentCount
	}
	return zone.CurrentOccupied, perClass
}

// AssertCountersMatchTickets fails t unless every zone and (zone, type) counter equals
// the number of open tickets behind it.
func AssertCountersMatchTickets(t testing.TB, gormDB *gorm.DB) {
	t.Helper()

	var zones []model.Zone
	require.NoError(t, gormDB.Find(&zones).Error)
	for _, z := range zones {
		var open int64
		require.NoError(t, gormDB.Model(&model.Ticket{}).
			Where("zone_id = ? AND exit_time IS NULL", z.ZoneID).Count(&open).Error)
		require.Equal(t, int(open), z.CurrentOccupied, "zone %s occupied counter", z.ZoneID)
	}

	var limits []model.ZoneTypeLimit
	require.NoError(t, gormDB.Find(&limits).Error)
	for _, l := range limits {
		var open int64
		require.NoError(t, gormDB.Model(&model.Ticket{}).
			Joins("JOIN vehicles ON vehicles.vehicle_id = parking_tickets.vehicle_id").
			Where("parking_tickets.zone_id = ? AND vehicles.vehicle_type_id = ? AND parking_tickets.exit_time IS NULL",
				l.ZoneID, l.VehicleTypeID).
			Count(&open).Error)
		require.Equal(t, int(open), l.CurrentCount, "zone %s type %d counter", l.ZoneID, l.VehicleTypeID)
	}
}

// Statement is one executed gorm operation as seen by a Recorder.
type Statement struct {
	Op     string // query, create, update, delete
	Table  string
	Locked bool // carries a FOR UPDATE clause
}

// Recorder collects the statements run through a database in execution order.
// sqlite drops row-lock clauses from the SQL, so tests check lock order here.
type Recorder struct {
	mu    sync.Mutex
	stmts []Statement
}

// Record installs a Recorder on gormDB.
func Record(t testing.TB, gormDB *gorm.DB) *Recorder {
	t.Helper()

	r := &Recorder{}
	hook := func(op string) func(*gorm.DB) {
		return func(db *gorm.DB) {
			_, locked := db.Statement.Clauses[clause.Locking{}.Name()]
			r.mu.Lock()
			r.stmts = append(r.stmts, Statement{Op: op, Table: db.Statement.Table, Locked: locked})
			r.mu.Unlock()
		}
	}
	cb := gormDB.Callback()
	require.NoError(t, cb.Query().After("gorm:query").Register("dbtest:record_query", hook("query")))
	require.NoError(t, cb.Create().After("gorm:create").Register("dbtest:record_create", hook("create")))
	require.NoError(t, cb.Update().After("gorm:update").Register("dbtest:record_update", hook("update")))
	require.NoError(t, cb.Delete().After("gorm:delete").Register("dbtest:record_delete", hook("delete")))
	return r
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = nil
}

// Statements returns a copy of the recorded statements.
func (r *Recorder) Statements() []Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Statement(nil), r.stmts...)
}

// Index returns the position of the first statement matching op, table and locked, or -1.
func (r *Recorder) Index(op, table string, locked bool) int {
	for i, s := range r.Statements() {
		if s.Op == op && s.Table == table && s.Locked == locked {
			return i
		}
	}
	return -1
}

// Count returns how many statements match op and table.
func (r *Recorder) Count(op, table string) int {
	n := 0
	for _, s := range r.Statements() {
		if s.Op == op && s.Table == table {
			n++
		}
	}
	return n
}
