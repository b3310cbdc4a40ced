package report

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"parking-occupancy-backend/internal/dbtest"
	"parking-occupancy-backend/internal/model"
	"parking-occupancy-backend/internal/occupancy"
	"parking-occupancy-backend/internal/snapshot"
	"parking-occupancy-backend/internal/store"
)

type fixture struct {
	db        *gorm.DB
	reports   *Service
	occupancy *occupancy.Engine
}

func newFixture(t *testing.T) fixture {
	gormDB := dbtest.New(t)
	s := store.NewGormStore(gormDB)
	log := zaptest.NewLogger(t)
	return fixture{
		db:        gormDB,
		reports:   NewService(s, log),
		occupancy: occupancy.NewEngine(s, snapshot.NewEngine(s, log, 20), log),
	}
}

func (f fixture) enter(t *testing.T, plate, vehicleType, zone string) occupancy.EnterResult {
	t.Helper()
	res, err := f.occupancy.Enter(context.Background(), occupancy.EnterRequest{Plate: plate, Type: vehicleType, ZoneID: zone})
	require.NoError(t, err)
	return res
}

// putSnapshot stores a snapshot taken at `at` holding n vehicles of class per zone name.
func putSnapshot(t *testing.T, gormDB *gorm.DB, at time.Time, zone string, class model.VehicleClass, n int) {
	t.Helper()
	records := make([]snapshot.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, snapshot.Record{
			Plate:    fmt.Sprintf("%s%s%d", zone, class, i),
			Zone:     "Z?",
			ZoneName: zone,
			TimeIn:   snapshot.FormatTime(at),
			Type:     string(class),
		})
	}
	data, err := snapshot.Encode(snapshot.Payload{Version: snapshot.PayloadVersion, Vehicles: records})
	require.NoError(t, err)
	require.NoError(t, gormDB.Create(&model.Snapshot{SnapshotTime: at, RecordsCount: n, Data: data}).Error)
}

func TestListZones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.Zone(t, f.db, 1, "North", dbtest.Limits{model.ClassLight: 10, model.ClassMedium: 4, model.ClassHeavy: 2})
	dbtest.Zone(t, f.db, 2, "South", dbtest.Limits{model.ClassLight: 3})
	require.NoError(t, f.db.Model(&model.Zone{}).Where("zone_id = ?", "Z2").Update("status", model.ZoneInactive).Error)

	f.enter(t, "CAR1", "Light", "Z1")
	f.enter(t, "VAN1", "Medium", "Z1")
	f.enter(t, "CAR2", "light", "Z1")

	zones, err := f.reports.ListZones(ctx, false)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, ZoneView{
		ID:       "Z1",
		Name:     "North",
		Capacity: 16,
		Occupied: 3,
		Status:   model.ZoneActive,
		Limits:   ClassCounts{Light: 10, Medium: 4, Heavy: 2},
		Stats:    ClassCounts{Light: 2, Medium: 1},
	}, zones[0])

	all, err := f.reports.ListZones(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Z2", all[1].ID)
	assert.Equal(t, model.ZoneInactive, all[1].Status)
}

func TestZoneVehicles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.Zone(t, f.db, 1, "North", dbtest.Limits{model.ClassLight: 10})
	dbtest.Zone(t, f.db, 2, "South", dbtest.Limits{model.ClassLight: 10})

	first := f.enter(t, "CAR1", "Light", "Z1")
	f.enter(t, "CAR2", "Light", "Z2")
	gone := f.enter(t, "CAR3", "Light", "Z1")
	_, err := f.occupancy.Exit(ctx, gone.TicketCode)
	require.NoError(t, err)

	vehicles, err := f.reports.ZoneVehicles(ctx, "Z1")
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, first.TicketCode, vehicles[0].TicketCode)
	assert.Equal(t, "CAR1", vehicles[0].Plate)
	assert.Equal(t, "Light", vehicles[0].Type)
	assert.Equal(t, model.TicketActive, vehicles[0].Status)
	assert.True(t, first.EntryTime.Equal(vehicles[0].EntryTime))

	_, err = f.reports.ZoneVehicles(ctx, "Z9")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.Zone(t, f.db, 1, "North", dbtest.Limits{model.ClassLight: 10})
	dbtest.Zone(t, f.db, 2, "South", dbtest.Limits{model.ClassHeavy: 10})

	gone := f.enter(t, "CAR1", "Light", "Z1")
	_, err := f.occupancy.Exit(ctx, gone.TicketCode)
	require.NoError(t, err)
	inside := f.enter(t, "CAR2", "Light", "Z1")
	f.enter(t, "TRUCK1", "Heavy", "Z2")

	rows, err := f.reports.History(ctx, HistoryFilter{ZoneID: "Z1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, inside.TicketCode, rows[0].TicketCode)
	assert.Equal(t, StatusInside, rows[0].Status)
	assert.Nil(t, rows[0].ExitTime)
	assert.Equal(t, gone.TicketCode, rows[1].TicketCode)
	assert.Equal(t, StatusExited, rows[1].Status)
	require.NotNil(t, rows[1].ExitTime)
	assert.Equal(t, "North", rows[1].ZoneName)

	rows, err = f.reports.History(ctx, HistoryFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	future := time.Now().UTC().Add(time.Hour)
	rows, err = f.reports.History(ctx, HistoryFilter{From: &future})
	require.NoError(t, err)
	assert.Empty(t, rows)

	past := future.Add(-48 * time.Hour)
	_, err = f.reports.History(ctx, HistoryFilter{From: &future, To: &past})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestMonthlyAndYearly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.reports.now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }

	putSnapshot(t, f.db, time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC), "North", model.ClassLight, 1)
	putSnapshot(t, f.db, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), "North", model.ClassLight, 2)
	putSnapshot(t, f.db, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), "South", model.ClassHeavy, 1)
	putSnapshot(t, f.db, time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC), "North", model.ClassLight, 1)
	putSnapshot(t, f.db, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), "North", model.ClassMedium, 1)

	monthly, err := f.reports.Monthly(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, []PeriodRollup{
		{Period: "2026-01", Zone: "North", Snapshots: 2, ClassCounts: ClassCounts{Light: 3}, Total: 3},
		{Period: "2026-01", Zone: "South", Snapshots: 1, ClassCounts: ClassCounts{Heavy: 1}, Total: 1},
		{Period: "2026-02", Zone: "North", Snapshots: 1, ClassCounts: ClassCounts{Medium: 1}, Total: 1},
	}, monthly)

	yearly, err := f.reports.Yearly(ctx)
	require.NoError(t, err)
	assert.Equal(t, []PeriodRollup{
		{Period: "2025", Zone: "North", Snapshots: 1, ClassCounts: ClassCounts{Light: 1}, Total: 1},
		{Period: "2026", Zone: "North", Snapshots: 3, ClassCounts: ClassCounts{Light: 3, Medium: 1}, Total: 4},
		{Period: "2026", Zone: "South", Snapshots: 1, ClassCounts: ClassCounts{Heavy: 1}, Total: 1},
	}, yearly)

	_, err = f.reports.Monthly(ctx, 0)
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestRollups_StreamSnapshotsInBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.reports.now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }
	f.reports.batchSize = 2

	for day := 1; day <= 5; day++ {
		putSnapshot(t, f.db, time.Date(2026, 3, day, 9, 0, 0, 0, time.UTC), "North", model.ClassLight, day)
	}
	putSnapshot(t, f.db, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), "South", model.ClassHeavy, 2)
	require.NoError(t, f.db.Create(&model.Snapshot{
		SnapshotTime: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Data:         []byte(`not json`),
	}).Error)

	rec := dbtest.Record(t, f.db)
	yearly, err := f.reports.Yearly(ctx)
	require.NoError(t, err)
	assert.Equal(t, []PeriodRollup{
		{Period: "2026", Zone: "North", Snapshots: 5, ClassCounts: ClassCounts{Light: 15}, Total: 15},
		{Period: "2026", Zone: "South", Snapshots: 1, ClassCounts: ClassCounts{Heavy: 2}, Total: 2},
	}, yearly)
	assert.GreaterOrEqual(t, rec.Count("query", "snapshots"), 4, "seven rows read two at a time")

	monthly, err := f.reports.Monthly(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, monthly, 2)
	assert.Equal(t, 5, monthly[0].Snapshots)
}

func TestRollups_MissingSnapshotTable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Migrator().DropTable(&model.Snapshot{}))

	monthly, err := f.reports.Monthly(context.Background(), 2026)
	require.NoError(t, err)
	assert.Empty(t, monthly)

	preds, err := f.reports.Predictions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestPredictions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	f.reports.now = func() time.Time { return now }

	dbtest.Zone(t, f.db, 1, "North", dbtest.Limits{model.ClassLight: 10})
	dbtest.Zone(t, f.db, 2, "Closed", dbtest.Limits{model.ClassLight: 10})
	require.NoError(t, f.db.Model(&model.Zone{}).Where("zone_id = ?", "Z1").Update("current_occupied", 5).Error)
	require.NoError(t, f.db.Model(&model.Zone{}).Where("zone_id = ?", "Z2").Update("status", model.ZoneInactive).Error)

	putSnapshot(t, f.db, now.AddDate(0, 0, -15), "North", model.ClassLight, 10) // outside the window
	putSnapshot(t, f.db, time.Date(2026, 10, 10, 8, 0, 0, 0, time.UTC), "North", model.ClassLight, 2)
	putSnapshot(t, f.db, time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC), "North", model.ClassLight, 8)
	putSnapshot(t, f.db, time.Date(2026, 10, 15, 18, 0, 0, 0, time.UTC), "North", model.ClassLight, 4)

	preds, err := f.reports.Predictions(ctx)
	require.NoError(t, err)
	require.Len(t, preds, 1)

	p := preds[0]
	assert.Equal(t, "Z1", p.ZoneID)
	assert.Equal(t, 0.8, p.PeakRatio)
	assert.Equal(t, 0.6, p.Trend)
	assert.Equal(t, 0.5, p.LiveRatio)
	assert.Equal(t, 68.0, p.Score)
	assert.Equal(t, ConfidenceMedium, p.Confidence)
	require.Len(t, p.Hourly, 24)
	assert.Equal(t, HourPoint{Hour: 0, Score: 27.2}, p.Hourly[0])
	assert.Equal(t, HourPoint{Hour: 23, Score: 68}, p.Hourly[23])
}

func TestPredictionHelpers(t *testing.T) {
	assert.Equal(t, ConfidenceLow, confidence(39.99))
	assert.Equal(t, ConfidenceMedium, confidence(40))
	assert.Equal(t, ConfidenceHigh, confidence(70))

	// A sharply falling trend cannot push the score below zero.
	z := model.Zone{ZoneID: "Z1", ZoneName: "North", TotalCapacity: 0}
	p := predict(z, nil)
	assert.Zero(t, p.Score)
	assert.Equal(t, ConfidenceLow, p.Confidence)
	assert.Equal(t, -1.0, clamp(-3, -1, 1))
}

func TestAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.Zone(t, f.db, 1, "North", dbtest.Limits{model.ClassLight: 10, model.ClassHeavy: 2})
	f.enter(t, "CAR1", "Light", "Z1")
	f.enter(t, "TRUCK1", "Heavy", "Z1")

	report, err := f.reports.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Len(t, report.Rows, 4)
	assert.Empty(t, report.Drifted)

	require.NoError(t, f.db.Model(&model.ZoneTypeLimit{}).
		Where("zone_id = ? AND current_count = 1", "Z1").
		Update("current_count", 3).Error)

	report, err = f.reports.Audit(ctx)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	require.Len(t, report.Drifted, 2)
	for _, r := range report.Drifted {
		assert.Equal(t, 3, r.Stored)
		assert.Equal(t, 1, r.Counted)
		assert.Equal(t, 2, r.Drift)
		assert.NotEmpty(t, r.Type)
	}
}
