package occupancy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"parking-occupancy-backend/internal/dbtest"
	"parking-occupancy-backend/internal/model"
	"parking-occupancy-backend/internal/snapshot"
	"parking-occupancy-backend/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *snapshot.Engine, *gorm.DB) {
	gormDB := dbtest.New(t)
	s := store.NewGormStore(gormDB)
	log := zaptest.NewLogger(t)
	snapshots := snapshot.NewEngine(s, log, 20)
	return NewEngine(s, snapshots, log), snapshots, gormDB
}

func TestEnter_AdmitsVehicleAndCaptures(t *testing.T) {
	engine, snapshots, gormDB := newTestEngine(t)
	ctx := context.Background()
	dbtest.Zone(t, gormDB, 1, "North", dbtest.Limits{model.ClassLight: 3, model.ClassHeavy: 1})

	res, err := engine.Enter(ctx, EnterRequest{Plate: "ka-01 ab 1234", Type: "light"})
	require.NoError(t, err)
	assert.Equal(t, "KA01AB1234", res.Plate)
	assert.Equal(t, model.ClassLight, res.Type)
	assert.Equal(t, "Z1", res.ZoneID)
	assert.Equal(t, "North", res.ZoneName)
	assert.Regexp(t, `^T\d{14}-[0-9A-F]{32}$`, res.TicketCode)

	occupied, perClass := dbtest.ZoneCounters(t, gormDB, "Z1")
	assert.Equal(t, 1, occupied)
	assert.Equal(t, 1, perClass[model.ClassLight])
	dbtest.AssertCountersMatchTickets(t, gormDB)

	view, err := snapshots.Get(ctx, res.SnapshotID)
	require.NoError(t, err)
	require.Len(t, view.Vehicles, 1)
	assert.Equal(t, "KA01AB1234", view.Vehicles[0].Plate)
	assert.Equal(t, snapshot.FormatTime(res.EntryTime), view.Vehicles[0].TimeIn)
}

func TestEnter_Rejections(t *testing.T) {
	engine, _, gormDB := newTestEngine(t)
	ctx := context.Background()
	dbtest.Zone(t, gormDB, 1, "North", dbtest.Limits{model.ClassLight: 3})
	dbtest.Zone(t, gormDB, 2, "Closed", dbtest.Limits{model.ClassLight: 3})
	require.NoError(t, gormDB.Model(&model.Zone{}).Where("zone_id = ?", "Z2").Update("status", model.ZoneInactive).Error)

	testCases := []struct {
		name    string
		req     EnterRequest
		wantErr error
	}{
		{"Missing plate", EnterRequest{Plate: " ", Type: "Light"}, store.ErrValidation},
		{"Unknown type", EnterRequest{Plate: "KA01", Type: "Bus"}, store.ErrValidation},
		{"Missing type", EnterRequest{Plate: "KA01"}, store.ErrValidation},
		{"Unknown zone", EnterRequest{Plate: "KA01", Type: "Light", ZoneID: "Z9"}, store.ErrNotFound},
		{"Inactive zone", EnterRequest{Plate: "KA01", Type: "Light", ZoneID: "Z2"}, store.ErrValidation},
		{"No limit for type", EnterRequest{Plate: "KA01", Type: "Heavy", ZoneID: "Z1"}, store.ErrCapacity},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Enter(ctx, tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	var tickets int64
	require.NoError(t, gormDB.Model(&model.Ticket{}).Count(&tickets).Error)
	assert.Zero(t, tickets)
}

func TestEnter_SamePlateTwiceConflicts(t *testing.T) {
	engine, _, gormDB := newTestEngine(t)
	ctx := context.Background()
	dbtest.Zone(t, gormDB, 1, "North", dbtest.Limits{model.ClassLight: 3, model.ClassMedium: 3})

	first, err := engine.Enter(ctx, EnterRequest{Plate: "KA01AB1234", Type: "Light"})
	require.NoError(t, err)

	_, err = engine.Enter(ctx, EnterRequest{Plate: "ka 01 ab-1234", Type: "Medium"})
	assert.ErrorIs(t, err, store.ErrConflict)

	var open []model.Ticket
	require.NoError(t, gormDB.Where("exit_time IS NULL").Find(&open).Error)
	require.Len(t, open, 1)
	assert.Equal(t, first.TicketCode, open[0].TicketCode)
	dbtest.AssertCountersMatchTickets(t, gormDB)

	// Once the vehicle has left it may come back, even as another type.
	_, err = engine.Exit(ctx, first.TicketCode)
	require.NoError(t, err)
	again, err := engine.Enter(ctx, EnterRequest{Plate: "KA01AB1234", Type: "Medium"})
	require.NoError(t, err)
	assert.Equal(t, model.ClassMedium, again.Type)
	dbtest.AssertCountersMatchTickets(t, gormDB)
}

func TestEnter_HeavyLimitBoundary(t *testing.T) {
	engine, _, gormDB := newTestEngine(t)
	ctx := context.Background()
	dbtest.Zone(t, gormDB, 1, "Depot", dbtest.Limits{model.ClassLight: 2, model.ClassHeavy: 2})

	for _, plate := range []string{"TRUCK1", "TRUCK2"} {
		_, err := engine.Enter(ctx, EnterRequest{Plate: plate, Type: "Heavy", ZoneID: "Z1"})
		require.NoError(t, err)
	}

	_, err := engine.Enter(ctx, EnterRequest{Plate: "TRUCK3", Type: "Heavy", ZoneID: "Z1"})
	assert.ErrorIs(t, err, store.ErrCapacity)
	_, err = engine.Enter(ctx, EnterRequest{Plate: "TRUCK3", Type: "Heavy"})
	assert.ErrorIs(t, err, store.ErrCapacity)

	_, err = engine.Enter(ctx, EnterRequest{Plate: "CAR1", Type: "Light", ZoneID: "Z1"})
	assert.NoError(t, err)

	occupied, perClass := dbtest.ZoneCounters(t, gormDB, "Z1")
	assert.Equal(t, 3, occupied)
	assert.Equal(t, 2, perClass[model.ClassHeavy])
	assert.Equal(t, 1, perClass[model.ClassLight])
	dbtest.AssertCountersMatchTickets(t, gormDB)
}

func TestEnter_ZoneTotalCapsTypeHeadroom(t *testing.T) {
	engine, _, gormDB := newTestEngine(t)
	ctx := context.Background()
	dbtest.Zone(t, gormDB, 1, "North", dbtest.Limits{model.ClassLight: 5})
	require.NoError(t, gormDB.Model(&model.Zone{}).Where("zone_id = ?", "Z1").Update("total_capacity", 1).Error)

	_, err := engine.Enter(ctx, EnterRequest{Plate: "CAR1", Type: "Light", ZoneID: "Z1"})
	require.NoError(t, err)
	_, err = engine.Enter(ctx, EnterRequest{Plate: "CAR2", Type: "Light", ZoneID: "Z1"})
	assert.ErrorIs(t, err, store.ErrCapacity)
}

func TestEnter_PicksEarliestZoneWithHeadroom(t *testing.T) {
	engine, _, gormDB := newTestEngine(t)
	ctx := context.Background()
	dbtest.Zone(t, gormDB, 1, "North", dbtest.Limits{model.ClassLight: 1, model.ClassHeavy: 1})
	dbtest.Zone(t, gormDB, 2, "South", dbtest.Limits{model.ClassLight: 5})
	dbtest.Zone(t, gormDB, 3, "East", dbtest.Limits{model.ClassLight: 5, model.ClassHeavy: 5})

	tickets := map[string]string{}
	zoneOf := func(plate, vehicleType string) string {
		res, err := engine.Enter(ctx, EnterRequest{Plate: plate, Type: vehicleType})
		require.NoError(t, err)
		tickets[plate] = res.TicketCode
		return res.ZoneID
	}

	assert.Equal(t, "Z1", zoneOf("CAR1", "Light"))
	assert.Equal(t, "Z2", zoneOf("CAR2", "Light"))
	assert.Equal(t, "Z1", zoneOf("TRUCK1", "Heavy"))
	assert.Equal(t, "Z3", zoneOf("TRUCK2", "Heavy"))

	_, err := engine.Exit(ctx, tickets["CAR2"])
	require.NoError(t, err)
	require.NoError(t, engine.DeactivateZone(ctx, "Z2"))
	assert.Equal(t, "Z3", zoneOf("CAR3", "Light"))
	dbtest.AssertCountersMatchTickets(t, gormDB)
}

func TestEnter_ConcurrentCallersRespectLimit(t *testing.T) {
	engine, _, gormDB := newTestEngine(t)
	ctx := context.Background()
	dbtest.Zone(t, gormDB, 1, "Depot", dbtest.Limits{model.ClassHeavy: 2})

	const callers = 6
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Enter(ctx, EnterRequest{Plate: "TRUCK" + string(rune('A'+i)), Type: "Heavy"})
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
			continue
		}
		assert.ErrorIs(t, err, store.ErrCapacity)
	}
	assert.Equal(t, 2, admitted)
	dbtest.AssertCountersMatchTickets(t, gormDB)
}

func TestExit_FreesCapacity(t *testing.T) {
	engine, _, gormDB := newTestEngine(t)
	ctx := context.Background()
	dbtest.Zone(t, gormDB, 1, "Depot", dbtest.Limits{model.ClassHeavy: 1})

	first, err := engine.Enter(ctx, EnterRequest{Plate: "TRUCK1", Type: "Heavy"})
	require.NoError(t, err)
	_, err = engine.Enter(ctx, EnterRequest{Plate: "TRUCK2", Type: "Heavy"})
	require.ErrorIs(t, err, store.ErrCapacity)

	exited, err := engine.Exit(ctx, " "+first.TicketCode+" ")
	require.NoError(t, err)
	assert.Equal(t, "TRUCK1", exited.Plate)
	assert.Equal(t, "Z1", exited.ZoneID)
	assert.False(t, exited.ExitTime.Before(exited.EntryTime))

	var ticket model.Ticket
	require.NoError(t, gormDB.Where("ticket_code = ?", first.TicketCode).First(&ticket).Error)
	assert.Equal(t, model.TicketExited, ticket.Status)
	require.NotNil(t, ticket.ExitTime)

	_, err = engine.Enter(ctx, EnterRequest{Plate: "TRUCK2", Type: "Heavy"})
	assert.NoError(t, err)
	dbtest.AssertCountersMatchTickets(t, gormDB)
}

func TestExit_Rejections(t *testing.T) {
	engine, _, gormDB := newTestEngine(t)
	ctx := context.Background()
	dbtest.Zone(t, gormDB, 1, "North", dbtest.Limits{model.ClassLight: 2})

	_, err := engine.Exit(ctx, "")
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = engine.Exit(ctx, "T20260101000000-ABCDEF")
	assert.ErrorIs(t, err, store.ErrNotFound)

	res, err := engine.Enter(ctx, EnterRequest{Plate: "CAR1", Type: "Light"})
	require.NoError(t, err)
	_, err = engine.Exit(ctx, res.TicketCode)
	require.NoError(t, err)
	_, err = engine.Exit(ctx, res.TicketCode)
	assert.ErrorIs(t, err, store.ErrNotFound)
	dbtest.AssertCountersMatchTickets(t, gormDB)
}

func TestExit_DriftedCounterAborts(t *testing.T) {
	engine, _, gormDB := newTestEngine(t)
	ctx := context.Background()
	dbtest.Zone(t, gormDB, 1, "North", dbtest.Limits{model.ClassLight: 2})

	res, err := engine.Enter(ctx, EnterRequest{Plate: "CAR1", Type: "Light"})
	require.NoError(t, err)
	require.NoError(t, gormDB.Model(&model.ZoneTypeLimit{}).Where("zone_id = ?", "Z1").Update("current_count", 0).Error)

	_, err = engine.Exit(ctx, res.TicketCode)
	assert.ErrorIs(t, err, store.ErrIntegrity)

	var ticket model.Ticket
	require.NoError(t, gormDB.Where("ticket_code = ?", res.TicketCode).First(&ticket).Error)
	assert.True(t, ticket.IsOpen(), "rollback keeps the ticket open")
	occupied, _ := dbtest.ZoneCounters(t, gormDB, "Z1")
	assert.Equal(t, 1, occupied, "rollback restores the zone counter")
}

func TestExit_ClosesRestoredTicket(t *testing.T) {
	engine, snapshots, gormDB := newTestEngine(t)
	ctx := context.Background()
	dbtest.Zone(t, gormDB, 1, "North", dbtest.Limits{model.ClassLight: 2})

	res, err := engine.Enter(ctx, EnterRequest{Plate: "CAR1", Type: "Light"})
	require.NoError(t, err)
	restored, err := snapshots.Restore(ctx, res.SnapshotID)
	require.NoError(t, err)
	require.Len(t, restored.Restored, 1)

	out, err := engine.Exit(ctx, restored.Restored[0].TicketCode)
	require.NoError(t, err)
	assert.True(t, res.EntryTime.Equal(out.EntryTime))
	dbtest.AssertCountersMatchTickets(t, gormDB)
}

func TestSearch(t *testing.T) {
	engine, _, gormDB := newTestEngine(t)
	ctx := context.Background()
	dbtest.Zone(t, gormDB, 1, "North", dbtest.Limits{model.ClassLight: 5})

	clock := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	gone, err := engine.Enter(ctx, EnterRequest{Plate: "KA01AB1234", Type: "Light"})
	require.NoError(t, err)
	_, err = engine.Exit(ctx, gone.TicketCode)
	require.NoError(t, err)

	t.Run("Exited vehicle", func(t *testing.T) {
		res, err := engine.Search(ctx, "ab-12")
		require.NoError(t, err)
		assert.Equal(t, StatusExited, res.Status)
		assert.Equal(t, gone.TicketCode, res.TicketCode)
		require.NotNil(t, res.ExitTime)
		assert.Equal(t, "Vehicle KA01AB1234 left North (Z1) at 2026-10-16T08:02:00Z", res.Message)
	})

	inside, err := engine.Enter(ctx, EnterRequest{Plate: "KA01AB1234", Type: "Light"})
	require.NoError(t, err)

	t.Run("Inside wins over history", func(t *testing.T) {
		res, err := engine.Search(ctx, "ka01ab1234")
		require.NoError(t, err)
		assert.Equal(t, StatusInside, res.Status)
		assert.Equal(t, inside.TicketCode, res.TicketCode)
		assert.Nil(t, res.ExitTime)
		assert.Equal(t, "North", res.ZoneName)
		assert.Equal(t, time.UTC, res.EntryTime.Location())
	})

	t.Run("No match", func(t *testing.T) {
		_, err := engine.Search(ctx, "ZZ99")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Blank query", func(t *testing.T) {
		_, err := engine.Search(ctx, " - ")
		assert.ErrorIs(t, err, store.ErrValidation)
	})
}

func TestEnterExit_LockZoneBeforeTickets(t *testing.T) {
	engine, _, gormDB := newTestEngine(t)
	ctx := context.Background()
	dbtest.Zone(t, gormDB, 1, "North", dbtest.Limits{model.ClassLight: 2})
	rec := dbtest.Record(t, gormDB)

	for _, hint := range []string{"Z1", ""} {
		rec.Reset()
		res, err := engine.Enter(ctx, EnterRequest{Plate: "CAR" + hint, Type: "Light", ZoneID: hint})
		require.NoError(t, err)

		zoneLock := rec.Index("query", "parking_zones", true)
		plateCheck := rec.Index("query", "parking_tickets", false)
		require.NotEqual(t, -1, zoneLock, "enter with hint %q locks its zone", hint)
		require.NotEqual(t, -1, plateCheck)
		assert.Less(t, zoneLock, plateCheck, "open-ticket check runs under the zone lock")

		rec.Reset()
		_, err = engine.Exit(ctx, res.TicketCode)
		require.NoError(t, err)

		zoneLock = rec.Index("query", "parking_zones", true)
		ticketLock := rec.Index("query", "parking_tickets", true)
		require.NotEqual(t, -1, zoneLock)
		require.NotEqual(t, -1, ticketLock)
		assert.Less(t, zoneLock, ticketLock, "exit locks the zone before the ticket")
	}
	dbtest.AssertCountersMatchTickets(t, gormDB)
}
