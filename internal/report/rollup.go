package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"parking-occupancy-backend/internal/model"
	"parking-occupancy-backend/internal/snapshot"
	"parking-occupancy-backend/internal/store"
)

type decodedSnapshot struct {
	ID      int64
	At      time.Time
	Records []snapshot.Record
}

func (s *Service) decode(snap model.Snapshot) (decodedSnapshot, bool) {
	p, err := snapshot.Decode(snap.Data)
	if err != nil {
		s.log.Warn("skipping undecodable snapshot", zap.Int64("snapshot_id", snap.ID), zap.Error(err))
		return decodedSnapshot{}, false
	}
	return decodedSnapshot{ID: snap.ID, At: snap.SnapshotTime.UTC(), Records: p.Vehicles}, true
}

// PeriodRollup is the per-zone vehicle total for one calendar period.
type PeriodRollup struct {
	Period    string `json:"period"`
	Zone      string `json:"zone"`
	Snapshots int    `json:"snapshots"`
	ClassCounts
	Total int `json:"total"`
}

// Monthly sums, per calendar month of year and per zone name, the vehicles of each type
// seen across that month's snapshots.
func (s *Service) Monthly(ctx context.Context, year int) ([]PeriodRollup, error) {
	if year < 1970 || year > 9999 {
		return nil, fmt.Errorf("%w: year %d is out of range", store.ErrValidation, year)
	}
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	acc := newRollup(func(t time.Time) string { return t.Format("2006-01") })
	if err := s.eachSnapshot(ctx, from, from.AddDate(1, 0, 0), acc.add); err != nil {
		return nil, err
	}
	return acc.rows(), nil
}

// Yearly is Monthly grouped by calendar year over every snapshot.
func (s *Service) Yearly(ctx context.Context) ([]PeriodRollup, error) {
	acc := newRollup(func(t time.Time) string { return t.Format("2006") })
	if err := s.eachSnapshot(ctx, time.Unix(0, 0).UTC(), s.now().AddDate(1, 0, 0), acc.add); err != nil {
		return nil, err
	}
	return acc.rows(), nil
}

type rollupKey struct{ period, zone string }

// rollupAcc folds snapshots one at a time, so its size follows the number of
// (period, zone) pairs rather than the number of snapshots.
type rollupAcc struct {
	period func(time.Time) string
	acc    map[rollupKey]*PeriodRollup
	last   map[rollupKey]int64
}

func newRollup(period func(time.Time) string) *rollupAcc {
	return &rollupAcc{
		period: period,
		acc:    map[rollupKey]*PeriodRollup{},
		last:   map[rollupKey]int64{},
	}
}

func (a *rollupAcc) add(snap decodedSnapshot) {
	p := a.period(snap.At)
	for _, rec := range snap.Records {
		class, err := model.ParseVehicleClass(rec.Type)
		if err != nil {
			continue
		}
		zone := rec.ZoneName
		if zone == "" {
			zone = rec.Zone
		}
		k := rollupKey{p, zone}
		r, ok := a.acc[k]
		if !ok {
			r = &PeriodRollup{Period: p, Zone: zone}
			a.acc[k] = r
		}
		if !ok || a.last[k] != snap.ID {
			a.last[k] = snap.ID
			r.Snapshots++
		}
		r.ClassCounts.add(class, 1)
	}
}

func (a *rollupAcc) rows() []PeriodRollup {
	out := make([]PeriodRollup, 0, len(a.acc))
	for _, r := range a.acc {
		r.Total = r.ClassCounts.Total()
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].Zone < out[j].Zone
	})
	return out
}
