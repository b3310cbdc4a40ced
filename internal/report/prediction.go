package report

import (
	"context"
	"fmt"
	"math"
	"sort"

	"parking-occupancy-backend/internal/model"
)

const (
	predictionWindowDays = 7
	peakWeight           = 50
	trendWeight          = 30
	liveWeight           = 20
	mediumThreshold      = 40
	highThreshold        = 70
)

// Confidence labels of a congestion score.
const (
	ConfidenceLow    = "LOW"
	ConfidenceMedium = "MEDIUM"
	ConfidenceHigh   = "HIGH"
)

// HourPoint is one point of the synthetic hourly curve.
type HourPoint struct {
	Hour  int     `json:"hour"`
	Score float64 `json:"score"`
}

// Prediction is the congestion heuristic for one zone.
type Prediction struct {
	ZoneID     string      `json:"zone"`
	ZoneName   string      `json:"zoneName"`
	Score      float64     `json:"score"`
	Confidence string      `json:"confidence"`
	PeakRatio  float64     `json:"peakRatio"`
	Trend      float64     `json:"trend"`
	LiveRatio  float64     `json:"liveRatio"`
	Hourly     []HourPoint `json:"hourly"`
}

// Predictions blends the last week's daily peaks, their trend and the live occupancy
// of every active zone into a 0-100 score.
func (s *Service) Predictions(ctx context.Context) ([]Prediction, error) {
	var zones []model.Zone
	err := s.store.DB().WithContext(ctx).
		Where("status = ?", model.ZoneActive).
		Order("created_at, seq").
		Find(&zones).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load zones: %w", err)
	}

	now := s.now()
	snaps, err := s.snapshotsBetween(ctx, now.AddDate(0, 0, -predictionWindowDays), now.Add(1))
	if err != nil {
		return nil, err
	}

	out := make([]Prediction, 0, len(zones))
	for _, z := range zones {
		out = append(out, predict(z, snaps))
	}
	return out, nil
}

func predict(z model.Zone, snaps []decodedSnapshot) Prediction {
	peaks := dailyPeaks(z, snaps)

	days := make([]string, 0, len(peaks))
	for d := range peaks {
		days = append(days, d)
	}
	sort.Strings(days)

	var peak, trend float64
	for _, d := range days {
		peak = math.Max(peak, peaks[d])
	}
	if len(days) > 1 {
		trend = clamp(peaks[days[len(days)-1]]-peaks[days[0]], -1, 1)
	}
	live := ratio(z.CurrentOccupied, z.TotalCapacity)

	score := round2(clamp(peakWeight*peak+trendWeight*trend+liveWeight*live, 0, 100))
	return Prediction{
		ZoneID:     z.ZoneID,
		ZoneName:   z.ZoneName,
		Score:      score,
		Confidence: confidence(score),
		PeakRatio:  round2(peak),
		Trend:      round2(trend),
		LiveRatio:  round2(live),
		Hourly:     hourlyCurve(score),
	}
}

// dailyPeaks maps each UTC day to the highest occupancy ratio of the zone seen in that day's snapshots.
func dailyPeaks(z model.Zone, snaps []decodedSnapshot) map[string]float64 {
	peaks := map[string]float64{}
	for _, snap := range snaps {
		n := 0
		for _, rec := range snap.Records {
			if rec.ZoneName == z.ZoneName || (rec.ZoneName == "" && rec.Zone == z.ZoneID) {
				n++
			}
		}
		day := snap.At.Format("2006-01-02")
		peaks[day] = math.Max(peaks[day], ratio(n, z.TotalCapacity))
	}
	return peaks
}

// hourlyCurve interpolates linearly from 40% of score at hour 0 to score at hour 23.
func hourlyCurve(score float64) []HourPoint {
	points := make([]HourPoint, 24)
	for h := range points {
		points[h] = HourPoint{Hour: h, Score: round2(0.4*score + 0.6*score*float64(h)/23)}
	}
	return points
}

func confidence(score float64) string {
	switch {
	case score < mediumThreshold:
		return ConfidenceLow
	case score < highThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}

func ratio(n, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(n) / float64(capacity)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
