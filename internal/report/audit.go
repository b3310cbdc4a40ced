package report

import (
	"context"
	"fmt"
)

// AuditRow compares one stored counter with the open tickets behind it.
// Type is empty for the zone-wide counter.
type AuditRow struct {
	ZoneID   string `json:"zone"`
	ZoneName string `json:"zoneName"`
	Type     string `json:"type,omitempty"`
	Stored   int    `json:"stored"`
	Counted  int    `json:"counted"`
	Drift    int    `json:"drift"`
}

// AuditReport lists every counter; Drifted holds the ones that disagree.
type AuditReport struct {
	Consistent bool       `json:"consistent"`
	Rows       []AuditRow `json:"rows"`
	Drifted    []AuditRow `json:"drifted"`
}

// Audit recounts open tickets and compares them with the zone and zone/type counters.
// It only reports; nothing is repaired.
func (s *Service) Audit(ctx context.Context) (AuditReport, error) {
	db := s.store.DB().WithContext(ctx)

	var zoneRows []AuditRow
	err := db.Table("parking_zones AS z").
		Select("z.zone_id, z.zone_name, z.current_occupied AS stored, " +
			"(SELECT COUNT(*) FROM parking_tickets t WHERE t.zone_id = z.zone_id AND t.exit_time IS NULL) AS counted").
		Order("z.created_at, z.seq").
		Scan(&zoneRows).Error
	if err != nil {
		return AuditReport{}, fmt.Errorf("failed to audit zones: %w", err)
	}

	var typeRows []AuditRow
	err = db.Table("zone_type_limits AS l").
		Select("l.zone_id, z.zone_name, vt.type_name AS type, l.current_count AS stored, " +
			"(SELECT COUNT(*) FROM parking_tickets t JOIN vehicles v ON v.vehicle_id = t.vehicle_id " +
			"WHERE t.zone_id = l.zone_id AND v.vehicle_type_id = l.vehicle_type_id AND t.exit_time IS NULL) AS counted").
		Joins("JOIN parking_zones z ON z.zone_id = l.zone_id").
		Joins("JOIN vehicle_types vt ON vt.id = l.vehicle_type_id").
		Order("z.created_at, z.seq, vt.id").
		Scan(&typeRows).Error
	if err != nil {
		return AuditReport{}, fmt.Errorf("failed to audit zone type counts: %w", err)
	}

	report := AuditReport{Consistent: true, Rows: []AuditRow{}, Drifted: []AuditRow{}}
	for _, r := range append(zoneRows, typeRows...) {
		r.Drift = r.Stored - r.Counted
		report.Rows = append(report.Rows, r)
		if r.Drift != 0 {
			report.Consistent = false
			report.Drifted = append(report.Drifted, r)
		}
	}
	return report, nil
}
