package occupancy

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"parking-occupancy-backend/internal/parse"
	"parking-occupancy-backend/internal/store"
)

// Search statuses.
const (
	StatusInside = "INSIDE"
	StatusExited = "EXITED"
)

// SearchResult is the best ticket match for a plate fragment.
type SearchResult struct {
	Plate      string     `json:"vehicle"`
	ZoneID     string     `json:"zone"`
	ZoneName   string     `json:"zoneName"`
	TicketCode string     `json:"ticketCode"`
	EntryTime  time.Time  `json:"timeIn"`
	ExitTime   *time.Time `json:"timeOut"`
	Status     string     `json:"status"`
	Message    string     `json:"message"`
}

type searchRow struct {
	Plate      string
	ZoneID     string
	ZoneName   string
	TicketCode string
	EntryTime  time.Time
	ExitTime   *time.Time
}

// Search finds a vehicle by a fragment of its plate. A vehicle currently inside wins
// over the most recently exited one.
func (e *Engine) Search(ctx context.Context, query string) (SearchResult, error) {
	fragment, err := parse.NormalizePlate(query)
	if err != nil {
		return SearchResult{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	db := e.store.DB().WithContext(ctx)
	row, found, err := findTicket(db, fragment, "t.exit_time IS NULL", "t.entry_time DESC, t.id DESC")
	if err != nil {
		return SearchResult{}, err
	}
	if !found {
		row, found, err = findTicket(db, fragment, "t.exit_time IS NOT NULL", "t.exit_time DESC, t.id DESC")
		if err != nil {
			return SearchResult{}, err
		}
	}
	if !found {
		return SearchResult{}, fmt.Errorf("%w: no vehicle matching %s", store.ErrNotFound, fragment)
	}

	result := SearchResult{
		Plate:      row.Plate,
		ZoneID:     row.ZoneID,
		ZoneName:   row.ZoneName,
		TicketCode: row.TicketCode,
		EntryTime:  row.EntryTime.UTC(),
	}
	if row.ExitTime == nil {
		result.Status = StatusInside
		result.Message = fmt.Sprintf("Vehicle %s is inside %s (%s) since %s",
			row.Plate, row.ZoneName, row.ZoneID, result.EntryTime.Format(time.RFC3339))
	} else {
		exit := row.ExitTime.UTC()
		result.ExitTime = &exit
		result.Status = StatusExited
		result.Message = fmt.Sprintf("Vehicle %s left %s (%s) at %s",
			row.Plate, row.ZoneName, row.ZoneID, exit.Format(time.RFC3339))
	}
	return result, nil
}

func findTicket(db *gorm.DB, fragment, cond, order string) (searchRow, bool, error) {
	var rows []searchRow
	err := db.Table("parking_tickets AS t").
		Select("v.vehicle_number AS plate, t.zone_id, z.zone_name, t.ticket_code, t.entry_time, t.exit_time").
		Joins("JOIN vehicles v ON v.vehicle_id = t.vehicle_id").
		Joins("JOIN parking_zones z ON z.zone_id = t.zone_id").
		Where("v.vehicle_number LIKE ?", "%"+fragment+"%").
		Where(cond).
		Order(order).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return searchRow{}, false, fmt.Errorf("failed to search tickets: %w", err)
	}
	if len(rows) == 0 {
		return searchRow{}, false, nil
	}
	return rows[0], true, nil
}
