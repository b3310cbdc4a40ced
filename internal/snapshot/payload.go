package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// PayloadVersion is written into every new snapshot.
const PayloadVersion = 1

// Record is one vehicle inside at capture time. Zone identity is kept both as id and
// name because ids may be reassigned before a restore.
type Record struct {
	Plate    string `json:"plate"`
	Zone     string `json:"zone"`
	ZoneName string `json:"zone_name"`
	TimeIn   string `json:"timeIn"`
	Type     string `json:"type"`
}

// Payload is the serialized content of snapshots.data.
type Payload struct {
	Version  int      `json:"version"`
	Vehicles []Record `json:"vehicles"`
}

// Encode serializes a payload for storage.
func Encode(p Payload) (datatypes.JSON, error) {
	if p.Vehicles == nil {
		p.Vehicles = []Record{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot payload: %w", err)
	}
	return datatypes.JSON(b), nil
}

// Decode parses a stored payload. Rows written before versioning hold a bare JSON list
// of records; those decode as version 0.
func Decode(data []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Payload{Version: 0, Vehicles: []Record{}}, nil
	}

	if trimmed[0] == '[' {
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return Payload{}, fmt.Errorf("failed to decode legacy snapshot payload: %w", err)
		}
		return Payload{Version: 0, Vehicles: records}, nil
	}

	var p Payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Payload{}, fmt.Errorf("failed to decode snapshot payload: %w", err)
	}
	if p.Version > PayloadVersion {
		return Payload{}, fmt.Errorf("snapshot payload version %d is newer than supported version %d", p.Version, PayloadVersion)
	}
	if p.Vehicles == nil {
		p.Vehicles = []Record{}
	}
	return p, nil
}

// legacyLayouts are ISO-8601 forms without an offset; they are read as UTC.
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FormatTime renders a timestamp the way it crosses every boundary: RFC 3339 in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime reads a payload timestamp.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
