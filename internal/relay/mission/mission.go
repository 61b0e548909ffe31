// Package mission decodes the mission payload carried by WAYPOINTS commands.
package mission

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autopeer-io/flightrelay/internal/relay/core/model"
)

// DefaultMaxItems bounds a single upload.
const DefaultMaxItems = 512

// ErrParse marks a malformed mission payload. The wrapped message is shown
// to the client unchanged.
var ErrParse = errors.New("invalid mission payload")

// Parser validates mission payloads.
type Parser struct {
	MaxItems int
}

// NewParser returns a parser accepting at most maxItems records.
// Non-positive values fall back to DefaultMaxItems.
func NewParser(maxItems int) *Parser {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Parser{MaxItems: maxItems}
}

// Parse decodes payload with the default limits.
func Parse(payload []byte) ([]model.MissionItem, error) {
	return NewParser(DefaultMaxItems).Parse(payload)
}

// Parse decodes a JSON array of {"lat","lon","alt","type"} records into
// mission items, preserving order.
func (p *Parser) Parse(payload []byte) ([]model.MissionItem, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, parseErr("%s", err.Error())
	}
	if records == nil {
		return nil, parseErr("mission must be a JSON array")
	}
	if p.MaxItems > 0 && len(records) > p.MaxItems {
		return nil, parseErr("mission has %d items, limit is %d", len(records), p.MaxItems)
	}

	items := make([]model.MissionItem, 0, len(records))
	for i, raw := range records {
		item, err := parseRecord(raw)
		if err != nil {
			return nil, parseErr("record %d: %s", i, err.Error())
		}
		items = append(items, item)
	}

	return items, nil
}

func parseRecord(raw json.RawMessage) (model.MissionItem, error) {
	var item model.MissionItem

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return item, errors.New("not an object")
	}

	var err error
	if item.Latitude, err = number(fields, "lat"); err != nil {
		return item, err
	}
	if item.Latitude < -90 || item.Latitude > 90 {
		return item, fmt.Errorf(`field "lat" must be within [-90, 90], got %v`, item.Latitude)
	}
	if item.Longitude, err = number(fields, "lon"); err != nil {
		return item, err
	}
	if item.Longitude < -180 || item.Longitude > 180 {
		return item, fmt.Errorf(`field "lon" must be within [-180, 180], got %v`, item.Longitude)
	}
	if item.Altitude, err = number(fields, "alt"); err != nil {
		return item, err
	}

	item.Kind = model.ItemWaypoint
	if rawKind, ok := fields["type"]; ok && !isNull(rawKind) {
		var s string
		if err := json.Unmarshal(rawKind, &s); err != nil {
			return item, errors.New(`field "type" must be a string`)
		}
		// Unrecognized kinds fall back to WAYPOINT.
		item.Kind, _ = model.ParseItemKind(s)
	}

	return item, nil
}

func number(fields map[string]json.RawMessage, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return 0, fmt.Errorf("missing required field %q", key)
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("field %q must be a number", key)
	}
	return f, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func parseErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}
