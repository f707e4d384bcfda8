package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type fieldKind int

const (
	textField fieldKind = iota
	intField
	floatField
	timeField
)

// field is one writable attribute, exposed as an --flag on "add".
type field struct {
	name     string
	kind     fieldKind
	required bool
	usage    string
}

func (f field) flag() string { return strings.ReplaceAll(f.name, "_", "-") }

// entity describes one API collection as seen from the command line.
type entity struct {
	command    string
	collection string
	short      string
	fields     []field
	columns    []string
}

var entities = []entity{
	{
		command:    "users",
		collection: "users",
		short:      "Household members",
		fields: []field{
			{name: "name", kind: textField, required: true, usage: "user name"},
			{name: "house_area", kind: floatField, usage: "house area in square metres"},
		},
		columns: []string{"id", "name", "house_area"},
	},
	{
		command:    "rooms",
		collection: "rooms",
		short:      "Rooms that hold devices",
		fields: []field{
			{name: "name", kind: textField, required: true, usage: "room name"},
		},
		columns: []string{"id", "name"},
	},
	{
		command:    "devices",
		collection: "devices",
		short:      "Smart devices",
		fields: []field{
			{name: "name", kind: textField, required: true, usage: "device name"},
			{name: "type", kind: textField, usage: "device type, e.g. lighting"},
			{name: "room_id", kind: intField, usage: "room the device is placed in"},
		},
		columns: []string{"id", "name", "type", "room_id"},
	},
	{
		command:    "usages",
		collection: "device_usages",
		short:      "Device usage intervals",
		fields: []field{
			{name: "user_id", kind: intField, required: true, usage: "user id"},
			{name: "device_id", kind: intField, required: true, usage: "device id"},
			{name: "start_time", kind: timeField, required: true, usage: "start time"},
			{name: "end_time", kind: timeField, usage: "end time, empty while in use"},
			{name: "usage_type", kind: textField, usage: "usage type"},
			{name: "energy_consumed", kind: floatField, usage: "energy consumed in kWh"},
		},
		columns: []string{"id", "user_id", "device_id", "start_time", "end_time", "usage_type", "energy_consumed"},
	},
	{
		command:    "events",
		collection: "security_events",
		short:      "Security events",
		fields: []field{
			{name: "user_id", kind: intField, required: true, usage: "user id"},
			{name: "device_id", kind: intField, required: true, usage: "device id"},
			{name: "event_type", kind: textField, required: true, usage: "event type, e.g. smoke"},
			{name: "event_level", kind: textField, usage: "severity"},
			{name: "location", kind: textField, usage: "where it happened"},
			{name: "status", kind: textField, usage: "handling status"},
			{name: "timestamp", kind: timeField, required: true, usage: "when it happened"},
		},
		columns: []string{"id", "user_id", "device_id", "event_type", "event_level", "location", "status", "timestamp"},
	},
	{
		command:    "feedbacks",
		collection: "feedbacks",
		short:      "User feedback",
		fields: []field{
			{name: "user_id", kind: intField, required: true, usage: "user id"},
			{name: "content", kind: textField, required: true, usage: "feedback text"},
			{name: "feedback_type", kind: textField, usage: "feedback type"},
			{name: "status", kind: textField, usage: "handling status"},
			{name: "device_id", kind: intField, usage: "device the feedback is about"},
			{name: "timestamp", kind: timeField, required: true, usage: "when it was given"},
		},
		columns: []string{"id", "user_id", "content", "feedback_type", "status", "device_id", "timestamp"},
	},
}

// timeLayouts are tried in order by parseFlexibleTime.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseFlexibleTime accepts RFC3339 or a local "YYYY-MM-DD HH:MM:SS" time,
// with either a space or a T separator.
func parseFlexibleTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q, use YYYY-MM-DD HH:MM:SS or RFC3339", s)
}

// buildPayload converts raw flag values into a JSON body. Only fields present
// in values are sent.
func buildPayload(fields []field, values map[string]string) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, len(values))
	for _, f := range fields {
		raw, ok := values[f.name]
		if !ok {
			if f.required {
				return nil, fmt.Errorf("--%s is required", f.flag())
			}
			continue
		}

		switch f.kind {
		case textField:
			payload[f.name] = raw
		case intField:
			n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("--%s must be an integer", f.flag())
			}
			payload[f.name] = n
		case floatField:
			x, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("--%s must be a number", f.flag())
			}
			payload[f.name] = x
		case timeField:
			t, err := parseFlexibleTime(raw)
			if err != nil {
				return nil, fmt.Errorf("--%s: %w", f.flag(), err)
			}
			payload[f.name] = t.Format(time.RFC3339)
		}
	}
	return payload, nil
}
