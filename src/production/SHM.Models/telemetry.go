package shmmodels

import "time"

// TelemetryKind is the last topic segment of an ingested message
type TelemetryKind string

const (
	TelemetryUsage    TelemetryKind = "usage"
	TelemetrySecurity TelemetryKind = "security"
)

// TelemetryMessage is a decoded MQTT message waiting to be forwarded
type TelemetryMessage struct {
	UserID     int64
	DeviceID   int64
	Kind       TelemetryKind
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}
