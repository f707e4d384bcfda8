package ingestor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
)

// TopicPrefix is the first segment of every telemetry topic.
const TopicPrefix = "smarthome"

var (
	ErrInvalidTopic   = errors.New("invalid topic")
	ErrInvalidPayload = errors.New("invalid payload")
)

// ParseTopic splits smarthome/<user_id>/<device_id>/<usage|security>.
func ParseTopic(topic string) (userID, deviceID int64, kind shmmodels.TelemetryKind, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix {
		return 0, 0, "", fmt.Errorf("%w %q, expected %s/<user_id>/<device_id>/<usage|security>", ErrInvalidTopic, topic, TopicPrefix)
	}

	userID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || userID <= 0 {
		return 0, 0, "", fmt.Errorf("%w %q: bad user id", ErrInvalidTopic, topic)
	}
	deviceID, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil || deviceID <= 0 {
		return 0, 0, "", fmt.Errorf("%w %q: bad device id", ErrInvalidTopic, topic)
	}

	switch kind = shmmodels.TelemetryKind(parts[3]); kind {
	case shmmodels.TelemetryUsage, shmmodels.TelemetrySecurity:
		return userID, deviceID, kind, nil
	}
	return 0, 0, "", fmt.Errorf("%w %q: unknown kind %q", ErrInvalidTopic, topic, parts[3])
}

// topicIDs pulls whatever ids it can out of a malformed topic for error replies.
func topicIDs(topic string) (user, device string) {
	user, device = "unknown", "unknown"
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 && parts[1] != "" {
		user = parts[1]
	}
	if len(parts) >= 3 && parts[2] != "" {
		device = parts[2]
	}
	return user, device
}

type usagePayload struct {
	StartTime      *time.Time `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	UsageType      *string    `json:"usage_type"`
	EnergyConsumed *float64   `json:"energy_consumed"`
	DeviceType     *string    `json:"device_type"`
	UserName       *string    `json:"user_name"`
}

type securityPayload struct {
	EventType  string     `json:"event_type"`
	EventLevel *string    `json:"event_level"`
	Location   *string    `json:"location"`
	Status     *string    `json:"status"`
	Timestamp  *time.Time `json:"timestamp"`
}

// DecodeUsage builds a usage record. A missing start_time means the message
// receive time.
func DecodeUsage(msg shmmodels.TelemetryMessage) (shmmodels.DeviceUsageCreate, error) {
	var p usagePayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return shmmodels.DeviceUsageCreate{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	start := msg.ReceivedAt
	if p.StartTime != nil {
		start = *p.StartTime
	}
	if p.EndTime != nil && p.EndTime.Before(start) {
		return shmmodels.DeviceUsageCreate{}, fmt.Errorf("%w: end_time before start_time", ErrInvalidPayload)
	}
	if p.EnergyConsumed != nil && *p.EnergyConsumed < 0 {
		return shmmodels.DeviceUsageCreate{}, fmt.Errorf("%w: negative energy_consumed", ErrInvalidPayload)
	}

	return shmmodels.DeviceUsageCreate{
		UserID:         msg.UserID,
		DeviceID:       msg.DeviceID,
		StartTime:      start,
		EndTime:        p.EndTime,
		UsageType:      p.UsageType,
		EnergyConsumed: p.EnergyConsumed,
		DeviceType:     p.DeviceType,
		UserName:       p.UserName,
	}, nil
}

// DecodeEvent builds a security event record. event_type is required and a
// missing timestamp means the message receive time.
func DecodeEvent(msg shmmodels.TelemetryMessage) (shmmodels.SecurityEventCreate, error) {
	var p securityPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return shmmodels.SecurityEventCreate{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(p.EventType) == "" {
		return shmmodels.SecurityEventCreate{}, fmt.Errorf("%w: event_type is required", ErrInvalidPayload)
	}

	ts := msg.ReceivedAt
	if p.Timestamp != nil {
		ts = *p.Timestamp
	}

	return shmmodels.SecurityEventCreate{
		UserID:     msg.UserID,
		DeviceID:   msg.DeviceID,
		EventType:  p.EventType,
		EventLevel: p.EventLevel,
		Location:   p.Location,
		Status:     p.Status,
		Timestamp:  ts,
	}, nil
}
