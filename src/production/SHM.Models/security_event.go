package shmmodels

import "time"

// SecurityEvent is an alarm or notice raised by a device
type SecurityEvent struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	DeviceID   int64     `json:"device_id" db:"device_id"`
	EventType  string    `json:"event_type" db:"event_type"`
	EventLevel *string   `json:"event_level,omitempty" db:"event_level"`
	Location   *string   `json:"location,omitempty" db:"location"`
	Status     *string   `json:"status,omitempty" db:"status"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	Device     *Device   `json:"device,omitempty"`
}

// SecurityEventCreate is the write payload for security events
type SecurityEventCreate struct {
	UserID     int64     `json:"user_id" binding:"required"`
	DeviceID   int64     `json:"device_id" binding:"required"`
	EventType  string    `json:"event_type" binding:"required,max=30"`
	EventLevel *string   `json:"event_level" binding:"omitempty,max=10"`
	Location   *string   `json:"location" binding:"omitempty,max=50"`
	Status     *string   `json:"status" binding:"omitempty,max=20"`
	Timestamp  time.Time `json:"timestamp" binding:"required"`
}
