package shmmodels

import "time"

// DeviceUsage is one interval during which a user operated a device.
// A nil EndTime means the device is still in use.
type DeviceUsage struct {
	ID             int64      `json:"id" db:"id"`
	UserID         int64      `json:"user_id" db:"user_id"`
	DeviceID       int64      `json:"device_id" db:"device_id"`
	StartTime      time.Time  `json:"start_time" db:"start_time"`
	EndTime        *time.Time `json:"end_time" db:"end_time"`
	UsageType      *string    `json:"usage_type" db:"usage_type"`
	EnergyConsumed *float64   `json:"energy_consumed" db:"energy_consumed"`
	DeviceType     *string    `json:"device_type,omitempty" db:"device_type"`
	UserName       *string    `json:"user_name,omitempty" db:"user_name"`
	Device         *Device    `json:"device,omitempty"`
}

// DeviceUsageCreate is the write payload for usage records
type DeviceUsageCreate struct {
	UserID         int64      `json:"user_id" binding:"required"`
	DeviceID       int64      `json:"device_id" binding:"required"`
	StartTime      time.Time  `json:"start_time" binding:"required"`
	EndTime        *time.Time `json:"end_time" binding:"omitempty,gtefield=StartTime"`
	UsageType      *string    `json:"usage_type" binding:"omitempty,max=30"`
	EnergyConsumed *float64   `json:"energy_consumed" binding:"omitempty,gte=0"`
	DeviceType     *string    `json:"device_type" binding:"omitempty,max=30"`
	UserName       *string    `json:"user_name" binding:"omitempty,max=50"`
}
