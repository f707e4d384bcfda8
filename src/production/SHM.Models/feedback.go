package shmmodels

import "time"

// Feedback is free text a user left, optionally about a device
type Feedback struct {
	ID           int64     `json:"id" db:"id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	Content      string    `json:"content" db:"content"`
	FeedbackType *string   `json:"feedback_type" db:"feedback_type"`
	Status       *string   `json:"status,omitempty" db:"status"`
	DeviceID     *int64    `json:"device_id" db:"device_id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	Device       *Device   `json:"device"`
}

// FeedbackCreate is the write payload for feedback
type FeedbackCreate struct {
	UserID       int64     `json:"user_id" binding:"required"`
	Content      string    `json:"content" binding:"required"`
	FeedbackType *string   `json:"feedback_type" binding:"omitempty,max=20"`
	Status       *string   `json:"status" binding:"omitempty,max=20"`
	DeviceID     *int64    `json:"device_id"`
	Timestamp    time.Time `json:"timestamp" binding:"required"`
}
