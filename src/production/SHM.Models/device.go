package shmmodels

// Device is a smart appliance, optionally placed in a room
type Device struct {
	ID     int64   `json:"id" db:"id"`
	Name   string  `json:"name" db:"name"`
	Type   *string `json:"type" db:"type"`
	RoomID *int64  `json:"room_id" db:"room_id"`
}

// DeviceCreate is the write payload for devices
type DeviceCreate struct {
	Name   string  `json:"name" binding:"required,max=50"`
	Type   *string `json:"type" binding:"omitempty,max=30"`
	RoomID *int64  `json:"room_id"`
}

// DeviceOut is a device with its room
type DeviceOut struct {
	Device
	Room *Room `json:"room"`
}
