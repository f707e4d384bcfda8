package shmmodels

// Room groups devices
type Room struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// RoomCreate is the write payload for rooms
type RoomCreate struct {
	Name string `json:"name" binding:"required,max=50"`
}

// RoomOut is a room with the devices placed in it
type RoomOut struct {
	Room
	Devices []Device `json:"devices"`
}
