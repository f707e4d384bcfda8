package shmmodels

// User is a household member whose device activity is recorded
type User struct {
	ID        int64    `json:"id" db:"id"`
	Name      string   `json:"name" db:"name"`
	HouseArea *float64 `json:"house_area" db:"house_area"`
}

// UserCreate is the write payload for users
type UserCreate struct {
	Name      string   `json:"name" binding:"required,max=50"`
	HouseArea *float64 `json:"house_area" binding:"omitempty,gte=0"`
}

// UserOut is a user with every record that references it
type UserOut struct {
	User
	Usages    []DeviceUsage   `json:"usages"`
	Events    []SecurityEvent `json:"events"`
	Feedbacks []Feedback      `json:"feedbacks"`
}
