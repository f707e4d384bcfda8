package shmmodels

// LabeledCount is one bar of an aggregate report
type LabeledCount struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// DeviceOverlap is the summed simultaneous-usage time of an unordered
// device pair, with DeviceA < DeviceB.
type DeviceOverlap struct {
	DeviceA      int64   `json:"device_a_id"`
	DeviceB      int64   `json:"device_b_id"`
	TotalMinutes float64 `json:"total_overlap_minutes"`
}

// OverlapRow is the tabular form of a DeviceOverlap with resolved names
type OverlapRow struct {
	DeviceA      string  `json:"device_a"`
	DeviceB      string  `json:"device_b"`
	TotalMinutes float64 `json:"total_overlap_minutes"`
}
