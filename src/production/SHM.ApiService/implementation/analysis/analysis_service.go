// Package analysis builds the chart and table reports served under /analysis.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/implementation/charts"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/metrics"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
	interfaces "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Repository/Interfaces"
)

const (
	// OverlapPairLimit caps the ranked device pairs considered by user_habits.
	OverlapPairLimit = 20
	// OverlapTableMax is the largest pair count still answered as a table.
	OverlapTableMax = 6

	// DefaultMonth is the daily_device_usage month when none is requested.
	DefaultMonth = "2024-06"
)

var (
	// ErrUnknownReport is returned for a report name that does not exist.
	ErrUnknownReport = errors.New("unknown analysis report")
	// ErrInvalidMonth is returned when the month parameter is not YYYY-MM.
	ErrInvalidMonth = errors.New("month must be formatted as YYYY-MM")
)

// Params carries optional report parameters.
type Params struct {
	Month string
}

// Report is either a PNG image or a JSON body.
type Report struct {
	Name string
	PNG  []byte
	Body map[string]interface{}
}

// IsImage reports whether the report rendered to a PNG.
func (r *Report) IsImage() bool { return r.PNG != nil }

type barReport struct {
	fetch  func(ctx context.Context) ([]shmmodels.LabeledCount, error)
	labels charts.Labels
	empty  string
}

// Service renders analysis reports from the analytics repository
type Service struct {
	repo interfaces.AnalyticsRepository
	log  *logger.Logger
	now  func() time.Time
	bars map[string]barReport
}

// NewService creates a new analysis service
func NewService(repo interfaces.AnalyticsRepository, log *logger.Logger) *Service {
	s := &Service{
		repo: repo,
		log:  log.WithComponent("analysis"),
		now:  time.Now,
	}
	s.bars = map[string]barReport{
		"device_usage_frequency": {
			fetch:  repo.DeviceUsageFrequency,
			labels: charts.Labels{Title: "Device Usage Frequency", X: "Device", Y: "Usage count"},
			empty:  "No device usage data.",
		},
		"area_impact": {
			fetch:  repo.AreaImpact,
			labels: charts.Labels{Title: "Usage by House Area", X: "House area", Y: "Usage count"},
			empty:  "No user or device usage data.",
		},
		"device_type_usage": {
			fetch:  repo.DeviceTypeUsage,
			labels: charts.Labels{Title: "Usage by Device Type", X: "Device type", Y: "Usage count"},
			empty:  "No device usage data.",
		},
		"room_energy": {
			fetch:  repo.RoomEnergy,
			labels: charts.Labels{Title: "Energy Consumption by Room", X: "Room", Y: "Energy (kWh)"},
			empty:  "No energy data.",
		},
		"user_activity": {
			fetch:  repo.UserActivity,
			labels: charts.Labels{Title: "User Activity", X: "User", Y: "Usage count"},
			empty:  "No device usage data.",
		},
		"room_event_count": {
			fetch:  repo.RoomEventCount,
			labels: charts.Labels{Title: "Security Events by Room", X: "Room", Y: "Event count"},
			empty:  "No security event data.",
		},
	}
	return s
}

// Names lists every report in a stable order.
func (s *Service) Names() []string {
	names := make([]string, 0, len(s.bars)+2)
	for name := range s.bars {
		names = append(names, name)
	}
	names = append(names, "user_habits", "daily_device_usage")
	sort.Strings(names)
	return names
}

// Run renders the named report.
func (s *Service) Run(ctx context.Context, name string, p Params) (*Report, error) {
	var (
		report *Report
		err    error
	)
	switch name {
	case "user_habits":
		report, err = s.UserHabits(ctx)
	case "daily_device_usage":
		report, err = s.DailyDeviceUsage(ctx, p.Month)
	default:
		bar, ok := s.bars[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownReport, name)
		}
		report, err = s.renderBar(ctx, name, bar)
	}
	if err != nil {
		metrics.RecordReport(name, "error")
		return nil, err
	}

	format := "table"
	if report.IsImage() {
		format = "png"
	} else if _, failed := report.Body["error"]; failed {
		format = "error"
	}
	metrics.RecordReport(name, format)
	return report, nil
}

func (s *Service) renderBar(ctx context.Context, name string, bar barReport) (*Report, error) {
	counts, err := bar.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(counts) == 0 {
		return errorReport(name, bar.empty), nil
	}

	labels, values := split(counts)
	img, err := charts.BarChart(bar.labels, labels, values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Report{Name: name, PNG: img}, nil
}

// DailyDeviceUsage plots usages per day of month, given as YYYY-MM.
func (s *Service) DailyDeviceUsage(ctx context.Context, month string) (*Report, error) {
	const name = "daily_device_usage"
	if month == "" {
		month = DefaultMonth
	}
	from, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, ErrInvalidMonth
	}

	counts, err := s.repo.DailyDeviceUsage(ctx, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(counts) == 0 {
		return errorReport(name, "No valid usage data."), nil
	}

	labels, values := split(counts)
	img, err := charts.LineChart(charts.Labels{
		Title: fmt.Sprintf("Daily Device Usage, %s", from.Format("January 2006")),
		X:     "Date",
		Y:     "Usage count",
	}, labels, values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Report{Name: name, PNG: img}, nil
}

// UserHabits reports which devices are used at the same time. Small results
// come back as a table, larger ones as a heatmap.
func (s *Service) UserHabits(ctx context.Context) (*Report, error) {
	const name = "user_habits"

	pairs, err := s.repo.DeviceOverlaps(ctx, s.now(), OverlapPairLimit)
	if err != nil {
		s.log.WithError(err).Warn("device overlap query failed")
		return errorReport(name, fmt.Sprintf("database query failed: %v", err)), nil
	}
	if len(pairs) == 0 {
		return errorReport(name, "no simultaneous device usage found"), nil
	}

	ids, matrix := BuildOverlapMatrix(pairs)
	names, err := s.repo.DeviceNames(ctx, ids)
	if err != nil {
		s.log.WithError(err).Warn("device name lookup failed")
		return errorReport(name, fmt.Sprintf("database query failed: %v", err)), nil
	}

	if len(pairs) <= OverlapTableMax {
		rows := make([]shmmodels.OverlapRow, len(pairs))
		for i, p := range pairs {
			rows[i] = shmmodels.OverlapRow{
				DeviceA:      deviceName(names, p.DeviceA),
				DeviceB:      deviceName(names, p.DeviceB),
				TotalMinutes: round2(p.TotalMinutes),
			}
		}
		return &Report{Name: name, Body: map[string]interface{}{"data": rows}}, nil
	}

	axis := make([]string, len(ids))
	for i, id := range ids {
		axis[i] = deviceName(names, id)
	}
	img, err := charts.HeatMap(charts.Labels{
		Title: "Simultaneous Device Usage (minutes)",
		X:     "Device",
		Y:     "Device",
	}, axis, matrix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Report{Name: name, PNG: img}, nil
}

// BuildOverlapMatrix lays out the pairs as a symmetric matrix over the
// ascending device ids they mention. The diagonal and absent pairs are zero.
func BuildOverlapMatrix(pairs []shmmodels.DeviceOverlap) ([]int64, [][]float64) {
	seen := make(map[int64]struct{})
	for _, p := range pairs {
		seen[p.DeviceA] = struct{}{}
		seen[p.DeviceB] = struct{}{}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	index := make(map[int64]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	matrix := make([][]float64, len(ids))
	for i := range matrix {
		matrix[i] = make([]float64, len(ids))
	}
	for _, p := range pairs {
		if p.DeviceA == p.DeviceB {
			continue
		}
		a, b := index[p.DeviceA], index[p.DeviceB]
		matrix[a][b] = p.TotalMinutes
		matrix[b][a] = p.TotalMinutes
	}
	return ids, matrix
}

func deviceName(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("Device %d", id)
}

func errorReport(name, msg string) *Report {
	return &Report{Name: name, Body: map[string]interface{}{"error": msg}}
}

func split(counts []shmmodels.LabeledCount) ([]string, []float64) {
	labels := make([]string, len(counts))
	values := make([]float64, len(counts))
	for i, c := range counts {
		labels[i] = c.Label
		values[i] = c.Value
	}
	return labels, values
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
