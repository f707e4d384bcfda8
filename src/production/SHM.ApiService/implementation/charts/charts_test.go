package charts

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestBarChartRendersPNG(t *testing.T) {
	img, err := BarChart(Labels{Title: "Usage", X: "Device", Y: "Count"},
		[]string{"Lamp", "Heater"}, []float64{3, 7})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, pngMagic))
}

func TestLineChartRendersPNG(t *testing.T) {
	img, err := LineChart(Labels{Title: "Daily"}, []string{"06-01", "06-02", "06-03"}, []float64{1, 0, 2.5})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, pngMagic))
}

func TestHeatMapRendersPNG(t *testing.T) {
	names := []string{"A", "B", "C"}
	matrix := [][]float64{
		{0, 5, 1},
		{5, 0, 0},
		{1, 0, 0},
	}
	img, err := HeatMap(Labels{Title: "Overlap"}, names, matrix)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, pngMagic))
}

func TestChartInputErrors(t *testing.T) {
	_, err := BarChart(Labels{}, []string{"a"}, []float64{1, 2})
	assert.Error(t, err)

	_, err = BarChart(Labels{}, nil, nil)
	assert.ErrorIs(t, err, ErrNotChartable)

	_, err = HeatMap(Labels{}, []string{"a", "b"}, [][]float64{{0, 1}})
	assert.ErrorIs(t, err, ErrNotChartable)

	_, err = HeatMap(Labels{}, []string{"a", "b"}, [][]float64{{0, 1}, {1}})
	assert.Error(t, err)
}

func TestAutoChart(t *testing.T) {
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`[
		{"room_name": "Kitchen", "room_id": 1, "total_energy": 12.5},
		{"room_name": "Bedroom", "room_id": 2, "total_energy": "4.25"}
	]`), &rows))

	img, err := AutoChart("Energy", []string{"room_name", "room_id", "total_energy"}, rows)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, pngMagic))
}

func TestAutoChartRejectsUnsuitableData(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		rows    []map[string]interface{}
	}{
		{name: "no rows", columns: []string{"a", "b"}},
		{name: "single column", columns: []string{"a"}, rows: []map[string]interface{}{{"a": 1.0}}},
		{name: "only ids", columns: []string{"name", "device_id"}, rows: []map[string]interface{}{{"name": "x", "device_id": 1.0}}},
		{name: "text values", columns: []string{"name", "status"}, rows: []map[string]interface{}{{"name": "x", "status": "open"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AutoChart("t", tt.columns, tt.rows)
			assert.ErrorIs(t, err, ErrNotChartable)
		})
	}

	tooMany := make([]map[string]interface{}, MaxChartRows+1)
	for i := range tooMany {
		tooMany[i] = map[string]interface{}{"name": "x", "value": 1.0}
	}
	_, err := AutoChart("t", []string{"name", "value"}, tooMany)
	assert.ErrorIs(t, err, ErrNotChartable)
}

func TestNumeric(t *testing.T) {
	for _, v := range []interface{}{1, int64(2), float32(1.5), 2.5, "3.75", json.Number("4")} {
		_, ok := Numeric(v)
		assert.True(t, ok, "%T", v)
	}
	for _, v := range []interface{}{nil, "abc", true, []byte("1")} {
		_, ok := Numeric(v)
		assert.False(t, ok, "%T", v)
	}
}
