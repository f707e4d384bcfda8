// Package charts renders report data as PNG images.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ErrNotChartable is returned when tabular data has no sensible chart form.
var ErrNotChartable = errors.New("data is not suitable for a chart")

// MaxChartRows caps the rows AutoChart will plot.
const MaxChartRows = 50

var (
	barFill   = color.RGBA{R: 0x36, G: 0xb9, B: 0xcc, A: 0xff}
	barEdge   = color.RGBA{R: 0x18, G: 0x90, B: 0xff, A: 0xff}
	lineColor = color.RGBA{R: 0x17, G: 0xa6, B: 0x73, A: 0xff}
)

// Labels holds axis captions for a chart.
type Labels struct {
	Title string
	X     string
	Y     string
}

// BarChart renders one bar per category, each annotated with its value.
func BarChart(l Labels, categories []string, values []float64) ([]byte, error) {
	if len(categories) != len(values) {
		return nil, fmt.Errorf("charts: %d categories but %d values", len(categories), len(values))
	}
	if len(values) == 0 {
		return nil, ErrNotChartable
	}

	p := newPlot(l)
	bars, err := plotter.NewBarChart(plotter.Values(values), vg.Points(18))
	if err != nil {
		return nil, fmt.Errorf("charts: bar chart: %w", err)
	}
	bars.Color = barFill
	bars.LineStyle.Color = barEdge
	bars.LineStyle.Width = vg.Points(1)
	p.Add(plotter.NewGrid(), bars)

	annotations, err := valueLabels(values, func(i int) (float64, float64) { return float64(i), values[i] })
	if err != nil {
		return nil, err
	}
	p.Add(annotations)

	p.NominalX(categories...)
	rotateXTicks(p)
	p.Y.Min = 0

	return encodePNG(p, widthFor(len(values)), 5*vg.Inch)
}

// LineChart renders values over ordered categories with point markers.
func LineChart(l Labels, categories []string, values []float64) ([]byte, error) {
	if len(categories) != len(values) {
		return nil, fmt.Errorf("charts: %d categories but %d values", len(categories), len(values))
	}
	if len(values) == 0 {
		return nil, ErrNotChartable
	}

	p := newPlot(l)
	pts := make(plotter.XYs, len(values))
	for i, v := range values {
		pts[i].X = float64(i)
		pts[i].Y = v
	}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, fmt.Errorf("charts: line chart: %w", err)
	}
	line.Color = lineColor
	line.Width = vg.Points(2)
	points.Color = lineColor
	points.Shape = draw.CircleGlyph{}
	p.Add(plotter.NewGrid(), line, points)

	annotations, err := valueLabels(values, func(i int) (float64, float64) { return pts[i].X, pts[i].Y })
	if err != nil {
		return nil, err
	}
	p.Add(annotations)

	p.NominalX(categories...)
	rotateXTicks(p)
	p.Y.Min = 0

	return encodePNG(p, widthFor(len(values)), 5*vg.Inch)
}

// HeatMap renders a square matrix with the same labels on both axes.
// Non-zero cells are annotated with their value.
func HeatMap(l Labels, names []string, matrix [][]float64) ([]byte, error) {
	n := len(names)
	if n == 0 || len(matrix) != n {
		return nil, ErrNotChartable
	}
	for _, row := range matrix {
		if len(row) != n {
			return nil, fmt.Errorf("charts: heatmap matrix is not %dx%d", n, n)
		}
	}

	p := newPlot(l)
	grid := squareGrid(matrix)
	hm := plotter.NewHeatMap(grid, palette.Heat(16, 1))
	p.Add(hm)

	var (
		xys  plotter.XYs
		text []string
	)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if v := matrix[r][c]; v != 0 {
				xys = append(xys, plotter.XY{X: float64(c), Y: float64(r)})
				text = append(text, formatValue(v))
			}
		}
	}
	if len(xys) > 0 {
		cells, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: text})
		if err != nil {
			return nil, fmt.Errorf("charts: heatmap labels: %w", err)
		}
		for i := range cells.TextStyle {
			cells.TextStyle[i].XAlign = draw.XCenter
			cells.TextStyle[i].YAlign = draw.YCenter
		}
		p.Add(cells)
	}

	p.NominalX(names...)
	p.NominalY(names...)
	rotateXTicks(p)

	side := widthFor(n)
	return encodePNG(p, side, side)
}

// AutoChart plots a result set as a bar chart, taking labels from the first
// column and values from the first numeric column whose name is not an id.
func AutoChart(title string, columns []string, rows []map[string]interface{}) ([]byte, error) {
	if len(rows) == 0 || len(rows) > MaxChartRows || len(columns) < 2 {
		return nil, ErrNotChartable
	}

	valueCol := ""
	for _, col := range columns[1:] {
		if strings.Contains(strings.ToLower(col), "id") {
			continue
		}
		if columnIsNumeric(rows, col) {
			valueCol = col
			break
		}
	}
	if valueCol == "" {
		return nil, ErrNotChartable
	}

	labelCol := columns[0]
	categories := make([]string, len(rows))
	values := make([]float64, len(rows))
	for i, row := range rows {
		categories[i] = fmt.Sprint(row[labelCol])
		values[i], _ = Numeric(row[valueCol])
	}
	return BarChart(Labels{Title: title, X: labelCol, Y: valueCol}, categories, values)
}

// Numeric converts a decoded JSON or SQL value to float64.
func Numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func columnIsNumeric(rows []map[string]interface{}, col string) bool {
	for _, row := range rows {
		if _, ok := Numeric(row[col]); !ok {
			return false
		}
	}
	return true
}

func newPlot(l Labels) *plot.Plot {
	p := plot.New()
	p.Title.Text = l.Title
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.X.Label.Text = l.X
	p.Y.Label.Text = l.Y
	return p
}

func rotateXTicks(p *plot.Plot) {
	p.X.Tick.Label.Rotation = math.Pi / 3
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
}

func valueLabels(values []float64, at func(i int) (float64, float64)) (*plotter.Labels, error) {
	xys := make(plotter.XYs, len(values))
	text := make([]string, len(values))
	for i, v := range values {
		xys[i].X, xys[i].Y = at(i)
		text[i] = formatValue(v)
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: text})
	if err != nil {
		return nil, fmt.Errorf("charts: value labels: %w", err)
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = draw.XCenter
	}
	return labels, nil
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// widthFor grows the canvas with the number of categories.
func widthFor(n int) vg.Length {
	w := vg.Length(n) * vg.Inch / 2
	if w < 8*vg.Inch {
		return 8 * vg.Inch
	}
	return w
}

func encodePNG(p *plot.Plot, w, h vg.Length) ([]byte, error) {
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return nil, fmt.Errorf("charts: encode: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("charts: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// squareGrid adapts a row-major matrix to plotter.GridXYZ.
type squareGrid [][]float64

func (g squareGrid) Dims() (c, r int)   { return len(g), len(g) }
func (g squareGrid) Z(c, r int) float64 { return g[r][c] }
func (g squareGrid) X(c int) float64    { return float64(c) }
func (g squareGrid) Y(r int) float64    { return float64(r) }
