package portfolio

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/models"
)

// RenderGrowthChart renders the monthly AUM series as a PNG line chart.
// Fewer than two points wraps common.ErrInsufficientData.
func RenderGrowthChart(points []models.GrowthPoint) ([]byte, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("need at least 2 data points, got %d: %w", len(points), common.ErrInsufficientData)
	}

	xValues := make([]float64, len(points))
	yValues := make([]float64, len(points))
	ticks := make([]chart.Tick, len(points))
	for i, p := range points {
		xValues[i] = float64(i)
		yValues[i] = p.Aum
		ticks[i] = chart.Tick{Value: float64(i), Label: p.Month}
	}

	aum := chart.ContinuousSeries{
		Name: "AUM",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"),
			StrokeWidth: 2.5,
			DotColor:    drawing.ColorFromHex("2563eb"),
			DotWidth:    3,
		},
		XValues: xValues,
		YValues: yValues,
	}

	graph := chart.Chart{
		Title:  "Assets Under Management",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return formatLakh(f)
				}
				return ""
			},
		},
		Series: []chart.Series{aum},
	}

	// A flat series has a zero-width range, which go-chart refuses to draw
	if lo, hi := yBounds(yValues); lo == hi {
		graph.YAxis.Range = &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

func yBounds(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

// formatLakh labels rupee amounts in lakhs (1L = 100,000).
func formatLakh(v float64) string {
	return fmt.Sprintf("₹%.1fL", v/100000)
}
