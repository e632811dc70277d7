package pricedata

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/stockboard/internal/models"
)

// RenderPriceChart renders a PNG line chart of daily closes for a series.
// Two series: Close (blue solid) and Adjusted Close (gray dashed) when the
// bars carry adjusted values. Returns raw PNG bytes.
func RenderPriceChart(symbol string, bars []models.Bar) ([]byte, error) {
	if len(bars) < 2 {
		return nil, fmt.Errorf("need at least 2 bars, got %d", len(bars))
	}

	xValues := make([]time.Time, 0, len(bars))
	closeY := make([]float64, 0, len(bars))
	adjY := make([]float64, 0, len(bars))
	hasAdj := true

	for _, bar := range bars {
		date, err := models.ParseDate(bar.Date)
		if err != nil {
			continue
		}
		xValues = append(xValues, date)
		closeY = append(closeY, bar.Close)
		if bar.AdjClose != nil {
			adjY = append(adjY, *bar.AdjClose)
		} else {
			hasAdj = false
		}
	}

	if len(xValues) < 2 {
		return nil, fmt.Errorf("need at least 2 parseable bars, got %d", len(xValues))
	}

	closeSeries := chart.TimeSeries{
		Name: "Close",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"), // blue-600
			StrokeWidth: 2.5,
		},
		XValues: xValues,
		YValues: closeY,
	}

	series := []chart.Series{closeSeries}
	if hasAdj && len(adjY) == len(xValues) {
		series = append(series, chart.TimeSeries{
			Name: "Adj Close",
			Style: chart.Style{
				StrokeColor:     drawing.ColorFromHex("9ca3af"), // gray-400
				StrokeWidth:     1.5,
				StrokeDashArray: []float64{5.0, 3.0},
			},
			XValues: xValues,
			YValues: adjY,
		})
	}

	graph := chart.Chart{
		Title:  symbol,
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("$%.2f", f)
				}
				return ""
			},
		},
		Series: series,
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}
