// Package charts rasterizes value-over-time series into PNG images. It
// is a pure output layer: it receives (timestamp, value) points and has
// no knowledge of portfolios or instruments beyond a display name.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"gonum.org/v1/gonum/stat"

	"github.com/r7zex/t-invest-bot/internal/modules/history"
)

// ErrNotEnoughData is returned when fewer than two points are supplied;
// callers fall back to a text reply.
var ErrNotEnoughData = errors.New("charts: need at least two points")

var (
	balanceColor  = drawing.ColorFromHex("3b82f6")
	priceColor    = drawing.ColorFromHex("8b5cf6")
	trendUpColor  = drawing.ColorFromHex("10b981")
	trendDownColor = drawing.ColorFromHex("ef4444")
	canvasColor   = drawing.ColorFromHex("ffffff")
	marginColor   = drawing.ColorFromHex("f5f5f5")
)

// RenderBalance renders a portfolio balance chart with a least-squares
// trend overlay.
func RenderBalance(points []history.Point, period, currency string) ([]byte, error) {
	return render("Динамика баланса портфеля", "Баланс портфеля", balanceColor, points, period, currency)
}

// RenderPrice renders an instrument price chart. name is the display
// name of the instrument, not its ticker.
func RenderPrice(points []history.Point, period, name, currency string) ([]byte, error) {
	return render("Динамика цены акции "+name, "Цена "+name, priceColor, points, period, currency)
}

func render(title, seriesName string, color drawing.Color, points []history.Point, period, currency string) ([]byte, error) {
	if len(points) < 2 {
		return nil, ErrNotEnoughData
	}

	xs := make([]time.Time, len(points))
	ys := make([]float64, len(points))
	xNumeric := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.Time
		ys[i] = p.Value
		xNumeric[i] = float64(p.Time.Unix())
	}

	// Least-squares fit: value = alpha + beta*t.
	alpha, beta := stat.LinearRegression(xNumeric, ys, nil, false)
	trend := make([]float64, len(points))
	for i, x := range xNumeric {
		trend[i] = alpha + beta*x
	}

	trendColor := trendUpColor
	if beta < 0 {
		trendColor = trendDownColor
	}

	change := ys[len(ys)-1] - ys[0]
	changePct := 0.0
	if ys[0] != 0 {
		changePct = change / ys[0] * 100
	}
	sign := ""
	if change >= 0 {
		sign = "+"
	}
	changeLabel := fmt.Sprintf("Изменение: %s%s (%+.2f%%)", sign, FormatPrice(change, currency), changePct)

	graph := chart.Chart{
		Title:  title,
		Width:  1200,
		Height: 700,
		Background: chart.Style{
			FillColor: marginColor,
		},
		Canvas: chart.Style{
			FillColor: canvasColor,
		},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat(timeFormatFor(period)),
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return FormatPrice(f, currency)
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    seriesName,
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: color,
					StrokeWidth: 2.5,
				},
			},
			chart.TimeSeries{
				Name:    "Линия тренда · " + changeLabel,
				XValues: xs,
				YValues: trend,
				Style: chart.Style{
					StrokeColor:     trendColor,
					StrokeWidth:     2,
					StrokeDashArray: []float64{5, 5},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.LegendThin(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// timeFormatFor picks the x-axis label format: clock time inside a day,
// day.month beyond.
func timeFormatFor(period string) string {
	switch period {
	case "1h", "1d":
		return "15:04"
	default:
		return "02.01"
	}
}
