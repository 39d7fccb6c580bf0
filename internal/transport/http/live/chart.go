package livehttp

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorOverall       = "#fbbf24"
	colorSentiment     = "#34d399"
	colorMomentum      = "#3b82f6"

	chartWidthPx  = 1200
	chartHeightPx = 520
)

// renderScoreChart 输出包含综合/情绪/动量三条得分曲线的 HTML 页面。
func renderScoreChart(symbol string, points []ScorePoint) ([]byte, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no score history for %s", symbol)
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       fmt.Sprintf("%s score", strings.ToUpper(symbol)),
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         strings.ToUpper(symbol),
			Subtitle:      fmt.Sprintf("last %d signals", len(points)),
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Min:       -100,
			Max:       100,
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)

	xAxis := make([]string, len(points))
	overall := make([]opts.LineData, len(points))
	sent := make([]opts.LineData, len(points))
	mom := make([]opts.LineData, len(points))
	for i, p := range points {
		xAxis[i] = p.At.UTC().Format("01-02 15:04")
		overall[i] = opts.LineData{Value: round(p.Overall, 2)}
		sent[i] = opts.LineData{Value: round(p.Sentiment, 2)}
		mom[i] = opts.LineData{Value: round(p.Momentum, 2)}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Overall", overall, charts.WithLineStyleOpts(opts.LineStyle{Color: colorOverall, Width: 3}))
	line.AddSeries("Sentiment", sent, charts.WithLineStyleOpts(opts.LineStyle{Color: colorSentiment, Width: 2}))
	line.AddSeries("Momentum", mom, charts.WithLineStyleOpts(opts.LineStyle{Color: colorMomentum, Width: 2}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
