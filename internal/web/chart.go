package web

import (
	"fmt"
	"html/template"
	"math"
	"strings"

	"github.com/rewired-gh/forecastkit/internal/forecast"
	"github.com/rewired-gh/forecastkit/internal/models"
)

const (
	chartWidth   = 760
	chartHeight  = 300
	chartPad     = 48
	chartHistory = 90
)

type chartScale struct {
	n    int
	yMax float64
}

func (s chartScale) x(i int) float64 {
	if s.n <= 1 {
		return chartPad
	}
	return chartPad + float64(i)*float64(chartWidth-2*chartPad)/float64(s.n-1)
}

func (s chartScale) y(v float64) float64 {
	return float64(chartHeight-chartPad) - v/s.yMax*float64(chartHeight-2*chartPad)
}

// renderChart draws the tail of the observed series, the forecast line and
// its interval band as inline SVG.
func renderChart(series *models.Series, result *models.ForecastResult) template.HTML {
	var history []models.Observation
	if series != nil {
		history = series.Observations
		if len(history) > chartHistory {
			history = history[len(history)-chartHistory:]
		}
	}
	var points []models.ForecastPoint
	if result != nil {
		points = result.Points
	}
	if len(history)+len(points) == 0 {
		return ""
	}

	s := chartScale{n: len(history) + len(points)}
	for _, o := range history {
		s.yMax = math.Max(s.yMax, o.Value)
	}
	for _, p := range points {
		s.yMax = math.Max(s.yMax, p.Upper)
	}
	if s.yMax <= 0 {
		s.yMax = 1
	}
	s.yMax *= 1.05

	var b strings.Builder
	fmt.Fprintf(&b, `<svg class="chart" viewBox="0 0 %d %d" role="img" aria-label="Series and forecast">`, chartWidth, chartHeight)
	fmt.Fprintf(&b, `<line class="axis" x1="%d" y1="%d" x2="%d" y2="%d"/>`, chartPad, chartHeight-chartPad, chartWidth-chartPad, chartHeight-chartPad)
	fmt.Fprintf(&b, `<line class="axis" x1="%d" y1="%d" x2="%d" y2="%d"/>`, chartPad, chartPad, chartPad, chartHeight-chartPad)
	fmt.Fprintf(&b, `<text class="label" x="%d" y="%d" text-anchor="end">%s</text>`, chartPad-6, chartPad+4, template.HTMLEscapeString(forecast.FormatMetric(s.yMax)))
	fmt.Fprintf(&b, `<text class="label" x="%d" y="%d" text-anchor="end">0</text>`, chartPad-6, chartHeight-chartPad+4)

	if len(points) > 0 {
		off := len(history)
		var band []string
		for i, p := range points {
			band = append(band, fmt.Sprintf("%.1f,%.1f", s.x(off+i), s.y(p.Upper)))
		}
		for i := len(points) - 1; i >= 0; i-- {
			band = append(band, fmt.Sprintf("%.1f,%.1f", s.x(off+i), s.y(points[i].Lower)))
		}
		fmt.Fprintf(&b, `<polygon class="band" points="%s"/>`, strings.Join(band, " "))

		line := make([]string, 0, len(points)+1)
		if off > 0 {
			line = append(line, fmt.Sprintf("%.1f,%.1f", s.x(off-1), s.y(history[off-1].Value)))
		}
		for i, p := range points {
			line = append(line, fmt.Sprintf("%.1f,%.1f", s.x(off+i), s.y(p.Predicted)))
		}
		fmt.Fprintf(&b, `<polyline class="forecast" points="%s"/>`, strings.Join(line, " "))
	}

	if len(history) > 0 {
		line := make([]string, len(history))
		for i, o := range history {
			line[i] = fmt.Sprintf("%.1f,%.1f", s.x(i), s.y(o.Value))
		}
		fmt.Fprintf(&b, `<polyline class="history" points="%s"/>`, strings.Join(line, " "))
		fmt.Fprintf(&b, `<text class="label" x="%d" y="%d">%s</text>`, chartPad, chartHeight-chartPad+18, history[0].Date.Format("2006-01-02"))
	}
	if len(points) > 0 {
		fmt.Fprintf(&b, `<text class="label" x="%d" y="%d" text-anchor="end">%s</text>`,
			chartWidth-chartPad, chartHeight-chartPad+18, points[len(points)-1].Date.Format("2006-01-02"))
	}
	b.WriteString(`</svg>`)
	return template.HTML(b.String())
}
