package report

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	seriesColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	limitColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// ControlChart renders values by sample number as a PNG, with a dashed
// line at limit when it is known (> 0).
func ControlChart(title string, values []float64, limit float64) ([]byte, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no values to chart")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = title
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(values))
	for i, v := range values {
		xys[i].X = float64(i + 1)
		xys[i].Y = v
	}

	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return nil, fmt.Errorf("building %s series: %w", title, err)
	}
	line.Color = seriesColor
	points.GlyphStyle.Color = seriesColor
	p.Add(line, points)

	if limit > 0 {
		l := plotter.NewFunction(func(float64) float64 { return limit })
		l.Color = limitColor
		l.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(l)
		p.Legend.Add("limit", l)
		if p.Y.Max < limit {
			p.Y.Max = limit * 1.05
		}
	}
	p.X.Min = 0
	p.X.Max = float64(len(values) + 1)
	if p.Y.Min > 0 {
		p.Y.Min = 0
	}

	w, err := p.WriterTo(16*vg.Centimeter, 6*vg.Centimeter, "png")
	if err != nil {
		return nil, fmt.Errorf("rendering %s chart: %w", title, err)
	}

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encoding %s chart: %w", title, err)
	}
	return buf.Bytes(), nil
}
