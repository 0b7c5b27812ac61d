// Package plotting renders averaged water-column profiles as PNG figures
// and interactive HTML charts.
package plotting

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

// ErrEmptyProfile is returned when a profile has no bins at all.
var ErrEmptyProfile = errors.New("profile has no bins")

type component struct {
	name   string
	values []float64
	color  color.RGBA
}

func components(p watercolumn.Profile) []component {
	return []component{
		{"east", p.East, color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}},
		{"north", p.North, color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}},
		{"down", p.Down, color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}},
	}
}

// runs splits a component into contiguous stretches of known bins, as
// (velocity, depth) points. Bins without an estimate break the line.
func runs(values, depth []float64) []plotter.XYs {
	var (
		out []plotter.XYs
		cur plotter.XYs
	)
	for i, v := range values {
		if math.IsNaN(v) {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: v, Y: depth[i]})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// NewPlot builds the profile figure: velocity on X, depth increasing
// downwards on Y.
func NewPlot(p watercolumn.Profile, title string) (*plot.Plot, error) {
	if len(p.Depth) == 0 {
		return nil, ErrEmptyProfile
	}

	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "Current (m/s)"
	pl.Y.Label.Text = "Depth (m)"
	pl.Y.Scale = plot.InvertedScale{Normalizer: pl.Y.Scale}
	pl.Add(plotter.NewGrid())

	// Points sit at the centre of their bin.
	centre := make([]float64, len(p.Depth))
	for i, z := range p.Depth {
		centre[i] = z + p.BinWidth/2
	}

	for _, c := range components(p) {
		for i, pts := range runs(c.values, centre) {
			line, points, err := plotter.NewLinePoints(pts)
			if err != nil {
				return nil, fmt.Errorf("%s series: %w", c.name, err)
			}
			line.Color = c.color
			line.Width = vg.Points(1)
			points.GlyphStyle.Color = c.color
			points.GlyphStyle.Radius = vg.Points(1.5)
			pl.Add(line, points)
			if i == 0 {
				pl.Legend.Add(c.name, line, points)
			}
		}
	}

	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10
	return pl, nil
}

// SavePNG writes the profile figure to path, creating its directory.
func SavePNG(p watercolumn.Profile, path string) error {
	pl, err := NewPlot(p, "Water column current")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := pl.Save(6*vg.Inch, 10*vg.Inch, path); err != nil {
		return fmt.Errorf("save profile plot: %w", err)
	}
	return nil
}

// lineData converts a component to echarts points; missing bins become
// "-", which echarts draws as a gap.
func lineData(values []float64) []opts.LineData {
	out := make([]opts.LineData, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = opts.LineData{Value: "-"}
			continue
		}
		out[i] = opts.LineData{Value: v}
	}
	return out
}

// RenderHTML writes an interactive line chart of the profile to w, one
// series per component against bin depth.
func RenderHTML(p watercolumn.Profile, w io.Writer) error {
	if len(p.Depth) == 0 {
		return ErrEmptyProfile
	}

	labels := make([]string, len(p.Depth))
	for i, z := range p.Depth {
		labels[i] = fmt.Sprintf("%.0f", z)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Water Column", Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{Title: "Water column current", Subtitle: fmt.Sprintf("bins=%d known=%d width=%gm", len(p.Depth), p.Known(), p.BinWidth)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Depth (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Current (m/s)", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(labels)
	for _, c := range components(p) {
		line.AddSeries(c.name, lineData(c.values))
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("render profile chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
