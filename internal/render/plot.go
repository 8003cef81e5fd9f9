package render

import (
	"bytes"
	"image/color"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// newPlot returns a plot with the given labels and a light grid.
func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	return p
}

// setRange fixes the axis ranges, widening empty ones to keep the scale
// finite.
func setRange(p *plot.Plot, minX, maxX, minY, maxY float64) {
	if maxX-minX < 1e-9 {
		minX, maxX = minX-1, maxX+1
	}
	if maxY-minY < 1e-9 {
		minY, maxY = minY-1, maxY+1
	}
	p.X.Min, p.X.Max = minX, maxX
	p.Y.Min, p.Y.Max = minY, maxY
}

// addLine adds a polyline through xys.
func addLine(p *plot.Plot, xys plotter.XYs, col color.Color, width vg.Length) error {
	if len(xys) == 0 {
		return nil
	}
	l, err := plotter.NewLine(xys)
	if err != nil {
		return eris.Wrap(err, "render: line")
	}
	l.LineStyle.Color = col
	l.LineStyle.Width = width
	p.Add(l)
	return nil
}

// addMarkers adds a scatter of identical glyphs.
func addMarkers(p *plot.Plot, xys plotter.XYs, shape draw.GlyphDrawer, col color.Color, radius vg.Length) (*plotter.Scatter, error) {
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, eris.Wrap(err, "render: scatter")
	}
	s.GlyphStyle = draw.GlyphStyle{Shape: shape, Color: col, Radius: radius}
	p.Add(s)
	return s, nil
}

// savePlot renders p as a w x h pixel PNG at path.
func savePlot(p *plot.Plot, w, h int, path string) error {
	// vgimg maps one point to one pixel at its default 72 DPI.
	wt, err := p.WriterTo(vg.Length(w), vg.Length(h), "png")
	if err != nil {
		return eris.Wrapf(err, "render: plot %s", path)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return eris.Wrapf(err, "render: draw %s", path)
	}
	return writeFile(path, buf.Bytes())
}

// markerRadius converts a scatter marker size (area in points squared) to a
// glyph radius.
func markerRadius(size float64) vg.Length {
	return vg.Length(math.Max(1, math.Sqrt(size)/2))
}
