// Package render writes the post-processing artifacts to disk. The beachball
// is filled pixel by pixel; the station coverage, waveform fit and grid
// search are gonum/plot charts. The two maps get GeoJSON sidecars and the
// preliminary fit is dumped as YAML.
package render

import (
	"context"
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg/draw"
	"gopkg.in/yaml.v3"

	"github.com/geoscience-au/wphase-post/internal/postprocess"
	"github.com/geoscience-au/wphase-post/internal/seismo"
	"github.com/geoscience-au/wphase-post/internal/tensor"
)

// File extensions appended to the artifact paths.
const (
	ExtPNG     = ".png"
	ExtGeoJSON = ".geojson"
	ExtYAML    = ".yaml"
)

// FileRenderer implements postprocess.Renderer on the local filesystem.
type FileRenderer struct {
	// Size is the edge length in pixels of square images; waveform plots
	// are twice as wide.
	Size int
}

var _ postprocess.Renderer = (*FileRenderer)(nil)

// NewFileRenderer creates a FileRenderer with 400 pixel images.
func NewFileRenderer() *FileRenderer {
	return &FileRenderer{Size: 400}
}

func (r *FileRenderer) size() int {
	if r.Size < 64 {
		return 64
	}
	return r.Size
}

// Beachball draws the lower-hemisphere equal-area focal sphere of m:
// compressional quadrants black, dilatational white.
func (r *FileRenderer) Beachball(ctx context.Context, m tensor.MT, path string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "render: beachball")
	}
	n := r.size()
	c := newCanvas(n, n)
	radius := float64(n)/2 - 2
	center := float64(n) / 2
	sym := m.Matrix()

	for py := 0; py < n; py++ {
		for px := 0; px < n; px++ {
			east := (float64(px) + 0.5 - center) / radius
			north := (center - float64(py) - 0.5) / radius
			rr := math.Hypot(east, north)
			if rr > 1 {
				continue
			}
			// Equal-area: rr = sqrt(2) sin(theta/2), theta from nadir.
			theta := 2 * math.Asin(rr/math.Sqrt2)
			phi := math.Atan2(east, north)
			st, ct := math.Sincos(theta)
			// (r, t, p) = (up, south, east) of a downward ray.
			v := []float64{-ct, -st * math.Cos(phi), st * math.Sin(phi)}
			amp := 0.0
			for i := range 3 {
				for j := range 3 {
					amp += v[i] * sym.At(i, j) * v[j]
				}
			}
			if amp > 0 {
				c.set(px, py, black)
			}
		}
	}
	// Outline.
	for a := 0.0; a < 2*math.Pi; a += 0.5 / radius {
		c.set(int(center+radius*math.Cos(a)), int(center+radius*math.Sin(a)), black)
	}

	zap.L().Debug("render: beachball", zap.String("path", path+ExtPNG))
	return writePNG(path+ExtPNG, c.img)
}

// StationCoverage plots the epicenter and stations on a lon/lat frame and
// writes the same points as GeoJSON.
func (r *FileRenderer) StationCoverage(ctx context.Context, cov postprocess.Coverage, path string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "render: station coverage")
	}
	if cov.Epicenter == nil {
		return eris.New("render: station coverage without epicenter")
	}

	p := newPlot("Station distribution", "Longitude", "Latitude")
	epi := plotter.XY{X: cov.Epicenter.X(), Y: cov.Epicenter.Y()}
	stations := make(plotter.XYs, len(cov.Stations))
	for i, s := range cov.Stations {
		stations[i] = plotter.XY{X: s.X(), Y: s.Y()}
		if err := addLine(p, plotter.XYs{stations[i], epi}, grey, 0.5); err != nil {
			return err
		}
	}
	if len(stations) > 0 {
		if _, err := addMarkers(p, stations, draw.TriangleGlyph{}, blue, 3); err != nil {
			return err
		}
	}
	if _, err := addMarkers(p, plotter.XYs{epi}, draw.CrossGlyph{}, red, 5); err != nil {
		return err
	}
	minX, maxX, minY, maxY := pointBounds(append([]*geom.Point{cov.Epicenter}, cov.Stations...))
	setRange(p, minX, maxX, minY, maxY)

	n := r.size()
	if err := savePlot(p, n, n, path+ExtPNG); err != nil {
		return err
	}

	features := []*geojson.Feature{{
		Geometry:   cov.Epicenter,
		Properties: map[string]interface{}{"kind": "epicenter"},
	}}
	for i, s := range cov.Stations {
		props := map[string]interface{}{"kind": "station"}
		if i < len(cov.TraceIDs) {
			props["trace_id"] = cov.TraceIDs[i]
			props["station"] = seismo.StationCode(cov.TraceIDs[i])
		}
		features = append(features, &geojson.Feature{Geometry: s, Properties: props})
	}
	return writeGeoJSON(path+ExtGeoJSON, features)
}

// PreliminaryFit dumps the preliminary fit details as YAML.
func (r *FileRenderer) PreliminaryFit(ctx context.Context, details map[string]any, path string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "render: preliminary fit")
	}
	data, err := yaml.Marshal(details)
	if err != nil {
		return eris.Wrap(err, "render: marshal preliminary fit")
	}
	return writeFile(path+ExtYAML, data)
}

// Waveforms plots the concatenated observed (black) and synthetic (red)
// traces, separating traces with grey rules.
func (r *FileRenderer) Waveforms(ctx context.Context, fit postprocess.WaveformFit, path string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "render: waveforms")
	}
	if len(fit.Observed) != len(fit.Synthetic) {
		return eris.Errorf("render: %d observed but %d synthetic samples",
			len(fit.Observed), len(fit.Synthetic))
	}
	total := 0
	for _, tl := range fit.TraceLengths {
		total += tl.Length
	}
	if total != len(fit.Observed) {
		return eris.Errorf("render: trace lengths sum to %d, have %d samples", total, len(fit.Observed))
	}

	lo, hi := 0.0, 0.0
	if total > 0 {
		lo = min(floats.Min(fit.Observed), floats.Min(fit.Synthetic), 0)
		hi = max(floats.Max(fit.Observed), floats.Max(fit.Synthetic), 0)
	}

	p := newPlot("W-phase fit", "Sample", "Displacement")
	offset := 0
	for _, tl := range fit.TraceLengths {
		if offset > 0 {
			x := float64(offset) - 0.5
			if err := addLine(p, plotter.XYs{{X: x, Y: lo}, {X: x, Y: hi}}, grey, 0.5); err != nil {
				return err
			}
		}
		obs := make(plotter.XYs, tl.Length)
		syn := make(plotter.XYs, tl.Length)
		for i := range tl.Length {
			x := float64(offset + i)
			obs[i] = plotter.XY{X: x, Y: fit.Observed[offset+i]}
			syn[i] = plotter.XY{X: x, Y: fit.Synthetic[offset+i]}
		}
		if err := addLine(p, obs, black, 1); err != nil {
			return err
		}
		if err := addLine(p, syn, red, 1); err != nil {
			return err
		}
		offset += tl.Length
	}
	setRange(p, 0, float64(max(total-1, 1)), lo, hi)

	n := r.size()
	return savePlot(p, 2*n, n, path+ExtPNG)
}

// GridSearch draws the depth-summed misfit field as sized, coloured markers
// with the epicenter and centroid marked, and writes the field as GeoJSON.
func (r *FileRenderer) GridSearch(ctx context.Context, plot postprocess.GridPlot, path string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "render: grid search")
	}
	if plot.Field == nil {
		return eris.New("render: grid search without field")
	}
	f := plot.Field
	if len(plot.Sizes) != len(f.Footprint) || len(plot.Colors) != len(f.Footprint) {
		return eris.Errorf("render: %d footprint points, %d sizes, %d colours",
			len(f.Footprint), len(plot.Sizes), len(plot.Colors))
	}

	pts := []*geom.Point{
		seismo.NewPoint(plot.Epicenter.Latitude, plot.Epicenter.Longitude),
		seismo.NewPoint(plot.Centroid.Latitude, plot.Centroid.Longitude),
	}
	grid := make(plotter.XYs, len(f.Footprint))
	features := make([]*geojson.Feature, 0, len(f.Footprint)+2)
	for i, fp := range f.Footprint {
		pt := seismo.NewPoint(fp[0], fp[1])
		pts = append(pts, pt)
		grid[i] = plotter.XY{X: fp[1], Y: fp[0]}
		features = append(features, &geojson.Feature{
			Geometry: pt,
			Properties: map[string]interface{}{
				"kind":   "grid",
				"misfit": plot.Colors[i],
				"size":   plot.Sizes[i],
			},
		})
	}

	p := newPlot("Grid search", "Longitude", "Latitude")
	if len(grid) > 0 {
		cLo, cHi := floats.Min(plot.Colors), floats.Max(plot.Colors)
		s, err := addMarkers(p, grid, draw.CircleGlyph{}, black, 1)
		if err != nil {
			return err
		}
		s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			shade := 0.0
			if cHi > cLo {
				shade = (plot.Colors[i] - cLo) / (cHi - cLo)
			}
			return draw.GlyphStyle{Shape: draw.CircleGlyph{}, Color: ramp(shade), Radius: markerRadius(plot.Sizes[i])}
		}
	}
	epi := plotter.XY{X: plot.Epicenter.Longitude, Y: plot.Epicenter.Latitude}
	if _, err := addMarkers(p, plotter.XYs{epi}, draw.CrossGlyph{}, red, 5); err != nil {
		return err
	}
	cen := plotter.XY{X: plot.Centroid.Longitude, Y: plot.Centroid.Latitude}
	if _, err := addMarkers(p, plotter.XYs{cen}, draw.CircleGlyph{}, black, 4); err != nil {
		return err
	}
	minX, maxX, minY, maxY := pointBounds(pts)
	setRange(p, minX, maxX, minY, maxY)

	n := r.size()
	if err := savePlot(p, n, n, path+ExtPNG); err != nil {
		return err
	}

	features = append(features,
		&geojson.Feature{Geometry: pts[0], Properties: map[string]interface{}{"kind": "epicenter", "depth": plot.Epicenter.Depth}},
		&geojson.Feature{Geometry: pts[1], Properties: map[string]interface{}{"kind": "centroid", "depth": plot.Centroid.Depth}},
	)
	return writeGeoJSON(path+ExtGeoJSON, features)
}

func pointBounds(pts []*geom.Point) (minX, maxX, minY, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = math.Min(minX, p.X()), math.Max(maxX, p.X())
		minY, maxY = math.Min(minY, p.Y()), math.Max(maxY, p.Y())
	}
	padX := (maxX - minX) * 0.05
	padY := (maxY - minY) * 0.05
	return minX - padX, maxX + padX, minY - padY, maxY + padY
}

func writeGeoJSON(path string, features []*geojson.Feature) error {
	data, err := json.Marshal(&geojson.FeatureCollection{Features: features})
	if err != nil {
		return eris.Wrap(err, "render: marshal geojson")
	}
	return writeFile(path, data)
}
