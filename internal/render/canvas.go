package render

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/rotisserie/eris"
)

var (
	black = color.RGBA{0, 0, 0, 255}
	grey  = color.RGBA{180, 180, 180, 255}
	red   = color.RGBA{200, 30, 30, 255}
	blue  = color.RGBA{30, 60, 200, 255}
)

// canvas is a white RGBA image for per-pixel drawing.
type canvas struct {
	img *image.RGBA
}

func newCanvas(w, h int) *canvas {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 255, 255, 255
	}
	return &canvas{img: img}
}

func (c *canvas) set(x, y int, col color.RGBA) {
	if image.Pt(x, y).In(c.img.Bounds()) {
		c.img.SetRGBA(x, y, col)
	}
}

// ramp maps v in [0, 1] onto a blue-to-yellow colour scale.
func ramp(v float64) color.RGBA {
	v = math.Max(0, math.Min(1, v))
	stops := []color.RGBA{
		{68, 1, 84, 255},
		{59, 82, 139, 255},
		{33, 145, 140, 255},
		{94, 201, 98, 255},
		{253, 231, 37, 255},
	}
	pos := v * float64(len(stops)-1)
	i := int(pos)
	if i >= len(stops)-1 {
		return stops[len(stops)-1]
	}
	f := pos - float64(i)
	a, b := stops[i], stops[i+1]
	mix := func(x, y uint8) uint8 { return uint8(math.Round(float64(x) + f*(float64(y)-float64(x)))) }
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}

// writePNG encodes img to path, reporting close errors.
func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "render: create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "render: close %s", path)
		}
	}()
	if err := png.Encode(f, img); err != nil {
		return eris.Wrapf(err, "render: encode %s", path)
	}
	return nil
}

// writeFile writes data to path, reporting close errors.
func writeFile(path string, data []byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "render: create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "render: close %s", path)
		}
	}()
	if _, err := f.Write(data); err != nil {
		return eris.Wrapf(err, "render: write %s", path)
	}
	return nil
}
