// Package quicklook renders PNG previews of flood masks and of PIF regressions.
// Nothing in the processing chain depends on it.
package quicklook

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MeKo-Tech/marisma/internal/raster"
)

// Palette maps flood codes to colours.
var (
	DryColor     = color.NRGBA{R: 222, G: 205, B: 160, A: 255}
	FloodedColor = color.NRGBA{R: 30, G: 100, B: 200, A: 255}
	InvalidColor = color.NRGBA{R: 170, G: 170, B: 170, A: 255}
	NoDataColor  = color.NRGBA{A: 0}
)

const labelHeight = 20

// FloodImage renders a mask, scaled to fit within maxSize pixels on its longest
// side, with an optional caption bar underneath.
func FloodImage(m *raster.Mask, caption string, maxSize int) (image.Image, error) {
	if m.Width == 0 || m.Height == 0 {
		return nil, fmt.Errorf("empty mask")
	}
	img := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	for y := range m.Height {
		for x := range m.Width {
			var c color.NRGBA
			switch m.Data[y*m.Width+x] {
			case 0:
				c = DryColor
			case 1:
				c = FloodedColor
			case 2:
				c = InvalidColor
			default:
				c = NoDataColor
			}
			img.SetNRGBA(x, y, c)
		}
	}

	var out image.Image = img
	if maxSize > 0 && (m.Width > maxSize || m.Height > maxSize) {
		out = imaging.Fit(img, maxSize, maxSize, imaging.NearestNeighbor)
	}
	if caption == "" {
		return out, nil
	}

	b := out.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy()+labelHeight, color.White)
	canvas = imaging.Paste(canvas, out, image.Pt(0, 0))
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(4, b.Dy()+labelHeight-5),
	}
	d.DrawString(caption)
	return canvas, nil
}

// WriteFloodPNG renders the mask and saves it as PNG.
func WriteFloodPNG(path string, m *raster.Mask, caption string, maxSize int) error {
	img, err := FloodImage(m, caption, maxSize)
	if err != nil {
		return err
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save quicklook %s: %w", path, err)
	}
	return nil
}
