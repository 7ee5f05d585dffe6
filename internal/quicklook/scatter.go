package quicklook

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/floats"

	"github.com/MeKo-Tech/marisma/internal/pif"
)

// ErrNoSamples is returned when a fit carries no calibration samples.
var ErrNoSamples = errors.New("fit has no samples")

// zoneColors gives each PIF class a distinct colour, index 0 is Sea.
var zoneColors = [pif.NumZones]color.RGBA{
	{31, 119, 180, 255}, {23, 190, 207, 255}, {44, 160, 44, 255},
	{214, 39, 40, 255}, {255, 127, 14, 255}, {127, 127, 127, 255},
	{188, 189, 34, 255}, {148, 103, 189, 255}, {140, 86, 75, 255},
}

const margin = 50.0

// ScatterImage plots the retained calibration pixels of a fit, coloured by
// zone, with the fitted line and a caption.
func ScatterImage(fit *pif.Fit, title string, size int) (image.Image, error) {
	if fit == nil || fit.Samples == nil || len(fit.Samples.Current) == 0 {
		return nil, ErrNoSamples
	}
	s := fit.Samples
	xmin, xmax := floats.Min(s.Current), floats.Max(s.Current)
	ymin, ymax := floats.Min(s.Reference), floats.Max(s.Reference)
	if xmax == xmin {
		xmax = xmin + 1
	}
	if ymax == ymin {
		ymax = ymin + 1
	}

	w := float64(size)
	plot := w - 2*margin
	px := func(x float64) float64 { return margin + (x-xmin)/(xmax-xmin)*plot }
	py := func(y float64) float64 { return w - margin - (y-ymin)/(ymax-ymin)*plot }

	dc := gg.NewContext(size, size)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawRectangle(margin, margin, plot, plot)
	dc.Stroke()

	for k := range s.Current {
		c := color.RGBA{A: 255}
		if z := s.Zones[k]; z.Valid() {
			c = zoneColors[z-1]
		}
		dc.SetColor(c)
		dc.DrawPoint(px(s.Current[k]), py(s.Reference[k]), 1.5)
		dc.Fill()
	}

	dc.SetRGB(0.8, 0, 0)
	dc.SetLineWidth(2)
	dc.DrawLine(px(xmin), py(fit.Slope*xmin+fit.Intercept), px(xmax), py(fit.Slope*xmax+fit.Intercept))
	dc.Stroke()

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, w/2, margin/2, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("y = %.4fx %+.4f  r = %.3f  n = %d", fit.Slope, fit.Intercept, fit.R, fit.N),
		w/2, w-margin/2, 0.5, 0.5)

	legendY := margin + 10
	for _, z := range pif.AllZones() {
		dc.SetColor(zoneColors[z-1])
		dc.DrawRectangle(margin+8, legendY-6, 8, 8)
		dc.Fill()
		dc.SetRGB(0, 0, 0)
		dc.DrawString(fmt.Sprintf("%s (%d)", z.Label(), fit.ZoneCounts.Of(z)), margin+20, legendY+2)
		legendY += 14
	}
	return dc.Image(), nil
}

// WriteScatterPNG renders the fit and saves it as PNG.
func WriteScatterPNG(path string, fit *pif.Fit, title string, size int) error {
	img, err := ScatterImage(fit, title, size)
	if err != nil {
		return err
	}
	if err := gg.SavePNG(path, img); err != nil {
		return fmt.Errorf("failed to save scatter %s: %w", path, err)
	}
	return nil
}
