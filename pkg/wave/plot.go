package wave

import (
	"bytes"
	"fmt"
	"image/color"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotEnergy renders the RMS energy curve as a JPEG image.
func (w *Waveform) PlotEnergy(name string) ([]byte, error) {
	window := 50 * time.Millisecond
	rms := w.RMS(window)
	return createPlot(name, rms, 0, 1, window.Seconds(), 0.01)
}

// PlotWave renders the min/max waveform envelope as a JPEG image.
func (w *Waveform) PlotWave(name string) ([]byte, error) {
	window := 50 * time.Millisecond
	resampled := w.Resample(window)
	return createPlot(name, resampled, -1, 1, window.Seconds(), 0.00)
}

func createPlot(name string, data []float64, min, max float64, window float64, line float64) ([]byte, error) {
	p := plot.New()

	p.Y.Min = min
	p.Y.Max = max

	d := time.Duration(float64(len(data))*window*0.5) * time.Second
	p.Title.Text = fmt.Sprintf("%s %s", name, d)
	p.X.Label.Text = "time"
	p.Y.Label.Text = "data"

	l, err := plotter.NewLine(makePoints(data))
	if err != nil {
		return nil, fmt.Errorf("wave: couldn't create line plotter: %w", err)
	}
	l.LineStyle.Width = vg.Points(1)
	p.Add(l)

	// Threshold marker
	if line > 0 {
		hLine := plotter.NewFunction(func(x float64) float64 { return line })
		hLine.Color = color.RGBA{R: 255, A: 255}
		p.Add(hLine)
	}

	c, err := p.WriterTo(4*vg.Inch, 4*vg.Inch, "jpeg")
	if err != nil {
		return nil, fmt.Errorf("wave: couldn't create plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("wave: couldn't write plot: %w", err)
	}
	return buf.Bytes(), nil
}

func makePoints(samples []float64) plotter.XYs {
	pts := make(plotter.XYs, len(samples))
	for i, v := range samples {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	return pts
}
