// Package prep builds the one-port calibration fixtures from pocketVNA
// measurement files: the expected calibration result, diagnostic plots, and
// the JSON request used to drive the relay.
package prep

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/practable/calibration/pkg/calibration"
	"github.com/practable/calibration/pkg/sparam"
	"github.com/practable/calibration/pkg/touchstone"
)

// OnePortConfig holds the directory roots for the fixture preparation.
type OnePortConfig struct {
	TestDir string // fixture tree: measured inputs, expected and json outputs
	ImgDir  string // diagnostic plot tree
}

// OnePortResult reports what was written.
type OnePortResult struct {
	Points   int
	Expected string
	Request  string
	Plots    []string
}

// RunOnePort reads the measured standards and the uncalibrated device from
// TestDir, runs the one-port calibration, and writes the expected result,
// the diagnostic plots and the JSON request fixture.
func RunOnePort(cfg OnePortConfig) (*OnePortResult, error) {
	measuredDir := filepath.Join(cfg.TestDir, "measured", "oneport")
	suppliedDir := filepath.Join(cfg.TestDir, "supplied", "oneport")

	// the pocketVNA measures two ports; the data we want is S11
	standards := make(map[string]*sparam.OnePort, 3)
	for _, name := range []string{"short", "open", "load"} {
		n, err := touchstone.ReadTwoPort(filepath.Join(measuredDir, name+".s2p"))
		if err != nil {
			return nil, fmt.Errorf("reading measured %s standard: %w", name, err)
		}
		standards[name] = n.S11Network()
	}

	cal := calibration.NewOnePort(calibration.DefaultKit())
	if err := cal.Run(standards["short"], standards["open"], standards["load"]); err != nil {
		return nil, fmt.Errorf("running calibration: %w", err)
	}

	uncal, err := touchstone.ReadTwoPort(filepath.Join(suppliedDir, "DUTuncal.s2p"))
	if err != nil {
		return nil, fmt.Errorf("reading uncalibrated device: %w", err)
	}
	dut := uncal.S11Network()

	caled, err := cal.Apply(dut)
	if err != nil {
		return nil, fmt.Errorf("applying calibration: %w", err)
	}

	expectedPath := filepath.Join(cfg.TestDir, "expected", "oneport", "expected.s1p")
	if err := os.MkdirAll(filepath.Dir(expectedPath), 0755); err != nil {
		return nil, err
	}
	if err := touchstone.WriteOnePort(expectedPath, caled); err != nil {
		return nil, fmt.Errorf("writing %s: %w", expectedPath, err)
	}

	// the independently calibrated device, for comparison plots
	supplied2port, err := touchstone.ReadTwoPort(filepath.Join(suppliedDir, "DUTcal.s2p"))
	if err != nil {
		return nil, fmt.Errorf("reading calibrated device: %w", err)
	}
	supplied := supplied2port.S11Network()
	if supplied.Points() != caled.Points() {
		return nil, fmt.Errorf("calibrated device has %d points, want %d", supplied.Points(), caled.Points())
	}

	plots, err := writePlots(filepath.Join(cfg.ImgDir, "oneport"), caled, supplied)
	if err != nil {
		return nil, err
	}

	requestPath := filepath.Join(cfg.TestDir, "json", "oneport", "oneport.json")
	if err := writeRequest(requestPath, standards, dut); err != nil {
		return nil, err
	}

	return &OnePortResult{
		Points:   caled.Points(),
		Expected: expectedPath,
		Request:  requestPath,
		Plots:    plots,
	}, nil
}

// writePlots draws the magnitude and phase of the calibrated and supplied
// networks, and the differences between them.
func writePlots(dir string, caled, supplied *sparam.OnePort) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	caledDB := sparam.MagnitudeDB(caled.S11)
	suppliedDB := sparam.MagnitudeDB(supplied.S11)
	caledDeg := sparam.PhaseDeg(caled.S11)
	suppliedDeg := sparam.PhaseDeg(supplied.S11)

	plots := []struct {
		name string
		draw func(p *plot.Plot) error
	}{
		{"demo-db.png", func(p *plot.Plot) error {
			p.Y.Label.Text = "Magnitude (dB)"
			return overlay(p, caled.Freq, caledDB, suppliedDB)
		}},
		{"demo-deg.png", func(p *plot.Plot) error {
			p.Y.Label.Text = "Phase (deg)"
			return overlay(p, caled.Freq, caledDeg, suppliedDeg)
		}},
		{"demo-db-error.png", func(p *plot.Plot) error {
			p.Y.Label.Text = "Error (dB)"
			return single(p, caled.Freq, sub(caledDB, suppliedDB))
		}},
		{"demo-deg-error.png", func(p *plot.Plot) error {
			p.Y.Label.Text = "Error (deg)"
			p.Y.Min, p.Y.Max = -180, 180
			return single(p, caled.Freq, sub(caledDeg, suppliedDeg))
		}},
	}

	var written []string
	for _, pl := range plots {
		p := plot.New()
		p.X.Label.Text = "Frequency (Hz)"
		if err := pl.draw(p); err != nil {
			return nil, fmt.Errorf("plotting %s: %w", pl.name, err)
		}
		path := filepath.Join(dir, pl.name)
		if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
			return nil, fmt.Errorf("saving %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// overlay draws the calibrated trace over the supplied one.
func overlay(p *plot.Plot, freq, caled, supplied []float64) error {
	cline, err := plotter.NewLine(points(freq, caled))
	if err != nil {
		return err
	}
	cline.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}

	sline, err := plotter.NewLine(points(freq, supplied))
	if err != nil {
		return err
	}
	sline.Color = color.RGBA{R: 255, G: 127, B: 14, A: 255}

	p.Add(cline, sline)
	p.Legend.Add("calibrated", cline)
	p.Legend.Add("supplied", sline)
	return nil
}

func single(p *plot.Plot, freq, y []float64) error {
	line, err := plotter.NewLine(points(freq, y))
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(line)
	return nil
}

func points(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i].X = x[i]
		pts[i].Y = y[i]
	}
	return pts
}

func sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

// writeRequest serialises the measured arrays as the JSON message the relay
// expects, so the fixture can be replayed with websocat or cmd/sendrequest.
func writeRequest(path string, standards map[string]*sparam.OnePort, dut *sparam.OnePort) error {
	req := sparam.OnePortRequest{
		Cmd:   "oneport",
		Freq:  dut.Freq,
		Short: sparam.FromComplexes(standards["short"].S11),
		Open:  sparam.FromComplexes(standards["open"].S11),
		Load:  sparam.FromComplexes(standards["load"].S11),
		DUT:   sparam.FromComplexes(dut.S11),
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
