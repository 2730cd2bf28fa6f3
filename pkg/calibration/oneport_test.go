package calibration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practable/calibration/pkg/sparam"
)

// errorBox is a synthetic one-port reflectometer for building test
// measurements: directivity d, source match s, reflection tracking r.
type errorBox struct {
	d, s, r complex128
}

// measure passes a true reflection coefficient through the box.
func (e errorBox) measure(g complex128) complex128 {
	return e.d + e.r*g/(1-e.s*g)
}

// testBox returns a mildly frequency-dependent error box for point i.
func testBox(i int) errorBox {
	k := complex(float64(i), 0)
	return errorBox{
		d: complex(0.05, 0.02) + k*complex(0.001, -0.002),
		s: complex(0.10, -0.03) + k*complex(-0.002, 0.001),
		r: complex(0.90, 0.10) + k*complex(0.003, 0.002),
	}
}

func onePortFixture(points int) (short, open, load, dutMeas, dutTruth *sparam.OnePort) {
	kit := DefaultKit()
	freq := make([]float64, points)
	short = &sparam.OnePort{Freq: freq, S11: make([]complex128, points)}
	open = &sparam.OnePort{Freq: freq, S11: make([]complex128, points)}
	load = &sparam.OnePort{Freq: freq, S11: make([]complex128, points)}
	dutMeas = &sparam.OnePort{Freq: freq, S11: make([]complex128, points)}
	dutTruth = &sparam.OnePort{Freq: freq, S11: make([]complex128, points)}

	for i := 0; i < points; i++ {
		freq[i] = 1e6 * float64(i+1)
		box := testBox(i)
		short.S11[i] = box.measure(kit.Short.Complex())
		open.S11[i] = box.measure(kit.Open.Complex())
		load.S11[i] = box.measure(kit.Load.Complex())

		truth := complex(0.3, -0.2) + complex(float64(i), 0)*complex(0.01, 0.02)
		dutTruth.S11[i] = truth
		dutMeas.S11[i] = box.measure(truth)
	}
	return
}

func TestOnePortRecoversKnownDevice(t *testing.T) {
	short, open, load, dutMeas, dutTruth := onePortFixture(5)

	cal := NewOnePort(DefaultKit())
	require.NoError(t, cal.Run(short, open, load))

	got, err := cal.Apply(dutMeas)
	require.NoError(t, err)
	require.Equal(t, dutTruth.Points(), got.Points())

	for i := range got.S11 {
		assert.InDelta(t, real(dutTruth.S11[i]), real(got.S11[i]), 1e-9, "point %d real", i)
		assert.InDelta(t, imag(dutTruth.S11[i]), imag(got.S11[i]), 1e-9, "point %d imag", i)
	}
}

func TestOnePortApplyBeforeRun(t *testing.T) {
	cal := NewOnePort(DefaultKit())
	_, _, _, dutMeas, _ := onePortFixture(3)

	_, err := cal.Apply(dutMeas)
	assert.ErrorIs(t, err, ErrNotRun)
}

func TestOnePortRunRejectsMismatchedAxes(t *testing.T) {
	short, open, load, _, _ := onePortFixture(4)
	open.Freq = open.Freq[:3]
	open.S11 = open.S11[:3]

	err := NewOnePort(DefaultKit()).Run(short, open, load)
	assert.ErrorIs(t, err, ErrFrequencyMismatch)
}

func TestOnePortRunRejectsDegenerateStandards(t *testing.T) {
	freq := []float64{1e6, 2e6}
	flat := &sparam.OnePort{Freq: freq, S11: []complex128{0, 0}}

	err := NewOnePort(DefaultKit()).Run(flat, flat, flat)
	assert.ErrorIs(t, err, ErrSingular)
}

func TestOnePortApplyRejectsWrongAxis(t *testing.T) {
	short, open, load, dutMeas, _ := onePortFixture(3)

	cal := NewOnePort(DefaultKit())
	require.NoError(t, cal.Run(short, open, load))

	dutMeas.Freq = []float64{9e6, 10e6, 11e6}
	_, err := cal.Apply(dutMeas)
	assert.ErrorIs(t, err, ErrFrequencyMismatch)
}

func TestOnePortApplyReportsNonFiniteCorrection(t *testing.T) {
	short, open, load, dutMeas, _ := onePortFixture(3)

	cal := NewOnePort(DefaultKit())
	require.NoError(t, cal.Run(short, open, load))

	dutMeas.S11[1] = complex(math.NaN(), 0)
	_, err := cal.Apply(dutMeas)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not finite")
}
