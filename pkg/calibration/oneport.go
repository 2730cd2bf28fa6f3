// Package calibration implements SOLT error correction for one-port and
// two-port scattering parameter measurements: the three-term model solved
// from short/open/load reflections, and the twelve-term model which adds the
// thru standard. Networks go in, corrected networks come out; the conversion
// from wire messages lives in pkg/sparam.
package calibration

import (
	"errors"
	"fmt"
	"math/cmplx"

	"github.com/practable/calibration/pkg/sparam"
)

var (
	ErrNotRun            = errors.New("calibration has not been run")
	ErrSingular          = errors.New("standards do not give independent equations")
	ErrFrequencyMismatch = errors.New("frequency axes do not match")
)

// terms of the error model at one frequency point, in the bilinear form
//
//	M = (b + a*G) / (1 + c*G)
//
// where G is the true reflection coefficient and M the measured one. The
// directivity is b, the source match is -c and the reflection tracking is
// a - b*c.
type terms struct {
	a, b, c complex128
}

// correct inverts the model, recovering the true reflection coefficient from
// a measured one.
func (t terms) correct(m complex128) complex128 {
	return (m - t.b) / (t.a - t.c*m)
}

// solveThreeTerm fits the model through three (ideal, measured) pairs. Each
// standard contributes one linear equation a*G + b - c*G*M = M; the three are
// solved by Cramer's rule.
func solveThreeTerm(gamma, meas [3]complex128) (terms, error) {
	var m [3][3]complex128
	for i := 0; i < 3; i++ {
		m[i] = [3]complex128{gamma[i], 1, -gamma[i] * meas[i]}
	}

	d := det3(m)
	if d == 0 {
		return terms{}, ErrSingular
	}

	t := terms{
		a: det3(replaceCol(m, 0, meas)) / d,
		b: det3(replaceCol(m, 1, meas)) / d,
		c: det3(replaceCol(m, 2, meas)) / d,
	}
	if !isFinite(t.a) || !isFinite(t.b) || !isFinite(t.c) {
		return terms{}, ErrSingular
	}
	return t, nil
}

func det3(m [3][3]complex128) complex128 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

func replaceCol(m [3][3]complex128, col int, v [3]complex128) [3][3]complex128 {
	for i := 0; i < 3; i++ {
		m[i][col] = v[i]
	}
	return m
}

func isFinite(v complex128) bool {
	return !cmplx.IsInf(v) && !cmplx.IsNaN(v)
}

func sameAxis(ref, got []float64) error {
	if len(got) != len(ref) {
		return fmt.Errorf("%w (have %d points, want %d)", ErrFrequencyMismatch, len(got), len(ref))
	}
	for i := range ref {
		if got[i] != ref[i] {
			return fmt.Errorf("%w (point %d is %g, want %g)", ErrFrequencyMismatch, i, got[i], ref[i])
		}
	}
	return nil
}

// OnePort solves the three-term error model (directivity, source match,
// reflection tracking) from measured standards and corrects device
// measurements with it. Run before Apply.
type OnePort struct {
	kit   Kit
	freq  []float64
	terms []terms
}

func NewOnePort(kit Kit) *OnePort {
	return &OnePort{kit: kit}
}

// Run solves the error terms at every frequency point from the measured
// short, open and load standards.
func (c *OnePort) Run(short, open, load *sparam.OnePort) error {
	for _, in := range []struct {
		name string
		n    *sparam.OnePort
	}{{"short", short}, {"open", open}, {"load", load}} {
		if err := in.n.Validate(); err != nil {
			return fmt.Errorf("%s: %w", in.name, err)
		}
		if err := sameAxis(short.Freq, in.n.Freq); err != nil {
			return fmt.Errorf("%s: %w", in.name, err)
		}
	}

	gamma := [3]complex128{c.kit.Short.Complex(), c.kit.Open.Complex(), c.kit.Load.Complex()}

	c.freq = short.Freq
	c.terms = make([]terms, 0, short.Points())
	for i := range short.S11 {
		t, err := solveThreeTerm(gamma, [3]complex128{short.S11[i], open.S11[i], load.S11[i]})
		if err != nil {
			c.terms = nil
			return fmt.Errorf("point %d (%g Hz): %w", i, short.Freq[i], err)
		}
		c.terms = append(c.terms, t)
	}
	return nil
}

// Apply corrects a measured device, returning the de-embedded network on the
// same frequency axis the calibration was run on.
func (c *OnePort) Apply(dut *sparam.OnePort) (*sparam.OnePort, error) {
	if c.terms == nil {
		return nil, ErrNotRun
	}
	if err := dut.Validate(); err != nil {
		return nil, fmt.Errorf("dut: %w", err)
	}
	if err := sameAxis(c.freq, dut.Freq); err != nil {
		return nil, fmt.Errorf("dut: %w", err)
	}

	out := make([]complex128, dut.Points())
	for i, m := range dut.S11 {
		v := c.terms[i].correct(m)
		if !isFinite(v) {
			return nil, fmt.Errorf("point %d (%g Hz): correction is not finite", i, dut.Freq[i])
		}
		out[i] = v
	}
	return &sparam.OnePort{Freq: dut.Freq, S11: out}, nil
}
