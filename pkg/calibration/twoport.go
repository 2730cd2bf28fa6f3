package calibration

import (
	"errors"
	"fmt"

	"github.com/practable/calibration/pkg/sparam"
)

// twelveTerms holds the error model at one frequency point for both sweep
// directions. The isolation terms are zero throughout: the request carries no
// isolation standard.
type twelveTerms struct {
	p1, p2 terms // reflectometer solves at port 1 (forward) and port 2 (reverse)

	loadMatchF  complex128
	transTrackF complex128
	loadMatchR  complex128
	transTrackR complex128
}

// solveTwelveTerm derives the full error model at one frequency point. The
// port1 and port2 triples are the reflections of short/open/load measured at
// each port; thru is the measured scattering matrix of the thru connection,
// whose ideal is a perfect transmission line (S21 = S12 = 1).
func solveTwelveTerm(gamma [3]complex128, port1, port2 [3]complex128, thru [2][2]complex128) (twelveTerms, error) {
	p1, err := solveThreeTerm(gamma, port1)
	if err != nil {
		return twelveTerms{}, fmt.Errorf("port 1: %w", err)
	}
	p2, err := solveThreeTerm(gamma, port2)
	if err != nil {
		return twelveTerms{}, fmt.Errorf("port 2: %w", err)
	}

	t := twelveTerms{p1: p1, p2: p2}

	// The corrected reflection looking into the thru is the opposite port's
	// load match; transmission tracking follows from the thru transmission.
	t.loadMatchF = p1.correct(thru[0][0])
	t.transTrackF = thru[1][0] * (1 + p1.c*t.loadMatchF)
	t.loadMatchR = p2.correct(thru[1][1])
	t.transTrackR = thru[0][1] * (1 + p2.c*t.loadMatchR)

	if !isFinite(t.loadMatchF) || !isFinite(t.loadMatchR) ||
		!isFinite(t.transTrackF) || !isFinite(t.transTrackR) {
		return twelveTerms{}, errors.New("thru measurement gives non-finite error terms")
	}
	if t.transTrackF == 0 || t.transTrackR == 0 {
		return twelveTerms{}, errors.New("thru transmission is zero")
	}
	return t, nil
}

// deembed applies the twelve-term correction to a measured scattering matrix.
func (t twelveTerms) deembed(m [2][2]complex128) ([2][2]complex128, error) {
	df, sf, rf := t.p1.b, -t.p1.c, t.p1.a-t.p1.b*t.p1.c
	dr, sr, rr := t.p2.b, -t.p2.c, t.p2.a-t.p2.b*t.p2.c

	n11 := (m[0][0] - df) / rf
	n21 := m[1][0] / t.transTrackF
	n12 := m[0][1] / t.transTrackR
	n22 := (m[1][1] - dr) / rr

	d := (1+n11*sf)*(1+n22*sr) - n21*n12*t.loadMatchF*t.loadMatchR

	out := [2][2]complex128{
		{
			(n11*(1+n22*sr) - t.loadMatchF*n21*n12) / d,
			n12 * (1 + n11*(sf-t.loadMatchR)) / d,
		},
		{
			n21 * (1 + n22*(sr-t.loadMatchF)) / d,
			(n22*(1+n11*sf) - t.loadMatchR*n21*n12) / d,
		},
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if !isFinite(out[i][j]) {
				return out, errors.New("correction is not finite")
			}
		}
	}
	return out, nil
}

// TwoPort solves the twelve-term error model from measured short, open, load
// and thru standards, and corrects full two-port device measurements with it.
// Run before Apply.
type TwoPort struct {
	kit   Kit
	freq  []float64
	terms []twelveTerms
}

func NewTwoPort(kit Kit) *TwoPort {
	return &TwoPort{kit: kit}
}

// Run solves the error terms at every frequency point. The reflect standards
// contribute their S11 at port 1 and S22 at port 2; the thru contributes all
// four parameters.
func (c *TwoPort) Run(short, open, load, thru *sparam.TwoPort) error {
	for _, in := range []struct {
		name string
		n    *sparam.TwoPort
	}{{"short", short}, {"open", open}, {"load", load}, {"thru", thru}} {
		if err := in.n.Validate(); err != nil {
			return fmt.Errorf("%s: %w", in.name, err)
		}
		if err := sameAxis(short.Freq, in.n.Freq); err != nil {
			return fmt.Errorf("%s: %w", in.name, err)
		}
	}

	gamma := [3]complex128{c.kit.Short.Complex(), c.kit.Open.Complex(), c.kit.Load.Complex()}

	c.freq = short.Freq
	c.terms = make([]twelveTerms, 0, short.Points())
	for i := range short.Freq {
		t, err := solveTwelveTerm(gamma,
			[3]complex128{short.S11[i], open.S11[i], load.S11[i]},
			[3]complex128{short.S22[i], open.S22[i], load.S22[i]},
			thru.At(i))
		if err != nil {
			c.terms = nil
			return fmt.Errorf("point %d (%g Hz): %w", i, short.Freq[i], err)
		}
		c.terms = append(c.terms, t)
	}
	return nil
}

// Apply corrects a measured device, returning the de-embedded two-port
// network on the calibration's frequency axis.
func (c *TwoPort) Apply(dut *sparam.TwoPort) (*sparam.TwoPort, error) {
	if c.terms == nil {
		return nil, ErrNotRun
	}
	if err := dut.Validate(); err != nil {
		return nil, fmt.Errorf("dut: %w", err)
	}
	if err := sameAxis(c.freq, dut.Freq); err != nil {
		return nil, fmt.Errorf("dut: %w", err)
	}

	n := dut.Points()
	out := &sparam.TwoPort{
		Freq: dut.Freq,
		S11:  make([]complex128, n),
		S12:  make([]complex128, n),
		S21:  make([]complex128, n),
		S22:  make([]complex128, n),
	}
	for i := 0; i < n; i++ {
		s, err := c.terms[i].deembed(dut.At(i))
		if err != nil {
			return nil, fmt.Errorf("point %d (%g Hz): %w", i, dut.Freq[i], err)
		}
		out.S11[i] = s[0][0]
		out.S12[i] = s[0][1]
		out.S21[i] = s[1][0]
		out.S22[i] = s[1][1]
	}
	return out, nil
}
