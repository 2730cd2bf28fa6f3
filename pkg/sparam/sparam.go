// Package sparam holds the scattering parameter data model shared by the
// websocket wire format, the calibration engines and the Touchstone files.
// Requests live only for the duration of one message; nothing here is
// retained between messages.
package sparam

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

var (
	ErrNoFrequencies = errors.New("no frequency points")
	ErrShapeMismatch = errors.New("array length does not match frequency axis")
)

// ComplexArray is the wire form of a complex-valued array: parallel real and
// imaginary sequences. Index i in both refers to the same frequency point.
type ComplexArray struct {
	Real []float64 `json:"real"`
	Imag []float64 `json:"imag"`
}

// FromComplexes splits s into parallel real and imaginary arrays.
func FromComplexes(s []complex128) ComplexArray {
	a := ComplexArray{
		Real: make([]float64, len(s)),
		Imag: make([]float64, len(s)),
	}
	for i, v := range s {
		a.Real[i] = real(v)
		a.Imag[i] = imag(v)
	}
	return a
}

// Complexes rejoins the parallel arrays. Real and Imag must be the same
// length, which Validate on the enclosing request guarantees.
func (a ComplexArray) Complexes() []complex128 {
	s := make([]complex128, len(a.Real))
	for i := range a.Real {
		s[i] = complex(a.Real[i], a.Imag[i])
	}
	return s
}

// Network builds a one-port network on the given frequency axis.
func (a ComplexArray) Network(freq []float64) *OnePort {
	return &OnePort{Freq: freq, S11: a.Complexes()}
}

// check verifies both arrays hold exactly n values, naming the slot in any
// error so the log line identifies the offending part of the request.
func (a ComplexArray) check(slot string, n int) error {
	if len(a.Real) != n {
		return fmt.Errorf("%s real: %w (have %d, want %d)", slot, ErrShapeMismatch, len(a.Real), n)
	}
	if len(a.Imag) != n {
		return fmt.Errorf("%s imag: %w (have %d, want %d)", slot, ErrShapeMismatch, len(a.Imag), n)
	}
	return nil
}

// SParams carries all four parameters of a two-port measurement as
// ComplexArrays on a shared frequency axis.
type SParams struct {
	S11 ComplexArray `json:"s11"`
	S12 ComplexArray `json:"s12"`
	S21 ComplexArray `json:"s21"`
	S22 ComplexArray `json:"s22"`
}

// Network builds a two-port network on the given frequency axis.
func (p SParams) Network(freq []float64) *TwoPort {
	return &TwoPort{
		Freq: freq,
		S11:  p.S11.Complexes(),
		S12:  p.S12.Complexes(),
		S21:  p.S21.Complexes(),
		S22:  p.S22.Complexes(),
	}
}

func (p SParams) check(slot string, n int) error {
	if err := p.S11.check(slot+" s11", n); err != nil {
		return err
	}
	if err := p.S12.check(slot+" s12", n); err != nil {
		return err
	}
	if err := p.S21.check(slot+" s21", n); err != nil {
		return err
	}
	return p.S22.check(slot+" s22", n)
}

// OnePortRequest is the inbound message for a one-port calibration: measured
// reflection coefficients for the three standards and the device under test,
// all on one frequency axis in Hz.
type OnePortRequest struct {
	Cmd   string       `json:"cmd"`
	Freq  []float64    `json:"freq"`
	Short ComplexArray `json:"short"`
	Open  ComplexArray `json:"open"`
	Load  ComplexArray `json:"load"`
	DUT   ComplexArray `json:"dut"`
}

// Validate checks that every array in the request has the same length as the
// frequency axis, and that the axis is not empty.
func (r *OnePortRequest) Validate() error {
	n := len(r.Freq)
	if n == 0 {
		return ErrNoFrequencies
	}
	if err := r.Short.check("short", n); err != nil {
		return err
	}
	if err := r.Open.check("open", n); err != nil {
		return err
	}
	if err := r.Load.check("load", n); err != nil {
		return err
	}
	return r.DUT.check("dut", n)
}

// TwoPortRequest is the inbound message for a two-port calibration. Each slot
// holds all four S-parameters of the named standard, plus the thru.
type TwoPortRequest struct {
	Cmd   string    `json:"cmd"`
	Freq  []float64 `json:"freq"`
	Short SParams   `json:"short"`
	Open  SParams   `json:"open"`
	Load  SParams   `json:"load"`
	Thru  SParams   `json:"thru"`
	DUT   SParams   `json:"dut"`
}

func (r *TwoPortRequest) Validate() error {
	n := len(r.Freq)
	if n == 0 {
		return ErrNoFrequencies
	}
	if err := r.Short.check("short", n); err != nil {
		return err
	}
	if err := r.Open.check("open", n); err != nil {
		return err
	}
	if err := r.Load.check("load", n); err != nil {
		return err
	}
	if err := r.Thru.check("thru", n); err != nil {
		return err
	}
	return r.DUT.check("dut", n)
}

// OnePortResult is the outbound message: the corrected device response in the
// same real/imag shape the request used for its dut slot.
type OnePortResult struct {
	Freq []float64    `json:"freq"`
	S11  ComplexArray `json:"s11"`
}

// NewOnePortResult serialises a corrected one-port network for the wire.
func NewOnePortResult(n *OnePort) *OnePortResult {
	return &OnePortResult{Freq: n.Freq, S11: FromComplexes(n.S11)}
}

// TwoPortResult carries all four corrected parameters.
type TwoPortResult struct {
	Freq []float64    `json:"freq"`
	S11  ComplexArray `json:"s11"`
	S12  ComplexArray `json:"s12"`
	S21  ComplexArray `json:"s21"`
	S22  ComplexArray `json:"s22"`
}

// NewTwoPortResult serialises a corrected two-port network for the wire.
func NewTwoPortResult(n *TwoPort) *TwoPortResult {
	return &TwoPortResult{
		Freq: n.Freq,
		S11:  FromComplexes(n.S11),
		S12:  FromComplexes(n.S12),
		S21:  FromComplexes(n.S21),
		S22:  FromComplexes(n.S22),
	}
}

// OnePort is a one-port network: one complex reflection coefficient per
// frequency point.
type OnePort struct {
	Freq []float64
	S11  []complex128
}

// Points returns the number of frequency points.
func (n *OnePort) Points() int {
	return len(n.Freq)
}

func (n *OnePort) Validate() error {
	if len(n.Freq) == 0 {
		return ErrNoFrequencies
	}
	if len(n.S11) != len(n.Freq) {
		return fmt.Errorf("s11: %w (have %d, want %d)", ErrShapeMismatch, len(n.S11), len(n.Freq))
	}
	return nil
}

// TwoPort is a two-port network: a 2x2 complex scattering matrix per
// frequency point, stored as four parallel parameter slices.
type TwoPort struct {
	Freq []float64
	S11  []complex128
	S12  []complex128
	S21  []complex128
	S22  []complex128
}

func (n *TwoPort) Points() int {
	return len(n.Freq)
}

func (n *TwoPort) Validate() error {
	if len(n.Freq) == 0 {
		return ErrNoFrequencies
	}
	for _, p := range []struct {
		name string
		s    []complex128
	}{
		{"s11", n.S11},
		{"s12", n.S12},
		{"s21", n.S21},
		{"s22", n.S22},
	} {
		if len(p.s) != len(n.Freq) {
			return fmt.Errorf("%s: %w (have %d, want %d)", p.name, ErrShapeMismatch, len(p.s), len(n.Freq))
		}
	}
	return nil
}

// At returns the scattering matrix at frequency point i, row-major
// [s11 s12; s21 s22].
func (n *TwoPort) At(i int) [2][2]complex128 {
	return [2][2]complex128{
		{n.S11[i], n.S12[i]},
		{n.S21[i], n.S22[i]},
	}
}

// S11Network reduces a two-port measurement to a one-port network by keeping
// only the (1,1) element, the way a one-port standard measured on a two-port
// instrument is used.
func (n *TwoPort) S11Network() *OnePort {
	return &OnePort{Freq: n.Freq, S11: n.S11}
}

// MagnitudeDB converts reflection coefficients to magnitude in dB.
func MagnitudeDB(s []complex128) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = 20 * math.Log10(cmplx.Abs(v))
	}
	return out
}

// PhaseDeg converts reflection coefficients to phase in degrees.
func PhaseDeg(s []complex128) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = cmplx.Phase(v) * 180 / math.Pi
	}
	return out
}
