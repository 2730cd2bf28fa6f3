// Package touchstone reads and writes Touchstone v1 S-parameter files,
// scoped to what the fixture flow needs: one- and two-port networks, Hz
// through GHz frequency units, RI, MA and DB value formats.
package touchstone

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"
	"strconv"
	"strings"

	"github.com/practable/calibration/pkg/sparam"
)

const (
	formatRI = "ri"
	formatMA = "ma"
	formatDB = "db"
)

// options from the # line. The v1 defaults apply when the line is absent.
type options struct {
	unitHz float64
	format string
	z0     float64
}

func defaultOptions() options {
	return options{unitHz: 1e9, format: formatMA, z0: 50}
}

func parseOptions(line string) (options, error) {
	o := defaultOptions()
	fields := strings.Fields(strings.TrimPrefix(line, "#"))
	for i := 0; i < len(fields); i++ {
		switch f := strings.ToLower(fields[i]); f {
		case "hz":
			o.unitHz = 1
		case "khz":
			o.unitHz = 1e3
		case "mhz":
			o.unitHz = 1e6
		case "ghz":
			o.unitHz = 1e9
		case "s":
			// scattering parameters, the only kind supported
		case "y", "z", "g", "h":
			return o, fmt.Errorf("unsupported parameter type %q", strings.ToUpper(f))
		case formatRI, formatMA, formatDB:
			o.format = f
		case "r":
			if i+1 >= len(fields) {
				return o, errors.New("option R needs a resistance value")
			}
			z, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return o, fmt.Errorf("bad resistance %q", fields[i+1])
			}
			o.z0 = z
			i++
		default:
			return o, fmt.Errorf("unrecognised option %q", fields[i])
		}
	}
	return o, nil
}

func (o options) complex(a, b float64) complex128 {
	switch o.format {
	case formatRI:
		return complex(a, b)
	case formatMA:
		return cmplx.Rect(a, b*math.Pi/180)
	default: // formatDB
		return cmplx.Rect(math.Pow(10, a/20), b*math.Pi/180)
	}
}

// parse tokenises the body and groups values by frequency point: 1+2 values
// per point for one port, 1+8 for two. Values for one point may wrap across
// lines.
func parse(r io.Reader, ports int) ([]float64, [][]complex128, error) {
	stride := 1 + 2*ports*ports
	opts := defaultOptions()
	seenOptions := false
	var values []float64

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.Index(text, "!"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "#") {
			// only the first option line counts
			if !seenOptions {
				o, err := parseOptions(text)
				if err != nil {
					return nil, nil, fmt.Errorf("line %d: %w", line, err)
				}
				opts = o
				seenOptions = true
			}
			continue
		}
		for _, tok := range strings.Fields(text) {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: bad value %q", line, tok)
			}
			values = append(values, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if len(values) == 0 {
		return nil, nil, errors.New("no data")
	}
	if len(values)%stride != 0 {
		return nil, nil, fmt.Errorf("data is not %d values per frequency point (%d values in total)", stride, len(values))
	}

	points := len(values) / stride
	freq := make([]float64, points)
	s := make([][]complex128, ports*ports)
	for p := range s {
		s[p] = make([]complex128, points)
	}
	for k := 0; k < points; k++ {
		rec := values[k*stride : (k+1)*stride]
		freq[k] = rec[0] * opts.unitHz
		for p := 0; p < ports*ports; p++ {
			s[p][k] = opts.complex(rec[1+2*p], rec[2+2*p])
		}
	}
	return freq, s, nil
}

// ParseOnePort reads .s1p content.
func ParseOnePort(r io.Reader) (*sparam.OnePort, error) {
	freq, s, err := parse(r, 1)
	if err != nil {
		return nil, err
	}
	return &sparam.OnePort{Freq: freq, S11: s[0]}, nil
}

// ParseTwoPort reads .s2p content. The v1 column order is S11 S21 S12 S22.
func ParseTwoPort(r io.Reader) (*sparam.TwoPort, error) {
	freq, s, err := parse(r, 2)
	if err != nil {
		return nil, err
	}
	return &sparam.TwoPort{Freq: freq, S11: s[0], S21: s[1], S12: s[2], S22: s[3]}, nil
}

// ReadOnePort loads a .s1p file.
func ReadOnePort(path string) (*sparam.OnePort, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	n, err := ParseOnePort(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// ReadTwoPort loads a .s2p file.
func ReadTwoPort(path string) (*sparam.TwoPort, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	n, err := ParseTwoPort(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// WriteOnePort writes a .s1p file in Hz/RI at full precision.
func WriteOnePort(path string, n *sparam.OnePort) error {
	if err := n.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# Hz S RI R 50")
	for i, fz := range n.Freq {
		fmt.Fprintf(w, "%s %s %s\n", ftoa(fz), ftoa(real(n.S11[i])), ftoa(imag(n.S11[i])))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteTwoPort writes a .s2p file in Hz/RI, columns ordered S11 S21 S12 S22.
func WriteTwoPort(path string, n *sparam.TwoPort) error {
	if err := n.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# Hz S RI R 50")
	for i, fz := range n.Freq {
		fmt.Fprintf(w, "%s", ftoa(fz))
		for _, v := range []complex128{n.S11[i], n.S21[i], n.S12[i], n.S22[i]} {
			fmt.Fprintf(w, " %s %s", ftoa(real(v)), ftoa(imag(v)))
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
