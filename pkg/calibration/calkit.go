package calibration

import (
	"errors"
	"fmt"
	"math/cmplx"
	"os"

	"gopkg.in/yaml.v3"
)

// MaxLoadGamma is the largest load reflection magnitude accepted as
// negligible relative to calibration tolerance.
const MaxLoadGamma = 1e-12

// Gamma is a complex reflection coefficient in YAML-friendly form.
type Gamma struct {
	Real float64 `yaml:"real"`
	Imag float64 `yaml:"imag"`
}

func (g Gamma) Complex() complex128 {
	return complex(g.Real, g.Imag)
}

// Kit defines the ideal reflection coefficients of the short, open and load
// standards. The thru standard is always taken as ideal (S21 = S12 = 1) and
// is not settable.
type Kit struct {
	Short Gamma `yaml:"short"`
	Open  Gamma `yaml:"open"`
	Load  Gamma `yaml:"load"`
}

// DefaultKit returns the ideal standards. The load is near zero but not
// exactly zero: zero causes a divide by zero in the admittance form.
func DefaultKit() Kit {
	return Kit{
		Short: Gamma{Real: -1},
		Open:  Gamma{Real: 1},
		Load:  Gamma{Real: 1e-99},
	}
}

// LoadKit reads a YAML override of the ideal standards. Fields absent from
// the file keep their default values.
func LoadKit(path string) (Kit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Kit{}, fmt.Errorf("reading cal kit failed: %w", err)
	}
	k := DefaultKit()
	if err := yaml.Unmarshal(data, &k); err != nil {
		return Kit{}, fmt.Errorf("parsing cal kit failed: %w", err)
	}
	if err := k.Validate(); err != nil {
		return Kit{}, fmt.Errorf("cal kit %s: %w", path, err)
	}
	return k, nil
}

func (k Kit) Validate() error {
	l := cmplx.Abs(k.Load.Complex())
	if l == 0 {
		return errors.New("load reflection coefficient must not be exactly zero")
	}
	if l > MaxLoadGamma {
		return fmt.Errorf("load reflection coefficient magnitude %g is not negligible (max %g)", l, MaxLoadGamma)
	}
	if k.Short == k.Open || k.Short == k.Load || k.Open == k.Load {
		return errors.New("standards must have distinct reflection coefficients")
	}
	return nil
}
