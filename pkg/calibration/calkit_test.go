package calibration

import (
	"math/cmplx"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The load standard must reflect almost nothing, but never exactly nothing:
// a true zero divides by zero in the admittance form.
func TestDefaultKitLoadIsNonZeroButNegligible(t *testing.T) {
	kit := DefaultKit()
	require.NoError(t, kit.Validate())

	l := cmplx.Abs(kit.Load.Complex())
	assert.Greater(t, l, 0.0)
	assert.LessOrEqual(t, l, MaxLoadGamma)

	assert.Equal(t, complex(-1, 0), kit.Short.Complex())
	assert.Equal(t, complex(1, 0), kit.Open.Complex())
}

func writeKit(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadKit(t *testing.T) {
	kit, err := LoadKit(writeKit(t, `
short: {real: -0.98, imag: 0.02}
open: {real: 0.99, imag: -0.01}
load: {real: 1.0e-15, imag: 0.0}
`))
	require.NoError(t, err)
	assert.Equal(t, complex(-0.98, 0.02), kit.Short.Complex())
	assert.Equal(t, complex(0.99, -0.01), kit.Open.Complex())
	assert.Equal(t, complex(1e-15, 0), kit.Load.Complex())
}

func TestLoadKitPartialOverrideKeepsDefaults(t *testing.T) {
	kit, err := LoadKit(writeKit(t, "load:\n  real: 1.0e-13\n"))
	require.NoError(t, err)

	def := DefaultKit()
	assert.Equal(t, def.Short, kit.Short)
	assert.Equal(t, def.Open, kit.Open)
	assert.Equal(t, 1e-13, kit.Load.Real)
}

func TestLoadKitRejectsBadStandards(t *testing.T) {
	_, err := LoadKit(writeKit(t, "load: {real: 0, imag: 0}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly zero")

	_, err = LoadKit(writeKit(t, "load: {real: 0.5, imag: 0}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not negligible")

	_, err = LoadKit(writeKit(t, "short: {real: 1, imag: 0}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distinct")
}

func TestLoadKitMissingFile(t *testing.T) {
	_, err := LoadKit(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
