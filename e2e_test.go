package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practable/calibration/pkg/prep"
	"github.com/practable/calibration/pkg/sparam"
	"github.com/practable/calibration/pkg/touchstone"
)

func TestGreeterSaysHelloThenCloses(t *testing.T) {
	old := greetingInterval
	greetingInterval = 10 * time.Millisecond
	defer func() { greetingInterval = old }()

	relay, probe, runErr := startRig(t)
	go relay.Greet()

	for i := 0; i < 3; i++ {
		assert.Equal(t, fmt.Sprintf("Hello %d", i), string(readReply(t, probe)))
	}

	select {
	case err := <-runErr:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not close after greeting")
	}
}

func writeFixtureTwoPort(t *testing.T, path string, freq []float64, s11 []complex128) {
	t.Helper()
	flat := make([]complex128, len(freq))
	n := &sparam.TwoPort{Freq: freq, S11: s11, S12: flat, S21: flat, S22: flat}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, touchstone.WriteTwoPort(path, n))
}

// TestPreparedFixturesDriveRelay runs the whole chain: the preparation tool
// builds oneport.json and expected.s1p from measurement files, then the
// relay answers the fixture request with the expected values.
func TestPreparedFixturesDriveRelay(t *testing.T) {
	tmp := t.TempDir()
	cfg := prep.OnePortConfig{
		TestDir: filepath.Join(tmp, "test"),
		ImgDir:  filepath.Join(tmp, "img"),
	}

	freq := []float64{1e6, 2e6, 3e6}
	truth := make([]complex128, len(freq))
	for i := range freq {
		truth[i] = complex(0.35-0.03*float64(i), -0.12+0.06*float64(i))
	}
	b := box{d: complex(0.03, -0.015), s: complex(0.09, 0.04), r: complex(0.92, 0.06)}

	measuredDir := filepath.Join(cfg.TestDir, "measured", "oneport")
	suppliedDir := filepath.Join(cfg.TestDir, "supplied", "oneport")

	for _, std := range []struct {
		name  string
		gamma complex128
	}{
		{"short", -1},
		{"open", 1},
		{"load", 1e-99},
	} {
		writeFixtureTwoPort(t, filepath.Join(measuredDir, std.name+".s2p"), freq,
			constant(b.measure(std.gamma), len(freq)))
	}

	uncal := make([]complex128, len(freq))
	for i, g := range truth {
		uncal[i] = b.measure(g)
	}
	writeFixtureTwoPort(t, filepath.Join(suppliedDir, "DUTuncal.s2p"), freq, uncal)
	writeFixtureTwoPort(t, filepath.Join(suppliedDir, "DUTcal.s2p"), freq, truth)

	res, err := prep.RunOnePort(cfg)
	require.NoError(t, err)

	request, err := os.ReadFile(res.Request)
	require.NoError(t, err)

	_, probe, _ := startRig(t)
	require.NoError(t, probe.WriteMessage(websocket.TextMessage, request))

	var result sparam.OnePortResult
	require.NoError(t, json.Unmarshal(readReply(t, probe), &result))

	expected, err := touchstone.ReadOnePort(res.Expected)
	require.NoError(t, err)

	assert.Equal(t, expected.Freq, result.Freq)
	got := result.S11.Complexes()
	require.Len(t, got, expected.Points())
	for i := range expected.S11 {
		assert.InDelta(t, real(expected.S11[i]), real(got[i]), 1e-9)
		assert.InDelta(t, imag(expected.S11[i]), imag(got[i]), 1e-9)
	}
}
