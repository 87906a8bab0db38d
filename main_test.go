package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/gridplan/network"
)

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	t.Setenv("GRIDPLAN_COUNTRY", "DK")
	missing := filepath.Join(t.TempDir(), "gridplan.yaml")

	c, err := loadConfig(missing, false)
	require.NoError(t, err)
	assert.Equal(t, "DK", c.Network.Country)

	_, err = loadConfig(missing, true)
	assert.Error(t, err)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridplan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network:\n  country: FI\n"), 0o644))

	c, err := loadConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, "FI", c.Network.Country)
}

func TestPrintResults(t *testing.T) {
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	n, err := network.BuildBaseNetwork(network.BaseParams{
		Snapshots: network.HourlySnapshots(start, start.Add(time.Hour)),
		Load:      []float64{5, 5},
		CFWind:    []float64{1, 1},
		Carriers:  []string{network.CarrierWind},
	})
	require.NoError(t, err)
	wind := n.Generator(network.CarrierWind)
	wind.P = []float64{5, 5}
	wind.PNomOpt = 5
	n.Status, n.Condition = "ok", "optimal"

	var buf bytes.Buffer
	printResults(&buf, n)
	out := buf.String()
	assert.Contains(t, out, "Status: ok (optimal)")
	assert.Contains(t, out, "│ Generator   │ wind")
	assert.Contains(t, out, "5.0")
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"solve"},
		{"serve"},
		{"plot", "historical"},
		{"historical", "fetch"},
		{"config", "default"},
		{"config", "show"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
