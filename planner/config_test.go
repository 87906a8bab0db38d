package planner

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/gridplan/optimize"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())

	assert.Equal(t, "highs", c.Solving.Solver)
	assert.Equal(t, "kirchhoff", c.Solving.Formulation)
	assert.Zero(t, c.Solving.ClipPMaxPU)
	assert.False(t, c.Solving.NoisyCosts)
	assert.False(t, c.Solving.LoadShedding)
	assert.Equal(t, 4, c.Solving.MinIterations)
	assert.Equal(t, 6, c.Solving.MaxIterations)
	assert.Empty(t, c.Solving.ExtraConstraints)
	assert.Len(t, c.Solving.HydroMonthlyLimits, 12)
	assert.Equal(t, 14741419.0, c.Solving.HydroMonthlyLimits[0])
	assert.Equal(t, 30.0, c.Economics.Lifetime)
}

func TestLoadConfigFromReader(t *testing.T) {
	input := `
logging:
  log_level: debug
network:
  country: DK
  carriers: [wind, battery]
solving:
  solver: gonum
  extra_constraints: [wind]
  wind_limit: 500
  interval: 10m
plotting:
  frequency: m
  tech_colors:
    wind: "#000000"
`
	c, err := LoadConfigFromReader(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, "text", c.Logging.Format)
	assert.Equal(t, "DK", c.Network.Country)
	assert.Equal(t, []string{"wind", "battery"}, c.Network.Carriers)
	assert.Equal(t, 2015, c.Network.Year)
	assert.Equal(t, "gonum", c.Solving.Solver)
	assert.Equal(t, []string{"wind"}, c.Solving.ExtraConstraints)
	assert.Equal(t, 500.0, c.Solving.WindLimit)
	assert.Equal(t, 10*time.Minute, c.Solving.Interval)
	assert.Equal(t, "m", c.Plotting.Frequency)
	assert.Equal(t, "#000000", c.Plotting.TechColors["wind"])
	assert.Equal(t, 15.0, c.Plotting.FontSize)

	opts, err := c.SolveOptions()
	require.NoError(t, err)
	assert.Equal(t, "gonum", opts.Solver.Name())
	assert.Equal(t, optimize.Kirchhoff, opts.Formulation)
	assert.NotNil(t, opts.ExtraFunctionality)
}

func TestLoadConfigSolverOptions(t *testing.T) {
	c, err := LoadConfigFromReader(strings.NewReader("solving:\n  solver_options:\n    threads: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"threads": 2}, c.Solving.SolverOptions)

	c, err = LoadConfigFromReader(strings.NewReader("solving:\n  solver: highs\n"))
	require.NoError(t, err)
	assert.Equal(t, optimize.DefaultHighsOptions(), c.Solving.SolverOptions)
}

func TestLoadConfigCapacityCaps(t *testing.T) {
	c, err := LoadConfigFromReader(strings.NewReader("network:\n  p_nom_max_wind: 0\n"))
	require.NoError(t, err)
	assert.Zero(t, c.Network.PNomMaxWind)
	assert.True(t, math.IsInf(c.Network.PNomMaxSolar, 1))

	c, err = LoadConfigFromReader(strings.NewReader("network:\n  p_nom_max_solar: 250\n"))
	require.NoError(t, err)
	assert.Equal(t, 250.0, c.Network.PNomMaxSolar)
	assert.True(t, math.IsInf(c.Network.PNomMaxWind, 1))
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("GRIDPLAN_COUNTRY", "SE")
	t.Setenv("GRIDPLAN_SERVER_ADDR", ":9090")
	t.Setenv("GRIDPLAN_EXTRA_CONSTRAINTS", "wind,hydro")

	c, err := LoadConfigFromReader(strings.NewReader("network:\n  country: DK\n"))
	require.NoError(t, err)
	assert.Equal(t, "SE", c.Network.Country)
	assert.Equal(t, ":9090", c.Server.Addr)
	assert.Equal(t, []string{"wind", "hydro"}, c.Solving.ExtraConstraints)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "gridplan.yaml")
	c := DefaultConfig()
	c.Network.Country = "FI"
	c.Solving.Timeout = 90 * time.Second
	require.NoError(t, c.SaveConfig(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "FI", loaded.Network.Country)
	assert.Equal(t, 90*time.Second, loaded.Solving.Timeout)
	assert.Equal(t, c.Solving.HydroMonthlyLimits, loaded.Solving.HydroMonthlyLimits)
	assert.Equal(t, c.Economics, loaded.Economics)
	assert.True(t, math.IsInf(loaded.Network.PNomMaxWind, 1))
	assert.Equal(t, c.Solving.SolverOptions, loaded.Solving.SolverOptions)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "invalid log_level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log_format"},
		{"country", func(c *Config) { c.Network.Country = "" }, "country cannot be empty"},
		{"unknown carrier", func(c *Config) { c.Network.Carriers = []string{"coal"} }, "unknown carrier"},
		{"hydro without inflow", func(c *Config) { c.Network.Carriers = []string{"hydro"} }, "inflow_file"},
		{"wind without cf", func(c *Config) { c.Network.WindCFFile = "" }, "wind_cf_file"},
		{"latitude", func(c *Config) { c.Network.Latitude = 91 }, "latitude"},
		{"negative capacity", func(c *Config) { c.Network.PNomHydro = -1 }, "p_nom_hydro"},
		{"discount rate", func(c *Config) { c.Economics.DiscountRate = 2 }, "discount_rate"},
		{"solver", func(c *Config) { c.Solving.Solver = "gurobi" }, "unknown solver"},
		{"iterations", func(c *Config) { c.Solving.MaxIterations = 2 }, "max_iterations"},
		{"monthly limits", func(c *Config) { c.Solving.HydroMonthlyLimits = []float64{1} }, "hydro_monthly_limits"},
		{"extra constraint", func(c *Config) { c.Solving.ExtraConstraints = []string{"nope"} }, "unknown extra constraint"},
		{"frequency", func(c *Config) { c.Plotting.Frequency = "y" }, "unknown frequency"},
		{"format", func(c *Config) { c.Plotting.Format = "gif" }, "invalid plot format"},
		{"run name", func(c *Config) {
			c.Storage.PostgresConnString = "postgres://localhost/gridplan"
			c.Storage.RunName = ""
		}, "run_name"},
		{"entsoe url", func(c *Config) { c.Entsoe.BaseURL = "ftp://example.com" }, "base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigString(t *testing.T) {
	c := DefaultConfig()
	s := c.String()
	assert.Contains(t, s, "country:")
	assert.Contains(t, s, "NO")
	assert.Contains(t, s, "solver: highs")

	var buf bytes.Buffer
	require.NoError(t, c.SaveConfigToWriter(&buf))
	assert.Equal(t, s, buf.String())
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		logger, err := NewLogger(LoggingConfig{Level: "warn", Format: format})
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(-1))
		assert.True(t, logger.Core().Enabled(1))
	}

	_, err := NewLogger(LoggingConfig{Level: "loud", Format: "text"})
	assert.Error(t, err)
	_, err = NewLogger(LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
