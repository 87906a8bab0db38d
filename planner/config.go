package planner

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/devskill-org/gridplan/entsoe"
	"github.com/devskill-org/gridplan/network"
	"github.com/devskill-org/gridplan/optimize"
	"github.com/devskill-org/gridplan/timeseries"
)

// Config represents the configuration of a planning run
type Config struct {
	Logging   LoggingConfig     `yaml:"logging"`
	Network   NetworkConfig     `yaml:"network"`
	Economics network.CostTable `yaml:"economics"`
	Solving   SolvingConfig     `yaml:"solving"`
	Plotting  PlottingConfig    `yaml:"plotting"`
	Storage   StorageConfig     `yaml:"storage"`
	Server    ServerConfig      `yaml:"server"`
	Entsoe    EntsoeConfig      `yaml:"entsoe"`

	// OutputDir receives the dispatch CSV and the rendered charts.
	OutputDir string `yaml:"output_dir" env:"GRIDPLAN_OUTPUT_DIR"`
}

// LoggingConfig selects the logger level and encoding.
type LoggingConfig struct {
	Level  string `yaml:"log_level" env:"GRIDPLAN_LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"log_format" env:"GRIDPLAN_LOG_FORMAT"` // text, json
}

// NetworkConfig describes the base network and its input files.
type NetworkConfig struct {
	Country  string   `yaml:"country" env:"GRIDPLAN_COUNTRY"` // column of the input files, e.g. "NO"
	Year     int      `yaml:"year" env:"GRIDPLAN_YEAR"`
	Carriers []string `yaml:"carriers" env:"GRIDPLAN_CARRIERS" env-separator:","`

	LoadFile    string  `yaml:"load_file" env:"GRIDPLAN_LOAD_FILE"` // ';' separated, MW
	LoadScaleUp float64 `yaml:"load_scale_up"`
	WindCFFile  string  `yaml:"wind_cf_file" env:"GRIDPLAN_WIND_CF_FILE"`
	SolarCFFile string  `yaml:"solar_cf_file" env:"GRIDPLAN_SOLAR_CF_FILE"` // empty: clear-sky profile at Latitude/Longitude
	InflowFile  string  `yaml:"inflow_file" env:"GRIDPLAN_INFLOW_FILE"`     // MW
	Latitude    float64 `yaml:"latitude"`
	Longitude   float64 `yaml:"longitude"`

	PNomWind      float64 `yaml:"p_nom_wind"`
	PNomMaxWind   float64 `yaml:"p_nom_max_wind"` // .inf = unlimited, 0 = no expansion
	PNomSolar     float64 `yaml:"p_nom_solar"`
	PNomMaxSolar  float64 `yaml:"p_nom_max_solar"`
	PNomHydro     float64 `yaml:"p_nom_hydro"`
	HydroMaxHours float64 `yaml:"hydro_max_hours"`
}

// SolvingConfig mirrors optimize.Options plus the solver selection.
type SolvingConfig struct {
	Solver        string         `yaml:"solver" env:"GRIDPLAN_SOLVER"` // highs, gonum
	SolverOptions map[string]any `yaml:"solver_options"`
	Formulation   string         `yaml:"formulation"`

	ClipPMaxPU      float64 `yaml:"clip_p_max_pu"`
	LoadShedding    bool    `yaml:"load_shedding"`
	NoisyCosts      bool    `yaml:"noisy_costs"`
	Seed            uint64  `yaml:"seed"`
	SkipIterations  bool    `yaml:"skip_iterations"`
	TrackIterations bool    `yaml:"track_iterations"`
	MinIterations   int     `yaml:"min_iterations"`
	MaxIterations   int     `yaml:"max_iterations"`
	MsqThreshold    float64 `yaml:"msq_threshold"`

	ExtraConstraints   []string  `yaml:"extra_constraints" env:"GRIDPLAN_EXTRA_CONSTRAINTS" env-separator:","`
	WindLimit          float64   `yaml:"wind_limit"`
	HydroMonthlyLimits []float64 `yaml:"hydro_monthly_limits"`

	Timeout time.Duration `yaml:"timeout" env:"GRIDPLAN_SOLVE_TIMEOUT"` // 0 = none
	// Interval re-solves periodically in serve mode; 0 solves once.
	Interval time.Duration `yaml:"interval" env:"GRIDPLAN_SOLVE_INTERVAL"`
}

// UnmarshalYAML replaces the default solver options when the document
// sets solver_options instead of merging into them.
func (sc *SolvingConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			if value.Content[i].Value == "solver_options" {
				sc.SolverOptions = nil
			}
		}
	}
	type plain SolvingConfig
	return value.Decode((*plain)(sc))
}

// PlottingConfig controls chart rendering.
type PlottingConfig struct {
	FontSize      float64           `yaml:"font_size"`
	Frequency     string            `yaml:"frequency"` // h, d, w, m
	TechColors    map[string]string `yaml:"tech_colors"`
	Format        string            `yaml:"format"` // png, svg, pdf
	Width         float64           `yaml:"width"`  // inches
	Height        float64           `yaml:"height"`
	HistoricalDir string            `yaml:"historical_dir" env:"GRIDPLAN_HISTORICAL_DIR"`
	Disabled      bool              `yaml:"disabled"`
}

// StorageConfig enables persistence of solved runs.
type StorageConfig struct {
	PostgresConnString string `yaml:"postgres_conn_string" env:"GRIDPLAN_POSTGRES_CONN"` // empty disables storage
	RunName            string `yaml:"run_name" env:"GRIDPLAN_RUN_NAME"`
}

// ServerConfig configures the results web server.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"GRIDPLAN_SERVER_ADDR"` // e.g. ":8080"; empty disables the server
}

// EntsoeConfig configures the ENTSO-E transparency platform client.
type EntsoeConfig struct {
	SecurityToken string        `yaml:"security_token" env:"GRIDPLAN_ENTSOE_TOKEN"`
	BaseURL       string        `yaml:"base_url" env:"GRIDPLAN_ENTSOE_URL"`
	Timeout       time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	opts := optimize.DefaultOptions()
	constraints := optimize.DefaultConstraintParams()
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Network: NetworkConfig{
			Country:     "NO",
			Year:        2015,
			Carriers:    append([]string(nil), network.DefaultCarriers...),
			LoadFile:    "data/electricity_demand.csv",
			LoadScaleUp: 1,
			WindCFFile:  "data/onshore_wind_1979-2017.csv",
			Latitude:    59.9139, // Oslo
			Longitude:   10.7522,

			PNomMaxWind:  math.Inf(1),
			PNomMaxSolar: math.Inf(1),
		},
		Economics: network.DefaultCostTable(),
		Solving: SolvingConfig{
			Solver:             "highs",
			SolverOptions:      optimize.DefaultHighsOptions(),
			Formulation:        string(opts.Formulation),
			ClipPMaxPU:         opts.ClipPMaxPU,
			LoadShedding:       opts.LoadShedding,
			NoisyCosts:         opts.NoisyCosts,
			Seed:               opts.Seed,
			SkipIterations:     opts.SkipIterations,
			TrackIterations:    opts.TrackIterations,
			MinIterations:      opts.MinIterations,
			MaxIterations:      opts.MaxIterations,
			MsqThreshold:       opts.MsqThreshold,
			WindLimit:          constraints.WindLimit,
			HydroMonthlyLimits: constraints.HydroMonthlyLimits[:],
		},
		Plotting: PlottingConfig{
			FontSize:      15,
			Frequency:     string(timeseries.Weekly),
			Format:        "png",
			Width:         10,
			Height:        5,
			HistoricalDir: "data",
		},
		Storage: StorageConfig{RunName: "base"},
		Entsoe: EntsoeConfig{
			BaseURL: entsoe.DefaultBaseURL,
			Timeout: 60 * time.Second,
		},
		OutputDir: "results",
	}
}

// LoadConfig loads configuration from a YAML file. Environment variables
// override file values.
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()
	if err := cleanenv.ReadConfig(filename, config); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// LoadConfigFromReader loads YAML configuration from an io.Reader.
// Environment variables override the values read.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()
	if err := cleanenv.ParseYAML(reader, config); err != nil {
		return nil, fmt.Errorf("failed to decode config YAML: %w", err)
	}
	if err := cleanenv.ReadEnv(config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func (c *Config) SaveConfig(filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	return c.SaveConfigToWriter(file)
}

// SaveConfigToWriter saves the configuration to an io.Writer
func (c *Config) SaveConfigToWriter(writer io.Writer) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config YAML: %w", err)
	}
	return encoder.Close()
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log_level: %s, must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log_format: %s, must be one of: text, json", c.Logging.Format)
	}

	nc := c.Network
	if nc.Country == "" {
		return fmt.Errorf("country cannot be empty")
	}
	if nc.Year < 1900 || nc.Year > 2100 {
		return fmt.Errorf("year must be between 1900 and 2100, got: %d", nc.Year)
	}
	if nc.LoadFile == "" {
		return fmt.Errorf("load_file cannot be empty")
	}
	if nc.LoadScaleUp < 0 {
		return fmt.Errorf("load_scale_up must be non-negative, got: %f", nc.LoadScaleUp)
	}
	for _, carrier := range nc.Carriers {
		switch carrier {
		case network.CarrierWind:
			if nc.WindCFFile == "" {
				return fmt.Errorf("wind_cf_file cannot be empty when the wind carrier is enabled")
			}
		case network.CarrierHydro:
			if nc.InflowFile == "" {
				return fmt.Errorf("inflow_file cannot be empty when the hydro carrier is enabled")
			}
		case network.CarrierSolar, network.CarrierBattery:
		default:
			return fmt.Errorf("unknown carrier: %s", carrier)
		}
	}
	if nc.Latitude < -90 || nc.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", nc.Latitude)
	}
	if nc.Longitude < -180 || nc.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", nc.Longitude)
	}
	for name, v := range map[string]float64{
		"p_nom_wind":      nc.PNomWind,
		"p_nom_max_wind":  nc.PNomMaxWind,
		"p_nom_solar":     nc.PNomSolar,
		"p_nom_max_solar": nc.PNomMaxSolar,
		"p_nom_hydro":     nc.PNomHydro,
		"hydro_max_hours": nc.HydroMaxHours,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%s must be non-negative, got: %f", name, v)
		}
	}

	if c.Economics.Lifetime <= 0 {
		return fmt.Errorf("lifetime must be greater than 0, got: %f", c.Economics.Lifetime)
	}
	if c.Economics.DiscountRate < 0 || c.Economics.DiscountRate > 1 {
		return fmt.Errorf("discount_rate must be between 0 and 1, got: %f", c.Economics.DiscountRate)
	}

	sc := c.Solving
	if _, err := optimize.NewSolver(sc.Solver, sc.SolverOptions); err != nil {
		return err
	}
	if _, err := optimize.ParseFormulation(sc.Formulation); err != nil {
		return err
	}
	if sc.ClipPMaxPU < 0 || sc.ClipPMaxPU >= 1 {
		return fmt.Errorf("clip_p_max_pu must be in [0, 1), got: %f", sc.ClipPMaxPU)
	}
	if sc.MinIterations < 1 {
		return fmt.Errorf("min_iterations must be at least 1, got: %d", sc.MinIterations)
	}
	if sc.MaxIterations < sc.MinIterations {
		return fmt.Errorf("max_iterations (%d) cannot be less than min_iterations (%d)", sc.MaxIterations, sc.MinIterations)
	}
	if len(sc.HydroMonthlyLimits) != 12 {
		return fmt.Errorf("hydro_monthly_limits must have 12 values, got: %d", len(sc.HydroMonthlyLimits))
	}
	if _, err := c.extraFunctionality(); err != nil {
		return err
	}
	if sc.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got: %s", sc.Timeout)
	}
	if sc.Interval < 0 {
		return fmt.Errorf("interval must be non-negative, got: %s", sc.Interval)
	}

	pc := c.Plotting
	if pc.FontSize <= 0 {
		return fmt.Errorf("font_size must be greater than 0, got: %f", pc.FontSize)
	}
	if _, err := timeseries.ParseFrequency(pc.Frequency); err != nil {
		return err
	}
	switch pc.Format {
	case "png", "svg", "pdf", "jpg", "eps", "tiff":
	default:
		return fmt.Errorf("invalid plot format: %s", pc.Format)
	}
	if pc.Width <= 0 || pc.Height <= 0 {
		return fmt.Errorf("plot width and height must be greater than 0, got: %fx%f", pc.Width, pc.Height)
	}

	if c.Storage.PostgresConnString != "" && c.Storage.RunName == "" {
		return fmt.Errorf("run_name cannot be empty when storage is enabled")
	}

	if c.Entsoe.BaseURL != "" {
		if err := entsoe.ValidateAPIURL(c.Entsoe.BaseURL); err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
	}
	if c.Entsoe.Timeout < 0 {
		return fmt.Errorf("entsoe timeout must be non-negative, got: %s", c.Entsoe.Timeout)
	}

	return nil
}

// SolveOptions translates the solving section into optimize.Options.
func (c *Config) SolveOptions() (optimize.Options, error) {
	sc := c.Solving
	solver, err := optimize.NewSolver(sc.Solver, sc.SolverOptions)
	if err != nil {
		return optimize.Options{}, err
	}
	formulation, err := optimize.ParseFormulation(sc.Formulation)
	if err != nil {
		return optimize.Options{}, err
	}
	extra, err := c.extraFunctionality()
	if err != nil {
		return optimize.Options{}, err
	}
	return optimize.Options{
		Solver:             solver,
		Formulation:        formulation,
		ClipPMaxPU:         sc.ClipPMaxPU,
		LoadShedding:       sc.LoadShedding,
		NoisyCosts:         sc.NoisyCosts,
		Seed:               sc.Seed,
		SkipIterations:     sc.SkipIterations,
		TrackIterations:    sc.TrackIterations,
		MinIterations:      sc.MinIterations,
		MaxIterations:      sc.MaxIterations,
		MsqThreshold:       sc.MsqThreshold,
		ExtraFunctionality: extra,
	}, nil
}

func (c *Config) extraFunctionality() (optimize.ExtraFunc, error) {
	params := optimize.ConstraintParams{WindLimit: c.Solving.WindLimit}
	copy(params.HydroMonthlyLimits[:], c.Solving.HydroMonthlyLimits)
	return optimize.ExtraFunctionality(params, c.Solving.ExtraConstraints...)
}

// String returns a string representation of the config
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := c.SaveConfigToWriter(&buf); err != nil {
		return fmt.Sprintf("<invalid config: %v>", err)
	}
	return buf.String()
}
