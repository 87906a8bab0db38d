package planner

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/devskill-org/gridplan/network"
	"github.com/devskill-org/gridplan/sun"
	"github.com/devskill-org/gridplan/timeseries"
)

// inputSeparator separates the columns of load, capacity factor and inflow
// files.
const inputSeparator = ';'

// Inputs are the hourly series the base network is built from.
type Inputs struct {
	Snapshots []time.Time
	Load      []float64 // MW
	CFWind    []float64 // per unit
	CFSolar   []float64 // per unit
	Inflow    []float64 // MW, hydro only
}

// InflowSeries returns the hydro inflow as a series, or nil without hydro.
func (in *Inputs) InflowSeries() *timeseries.Series {
	if in == nil || in.Inflow == nil {
		return nil
	}
	return &timeseries.Series{Name: "inflow", Index: in.Snapshots, Values: in.Inflow}
}

// LoadInputs reads the series of the configured country for every hour of
// the configured year. Files are ';' separated with one column per
// country. Without a solar file a clear-sky profile at the configured
// location is used.
func LoadInputs(c NetworkConfig, logger *zap.Logger) (*Inputs, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	in := &Inputs{Snapshots: network.DefaultSnapshots(c.Year)}

	var err error
	if in.Load, err = readCountryColumn(c.LoadFile, c.Country, in.Snapshots); err != nil {
		return nil, fmt.Errorf("failed to read load: %w", err)
	}

	carriers := c.Carriers
	if len(carriers) == 0 {
		carriers = network.DefaultCarriers
	}
	if slices.Contains(carriers, network.CarrierWind) {
		if in.CFWind, err = readCountryColumn(c.WindCFFile, c.Country, in.Snapshots); err != nil {
			return nil, fmt.Errorf("failed to read wind capacity factors: %w", err)
		}
	}
	if slices.Contains(carriers, network.CarrierSolar) {
		if c.SolarCFFile != "" {
			in.CFSolar, err = readCountryColumn(c.SolarCFFile, c.Country, in.Snapshots)
		} else {
			logger.Info("No solar capacity factor file, using clear-sky profile",
				zap.Float64("latitude", c.Latitude),
				zap.Float64("longitude", c.Longitude))
			in.CFSolar, err = sun.CapacityFactors(c.Latitude, c.Longitude, in.Snapshots)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read solar capacity factors: %w", err)
		}
	}
	if slices.Contains(carriers, network.CarrierHydro) {
		if in.Inflow, err = readCountryColumn(c.InflowFile, c.Country, in.Snapshots); err != nil {
			return nil, fmt.Errorf("failed to read hydro inflow: %w", err)
		}
	}

	logger.Debug("Loaded inputs",
		zap.String("country", c.Country),
		zap.Int("year", c.Year),
		zap.Int("snapshots", len(in.Snapshots)))
	return in, nil
}

func readCountryColumn(path, country string, snapshots []time.Time) ([]float64, error) {
	if path == "" {
		return nil, fmt.Errorf("no input file configured")
	}
	frame, err := timeseries.ReadCSVFile(path, inputSeparator)
	if err != nil {
		return nil, err
	}
	column, err := frame.Column(country)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	values, err := column.Align(snapshots)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return values, nil
}

// BaseParams combines the inputs with the network section of c. Series are
// copied since solving clips them in place.
func (in *Inputs) BaseParams(c *Config) network.BaseParams {
	costs := c.Economics
	return network.BaseParams{
		Snapshots:     in.Snapshots,
		Load:          slices.Clone(in.Load),
		LoadScaleUp:   c.Network.LoadScaleUp,
		CFWind:        slices.Clone(in.CFWind),
		PNomWind:      c.Network.PNomWind,
		PNomMaxWind:   network.Cap(c.Network.PNomMaxWind),
		CFSolar:       slices.Clone(in.CFSolar),
		PNomSolar:     c.Network.PNomSolar,
		PNomMaxSolar:  network.Cap(c.Network.PNomMaxSolar),
		PNomHydro:     c.Network.PNomHydro,
		HydroInflow:   slices.Clone(in.Inflow),
		HydroMaxHours: c.Network.HydroMaxHours,
		Carriers:      c.Network.Carriers,
		Costs:         &costs,
	}
}
