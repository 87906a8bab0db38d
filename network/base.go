package network

import (
	"fmt"
	"math"
	"time"

	"github.com/devskill-org/gridplan/timeseries"
)

// Carrier names known to BuildBaseNetwork.
const (
	CarrierWind    = "wind"
	CarrierSolar   = "solar"
	CarrierBattery = "battery"
	CarrierHydro   = "hydro"

	// ElectricityBus is the name of the single bus of the base network.
	ElectricityBus = "electricity bus"
	// LoadName is the name of the base network's load.
	LoadName = "el_load"
)

// DefaultCarriers is the carrier list used when none is given.
var DefaultCarriers = []string{CarrierWind, CarrierSolar, CarrierBattery}

// Annuity returns the annuity factor for an asset with a lifetime of n
// years and a discount rate r, e.g. Annuity(20, 0.05)*20 = 1.6.
func Annuity(n, r float64) float64 {
	if r > 0 {
		return r / (1 - 1/math.Pow(1+r, n))
	}
	return 1 / n
}

// CostTable holds the economic and technical parameters of the base
// network's assets. Investment costs are overnight costs per MW and are
// annualised with Lifetime and DiscountRate.
type CostTable struct {
	Lifetime     float64 `yaml:"lifetime" json:"lifetime"`           // years
	DiscountRate float64 `yaml:"discount_rate" json:"discount_rate"` // 0-1

	WindInvestment     float64 `yaml:"wind_investment" json:"wind_investment"`         // currency/MW
	WindMarginalCost   float64 `yaml:"wind_marginal_cost" json:"wind_marginal_cost"`   // currency/MWh
	SolarInvestment    float64 `yaml:"solar_investment" json:"solar_investment"`       // currency/MW
	SolarMarginalCost  float64 `yaml:"solar_marginal_cost" json:"solar_marginal_cost"` // currency/MWh
	BatteryInvestment  float64 `yaml:"battery_investment" json:"battery_investment"`   // currency/MW
	BatteryMaxHours    float64 `yaml:"battery_max_hours" json:"battery_max_hours"`
	BatteryEfficiency  float64 `yaml:"battery_efficiency" json:"battery_efficiency"` // one-way, store and dispatch
	HydroInvestment    float64 `yaml:"hydro_investment" json:"hydro_investment"`     // currency/MW
	HydroMarginalCost  float64 `yaml:"hydro_marginal_cost" json:"hydro_marginal_cost"`
	HydroEfficiency    float64 `yaml:"hydro_efficiency" json:"hydro_efficiency"` // dispatch
}

// DefaultCostTable returns the reference asset parameters.
func DefaultCostTable() CostTable {
	return CostTable{
		Lifetime:          30,
		DiscountRate:      0.07,
		WindInvestment:    1e6,
		WindMarginalCost:  0.015,
		SolarInvestment:   1e5,
		SolarMarginalCost: 0.01,
		BatteryInvestment: 1e6,
		BatteryMaxHours:   6,
		BatteryEfficiency: 0.95,
		HydroInvestment:   10e6,
		HydroMarginalCost: 0,
		HydroEfficiency:   0.9,
	}
}

// annualised returns the yearly capital cost of an investment.
func (c CostTable) annualised(investment float64) float64 {
	return investment * Annuity(c.Lifetime, c.DiscountRate)
}

// BaseParams configures BuildBaseNetwork. Series must cover Snapshots.
type BaseParams struct {
	Snapshots   []time.Time
	Load        []float64 // MW, before scaling
	LoadScaleUp float64

	// PNomMaxWind and PNomMaxSolar cap the extendable capacities; nil
	// leaves them unbounded and 0 forbids expansion.
	CFWind      []float64
	PNomWind    float64
	PNomMaxWind *float64

	CFSolar      []float64
	PNomSolar    float64
	PNomMaxSolar *float64

	PNomHydro     float64
	HydroInflow   []float64 // MW
	HydroMaxHours float64

	Carriers []string
	Costs    *CostTable
}

// HourlySnapshots returns hourly snapshots from start to end inclusive.
func HourlySnapshots(start, end time.Time) []time.Time {
	return timeseries.HourlyRange(start, end)
}

// DefaultSnapshots returns the hourly snapshots of a calendar year in UTC.
func DefaultSnapshots(year int) []time.Time {
	return HourlySnapshots(time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(year, 12, 31, 23, 0, 0, 0, time.UTC))
}

// BuildBaseNetwork creates a single-bus network with a load and the
// generation and storage assets named in p.Carriers.
func BuildBaseNetwork(p BaseParams) (*Network, error) {
	carriers := p.Carriers
	if len(carriers) == 0 {
		carriers = DefaultCarriers
	}
	for _, c := range carriers {
		switch c {
		case CarrierWind, CarrierSolar, CarrierBattery, CarrierHydro:
		default:
			return nil, &ValidationError{Component: "Network", Field: "carriers", Message: fmt.Sprintf("unknown carrier %q", c)}
		}
	}
	costs := DefaultCostTable()
	if p.Costs != nil {
		costs = *p.Costs
	}
	scale := p.LoadScaleUp
	if scale == 0 {
		scale = 1
	}

	n := New()
	if _, err := n.AddBus(ElectricityBus, "AC"); err != nil {
		return nil, err
	}
	n.AddCarriers(carriers...)
	if err := n.SetSnapshots(p.Snapshots); err != nil {
		return nil, err
	}

	load := make([]float64, len(p.Load))
	for i, v := range p.Load {
		load[i] = v * scale
	}
	if err := n.AddLoad(&Load{Name: LoadName, Bus: ElectricityBus, PSet: load}); err != nil {
		return nil, err
	}

	for _, c := range carriers {
		var err error
		switch c {
		case CarrierWind:
			err = n.AddGenerator(&Generator{
				Name:           CarrierWind,
				Bus:            ElectricityBus,
				Carrier:        CarrierWind,
				PNom:           p.PNomWind,
				PNomExtendable: true,
				PNomMax:        capacityCap(p.PNomMaxWind),
				CapitalCost:    costs.annualised(costs.WindInvestment),
				MarginalCost:   costs.WindMarginalCost,
				PMaxPU:         p.CFWind,
			})
		case CarrierSolar:
			err = n.AddGenerator(&Generator{
				Name:           CarrierSolar,
				Bus:            ElectricityBus,
				Carrier:        CarrierSolar,
				PNom:           p.PNomSolar,
				PNomExtendable: true,
				PNomMax:        capacityCap(p.PNomMaxSolar),
				CapitalCost:    costs.annualised(costs.SolarInvestment),
				MarginalCost:   costs.SolarMarginalCost,
				PMaxPU:         p.CFSolar,
			})
		case CarrierBattery:
			battery := NewStorageUnit(CarrierBattery, ElectricityBus, CarrierBattery)
			battery.PNomExtendable = true
			battery.CapitalCost = costs.annualised(costs.BatteryInvestment)
			battery.MaxHours = costs.BatteryMaxHours
			battery.EfficiencyStore = costs.BatteryEfficiency
			battery.EfficiencyDispatch = costs.BatteryEfficiency
			battery.CyclicStateOfCharge = true
			err = n.AddStorageUnit(battery)
		case CarrierHydro:
			// The reservoir cannot be charged from the grid.
			hydro := NewStorageUnit(CarrierHydro, ElectricityBus, CarrierHydro)
			hydro.PNom = p.PNomHydro
			hydro.Inflow = p.HydroInflow
			hydro.MaxHours = p.HydroMaxHours
			hydro.CapitalCost = costs.annualised(costs.HydroInvestment)
			hydro.MarginalCost = costs.HydroMarginalCost
			hydro.PMaxPU = 1
			hydro.PMinPU = 0
			hydro.EfficiencyDispatch = costs.HydroEfficiency
			hydro.EfficiencyStore = 0
			hydro.CyclicStateOfCharge = true
			err = n.AddStorageUnit(hydro)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", c, err)
		}
	}

	return n, nil
}

func capacityCap(v *float64) float64 {
	if v == nil {
		return math.Inf(1)
	}
	return *v
}

// Cap returns a pointer to v for the optional capacity limits of
// BaseParams.
func Cap(v float64) *float64 {
	return &v
}
