package grid

import "math"

// Technology distinguishes renewable units. Solar and wind carry separate
// uncertainty budgets.
type Technology string

const (
	Solar Technology = "solar"
	Wind  Technology = "wind"
)

// Bus is a network node. The first bus of a System is the angle reference.
type Bus struct {
	ID string `yaml:"id" json:"id" validate:"required"`
}

// Line is a transmission branch. A positive investment cost marks it as a
// candidate for expansion; otherwise it is in service from year one.
type Line struct {
	ID             string  `yaml:"id" json:"id" validate:"required"`
	From           string  `yaml:"from" json:"from" validate:"required"`
	To             string  `yaml:"to" json:"to" validate:"required,nefield=From"`
	Reactance      float64 `yaml:"reactance" json:"reactance" validate:"gt=0"`
	Capacity       float64 `yaml:"capacity" json:"capacity" validate:"gt=0"`
	InvestmentCost float64 `yaml:"investment_cost" json:"investmentCost" validate:"gte=0"`
}

// Candidate reports whether the line is an expansion option.
func (l Line) Candidate() bool { return l.InvestmentCost > 0 }

// Load is a demand point. Critical loads may not be shed.
type Load struct {
	ID              string  `yaml:"id" json:"id" validate:"required"`
	Bus             string  `yaml:"bus" json:"bus" validate:"required"`
	Zone            string  `yaml:"zone" json:"zone"`
	PeakForecast    float64 `yaml:"peak_forecast" json:"peakForecast" validate:"gte=0"`
	PeakDeviation   float64 `yaml:"peak_deviation" json:"peakDeviation" validate:"gte=0"`
	ForecastGrowth  float64 `yaml:"forecast_growth" json:"forecastGrowth" validate:"gt=-1"`
	DeviationGrowth float64 `yaml:"deviation_growth" json:"deviationGrowth" validate:"gt=-1"`
	SheddingCost    float64 `yaml:"shedding_cost" json:"sheddingCost" validate:"gte=0"`
	Critical        bool    `yaml:"critical" json:"critical"`
}

// Generator is a dispatchable thermal unit with uncertain marginal cost and
// available capacity. A missing ramp limit leaves ramping unconstrained; a
// limit of 0 holds output constant between consecutive periods.
type Generator struct {
	ID                      string   `yaml:"id" json:"id" validate:"required"`
	Bus                     string   `yaml:"bus" json:"bus" validate:"required"`
	CapacityForecast        float64  `yaml:"capacity_forecast" json:"capacityForecast" validate:"gte=0"`
	CapacityDeviation       float64  `yaml:"capacity_deviation" json:"capacityDeviation" validate:"gte=0"`
	CapacityGrowth          float64  `yaml:"capacity_growth" json:"capacityGrowth" validate:"gt=-1"`
	CapacityDeviationGrowth float64  `yaml:"capacity_deviation_growth" json:"capacityDeviationGrowth" validate:"gt=-1"`
	MinOutput               float64  `yaml:"min_output" json:"minOutput" validate:"gte=0"`
	CostForecast            float64  `yaml:"cost_forecast" json:"costForecast" validate:"gte=0"`
	CostDeviation           float64  `yaml:"cost_deviation" json:"costDeviation" validate:"gte=0"`
	CostGrowth              float64  `yaml:"cost_growth" json:"costGrowth" validate:"gt=-1"`
	CostDeviationGrowth     float64  `yaml:"cost_deviation_growth" json:"costDeviationGrowth" validate:"gt=-1"`
	RampUp                  *float64 `yaml:"ramp_up,omitempty" json:"rampUp,omitempty" validate:"omitempty,gte=0"`
	RampDown                *float64 `yaml:"ramp_down,omitempty" json:"rampDown,omitempty" validate:"omitempty,gte=0"`
}

// Renewable is a solar or wind unit whose available capacity is uncertain.
type Renewable struct {
	ID                      string     `yaml:"id" json:"id" validate:"required"`
	Bus                     string     `yaml:"bus" json:"bus" validate:"required"`
	Technology              Technology `yaml:"technology" json:"technology" validate:"oneof=solar wind"`
	Zone                    string     `yaml:"zone" json:"zone"`
	CapacityForecast        float64    `yaml:"capacity_forecast" json:"capacityForecast" validate:"gte=0"`
	CapacityDeviation       float64    `yaml:"capacity_deviation" json:"capacityDeviation" validate:"gte=0"`
	CapacityGrowth          float64    `yaml:"capacity_growth" json:"capacityGrowth" validate:"gt=-1"`
	CapacityDeviationGrowth float64    `yaml:"capacity_deviation_growth" json:"capacityDeviationGrowth" validate:"gt=-1"`
	SpillageCost            float64    `yaml:"spillage_cost" json:"spillageCost" validate:"gte=0"`
}

// Storage is a battery-like unit. A positive investment cost marks it as a
// candidate.
type Storage struct {
	ID                  string  `yaml:"id" json:"id" validate:"required"`
	Bus                 string  `yaml:"bus" json:"bus" validate:"required"`
	ChargeCapacity      float64 `yaml:"charge_capacity" json:"chargeCapacity" validate:"gte=0"`
	DischargeCapacity   float64 `yaml:"discharge_capacity" json:"dischargeCapacity" validate:"gte=0"`
	EnergyMin           float64 `yaml:"energy_min" json:"energyMin" validate:"gte=0"`
	EnergyMax           float64 `yaml:"energy_max" json:"energyMax" validate:"gtefield=EnergyMin"`
	EnergyInitial       float64 `yaml:"energy_initial" json:"energyInitial" validate:"gtefield=EnergyMin,ltefield=EnergyMax"`
	ChargeEfficiency    float64 `yaml:"charge_efficiency" json:"chargeEfficiency" validate:"gt=0,lte=1"`
	DischargeEfficiency float64 `yaml:"discharge_efficiency" json:"dischargeEfficiency" validate:"gt=0,lte=1"`
	InvestmentCost      float64 `yaml:"investment_cost" json:"investmentCost" validate:"gte=0"`
}

// Candidate reports whether the unit is an expansion option.
func (s Storage) Candidate() bool { return s.InvestmentCost > 0 }

// Period is one operating slice of a representative day. Zone factors scale
// load peaks and renewable capacities; a zone without an entry uses 1.
type Period struct {
	Duration        float64            `yaml:"duration" json:"duration" validate:"gt=0"`
	DemandFactors   map[string]float64 `yaml:"demand_factors" json:"demandFactors"`
	CapacityFactors map[string]float64 `yaml:"capacity_factors" json:"capacityFactors"`
}

// DemandFactor returns the demand factor of zone.
func (p Period) DemandFactor(zone string) float64 {
	if f, ok := p.DemandFactors[zone]; ok {
		return f
	}
	return 1
}

// CapacityFactor returns the renewable capacity factor of zone.
func (p Period) CapacityFactor(zone string) float64 {
	if f, ok := p.CapacityFactors[zone]; ok {
		return f
	}
	return 1
}

// Day is a representative day weighted by the number of calendar days it
// stands for.
type Day struct {
	ID      string   `yaml:"id" json:"id" validate:"required"`
	Weight  float64  `yaml:"weight" json:"weight" validate:"gt=0"`
	Periods []Period `yaml:"periods" json:"periods" validate:"required,min=1,dive"`
}

// Budgets holds the uncertainty budget Γ of every class.
type Budgets struct {
	Demand      int `yaml:"demand" json:"demand" validate:"gte=0"`
	GenCost     int `yaml:"gen_cost" json:"genCost" validate:"gte=0"`
	GenCapacity int `yaml:"gen_capacity" json:"genCapacity" validate:"gte=0"`
	Solar       int `yaml:"solar" json:"solar" validate:"gte=0"`
	Wind        int `yaml:"wind" json:"wind" validate:"gte=0"`
}

// Of returns the budget of class c.
func (b Budgets) Of(c Class) int {
	switch c {
	case ClassDemand:
		return b.Demand
	case ClassGenCost:
		return b.GenCost
	case ClassGenCapacity:
		return b.GenCapacity
	case ClassSolar:
		return b.Solar
	case ClassWind:
		return b.Wind
	}
	return 0
}

// System is a complete planning case.
type System struct {
	Name       string      `yaml:"name" json:"name"`
	Buses      []Bus       `yaml:"buses" json:"buses" validate:"required,min=1,dive"`
	Lines      []Line      `yaml:"lines" json:"lines" validate:"dive"`
	Loads      []Load      `yaml:"loads" json:"loads" validate:"dive"`
	Generators []Generator `yaml:"generators" json:"generators" validate:"dive"`
	Renewables []Renewable `yaml:"renewables" json:"renewables" validate:"dive"`
	Storage    []Storage   `yaml:"storage" json:"storage" validate:"dive"`
	Days       []Day       `yaml:"days" json:"days" validate:"required,min=1,dive"`
	Budgets    Budgets     `yaml:"budgets" json:"budgets"`
	Settings   Settings    `yaml:"settings" json:"settings"`
}

// Reference returns the angle reference bus.
func (s *System) Reference() string { return s.Buses[0].ID }

// Discount returns the present-value factor of year y (1-based).
func (s *System) Discount(y int) float64 {
	return 1 / math.Pow(1+s.Settings.DiscountRate, float64(y-1))
}

// Grow applies an annual evolution rate to a base value for year y.
func Grow(base, rate float64, y int) float64 {
	return base * math.Pow(1+rate, float64(y-1))
}
