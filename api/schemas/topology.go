package schemas

import "encoding/json"

// -- Core Topology Models --
// These types represent the electrical network graph as it exists in the
// persistence service and in the local topology store.

// BusType categorizes a bus for the power-flow solver.
type BusType string

const (
	BusSlack BusType = "slack"
	BusPV    BusType = "pv"
	BusPQ    BusType = "pq"
)

// BranchType categorizes the physical link a branch models.
type BranchType string

const (
	BranchCable       BranchType = "cable"
	BranchLine        BranchType = "line"
	BranchTransformer BranchType = "transformer"
	BranchInverter    BranchType = "inverter"
)

// Position is a 2-D diagram coordinate. A bus without a persisted position is
// placed by the auto-layout engine instead.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SlackConfig holds type-specific settings that only apply to slack buses.
type SlackConfig struct {
	VoltageSetpointPU float64 `json:"voltage_setpoint_pu,omitempty"`
	ShortCircuitMVA   float64 `json:"short_circuit_mva,omitempty"`
}

// Bus is a node of the network graph at a given nominal voltage.
type Bus struct {
	ID               string          `json:"id"`
	ProjectID        string          `json:"project_id"`
	Name             string          `json:"name"`
	Type             BusType         `json:"bus_type"`
	NominalVoltageKV float64         `json:"nominal_voltage_kv"`
	BaseMVA          float64         `json:"base_mva,omitempty"`
	Position         *Position       `json:"position,omitempty"`
	Slack            *SlackConfig    `json:"slack_config,omitempty"`
	Config           json.RawMessage `json:"config,omitempty"`
}

// ElectricalConfig carries the per-type electrical parameters of a branch.
// Fields that do not apply to a given branch type are left zero.
type ElectricalConfig struct {
	ResistanceOhmPerKm float64 `json:"resistance_ohm_per_km,omitempty"`
	ReactanceOhmPerKm  float64 `json:"reactance_ohm_per_km,omitempty"`
	LengthKm           float64 `json:"length_km,omitempty"`
	RatingMVA          float64 `json:"rating_mva,omitempty"`
	TurnsRatio         float64 `json:"turns_ratio,omitempty"`
}

// Branch is an edge connecting exactly two buses. Endpoints must reference
// existing buses in the same project; a self loop is invalid.
type Branch struct {
	ID         string           `json:"id"`
	ProjectID  string           `json:"project_id"`
	Name       string           `json:"name"`
	Type       BranchType       `json:"branch_type"`
	FromBusID  string           `json:"from_bus_id"`
	ToBusID    string           `json:"to_bus_id"`
	Electrical ElectricalConfig `json:"electrical,omitempty"`
}

// LoadAllocation assigns a fraction of an aggregate load profile to a bus.
// Allocations against the same profile are independent and need not sum to 1;
// the un-allocated remainder is served at an unmodeled point.
type LoadAllocation struct {
	ID            string  `json:"id"`
	ProjectID     string  `json:"project_id"`
	LoadProfileID string  `json:"load_profile_id"`
	BusID         string  `json:"bus_id"`
	Name          string  `json:"name"`
	Fraction      float64 `json:"fraction"`
	PowerFactor   float64 `json:"power_factor"`
}

// Component is a power-producing or consuming device owned by the project-wide
// component list. The optional BusID is a weak reference placing it onto the
// topology graph; re-assigning it is a structural mutation.
type Component struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	BusID     string          `json:"bus_id,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// NetworkMode distinguishes single-bus projects from fully modeled networks.
type NetworkMode string

const (
	NetworkModeSingleBus NetworkMode = "single-bus"
	NetworkModeMultiBus  NetworkMode = "multi-bus"
)

// Project is the slice of the parent project record the topology subsystem
// cares about.
type Project struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	NetworkMode NetworkMode `json:"network_mode"`
	GridCode    string      `json:"grid_code,omitempty"`
}

// GeneratedNetwork is the response of the bulk auto-generation collaborator.
// The workflow replaces the entire local topology with its contents.
type GeneratedNetwork struct {
	Buses           []Bus                   `json:"buses"`
	Branches        []Branch                `json:"branches"`
	LoadAllocations []LoadAllocation        `json:"load_allocations"`
	Recommendations []NetworkRecommendation `json:"recommendations"`
}

// AutoGenerateOptions tunes the bulk synthesis collaborator.
type AutoGenerateOptions struct {
	VoltageLevelsKV []float64 `json:"voltage_levels_kv,omitempty"`
	PreferCables    bool      `json:"prefer_cables,omitempty"`
	GridCode        string    `json:"grid_code,omitempty"`
}
