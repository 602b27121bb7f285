package schemas

import (
	"encoding/json"
	"time"
)

// -- Solver Output Models --
// A PowerFlowResult is a read-only snapshot replaced wholesale on every solver
// response. It is never partially merged into an older result.

// BusVoltage is the solved per-bus voltage.
type BusVoltage struct {
	BusID       string  `json:"bus_id"`
	MagnitudePU float64 `json:"magnitude_pu"`
	AngleDeg    float64 `json:"angle_deg"`
}

// BranchFlow is the solved per-branch power flow.
type BranchFlow struct {
	BranchID       string  `json:"branch_id"`
	ActiveMW       float64 `json:"active_mw"`
	ReactiveMVAr   float64 `json:"reactive_mvar"`
	LossesMW       float64 `json:"losses_mw"`
	LoadingPercent float64 `json:"loading_percent"`
}

// ViolationType distinguishes the violation lists carried by a result.
type ViolationType string

const (
	ViolationVoltage ViolationType = "voltage"
	ViolationThermal ViolationType = "thermal"
)

// Violation marks a bus or branch operating outside its limits.
type Violation struct {
	Type     ViolationType `json:"type"`
	TargetID string        `json:"target_id"`
	Value    float64       `json:"value"`
	Limit    float64       `json:"limit"`
	Message  string        `json:"message"`
}

// ShortCircuitData is the per-bus short-circuit contribution.
type ShortCircuitData struct {
	BusID        string  `json:"bus_id"`
	InitialSymKA float64 `json:"initial_sym_ka"`
	PeakKA       float64 `json:"peak_ka"`
}

// ResultSummary is the rolled-up view rendered in the diagram header.
type ResultSummary struct {
	MinVoltagePU      float64 `json:"min_voltage_pu"`
	MaxVoltagePU      float64 `json:"max_voltage_pu"`
	WorstBusID        string  `json:"worst_bus_id"`
	MaxLoadingPercent float64 `json:"max_loading_percent"`
	TotalLossesMW     float64 `json:"total_losses_mw"`
}

// PowerFlowResult is the latest solver output for a project. The solver
// regenerates the recommendation list wholesale on every run; entries carry
// no identity that survives across results.
type PowerFlowResult struct {
	ProjectID       string                  `json:"project_id"`
	Converged       bool                    `json:"converged"`
	Iterations      int                     `json:"iterations"`
	BusVoltages     []BusVoltage            `json:"bus_voltages"`
	BranchFlows     []BranchFlow            `json:"branch_flows"`
	Violations      []Violation             `json:"violations"`
	ShortCircuit    []ShortCircuitData      `json:"short_circuit"`
	Summary         ResultSummary           `json:"summary"`
	Recommendations []NetworkRecommendation `json:"recommendations"`
	SolvedAt        time.Time               `json:"solved_at"`
}

// -- Recommendations --

// Severity grades a recommendation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// RecommendedAction is the concrete, machine-applicable part of a
// recommendation: a single field-level change on a bus or branch.
type RecommendedAction struct {
	TargetID    string      `json:"target_id"`
	Field       string      `json:"field"`
	OldValue    interface{} `json:"old_value"`
	NewValue    interface{} `json:"new_value"`
	Description string      `json:"description"`
}

// NetworkRecommendation is a solver- or rule-engine-issued suggestion.
// Recommendations are ephemeral: regenerated on every recompute, never
// persisted, and carry no stable identity across recompute cycles.
type NetworkRecommendation struct {
	Severity Severity           `json:"severity"`
	Code     string             `json:"code"`
	Title    string             `json:"title"`
	Message  string             `json:"message"`
	Action   *RecommendedAction `json:"action,omitempty"`
}

// Actionable reports whether the recommendation carries a concrete change
// that can be accepted.
func (r NetworkRecommendation) Actionable() bool {
	return r.Action != nil && r.Action.TargetID != ""
}

// -- What-If Evaluation Models --

// HealthBaseline is the load/solar summary a hypothetical evaluation is
// measured against. It only exists once a recommendation has been applied to
// the project; without it the what-if path stays inert.
type HealthBaseline struct {
	LoadSummaryKWh    float64 `json:"load_summary_kwh"`
	SolarResourceKWhM float64 `json:"solar_resource_kwh_m2"`
}

// HealthRequest is the payload of the stateless system-health collaborator.
type HealthRequest struct {
	Components []Component    `json:"components"`
	Baseline   HealthBaseline `json:"baseline"`
}

// HealthEstimate is one named figure of the health evaluation.
type HealthEstimate struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// SystemHealth is the hypothetical evaluation result.
type SystemHealth struct {
	Estimates []HealthEstimate `json:"estimates"`
	Warnings  []string         `json:"warnings"`
}

// -- Solver-Adjacent Analyses --

// ContingencyOutcome is the result of dropping one branch in an N-1 sweep.
type ContingencyOutcome struct {
	BranchID   string      `json:"branch_id"`
	Converged  bool        `json:"converged"`
	Violations []Violation `json:"violations"`
}

// ContingencyReport is the full N-1 contingency analysis response.
type ContingencyReport struct {
	ProjectID string               `json:"project_id"`
	Outcomes  []ContingencyOutcome `json:"outcomes"`
}

// GridCode describes one selectable grid code and its limits.
type GridCode struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Region string          `json:"region"`
	Limits json.RawMessage `json:"limits,omitempty"`
}
