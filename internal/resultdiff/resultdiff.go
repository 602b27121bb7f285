// Package resultdiff compares two archived power-flow results, reporting what
// a topology change actually did to the network: violations raised or
// resolved, voltage shifts beyond tolerance, and summary-level deltas.
package resultdiff

import (
	"fmt"
	"math"
	"sort"

	"github.com/splx7/gridflow-sub000/api/schemas"
)

// Options tunes what counts as a meaningful difference.
type Options struct {
	// VoltageTolerancePU is the minimum per-unit voltage shift reported as a
	// change. Solver noise below this is ignored.
	VoltageTolerancePU float64
	// LoadingTolerancePct is the minimum branch loading shift in percent.
	LoadingTolerancePct float64
}

// DefaultOptions returns tolerances suited to comparing consecutive runs of
// the same project.
func DefaultOptions() Options {
	return Options{
		VoltageTolerancePU:  0.005,
		LoadingTolerancePct: 1.0,
	}
}

// VoltageShift is one bus whose solved voltage moved beyond tolerance.
type VoltageShift struct {
	BusID    string  `json:"bus_id"`
	BeforePU float64 `json:"before_pu"`
	AfterPU  float64 `json:"after_pu"`
	DeltaPU  float64 `json:"delta_pu"`
}

// LoadingShift is one branch whose loading moved beyond tolerance.
type LoadingShift struct {
	BranchID  string  `json:"branch_id"`
	BeforePct float64 `json:"before_pct"`
	AfterPct  float64 `json:"after_pct"`
	DeltaPct  float64 `json:"delta_pct"`
}

// Comparison is the full delta between two runs. Equivalent is true when
// nothing beyond tolerance changed.
type Comparison struct {
	Equivalent bool `json:"equivalent"`

	ConvergenceChanged bool `json:"convergence_changed"`
	ConvergedBefore    bool `json:"converged_before"`
	ConvergedAfter     bool `json:"converged_after"`

	ViolationsRaised   []schemas.Violation `json:"violations_raised"`
	ViolationsResolved []schemas.Violation `json:"violations_resolved"`

	VoltageShifts []VoltageShift `json:"voltage_shifts"`
	LoadingShifts []LoadingShift `json:"loading_shifts"`

	LossDeltaMW float64 `json:"loss_delta_mw"`
}

// Summary renders a one-line human description of the comparison.
func (c *Comparison) Summary() string {
	if c.Equivalent {
		return "runs are equivalent within tolerance"
	}
	return fmt.Sprintf("%d violations raised, %d resolved, %d voltage shifts, %d loading shifts, loss delta %.3f MW",
		len(c.ViolationsRaised), len(c.ViolationsResolved),
		len(c.VoltageShifts), len(c.LoadingShifts), c.LossDeltaMW)
}

// violationKey identifies a violation across runs. Value and message change
// between solves even when the underlying problem is the same, so identity is
// type plus target only.
func violationKey(v schemas.Violation) string {
	return string(v.Type) + "\x00" + v.TargetID
}

// Compare diffs two results with the default tolerances.
func Compare(before, after *schemas.PowerFlowResult) *Comparison {
	return CompareWithOptions(before, after, DefaultOptions())
}

// CompareWithOptions diffs two results. The receiver order matters: the diff
// reads as "what changed going from before to after".
func CompareWithOptions(before, after *schemas.PowerFlowResult, opts Options) *Comparison {
	c := &Comparison{
		ConvergedBefore: before.Converged,
		ConvergedAfter:  after.Converged,
	}
	c.ConvergenceChanged = before.Converged != after.Converged
	c.LossDeltaMW = after.Summary.TotalLossesMW - before.Summary.TotalLossesMW

	beforeViolations := make(map[string]schemas.Violation, len(before.Violations))
	for _, v := range before.Violations {
		beforeViolations[violationKey(v)] = v
	}
	afterViolations := make(map[string]schemas.Violation, len(after.Violations))
	for _, v := range after.Violations {
		afterViolations[violationKey(v)] = v
	}
	for key, v := range afterViolations {
		if _, ok := beforeViolations[key]; !ok {
			c.ViolationsRaised = append(c.ViolationsRaised, v)
		}
	}
	for key, v := range beforeViolations {
		if _, ok := afterViolations[key]; !ok {
			c.ViolationsResolved = append(c.ViolationsResolved, v)
		}
	}
	sortViolations(c.ViolationsRaised)
	sortViolations(c.ViolationsResolved)

	beforeVoltages := make(map[string]float64, len(before.BusVoltages))
	for _, bv := range before.BusVoltages {
		beforeVoltages[bv.BusID] = bv.MagnitudePU
	}
	for _, bv := range after.BusVoltages {
		prev, ok := beforeVoltages[bv.BusID]
		if !ok {
			continue
		}
		delta := bv.MagnitudePU - prev
		if math.Abs(delta) >= opts.VoltageTolerancePU {
			c.VoltageShifts = append(c.VoltageShifts, VoltageShift{
				BusID:    bv.BusID,
				BeforePU: prev,
				AfterPU:  bv.MagnitudePU,
				DeltaPU:  delta,
			})
		}
	}
	sort.Slice(c.VoltageShifts, func(i, j int) bool {
		return math.Abs(c.VoltageShifts[i].DeltaPU) > math.Abs(c.VoltageShifts[j].DeltaPU)
	})

	beforeLoading := make(map[string]float64, len(before.BranchFlows))
	for _, bf := range before.BranchFlows {
		beforeLoading[bf.BranchID] = bf.LoadingPercent
	}
	for _, bf := range after.BranchFlows {
		prev, ok := beforeLoading[bf.BranchID]
		if !ok {
			continue
		}
		delta := bf.LoadingPercent - prev
		if math.Abs(delta) >= opts.LoadingTolerancePct {
			c.LoadingShifts = append(c.LoadingShifts, LoadingShift{
				BranchID:  bf.BranchID,
				BeforePct: prev,
				AfterPct:  bf.LoadingPercent,
				DeltaPct:  delta,
			})
		}
	}
	sort.Slice(c.LoadingShifts, func(i, j int) bool {
		return math.Abs(c.LoadingShifts[i].DeltaPct) > math.Abs(c.LoadingShifts[j].DeltaPct)
	})

	c.Equivalent = !c.ConvergenceChanged &&
		len(c.ViolationsRaised) == 0 && len(c.ViolationsResolved) == 0 &&
		len(c.VoltageShifts) == 0 && len(c.LoadingShifts) == 0
	return c
}

func sortViolations(violations []schemas.Violation) {
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].Type != violations[j].Type {
			return violations[i].Type < violations[j].Type
		}
		return violations[i].TargetID < violations[j].TargetID
	})
}
