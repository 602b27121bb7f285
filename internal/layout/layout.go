// Package layout places buses on the diagram canvas. The algorithm is a pure
// function of the bus set: deterministic and idempotent, so a bus with a
// persisted position can simply bypass it and the rest never move between
// passes.
package layout

import (
	"sort"

	"github.com/splx7/gridflow-sub000/api/schemas"
	"github.com/splx7/gridflow-sub000/internal/config"
)

// Geometry holds the canvas dimensions and spacing used when placing buses.
type Geometry struct {
	CanvasWidth     float64
	HorizontalPitch float64
	VerticalPitch   float64
}

// DefaultGeometry matches the diagram canvas the renderer assumes.
func DefaultGeometry() Geometry {
	return Geometry{CanvasWidth: 1200, HorizontalPitch: 160, VerticalPitch: 120}
}

// GeometryFrom builds a Geometry from the configured canvas section. Unset
// values fall back to the defaults individually.
func GeometryFrom(cfg config.LayoutConfig) Geometry {
	geo := DefaultGeometry()
	if cfg.CanvasWidth > 0 {
		geo.CanvasWidth = cfg.CanvasWidth
	}
	if cfg.HorizontalPitch > 0 {
		geo.HorizontalPitch = cfg.HorizontalPitch
	}
	if cfg.VerticalPitch > 0 {
		geo.VerticalPitch = cfg.VerticalPitch
	}
	return geo
}

// Compute maps every bus id to a coordinate. Buses are grouped into layers by
// descending nominal voltage: the highest voltage sits at y = 0 and each
// further distinct voltage value takes the next layer down. Within a layer,
// buses are centered horizontally and placed left to right in stable input
// order. Buses sharing a numeric voltage collapse into one layer by
// construction.
//
// The branches argument only pins the call signature to the graph; placement
// is entirely voltage-driven today.
func Compute(buses []schemas.Bus, branches []schemas.Branch, geo Geometry) map[string]schemas.Position {
	_ = branches

	positions := make(map[string]schemas.Position, len(buses))
	if len(buses) == 0 {
		return positions
	}

	// Collect the distinct voltage levels, highest first.
	layerOf := make(map[float64][]schemas.Bus)
	voltages := make([]float64, 0)
	for _, bus := range buses {
		if _, seen := layerOf[bus.NominalVoltageKV]; !seen {
			voltages = append(voltages, bus.NominalVoltageKV)
		}
		layerOf[bus.NominalVoltageKV] = append(layerOf[bus.NominalVoltageKV], bus)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(voltages)))

	for layer, kv := range voltages {
		row := layerOf[kv]
		totalWidth := float64(len(row)) * geo.HorizontalPitch
		startX := (geo.CanvasWidth - totalWidth) / 2
		y := float64(layer) * geo.VerticalPitch

		for i, bus := range row {
			positions[bus.ID] = schemas.Position{
				X: startX + float64(i)*geo.HorizontalPitch,
				Y: y,
			}
		}
	}
	return positions
}

// Resolve merges persisted positions with computed ones. A bus that carries a
// persisted coordinate keeps it; the layout output for that bus is never
// consulted.
func Resolve(buses []schemas.Bus, branches []schemas.Branch, geo Geometry) map[string]schemas.Position {
	computed := Compute(buses, branches, geo)
	resolved := make(map[string]schemas.Position, len(buses))
	for _, bus := range buses {
		if bus.Position != nil {
			resolved[bus.ID] = *bus.Position
			continue
		}
		resolved[bus.ID] = computed[bus.ID]
	}
	return resolved
}
