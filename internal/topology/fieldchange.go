package topology

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/splx7/gridflow-sub000/api/schemas"
)

// Field names accepted by ApplyFieldChange. They mirror the wire names the
// recommendation engine emits in RecommendedAction.Field.
const (
	FieldName             = "name"
	FieldNominalVoltageKV = "nominal_voltage_kv"
	FieldBusType          = "bus_type"
	FieldBaseMVA          = "base_mva"
	FieldBranchType       = "branch_type"
	FieldRatingMVA        = "rating_mva"
	FieldTurnsRatio       = "turns_ratio"
	FieldLengthKm         = "length_km"
)

// ApplyFieldChange performs the single field-level mutation a recommendation
// accept asks for. The target may be a bus or a branch; the change rides the
// regular update path, so persistence, mirroring, and change notification all
// behave exactly like a manual edit.
func (s *Store) ApplyFieldChange(ctx context.Context, targetID, field string, newValue interface{}) error {
	s.mu.RLock()
	bus, isBus := s.buses[targetID]
	branch, isBranch := s.branches[targetID]
	s.mu.RUnlock()

	switch {
	case isBus:
		if err := applyBusField(&bus, field, newValue); err != nil {
			return err
		}
		_, err := s.UpdateBus(ctx, bus)
		return err
	case isBranch:
		if err := applyBranchField(&branch, field, newValue); err != nil {
			return err
		}
		_, err := s.UpdateBranch(ctx, branch)
		return err
	default:
		return fmt.Errorf("target %s: %w", targetID, ErrBusNotFound)
	}
}

func applyBusField(bus *schemas.Bus, field string, value interface{}) error {
	switch field {
	case FieldName:
		str, err := asString(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		bus.Name = str
	case FieldNominalVoltageKV:
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		if f <= 0 {
			return fmt.Errorf("field %s: voltage must be positive, got %v", field, f)
		}
		bus.NominalVoltageKV = f
	case FieldBaseMVA:
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		bus.BaseMVA = f
	case FieldBusType:
		str, err := asString(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		switch schemas.BusType(str) {
		case schemas.BusSlack, schemas.BusPV, schemas.BusPQ:
			bus.Type = schemas.BusType(str)
		default:
			return fmt.Errorf("field %s: invalid bus type %q", field, str)
		}
	default:
		return fmt.Errorf("bus field %q: %w", field, ErrUnknownField)
	}
	return nil
}

func applyBranchField(branch *schemas.Branch, field string, value interface{}) error {
	switch field {
	case FieldName:
		str, err := asString(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		branch.Name = str
	case FieldRatingMVA:
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		branch.Electrical.RatingMVA = f
	case FieldTurnsRatio:
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		branch.Electrical.TurnsRatio = f
	case FieldLengthKm:
		f, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		branch.Electrical.LengthKm = f
	case FieldBranchType:
		str, err := asString(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		switch schemas.BranchType(str) {
		case schemas.BranchCable, schemas.BranchLine, schemas.BranchTransformer, schemas.BranchInverter:
			branch.Type = schemas.BranchType(str)
		default:
			return fmt.Errorf("field %s: invalid branch type %q", field, str)
		}
	default:
		return fmt.Errorf("branch field %q: %w", field, ErrUnknownField)
	}
	return nil
}

// asFloat coerces the loosely typed values carried by recommendation actions.
// JSON decoding hands us float64; locally built actions may carry ints.
func asFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("expected numeric value, got %T", value)
	}
}

func asString(value interface{}) (string, error) {
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected string value, got %T", value)
	}
	return str, nil
}
