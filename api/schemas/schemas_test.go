package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendationActionable(t *testing.T) {
	t.Parallel()

	assert.False(t, NetworkRecommendation{Code: "NOTE"}.Actionable(),
		"no action means informational only")
	assert.False(t, NetworkRecommendation{Code: "NOTE", Action: &RecommendedAction{}}.Actionable(),
		"an action without a target cannot be applied")
	assert.True(t, NetworkRecommendation{
		Code:   "UNDERVOLTAGE",
		Action: &RecommendedAction{TargetID: "bus-a", Field: "nominal_voltage_kv", NewValue: 33.0},
	}.Actionable())
}

func TestBusOptionalFieldsOmitted(t *testing.T) {
	t.Parallel()

	// A bus fresh off the palette has no position and no slack config; those
	// must not serialize as explicit nulls.
	raw, err := json.Marshal(Bus{ID: "bus-a", Name: "Main", Type: BusPQ, NominalVoltageKV: 11})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "position")
	assert.NotContains(t, string(raw), "slack_config")

	var decoded Bus
	require.NoError(t, json.Unmarshal([]byte(`{"id":"bus-a","bus_type":"slack","position":{"x":40,"y":120}}`), &decoded))
	assert.Equal(t, BusSlack, decoded.Type)
	require.NotNil(t, decoded.Position)
	assert.Equal(t, float64(120), decoded.Position.Y)
}

func TestComponentUnplacedOmitsBusID(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Component{ID: "c-1", Type: "solar_array"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "bus_id", "an unplaced component has no bus reference on the wire")
}
