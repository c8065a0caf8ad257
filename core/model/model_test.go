package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceDefaults(t *testing.T) {
	d := Device{ID: "switch.espee_dryer"}
	assert.Equal(t, DefaultPowerW, d.Power())
	assert.Equal(t, DefaultDurationHours, d.Duration())
	assert.Equal(t, "switch", d.Domain())
	assert.Equal(t, "switch.espee_dryer", d.DisplayName())

	d = Device{ID: "fan.esp_bedroom_hvac", Name: "Bedroom HVAC", PowerW: 120, DurationHours: 3}
	assert.Equal(t, 120.0, d.Power())
	assert.Equal(t, 3.0, d.Duration())
	assert.Equal(t, "Bedroom HVAC", d.DisplayName())
}

func TestDeviceValidate(t *testing.T) {
	assert.Error(t, Device{}.Validate())
	assert.Error(t, Device{ID: "x", PowerW: -1}.Validate())
	assert.NoError(t, Device{ID: "x"}.Validate())
}

func TestWindow(t *testing.T) {
	w := Window{Start: 2, End: 6}
	assert.True(t, w.Valid())
	assert.Equal(t, 4, w.Len())
	assert.True(t, w.Contains(5))
	assert.False(t, w.Contains(6))

	bad := Window{Start: 5, End: 3}
	assert.False(t, bad.Valid())
	assert.Equal(t, 0, bad.Len())
}

func TestResultMarkers(t *testing.T) {
	var r OptimizationResult
	r.MarkInvalid()
	assert.Equal(t, MarkerInvalid, r.OptimalStart)
	assert.Equal(t, MarkerInvalid, r.OptimalEnd)
	assert.False(t, r.Status.Accepted())

	r.MarkInfeasible()
	assert.Equal(t, "N/A", r.OptimalEnd)
	assert.Equal(t, StatusInfeasible, r.Status)
}

func TestResultKindJSON(t *testing.T) {
	r := OptimizationResult{Device: "switch.espee_dryer", Kind: KindFleet, Status: StatusOptimal}
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kind":"fleet"`)

	var back OptimizationResult
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, KindFleet, back.Kind)
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"bogus"}`), &back))
}
