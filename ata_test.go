package melcloud

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtaDevice_ApplyWrite(t *testing.T) {
	d := newTestAtaDevice(t, testAtaState)

	t.Run("target temperature sets field and flag", func(t *testing.T) {
		state := map[string]any{}
		assert.NoError(t, d.applyWrite(state, PropertyTargetTemperature, 21.5))
		assert.Equal(t, 21.5, state["SetTemperature"])
		assert.Equal(t, ataFlagTemperature, stateFlags(state))
	})

	t.Run("operation mode translates to vendor codes", func(t *testing.T) {
		for mode, code := range map[string]int64{
			OperationModeHeat:     1,
			OperationModeDry:      2,
			OperationModeCool:     3,
			OperationModeFanOnly:  7,
			OperationModeHeatCool: 8,
		} {
			state := map[string]any{}
			assert.NoError(t, d.applyWrite(state, PropertyOperationMode, mode))
			assert.Equal(t, code, state["OperationMode"])
			assert.Equal(t, ataFlagOperationMode, stateFlags(state))
		}
	})

	t.Run("fan speed auto maps to zero", func(t *testing.T) {
		state := map[string]any{}
		assert.NoError(t, d.applyWrite(state, PropertyFanSpeed, FanSpeedAuto))
		assert.Equal(t, int64(0), state["SetFanSpeed"])

		assert.NoError(t, d.applyWrite(state, PropertyFanSpeed, "3"))
		assert.Equal(t, int64(3), state["SetFanSpeed"])
		assert.Equal(t, ataFlagFanSpeed, stateFlags(state))
	})

	t.Run("vane positions translate to vendor codes", func(t *testing.T) {
		state := map[string]any{}
		assert.NoError(t, d.applyWrite(state, PropertyVaneHorizontal, VanePositionSwing))
		assert.Equal(t, int64(12), state["VaneHorizontal"])

		assert.NoError(t, d.applyWrite(state, PropertyVaneVertical, VanePositionSwing))
		assert.Equal(t, int64(7), state["VaneVertical"])

		assert.Equal(t, ataFlagVaneHorizontal|ataFlagVaneVertical, stateFlags(state))
	})

	t.Run("flags accumulate across writes", func(t *testing.T) {
		state := map[string]any{}
		assert.NoError(t, d.applyWrite(state, PropertyTargetTemperature, 22.0))
		assert.NoError(t, d.applyWrite(state, PropertyOperationMode, OperationModeCool))
		assert.Equal(t, ataFlagTemperature|ataFlagOperationMode, stateFlags(state))
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		for property, value := range map[string]any{
			PropertyOperationMode:  "arctic_blast",
			PropertyFanSpeed:       "warp",
			PropertyVaneHorizontal: "6_left",
			PropertyVaneVertical:   "split",
		} {
			err := d.applyWrite(map[string]any{}, property, value)
			assert.ErrorIs(t, err, ErrInvalidValue, property)
		}
	})

	t.Run("unknown properties name the key", func(t *testing.T) {
		err := d.applyWrite(map[string]any{}, "turbo", true)
		assert.ErrorIs(t, err, ErrInvalidProperty)
		assert.Contains(t, err.Error(), "turbo")
	})
}

func TestAtaDevice_Accessors(t *testing.T) {
	d := newTestAtaDevice(t, testAtaState)

	t.Run("temperatures", func(t *testing.T) {
		assert.Equal(t, 22.5, d.RoomTemperature())
		assert.Equal(t, 21.0, d.TargetTemperature())
		assert.Equal(t, 0.5, d.TargetTemperatureStep())
	})

	t.Run("target range follows the active operation mode", func(t *testing.T) {
		assert.Equal(t, OperationModeCool, d.OperationMode())
		assert.Equal(t, 16.0, d.TargetTemperatureMin())
		assert.Equal(t, 31.0, d.TargetTemperatureMax())
	})

	t.Run("operation modes follow conf capabilities", func(t *testing.T) {
		assert.Equal(t, []string{
			OperationModeHeat,
			OperationModeDry,
			OperationModeCool,
			OperationModeFanOnly,
			OperationModeHeatCool,
		}, d.OperationModes())
	})

	t.Run("fan speeds include auto and the advertised count", func(t *testing.T) {
		assert.Equal(t, FanSpeedAuto, d.FanSpeed())
		assert.Equal(t, []string{FanSpeedAuto, "1", "2", "3", "4", "5"}, d.FanSpeeds())
		assert.Equal(t, "2", d.ActualFanSpeed())
	})

	t.Run("vane positions", func(t *testing.T) {
		assert.Equal(t, VanePositionSwing, d.VaneHorizontal())
		assert.Equal(t, VanePositionSwing, d.VaneVertical())

		assert.Contains(t, d.VaneHorizontalPositions(), HorizontalVanePositionSplit)
		assert.Contains(t, d.VaneHorizontalPositions(), VanePositionSwing)
		assert.Contains(t, d.VaneVerticalPositions(), VerticalVanePosition5)
	})

	t.Run("hidden vane controls yield no positions", func(t *testing.T) {
		hidden := newTestAtaDevice(t, testAtaState)
		hidden.conf = []byte(`{"HideVaneControls": true, "Device": {"ModelSupportsVaneHorizontal": true, "ModelSupportsVaneVertical": true}}`)

		assert.Empty(t, hidden.VaneHorizontalPositions())
		assert.Empty(t, hidden.VaneVerticalPositions())
	})

	t.Run("energy meter", func(t *testing.T) {
		assert.True(t, d.HasEnergyConsumedMeter())
		assert.Equal(t, 12.345, d.TotalEnergyConsumed())
	})
}
