package melcloud

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testErvConf = `{
	"DeviceID": 9012,
	"BuildingID": 77,
	"DeviceName": "Ventilation",
	"Presets": [{"ID": 1, "SetFanSpeed": 2}],
	"Device": {
		"DeviceType": 3,
		"ActualVentilationMode": 1,
		"ActualSupplyFanSpeed": 2,
		"ActualExhaustFanSpeed": 3,
		"RoomCO2Level": 640,
		"CoreMaintenanceRequired": false,
		"FilterMaintenanceRequired": true,
		"NightPurgeMode": false,
		"WifiSignalStrength": -51,
		"HasError": false,
		"ErrorCode": 8000,
		"HasEnergyConsumedMeter": false
	}
}`

const testErvState = `{
	"DeviceID": 9012,
	"EffectiveFlags": 0,
	"Power": true,
	"RoomTemperature": 21,
	"OutdoorTemperature": 12.5,
	"VentilationMode": 2,
	"SetFanSpeed": 3,
	"NumberOfFanSpeeds": 4,
	"HasCO2Sensor": true
}`

func newTestErvDevice(t *testing.T, opts ...Option) *ErvDevice {
	t.Helper()

	c := NewClient("test-token", opts...)
	d := NewErvDevice(json.RawMessage(testErvConf), c)
	d.state = json.RawMessage(testErvState)

	return d
}

func TestErvDevice_ApplyWrite(t *testing.T) {
	d := newTestErvDevice(t)

	t.Run("ventilation mode translates to vendor codes", func(t *testing.T) {
		for mode, code := range map[string]int64{
			VentilationModeRecovery: 0,
			VentilationModeBypass:   1,
			VentilationModeAuto:     2,
		} {
			state := map[string]any{}
			assert.NoError(t, d.applyWrite(state, PropertyVentilationMode, mode))
			assert.Equal(t, code, state["VentilationMode"])
			assert.Equal(t, ervFlagVentilationMode, stateFlags(state))
		}
	})

	t.Run("fan speed accepts numeric names and stopped", func(t *testing.T) {
		state := map[string]any{}
		assert.NoError(t, d.applyWrite(state, PropertyFanSpeed, "2"))
		assert.Equal(t, int64(2), state["SetFanSpeed"])
		assert.Equal(t, ervFlagFanSpeed, stateFlags(state))

		assert.NoError(t, d.applyWrite(state, PropertyFanSpeed, FanSpeedStopped))
		assert.Equal(t, int64(0), state["SetFanSpeed"])
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		assert.ErrorIs(t, d.applyWrite(map[string]any{}, PropertyVentilationMode, "turbo"), ErrInvalidValue)
		assert.ErrorIs(t, d.applyWrite(map[string]any{}, PropertyFanSpeed, "fast"), ErrInvalidValue)
	})

	t.Run("unknown properties name the key", func(t *testing.T) {
		err := d.applyWrite(map[string]any{}, "boost", true)
		assert.ErrorIs(t, err, ErrInvalidProperty)
	})
}

func TestErvDevice_Set(t *testing.T) {
	t.Run("writes post to the ventilation setter", func(t *testing.T) {
		var path string
		var captured []byte

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			captured, _ = io.ReadAll(r.Body)

			w.Write([]byte(`{"SetFanSpeed": 2, "EffectiveFlags": 0}`))
		}))
		defer server.Close()

		d := newTestErvDevice(t, WithBaseURL(server.URL), WithSetDebounce(10*time.Millisecond))

		assert.NoError(t, d.SetFanSpeed(context.Background(), "2"))
		assert.Equal(t, "/Device/SetErv", path)

		var sent map[string]any
		assert.NoError(t, json.Unmarshal(captured, &sent))
		assert.Equal(t, 2.0, sent["SetFanSpeed"])
		assert.Equal(t, float64(ervFlagFanSpeed), sent["EffectiveFlags"])
		assert.Equal(t, true, sent["HasPendingCommand"])
	})

	t.Run("ventilation mode and fan speed coalesce into one request", func(t *testing.T) {
		var requests int64
		var captured []byte

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt64(&requests, 1)
			captured, _ = io.ReadAll(r.Body)

			w.Write([]byte(`{"VentilationMode": 1, "SetFanSpeed": 3, "EffectiveFlags": 0}`))
		}))
		defer server.Close()

		d := newTestErvDevice(t, WithBaseURL(server.URL), WithSetDebounce(50*time.Millisecond))

		assert.NoError(t, d.Set(context.Background(), map[string]any{
			PropertyVentilationMode: VentilationModeBypass,
			PropertyFanSpeed:        "3",
		}))

		assert.Equal(t, int64(1), atomic.LoadInt64(&requests))

		var sent map[string]any
		assert.NoError(t, json.Unmarshal(captured, &sent))
		assert.Equal(t, 1.0, sent["VentilationMode"])
		assert.Equal(t, 3.0, sent["SetFanSpeed"])
		assert.Equal(t, float64(ervFlagVentilationMode|ervFlagFanSpeed), sent["EffectiveFlags"])
	})
}

func TestErvDevice_Accessors(t *testing.T) {
	d := newTestErvDevice(t)

	t.Run("temperatures", func(t *testing.T) {
		assert.Equal(t, 21.0, d.RoomTemperature())
		assert.Equal(t, 12.5, d.OutdoorTemperature())
	})

	t.Run("ventilation modes", func(t *testing.T) {
		assert.Equal(t, VentilationModeAuto, d.VentilationMode())
		assert.Equal(t, VentilationModeBypass, d.ActualVentilationMode())
	})

	t.Run("fan speeds", func(t *testing.T) {
		assert.Equal(t, "3", d.FanSpeed())
		assert.Equal(t, []string{"1", "2", "3", "4"}, d.FanSpeeds())
		assert.Equal(t, "2", d.ActualSupplyFanSpeed())
		assert.Equal(t, "3", d.ActualExhaustFanSpeed())
	})

	t.Run("co2 level requires a sensor", func(t *testing.T) {
		level, ok := d.RoomCO2Level()
		assert.True(t, ok)
		assert.Equal(t, 640.0, level)

		noSensor := newTestErvDevice(t)
		noSensor.state = json.RawMessage(`{"HasCO2Sensor": false}`)
		_, ok = noSensor.RoomCO2Level()
		assert.False(t, ok)
	})

	t.Run("maintenance and diagnostics", func(t *testing.T) {
		assert.False(t, d.CoreMaintenanceRequired())
		assert.True(t, d.FilterMaintenanceRequired())
		assert.False(t, d.NightPurgeMode())
		assert.Equal(t, int64(-51), d.WifiSignal())
		assert.False(t, d.HasError())
		assert.Equal(t, int64(8000), d.ErrorCode())
	})

	t.Run("presets keep their raw json", func(t *testing.T) {
		presets := d.Presets()
		assert.Len(t, presets, 1)

		var preset map[string]any
		assert.NoError(t, json.Unmarshal(presets[0], &preset))
		assert.Equal(t, 1.0, preset["ID"])
	})
}
