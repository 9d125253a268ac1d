package exporter

import (
	"encoding/json"
	"testing"

	"github.com/shimmeringbee/melcloud"
	"github.com/stretchr/testify/assert"
)

func TestExportDevice(t *testing.T) {
	t.Run("ata devices export climate properties", func(t *testing.T) {
		conf := json.RawMessage(`{"DeviceID": 1, "BuildingID": 1, "DeviceName": "Living Room", "SerialNumber": "sn-1", "Device": {"DeviceType": 0, "CanHeat": true}}`)
		d := melcloud.NewAtaDevice(conf, melcloud.NewClient("test-token"))

		exported := ExportDevice("melcloud-1", d)

		assert.Equal(t, "melcloud-1", exported.Identifier)
		assert.Equal(t, "Living Room", exported.Name)
		assert.Equal(t, "ata", exported.Type)
		assert.Equal(t, "sn-1", exported.SerialNumber)
		assert.Nil(t, exported.LastSeen)

		assert.Contains(t, exported.Properties, "target_temperature")
		assert.Contains(t, exported.Properties, "operation_modes")
	})

	t.Run("atw devices export zones", func(t *testing.T) {
		conf := json.RawMessage(`{"DeviceID": 2, "BuildingID": 1, "DeviceName": "Heat Pump", "Zone1Name": "Downstairs", "Device": {"DeviceType": 1, "HasThermostatZone1": true}}`)
		d := melcloud.NewAtwDevice(conf, melcloud.NewClient("test-token"))

		exported := ExportDevice("melcloud-2", d)

		assert.Equal(t, "atw", exported.Type)

		zones, ok := exported.Properties["zones"].([]ExportedZone)
		assert.True(t, ok)
		assert.Len(t, zones, 1)
		assert.Equal(t, "Downstairs", zones[0].Name)
	})

	t.Run("erv devices omit co2 without a sensor", func(t *testing.T) {
		conf := json.RawMessage(`{"DeviceID": 3, "BuildingID": 1, "DeviceName": "Ventilation", "Device": {"DeviceType": 3}}`)
		d := melcloud.NewErvDevice(conf, melcloud.NewClient("test-token"))

		exported := ExportDevice("melcloud-3", d)

		assert.Equal(t, "erv", exported.Type)
		assert.NotContains(t, exported.Properties, "room_co2_level")
	})

	t.Run("exported devices marshal to json", func(t *testing.T) {
		conf := json.RawMessage(`{"DeviceID": 1, "BuildingID": 1, "DeviceName": "Living Room", "Device": {"DeviceType": 0}}`)
		d := melcloud.NewAtaDevice(conf, melcloud.NewClient("test-token"))

		data, err := json.Marshal(ExportDevice("melcloud-1", d))
		assert.NoError(t, err)
		assert.Contains(t, string(data), `"identifier":"melcloud-1"`)
	})
}
