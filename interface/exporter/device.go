package exporter

import (
	"time"

	"github.com/shimmeringbee/melcloud"
)

// ExportedDevice is the wire representation of a device used by the HTTP and
// MQTT interfaces.
type ExportedDevice struct {
	Identifier   string         `json:"identifier"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Power        bool           `json:"power"`
	LastSeen     *time.Time     `json:"last_seen,omitempty"`
	SerialNumber string         `json:"serial_number"`
	Units        []ExportedUnit `json:"units,omitempty"`
	Properties   map[string]any `json:"properties"`
}

type ExportedUnit struct {
	Model        string `json:"model"`
	ModelNumber  int64  `json:"model_number"`
	SerialNumber string `json:"serial_number"`
}

type ExportedZone struct {
	Name              string  `json:"name"`
	Status            string  `json:"status"`
	OperationMode     string  `json:"operation_mode"`
	RoomTemperature   float64 `json:"room_temperature"`
	TargetTemperature float64 `json:"target_temperature"`
}

// ExportDevice flattens a device into its wire representation, the property
// map varies by device type.
func ExportDevice(identifier string, d melcloud.Device) ExportedDevice {
	exported := ExportedDevice{
		Identifier:   identifier,
		Name:         d.Name(),
		Type:         string(d.DeviceType()),
		Power:        d.Power(),
		SerialNumber: d.SerialNumber(),
		Properties:   exportProperties(d),
	}

	if lastSeen, seen := d.LastSeen(); seen {
		exported.LastSeen = &lastSeen
	}

	for _, unit := range d.Units() {
		exported.Units = append(exported.Units, ExportedUnit{
			Model:        unit.Model,
			ModelNumber:  unit.ModelNumber,
			SerialNumber: unit.SerialNumber,
		})
	}

	return exported
}

func exportProperties(d melcloud.Device) map[string]any {
	switch device := d.(type) {
	case *melcloud.AtaDevice:
		return exportAtaProperties(device)
	case *melcloud.AtwDevice:
		return exportAtwProperties(device)
	case *melcloud.ErvDevice:
		return exportErvProperties(device)
	default:
		return map[string]any{}
	}
}

func exportAtaProperties(d *melcloud.AtaDevice) map[string]any {
	return map[string]any{
		"room_temperature":       d.RoomTemperature(),
		"target_temperature":     d.TargetTemperature(),
		"target_temperature_min": d.TargetTemperatureMin(),
		"target_temperature_max": d.TargetTemperatureMax(),
		"operation_mode":         d.OperationMode(),
		"operation_modes":        d.OperationModes(),
		"fan_speed":              d.FanSpeed(),
		"fan_speeds":             d.FanSpeeds(),
		"vane_horizontal":        d.VaneHorizontal(),
		"vane_vertical":          d.VaneVertical(),
		"total_energy_consumed":  d.TotalEnergyConsumed(),
	}
}

func exportAtwProperties(d *melcloud.AtwDevice) map[string]any {
	var zones []ExportedZone

	for _, zone := range d.Zones() {
		zones = append(zones, ExportedZone{
			Name:              zone.Name(),
			Status:            zone.Status(),
			OperationMode:     zone.OperationMode(),
			RoomTemperature:   zone.RoomTemperature(),
			TargetTemperature: zone.TargetTemperature(),
		})
	}

	return map[string]any{
		"status":                  d.Status(),
		"operation_mode":          d.OperationMode(),
		"tank_temperature":        d.TankTemperature(),
		"target_tank_temperature": d.TargetTankTemperature(),
		"outside_temperature":     d.OutsideTemperature(),
		"holiday_mode":            d.HolidayMode(),
		"zones":                   zones,
	}
}

func exportErvProperties(d *melcloud.ErvDevice) map[string]any {
	properties := map[string]any{
		"room_temperature":        d.RoomTemperature(),
		"outdoor_temperature":     d.OutdoorTemperature(),
		"ventilation_mode":        d.VentilationMode(),
		"actual_ventilation_mode": d.ActualVentilationMode(),
		"fan_speed":               d.FanSpeed(),
		"fan_speeds":              d.FanSpeeds(),
	}

	if co2, ok := d.RoomCO2Level(); ok {
		properties["room_co2_level"] = co2
	}

	return properties
}
