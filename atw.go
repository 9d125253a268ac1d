package melcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Properties writable on an air-to-water device. The zone properties are
// usually driven through the Zone type rather than directly.
const (
	PropertyTargetTankTemperature          = "target_tank_temperature"
	PropertyZone1TargetTemperature         = "zone_1_target_temperature"
	PropertyZone2TargetTemperature         = "zone_2_target_temperature"
	PropertyZone1TargetHeatFlowTemperature = "zone_1_target_heat_flow_temperature"
	PropertyZone2TargetHeatFlowTemperature = "zone_2_target_heat_flow_temperature"
	PropertyZone1TargetCoolFlowTemperature = "zone_1_target_cool_flow_temperature"
	PropertyZone2TargetCoolFlowTemperature = "zone_2_target_cool_flow_temperature"
	PropertyZone1OperationMode             = "zone_1_operation_mode"
	PropertyZone2OperationMode             = "zone_2_operation_mode"
)

// Air-to-water devices run hot water production automatically or forced.
const (
	OperationModeAuto          = "auto"
	OperationModeForceHotWater = "force_hot_water"
)

// Status values describe what the device is doing to meet its control values.
const (
	StatusIdle       = "idle"
	StatusHeatWater  = "heat_water"
	StatusHeatZones  = "heat_zones"
	StatusCool       = "cool"
	StatusDefrost    = "defrost"
	StatusStandby    = "standby"
	StatusLegionella = "legionella"
	StatusUnknown    = "unknown"
)

var atwStatusLookup = map[int64]string{
	0: StatusIdle,
	1: StatusHeatWater,
	2: StatusHeatZones,
	3: StatusCool,
	4: StatusDefrost,
	5: StatusStandby,
	6: StatusLegionella,
}

// Zone operation modes.
const (
	ZoneOperationModeHeatThermostat = "heat-thermostat"
	ZoneOperationModeHeatFlow       = "heat-flow"
	ZoneOperationModeCurve          = "curve"
	ZoneOperationModeCoolThermostat = "cool-thermostat"
	ZoneOperationModeCoolFlow       = "cool-flow"
	ZoneOperationModeUnknown        = "unknown"
)

var zoneOperationModeLookup = map[int64]string{
	0: ZoneOperationModeHeatThermostat,
	1: ZoneOperationModeHeatFlow,
	2: ZoneOperationModeCurve,
	3: ZoneOperationModeCoolThermostat,
	4: ZoneOperationModeCoolFlow,
}

// Zone status.
const (
	ZoneStatusHeat    = "heat"
	ZoneStatusCool    = "cool"
	ZoneStatusIdle    = "idle"
	ZoneStatusUnknown = "unknown"
)

const (
	atwFlagZone1OperationMode int64 = 0x08
	atwFlagZone2OperationMode int64 = 0x10
	atwFlagForcedHotWater     int64 = 0x10000
	atwFlagZone1Temperature   int64 = 0x200000080
	atwFlagZone2Temperature   int64 = 0x800000200
	atwFlagFlowTemperatures   int64 = 0x1000000000000
	atwFlagTankTemperature    int64 = 0x1000000000020
)

const dailyEnergyDateLayout = "2006-01-02T15:04:05"

// AtwDevice is an air-to-water heat pump, DeviceType 1.
type AtwDevice struct {
	*device
}

// NewAtwDevice wraps an air-to-water configuration entry. Most callers obtain
// devices through GetDevices instead.
func NewAtwDevice(conf json.RawMessage, client *Client) *AtwDevice {
	d := &AtwDevice{device: newDevice(conf, client)}
	d.mapper = d
	return d
}

func (d *AtwDevice) applyWrite(state map[string]any, key string, value any) error {
	flags := stateFlags(state)

	roundedTemperature := func(field string) error {
		temperature, ok := value.(float64)
		if !ok {
			return fmt.Errorf("%w: %s %v", ErrInvalidValue, key, value)
		}

		state[field] = d.RoundTemperature(temperature)
		return nil
	}

	zoneMode := func(field string) error {
		code, ok := asInt64(value)
		if !ok {
			return fmt.Errorf("%w: %s %v", ErrInvalidValue, key, value)
		}

		if _, found := zoneOperationModeLookup[code]; !found {
			return fmt.Errorf("%w: %s %v", ErrInvalidValue, key, value)
		}

		state[field] = code
		return nil
	}

	switch key {
	case PropertyTargetTankTemperature:
		if err := roundedTemperature("SetTankWaterTemperature"); err != nil {
			return err
		}
		flags |= atwFlagTankTemperature
	case PropertyOperationMode:
		mode, _ := value.(string)
		if mode != OperationModeAuto && mode != OperationModeForceHotWater {
			return fmt.Errorf("%w: operation_mode %v", ErrInvalidValue, value)
		}

		state["ForcedHotWaterMode"] = mode == OperationModeForceHotWater
		flags |= atwFlagForcedHotWater
	case PropertyZone1TargetTemperature:
		if err := roundedTemperature("SetTemperatureZone1"); err != nil {
			return err
		}
		flags |= atwFlagZone1Temperature
	case PropertyZone2TargetTemperature:
		if err := roundedTemperature("SetTemperatureZone2"); err != nil {
			return err
		}
		flags |= atwFlagZone2Temperature
	case PropertyZone1TargetHeatFlowTemperature:
		if err := roundedTemperature("SetHeatFlowTemperatureZone1"); err != nil {
			return err
		}
		flags |= atwFlagFlowTemperatures
	case PropertyZone1TargetCoolFlowTemperature:
		if err := roundedTemperature("SetCoolFlowTemperatureZone1"); err != nil {
			return err
		}
		flags |= atwFlagFlowTemperatures
	case PropertyZone2TargetHeatFlowTemperature:
		if err := roundedTemperature("SetHeatFlowTemperatureZone2"); err != nil {
			return err
		}
		flags |= atwFlagFlowTemperatures
	case PropertyZone2TargetCoolFlowTemperature:
		if err := roundedTemperature("SetCoolFlowTemperatureZone2"); err != nil {
			return err
		}
		flags |= atwFlagFlowTemperatures
	case PropertyZone1OperationMode:
		if err := zoneMode("OperationModeZone1"); err != nil {
			return err
		}
		flags |= atwFlagZone1OperationMode
	case PropertyZone2OperationMode:
		if err := zoneMode("OperationModeZone2"); err != nil {
			return err
		}
		flags |= atwFlagZone2OperationMode
	default:
		return fmt.Errorf("%w: %s", ErrInvalidProperty, key)
	}

	setStateFlags(state, flags)

	return nil
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// TankTemperature returns the tank water temperature.
func (d *AtwDevice) TankTemperature() float64 {
	return d.stateValue("TankWaterTemperature").Float()
}

// TargetTankTemperature returns the target tank water temperature.
func (d *AtwDevice) TargetTankTemperature() float64 {
	return d.stateValue("SetTankWaterTemperature").Float()
}

// TargetTankTemperatureMin returns the minimum target tank temperature. The
// API does not publish one, a fixed value is used.
func (d *AtwDevice) TargetTankTemperatureMin() float64 {
	return 40.0
}

// TargetTankTemperatureMax returns the maximum target tank temperature.
func (d *AtwDevice) TargetTankTemperatureMax() float64 {
	return d.confValue("Device.MaxTankTemperature").Float()
}

// OutsideTemperature returns the outdoor temperature. The sensor reports with
// 1 degree accuracy and updates roughly every two hours.
func (d *AtwDevice) OutsideTemperature() float64 {
	return d.stateValue("OutdoorTemperature").Float()
}

// FlowTemperatureBoiler returns the boiler flow temperature.
func (d *AtwDevice) FlowTemperatureBoiler() float64 {
	return d.confValue("Device.FlowTemperatureBoiler").Float()
}

// ReturnTemperatureBoiler returns the boiler return flow temperature.
func (d *AtwDevice) ReturnTemperatureBoiler() float64 {
	return d.confValue("Device.ReturnTemperatureBoiler").Float()
}

// MixingTankTemperature returns the mixing tank water temperature.
func (d *AtwDevice) MixingTankTemperature() float64 {
	return d.confValue("Device.MixingTankWaterTemperature").Float()
}

// Status returns what the device is doing to meet its control values.
func (d *AtwDevice) Status() string {
	state := d.stateValue("OperationMode")
	if !state.Exists() {
		return StatusUnknown
	}

	if status, found := atwStatusLookup[state.Int()]; found {
		return status
	}

	return StatusUnknown
}

// OperationMode returns "force_hot_water" when forced hot water production is
// active, "auto" otherwise.
func (d *AtwDevice) OperationMode() string {
	if d.stateValue("ForcedHotWaterMode").Bool() {
		return OperationModeForceHotWater
	}

	return OperationModeAuto
}

// OperationModes returns the accepted operation modes.
func (d *AtwDevice) OperationModes() []string {
	return []string{OperationModeAuto, OperationModeForceHotWater}
}

// HolidayMode reports whether holiday mode is active.
func (d *AtwDevice) HolidayMode() bool {
	return d.stateValue("HolidayMode").Bool()
}

// DailyHeatingConsumedEnergy returns the heating energy consumed on the
// report date.
func (d *AtwDevice) DailyHeatingConsumedEnergy() float64 {
	return d.confValue("Device.DailyHeatingEnergyConsumed").Float()
}

// DailyCoolingConsumedEnergy returns the cooling energy consumed on the
// report date.
func (d *AtwDevice) DailyCoolingConsumedEnergy() float64 {
	return d.confValue("Device.DailyCoolingEnergyConsumed").Float()
}

// DailyHotWaterConsumedEnergy returns the hot water energy consumed on the
// report date.
func (d *AtwDevice) DailyHotWaterConsumedEnergy() float64 {
	return d.confValue("Device.DailyHotWaterEnergyConsumed").Float()
}

// DailyEnergyConsumedDate returns the day the daily energy figures refer to.
func (d *AtwDevice) DailyEnergyConsumedDate() (time.Time, bool) {
	raw := d.confValue("Device.DailyEnergyConsumedDate")
	if !raw.Exists() {
		return time.Time{}, false
	}

	t, err := time.Parse(dailyEnergyDateLayout, raw.String())
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

// SetTargetTankTemperature schedules a tank set point write through the
// debouncer.
func (d *AtwDevice) SetTargetTankTemperature(ctx context.Context, temperature float64) error {
	return d.Set(ctx, map[string]any{PropertyTargetTankTemperature: temperature})
}

// SetOperationMode schedules an operation mode write through the debouncer.
func (d *AtwDevice) SetOperationMode(ctx context.Context, mode string) error {
	return d.Set(ctx, map[string]any{PropertyOperationMode: mode})
}

// Zones returns the zones controlled by this device. Zones without a
// thermostat are not returned.
func (d *AtwDevice) Zones() []*Zone {
	var zones []*Zone

	if d.confValue("Device.HasThermostatZone1").Bool() {
		zones = append(zones, &Zone{device: d, index: 1})
	}

	if d.confValue("Device.HasZone2").Bool() && d.confValue("Device.HasThermostatZone2").Bool() {
		zones = append(zones, &Zone{device: d, index: 2})
	}

	return zones
}

// Zone is one heating circuit of an air-to-water device. Zone setters funnel
// through the owning device's debouncer, so a burst of zone and device writes
// still becomes one request.
type Zone struct {
	device *AtwDevice
	index  int
}

// Index returns the 1-based zone number.
func (z *Zone) Index() int {
	return z.index
}

// Name returns the configured zone name, "Zone n" when none is set.
func (z *Zone) Name() string {
	if name := z.device.confValue(fmt.Sprintf("Zone%dName", z.index)).String(); name != "" {
		return name
	}

	return fmt.Sprintf("Zone %d", z.index)
}

// Prohibit reports whether the zone is prohibited.
func (z *Zone) Prohibit() bool {
	return z.device.stateValue(fmt.Sprintf("ProhibitZone%d", z.index)).Bool()
}

// Status returns "heat", "cool" or "idle" depending on the zone operation
// mode and the idle flag.
func (z *Zone) Status() string {
	if z.device.State() == nil {
		return ZoneStatusUnknown
	}

	if z.device.stateValue(fmt.Sprintf("IdleZone%d", z.index)).Bool() {
		return ZoneStatusIdle
	}

	switch z.OperationMode() {
	case ZoneOperationModeHeatThermostat, ZoneOperationModeHeatFlow, ZoneOperationModeCurve:
		return ZoneStatusHeat
	case ZoneOperationModeCoolThermostat, ZoneOperationModeCoolFlow:
		return ZoneStatusCool
	}

	return ZoneStatusUnknown
}

// RoomTemperature returns the zone room temperature.
func (z *Zone) RoomTemperature() float64 {
	return z.device.stateValue(fmt.Sprintf("RoomTemperatureZone%d", z.index)).Float()
}

// TargetTemperature returns the zone target temperature.
func (z *Zone) TargetTemperature() float64 {
	return z.device.stateValue(fmt.Sprintf("SetTemperatureZone%d", z.index)).Float()
}

// FlowTemperature returns the current flow temperature. The value comes from
// the configuration entry and refreshes slower than the state poll.
func (z *Zone) FlowTemperature() float64 {
	return z.device.confValue("Device.FlowTemperature").Float()
}

// ReturnTemperature returns the current return flow temperature. The value
// comes from the configuration entry and refreshes slower than the state
// poll.
func (z *Zone) ReturnTemperature() float64 {
	return z.device.confValue("Device.ReturnTemperature").Float()
}

// TargetHeatFlowTemperature returns the heat mode flow set point.
func (z *Zone) TargetHeatFlowTemperature() float64 {
	return z.device.stateValue(fmt.Sprintf("SetHeatFlowTemperatureZone%d", z.index)).Float()
}

// TargetCoolFlowTemperature returns the cool mode flow set point.
func (z *Zone) TargetCoolFlowTemperature() float64 {
	return z.device.stateValue(fmt.Sprintf("SetCoolFlowTemperatureZone%d", z.index)).Float()
}

// TargetFlowTemperature returns the flow set point of the active operation
// mode.
func (z *Zone) TargetFlowTemperature() float64 {
	switch z.OperationMode() {
	case ZoneOperationModeCoolThermostat, ZoneOperationModeCoolFlow:
		return z.TargetCoolFlowTemperature()
	default:
		return z.TargetHeatFlowTemperature()
	}
}

// OperationMode returns the zone operation mode.
func (z *Zone) OperationMode() string {
	if mode, found := zoneOperationModeLookup[z.device.stateValue(fmt.Sprintf("OperationModeZone%d", z.index)).Int()]; found {
		return mode
	}

	return ZoneOperationModeUnknown
}

// OperationModes returns the zone operation modes the device capabilities
// advertise.
func (z *Zone) OperationModes() []string {
	var modes []string

	if z.device.confValue("Device.CanHeat").Bool() {
		modes = append(modes, ZoneOperationModeHeatThermostat, ZoneOperationModeHeatFlow, ZoneOperationModeCurve)
	}

	if z.device.confValue("Device.CanCool").Bool() {
		modes = append(modes, ZoneOperationModeCoolThermostat, ZoneOperationModeCoolFlow)
	}

	return modes
}

func (z *Zone) property(zone1 string, zone2 string) string {
	if z.index == 1 {
		return zone1
	}

	return zone2
}

// SetTargetTemperature schedules a zone set point write through the device
// debouncer.
func (z *Zone) SetTargetTemperature(ctx context.Context, temperature float64) error {
	prop := z.property(PropertyZone1TargetTemperature, PropertyZone2TargetTemperature)
	return z.device.Set(ctx, map[string]any{prop: temperature})
}

// SetTargetHeatFlowTemperature schedules a heat mode flow set point write.
func (z *Zone) SetTargetHeatFlowTemperature(ctx context.Context, temperature float64) error {
	prop := z.property(PropertyZone1TargetHeatFlowTemperature, PropertyZone2TargetHeatFlowTemperature)
	return z.device.Set(ctx, map[string]any{prop: temperature})
}

// SetTargetCoolFlowTemperature schedules a cool mode flow set point write.
func (z *Zone) SetTargetCoolFlowTemperature(ctx context.Context, temperature float64) error {
	prop := z.property(PropertyZone1TargetCoolFlowTemperature, PropertyZone2TargetCoolFlowTemperature)
	return z.device.Set(ctx, map[string]any{prop: temperature})
}

// SetTargetFlowTemperature schedules a flow set point write for the active
// operation mode.
func (z *Zone) SetTargetFlowTemperature(ctx context.Context, temperature float64) error {
	switch z.OperationMode() {
	case ZoneOperationModeCoolThermostat, ZoneOperationModeCoolFlow:
		return z.SetTargetCoolFlowTemperature(ctx, temperature)
	default:
		return z.SetTargetHeatFlowTemperature(ctx, temperature)
	}
}

// SetOperationMode schedules a zone operation mode write.
func (z *Zone) SetOperationMode(ctx context.Context, mode string) error {
	code, found := reverseLookup(zoneOperationModeLookup, mode)
	if !found {
		return fmt.Errorf("%w: zone operation mode %q", ErrInvalidValue, mode)
	}

	prop := z.property(PropertyZone1OperationMode, PropertyZone2OperationMode)
	return z.device.Set(ctx, map[string]any{prop: code})
}
