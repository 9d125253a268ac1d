package melcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Properties writable on an air-to-air device.
const (
	PropertyTargetTemperature = "target_temperature"
	PropertyOperationMode     = "operation_mode"
	PropertyFanSpeed          = "fan_speed"
	PropertyVaneHorizontal    = "vane_horizontal"
	PropertyVaneVertical      = "vane_vertical"
)

const FanSpeedAuto = "auto"

// Operation modes reported and accepted by air-to-air devices.
const (
	OperationModeHeat      = "heat"
	OperationModeDry       = "dry"
	OperationModeCool      = "cool"
	OperationModeFanOnly   = "fan_only"
	OperationModeHeatCool  = "heat_cool"
	OperationModeUndefined = "undefined"
)

// Vane positions. Horizontal and vertical share the auto and swing names but
// map to different vendor values.
const (
	VanePositionAuto      = "auto"
	VanePositionSwing     = "swing"
	VanePositionUndefined = "undefined"

	HorizontalVanePosition1     = "1_left"
	HorizontalVanePosition2     = "2"
	HorizontalVanePosition3     = "3"
	HorizontalVanePosition4     = "4"
	HorizontalVanePosition5     = "5_right"
	HorizontalVanePositionSplit = "split"

	VerticalVanePosition1 = "1_up"
	VerticalVanePosition2 = "2"
	VerticalVanePosition3 = "3"
	VerticalVanePosition4 = "4"
	VerticalVanePosition5 = "5_down"
)

const (
	ataFlagOperationMode  int64 = 0x02
	ataFlagTemperature    int64 = 0x04
	ataFlagFanSpeed       int64 = 0x08
	ataFlagVaneVertical   int64 = 0x10
	ataFlagVaneHorizontal int64 = 0x100
)

var ataOperationModeLookup = map[int64]string{
	1: OperationModeHeat,
	2: OperationModeDry,
	3: OperationModeCool,
	7: OperationModeFanOnly,
	8: OperationModeHeatCool,
}

// Fan only shares the heat range, the vendor does not publish one for it.
var ataMinTempLookup = map[string]string{
	OperationModeHeat:      "MinTempHeat",
	OperationModeDry:       "MinTempCoolDry",
	OperationModeCool:      "MinTempCoolDry",
	OperationModeFanOnly:   "MinTempHeat",
	OperationModeHeatCool:  "MinTempAutomatic",
	OperationModeUndefined: "MinTempHeat",
}

var ataMaxTempLookup = map[string]string{
	OperationModeHeat:      "MaxTempHeat",
	OperationModeDry:       "MaxTempCoolDry",
	OperationModeCool:      "MaxTempCoolDry",
	OperationModeFanOnly:   "MaxTempHeat",
	OperationModeHeatCool:  "MaxTempAutomatic",
	OperationModeUndefined: "MaxTempHeat",
}

var horizontalVaneLookup = map[int64]string{
	0:  VanePositionAuto,
	1:  HorizontalVanePosition1,
	2:  HorizontalVanePosition2,
	3:  HorizontalVanePosition3,
	4:  HorizontalVanePosition4,
	5:  HorizontalVanePosition5,
	8:  HorizontalVanePositionSplit,
	12: VanePositionSwing,
}

var verticalVaneLookup = map[int64]string{
	0: VanePositionAuto,
	1: VerticalVanePosition1,
	2: VerticalVanePosition2,
	3: VerticalVanePosition3,
	4: VerticalVanePosition4,
	5: VerticalVanePosition5,
	7: VanePositionSwing,
}

func ataFanSpeedFrom(speed int64) string {
	if speed == 0 {
		return FanSpeedAuto
	}

	return strconv.FormatInt(speed, 10)
}

func ataFanSpeedTo(speed string) (int64, error) {
	if speed == FanSpeedAuto {
		return 0, nil
	}

	parsed, err := strconv.ParseInt(speed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: fan speed %q", ErrInvalidValue, speed)
	}

	return parsed, nil
}

func reverseLookup(lookup map[int64]string, name string) (int64, bool) {
	for code, candidate := range lookup {
		if candidate == name {
			return code, true
		}
	}

	return 0, false
}

// AtaDevice is an air-to-air heat pump, DeviceType 0.
type AtaDevice struct {
	*device
}

// NewAtaDevice wraps an air-to-air configuration entry. Most callers obtain
// devices through GetDevices instead.
func NewAtaDevice(conf json.RawMessage, client *Client) *AtaDevice {
	d := &AtaDevice{device: newDevice(conf, client)}
	d.mapper = d
	return d
}

func (d *AtaDevice) applyWrite(state map[string]any, key string, value any) error {
	flags := stateFlags(state)

	switch key {
	case PropertyTargetTemperature:
		temperature, ok := value.(float64)
		if !ok {
			return fmt.Errorf("%w: target_temperature %v", ErrInvalidValue, value)
		}

		state["SetTemperature"] = temperature
		flags |= ataFlagTemperature
	case PropertyOperationMode:
		mode, _ := value.(string)
		code, found := reverseLookup(ataOperationModeLookup, mode)
		if !found {
			return fmt.Errorf("%w: operation_mode %v", ErrInvalidValue, value)
		}

		state["OperationMode"] = code
		flags |= ataFlagOperationMode
	case PropertyFanSpeed:
		speed, _ := value.(string)
		code, err := ataFanSpeedTo(speed)
		if err != nil {
			return err
		}

		state["SetFanSpeed"] = code
		flags |= ataFlagFanSpeed
	case PropertyVaneHorizontal:
		position, _ := value.(string)
		code, found := reverseLookup(horizontalVaneLookup, position)
		if !found {
			return fmt.Errorf("%w: vane_horizontal %v", ErrInvalidValue, value)
		}

		state["VaneHorizontal"] = code
		flags |= ataFlagVaneHorizontal
	case PropertyVaneVertical:
		position, _ := value.(string)
		code, found := reverseLookup(verticalVaneLookup, position)
		if !found {
			return fmt.Errorf("%w: vane_vertical %v", ErrInvalidValue, value)
		}

		state["VaneVertical"] = code
		flags |= ataFlagVaneVertical
	default:
		return fmt.Errorf("%w: %s", ErrInvalidProperty, key)
	}

	setStateFlags(state, flags)

	return nil
}

// RoomTemperature returns the temperature reported by the device, zero until
// the first Update.
func (d *AtaDevice) RoomTemperature() float64 {
	return d.stateValue("RoomTemperature").Float()
}

// TargetTemperature returns the current temperature set point.
func (d *AtaDevice) TargetTemperature() float64 {
	return d.stateValue("SetTemperature").Float()
}

// TargetTemperatureStep returns the set point precision.
func (d *AtaDevice) TargetTemperatureStep() float64 {
	return d.TemperatureIncrement()
}

// TargetTemperatureMin returns the minimum set point for the active operation
// mode.
func (d *AtaDevice) TargetTemperatureMin() float64 {
	if v := d.confValue("Device." + ataMinTempLookup[d.OperationMode()]); v.Exists() {
		return v.Float()
	}

	return 10
}

// TargetTemperatureMax returns the maximum set point for the active operation
// mode.
func (d *AtaDevice) TargetTemperatureMax() float64 {
	if v := d.confValue("Device." + ataMaxTempLookup[d.OperationMode()]); v.Exists() {
		return v.Float()
	}

	return 31
}

// OperationMode returns the active operation mode.
func (d *AtaDevice) OperationMode() string {
	state := d.stateValue("OperationMode")
	if !state.Exists() {
		return OperationModeUndefined
	}

	if mode, found := ataOperationModeLookup[state.Int()]; found {
		return mode
	}

	return OperationModeUndefined
}

// OperationModes returns the modes the device capabilities advertise.
func (d *AtaDevice) OperationModes() []string {
	var modes []string

	if d.confValue("Device.CanHeat").Bool() {
		modes = append(modes, OperationModeHeat)
	}

	if d.confValue("Device.CanDry").Bool() {
		modes = append(modes, OperationModeDry)
	}

	if d.confValue("Device.CanCool").Bool() {
		modes = append(modes, OperationModeCool)
	}

	modes = append(modes, OperationModeFanOnly)

	if d.confValue("Device.ModelSupportsAuto").Bool() {
		modes = append(modes, OperationModeHeatCool)
	}

	return modes
}

// FanSpeed returns the configured fan speed, "auto" or a numeric name.
func (d *AtaDevice) FanSpeed() string {
	return ataFanSpeedFrom(d.stateValue("SetFanSpeed").Int())
}

// FanSpeeds returns the speed names the device accepts. The numeric names do
// not line up with the labels on the physical controls, MELCloud does not
// expose those.
func (d *AtaDevice) FanSpeeds() []string {
	var speeds []string

	if d.confValue("Device.HasAutomaticFanSpeed").Bool() {
		speeds = append(speeds, FanSpeedAuto)
	}

	for num := int64(1); num <= d.stateValue("NumberOfFanSpeeds").Int(); num++ {
		speeds = append(speeds, ataFanSpeedFrom(num))
	}

	return speeds
}

// ActualFanSpeed returns the running fan speed, 0 means stopped rather than
// auto.
func (d *AtaDevice) ActualFanSpeed() string {
	return strconv.FormatInt(d.confValue("Device.ActualFanSpeed").Int(), 10)
}

// VaneHorizontal returns the horizontal vane position.
func (d *AtaDevice) VaneHorizontal() string {
	if position, found := horizontalVaneLookup[d.stateValue("VaneHorizontal").Int()]; found {
		return position
	}

	return VanePositionUndefined
}

// VaneHorizontalPositions returns the accepted horizontal vane positions,
// empty when the model hides or lacks the control.
func (d *AtaDevice) VaneHorizontalPositions() []string {
	if d.confValue("HideVaneControls").Bool() || !d.confValue("Device.ModelSupportsVaneHorizontal").Bool() {
		return nil
	}

	positions := []string{
		VanePositionAuto,
		HorizontalVanePosition1,
		HorizontalVanePosition2,
		HorizontalVanePosition3,
		HorizontalVanePosition4,
		HorizontalVanePosition5,
		HorizontalVanePositionSplit,
	}

	if d.confValue("Device.SwingFunction").Bool() {
		positions = append(positions, VanePositionSwing)
	}

	return positions
}

// VaneVertical returns the vertical vane position.
func (d *AtaDevice) VaneVertical() string {
	if position, found := verticalVaneLookup[d.stateValue("VaneVertical").Int()]; found {
		return position
	}

	return VanePositionUndefined
}

// VaneVerticalPositions returns the accepted vertical vane positions, empty
// when the model hides or lacks the control.
func (d *AtaDevice) VaneVerticalPositions() []string {
	if d.confValue("HideVaneControls").Bool() || !d.confValue("Device.ModelSupportsVaneVertical").Bool() {
		return nil
	}

	positions := []string{
		VanePositionAuto,
		VerticalVanePosition1,
		VerticalVanePosition2,
		VerticalVanePosition3,
		VerticalVanePosition4,
		VerticalVanePosition5,
	}

	if d.confValue("Device.SwingFunction").Bool() {
		positions = append(positions, VanePositionSwing)
	}

	return positions
}

// HasEnergyConsumedMeter reports whether the device meters its consumption.
func (d *AtaDevice) HasEnergyConsumedMeter() bool {
	return d.confValue("Device.HasEnergyConsumedMeter").Bool()
}

// TotalEnergyConsumed returns the consumption meter reading in kWh. The
// vendor updates it slowly, anywhere from 1.5 to 3 hours between readings.
func (d *AtaDevice) TotalEnergyConsumed() float64 {
	return d.confValue("Device.CurrentEnergyConsumed").Float() / 1000.0
}

// SetTargetTemperature schedules a set point write through the debouncer.
func (d *AtaDevice) SetTargetTemperature(ctx context.Context, temperature float64) error {
	return d.Set(ctx, map[string]any{PropertyTargetTemperature: d.RoundTemperature(temperature)})
}

// SetOperationMode schedules an operation mode write through the debouncer.
func (d *AtaDevice) SetOperationMode(ctx context.Context, mode string) error {
	return d.Set(ctx, map[string]any{PropertyOperationMode: mode})
}

// SetFanSpeed schedules a fan speed write through the debouncer.
func (d *AtaDevice) SetFanSpeed(ctx context.Context, speed string) error {
	return d.Set(ctx, map[string]any{PropertyFanSpeed: speed})
}
