package melcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shimmeringbee/logwrap"
	"github.com/tidwall/gjson"
)

// PropertyPower is common to all device types, it is applied by the base
// device rather than a type specific mapper.
const PropertyPower = "power"

const (
	fieldEffectiveFlags    = "EffectiveFlags"
	fieldHasPendingCommand = "HasPendingCommand"

	effectiveFlagPower int64 = 0x01

	lastSeenLayout = "2006-01-02T15:04:05.999"
)

// UnitInfo describes one physical unit behind a device adapter.
type UnitInfo struct {
	Model        string `json:"model"`
	ModelNumber  int64  `json:"model_number"`
	SerialNumber string `json:"serial_number"`
}

// Device is the behaviour common to all MELCloud device types. The concrete
// types AtaDevice, AtwDevice and ErvDevice add type specific accessors and
// properties.
type Device interface {
	DeviceID() int64
	BuildingID() int64
	DeviceType() DeviceType

	Name() string
	SerialNumber() string
	MacAddress() string
	Power() bool
	LastSeen() (time.Time, bool)
	TemperatureUnit() TemperatureUnit
	TemperatureIncrement() float64
	RoundTemperature(float64) float64
	Units() []UnitInfo

	Conf() json.RawMessage
	State() json.RawMessage

	Update(ctx context.Context) error
	Set(ctx context.Context, properties map[string]any) error
}

// propertyMapper translates a friendly property into vendor state fields,
// accumulating EffectiveFlags as it goes. Implementations must tolerate being
// run against a scratch state for validation.
type propertyMapper interface {
	applyWrite(state map[string]any, key string, value any) error
}

// pendingWrite is one debounce generation, every Set call merged into it
// blocks on done and reads err once closed.
type pendingWrite struct {
	properties map[string]any
	done       chan struct{}
	err        error
}

type device struct {
	client *Client
	mapper propertyMapper
	logger logwrap.Logger

	deviceID    int64
	buildingID  int64
	accessLevel int64

	mu    sync.RWMutex
	conf  json.RawMessage
	state json.RawMessage
	units json.RawMessage

	writeMu     sync.Mutex
	setDebounce time.Duration
	pending     *pendingWrite
	timer       *time.Timer

	// flushMu serialises outgoing writes, a generation scheduled while a
	// write is in flight waits its turn.
	flushMu sync.Mutex
}

func newDevice(conf json.RawMessage, client *Client) *device {
	return &device{
		client:      client,
		logger:      client.logger,
		deviceID:    gjson.GetBytes(conf, "DeviceID").Int(),
		buildingID:  gjson.GetBytes(conf, "BuildingID").Int(),
		accessLevel: gjson.GetBytes(conf, "AccessLevel").Int(),
		conf:        conf,
		setDebounce: client.setDebounce,
	}
}

func (d *device) DeviceID() int64 {
	return d.deviceID
}

func (d *device) BuildingID() int64 {
	return d.buildingID
}

func (d *device) DeviceType() DeviceType {
	if t, found := deviceTypeLookup[d.confValue("Device.DeviceType").Int()]; found {
		return t
	}

	return DeviceTypeUnknown
}

// Update refreshes the account listing through the shared client, re-binds
// this device's configuration entry and fetches a fresh state document. Unit
// information is fetched once, guests are not permitted to list it.
//
// Rate limit calls, polling more often than once a minute gains nothing.
func (d *device) Update(ctx context.Context) error {
	if err := d.client.UpdateConfs(ctx); err != nil {
		return err
	}

	conf, found := d.client.deviceConf(d.deviceID, d.buildingID)
	if !found {
		return fmt.Errorf("%w: device %d in building %d", ErrConfNotFound, d.deviceID, d.buildingID)
	}

	state, err := d.client.fetchDeviceState(ctx, d.deviceID, d.buildingID)
	if err != nil {
		return err
	}

	var units json.RawMessage
	d.mu.RLock()
	haveUnits := d.units != nil
	d.mu.RUnlock()

	if !haveUnits && d.accessLevel != AccessLevelGuest {
		if units, err = d.client.fetchDeviceUnits(ctx, d.deviceID); err != nil {
			return err
		}
	}

	d.mu.Lock()
	d.conf = conf
	d.state = state
	if units != nil {
		d.units = units
	}
	d.mu.Unlock()

	return nil
}

// Set schedules a property write. Writes made within the debounce window are
// coalesced into a single request, every caller blocks until that request
// completes and receives its outcome. Later writes of the same property
// override earlier pending values.
func (d *device) Set(ctx context.Context, properties map[string]any) error {
	d.mu.RLock()
	hasState := d.state != nil
	d.mu.RUnlock()

	if !hasState {
		return fmt.Errorf("%w: call Update before Set", ErrNoState)
	}

	// Validate against a scratch state so a bad property fails this caller
	// without poisoning the pending generation.
	scratch := map[string]any{}
	for key, value := range properties {
		if key == PropertyPower {
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("%w: power %v", ErrInvalidValue, value)
			}

			continue
		}

		if err := d.mapper.applyWrite(scratch, key, value); err != nil {
			return err
		}
	}

	d.writeMu.Lock()

	if d.pending == nil {
		d.pending = &pendingWrite{
			properties: map[string]any{},
			done:       make(chan struct{}),
		}
	}

	for key, value := range properties {
		d.pending.properties[key] = value
	}

	pw := d.pending

	if d.timer == nil {
		d.timer = time.AfterFunc(d.setDebounce, d.flush)
	} else {
		d.timer.Reset(d.setDebounce)
	}

	d.writeMu.Unlock()

	select {
	case <-pw.done:
		return pw.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flush sends the pending generation. It runs on the debounce timer, a Set
// arriving after this point starts the next generation.
func (d *device) flush() {
	d.writeMu.Lock()
	pw := d.pending
	d.pending = nil
	d.timer = nil
	d.writeMu.Unlock()

	if pw == nil {
		return
	}

	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	pw.err = d.write(pw.properties)
	close(pw.done)
}

func (d *device) write(properties map[string]any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	newState, err := d.buildWriteState(properties)
	if err != nil {
		return err
	}

	response, err := d.client.setDeviceState(ctx, d.confValue("Device.DeviceType").Int(), newState)
	if err != nil {
		d.logger.LogError(ctx, "Device state write failed.", logwrap.Datum("deviceId", d.deviceID), logwrap.Err(err))
		return err
	}

	d.mu.Lock()
	d.state = response
	d.mu.Unlock()

	d.logger.LogDebug(ctx, "Device state written.", logwrap.Datum("deviceId", d.deviceID), logwrap.Datum("propertyCount", len(properties)))

	return nil
}

// buildWriteState copies the cached state document and applies the pending
// properties to it, power directly and everything else through the type
// specific mapper.
func (d *device) buildWriteState(properties map[string]any) (map[string]any, error) {
	d.mu.RLock()
	cached := d.state
	d.mu.RUnlock()

	if cached == nil {
		return nil, ErrNoState
	}

	newState := map[string]any{}
	if err := json.Unmarshal(cached, &newState); err != nil {
		return nil, fmt.Errorf("failed to decode cached state: %w", err)
	}

	for key, value := range properties {
		if key == PropertyPower {
			newState["Power"] = value
			setStateFlags(newState, stateFlags(newState)|effectiveFlagPower)
			continue
		}

		if err := d.mapper.applyWrite(newState, key, value); err != nil {
			return nil, err
		}
	}

	if stateFlags(newState) != 0 {
		newState[fieldHasPendingCommand] = true
	}

	return newState, nil
}

// stateFlags reads EffectiveFlags from a decoded state map. Values decoded by
// encoding/json arrive as float64, which is exact for the flag range in use.
func stateFlags(state map[string]any) int64 {
	switch v := state[fieldEffectiveFlags].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func setStateFlags(state map[string]any, flags int64) {
	state[fieldEffectiveFlags] = flags
}

func (d *device) confValue(path string) gjson.Result {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return gjson.GetBytes(d.conf, path)
}

func (d *device) stateValue(path string) gjson.Result {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return gjson.GetBytes(d.state, path)
}

func (d *device) Name() string {
	return d.confValue("DeviceName").String()
}

func (d *device) SerialNumber() string {
	return d.confValue("SerialNumber").String()
}

func (d *device) MacAddress() string {
	return d.confValue("MacAddress").String()
}

// Power reports the power on / standby state, false until the first Update.
func (d *device) Power() bool {
	return d.stateValue("Power").Bool()
}

// LastSeen returns the timestamp of the last communication between the device
// and MELCloud, in UTC. The second return is false until the first Update.
func (d *device) LastSeen() (time.Time, bool) {
	raw := d.stateValue("LastCommunication")
	if !raw.Exists() {
		return time.Time{}, false
	}

	t, err := time.Parse(lastSeenLayout, raw.String())
	if err != nil {
		return time.Time{}, false
	}

	return t.UTC(), true
}

func (d *device) TemperatureUnit() TemperatureUnit {
	if d.client.useFahrenheit() {
		return UnitFahrenheit
	}

	return UnitCelsius
}

func (d *device) TemperatureIncrement() float64 {
	if inc := d.confValue("Device.TemperatureIncrement"); inc.Exists() {
		return inc.Float()
	}

	return 0.5
}

// RoundTemperature rounds to the nearest temperature increment, halves round
// up.
func (d *device) RoundTemperature(temperature float64) float64 {
	increment := d.TemperatureIncrement()
	if increment <= 0 {
		return temperature
	}

	return math.Floor(temperature/increment+0.5) * increment
}

// Units returns model information for the physical units behind this adapter,
// nil until unit information has been fetched.
func (d *device) Units() []UnitInfo {
	d.mu.RLock()
	units := d.units
	d.mu.RUnlock()

	if units == nil {
		return nil
	}

	var infos []UnitInfo
	for _, unit := range gjson.ParseBytes(units).Array() {
		infos = append(infos, UnitInfo{
			Model:        unit.Get("Model").String(),
			ModelNumber:  unit.Get("ModelNumber").Int(),
			SerialNumber: unit.Get("SerialNumber").String(),
		})
	}

	return infos
}

// Conf returns the raw device configuration entry from the account listing.
func (d *device) Conf() json.RawMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.conf
}

// State returns the raw cached state document, nil until the first Update.
func (d *device) State() json.RawMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.state
}
