package registry

import (
	"fmt"
	"sync"

	"github.com/shimmeringbee/melcloud"
)

// Identifier returns the stable identifier used for a device across the HTTP
// and MQTT interfaces.
func Identifier(d melcloud.Device) string {
	return fmt.Sprintf("melcloud-%d", d.DeviceID())
}

// Registry tracks the devices of all configured accounts, keyed by
// identifier.
type Registry struct {
	lock    sync.RWMutex
	devices map[string]melcloud.Device

	publisher EventPublisher
}

func New(publisher EventPublisher) *Registry {
	if publisher == nil {
		publisher = NullEventPublisher
	}

	return &Registry{
		devices:   map[string]melcloud.Device{},
		publisher: publisher,
	}
}

// Add registers a device and announces it on the event bus. Re-adding an
// identifier replaces the device without an event.
func (r *Registry) Add(d melcloud.Device) {
	id := Identifier(d)

	r.lock.Lock()
	_, present := r.devices[id]
	r.devices[id] = d
	r.lock.Unlock()

	if !present {
		r.publisher.Publish(DeviceAdded{Identifier: id, Device: d})
	}
}

// Device looks a device up by identifier.
func (r *Registry) Device(identifier string) (melcloud.Device, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	d, found := r.devices[identifier]
	return d, found
}

// Devices returns a snapshot of all registered devices by identifier.
func (r *Registry) Devices() map[string]melcloud.Device {
	r.lock.RLock()
	defer r.lock.RUnlock()

	snapshot := make(map[string]melcloud.Device, len(r.devices))
	for id, d := range r.devices {
		snapshot[id] = d
	}

	return snapshot
}
