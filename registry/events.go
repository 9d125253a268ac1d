package registry

import "github.com/shimmeringbee/melcloud"

// DeviceAdded is published when a device is first registered.
type DeviceAdded struct {
	Identifier string
	Device     melcloud.Device
}

// DeviceUpdated is published after a successful state refresh.
type DeviceUpdated struct {
	Identifier string
	Device     melcloud.Device
}

// DeviceUpdateFailed is published when a state refresh errors, the previous
// cached state remains in place.
type DeviceUpdateFailed struct {
	Identifier string
	Device     melcloud.Device
	Err        error
}
