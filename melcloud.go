// Package melcloud is a client for the MELCloud service used by Mitsubishi
// Electric HVAC equipment. Device state is cached locally and property writes
// are debounced into coalesced requests, keeping interactive callers within
// the vendor's tolerance for request rates.
package melcloud

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Devices holds the account's devices partitioned by type.
type Devices struct {
	Ata []*AtaDevice
	Atw []*AtwDevice
	Erv []*ErvDevice
}

// All returns every device regardless of type.
func (d *Devices) All() []Device {
	all := make([]Device, 0, len(d.Ata)+len(d.Atw)+len(d.Erv))

	for _, device := range d.Ata {
		all = append(all, device)
	}
	for _, device := range d.Atw {
		all = append(all, device)
	}
	for _, device := range d.Erv {
		all = append(all, device)
	}

	return all
}

// GetDevices builds typed devices from the account listing. Devices of types
// this package does not model are skipped. The devices share the client, a
// state Update on one refreshes the listing for all within the rate limit.
func GetDevices(ctx context.Context, client *Client) (*Devices, error) {
	if err := client.UpdateConfs(ctx); err != nil {
		return nil, err
	}

	devices := &Devices{}

	for _, conf := range client.DeviceConfs() {
		switch confDeviceType(conf) {
		case deviceTypeIntAta:
			devices.Ata = append(devices.Ata, NewAtaDevice(conf, client))
		case deviceTypeIntAtw:
			devices.Atw = append(devices.Atw, NewAtwDevice(conf, client))
		case deviceTypeIntErv:
			devices.Erv = append(devices.Erv, NewErvDevice(conf, client))
		}
	}

	return devices, nil
}

func confDeviceType(conf json.RawMessage) int64 {
	return gjson.GetBytes(conf, "Device.DeviceType").Int()
}
