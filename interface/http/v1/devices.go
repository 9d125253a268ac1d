package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/melcloud"
	"github.com/shimmeringbee/melcloud/interface/exporter"
	"github.com/shimmeringbee/melcloud/registry"
)

type deviceController struct {
	registry *registry.Registry
	logger   logwrap.Logger
}

func (d *deviceController) listDevices(w http.ResponseWriter, r *http.Request) {
	apiDevices := make(map[string]exporter.ExportedDevice)

	for identifier, device := range d.registry.Devices() {
		apiDevices[identifier] = exporter.ExportDevice(identifier, device)
	}

	data, err := json.Marshal(apiDevices)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Add("content-type", "application/json")
	w.Write(data)
}

func (d *deviceController) getDevice(w http.ResponseWriter, r *http.Request) {
	id, device, ok := d.lookup(w, r)
	if !ok {
		return
	}

	data, err := json.Marshal(exporter.ExportDevice(id, device))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Add("content-type", "application/json")
	w.Write(data)
}

func (d *deviceController) getDeviceState(w http.ResponseWriter, r *http.Request) {
	_, device, ok := d.lookup(w, r)
	if !ok {
		return
	}

	state := device.State()
	if len(state) == 0 {
		http.NotFound(w, r)
		return
	}

	w.Header().Add("content-type", "application/json")
	w.Write(state)
}

func (d *deviceController) setDeviceProperties(w http.ResponseWriter, r *http.Request) {
	id, device, ok := d.lookup(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	properties := map[string]any{}
	if err := json.Unmarshal(body, &properties); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := device.Set(r.Context(), properties); err != nil {
		d.writeDeviceError(w, r, err)
		return
	}

	d.writeDevice(w, id, device)
}

func (d *deviceController) refreshDevice(w http.ResponseWriter, r *http.Request) {
	id, device, ok := d.lookup(w, r)
	if !ok {
		return
	}

	if err := device.Update(r.Context()); err != nil {
		d.writeDeviceError(w, r, err)
		return
	}

	d.writeDevice(w, id, device)
}

func (d *deviceController) lookup(w http.ResponseWriter, r *http.Request) (string, melcloud.Device, bool) {
	id, ok := mux.Vars(r)["identifier"]
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return "", nil, false
	}

	device, found := d.registry.Device(id)
	if !found {
		http.NotFound(w, r)
		return "", nil, false
	}

	return id, device, true
}

func (d *deviceController) writeDevice(w http.ResponseWriter, id string, device melcloud.Device) {
	data, err := json.Marshal(exporter.ExportDevice(id, device))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Add("content-type", "application/json")
	w.Write(data)
}

func (d *deviceController) writeDeviceError(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr melcloud.StatusError

	switch {
	case errors.Is(err, melcloud.ErrInvalidProperty) || errors.Is(err, melcloud.ErrInvalidValue):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, melcloud.ErrNoState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, melcloud.ErrConfNotFound):
		http.NotFound(w, r)
	case errors.As(err, &statusErr):
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
