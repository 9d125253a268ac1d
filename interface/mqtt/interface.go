package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/melcloud"
	"github.com/shimmeringbee/melcloud/interface/exporter"
	"github.com/shimmeringbee/melcloud/registry"
)

type Publisher func(ctx context.Context, topic string, payload []byte) error

type mqttError string

func (m mqttError) Error() string {
	return string(m)
}

const UnknownTopic = mqttError("unknown topic")
const UnknownDevice = mqttError("unknown device")

type Interface struct {
	Publisher Publisher
	stop      chan bool

	Registry        *registry.Registry
	EventSubscriber registry.EventSubscriber
	Logger          logwrap.Logger

	PublishStateOnConnect  bool
	PublishAggregatedState bool
	PublishIndividualState bool
}

func (i *Interface) IncomingMessage(ctx context.Context, topic string, payload []byte) error {
	topicParts := strings.Split(topic, "/")

	if len(topicParts) > 0 {
		switch topicParts[0] {
		case "devices":
			return i.IncomingMessageDevices(ctx, topicParts[1:], payload)
		}
	}

	return fmt.Errorf("%w: %s", UnknownTopic, topic)
}

func (i *Interface) IncomingMessageDevices(ctx context.Context, topic []string, payload []byte) error {
	if len(topic) > 0 {
		identifier := topic[0]

		if d, ok := i.Registry.Device(identifier); ok {
			return i.IncomingMessageDevicesWith(ctx, identifier, topic[1:], payload, d)
		}
	}

	return fmt.Errorf("%w: %s", UnknownDevice, topic)
}

func (i *Interface) IncomingMessageDevicesWith(ctx context.Context, identifier string, topic []string, payload []byte, d melcloud.Device) error {
	if len(topic) > 0 {
		switch topic[0] {
		case "set":
			properties := map[string]any{}
			if err := json.Unmarshal(payload, &properties); err != nil {
				return fmt.Errorf("unable to parse set payload: %w", err)
			}

			if err := d.Set(ctx, properties); err != nil {
				return fmt.Errorf("unable to set properties on device: %w", err)
			}

			i.publishDevice(ctx, identifier, d)
			return nil
		case "refresh":
			if err := d.Update(ctx); err != nil {
				return fmt.Errorf("unable to refresh device: %w", err)
			}

			i.publishDevice(ctx, identifier, d)
			return nil
		}
	}

	return fmt.Errorf("%w: %s", UnknownTopic, topic)
}

func EmptyPublisher(ctx context.Context, topic string, payload []byte) error {
	return nil
}

func (i *Interface) Connected(ctx context.Context, publisher Publisher) error {
	i.Publisher = publisher

	if i.PublishStateOnConnect {
		i.Logger.LogInfo(ctx, "MQTT connected, publishing current state of all devices.")
		go i.publishAll()
	}

	return nil
}

func (i *Interface) publishAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for identifier, device := range i.Registry.Devices() {
		i.publishDevice(ctx, identifier, device)
	}
}

func (i *Interface) publishDevice(ctx context.Context, identifier string, device melcloud.Device) {
	deviceCtx := i.Logger.AddOptionsToContext(ctx, logwrap.Datum("device", identifier))

	exported := exporter.ExportDevice(identifier, device)
	topic := fmt.Sprintf("devices/%s", identifier)

	if i.PublishAggregatedState {
		if err := i.publishDeviceAggregated(deviceCtx, topic, exported); err != nil {
			i.Logger.LogError(deviceCtx, "Failed to publish aggregated state of device.", logwrap.Err(err))
		}
	}

	if i.PublishIndividualState {
		if err := i.publishDeviceIndividual(deviceCtx, topic, exported); err != nil {
			i.Logger.LogError(deviceCtx, "Failed to publish individual state of device.", logwrap.Err(err))
		}
	}
}

func (i *Interface) publishDeviceAggregated(ctx context.Context, topic string, exported exporter.ExportedDevice) error {
	payload, err := json.Marshal(exported)
	if err != nil {
		return fmt.Errorf("failed to marshal device: %w", err)
	}

	if err = i.Publisher(ctx, fmt.Sprintf("%s/state", topic), payload); err != nil {
		return fmt.Errorf("failed to publish data to mqtt: %w", err)
	}

	return nil
}

func (i *Interface) publishDeviceIndividual(ctx context.Context, topic string, exported exporter.ExportedDevice) error {
	if err := i.Publisher(ctx, fmt.Sprintf("%s/name", topic), []byte(exported.Name)); err != nil {
		return fmt.Errorf("failed to publish data to mqtt: %w", err)
	}

	if err := i.Publisher(ctx, fmt.Sprintf("%s/power", topic), fmtToJSON(exported.Power)); err != nil {
		return fmt.Errorf("failed to publish data to mqtt: %w", err)
	}

	for key, value := range exported.Properties {
		if err := i.Publisher(ctx, fmt.Sprintf("%s/properties/%s", topic, key), fmtToJSON(value)); err != nil {
			return fmt.Errorf("failed to publish data to mqtt: %w", err)
		}
	}

	return nil
}

func (i *Interface) Disconnected() {
	i.Publisher = EmptyPublisher
}

func (i *Interface) Start() {
	i.stop = make(chan bool, 1)

	ch := make(chan any, 100)
	i.EventSubscriber.Subscribe(ch)

	go i.handleEvents(ch)
}

func (i *Interface) Stop() {
	if i.stop != nil {
		i.stop <- true
	}
}

func (i *Interface) handleEvents(ch chan any) {
	for {
		select {
		case event := <-ch:
			i.serviceUpdateOnEvent(event)
		case <-i.stop:
			return
		}
	}
}

const MaximumServiceUpdateTime = 1 * time.Second

func (i *Interface) serviceUpdateOnEvent(e any) {
	ctx, cancel := context.WithTimeout(context.Background(), MaximumServiceUpdateTime)
	defer cancel()

	switch event := e.(type) {
	case registry.DeviceAdded:
		i.publishDevice(ctx, event.Identifier, event.Device)
	case registry.DeviceUpdated:
		i.publishDevice(ctx, event.Identifier, event.Device)
	}
}

func fmtToJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}

	return data
}
