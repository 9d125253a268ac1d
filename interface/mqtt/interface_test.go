package mqtt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/shimmeringbee/melcloud"
	"github.com/shimmeringbee/melcloud/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	args := m.Called(ctx, topic, payload)
	return args.Error(0)
}

type recordingPublisher struct {
	lock   sync.Mutex
	topics map[string][]byte
}

func (r *recordingPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.topics == nil {
		r.topics = map[string][]byte{}
	}

	r.topics[topic] = payload
	return nil
}

func (r *recordingPublisher) payload(topic string) ([]byte, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	payload, found := r.topics[topic]
	return payload, found
}

func testRegistry(t *testing.T) (*registry.Registry, *melcloud.AtaDevice) {
	t.Helper()

	client := melcloud.NewClient("test-token")
	device := melcloud.NewAtaDevice(json.RawMessage(`{"DeviceID": 42, "BuildingID": 1, "AccessLevel": 4, "DeviceName": "Living Room", "Device": {"DeviceType": 0}}`), client)

	r := registry.New(registry.NullEventPublisher)
	r.Add(device)

	return r, device
}

func TestInterface_Connected(t *testing.T) {
	t.Run("publisher is set correctly", func(t *testing.T) {
		i := Interface{}

		m := &MockPublisher{}
		defer m.AssertExpectations(t)

		err := i.Connected(context.Background(), m.Publish)
		assert.NoError(t, err)

		assert.NotNil(t, i.Publisher)
	})

	t.Run("publishes device state if set to publish on connect", func(t *testing.T) {
		r, _ := testRegistry(t)

		i := Interface{Registry: r, Logger: logwrap.New(discard.Discard()), PublishStateOnConnect: true, PublishAggregatedState: true}

		m := &MockPublisher{}
		defer m.AssertExpectations(t)

		m.On("Publish", mock.Anything, "devices/melcloud-42/state", mock.Anything).Return(nil)

		err := i.Connected(context.Background(), m.Publish)
		assert.NoError(t, err)

		time.Sleep(50 * time.Millisecond)
	})
}

func TestInterface_PublishDevice(t *testing.T) {
	t.Run("individual publishes cover name, power and properties", func(t *testing.T) {
		r, device := testRegistry(t)

		p := &recordingPublisher{}

		i := Interface{Registry: r, Publisher: p.Publish, Logger: logwrap.New(discard.Discard()), PublishIndividualState: true}
		i.publishDevice(context.Background(), "melcloud-42", device)

		name, found := p.payload("devices/melcloud-42/name")
		assert.True(t, found)
		assert.Equal(t, []byte("Living Room"), name)

		power, found := p.payload("devices/melcloud-42/power")
		assert.True(t, found)
		assert.Equal(t, []byte("false"), power)

		_, found = p.payload("devices/melcloud-42/properties/target_temperature")
		assert.True(t, found)
	})
}

func TestInterface_IncomingMessage(t *testing.T) {
	t.Run("unknown topics error", func(t *testing.T) {
		i := Interface{Logger: logwrap.New(discard.Discard())}

		err := i.IncomingMessage(context.Background(), "gateways/one", nil)
		assert.ErrorIs(t, err, UnknownTopic)
	})

	t.Run("unknown devices error", func(t *testing.T) {
		r, _ := testRegistry(t)

		i := Interface{Registry: r, Logger: logwrap.New(discard.Discard())}

		err := i.IncomingMessage(context.Background(), "devices/melcloud-99/refresh", nil)
		assert.ErrorIs(t, err, UnknownDevice)
	})

	t.Run("refresh updates the device and publishes state", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/User/GetUserDetails", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		})
		mux.HandleFunc("/User/ListDevices", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"Structure": {"Devices": [{"DeviceID": 42, "BuildingID": 1, "AccessLevel": 4, "DeviceName": "Living Room", "Device": {"DeviceType": 0}}]}}]`))
		})
		mux.HandleFunc("/Device/Get", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"Power": true, "EffectiveFlags": 0}`))
		})

		server := httptest.NewServer(mux)
		defer server.Close()

		client := melcloud.NewClient("test-token", melcloud.WithBaseURL(server.URL))
		device := melcloud.NewAtaDevice(json.RawMessage(`{"DeviceID": 42, "BuildingID": 1, "AccessLevel": 4, "DeviceName": "Living Room", "Device": {"DeviceType": 0}}`), client)

		r := registry.New(registry.NullEventPublisher)
		r.Add(device)

		p := &recordingPublisher{}

		i := Interface{Registry: r, Publisher: p.Publish, Logger: logwrap.New(discard.Discard()), PublishAggregatedState: true}

		err := i.IncomingMessage(context.Background(), "devices/melcloud-42/refresh", nil)
		assert.NoError(t, err)
		assert.True(t, device.Power())

		payload, found := p.payload("devices/melcloud-42/state")
		assert.True(t, found)
		assert.Contains(t, string(payload), `"power":true`)
	})

	t.Run("set messages without cached state error", func(t *testing.T) {
		r, _ := testRegistry(t)

		i := Interface{Registry: r, Publisher: EmptyPublisher, Logger: logwrap.New(discard.Discard())}

		err := i.IncomingMessage(context.Background(), "devices/melcloud-42/set", []byte(`{"power": true}`))
		assert.ErrorIs(t, err, melcloud.ErrNoState)
	})
}

func TestInterface_Lifecycle(t *testing.T) {
	t.Run("device updated events publish state", func(t *testing.T) {
		r, device := testRegistry(t)

		bus := registry.NewEventBus()

		p := &recordingPublisher{}

		i := Interface{Registry: r, Publisher: p.Publish, EventSubscriber: bus, Logger: logwrap.New(discard.Discard()), PublishAggregatedState: true}
		i.Start()
		defer i.Stop()

		bus.Publish(registry.DeviceUpdated{Identifier: "melcloud-42", Device: device})

		assert.Eventually(t, func() bool {
			_, found := p.payload("devices/melcloud-42/state")
			return found
		}, time.Second, 10*time.Millisecond)
	})
}
