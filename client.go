package melcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/golog"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the production MELCloud endpoint.
	DefaultBaseURL = "https://app.melcloud.com/Mitsubishi.Wifi.Client"

	appVersion = "1.19.1.1"

	// DefaultConfUpdateInterval rate limits full account refreshes, devices
	// polling their own state share a single device list fetch.
	DefaultConfUpdateInterval = 5 * time.Minute

	// DefaultSetDebounce is the window in which property writes to a single
	// device are coalesced into one outgoing request.
	DefaultSetDebounce = 1 * time.Second
)

// StatusError is returned when MELCloud answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("melcloud api error %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// Error is the type of sentinel errors returned by this package, wrap points
// compare against them with errors.Is.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrNoState         = Error("device state has not been fetched")
	ErrConfNotFound    = Error("device configuration not present in account")
	ErrInvalidProperty = Error("invalid property")
	ErrInvalidValue    = Error("invalid property value")
	ErrLoginFailed     = Error("login rejected by melcloud")
)

// Client is an authenticated MELCloud session. It caches the account and
// device configuration listing, devices constructed from it share the client
// and therefore pool their configuration fetches.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     logwrap.Logger

	confUpdateInterval time.Duration
	setDebounce        time.Duration

	mu             sync.RWMutex
	lastConfUpdate time.Time
	deviceConfs    []json.RawMessage
	account        json.RawMessage
}

// Option adjusts optional Client behaviour.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL points the client at a different endpoint, used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithLogger attaches a logger, without it the client is silent.
func WithLogger(l logwrap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithConfUpdateInterval overrides the account refresh rate limit.
func WithConfUpdateInterval(d time.Duration) Option {
	return func(c *Client) {
		c.confUpdateInterval = d
	}
}

// WithSetDebounce overrides the write coalescing window applied to devices
// constructed from this client.
func WithSetDebounce(d time.Duration) Option {
	return func(c *Client) {
		c.setDebounce = d
	}
}

// NewClient constructs a client around a previously obtained context key.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:            DefaultBaseURL,
		token:              token,
		httpClient:         &http.Client{Timeout: 15 * time.Second},
		logger:             logwrap.New(golog.Wrap(log.New(io.Discard, "", 0))),
		confUpdateInterval: DefaultConfUpdateInterval,
		setDebounce:        DefaultSetDebounce,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Login exchanges credentials for a context key and returns a client using
// it. The token is available via Token for later reuse with NewClient.
func Login(ctx context.Context, email string, password string, opts ...Option) (*Client, error) {
	c := NewClient("", opts...)

	body := map[string]any{
		"Email":           email,
		"Password":        password,
		"Language":        0,
		"AppVersion":      appVersion,
		"Persist":         true,
		"CaptchaResponse": nil,
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/Login/ClientLogin", body)
	if err != nil {
		return nil, err
	}

	if errorID := gjson.GetBytes(data, "ErrorId"); errorID.Exists() && errorID.Type != gjson.Null {
		return nil, fmt.Errorf("%w: error id %s", ErrLoginFailed, errorID.String())
	}

	contextKey := gjson.GetBytes(data, "LoginData.ContextKey")
	if !contextKey.Exists() || contextKey.String() == "" {
		return nil, fmt.Errorf("%w: response missing context key", ErrLoginFailed)
	}

	c.token = contextKey.String()
	c.logger.LogInfo(ctx, "Logged in to MELCloud.", logwrap.Datum("email", email))

	return c, nil
}

// Token returns the context key in use by this session.
func (c *Client) Token() string {
	return c.token
}

// UpdateConfs refreshes the account details and device configuration listing.
//
// Calls are rate limited to the configured interval so that devices can
// freely call this ahead of their own state poll.
func (c *Client) UpdateConfs(ctx context.Context) error {
	c.mu.RLock()
	fresh := !c.lastConfUpdate.IsZero() && time.Since(c.lastConfUpdate) < c.confUpdateInterval
	c.mu.RUnlock()

	if fresh {
		return nil
	}

	account, err := c.doRequest(ctx, http.MethodGet, "/User/GetUserDetails", nil)
	if err != nil {
		return fmt.Errorf("failed to fetch user details: %w", err)
	}

	listing, err := c.doRequest(ctx, http.MethodGet, "/User/ListDevices", nil)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	confs := collectDeviceConfs(listing)

	c.mu.Lock()
	c.account = account
	c.deviceConfs = confs
	c.lastConfUpdate = time.Now()
	c.mu.Unlock()

	c.logger.LogDebug(ctx, "Refreshed device configurations.", logwrap.Datum("deviceCount", len(confs)))

	return nil
}

// DeviceConfs returns the cached raw device configuration entries.
func (c *Client) DeviceConfs() []json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	confs := make([]json.RawMessage, len(c.deviceConfs))
	copy(confs, c.deviceConfs)
	return confs
}

// Account returns the cached raw account document, nil before the first
// successful UpdateConfs.
func (c *Client) Account() json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.account
}

func (c *Client) useFahrenheit() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return gjson.GetBytes(c.account, "UseFahrenheit").Bool()
}

func (c *Client) deviceConf(deviceID int64, buildingID int64) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, conf := range c.deviceConfs {
		if gjson.GetBytes(conf, "DeviceID").Int() == deviceID && gjson.GetBytes(conf, "BuildingID").Int() == buildingID {
			return conf, true
		}
	}

	return nil, false
}

// collectDeviceConfs walks the building structure of a ListDevices response,
// devices can appear directly on the structure, in areas, on floors and in
// areas on floors. Entries are de-duplicated by DeviceID.
func collectDeviceConfs(listing []byte) []json.RawMessage {
	var confs []json.RawMessage
	visited := map[int64]struct{}{}

	add := func(devices gjson.Result) {
		for _, device := range devices.Array() {
			id := device.Get("DeviceID").Int()
			if _, found := visited[id]; found {
				continue
			}

			visited[id] = struct{}{}
			confs = append(confs, json.RawMessage(device.Raw))
		}
	}

	for _, entry := range gjson.ParseBytes(listing).Array() {
		structure := entry.Get("Structure")

		add(structure.Get("Devices"))

		for _, area := range structure.Get("Areas").Array() {
			add(area.Get("Devices"))
		}

		for _, floor := range structure.Get("Floors").Array() {
			add(floor.Get("Devices"))

			for _, area := range floor.Get("Areas").Array() {
				add(area.Get("Devices"))
			}
		}
	}

	return confs
}

func (c *Client) fetchDeviceState(ctx context.Context, deviceID int64, buildingID int64) (json.RawMessage, error) {
	path := fmt.Sprintf("/Device/Get?id=%d&buildingID=%d", deviceID, buildingID)

	data, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch state for device %d: %w", deviceID, err)
	}

	return data, nil
}

func (c *Client) fetchDeviceUnits(ctx context.Context, deviceID int64) (json.RawMessage, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/Device/ListDeviceUnits", map[string]any{"deviceId": deviceID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch units for device %d: %w", deviceID, err)
	}

	return data, nil
}

func (c *Client) setDeviceState(ctx context.Context, deviceType int64, state map[string]any) (json.RawMessage, error) {
	var setter string

	switch deviceType {
	case deviceTypeIntAta:
		setter = "SetAta"
	case deviceTypeIntAtw:
		setter = "SetAtw"
	case deviceTypeIntErv:
		setter = "SetErv"
	default:
		return nil, fmt.Errorf("unsupported device type for state write: %d", deviceType)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/Device/"+setter, state)
	if err != nil {
		return nil, fmt.Errorf("failed to write device state: %w", err)
	}

	return data, nil
}

func (c *Client) doRequest(ctx context.Context, method string, path string, body any) ([]byte, error) {
	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}

		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to construct request: %w", err)
	}

	c.setHeaders(req)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	return data, nil
}

// setHeaders applies the headers the vendor API expects on every call, the
// session is identified by the X-MitsContextKey header rather than a cookie.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:73.0) Gecko/20100101 Firefox/73.0")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Cookie", "policyaccepted=true")

	if c.token != "" {
		req.Header.Set("X-MitsContextKey", c.token)
	}
}
