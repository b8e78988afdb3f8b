package melcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://app.melcloud.com/Mitsubishi.Wifi.Client"

// Device type codes used by the MELCloud API.
const (
	deviceTypeAta = 0
	deviceTypeAtw = 1
	deviceTypeErv = 3
)

// Device class names, used as fleet grouping keys.
const (
	DeviceTypeAta = "ata"
	DeviceTypeAtw = "atw"
	DeviceTypeErv = "erv"
)

const (
	// DefaultConfUpdateInterval bounds how often device configuration is
	// re-read from the device listing during Update.
	DefaultConfUpdateInterval = 15 * time.Minute
	// DefaultSetDebounce is the window within which Set calls on the same
	// device are merged into a single API write.
	DefaultSetDebounce = 2 * time.Second
)

// Client talks to the MELCloud REST API on behalf of one account.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	confUpdateInterval time.Duration
	setDebounce        time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithConfUpdateInterval sets how often device conf is refreshed.
func WithConfUpdateInterval(d time.Duration) Option {
	return func(c *Client) { c.confUpdateInterval = d }
}

// WithSetDebounce sets the write-merge window for Device.Set.
func WithSetDebounce(d time.Duration) Option {
	return func(c *Client) { c.setDebounce = d }
}

// NewClient builds a client around an existing context-key token.
func NewClient(token string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	c := &Client{
		baseURL:            defaultBaseURL,
		token:              token,
		httpClient:         httpClient,
		confUpdateInterval: DefaultConfUpdateInterval,
		setDebounce:        DefaultSetDebounce,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges account credentials for a context-key token. MELCloud
// reports bad credentials through a non-nil ErrorId with a 200 status, so
// both paths map to a 401 StatusError here.
func Login(ctx context.Context, email, password string, httpClient *http.Client, opts ...Option) (string, error) {
	c := NewClient("", httpClient, opts...)

	payload := map[string]any{
		"Email":           email,
		"Password":        password,
		"Language":        0,
		"AppVersion":      "1.23.4.0",
		"Persist":         true,
		"CaptchaResponse": nil,
	}

	var resp struct {
		ErrorId   *int `json:"ErrorId"`
		LoginData *struct {
			ContextKey string `json:"ContextKey"`
		} `json:"LoginData"`
	}

	if err := c.postJSON(ctx, "/Login/ClientLogin", payload, &resp); err != nil {
		return "", err
	}
	if resp.ErrorId != nil {
		return "", &StatusError{Status: http.StatusUnauthorized, Body: fmt.Sprintf("login rejected (ErrorId %d)", *resp.ErrorId)}
	}
	if resp.LoginData == nil || resp.LoginData.ContextKey == "" {
		return "", &ShapeError{Op: "login", Detail: "missing LoginData.ContextKey"}
	}
	return resp.LoginData.ContextKey, nil
}

// ListDevices fetches the account's device inventory grouped by device
// class. Wrapping is uniform: every discovered device becomes a Device
// regardless of class.
func (c *Client) ListDevices(ctx context.Context) (map[string][]Device, error) {
	entries, err := c.listDeviceEntries(ctx)
	if err != nil {
		return nil, err
	}

	devices := make(map[string][]Device)
	for _, entry := range entries {
		switch entry.Type {
		case deviceTypeAta:
			devices[DeviceTypeAta] = append(devices[DeviceTypeAta], newAtaDevice(c, entry))
		case deviceTypeAtw:
			devices[DeviceTypeAtw] = append(devices[DeviceTypeAtw], newAtwDevice(c, entry))
		case deviceTypeErv:
			devices[DeviceTypeErv] = append(devices[DeviceTypeErv], newErvDevice(c, entry))
		}
	}
	return devices, nil
}

// deviceEntry is one device's conf record from /User/ListDevices.
type deviceEntry struct {
	DeviceID     int    `json:"DeviceID"`
	BuildingID   int    `json:"BuildingID"`
	DeviceName   string `json:"DeviceName"`
	MacAddress   string `json:"MacAddress"`
	SerialNumber string `json:"SerialNumber"`
	Type         int    `json:"Type"`
	Device       struct {
		Units []struct {
			Model    string `json:"Model"`
			UnitType int    `json:"UnitType"`
			IsIndoor bool   `json:"IsIndoor"`
		} `json:"Units"`
		NumberOfFanSpeeds    int     `json:"NumberOfFanSpeeds"`
		HasAutomaticFanSpeed bool    `json:"HasAutomaticFanSpeed"`
		HasZone2             bool    `json:"HasZone2"`
		Zone1Name            *string `json:"Zone1Name"`
		Zone2Name            *string `json:"Zone2Name"`
		TemperatureIncrement float64 `json:"TemperatureIncrement"`
	} `json:"Device"`
}

type listBuilding struct {
	ID        int `json:"ID"`
	Structure struct {
		Devices []deviceEntry `json:"Devices"`
		Areas   []struct {
			Devices []deviceEntry `json:"Devices"`
		} `json:"Areas"`
		Floors []struct {
			Devices []deviceEntry `json:"Devices"`
			Areas   []struct {
				Devices []deviceEntry `json:"Devices"`
			} `json:"Areas"`
		} `json:"Floors"`
	} `json:"Structure"`
}

func (c *Client) listDeviceEntries(ctx context.Context) ([]deviceEntry, error) {
	var buildings []listBuilding
	if err := c.getJSON(ctx, "/User/ListDevices", &buildings); err != nil {
		return nil, err
	}

	// Devices hang off the structure root, its areas, and its floors.
	var entries []deviceEntry
	for _, b := range buildings {
		entries = append(entries, b.Structure.Devices...)
		for _, area := range b.Structure.Areas {
			entries = append(entries, area.Devices...)
		}
		for _, floor := range b.Structure.Floors {
			entries = append(entries, floor.Devices...)
			for _, area := range floor.Areas {
				entries = append(entries, area.Devices...)
			}
		}
	}
	return entries, nil
}

func (c *Client) deviceConf(ctx context.Context, deviceID int) (deviceEntry, error) {
	entries, err := c.listDeviceEntries(ctx)
	if err != nil {
		return deviceEntry{}, err
	}
	for _, entry := range entries {
		if entry.DeviceID == deviceID {
			return entry, nil
		}
	}
	return deviceEntry{}, &ShapeError{Op: "conf refresh", Detail: fmt.Sprintf("device %d missing from listing", deviceID)}
}

// deviceState is the live state payload from /Device/Get. Fields are
// pointers where their absence distinguishes a malformed payload from a
// zero value.
type deviceState struct {
	EffectiveFlags int64 `json:"EffectiveFlags"`

	Power           *bool    `json:"Power"`
	RoomTemperature *float64 `json:"RoomTemperature"`
	SetTemperature  *float64 `json:"SetTemperature"`
	OperationMode   int      `json:"OperationMode"`
	SetFanSpeed     int      `json:"SetFanSpeed"`
	VentilationMode int      `json:"VentilationMode"`

	OutdoorTemperature      *float64 `json:"OutdoorTemperature"`
	TankWaterTemperature    *float64 `json:"TankWaterTemperature"`
	SetTankWaterTemperature *float64 `json:"SetTankWaterTemperature"`
	ForcedHotWaterMode      bool     `json:"ForcedHotWaterMode"`

	RoomTemperatureZone1 *float64 `json:"RoomTemperatureZone1"`
	RoomTemperatureZone2 *float64 `json:"RoomTemperatureZone2"`
	SetTemperatureZone1  *float64 `json:"SetTemperatureZone1"`
	SetTemperatureZone2  *float64 `json:"SetTemperatureZone2"`
	OperationModeZone1   int      `json:"OperationModeZone1"`
	OperationModeZone2   int      `json:"OperationModeZone2"`
}

func (c *Client) deviceState(ctx context.Context, deviceID, buildingID int) (deviceState, error) {
	path := fmt.Sprintf("/Device/Get?id=%d&buildingID=%d", deviceID, buildingID)
	var state deviceState
	if err := c.getJSON(ctx, path, &state); err != nil {
		return deviceState{}, err
	}
	if state.Power == nil {
		return deviceState{}, &ShapeError{Op: "state fetch", Detail: "missing Power field"}
	}
	return state, nil
}

func (c *Client) setDevice(ctx context.Context, endpoint string, payload map[string]any) error {
	var resp json.RawMessage
	return c.postJSON(ctx, "/Device/"+endpoint, payload, &resp)
}

// energyTotals is the secondary energy report feed. It is known to fail
// server-side for some device classes even when state fetches succeed.
type energyTotals struct {
	TotalHeatingConsumed float64
	TotalCoolingConsumed float64
}

func (c *Client) energyReport(ctx context.Context, deviceID int) (energyTotals, error) {
	now := time.Now().UTC()
	payload := map[string]any{
		"DeviceID":    deviceID,
		"FromDate":    now.AddDate(0, 0, -1).Format("2006-01-02T00:00:00"),
		"ToDate":      now.Format("2006-01-02T00:00:00"),
		"UseCurrency": false,
	}

	var resp struct {
		Heating []float64 `json:"Heating"`
		Cooling []float64 `json:"Cooling"`
	}
	if err := c.postJSON(ctx, "/EnergyCost/Report", payload, &resp); err != nil {
		return energyTotals{}, err
	}

	var totals energyTotals
	for _, v := range resp.Heating {
		totals.TotalHeatingConsumed += v
	}
	for _, v := range resp.Cooling {
		totals.TotalCoolingConsumed += v
	}
	return totals, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("X-MitsContextKey", c.token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &StatusError{Status: resp.StatusCode, Body: string(data)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ShapeError{Op: method + " " + requestPath(path), Detail: err.Error()}
	}
	return nil
}

func requestPath(path string) string {
	if u, err := url.Parse(path); err == nil {
		return u.Path
	}
	return path
}
