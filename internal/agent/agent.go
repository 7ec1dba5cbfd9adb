package agent

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/NowakAdmin/DeviceHub/internal/center"
	"github.com/NowakAdmin/DeviceHub/internal/config"
	"github.com/NowakAdmin/DeviceHub/internal/devices"
)

type IncomingMessage struct {
	Type    string          `json:"type"`
	JobID   string          `json:"job_id,omitempty"`
	Command string          `json:"command,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type OutgoingMessage struct {
	Type      string         `json:"type"`
	AgentID   string         `json:"agent_id,omitempty"`
	JobID     string         `json:"job_id,omitempty"`
	Status    string         `json:"status,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Event     *center.Event  `json:"event,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type pullCommandsResponse struct {
	Success bool              `json:"success"`
	Data    []IncomingMessage `json:"data"`
}

// DeviceCenter is the part of the device center the agent drives.
type DeviceCenter interface {
	Devices() []center.DeviceInfo
	Device(name string) (center.DeviceInfo, bool)
	OpenDevice(name string) bool
	CloseDevice(name string) bool
	TransmitText(name, text string) bool
	TransmitBytes(name string, raw []byte) bool
	SimulateWeightResult(name string, clientDeviceID *int16, result devices.WeightResult)
	SimulateBarcodeResult(name string, clientDeviceID *int16, result devices.BarcodeResult)
	Subscribe() *center.Subscription
}

// Agent bridges the local device center to the Bizanti server: it pushes
// device events upstream and executes device commands sent down.
type Agent struct {
	cfg      config.AgentConfig
	terminal string
	center   DeviceCenter
	logger   zerolog.Logger
	client   *http.Client

	running   atomic.Bool
	connected atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfg config.AgentConfig, terminal string, c DeviceCenter, logger zerolog.Logger) *Agent {
	return &Agent{
		cfg:      cfg,
		terminal: terminal,
		center:   c,
		logger:   logger.With().Str("component", "agent").Logger(),
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *Agent) Start(parent context.Context) error {
	if a.running.Swap(true) {
		return nil
	}

	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop(ctx)
	}()

	return nil
}

func (a *Agent) Stop() {
	if !a.running.Load() {
		return
	}

	if a.cancel != nil {
		a.cancel()
	}

	a.wg.Wait()
	a.running.Store(false)
}

func (a *Agent) IsRunning() bool {
	return a.running.Load()
}

// IsConnected reports whether a websocket session is up.
func (a *Agent) IsConnected() bool {
	return a.connected.Load()
}

func (a *Agent) heartbeatEvery() time.Duration {
	if a.cfg.HeartbeatSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.cfg.HeartbeatSeconds) * time.Second
}

func (a *Agent) loop(ctx context.Context) {
	if strings.TrimSpace(a.cfg.AgentToken) == "" {
		a.logger.Warn().Msg("Brak tokena agenta. Użyj: devicehub configure --token=...")
		<-ctx.Done()
		return
	}

	if strings.TrimSpace(a.cfg.ServerURL) == "" && strings.TrimSpace(a.cfg.WebSocketURL) == "" {
		a.logger.Warn().Msg("Brak server_url i websocket_url. Użyj: devicehub configure ...")
		<-ctx.Done()
		return
	}

	backoff := 1 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var err error
		if strings.TrimSpace(a.cfg.WebSocketURL) != "" {
			err = a.runSession(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("Sesja WebSocket zakończona")
			}

			if ctx.Err() != nil {
				return
			}

			if strings.TrimSpace(a.cfg.ServerURL) != "" {
				a.logger.Info().Msg("Przechodzę na fallback HTTP polling.")
				err = a.runHTTPPolling(ctx, 45*time.Second)
			}
		} else {
			err = a.runHTTPPolling(ctx, 0)
		}

		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn().Err(err).Msg("Pętla agenta zakończona błędem")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if backoff < 20*time.Second {
			backoff *= 2
		}
	}
}

func (a *Agent) runHTTPPolling(ctx context.Context, maxDuration time.Duration) error {
	if strings.TrimSpace(a.cfg.ServerURL) == "" {
		return fmt.Errorf("brak server_url do fallback HTTP")
	}

	pollTicker := time.NewTicker(2 * time.Second)
	heartbeatTicker := time.NewTicker(a.heartbeatEvery())
	defer pollTicker.Stop()
	defer heartbeatTicker.Stop()

	if err := a.heartbeat(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("HTTP heartbeat error")
	}

	var timeout <-chan time.Time
	if maxDuration > 0 {
		timer := time.NewTimer(maxDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-timeout:
			return nil
		case <-heartbeatTicker.C:
			if err := a.heartbeat(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("HTTP heartbeat error")
			}
		case <-pollTicker.C:
			commands, err := a.pullCommands(ctx)
			if err != nil {
				return err
			}

			for _, message := range commands {
				commandName := strings.ToLower(strings.TrimSpace(message.Command))
				result, execErr := a.executeCommand(commandName, message.Payload)
				if reportErr := a.reportCommandResult(ctx, message.JobID, result, execErr); reportErr != nil {
					a.logger.Warn().Err(reportErr).Str("job", message.JobID).Msg("Błąd raportowania wyniku")
				}
			}
		}
	}
}

func (a *Agent) heartbeat(ctx context.Context) error {
	request, err := a.newAPIRequest(ctx, http.MethodPost, "/api/devicehub/agent/heartbeat", nil)
	if err != nil {
		return err
	}

	response, err := a.client.Do(request)
	if err != nil {
		return err
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode >= 300 {
		body, _ := io.ReadAll(response.Body)
		return fmt.Errorf("heartbeat status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}

func (a *Agent) pullCommands(ctx context.Context) ([]IncomingMessage, error) {
	request, err := a.newAPIRequest(ctx, http.MethodGet, "/api/devicehub/agent/commands/next?limit=5", nil)
	if err != nil {
		return nil, err
	}

	response, err := a.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode >= 300 {
		body, _ := io.ReadAll(response.Body)
		return nil, fmt.Errorf("pull commands status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed pullCommandsResponse
	if err = json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	if !parsed.Success {
		return nil, fmt.Errorf("pull commands returned success=false")
	}

	return parsed.Data, nil
}

func (a *Agent) reportCommandResult(ctx context.Context, jobID string, result map[string]any, execErr error) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("brak job_id")
	}

	payload := map[string]any{}
	if execErr != nil {
		payload["status"] = "failed"
		payload["error"] = execErr.Error()
	} else {
		payload["status"] = "completed"
		payload["result"] = result
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	request, err := a.newAPIRequest(ctx, http.MethodPost, "/api/devicehub/agent/commands/"+jobID+"/result", bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := a.client.Do(request)
	if err != nil {
		return err
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(response.Body)
		return fmt.Errorf("report result status %d: %s", response.StatusCode, strings.TrimSpace(string(responseBody)))
	}

	a.logJob(jobID, execErr)
	return nil
}

func (a *Agent) logJob(jobID string, err error) {
	if err != nil {
		a.logger.Warn().Err(err).Str("job", jobID).Msg("Zadanie nieudane")
		return
	}
	a.logger.Info().Str("job", jobID).Msg("Zadanie wykonane")
}

func (a *Agent) headers(h http.Header) {
	h.Set("Authorization", "Bearer "+a.cfg.AgentToken)
	h.Set("X-Agent-ID", a.cfg.AgentID)
	h.Set("X-Agent-Name", a.terminal)
	if strings.TrimSpace(a.cfg.TenantID) != "" {
		h.Set("X-Tenant-ID", a.cfg.TenantID)
	}
}

func (a *Agent) newAPIRequest(ctx context.Context, method string, path string, body io.Reader) (*http.Request, error) {
	base := strings.TrimRight(strings.TrimSpace(a.cfg.ServerURL), "/")
	if base == "" {
		return nil, fmt.Errorf("server_url is empty")
	}

	pathPart := path
	if !strings.HasPrefix(pathPart, "/") {
		pathPart = "/" + pathPart
	}

	request, err := http.NewRequestWithContext(ctx, method, base+pathPart, body)
	if err != nil {
		return nil, err
	}
	a.headers(request.Header)

	return request, nil
}

func (a *Agent) now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (a *Agent) runSession(ctx context.Context) error {
	headers := http.Header{}
	a.headers(headers)

	conn, response, err := websocket.DefaultDialer.DialContext(ctx, a.cfg.WebSocketURL, headers)
	if err != nil {
		if response != nil {
			return fmt.Errorf("błąd połączenia websocket (http %d): %w", response.StatusCode, err)
		}

		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	// Subscribe before auth so nothing after the handshake is lost.
	sub := a.center.Subscribe()
	defer sub.Unsubscribe()

	a.logger.Info().Str("url", a.cfg.WebSocketURL).Msg("Połączono z serwerem WebSocket")

	if err = conn.WriteJSON(OutgoingMessage{
		Type:      "auth",
		AgentID:   a.cfg.AgentID,
		Status:    "online",
		Timestamp: a.now(),
		Data: map[string]any{
			"terminal": a.terminal,
			"devices":  a.deviceNames(),
		},
	}); err != nil {
		return err
	}
	a.connected.Store(true)
	defer a.connected.Store(false)

	heartbeatTicker := time.NewTicker(a.heartbeatEvery())
	defer heartbeatTicker.Stop()

	readErrors := make(chan error, 1)
	readMessages := make(chan IncomingMessage, 8)

	go func() {
		for {
			var message IncomingMessage
			if readErr := conn.ReadJSON(&message); readErr != nil {
				readErrors <- readErr
				return
			}

			select {
			case readMessages <- message:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteJSON(OutgoingMessage{Type: "status", Status: "offline"})
			return context.Canceled
		case err = <-readErrors:
			return err
		case message := <-readMessages:
			if err = a.handleIncoming(conn, message); err != nil {
				return err
			}
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if !forwarded(ev.Kind) {
				continue
			}
			if err = conn.WriteJSON(OutgoingMessage{
				Type:      "device_event",
				AgentID:   a.cfg.AgentID,
				Timestamp: a.now(),
				Event:     &ev,
			}); err != nil {
				return err
			}
		case <-heartbeatTicker.C:
			if err = conn.WriteJSON(OutgoingMessage{
				Type:      "heartbeat",
				AgentID:   a.cfg.AgentID,
				Timestamp: a.now(),
				Status:    "online",
			}); err != nil {
				return err
			}
		}
	}
}

// forwarded reports whether an event kind is pushed upstream. Raw traffic
// stays local.
func forwarded(kind center.Kind) bool {
	switch kind {
	case center.KindWeight, center.KindBarcode, center.KindStatus, center.KindMessage:
		return true
	default:
		return false
	}
}

func (a *Agent) handleIncoming(conn *websocket.Conn, message IncomingMessage) error {
	messageType := strings.ToLower(strings.TrimSpace(message.Type))
	commandName := strings.ToLower(strings.TrimSpace(message.Command))

	switch {
	case messageType == "ping" || commandName == "ping":
		return conn.WriteJSON(OutgoingMessage{
			Type:      "pong",
			AgentID:   a.cfg.AgentID,
			Timestamp: a.now(),
			JobID:     message.JobID,
		})

	case messageType == "command":
		result, err := a.executeCommand(commandName, message.Payload)
		out := OutgoingMessage{
			Type:      "command_result",
			AgentID:   a.cfg.AgentID,
			JobID:     message.JobID,
			Timestamp: a.now(),
		}

		if err != nil {
			out.Status = "failed"
			out.Error = err.Error()
		} else {
			out.Status = "completed"
			out.Data = result
		}
		a.logJob(message.JobID, err)

		return conn.WriteJSON(out)
	}
	return nil
}

type devicePayload struct {
	Name string `json:"name"`
}

type transmitPayload struct {
	Name string `json:"name"`
	Text string `json:"text,omitempty"`
	Hex  string `json:"hex,omitempty"`
}

type simulateWeightPayload struct {
	Name           string `json:"name"`
	ClientDeviceID *int16 `json:"client_device_id,omitempty"`
	devices.WeightResult
}

type simulateBarcodePayload struct {
	Name           string `json:"name"`
	ClientDeviceID *int16 `json:"client_device_id,omitempty"`
	devices.BarcodeResult
}

func (a *Agent) executeCommand(command string, rawPayload json.RawMessage) (map[string]any, error) {
	switch command {
	case "ping":
		return map[string]any{"pong": true}, nil

	case "list_devices":
		return map[string]any{"devices": a.center.Devices()}, nil

	case "open_device", "close_device":
		var payload devicePayload
		if err := decode(rawPayload, &payload); err != nil {
			return nil, err
		}
		if err := a.requireDevice(payload.Name); err != nil {
			return nil, err
		}

		var ok bool
		if command == "open_device" {
			ok = a.center.OpenDevice(payload.Name)
		} else {
			ok = a.center.CloseDevice(payload.Name)
		}
		if !ok {
			return nil, fmt.Errorf("połączenie urządzenia %s nie jest skonfigurowane", payload.Name)
		}
		return map[string]any{"device": payload.Name}, nil

	case "transmit":
		var payload transmitPayload
		if err := decode(rawPayload, &payload); err != nil {
			return nil, err
		}
		if err := a.requireDevice(payload.Name); err != nil {
			return nil, err
		}

		var ok bool
		switch {
		case payload.Hex != "":
			raw, err := hex.DecodeString(strings.ReplaceAll(payload.Hex, " ", ""))
			if err != nil {
				return nil, fmt.Errorf("niepoprawne dane hex: %w", err)
			}
			ok = a.center.TransmitBytes(payload.Name, raw)
		case payload.Text != "":
			ok = a.center.TransmitText(payload.Name, payload.Text)
		default:
			return nil, fmt.Errorf("brak danych do wysłania")
		}
		if !ok {
			return nil, fmt.Errorf("połączenie urządzenia %s nie jest skonfigurowane", payload.Name)
		}
		return map[string]any{"device": payload.Name}, nil

	case "simulate_weight":
		var payload simulateWeightPayload
		if err := decode(rawPayload, &payload); err != nil {
			return nil, err
		}
		a.center.SimulateWeightResult(payload.Name, payload.ClientDeviceID, payload.WeightResult)
		return map[string]any{"device": payload.Name, "weight": payload.Weight}, nil

	case "simulate_barcode":
		var payload simulateBarcodePayload
		if err := decode(rawPayload, &payload); err != nil {
			return nil, err
		}
		if payload.Length == 0 {
			payload.Length = len(payload.Barcode)
		}
		a.center.SimulateBarcodeResult(payload.Name, payload.ClientDeviceID, payload.BarcodeResult)
		return map[string]any{"device": payload.Name, "barcode": payload.Barcode}, nil

	default:
		return nil, fmt.Errorf("nieobsługiwana komenda: %s", command)
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("brak danych komendy")
	}
	return json.Unmarshal(raw, v)
}

func (a *Agent) requireDevice(name string) error {
	if _, ok := a.center.Device(name); !ok {
		return fmt.Errorf("nie znaleziono urządzenia: %s", name)
	}
	return nil
}

func (a *Agent) deviceNames() []string {
	infos := a.center.Devices()
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Device.Name)
	}
	return names
}
