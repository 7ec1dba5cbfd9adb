package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	defaultHeartbeatSeconds = 30
	defaultAPIListen        = "127.0.0.1:8765"
	fileName                = "config.toml"
)

var ErrUnsupportedFormat = errors.New("unsupported config format")

type AgentConfig struct {
	Enabled          bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	ServerURL        string `toml:"server_url" yaml:"server_url" json:"server_url"`
	WebSocketURL     string `toml:"websocket_url" yaml:"websocket_url" json:"websocket_url"`
	AgentID          string `toml:"agent_id" yaml:"agent_id" json:"agent_id"`
	AgentToken       string `toml:"agent_token" yaml:"agent_token" json:"agent_token"`
	TenantID         string `toml:"tenant_id,omitempty" yaml:"tenant_id,omitempty" json:"tenant_id,omitempty"`
	HeartbeatSeconds int    `toml:"heartbeat_seconds" yaml:"heartbeat_seconds" json:"heartbeat_seconds"`
}

type APIConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	Listen  string `toml:"listen" yaml:"listen" json:"listen"`

	// AllowedOrigins are extra browser origins allowed on /api/events.
	AllowedOrigins []string `toml:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`
}

type TerminalConfig struct {
	Name        string `toml:"name" yaml:"name" json:"name"`
	Description string `toml:"description" yaml:"description" json:"description"`
}

type Config struct {
	Terminal TerminalConfig `toml:"terminal" yaml:"terminal" json:"terminal"`
	Agent    AgentConfig    `toml:"agent" yaml:"agent" json:"agent"`
	API      APIConfig      `toml:"api" yaml:"api" json:"api"`
	Devices  []Device       `toml:"devices" yaml:"devices" json:"devices"`
}

// Device is one provisioned peripheral. Enumerated values are kept as strings
// and validated when the terminal is provisioned.
type Device struct {
	Name           string `toml:"name" yaml:"name" json:"name"`
	Description    string `toml:"description,omitempty" yaml:"description,omitempty" json:"description,omitempty"`
	SerialNumber   string `toml:"serial_number,omitempty" yaml:"serial_number,omitempty" json:"serial_number,omitempty"`
	Type           string `toml:"type" yaml:"type" json:"type"`
	Communication  string `toml:"communication" yaml:"communication" json:"communication"`
	ClientDeviceID *int16 `toml:"client_device_id,omitempty" yaml:"client_device_id,omitempty" json:"client_device_id,omitempty"`
	AutoConnect    bool   `toml:"auto_connect" yaml:"auto_connect" json:"auto_connect"`
	RxLogEnable    bool   `toml:"rx_log" yaml:"rx_log" json:"rx_log"`
	TxLogEnable    bool   `toml:"tx_log" yaml:"tx_log" json:"tx_log"`

	Serial       *Serial       `toml:"serial,omitempty" yaml:"serial,omitempty" json:"serial,omitempty"`
	SocketClient *SocketClient `toml:"socket_client,omitempty" yaml:"socket_client,omitempty" json:"socket_client,omitempty"`
	SocketServer *SocketServer `toml:"socket_server,omitempty" yaml:"socket_server,omitempty" json:"socket_server,omitempty"`

	Scale          *Scale          `toml:"scale,omitempty" yaml:"scale,omitempty" json:"scale,omitempty"`
	LabelPrinter   *LabelPrinter   `toml:"label_printer,omitempty" yaml:"label_printer,omitempty" json:"label_printer,omitempty"`
	BarcodeScanner *BarcodeScanner `toml:"barcode_scanner,omitempty" yaml:"barcode_scanner,omitempty" json:"barcode_scanner,omitempty"`
}

type Serial struct {
	PortName        string `toml:"port_name" yaml:"port_name" json:"port_name"`
	BaudRate        int    `toml:"baud_rate" yaml:"baud_rate" json:"baud_rate"`
	Parity          string `toml:"parity" yaml:"parity" json:"parity"`
	DataBits        int    `toml:"data_bits" yaml:"data_bits" json:"data_bits"`
	StopBits        string `toml:"stop_bits" yaml:"stop_bits" json:"stop_bits"`
	ReadBufferSize  int    `toml:"read_buffer_size,omitempty" yaml:"read_buffer_size,omitempty" json:"read_buffer_size,omitempty"`
	WriteBufferSize int    `toml:"write_buffer_size,omitempty" yaml:"write_buffer_size,omitempty" json:"write_buffer_size,omitempty"`
	Encoding        string `toml:"encoding,omitempty" yaml:"encoding,omitempty" json:"encoding,omitempty"`
}

type SocketClient struct {
	Address  string `toml:"address" yaml:"address" json:"address"`
	Port     int    `toml:"port" yaml:"port" json:"port"`
	Encoding string `toml:"encoding,omitempty" yaml:"encoding,omitempty" json:"encoding,omitempty"`
}

type SocketServer struct {
	Port     int    `toml:"port" yaml:"port" json:"port"`
	Encoding string `toml:"encoding,omitempty" yaml:"encoding,omitempty" json:"encoding,omitempty"`
}

type Scale struct {
	Type                   string `toml:"type" yaml:"type" json:"type"`
	Protocol               string `toml:"protocol" yaml:"protocol" json:"protocol"`
	AllowTareFromIndicator bool   `toml:"allow_tare_from_indicator" yaml:"allow_tare_from_indicator" json:"allow_tare_from_indicator"`
}

type LabelPrinter struct {
	Type               string `toml:"type" yaml:"type" json:"type"`
	Protocol           string `toml:"protocol" yaml:"protocol" json:"protocol"`
	Dpi                int    `toml:"dpi" yaml:"dpi" json:"dpi"`
	Rotate             int    `toml:"rotate" yaml:"rotate" json:"rotate"`
	PrintMode          string `toml:"print_mode,omitempty" yaml:"print_mode,omitempty" json:"print_mode,omitempty"`
	MediaType          string `toml:"media_type,omitempty" yaml:"media_type,omitempty" json:"media_type,omitempty"`
	PaperType          string `toml:"paper_type,omitempty" yaml:"paper_type,omitempty" json:"paper_type,omitempty"`
	PrintSpeed         *int16 `toml:"print_speed,omitempty" yaml:"print_speed,omitempty" json:"print_speed,omitempty"`
	LabelLength        *int16 `toml:"label_length,omitempty" yaml:"label_length,omitempty" json:"label_length,omitempty"`
	LabelWidth         *int16 `toml:"label_width,omitempty" yaml:"label_width,omitempty" json:"label_width,omitempty"`
	StartAdjust        *int16 `toml:"start_adjust,omitempty" yaml:"start_adjust,omitempty" json:"start_adjust,omitempty"`
	StopAdjust         *int16 `toml:"stop_adjust,omitempty" yaml:"stop_adjust,omitempty" json:"stop_adjust,omitempty"`
	LeftMargin         *int16 `toml:"left_margin,omitempty" yaml:"left_margin,omitempty" json:"left_margin,omitempty"`
	PrintButtonCopy    *bool  `toml:"print_button_copy,omitempty" yaml:"print_button_copy,omitempty" json:"print_button_copy,omitempty"`
	ProgramBeforePrint string `toml:"program_before_print,omitempty" yaml:"program_before_print,omitempty" json:"program_before_print,omitempty"`
	ProgramAfterPrint  string `toml:"program_after_print,omitempty" yaml:"program_after_print,omitempty" json:"program_after_print,omitempty"`
}

type BarcodeScanner struct {
	Type               string `toml:"type" yaml:"type" json:"type"`
	Protocol           string `toml:"protocol" yaml:"protocol" json:"protocol"`
	SendFeedbackToHost *bool  `toml:"send_feedback_to_host,omitempty" yaml:"send_feedback_to_host,omitempty" json:"send_feedback_to_host,omitempty"`
}

func Default() *Config {
	return &Config{
		Terminal: TerminalConfig{
			Name: defaultTerminalName(),
		},
		Agent: AgentConfig{
			ServerURL:        "https://bizanti.pl",
			WebSocketURL:     "wss://bizanti.pl/agent/ws",
			HeartbeatSeconds: defaultHeartbeatSeconds,
		},
		API: APIConfig{
			Enabled: true,
			Listen:  defaultAPIListen,
		},
	}
}

func defaultTerminalName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "terminal"
	}
	return host
}

func LoadOrCreateDefault() (*Config, error) {
	if _, err := os.Stat(Path()); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if errSave := Save(cfg); errSave != nil {
			return nil, errSave
		}
		return cfg, nil
	}

	return Load()
}

func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile reads a config file. The format follows the extension: .toml
// (default), .yaml/.yml or .json.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	switch format(path) {
	case "toml":
		_, err = toml.Decode(string(data), cfg)
	case "yaml":
		err = yaml.Unmarshal(data, cfg)
	case "json":
		err = json.Unmarshal(data, cfg)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Agent.HeartbeatSeconds <= 0 {
		c.Agent.HeartbeatSeconds = defaultHeartbeatSeconds
	}
	if strings.TrimSpace(c.API.Listen) == "" {
		c.API.Listen = defaultAPIListen
	}
	if strings.TrimSpace(c.Terminal.Name) == "" {
		c.Terminal.Name = defaultTerminalName()
	}
}

func Save(cfg *Config) error {
	return SaveFile(Path(), cfg)
}

func SaveFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	switch format(path) {
	case "toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	case "yaml":
		data, err = yaml.Marshal(cfg)
	case "json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", "":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return ""
	}
}

// Dir honours DEVICEHUB_CONFIG_DIR before the platform default.
func Dir() string {
	if dir := strings.TrimSpace(os.Getenv("DEVICEHUB_CONFIG_DIR")); dir != "" {
		return dir
	}

	programData := os.Getenv("ProgramData")
	if runtime.GOOS == "windows" {
		if programData == "" {
			programData = "C:\\ProgramData"
		}
		return filepath.Join(programData, "DeviceHub")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}

	return filepath.Join(configDir, "devicehub")
}

func LogDir() string {
	return filepath.Join(Dir(), "logs")
}

func Path() string {
	return filepath.Join(Dir(), fileName)
}

// Device returns the record named name.
func (c *Config) Device(name string) (*Device, bool) {
	for i := range c.Devices {
		if strings.EqualFold(c.Devices[i].Name, name) {
			return &c.Devices[i], true
		}
	}
	return nil, false
}
