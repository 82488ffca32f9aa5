// Package config loads macropadd settings from YAML, .env files and the
// environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/macropad-link/internal/device"
	"github.com/shaunagostinho/macropad-link/internal/media"
	"github.com/shaunagostinho/macropad-link/internal/relay"
	"github.com/shaunagostinho/macropad-link/internal/session"
)

// Transports.
const (
	TransportHID      = "hid"
	TransportSerial   = "serial"
	TransportDemo     = "demo"
	TransportDisabled = "disabled" // keyboard only
)

// Config holds all daemon configuration.
type Config struct {
	mu sync.RWMutex

	// Devices
	Macropad DeviceConfig `yaml:"macropad" json:"macropad"`
	Keyboard DeviceConfig `yaml:"keyboard" json:"keyboard"`

	// Exchange cadence and timeouts
	Link LinkConfig `yaml:"link" json:"link"`

	// Keyboard relay retry policy
	Relay RelayConfig `yaml:"relay" json:"relay"`

	// Services
	Probe   ProbeConfig   `yaml:"probe" json:"probe"`
	Timer   TimerConfig   `yaml:"timer" json:"timer"`
	Spotify SpotifyConfig `yaml:"spotify" json:"spotify"`

	// Observability
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Trace   TraceConfig   `yaml:"trace" json:"trace"`
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`

	path string // file path for save/load
}

type DeviceConfig struct {
	Transport string `yaml:"transport" json:"transport"` // "hid", "serial", "demo" ("disabled" for the keyboard)
	VendorID  HexID  `yaml:"vendor_id" json:"vendorId"`
	ProductID HexID  `yaml:"product_id" json:"productId"`
	UsagePage HexID  `yaml:"usage_page" json:"usagePage"`
	Usage     HexID  `yaml:"usage" json:"usage"`
	PortPath  string `yaml:"port_path" json:"portPath"` // serial only, empty = match by VID/PID
	BaudRate  int    `yaml:"baud_rate" json:"baudRate"` // serial only
}

// Filter returns the HID capability filter for this device.
func (d DeviceConfig) Filter() device.Filter {
	return device.Filter{
		VendorID:  uint16(d.VendorID),
		ProductID: uint16(d.ProductID),
		UsagePage: uint16(d.UsagePage),
		Usage:     uint16(d.Usage),
	}
}

// Serial returns the serial transport settings for this device.
func (d DeviceConfig) Serial() device.SerialConfig {
	return device.SerialConfig{
		PortPath:  d.PortPath,
		BaudRate:  d.BaudRate,
		VendorID:  uint16(d.VendorID),
		ProductID: uint16(d.ProductID),
	}
}

type LinkConfig struct {
	ReportLength      int `yaml:"report_length" json:"reportLength"`             // payload bytes per report
	ServiceIntervalMs int `yaml:"service_interval_ms" json:"serviceIntervalMs"` // pause between exchanges
	ReadTimeoutMs     int `yaml:"read_timeout_ms" json:"readTimeoutMs"`
	ListenTimeoutMs   int `yaml:"listen_timeout_ms" json:"listenTimeoutMs"`
	ListenYieldMs     int `yaml:"listen_yield_ms" json:"listenYieldMs"`
	ReconnectDelayMs  int `yaml:"reconnect_delay_ms" json:"reconnectDelayMs"`
	ErrorPauseMs      int `yaml:"error_pause_ms" json:"errorPauseMs"` // after a failed cycle
}

// Session returns the primary session timing.
func (l LinkConfig) Session() session.Config {
	return session.Config{
		ReportLength:   l.ReportLength,
		ReadTimeout:    ms(l.ReadTimeoutMs),
		ListenTimeout:  ms(l.ListenTimeoutMs),
		ListenYield:    ms(l.ListenYieldMs),
		ReconnectDelay: ms(l.ReconnectDelayMs),
	}
}

func (l LinkConfig) ServiceInterval() time.Duration { return ms(l.ServiceIntervalMs) }
func (l LinkConfig) ErrorPause() time.Duration      { return ms(l.ErrorPauseMs) }

type RelayConfig struct {
	RetryDelayMs   int `yaml:"retry_delay_ms" json:"retryDelayMs"` // min gap between reconnects
	Attempts       int `yaml:"attempts" json:"attempts"`
	AttemptPauseMs int `yaml:"attempt_pause_ms" json:"attemptPauseMs"`
}

// Session returns the relay policy for the given report length.
func (r RelayConfig) Session(reportLength int) relay.Config {
	return relay.Config{
		ReportLength: reportLength,
		RetryDelay:   ms(r.RetryDelayMs),
		Attempts:     r.Attempts,
		AttemptPause: ms(r.AttemptPauseMs),
	}
}

type ProbeConfig struct {
	Backend    string `yaml:"backend" json:"backend"` // "speedtest" or "demo"
	TimeoutSec int    `yaml:"timeout_sec" json:"timeoutSec"`
}

func (p ProbeConfig) Timeout() time.Duration { return time.Duration(p.TimeoutSec) * time.Second }

type TimerConfig struct {
	DurationFile string `yaml:"duration_file" json:"durationFile"` // whole seconds, re-read on every status
	Notify       bool   `yaml:"notify" json:"notify"`              // desktop notification on completion
}

type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" json:"clientId"`
	ClientSecret string `yaml:"client_secret" json:"-"`
	RedirectURI  string `yaml:"redirect_uri" json:"redirectUri"`
	TokenFile    string `yaml:"token_file" json:"tokenFile"`
	CacheSec     int    `yaml:"cache_sec" json:"cacheSec"`
	TitleLimit   int    `yaml:"title_limit" json:"titleLimit"` // runes shown on the display
}

// Media returns the playback API settings.
func (s SpotifyConfig) Media() media.SpotifyConfig {
	return media.SpotifyConfig{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURI:  s.RedirectURI,
		TokenFile:    s.TokenFile,
	}
}

func (s SpotifyConfig) CacheTTL() time.Duration { return time.Duration(s.CacheSec) * time.Second }

type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"` // debug, info, warn, error
	Console bool   `yaml:"console" json:"console"`
}

type TraceConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

type MonitorConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"` // empty disables the monitor
}

// DefaultConfig returns a config matching the stock firmware.
func DefaultConfig() *Config {
	return &Config{
		Macropad: DeviceConfig{
			Transport: TransportHID,
			VendorID:  0xFEED,
			ProductID: 0x9A25,
			UsagePage: 0xFF60,
			Usage:     0x61,
			BaudRate:  115200,
		},
		Keyboard: DeviceConfig{
			Transport: TransportHID,
			VendorID:  0x8968,
			ProductID: 0x4C37,
			UsagePage: 0xFF60,
			Usage:     0x61,
			BaudRate:  115200,
		},
		Link: LinkConfig{
			ReportLength:      32,
			ServiceIntervalMs: 1000,
			ReadTimeoutMs:     1000,
			ListenTimeoutMs:   100,
			ListenYieldMs:     10,
			ReconnectDelayMs:  5000,
			ErrorPauseMs:      5000,
		},
		Relay: RelayConfig{
			RetryDelayMs:   2000,
			Attempts:       3,
			AttemptPauseMs: 1000,
		},
		Probe: ProbeConfig{
			Backend:    "speedtest",
			TimeoutSec: 120,
		},
		Timer: TimerConfig{
			DurationFile: "pomodoro_duration.txt",
			Notify:       true,
		},
		Spotify: SpotifyConfig{
			RedirectURI: "http://127.0.0.1:8888/callback/",
			TokenFile:   "spotify_token.json",
			CacheSec:    10,
			TitleLimit:  20,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Trace: TraceConfig{
			Enabled: false,
			Path:    "traces",
		},
	}
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if the YAML is missing or
// unparsable.
func Load(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Info().Str("component", "config").Str("path", path).Msg("no config file, using defaults")
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Warn().Str("component", "config").Str("path", path).Err(err).Msg("config parse failed, using defaults")
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Info().Str("component", "config").Str("path", path).Msg("config loaded")
	}

	// .env next to the config first, then the CWD; real env wins.
	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

func loadEnvFile(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Warn().Str("component", "config").Str("path", path).Err(err).Msg("read .env")
		return
	}
	log.Debug().Str("component", "config").Str("path", path).Msg(".env loaded")
}

// applyEnvOverrides reads environment variables and overrides config values.
func (c *Config) applyEnvOverrides() {
	c.Macropad.applyEnv("MACROPAD")
	c.Keyboard.applyEnv("KEYBOARD")

	if v := os.Getenv("TIMER_DURATION_FILE"); v != "" {
		c.Timer.DurationFile = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REDIRECT_URI"); v != "" {
		c.Spotify.RedirectURI = v
	}
	if v := os.Getenv("MONITOR_ADDR"); v != "" {
		c.Monitor.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TRACE_ENABLED"); v != "" {
		c.Trace.Enabled = v == "1" || v == "true" || v == "yes"
	}
}

func (d *DeviceConfig) applyEnv(prefix string) {
	if v := os.Getenv(prefix + "_TRANSPORT"); v != "" {
		d.Transport = v
	}
	if v := os.Getenv(prefix + "_VID"); v != "" {
		if id, err := ParseHexID(v); err == nil {
			d.VendorID = id
		}
	}
	if v := os.Getenv(prefix + "_PID"); v != "" {
		if id, err := ParseHexID(v); err == nil {
			d.ProductID = id
		}
	}
	if v := os.Getenv(prefix + "_PORT"); v != "" {
		d.PortPath = v
	}
	if v := os.Getenv(prefix + "_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			d.BaudRate = n
		}
	}
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Link.ReportLength <= 0 {
		errs = append(errs, fmt.Errorf("link.report_length must be positive, got %d", c.Link.ReportLength))
	}
	for name, v := range map[string]int{
		"link.service_interval_ms": c.Link.ServiceIntervalMs,
		"link.read_timeout_ms":     c.Link.ReadTimeoutMs,
		"link.listen_timeout_ms":   c.Link.ListenTimeoutMs,
		"link.listen_yield_ms":     c.Link.ListenYieldMs,
		"link.reconnect_delay_ms":  c.Link.ReconnectDelayMs,
		"relay.attempts":           c.Relay.Attempts,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	switch c.Macropad.Transport {
	case TransportHID, TransportSerial, TransportDemo:
	default:
		errs = append(errs, fmt.Errorf("macropad.transport %q is not one of hid, serial, demo", c.Macropad.Transport))
	}
	switch c.Keyboard.Transport {
	case TransportHID, TransportSerial, TransportDemo, TransportDisabled:
	default:
		errs = append(errs, fmt.Errorf("keyboard.transport %q is not one of hid, serial, demo, disabled", c.Keyboard.Transport))
	}
	switch c.Probe.Backend {
	case "speedtest", "demo":
	default:
		errs = append(errs, fmt.Errorf("probe.backend %q is not one of speedtest, demo", c.Probe.Backend))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		c.path = "macropadd.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o600)
}

// SetPath changes where Save writes.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	c.path = path
	c.mu.Unlock()
}

// ToJSON serializes config for the monitor API. Secrets are omitted.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
