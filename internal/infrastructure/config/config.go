package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Tuya relay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Cloud     CloudConfig     `yaml:"cloud"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Logging   LoggingConfig   `yaml:"logging"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Database  DatabaseConfig  `yaml:"database"`
}

// ServerConfig contains the HTTP listener settings shared by the WebSocket
// endpoint and the side API.
type ServerConfig struct {
	Host     string              `yaml:"host"`
	Port     int                 `yaml:"port"`
	TLS      TLSConfig           `yaml:"tls"`
	Timeouts ServerTimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ServerTimeoutConfig contains HTTP timeout settings in seconds.
// They apply to plain HTTP requests; upgraded WebSocket connections manage
// their own deadlines via ping/pong.
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket endpoint settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// CloudConfig contains the Tuya OpenAPI credentials and the single target device.
type CloudConfig struct {
	Region    string `yaml:"region"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DeviceID  string `yaml:"device_id"`

	// BaseURL overrides the region-derived endpoint (e.g. for a proxy).
	BaseURL string `yaml:"base_url,omitempty"`

	// Timeout is the HTTP timeout for a single OpenAPI request, in seconds.
	Timeout int `yaml:"timeout"`
}

// CatalogConfig contains the device vocabulary clients may address.
type CatalogConfig struct {
	// Devices maps a logical device name to its Tuya control-point code.
	Devices map[string]string `yaml:"devices"`

	// States is the closed set of state tokens a client may request.
	States []string `yaml:"states"`

	// ActivateState is the token that maps to a boolean true command value.
	ActivateState string `yaml:"activate_state"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`

	// Debug forces debug level regardless of Level.
	Debug bool `yaml:"debug"`
}

// MQTTConfig contains MQTT broker connection settings for event publishing.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite settings for the dispatch audit log.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TUYARELAY_SECTION_KEY
// For example: TUYARELAY_CLOUD_API_SECRET, TUYARELAY_SERVER_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
//
// The catalog defaults describe a two-gang switch: a fan on switch_1 and a
// light on switch_2. A YAML catalog.devices map replaces this map entirely
// rather than merging into it.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8765,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Cloud: CloudConfig{
			Timeout: 10,
		},
		Catalog: CatalogConfig{
			Devices: map[string]string{
				"MainFan":   "switch_1",
				"MainLight": "switch_2",
			},
			States:        []string{"turn_on", "turn_off"},
			ActivateState: "turn_on",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tuyarelay",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "tuyarelay",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/tuyarelay.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
	}
}

// UnmarshalYAML replaces the default device map instead of merging into it,
// so a configured catalog never inherits the built-in example devices.
func (c *CatalogConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain CatalogConfig
	raw := plain(*c)
	raw.Devices = nil
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Devices == nil {
		raw.Devices = c.Devices
	}
	*c = CatalogConfig(raw)
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TUYARELAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Cloud credentials (keep secrets out of the YAML file in production)
	if v := os.Getenv("TUYARELAY_CLOUD_REGION"); v != "" {
		cfg.Cloud.Region = v
	}
	if v := os.Getenv("TUYARELAY_CLOUD_API_KEY"); v != "" {
		cfg.Cloud.APIKey = v
	}
	if v := os.Getenv("TUYARELAY_CLOUD_API_SECRET"); v != "" {
		cfg.Cloud.APISecret = v
	}
	if v := os.Getenv("TUYARELAY_CLOUD_DEVICE_ID"); v != "" {
		cfg.Cloud.DeviceID = v
	}

	// Server
	if v := os.Getenv("TUYARELAY_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TUYARELAY_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Logging
	if v := os.Getenv("TUYARELAY_DEBUG"); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.Debug = debug
		}
	}

	// MQTT
	if v := os.Getenv("TUYARELAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TUYARELAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TUYARELAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("TUYARELAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("TUYARELAY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error { //nolint:gocognit,gocyclo // flat list of independent field checks
	var errs []string

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		errs = append(errs, "server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
	}

	// WebSocket validation
	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, "websocket.max_message_size must be positive")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
	}

	// Cloud validation - the relay is useless without a reachable device
	if c.Cloud.Region == "" && c.Cloud.BaseURL == "" {
		errs = append(errs, "cloud.region or cloud.base_url is required")
	}
	if c.Cloud.APIKey == "" {
		errs = append(errs, "cloud.api_key is required (set TUYARELAY_CLOUD_API_KEY environment variable)")
	}
	if c.Cloud.APISecret == "" {
		errs = append(errs, "cloud.api_secret is required (set TUYARELAY_CLOUD_API_SECRET environment variable)")
	}
	if c.Cloud.DeviceID == "" {
		errs = append(errs, "cloud.device_id is required")
	}
	if c.Cloud.Timeout <= 0 {
		errs = append(errs, "cloud.timeout must be positive")
	}

	// Catalog validation
	if len(c.Catalog.Devices) == 0 {
		errs = append(errs, "catalog.devices must not be empty")
	}
	for name, code := range c.Catalog.Devices {
		if name == "" || code == "" {
			errs = append(errs, "catalog.devices entries need a name and a control point")
			break
		}
	}
	if len(c.Catalog.States) == 0 {
		errs = append(errs, "catalog.states must not be empty")
	} else if !contains(c.Catalog.States, c.Catalog.ActivateState) {
		errs = append(errs, "catalog.activate_state must be one of catalog.states")
	}

	// MQTT validation
	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required when MQTT is enabled")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when InfluxDB is enabled")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the audit database is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Address returns the listen address in host:port form.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetReadTimeout returns the server read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the server write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the server idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}

// GetCloudTimeout returns the per-request OpenAPI timeout as a Duration.
func (c *Config) GetCloudTimeout() time.Duration {
	return time.Duration(c.Cloud.Timeout) * time.Second
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
