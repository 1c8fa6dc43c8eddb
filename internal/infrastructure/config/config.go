package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the AC bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Learn     LearnConfig     `yaml:"learn"`
}

// BridgeConfig contains settings for the MQTT-facing AC bridge.
type BridgeConfig struct {
	// ID identifies this bridge instance in status messages.
	ID string `yaml:"id"`

	// DevicesFile is the YAML file holding device profiles and recorded IR codes.
	DevicesFile string `yaml:"devices_file"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Intervals IntervalsConfig `yaml:"intervals"`
}

// DiscoveryConfig controls Home Assistant MQTT discovery.
type DiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

// IntervalsConfig holds the periodic republish intervals, in seconds.
type IntervalsConfig struct {
	Availability int `yaml:"availability"`
	State        int `yaml:"state"`
	Discovery    int `yaml:"discovery"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetentionDays prunes state history older than this on startup.
	// Zero keeps history forever.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	// Enabled turns on authentication for the protected API routes.
	Enabled bool      `yaml:"enabled"`
	JWT     JWTConfig `yaml:"jwt"`

	// APIKeys holds argon2id PHC hashes of accepted API keys.
	APIKeys []string `yaml:"api_keys"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// LearnConfig contains IR learning settings.
type LearnConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Load builds the configuration in three layers: built-in defaults, then
// the YAML file at path, then ACBRIDGE_* environment variables. The result
// is validated before it is returned.
//
// Parameters:
//   - path: config.yaml location (ACBRIDGE_CONFIG in the binaries)
//
// Returns:
//   - *Config: ready to use
//   - error: unreadable file, bad YAML, or every validation problem found
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig is what Load starts from before reading the file.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:          "acbridge-001",
			DevicesFile: "./data/devices.yaml",
			Discovery: DiscoveryConfig{
				Enabled: true,
				Prefix:  "homeassistant",
			},
			Intervals: IntervalsConfig{
				Availability: 30,
				State:        60,
				Discovery:    60,
			},
		},
		Database: DatabaseConfig{
			Path:                 "./data/acbridge.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "acbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		Learn: LearnConfig{
			TimeoutSeconds: 30,
		},
	}
}

// envOverrides maps environment variables onto fields. Secrets such as
// the JWT secret and the InfluxDB token are expected to arrive this way.
var envOverrides = []struct {
	name  string
	apply func(c *Config, v string)
}{
	{"ACBRIDGE_DEVICES_FILE", func(c *Config, v string) { c.Bridge.DevicesFile = v }},
	{"ACBRIDGE_DATABASE_PATH", func(c *Config, v string) { c.Database.Path = v }},
	{"ACBRIDGE_MQTT_HOST", func(c *Config, v string) { c.MQTT.Broker.Host = v }},
	{"ACBRIDGE_MQTT_PORT", func(c *Config, v string) {
		// malformed ports are ignored
		if port, err := strconv.Atoi(v); err == nil {
			c.MQTT.Broker.Port = port
		}
	}},
	{"ACBRIDGE_MQTT_USERNAME", func(c *Config, v string) { c.MQTT.Auth.Username = v }},
	{"ACBRIDGE_MQTT_PASSWORD", func(c *Config, v string) { c.MQTT.Auth.Password = v }},
	{"ACBRIDGE_API_HOST", func(c *Config, v string) { c.API.Host = v }},
	{"ACBRIDGE_INFLUXDB_TOKEN", func(c *Config, v string) { c.InfluxDB.Token = v }},
	{"ACBRIDGE_JWT_SECRET", func(c *Config, v string) { c.Security.JWT.Secret = v }},
}

// applyEnvOverrides applies every non-empty variable in envOverrides.
func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}
}

// minJWTSecretLength matches auth.MinSecretLength.
const minJWTSecretLength = 32

// Validate reports every problem at once, joined with "; ".
func (c *Config) Validate() error {
	var p problems

	p.check(c.Bridge.ID != "", "bridge.id is required")
	p.check(c.Bridge.DevicesFile != "", "bridge.devices_file is required")
	p.check(!c.Bridge.Discovery.Enabled || c.Bridge.Discovery.Prefix != "",
		"bridge.discovery.prefix is required when discovery is enabled")
	iv := c.Bridge.Intervals
	p.check(iv.Availability > 0 && iv.State > 0 && iv.Discovery > 0, "bridge.intervals must all be positive")

	p.check(c.Database.Path != "", "database.path is required")

	p.check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	p.check(c.MQTT.Broker.Host != "", "mqtt.broker.host is required")

	p.check(!c.API.Enabled || (c.API.Port >= 1 && c.API.Port <= 65535), "api.port must be between 1 and 65535")

	if sec := c.Security; sec.Enabled {
		p.check(sec.JWT.Secret != "" || len(sec.APIKeys) > 0,
			"security requires security.jwt.secret or security.api_keys (set ACBRIDGE_JWT_SECRET)")
		p.check(sec.JWT.Secret == "" || len(sec.JWT.Secret) >= minJWTSecretLength,
			fmt.Sprintf("security.jwt.secret must be at least %d characters", minJWTSecretLength))
	}

	p.check(c.Learn.TimeoutSeconds > 0, "learn.timeout_seconds must be positive")

	return p.err()
}

type problems []string

func (p *problems) check(ok bool, msg string) {
	if !ok {
		*p = append(*p, msg)
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("configuration errors: %s", strings.Join(p, "; "))
}

// ReadTimeout is api.timeouts.read as a Duration.
func (a APIConfig) ReadTimeout() time.Duration { return Interval(a.Timeouts.Read) }

// WriteTimeout is api.timeouts.write as a Duration.
func (a APIConfig) WriteTimeout() time.Duration { return Interval(a.Timeouts.Write) }

// IdleTimeout is api.timeouts.idle as a Duration.
func (a APIConfig) IdleTimeout() time.Duration { return Interval(a.Timeouts.Idle) }

// GetLearnTimeout returns how long learn waits for a remote press.
func (c *Config) GetLearnTimeout() time.Duration {
	return Interval(c.Learn.TimeoutSeconds)
}

// GetHistoryRetention returns the state history retention window.
// Zero means history is never pruned.
func (c *Config) GetHistoryRetention() time.Duration {
	return time.Duration(c.Database.HistoryRetentionDays) * 24 * time.Hour
}

// Interval converts a seconds setting to a Duration.
func Interval(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
