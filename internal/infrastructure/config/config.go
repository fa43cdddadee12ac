package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Discovery.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	SSDP      SSDPConfig      `yaml:"ssdp"`
	DLNA      DLNAConfig      `yaml:"dlna"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// SSDPConfig contains SSDP scanner settings.
type SSDPConfig struct {
	// ScanInterval is how often the periodic M-SEARCH runs (seconds).
	ScanInterval int `yaml:"scan_interval"`

	// SearchMX is the MX value sent in M-SEARCH requests: the maximum
	// random delay (seconds) devices may wait before responding.
	SearchMX int `yaml:"search_mx"`

	// MaxAge is the fallback advertisement lifetime (seconds) used when a
	// device omits the CACHE-CONTROL header.
	MaxAge int `yaml:"max_age"`

	// DescriptionTimeout is the HTTP timeout for fetching UPnP device
	// description documents (seconds).
	DescriptionTimeout int `yaml:"description_timeout"`
}

// DLNAConfig contains DLNA media-server settings.
type DLNAConfig struct {
	// RetryInterval is the minimum time (seconds) between connection
	// attempts to a server whose last connect failed. Zero disables
	// time-based retry: a failed server is only retried after a detected
	// reboot or a byebye/alive cycle.
	RetryInterval int `yaml:"retry_interval"`

	// RequestTimeout is the HTTP timeout for UPnP action calls (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	// Servers lists the configured media servers. This list seeds the
	// registry on startup; entries are persisted to the database.
	Servers []DLNAServerConfig `yaml:"servers"`
}

// DLNAServerConfig describes one configured DLNA media server entry.
type DLNAServerConfig struct {
	// ID is the stable entry identifier. Generated if empty.
	ID string `yaml:"id"`

	// Name is the display name; also the basis for the source_id slug.
	Name string `yaml:"name"`

	// USN is the Unique Service Name of the ContentDirectory endpoint.
	USN string `yaml:"usn"`

	// URL is the last known device-description location.
	URL string `yaml:"url"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings. Enabled defaults to true; turning
// it off is an explicit opt-out for deployments behind the site's internal
// network boundary.
type JWTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads the YAML file at path over the built-in defaults, applies
// GRAYLOGIC_* environment overrides (e.g. GRAYLOGIC_DATABASE_PATH,
// GRAYLOGIC_MQTT_HOST), and validates the result.
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
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/discovery.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-discovery",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		SSDP: SSDPConfig{
			ScanInterval:       120,
			SearchMX:           3,
			MaxAge:             1800,
			DescriptionTimeout: 10,
		},
		DLNA: DLNAConfig{
			RetryInterval:  0,
			RequestTimeout: 10,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8091,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
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
				Enabled:        true,
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.SSDP.ScanInterval < 1 {
		errs = append(errs, "ssdp.scan_interval must be at least 1 second")
	}
	// UPnP Device Architecture 1.1 limits MX to 1..5
	if c.SSDP.SearchMX < 1 || c.SSDP.SearchMX > 5 {
		errs = append(errs, "ssdp.search_mx must be between 1 and 5")
	}

	for i, srv := range c.DLNA.Servers {
		if srv.USN == "" {
			errs = append(errs, fmt.Sprintf("dlna.servers[%d].usn is required", i))
		}
		if srv.Name == "" {
			errs = append(errs, fmt.Sprintf("dlna.servers[%d].name is required", i))
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Discovery exposes browse access to media servers on the local network;
	// an empty or weak secret would allow forged tokens. Running without
	// auth requires disabling it explicitly.
	const minJWTSecretLength = 32
	if c.Security.JWT.Enabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET environment variable, or disable security.jwt)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ScanInterval returns the SSDP scan interval as a Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.SSDP.ScanInterval) * time.Second
}

// DescriptionTimeout returns the description fetch timeout as a Duration.
func (c *Config) DescriptionTimeout() time.Duration {
	return time.Duration(c.SSDP.DescriptionTimeout) * time.Second
}

// DLNARetryInterval returns the failed-connect retry interval as a Duration.
// Zero means time-based retry is disabled.
func (c *Config) DLNARetryInterval() time.Duration {
	return time.Duration(c.DLNA.RetryInterval) * time.Second
}

// DLNARequestTimeout returns the UPnP action timeout as a Duration.
func (c *Config) DLNARequestTimeout() time.Duration {
	return time.Duration(c.DLNA.RequestTimeout) * time.Second
}
