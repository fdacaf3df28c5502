package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Polling  PollingConfig  `yaml:"polling"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents the device listener configuration
type ServerConfig struct {
	Name                string        `yaml:"name"`
	Host                string        `yaml:"host"`
	Port                int           `yaml:"port"`
	RegistrationTimeout time.Duration `yaml:"registration_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	KeepAlive           time.Duration `yaml:"keep_alive"`
}

// Addr returns host:port for the listener
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PollingConfig controls the session polling loop
type PollingConfig struct {
	HistoryInterval  int           `yaml:"history_interval"`
	KeepaliveDelay   time.Duration `yaml:"keepalive_delay"`
	CommandIdleDelay time.Duration `yaml:"command_idle_delay"`
	// AddressOverride replaces the logical address reported at registration
	// when non-zero. Older meters answer only on address 18.
	AddressOverride uint32 `yaml:"address_override"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Enabled     bool       `yaml:"enabled"`
	Host        string     `yaml:"host"`
	Port        int        `yaml:"port"`
	CORSOrigins []string   `yaml:"cors_origins"`
	Operators   []Operator `yaml:"operators"`
}

// Addr returns host:port for the API server
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Operator is an API account. PasswordHash is a bcrypt hash.
type Operator struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	Channel    string `yaml:"channel"`
	HistoryLen int64  `yaml:"history_len"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	Enabled           bool          `yaml:"enabled"`
	URL               string        `yaml:"url"`
	ClientID          string        `yaml:"client_id"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// MQTTConfig represents the MQTT forwarder configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, applies defaults and environment overrides, and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.setDefaults()

	// Apply environment overrides
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

// setDefaults fills zero values
func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "gprs-puller"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8777
	}
	if c.Server.RegistrationTimeout == 0 {
		c.Server.RegistrationTimeout = 30 * time.Second
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.KeepAlive == 0 {
		c.Server.KeepAlive = 3 * time.Minute
	}

	if c.Polling.HistoryInterval == 0 {
		c.Polling.HistoryInterval = 1
	}
	if c.Polling.KeepaliveDelay == 0 {
		c.Polling.KeepaliveDelay = 55 * time.Second
	}
	if c.Polling.CommandIdleDelay == 0 {
		c.Polling.CommandIdleDelay = time.Second
	}

	if c.API.Port == 0 {
		c.API.Port = 8778
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}

	if c.Redis.Channel == "" {
		c.Redis.Channel = "puller:telemetry"
	}
	if c.Redis.HistoryLen == 0 {
		c.Redis.HistoryLen = 100
	}

	if c.NATS.ClientID == "" {
		c.NATS.ClientID = c.Server.Name
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "puller"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.Server.Name
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "puller"
	}

	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = time.Hour
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() error {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		c.Redis.Addr = redisAddr
		c.Redis.Enabled = true
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
		c.NATS.Enabled = true
	}

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
		c.MQTT.Enabled = true
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if port := os.Getenv("PULLER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PULLER_PORT %q: %w", port, err)
		}
		c.Server.Port = p
	}

	return nil
}

// Validate checks values that defaults cannot repair
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Polling.HistoryInterval {
	case 1, 10, 60:
	default:
		return fmt.Errorf("invalid history interval: %d (want 1, 10 or 60)", c.Polling.HistoryInterval)
	}

	if c.Polling.KeepaliveDelay > time.Minute {
		return fmt.Errorf("keepalive delay %s exceeds one minute", c.Polling.KeepaliveDelay)
	}

	if c.Polling.AddressOverride > 0xFF {
		return fmt.Errorf("address override %d does not fit in one byte", c.Polling.AddressOverride)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}

	if c.API.Enabled && c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required when the API is enabled")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats url is required when nats is enabled")
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos: %d", c.MQTT.QoS)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// PrintConfigSummary prints the effective configuration without secrets
func (c *Config) PrintConfigSummary() {
	fmt.Printf("=== GPRS Puller Configuration ===\n")
	fmt.Printf("Server: %s listening on %s\n", c.Server.Name, c.Server.Addr())
	fmt.Printf("Registration timeout: %s, read timeout: %s, write timeout: %s\n",
		c.Server.RegistrationTimeout, c.Server.ReadTimeout, c.Server.WriteTimeout)
	fmt.Printf("Polling: history interval %d min, keepalive %s, command idle %s\n",
		c.Polling.HistoryInterval, c.Polling.KeepaliveDelay, c.Polling.CommandIdleDelay)
	if c.Polling.AddressOverride != 0 {
		fmt.Printf("Address override: %d\n", c.Polling.AddressOverride)
	}
	fmt.Printf("API: enabled=%v addr=%s operators=%d\n", c.API.Enabled, c.API.Addr(), len(c.API.Operators))
	fmt.Printf("NATS: enabled=%v url=%s prefix=%s\n", c.NATS.Enabled, c.NATS.URL, c.NATS.SubjectPrefix)
	fmt.Printf("MQTT: enabled=%v broker=%s prefix=%s\n", c.MQTT.Enabled, c.MQTT.Broker, c.MQTT.TopicPrefix)
	fmt.Printf("Redis: enabled=%v addr=%s channel=%s\n", c.Redis.Enabled, c.Redis.Addr, c.Redis.Channel)
	fmt.Printf("Log: level=%s format=%s\n", c.Log.Level, c.Log.Format)
	fmt.Printf("=================================\n")
}
