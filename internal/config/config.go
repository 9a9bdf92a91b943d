package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "ROLLCALL_"

// Finalize persistence policies
const (
	// PolicyBestEffort clears the session and reports counts even when
	// some attendance writes failed.
	PolicyBestEffort = "best_effort"
	// PolicyStrict keeps the session and reports an error to the teacher
	// when any attendance write failed.
	PolicyStrict = "strict"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database   DatabaseConfig   `yaml:"database" envPrefix:"DATABASE_"`
	HTTP       HTTPConfig       `yaml:"http" envPrefix:"HTTP_"`
	WebSocket  WebSocketConfig  `yaml:"websocket" envPrefix:"WEBSOCKET_"`
	Auth       AuthConfig       `yaml:"auth" envPrefix:"AUTH_"`
	Attendance AttendanceConfig `yaml:"attendance" envPrefix:"ATTENDANCE_"`
}

// FUNCTIONAL DISCOVERY: Database configuration supports SQLite optimizations
type DatabaseConfig struct {
	Path           string        `yaml:"path" env:"PATH" validate:"required"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
	MaxConnections int           `yaml:"max_connections" env:"MAX_CONNECTIONS" validate:"gt=0"`
	// Empty selects the migrations embedded in the binary
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH"`
}

// FUNCTIONAL DISCOVERY: HTTP configuration balances performance and reliability
type HTTPConfig struct {
	Host string `yaml:"host" env:"HOST" validate:"required"`
	// 0 binds an ephemeral port
	Port            int           `yaml:"port" env:"PORT" validate:"min=0,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
type WebSocketConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval" env:"PING_INTERVAL" validate:"gt=0"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" validate:"gt=0,gtfield=PingInterval"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gt=0"`
	BufferSize     int           `yaml:"buffer_size" env:"BUFFER_SIZE" validate:"gt=0"`
	MaxMessageSize int64         `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE" validate:"gt=0"`
}

// AuthConfig holds the bearer token settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" validate:"required,min=16"`
	// TokenTTL is the lifetime of tokens issued at login; 0 never expires
	TokenTTL     time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" validate:"min=0"`
	PasswordCost int           `yaml:"password_cost" env:"PASSWORD_COST" validate:"min=4,max=31"`
}

// AttendanceConfig tunes the live session core.
type AttendanceConfig struct {
	FinalizePolicy     string `yaml:"finalize_policy" env:"FINALIZE_POLICY" validate:"oneof=best_effort strict"`
	PersistConcurrency int    `yaml:"persist_concurrency" env:"PERSIST_CONCURRENCY" validate:"min=1,max=64"`
	// EventTimeout bounds one inbound event, finalize writes included
	EventTimeout time.Duration `yaml:"event_timeout" env:"EVENT_TIMEOUT" validate:"gt=0"`
	// RateLimitPerMinute caps inbound events per user; 0 disables the limiter
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE" validate:"min=0"`
}

// FUNCTIONAL DISCOVERY: Production-ready defaults based on classroom requirements
// Database on local filesystem, HTTP on standard port, WebSocket with 30s heartbeat.
// The JWT secret has no default and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:           "./data/rollcall.db",
			Timeout:        30 * time.Second,
			MaxConnections: 10,
		},
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     100,
			MaxMessageSize: 8192,
		},
		Auth: AuthConfig{
			TokenTTL:     24 * time.Hour,
			PasswordCost: 10,
		},
		Attendance: AttendanceConfig{
			FinalizePolicy:     PolicyBestEffort,
			PersistConcurrency: 4,
			EventTimeout:       30 * time.Second,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports the first invalid setting by its YAML-ish path.
// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
		if fe.Param() != "" {
			return fmt.Errorf("%s failed %s=%s", field, fe.Tag(), fe.Param())
		}
		return fmt.Errorf("%s failed %s", field, fe.Tag())
	}
	return err
}

// LoadFromEnv overlays ROLLCALL_* environment variables onto config.
// Unset variables leave the current values untouched.
func LoadFromEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// LoadFromFile overlays a YAML file onto config. Keys absent from the file
// keep their current values; unknown keys are rejected.
func LoadFromFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	// TECHNICAL DISCOVERY: yaml.v3 parses "30s" style strings into time.Duration
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadConfigWithPrecedence builds the runtime configuration.
// FUNCTIONAL DISCOVERY: Configuration precedence: defaults < file < environment,
// so a deployment can override a checked-in file without editing it
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		if err := LoadFromFile(config, path); err != nil {
			return nil, err
		}
	}

	if err := LoadFromEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
