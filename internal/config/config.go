// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the gateway HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint (e.g. :8081). Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// BrokerAPIBaseURL is the brokerage backend base URL (e.g. https://api.broker.example).
	BrokerAPIBaseURL string `mapstructure:"BROKER_API_BASE_URL"`
	// BrokerBranchCode is sent as BranchCode on OTP generation.
	BrokerBranchCode string `mapstructure:"BROKER_BRANCH_CODE"`
	// BrokerAPITimeout is the per-request timeout for backend calls (e.g. "15s").
	BrokerAPITimeout string `mapstructure:"BROKER_API_TIMEOUT"`

	// OTPResendCooldown is how long resend stays disabled after a successful OTP send (e.g. "60s").
	OTPResendCooldown string `mapstructure:"OTP_RESEND_COOLDOWN"`
	// IdentityCheckDebounce is the quiet period before the PAN/name/DOB plausibility check runs (e.g. "800ms").
	IdentityCheckDebounce string `mapstructure:"IDENTITY_CHECK_DEBOUNCE"`
	// IPORetailCap is the retail investment cap in rupees used to derive the lot ceiling.
	IPORetailCap float64 `mapstructure:"IPO_RETAIL_CAP"`

	// DatabaseURL is the Postgres DSN. Empty keeps flows and session values in memory.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SessionTTL bounds how long session values and flows are kept (e.g. "12h").
	SessionTTL string `mapstructure:"SESSION_TTL"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file for gateway access tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "12h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`

	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses. Empty disables the Kafka sink.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for gateway events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the telemetry worker pushes logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// OTLPEndpoint is the OTel collector endpoint. Empty installs no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext OTLP connection.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":8081")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BROKER_API_BASE_URL", "")
	v.SetDefault("BROKER_BRANCH_CODE", "HO")
	v.SetDefault("BROKER_API_TIMEOUT", "15s")
	v.SetDefault("OTP_RESEND_COOLDOWN", "60s")
	v.SetDefault("IDENTITY_CHECK_DEBOUNCE", "800ms")
	v.SetDefault("IPO_RETAIL_CAP", 200000)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("JWT_ISSUER", "brokerage-gateway")
	v.SetDefault("JWT_AUDIENCE", "brokerage-web")
	v.SetDefault("JWT_ACCESS_TTL", "12h")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "gateway-events")
	v.SetDefault("KAFKA_GROUP_ID", "gateway-events-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.IPORetailCap < 0 {
		return nil, errors.New("config: IPO_RETAIL_CAP must not be negative")
	}
	if (cfg.JWTPrivateKey == "") != (cfg.JWTPublicKey == "") {
		return nil, errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}
	if cfg.Env == "production" && cfg.BrokerAPIBaseURL == "" {
		return nil, errors.New("config: BROKER_API_BASE_URL must be set when APP_ENV=production")
	}

	return &cfg, nil
}

// APITimeout parses BrokerAPITimeout. Returns 15s if unset or invalid.
func (c *Config) APITimeout() time.Duration {
	return parseDuration(c.BrokerAPITimeout, 15*time.Second)
}

// ResendCooldown parses OTPResendCooldown. Returns 60s if unset or invalid.
func (c *Config) ResendCooldown() time.Duration {
	return parseDuration(c.OTPResendCooldown, 60*time.Second)
}

// IdentityDebounce parses IdentityCheckDebounce. Returns 800ms if unset or invalid.
func (c *Config) IdentityDebounce() time.Duration {
	return parseDuration(c.IdentityCheckDebounce, 800*time.Millisecond)
}

// SessionLifetime parses SessionTTL. Returns 12h if unset or invalid.
func (c *Config) SessionLifetime() time.Duration {
	return parseDuration(c.SessionTTL, 12*time.Hour)
}

// AccessTTL parses JWTAccessTTL. Returns 12h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 12*time.Hour)
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the Kafka sink is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
