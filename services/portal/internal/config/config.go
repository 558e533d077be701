package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Session slot kinds used by the CLI.
const (
	SlotFile  = "file"
	SlotRedis = "redis"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string   `yaml:"port"`
	LogLevel                string   `yaml:"logLevel"`
	StoreDriver             string   `yaml:"storeDriver"`
	DatabaseURL             string   `yaml:"databaseURL"`
	JWTSecret               string   `yaml:"jwtSecret"`
	JWTIssuer               string   `yaml:"jwtIssuer"`
	JWTAudience             string   `yaml:"jwtAudience"`
	SessionTTL              string   `yaml:"sessionTTL"`
	JWTLeeway               string   `yaml:"jwtLeeway"`
	RevocationPrefix        string   `yaml:"revocationPrefix"`
	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	LoginRateLimitPerMinute int      `yaml:"loginRateLimitPerMinute"`
	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`
	AllowedOrigins          []string `yaml:"allowedOrigins"`
	AMQPURL                 string   `yaml:"amqpURL"`
	AMQPExchange            string   `yaml:"amqpExchange"`
	MaxImages               int      `yaml:"maxImages"`
	MaxGalleryBytes         int64    `yaml:"maxGalleryBytes"`
	MaxUploadBytes          int64    `yaml:"maxUploadBytes"`
	SessionSlot             string   `yaml:"sessionSlot"`
	SessionFile             string   `yaml:"sessionFile"`
	SessionKey              string   `yaml:"sessionKey"`
}

// Load reads config from path (defaults to config.yaml), applies env overrides
// and validates the settings shared by the server and the CLI.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString("PORTAL_PORT", &cfg.Port)
	setString("PORTAL_LOG_LEVEL", &cfg.LogLevel)
	setString("PORTAL_STORE_DRIVER", &cfg.StoreDriver)
	setString("DATABASE_URL", &cfg.DatabaseURL)
	setString("JWT_SECRET", &cfg.JWTSecret)
	setString("JWT_ISSUER", &cfg.JWTIssuer)
	setString("JWT_AUDIENCE", &cfg.JWTAudience)
	setString("PORTAL_SESSION_TTL", &cfg.SessionTTL)
	setString("JWT_LEEWAY", &cfg.JWTLeeway)
	setString("PORTAL_REVOCATION_PREFIX", &cfg.RevocationPrefix)
	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)
	setString("AMQP_URL", &cfg.AMQPURL)
	setString("PORTAL_AMQP_EXCHANGE", &cfg.AMQPExchange)
	setString("PORTAL_SESSION_SLOT", &cfg.SessionSlot)
	setString("PORTAL_SESSION_FILE", &cfg.SessionFile)
	setString("PORTAL_SESSION_KEY", &cfg.SessionKey)
	if v := os.Getenv("PORTAL_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("PORTAL_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("PORTAL_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("PORTAL_MAX_IMAGES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.MaxImages = n
		}
	}
	if v := os.Getenv("PORTAL_MAX_GALLERY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxGalleryBytes = n
		}
	}
	if v := os.Getenv("PORTAL_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StorePostgres
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = "24h"
	}
	if cfg.LoginRateLimitPerMinute == 0 {
		cfg.LoginRateLimitPerMinute = 10
	}
	if cfg.AMQPExchange == "" {
		cfg.AMQPExchange = "campuscanvas.events"
	}
	if cfg.JWTLeeway == "" {
		cfg.JWTLeeway = "30s"
	}
	if cfg.RevocationPrefix == "" {
		cfg.RevocationPrefix = "campuscanvas:portal:revoked:"
	}
	if cfg.SessionSlot == "" {
		cfg.SessionSlot = SlotFile
	}
	if cfg.SessionKey == "" {
		cfg.SessionKey = "campuscanvas:session"
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 8 << 20
	}
}

func validateConfig(cfg FileConfig) error {
	switch cfg.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for the postgres store (set in config.yaml or DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: storeDriver must be %q or %q, got %q", StoreMemory, StorePostgres, cfg.StoreDriver)
	}
	if cfg.MaxImages < 0 || cfg.MaxGalleryBytes < 0 || cfg.MaxUploadBytes < 0 {
		return errors.New("config: media limits must be >= 0")
	}
	if cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: loginRateLimitPerMinute must be >= 0")
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return err
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return err
	}
	switch cfg.SessionSlot {
	case SlotFile:
	case SlotRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when sessionSlot is redis")
		}
	default:
		return fmt.Errorf("config: sessionSlot must be %q or %q, got %q", SlotFile, SlotRedis, cfg.SessionSlot)
	}
	return nil
}

// ValidateServer checks the settings only the HTTP server needs.
func (cfg FileConfig) ValidateServer() error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return errors.New("config: jwtSecret of at least 32 bytes is required (set in config.yaml or JWT_SECRET)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for login rate limiting and token revocation")
	}
	return nil
}

// ParseSessionTTL parses the access token lifetime.
func ParseSessionTTL(ttl string) (time.Duration, error) {
	dur, err := time.ParseDuration(strings.TrimSpace(ttl))
	if err != nil {
		return 0, fmt.Errorf("config: invalid sessionTTL duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("config: sessionTTL must be positive")
	}
	return dur, nil
}

// ParseJWTLeeway parses the clock skew tolerated on token timestamps. A revoked
// token stays on the revocation list for its lifetime plus this leeway.
func ParseJWTLeeway(leeway string) (time.Duration, error) {
	dur, err := time.ParseDuration(strings.TrimSpace(leeway))
	if err != nil {
		return 0, fmt.Errorf("config: invalid jwtLeeway duration: %w", err)
	}
	if dur < 0 || dur > 5*time.Minute {
		return 0, errors.New("config: jwtLeeway must be between 0s and 5m")
	}
	return dur, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
