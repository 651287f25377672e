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

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

// ProviderCredentials holds per-vendor VOIP settings. A vendor with empty
// credentials is treated as unconfigured and fails fast when selected.
type ProviderCredentials struct {
	// Daily
	DailyAPIKey        string `yaml:"dailyAPIKey"`
	DailyBaseURL       string `yaml:"dailyBaseURL"`
	DailyWebhookSecret string `yaml:"dailyWebhookSecret"`
	// LiveKit
	LiveKitAPIKey        string `yaml:"livekitAPIKey"`
	LiveKitAPISecret     string `yaml:"livekitAPISecret"`
	LiveKitWebhookSecret string `yaml:"livekitWebhookSecret"`
	// Agora
	AgoraAppID        string `yaml:"agoraAppID"`
	AgoraAppCert      string `yaml:"agoraAppCert"`
	AgoraWebhookToken string `yaml:"agoraWebhookToken"`
	// Twilio
	TwilioAccountSID string `yaml:"twilioAccountSID"`
	TwilioAuthToken  string `yaml:"twilioAuthToken"`
	TwilioAPIKey     string `yaml:"twilioAPIKey"`
	TwilioAPISecret  string `yaml:"twilioAPISecret"`
	TwilioBaseURL    string `yaml:"twilioBaseURL"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	SessionTTL string `yaml:"sessionTTL"`
	CronSecret string `yaml:"cronSecret"`

	DefaultProvider string              `yaml:"defaultProvider"`
	Providers       ProviderCredentials `yaml:"providers"`

	AMQPURL      string `yaml:"amqpURL"`
	AMQPExchange string `yaml:"amqpExchange"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	AuthRateLimitPerMinute    int      `yaml:"authRateLimitPerMinute"`
	MatchRateLimitPerMinute   int      `yaml:"matchRateLimitPerMinute"`
	WebhookRateLimitPerMinute int      `yaml:"webhookRateLimitPerMinute"`
	TrustedProxyCIDRs         []string `yaml:"trustedProxyCidrs"`
}

// Load reads config from path (defaults to config.yaml) with env overrides
// for secrets and connection strings.
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
	applyEnvOverrides(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *FileConfig) {
	setString := func(dst *string, env string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.CronSecret, "CRON_SECRET")
	setString(&cfg.AMQPURL, "AMQP_URL")
	setString(&cfg.DefaultProvider, "VOIP_PROVIDER")
	setString(&cfg.Providers.DailyAPIKey, "DAILY_API_KEY")
	setString(&cfg.Providers.DailyWebhookSecret, "DAILY_WEBHOOK_SECRET")
	setString(&cfg.Providers.LiveKitAPIKey, "LIVEKIT_API_KEY")
	setString(&cfg.Providers.LiveKitAPISecret, "LIVEKIT_API_SECRET")
	setString(&cfg.Providers.LiveKitWebhookSecret, "LIVEKIT_WEBHOOK_SECRET")
	setString(&cfg.Providers.AgoraAppID, "AGORA_APP_ID")
	setString(&cfg.Providers.AgoraAppCert, "AGORA_APP_CERTIFICATE")
	setString(&cfg.Providers.AgoraWebhookToken, "AGORA_WEBHOOK_TOKEN")
	setString(&cfg.Providers.TwilioAccountSID, "TWILIO_ACCOUNT_SID")
	setString(&cfg.Providers.TwilioAuthToken, "TWILIO_AUTH_TOKEN")
	setString(&cfg.Providers.TwilioAPIKey, "TWILIO_API_KEY")
	setString(&cfg.Providers.TwilioAPISecret, "TWILIO_API_SECRET")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	if v := strings.TrimSpace(os.Getenv("MINIO_USE_SSL")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = b
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.CronSecret == "" {
		return errors.New("config: cronSecret is required (set in config.yaml or CRON_SECRET)")
	}
	if cfg.SessionTTL != "" {
		if _, err := time.ParseDuration(cfg.SessionTTL); err != nil {
			return fmt.Errorf("config: invalid sessionTTL %q: %w", cfg.SessionTTL, err)
		}
	}
	return nil
}

// ParseSessionTTL converts the configured TTL, defaulting to 24h.
func ParseSessionTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse sessionTTL: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("sessionTTL must be positive")
	}
	return d, nil
}
