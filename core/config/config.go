package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App       AppConfig
	Paths     PathsConfig
	Database  DatabaseConfig
	Valkey    ValkeyConfig
	Dispatch  DispatchConfig
	Governor  GovernorConfig
	Reaper    ReaperConfig
	Messaging MessagingConfig
	Sink      SinkConfig
	Inbound   InboundConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	TrustedProxies     []string
	CorsAllowedOrigins []string
	ServerID           string
}

type PathsConfig struct {
	Storages string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string // File path for SQLite, DB Name for Postgres
	URL      string // Full DSN (DATABASE_URL), wins over the discrete fields
}

type ValkeyConfig struct {
	Enabled   bool
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

type DispatchConfig struct {
	Enabled         bool
	Interval        time.Duration
	BatchSize       int
	AttemptCooldown time.Duration
	LockTTL         time.Duration
}

// GovernorConfig are the env defaults; operators override them through runtime settings.
type GovernorConfig struct {
	Mode         string
	HourlyLimit  int
	DailyLimit   int
	MinDelay     time.Duration
	MaxDelay     time.Duration
	BusinessDays string
	StartHour    int
	EndHour      int
	Timezone     string
	Categories   []string
	Cities       []string
}

type ReaperConfig struct {
	Interval  time.Duration
	Threshold time.Duration
}

const (
	BackendWAHA      = "waha"
	BackendCloudAPI  = "cloudapi"
	BackendWhatsmeow = "whatsmeow"
)

type MessagingConfig struct {
	Backend     string
	MaxAttempts int
	BaseBackoff time.Duration
	MaxWait     time.Duration
	SendTimeout time.Duration
	WAHA        WAHAConfig
	CloudAPI    CloudAPIConfig
	Whatsmeow   WhatsmeowConfig
}

type WAHAConfig struct {
	URL     string
	APIKey  string
	Session string
}

type CloudAPIConfig struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
	BusinessID    string
	UseTemplates  bool
}

type WhatsmeowConfig struct {
	DBURI    string
	LogLevel string
}

type SinkConfig struct {
	URL         string
	APIKey      string
	MaxAttempts int
	BaseBackoff time.Duration
	Timeout     time.Duration
}

type InboundConfig struct {
	VerifyToken string
	Workers     int
	QueueSize   int
}

// Global provides access to the loaded configuration globally
var Global *Config

// LoadConfig reads configuration from the environment (and .env, loaded by the caller).
func LoadConfig() (*Config, error) {
	storages := getEnv("APP_BASE_DIR", "storages")

	var basicAuth []string
	if v := getEnv("APP_BASIC_AUTH", ""); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v1.0.0",
		Port:               getEnv("APP_PORT", getEnv("PORT", "3000")),
		Debug:              getEnvBool("APP_DEBUG", false),
		Environment:        getEnv("APP_ENV", "development"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		CorsAllowedOrigins: getEnvList("APP_CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		TrustedProxies:     getEnvList("APP_TRUSTED_PROXIES", nil),
		ServerID:           getEnv("SERVER_ID", ""),
	}

	dbCfg := DatabaseConfig{
		Driver:   getEnv("DB_DRIVER", "sqlite"),
		Name:     getEnv("DB_NAME", filepath.Join(storages, "prospector.db")),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		URL:      getEnv("DATABASE_URL", ""),
	}
	if strings.HasPrefix(dbCfg.URL, "postgres") {
		dbCfg.Driver = "postgres"
	}

	valkeyCfg := ValkeyConfig{
		Enabled:   getEnvBool("VALKEY_ENABLED", false),
		Address:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		Password:  getEnv("VALKEY_PASSWORD", ""),
		DB:        getEnvInt("VALKEY_DB", 0),
		KeyPrefix: getEnv("VALKEY_KEY_PREFIX", "prospector:"),
	}

	dispatchCfg := DispatchConfig{
		Enabled:         getEnvBool("DISPATCH_ENABLED", true),
		Interval:        getEnvDuration("DISPATCH_INTERVAL", 5*time.Minute),
		BatchSize:       getEnvInt("DISPATCH_BATCH_SIZE", 10),
		AttemptCooldown: getEnvDuration("DISPATCH_ATTEMPT_COOLDOWN", 30*time.Minute),
		LockTTL:         getEnvDuration("DISPATCH_LOCK_TTL", 2*time.Hour),
	}
	if dispatchCfg.BatchSize <= 0 || dispatchCfg.BatchSize > 10 {
		dispatchCfg.BatchSize = 10
	}

	governorCfg := GovernorConfig{
		Mode:         strings.ToLower(getEnv("PROSPECTOR_MODE", "zappy")),
		HourlyLimit:  getEnvInt("DISPATCH_HOURLY_LIMIT", 20),
		DailyLimit:   getEnvInt("DISPATCH_DAILY_LIMIT", 100),
		MinDelay:     getEnvDuration("MESSAGE_DELAY_MIN", 30*time.Second),
		MaxDelay:     getEnvDuration("MESSAGE_DELAY_MAX", 90*time.Second),
		BusinessDays: getEnv("BUSINESS_DAYS", "1-6"),
		StartHour:    getEnvInt("BUSINESS_START_HOUR", 9),
		EndHour:      getEnvInt("BUSINESS_END_HOUR", 18),
		Timezone:     getEnv("BUSINESS_TIMEZONE", "America/Sao_Paulo"),
		Categories:   getEnvList("SCRAPE_CATEGORIES", nil),
		Cities:       getEnvList("SCRAPE_CITIES", nil),
	}
	if governorCfg.Mode != "zappy" && governorCfg.Mode != "lojaky" {
		return nil, fmt.Errorf("PROSPECTOR_MODE must be 'zappy' or 'lojaky', got %q", governorCfg.Mode)
	}

	messagingCfg := MessagingConfig{
		Backend:     strings.ToLower(getEnv("MESSAGING_BACKEND", "")),
		MaxAttempts: getEnvInt("MESSAGING_MAX_ATTEMPTS", 3),
		BaseBackoff: getEnvDuration("MESSAGING_BACKOFF", 2*time.Second),
		MaxWait:     getEnvDuration("MESSAGING_MAX_WAIT", 60*time.Second),
		SendTimeout: getEnvDuration("MESSAGING_TIMEOUT", 15*time.Second),
		WAHA: WAHAConfig{
			URL:     strings.TrimRight(getEnv("WAHA_API_URL", ""), "/"),
			APIKey:  getEnv("WAHA_API_KEY", ""),
			Session: getEnv("WAHA_SESSION", "default"),
		},
		CloudAPI: CloudAPIConfig{
			BaseURL:       strings.TrimRight(getEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v21.0"), "/"),
			Token:         getEnv("WHATSAPP_TOKEN", ""),
			PhoneNumberID: getEnv("WHATSAPP_PHONE_ID", ""),
			BusinessID:    getEnv("WHATSAPP_BUSINESS_ID", ""),
			UseTemplates:  getEnvBool("WHATSAPP_USE_TEMPLATES", true),
		},
		Whatsmeow: WhatsmeowConfig{
			DBURI:    getEnv("WHATSMEOW_DB_URI", fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(storages, "whatsapp.db"))),
			LogLevel: getEnv("WHATSAPP_LOG_LEVEL", "ERROR"),
		},
	}
	if messagingCfg.Backend == "" {
		switch {
		case messagingCfg.WAHA.URL != "":
			messagingCfg.Backend = BackendWAHA
		case messagingCfg.CloudAPI.Token != "":
			messagingCfg.Backend = BackendCloudAPI
		default:
			messagingCfg.Backend = BackendWhatsmeow
		}
	}

	cfg := &Config{
		App:      appCfg,
		Paths:    PathsConfig{Storages: storages},
		Database: dbCfg,
		Valkey:   valkeyCfg,
		Dispatch: dispatchCfg,
		Governor: governorCfg,
		Reaper: ReaperConfig{
			Interval:  getEnvDuration("REAPER_INTERVAL", 2*time.Hour),
			Threshold: getEnvDuration("REAPER_THRESHOLD", 48*time.Hour),
		},
		Messaging: messagingCfg,
		Sink: SinkConfig{
			URL:         getEnv("N8N_WEBHOOK_URL", ""),
			APIKey:      getEnv("N8N_WEBHOOK_API_KEY", ""),
			MaxAttempts: getEnvInt("WEBHOOK_MAX_ATTEMPTS", 3),
			BaseBackoff: getEnvDuration("WEBHOOK_BACKOFF", 2*time.Second),
			Timeout:     getEnvDuration("WEBHOOK_TIMEOUT", 30*time.Second),
		},
		Inbound: InboundConfig{
			VerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
			Workers:     getEnvInt("INBOUND_WORKERS", 4),
			QueueSize:   getEnvInt("INBOUND_QUEUE_SIZE", 500),
		},
	}

	Global = cfg
	return cfg, nil
}
