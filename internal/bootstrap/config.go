package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration. It merges file values and
// environment overrides over the defaults.
type Config struct {
	ServiceID string
	HTTPPort  int

	DatabaseURL string
	MaxDBConns  int32
	RedisURL    string
	SeedFile    string

	KafkaBrokers []string
	KafkaTopic   string

	YouTubeAPIKey string

	AdminEmails []string
	JWTSecret   string

	StorageBaseURL string

	LiveInterval            time.Duration
	RecentlyOfflineInterval time.Duration
	LongOfflineInterval     time.Duration
	RecentlyLiveWindow      time.Duration
	MaxConcurrency          int
	ResolveTimeout          time.Duration

	LiveTTL         time.Duration
	OfflineTTL      time.Duration
	CacheMaxEntries int

	RateLimitRequests int
	RateLimitWindow   time.Duration
	BreakerInitial    time.Duration
	BreakerMax        time.Duration

	RefreshSpec    string
	QuotaResetSpec string
	Timezone       string
}

// configFile mirrors the YAML schema of configs/livewatch.yaml.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
		SeedFile     string   `yaml:"seed_file"`
	} `yaml:"dependencies"`
	Admin struct {
		Emails []string `yaml:"emails"`
	} `yaml:"admin"`
	Storage struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"storage"`
	Resolver struct {
		LiveInterval            string `yaml:"live_interval"`
		RecentlyOfflineInterval string `yaml:"recently_offline_interval"`
		LongOfflineInterval     string `yaml:"long_offline_interval"`
		RecentlyLiveWindow      string `yaml:"recently_live_window"`
		MaxConcurrency          int    `yaml:"max_concurrency"`
	} `yaml:"resolver"`
	Cache struct {
		LiveTTL    string `yaml:"live_ttl"`
		OfflineTTL string `yaml:"offline_ttl"`
		MaxEntries int    `yaml:"max_entries"`
	} `yaml:"cache"`
	Quota struct {
		MaxRequests    int    `yaml:"max_requests"`
		Window         string `yaml:"window"`
		InitialBackoff string `yaml:"initial_backoff"`
		MaxBackoff     string `yaml:"max_backoff"`
	} `yaml:"quota"`
	Schedule struct {
		Refresh    string `yaml:"refresh"`
		QuotaReset string `yaml:"quota_reset"`
		Timezone   string `yaml:"timezone"`
	} `yaml:"schedule"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:               "livewatch",
		HTTPPort:                8080,
		MaxDBConns:              10,
		KafkaTopic:              "livewatch.channel-status",
		LiveInterval:            2 * time.Minute,
		RecentlyOfflineInterval: 5 * time.Minute,
		LongOfflineInterval:     15 * time.Minute,
		RecentlyLiveWindow:      time.Hour,
		MaxConcurrency:          8,
		ResolveTimeout:          10 * time.Second,
		LiveTTL:                 2 * time.Minute,
		OfflineTTL:              10 * time.Minute,
		CacheMaxEntries:         100,
		RateLimitRequests:       100,
		RateLimitWindow:         time.Minute,
		BreakerInitial:          10 * time.Minute,
		BreakerMax:              time.Hour,
		RefreshSpec:             "@every 1m",
		QuotaResetSpec:          "0 0 * * *",
		Timezone:                "America/Los_Angeles",
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := applyFile(&cfg, raw); err != nil {
				return Config{}, err
			}
		}
	}

	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", envOrDefault("DB_URL", cfg.DatabaseURL))
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.SeedFile = envOrDefault("SEED_FILE", cfg.SeedFile)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envOrDefault("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.YouTubeAPIKey = envOrDefault("YOUTUBE_API_KEY", cfg.YouTubeAPIKey)
	cfg.AdminEmails = envCSV("ADMIN_EMAILS", cfg.AdminEmails)
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.StorageBaseURL = envOrDefault("STORAGE_BASE_URL", cfg.StorageBaseURL)

	cfg.LiveInterval = envSeconds("LIVE_INTERVAL_SECONDS", cfg.LiveInterval)
	cfg.RecentlyOfflineInterval = envSeconds("RECENTLY_OFFLINE_INTERVAL_SECONDS", cfg.RecentlyOfflineInterval)
	cfg.LongOfflineInterval = envSeconds("LONG_OFFLINE_INTERVAL_SECONDS", cfg.LongOfflineInterval)
	cfg.RecentlyLiveWindow = envSeconds("RECENTLY_LIVE_WINDOW_SECONDS", cfg.RecentlyLiveWindow)
	cfg.MaxConcurrency = envInt("RESOLVER_MAX_CONCURRENCY", cfg.MaxConcurrency)
	cfg.ResolveTimeout = envSeconds("RESOLVE_TIMEOUT_SECONDS", cfg.ResolveTimeout)
	cfg.LiveTTL = envSeconds("CACHE_LIVE_TTL_SECONDS", cfg.LiveTTL)
	cfg.OfflineTTL = envSeconds("CACHE_OFFLINE_TTL_SECONDS", cfg.OfflineTTL)
	cfg.CacheMaxEntries = envInt("CACHE_MAX_ENTRIES", cfg.CacheMaxEntries)
	cfg.RateLimitRequests = envInt("RATE_LIMIT_REQUESTS", cfg.RateLimitRequests)
	cfg.RateLimitWindow = envSeconds("RATE_LIMIT_WINDOW_SECONDS", cfg.RateLimitWindow)
	cfg.BreakerInitial = envSeconds("BREAKER_INITIAL_SECONDS", cfg.BreakerInitial)
	cfg.BreakerMax = envSeconds("BREAKER_MAX_SECONDS", cfg.BreakerMax)
	cfg.RefreshSpec = envOrDefault("REFRESH_SCHEDULE", cfg.RefreshSpec)
	cfg.QuotaResetSpec = envOrDefault("QUOTA_RESET_SCHEDULE", cfg.QuotaResetSpec)
	cfg.Timezone = envOrDefault("QUOTA_RESET_TIMEZONE", cfg.Timezone)

	if cfg.HTTPPort <= 0 {
		return Config{}, fmt.Errorf("invalid HTTP_PORT %d", cfg.HTTPPort)
	}
	if cfg.RateLimitRequests <= 0 {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_REQUESTS %d", cfg.RateLimitRequests)
	}
	if cfg.BreakerMax < cfg.BreakerInitial {
		return Config{}, fmt.Errorf("breaker max backoff %s is below the initial %s", cfg.BreakerMax, cfg.BreakerInitial)
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if brokers := trimNonEmpty(f.Dependencies.KafkaBrokers); len(brokers) > 0 {
		cfg.KafkaBrokers = brokers
	}
	if f.Dependencies.KafkaTopic != "" {
		cfg.KafkaTopic = f.Dependencies.KafkaTopic
	}
	if f.Dependencies.SeedFile != "" {
		cfg.SeedFile = f.Dependencies.SeedFile
	}
	if emails := trimNonEmpty(f.Admin.Emails); len(emails) > 0 {
		cfg.AdminEmails = emails
	}
	if f.Storage.BaseURL != "" {
		cfg.StorageBaseURL = f.Storage.BaseURL
	}
	if f.Resolver.MaxConcurrency > 0 {
		cfg.MaxConcurrency = f.Resolver.MaxConcurrency
	}
	if f.Cache.MaxEntries > 0 {
		cfg.CacheMaxEntries = f.Cache.MaxEntries
	}
	if f.Quota.MaxRequests > 0 {
		cfg.RateLimitRequests = f.Quota.MaxRequests
	}
	if f.Schedule.Refresh != "" {
		cfg.RefreshSpec = f.Schedule.Refresh
	}
	if f.Schedule.QuotaReset != "" {
		cfg.QuotaResetSpec = f.Schedule.QuotaReset
	}
	if f.Schedule.Timezone != "" {
		cfg.Timezone = f.Schedule.Timezone
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"resolver.live_interval", f.Resolver.LiveInterval, &cfg.LiveInterval},
		{"resolver.recently_offline_interval", f.Resolver.RecentlyOfflineInterval, &cfg.RecentlyOfflineInterval},
		{"resolver.long_offline_interval", f.Resolver.LongOfflineInterval, &cfg.LongOfflineInterval},
		{"resolver.recently_live_window", f.Resolver.RecentlyLiveWindow, &cfg.RecentlyLiveWindow},
		{"cache.live_ttl", f.Cache.LiveTTL, &cfg.LiveTTL},
		{"cache.offline_ttl", f.Cache.OfflineTTL, &cfg.OfflineTTL},
		{"quota.window", f.Quota.Window, &cfg.RateLimitWindow},
		{"quota.initial_backoff", f.Quota.InitialBackoff, &cfg.BreakerInitial},
		{"quota.max_backoff", f.Quota.MaxBackoff, &cfg.BreakerMax},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil || v <= 0 {
			return fmt.Errorf("parse config file: invalid %s %q", d.name, d.raw)
		}
		*d.dst = v
	}
	return nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if raw := strings.TrimSpace(os.Getenv(name)); raw != "" {
		return raw
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

// envSeconds reads a whole number of seconds. An unset or malformed variable
// leaves fallback untouched, sub-second precision included.
func envSeconds(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return time.Duration(v) * time.Second
}

func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := trimNonEmpty(strings.Split(raw, ","))
	if len(parts) == 0 {
		return fallback
	}
	return parts
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
