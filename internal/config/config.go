package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort     string
	RequestTimeout time.Duration

	CacheBackend      string // "redis" or "memory"
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisDialTimeout  time.Duration
	RedisReadTimeout  time.Duration
	RedisWriteTimeout time.Duration

	DatabaseURL string

	NATSURL         string
	QueueStream     string
	QueueSubject    string
	QueueDurable    string
	QueueBatchSize  int
	QueueVisibility time.Duration
	QueueFetchWait  time.Duration
	QueueMaxDeliver int

	IGDBBaseURL      string
	IGDBTokenURL     string
	IGDBClientID     string
	IGDBClientSecret string
	IGDBTimeout      time.Duration
	TokenTTL         time.Duration
	RetryAttempts    int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	BreakerTimeout   time.Duration

	PopularityThreshold int64
	CounterTTL          time.Duration
	RateWindow          time.Duration
	OnReadFailure       string // "assume_zero" or "fail"

	RefreshEnabled    bool
	RefreshInterval   time.Duration
	RefreshStaleAfter time.Duration
	RefreshLimit      int

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend string `yaml:"backend"`
		Redis   struct {
			Addr         string `yaml:"addr"`
			DB           int    `yaml:"db"`
			DialTimeout  string `yaml:"dial_timeout"`
			ReadTimeout  string `yaml:"read_timeout"`
			WriteTimeout string `yaml:"write_timeout"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Queue struct {
		URL               string `yaml:"url"`
		Stream            string `yaml:"stream"`
		Subject           string `yaml:"subject"`
		Durable           string `yaml:"durable"`
		BatchSize         int    `yaml:"batch_size"`
		VisibilityTimeout string `yaml:"visibility_timeout"`
		FetchWait         string `yaml:"fetch_wait"`
		MaxDeliver        int    `yaml:"max_deliver"`
	} `yaml:"queue"`

	IGDB struct {
		BaseURL          string `yaml:"base_url"`
		TokenURL         string `yaml:"token_url"`
		Timeout          string `yaml:"timeout"`
		TokenTTL         string `yaml:"token_ttl"`
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		BreakerTimeout   string `yaml:"breaker_timeout"`
	} `yaml:"igdb"`

	Popularity struct {
		Threshold     int64  `yaml:"threshold"`
		CounterTTL    string `yaml:"counter_ttl"`
		RateWindow    string `yaml:"rate_window"`
		OnReadFailure string `yaml:"on_read_failure"`
	} `yaml:"popularity"`

	Refresh struct {
		Enabled    bool   `yaml:"enabled"`
		Interval   string `yaml:"interval"`
		StaleAfter string `yaml:"stale_after"`
		Limit      int    `yaml:"limit"`
	} `yaml:"refresh"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	IGDBClientID     string `yaml:"igdb_client_id"`
	IGDBClientSecret string `yaml:"igdb_client_secret"`
	DatabaseURL      string `yaml:"database_url"`
	RedisPassword    string `yaml:"redis_password"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. Credentials come from env (IGDB_CLIENT_ID,
// IGDB_CLIENT_SECRET, DATABASE_URL, REDIS_PASSWORD) or the secrets file,
// env winning. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "redis"
	}
	cfg.RedisAddr = firstNonEmpty(os.Getenv("REDIS_ADDR"), fc.Cache.Redis.Addr, "localhost:6379")
	cfg.RedisPassword = firstNonEmpty(os.Getenv("REDIS_PASSWORD"), sec.RedisPassword)
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisDialTimeout = parseDuration(fc.Cache.Redis.DialTimeout, 500*time.Millisecond)
	cfg.RedisReadTimeout = parseDuration(fc.Cache.Redis.ReadTimeout, 500*time.Millisecond)
	cfg.RedisWriteTimeout = parseDuration(fc.Cache.Redis.WriteTimeout, 500*time.Millisecond)

	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), sec.DatabaseURL)

	cfg.NATSURL = firstNonEmpty(os.Getenv("NATS_URL"), fc.Queue.URL, "nats://localhost:4222")
	cfg.QueueStream = firstNonEmpty(fc.Queue.Stream, "GAME_STORE")
	cfg.QueueSubject = firstNonEmpty(fc.Queue.Subject, "game_store_queue")
	cfg.QueueDurable = firstNonEmpty(fc.Queue.Durable, "game-store-worker")
	cfg.QueueBatchSize = fc.Queue.BatchSize
	if cfg.QueueBatchSize <= 0 {
		cfg.QueueBatchSize = 30
	}
	cfg.QueueVisibility = parseDuration(fc.Queue.VisibilityTimeout, 30*time.Second)
	cfg.QueueFetchWait = parseDuration(fc.Queue.FetchWait, 2*time.Second)
	cfg.QueueMaxDeliver = fc.Queue.MaxDeliver
	if cfg.QueueMaxDeliver <= 0 {
		cfg.QueueMaxDeliver = 10
	}

	cfg.IGDBBaseURL = firstNonEmpty(fc.IGDB.BaseURL, "https://api.igdb.com/v4")
	cfg.IGDBTokenURL = firstNonEmpty(fc.IGDB.TokenURL, "https://id.twitch.tv/oauth2/token")
	cfg.IGDBClientID = firstNonEmpty(os.Getenv("IGDB_CLIENT_ID"), sec.IGDBClientID)
	cfg.IGDBClientSecret = firstNonEmpty(os.Getenv("IGDB_CLIENT_SECRET"), sec.IGDBClientSecret)
	cfg.IGDBTimeout = parseDuration(fc.IGDB.Timeout, 4*time.Second)
	cfg.TokenTTL = parseDuration(fc.IGDB.TokenTTL, 24*time.Hour)
	cfg.RetryAttempts = fc.IGDB.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.IGDB.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.IGDB.RetryMaxDelay, 2*time.Second)
	cfg.BreakerTimeout = parseDuration(fc.IGDB.BreakerTimeout, 30*time.Second)

	cfg.PopularityThreshold = fc.Popularity.Threshold
	if cfg.PopularityThreshold <= 0 {
		cfg.PopularityThreshold = 10
	}
	cfg.CounterTTL = parseDuration(fc.Popularity.CounterTTL, 7*24*time.Hour)
	cfg.RateWindow = parseDuration(fc.Popularity.RateWindow, 60*time.Second)
	cfg.OnReadFailure = strings.TrimSpace(strings.ToLower(fc.Popularity.OnReadFailure))
	if cfg.OnReadFailure == "" {
		cfg.OnReadFailure = "assume_zero"
	}

	cfg.RefreshEnabled = fc.Refresh.Enabled
	cfg.RefreshInterval = parseDuration(fc.Refresh.Interval, time.Hour)
	cfg.RefreshStaleAfter = parseDuration(fc.Refresh.StaleAfter, 30*24*time.Hour)
	cfg.RefreshLimit = fc.Refresh.Limit
	if cfg.RefreshLimit <= 0 {
		cfg.RefreshLimit = 100
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if
// parsing fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.CacheBackend {
	case "redis", "memory":
		// valid
	default:
		return fmt.Errorf("cache.backend must be redis or memory, got %q", cfg.CacheBackend)
	}
	switch cfg.OnReadFailure {
	case "assume_zero", "fail":
		// valid
	default:
		return fmt.Errorf("popularity.on_read_failure must be assume_zero or fail, got %q", cfg.OnReadFailure)
	}
	if cfg.IGDBClientID == "" || cfg.IGDBClientSecret == "" {
		return fmt.Errorf("IGDB_CLIENT_ID and IGDB_CLIENT_SECRET required (set env or config/secrets.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL required (set env or config/secrets.yaml database_url)")
	}
	if cfg.RequestTimeout <= cfg.IGDBTimeout {
		cfg.RequestTimeout = cfg.IGDBTimeout + time.Second
	}
	return nil
}
