// Package config assembles the immutable runtime configuration: compiled
// defaults, then an optional YAML file, then environment overrides. There
// is no dynamic reconfiguration; stop and start the process to change it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

type ProviderConfig struct {
	BaseURL        string        `yaml:"baseUrl"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	PostTimeout    time.Duration `yaml:"postTimeout"`
	RateLimit      float64       `yaml:"rateLimit"`
	Burst          int           `yaml:"burst"`
}

type CacheConfig struct {
	Backend         string  `yaml:"backend"` // "memory" or "redis"
	RedisAddr       string  `yaml:"redisAddr"`
	Prefix          string  `yaml:"prefix"`
	EnableSWR       bool    `yaml:"enableSwr"` // honored by the memory backend only
	StaleMultiplier float64 `yaml:"staleMultiplier"`
}

type PollConfig struct {
	Odds      time.Duration `yaml:"odds"`
	MatchList time.Duration `yaml:"matchList"`
	TopEvents time.Duration `yaml:"topEvents"`
	Banners   time.Duration `yaml:"banners"`
	Sidebar   time.Duration `yaml:"sidebar"`
}

type TTLConfig struct {
	Sports    time.Duration `yaml:"sports"`
	MatchList time.Duration `yaml:"matchList"`
	Odds      time.Duration `yaml:"odds"`
	Results   time.Duration `yaml:"results"`
	TopEvents time.Duration `yaml:"topEvents"`
	Banners   time.Duration `yaml:"banners"`
	Sidebar   time.Duration `yaml:"sidebar"`
	OnDemand  time.Duration `yaml:"onDemand"`
}

type HotConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	DefaultSportID string        `yaml:"defaultSportId"`
}

type WorkerConfig struct {
	MaxConcurrency int           `yaml:"maxConcurrency"`
	JobTimeout     time.Duration `yaml:"jobTimeout"`
}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Provider ProviderConfig `yaml:"provider"`
	Cache    CacheConfig    `yaml:"cache"`
	Poll     PollConfig     `yaml:"poll"`
	TTL      TTLConfig      `yaml:"ttl"`
	Hot      HotConfig      `yaml:"hot"`
	Worker   WorkerConfig   `yaml:"worker"`
	Sports   []string       `yaml:"sports"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Provider: ProviderConfig{
			BaseURL:        "http://localhost:9000",
			RequestTimeout: 3 * time.Second,
			PostTimeout:    5 * time.Second,
			RateLimit:      50,
			Burst:          25,
		},
		Cache: CacheConfig{
			Backend:         "memory",
			Prefix:          "ex:",
			EnableSWR:       true,
			StaleMultiplier: 2,
		},
		Poll: PollConfig{
			Odds:      time.Second,
			MatchList: 60 * time.Second,
			TopEvents: time.Hour,
			Banners:   time.Hour,
			Sidebar:   24 * time.Hour,
		},
		TTL: TTLConfig{
			Sports:    24 * time.Hour,
			MatchList: 2 * time.Minute,
			Odds:      2 * time.Second,
			Results:   time.Hour,
			TopEvents: 2 * time.Hour,
			Banners:   2 * time.Hour,
			Sidebar:   48 * time.Hour,
			OnDemand:  24 * time.Hour,
		},
		Hot: HotConfig{
			TTL:            30 * time.Second,
			DefaultSportID: "4",
		},
		Worker: WorkerConfig{
			MaxConcurrency: 5,
			JobTimeout:     10 * time.Second,
		},
		Sports: []string{"1", "2", "4"},
	}
}

// Load builds the configuration. A .env file in the working directory is
// read when present; path may be empty to skip the YAML layer.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString("ODDSEDGE_HTTP_HOST", &c.HTTP.Host)
	envInt("ODDSEDGE_HTTP_PORT", &c.HTTP.Port)

	envString("ODDSEDGE_PROVIDER_BASE_URL", &c.Provider.BaseURL)
	envMillis("ODDSEDGE_PROVIDER_TIMEOUT_MS", &c.Provider.RequestTimeout)
	envMillis("ODDSEDGE_PROVIDER_POST_TIMEOUT_MS", &c.Provider.PostTimeout)

	envString("ODDSEDGE_CACHE_BACKEND", &c.Cache.Backend)
	envString("ODDSEDGE_REDIS_ADDR", &c.Cache.RedisAddr)
	envString("ODDSEDGE_CACHE_PREFIX", &c.Cache.Prefix)
	envBool("ODDSEDGE_CACHE_ENABLE_SWR", &c.Cache.EnableSWR)
	envFloat("ODDSEDGE_STALE_MULTIPLIER", &c.Cache.StaleMultiplier)

	envMillis("ODDSEDGE_POLL_ODDS_MS", &c.Poll.Odds)
	envMillis("ODDSEDGE_POLL_MATCHLIST_MS", &c.Poll.MatchList)
	envMillis("ODDSEDGE_POLL_TOPEVENTS_MS", &c.Poll.TopEvents)
	envMillis("ODDSEDGE_POLL_BANNERS_MS", &c.Poll.Banners)
	envMillis("ODDSEDGE_POLL_SIDEBAR_MS", &c.Poll.Sidebar)

	envSeconds("ODDSEDGE_HOT_TTL_SECONDS", &c.Hot.TTL)
	envString("ODDSEDGE_DEFAULT_SPORT_ID", &c.Hot.DefaultSportID)

	envInt("ODDSEDGE_MAX_CONCURRENCY", &c.Worker.MaxConcurrency)
}

func (c *Config) validate() error {
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("config: redis backend selected but no redis address set")
	}
	if c.Cache.StaleMultiplier < 1 {
		return fmt.Errorf("config: stale multiplier must be >= 1, got %v", c.Cache.StaleMultiplier)
	}
	if c.Worker.MaxConcurrency <= 0 {
		return fmt.Errorf("config: max concurrency must be positive, got %d", c.Worker.MaxConcurrency)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envMillis(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}

func envSeconds(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Second
		}
	}
}
