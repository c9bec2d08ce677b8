package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. MCATAC_DATA_DIR.
const EnvPrefix = "MCATAC"

type Config struct {
	DataDir      string             `mapstructure:"data_dir"`
	Log          LogConfig          `mapstructure:"log"`
	DB           DBConfig           `mapstructure:"db"`
	Achievements AchievementsConfig `mapstructure:"achievements"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
	Retry        RetryConfig        `mapstructure:"retry"`
	ShareCode    ShareCodeConfig    `mapstructure:"sharecode"`
	Input        InputConfig        `mapstructure:"input"`
	Render       RenderConfig       `mapstructure:"render"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Update       UpdateConfig       `mapstructure:"update"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

type DBConfig struct {
	Path string `mapstructure:"path"` // empty = store.DefaultDBPath()
}

type AchievementsConfig struct {
	// SentinelID is stored in every user record but never counted.
	SentinelID int `mapstructure:"sentinel_id"`
}

type CatalogConfig struct {
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	ListURL         string        `mapstructure:"list_url"`
	Mirrors         []string      `mapstructure:"mirrors"`
	Concurrency     int           `mapstructure:"concurrency"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RefreshSchedule string        `mapstructure:"refresh_schedule"` // cron expression, empty disables
}

// RetryConfig configures backoff for transient download failures.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

type ShareCodeConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
}

type InputConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type RenderConfig struct {
	PageSize int `mapstructure:"page_size"`
}

type HTTPConfig struct {
	Addr      string  `mapstructure:"addr"`
	UserRate  float64 `mapstructure:"user_rate"`
	UserBurst int     `mapstructure:"user_burst"`
}

type UpdateConfig struct {
	Repo string `mapstructure:"repo"` // owner/name on GitHub
}

const achievementsPath = "src/data/chinese-simplified/achievements"

// DefaultMirrors lists the category-file mirrors in priority order.
var DefaultMirrors = []string{
	"https://raw.githubusercontent.com/dvaJi/genshin-data/master/" + achievementsPath,
	"https://cdn.jsdelivr.net/gh/dvaJi/genshin-data@master/" + achievementsPath,
	"https://github.com/dvaJi/genshin-data/raw/master/" + achievementsPath,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("db.path", "")

	v.SetDefault("achievements.sentinel_id", 84517)

	v.SetDefault("catalog.cache_ttl", time.Hour)
	v.SetDefault("catalog.list_url", "https://api.github.com/repos/dvaJi/genshin-data/contents/"+achievementsPath)
	v.SetDefault("catalog.mirrors", DefaultMirrors)
	v.SetDefault("catalog.concurrency", 8)
	v.SetDefault("catalog.timeout", 20*time.Second)
	v.SetDefault("catalog.refresh_schedule", "@every 480h")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_wait", time.Second)
	v.SetDefault("retry.max_wait", 4*time.Second)
	v.SetDefault("retry.multiplier", 2.0)

	v.SetDefault("sharecode.base_url", "https://77.cocogoat.cn/v2/memo")
	v.SetDefault("sharecode.timeout", 15*time.Second)
	v.SetDefault("sharecode.rate_per_sec", 2.0)

	v.SetDefault("input.ttl", 60*time.Second)
	v.SetDefault("render.page_size", 20)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.user_rate", 5.0)
	v.SetDefault("http.user_burst", 30)

	v.SetDefault("update.repo", "mCat-0/mCat-ac")
}

// Load reads configuration from an optional YAML file, a .env file and
// MCATAC_* environment variables, in increasing priority. An empty path
// searches for config.yaml in . and ./config.
func Load(path string) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without consulting files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate rejects settings that would make the core misbehave silently.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if len(c.Catalog.Mirrors) == 0 {
		return errors.New("catalog.mirrors must list at least one mirror")
	}
	if c.Catalog.Concurrency < 1 {
		return fmt.Errorf("catalog.concurrency must be >= 1, got %d", c.Catalog.Concurrency)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Render.PageSize < 1 {
		return fmt.Errorf("render.page_size must be >= 1, got %d", c.Render.PageSize)
	}
	if c.Catalog.CacheTTL <= 0 {
		return fmt.Errorf("catalog.cache_ttl must be positive, got %s", c.Catalog.CacheTTL)
	}
	return nil
}

// CatalogDir holds the manifest and downloadConfig.json.
func (c *Config) CatalogDir() string {
	return filepath.Join(c.DataDir, "mCatAc")
}

// CategoryDir holds one JSON file per achievement category.
func (c *Config) CategoryDir() string {
	return filepath.Join(c.CatalogDir(), "File")
}

// UserDir holds one progress record per user.
func (c *Config) UserDir() string {
	return filepath.Join(c.DataDir, "UserLog")
}
