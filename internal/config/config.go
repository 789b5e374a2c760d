package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultDeployment       = "einkaufsliste"
	DefaultAPIBaseURL       = "https://picluster.a-h.wtf"
	DefaultBrokerURL        = "wss://broker.hivemq.com:8884/mqtt"
	DefaultUserAgent        = "shoplist-cli"
	DefaultHTTPTimeout      = 15 * time.Second
	DefaultConnectTimeout   = 10 * time.Second
	DefaultReconnectInitial = 500 * time.Millisecond
	DefaultReconnectMax     = 30 * time.Second
	dbFileName              = "shoplist.db"
	logFileName             = "shoplist.log"
)

// DefaultCollectDeployments are the deployments whose toggles are reported to the collect endpoint.
var DefaultCollectDeployments = []string{"einkaufsliste", "einkaufsliste-stage"}

type Config struct {
	Dir                string
	Deployment         string        `env:"SHOPLIST_DEPLOYMENT"`
	APIKey             string        `env:"SHOPLIST_API_KEY"`
	APIBaseURL         string        `env:"SHOPLIST_API_BASE_URL"`
	BrokerURL          string        `env:"SHOPLIST_BROKER_URL"`
	LogLevel           string        `env:"SHOPLIST_LOG_LEVEL"`
	UserAgent          string        `env:"SHOPLIST_USER_AGENT"`
	HTTPTimeout        time.Duration `env:"SHOPLIST_HTTP_TIMEOUT"`
	ConnectTimeout     time.Duration `env:"SHOPLIST_CONNECT_TIMEOUT"`
	ReconnectInitial   time.Duration `env:"SHOPLIST_RECONNECT_INITIAL"`
	ReconnectMax       time.Duration `env:"SHOPLIST_RECONNECT_MAX"`
	CollectDeployments []string      `env:"SHOPLIST_COLLECT_DEPLOYMENTS" envSeparator:","`
	DBPath             string        `env:"SHOPLIST_DB_PATH"`
}

// Load resolves configuration from defaults, <dir>/config.toml and SHOPLIST_* variables,
// later layers winning. An empty dir means DefaultConfigDir.
func Load(dir string) (Config, error) {
	if strings.TrimSpace(dir) == "" {
		d, err := DefaultConfigDir()
		if err != nil {
			return Config{}, err
		}
		dir = d
	}
	fc, err := NewFileStore(dir).LoadOrInit()
	if err != nil {
		return Config{}, fmt.Errorf("load config file: %w", err)
	}
	cfg := fromFile(dir, fc)
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return normalize(cfg), nil
}

// LoadDefault is Load with the default config dir.
func LoadDefault() (Config, error) {
	return Load("")
}

func fromFile(dir string, fc FileConfig) Config {
	fc = normalizeFileConfig(fc)
	return Config{
		Dir:                dir,
		Deployment:         fc.Deployment,
		APIKey:             fc.APIKey,
		APIBaseURL:         fc.APIBaseURL,
		BrokerURL:          fc.Broker.URL,
		LogLevel:           fc.LogLevel,
		UserAgent:          fc.HTTP.UserAgent,
		HTTPTimeout:        mustDuration(fc.HTTP.Timeout, DefaultHTTPTimeout),
		ConnectTimeout:     mustDuration(fc.Broker.ConnectTimeout, DefaultConnectTimeout),
		ReconnectInitial:   mustDuration(fc.Broker.ReconnectInitial, DefaultReconnectInitial),
		ReconnectMax:       mustDuration(fc.Broker.ReconnectMax, DefaultReconnectMax),
		CollectDeployments: append([]string(nil), fc.Telemetry.Deployments...),
		DBPath:             fc.Telemetry.DBPath,
	}
}

func normalize(cfg Config) Config {
	cfg.Deployment = strings.TrimSpace(cfg.Deployment)
	if cfg.Deployment == "" {
		cfg.Deployment = DefaultDeployment
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if strings.TrimSpace(cfg.BrokerURL) == "" {
		cfg.BrokerURL = DefaultBrokerURL
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = DefaultReconnectInitial
	}
	if cfg.ReconnectMax < cfg.ReconnectInitial {
		cfg.ReconnectMax = cfg.ReconnectInitial
	}
	deployments := make([]string, 0, len(cfg.CollectDeployments))
	for _, d := range cfg.CollectDeployments {
		if d = strings.TrimSpace(d); d != "" {
			deployments = append(deployments, d)
		}
	}
	cfg.CollectDeployments = deployments
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join(cfg.Dir, dbFileName)
	}
	return cfg
}

// CollectEnabled reports whether toggles on this deployment are sent to the collect endpoint.
func (c Config) CollectEnabled() bool {
	return slices.Contains(c.CollectDeployments, c.Deployment)
}

func (c Config) LogPath() string {
	return filepath.Join(c.Dir, logFileName)
}

func parseDuration(v string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %s", v)
	}
	return d, nil
}

func mustDuration(v string, fallback time.Duration) time.Duration {
	d, err := parseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
