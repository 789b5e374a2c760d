package config

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const configTOMLFileName = "config.toml"

type FileConfig struct {
	Deployment string        `toml:"deployment"`
	APIKey     string        `toml:"api_key"`
	APIBaseURL string        `toml:"api_base_url"`
	LogLevel   string        `toml:"log_level"`
	Broker     BrokerFile    `toml:"broker"`
	HTTP       HTTPFile      `toml:"http"`
	Telemetry  TelemetryFile `toml:"telemetry"`
}

type BrokerFile struct {
	URL              string `toml:"url"`
	ConnectTimeout   string `toml:"connect_timeout"`
	ReconnectInitial string `toml:"reconnect_initial"`
	ReconnectMax     string `toml:"reconnect_max"`
}

type HTTPFile struct {
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

type TelemetryFile struct {
	Deployments []string `toml:"deployments"`
	DBPath      string   `toml:"db_path,omitempty"`
}

type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Path() string {
	return filepath.Join(s.dir, configTOMLFileName)
}

// LoadOrInit reads config.toml, writing one with defaults when it does not exist yet.
func (s *FileStore) LoadOrInit() (FileConfig, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return FileConfig{}, err
	}

	path := s.Path()
	if b, err := os.ReadFile(path); err == nil {
		var cfg FileConfig
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return FileConfig{}, err
		}
		return normalizeFileConfig(cfg), nil
	} else if !os.IsNotExist(err) {
		return FileConfig{}, err
	}

	cfg := normalizeFileConfig(FileConfig{})
	if err := writeTOMLAtomically(path, cfg); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

func (s *FileStore) Save(cfg FileConfig) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeTOMLAtomically(s.Path(), normalizeFileConfig(cfg))
}

func normalizeFileConfig(cfg FileConfig) FileConfig {
	cfg.Deployment = strings.TrimSpace(cfg.Deployment)
	if cfg.Deployment == "" {
		cfg.Deployment = DefaultDeployment
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.Broker.URL = strings.TrimSpace(cfg.Broker.URL)
	if cfg.Broker.URL == "" {
		cfg.Broker.URL = DefaultBrokerURL
	}
	cfg.Broker.ConnectTimeout = durationOrDefault(cfg.Broker.ConnectTimeout, DefaultConnectTimeout.String())
	cfg.Broker.ReconnectInitial = durationOrDefault(cfg.Broker.ReconnectInitial, DefaultReconnectInitial.String())
	cfg.Broker.ReconnectMax = durationOrDefault(cfg.Broker.ReconnectMax, DefaultReconnectMax.String())
	cfg.HTTP.Timeout = durationOrDefault(cfg.HTTP.Timeout, DefaultHTTPTimeout.String())
	cfg.HTTP.UserAgent = strings.TrimSpace(cfg.HTTP.UserAgent)
	if cfg.HTTP.UserAgent == "" {
		cfg.HTTP.UserAgent = DefaultUserAgent
	}
	if cfg.Telemetry.Deployments == nil {
		cfg.Telemetry.Deployments = append([]string(nil), DefaultCollectDeployments...)
	}
	cfg.Telemetry.DBPath = strings.TrimSpace(cfg.Telemetry.DBPath)
	return cfg
}

func durationOrDefault(v, fallback string) string {
	v = strings.TrimSpace(v)
	if _, err := parseDuration(v); err != nil || v == "" {
		return fallback
	}
	return v
}

func writeTOMLAtomically(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
