package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/botkeeper/internal/core/scheduler"
	"github.com/vietddude/botkeeper/internal/infra/mcclient"
)

// DefaultPort is used when neither the file nor PORT sets one.
const DefaultPort = 7860

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from a YAML file. A missing file is not an error:
// the defaults are returned instead.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyDefaults(&cfg)

	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Server.Port = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	sched := scheduler.DefaultConfig()
	if cfg.Scheduler.RecreateDelay == 0 {
		cfg.Scheduler.RecreateDelay = sched.RecreateDelay
	}
	if cfg.Scheduler.Stagger == 0 {
		cfg.Scheduler.Stagger = sched.Stagger
	}
	if cfg.Scheduler.SweepInterval == 0 {
		cfg.Scheduler.SweepInterval = sched.SweepInterval
	}

	client := mcclient.DefaultConfig()
	if cfg.Client.ConnectTimeout == 0 {
		cfg.Client.ConnectTimeout = client.ConnectTimeout
	}
	if cfg.Client.ProtocolVersion == 0 {
		cfg.Client.ProtocolVersion = client.ProtocolVersion
	}
	if cfg.Client.ReadTimeout == 0 {
		cfg.Client.ReadTimeout = client.ReadTimeout
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendFile
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultSnapshotPath
	}
	if cfg.Defaults == nil {
		cfg.Defaults = DefaultSessions()
	}
}

// Validate checks cross-field constraints.
func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	switch c.Store.Backend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.Store.Redis.URL == "" {
			return errors.New("store.redis.url is required for the redis backend")
		}
	case BackendPostgres:
		if c.Store.Database.URL == "" {
			return errors.New("store.database.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	for i, p := range c.Defaults {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("defaults[%d]: %w", i, err)
		}
	}
	return nil
}
