package config

import (
	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/core/scheduler"
	"github.com/vietddude/botkeeper/internal/infra/mcclient"
	redisclient "github.com/vietddude/botkeeper/internal/infra/redis"
	"github.com/vietddude/botkeeper/internal/infra/storage/postgres"
)

// Store backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// DefaultSnapshotPath is where the file backend keeps the snapshot.
const DefaultSnapshotPath = "bot_configs.json"

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Client    mcclient.Config  `yaml:"client"`
	Store     StoreConfig      `yaml:"store"`
	Defaults  []domain.Params  `yaml:"defaults"`
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 disables the gRPC health service
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StoreConfig selects and configures the snapshot backend.
type StoreConfig struct {
	Backend  string             `yaml:"backend"` // file, memory, redis, postgres
	Path     string             `yaml:"path"`
	Watch    bool               `yaml:"watch"` // reconcile external edits of the file
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
}

// DefaultSessions is the pool installed when no snapshot exists.
func DefaultSessions() []domain.Params {
	return []domain.Params{
		{Host: "syd.retslav.net", Port: 10257, Identity: "retslav003"},
		{Host: "151.242.106.72", Port: 25340, Identity: "vibegames003"},
		{Host: "191.96.231.5", Port: 30066, Identity: "mcserverhost003"},
		{Host: "135.125.9.13", Port: 2838, Identity: "elementiamc003"},
	}
}
