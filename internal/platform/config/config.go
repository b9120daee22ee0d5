package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPollInterval      = 5 * time.Second
	DefaultSyncInterval      = 60 * time.Second
	DefaultHeartbeatInterval = 60 * time.Second
	DefaultCatalogRefresh    = 6 * time.Hour
	DefaultUnsyncedBatch     = 50
	DefaultPullPageSize      = 500
)

// File is the on-disk shape of config.yaml. Zero values fall back to
// defaults, so a partial file is fine.
type File struct {
	SubjectID        string `yaml:"subject_id"`
	DeviceID         string `yaml:"device_id"`
	RemoteURL        string `yaml:"remote_url"`
	APIToken         string `yaml:"api_token"`
	CatalogURL       string `yaml:"catalog_url"`
	CatalogFile      string `yaml:"catalog_file"`
	SnapshotProvider string `yaml:"snapshot_provider"`

	PollIntervalSeconds      int `yaml:"poll_interval_seconds"`
	SyncIntervalSeconds      int `yaml:"sync_interval_seconds"`
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
	CatalogRefreshMinutes    int `yaml:"catalog_refresh_minutes"`
}

type Config struct {
	HomePath    string
	DBPath      string
	PIDPath     string
	SocketPath  string
	LogPath     string
	CatalogFile string

	SubjectID        string
	DeviceID         string
	RemoteURL        string
	APIToken         string
	CatalogURL       string
	SnapshotProvider string

	PollInterval      time.Duration
	SyncInterval      time.Duration
	HeartbeatInterval time.Duration
	CatalogRefresh    time.Duration
	UnsyncedBatch     int
	PullPageSize      int
}

func New(homePath string) (Config, error) {
	if homePath == "" {
		return Config{}, fmt.Errorf("home path is required")
	}
	cfg := Config{
		HomePath:          homePath,
		DBPath:            filepath.Join(homePath, "gametrack.db"),
		PIDPath:           filepath.Join(homePath, "agent.pid"),
		SocketPath:        filepath.Join(homePath, "agent.sock"),
		LogPath:           filepath.Join(homePath, "agent.log"),
		CatalogFile:       filepath.Join(homePath, "catalog.yaml"),
		PollInterval:      DefaultPollInterval,
		SyncInterval:      DefaultSyncInterval,
		HeartbeatInterval: DefaultHeartbeatInterval,
		CatalogRefresh:    DefaultCatalogRefresh,
		UnsyncedBatch:     DefaultUnsyncedBatch,
		PullPageSize:      DefaultPullPageSize,
	}

	raw, err := os.ReadFile(filepath.Join(homePath, "config.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	file := File{}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg.apply(file), nil
}

func (c Config) apply(file File) Config {
	c.SubjectID = file.SubjectID
	c.DeviceID = file.DeviceID
	c.RemoteURL = file.RemoteURL
	c.APIToken = file.APIToken
	c.CatalogURL = file.CatalogURL
	c.SnapshotProvider = file.SnapshotProvider
	if file.CatalogFile != "" {
		c.CatalogFile = file.CatalogFile
	}
	if file.PollIntervalSeconds > 0 {
		c.PollInterval = time.Duration(file.PollIntervalSeconds) * time.Second
	}
	if file.SyncIntervalSeconds > 0 {
		c.SyncInterval = time.Duration(file.SyncIntervalSeconds) * time.Second
	}
	if file.HeartbeatIntervalSeconds > 0 {
		c.HeartbeatInterval = time.Duration(file.HeartbeatIntervalSeconds) * time.Second
	}
	if file.CatalogRefreshMinutes > 0 {
		c.CatalogRefresh = time.Duration(file.CatalogRefreshMinutes) * time.Minute
	}
	return c
}
