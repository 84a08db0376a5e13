package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/weave/pkg/domain"
	"gopkg.in/yaml.v3"
)

// DefaultFiles are tried in order when no config path is given.
var DefaultFiles = []string{"weave.yaml", "weave.yml", "weave.json"}

const (
	CascadeTopological = "topological"
	CascadeBFS         = "bfs"
)

const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Settings tunes the orchestrator. Zero values are replaced by defaults.
type Settings struct {
	Debounce         Duration `yaml:"debounce" json:"debounce"`
	QueueSize        int      `yaml:"queueSize" json:"queueSize"`
	RealtimeInterval Duration `yaml:"realtimeInterval" json:"realtimeInterval"`
	PollingInterval  Duration `yaml:"pollingInterval" json:"pollingInterval"`
	DeployInterval   Duration `yaml:"deployInterval" json:"deployInterval"`
	StaleAfter       Duration `yaml:"staleAfter" json:"staleAfter"`
	CascadeMode      string   `yaml:"cascadeMode" json:"cascadeMode"`
	ReportPath       string   `yaml:"reportPath" json:"reportPath"`
	LogLevel         string   `yaml:"logLevel" json:"logLevel"`

	// Store selects where platform state is kept: memory, file or redis.
	Store    string `yaml:"store" json:"store"`
	StateDir string `yaml:"stateDir" json:"stateDir"`
	VaultDir string `yaml:"vaultDir" json:"vaultDir"`

	Redis RedisSettings `yaml:"redis" json:"redis"`
	HTTP  HTTPSettings  `yaml:"http" json:"http"`
}

type RedisSettings struct {
	Addr     string   `yaml:"addr" json:"addr"`
	Password string   `yaml:"password" json:"password"`
	DB       int      `yaml:"db" json:"db"`
	Prefix   string   `yaml:"prefix" json:"prefix"`
	LockTTL  Duration `yaml:"lockTTL" json:"lockTTL"`
	DedupTTL Duration `yaml:"dedupTTL" json:"dedupTTL"`
}

type HTTPSettings struct {
	// Addr enables the HTTP adapter when non-empty.
	Addr string `yaml:"addr" json:"addr"`
}

// Defaults returns the settings used when the file leaves a field empty.
func Defaults() Settings {
	return Settings{
		Debounce:         Duration(2000 * time.Millisecond),
		QueueSize:        256,
		RealtimeInterval: Duration(30 * time.Second),
		PollingInterval:  Duration(60 * time.Second),
		DeployInterval:   Duration(5 * time.Minute),
		StaleAfter:       Duration(time.Hour),
		CascadeMode:      CascadeTopological,
		ReportPath:       "weave-report.json",
		LogLevel:         "info",
		Store:            StoreFile,
		StateDir:         ".weave/state",
		VaultDir:         ".weave/vault",
		Redis: RedisSettings{
			Prefix:   "weave:",
			LockTTL:  Duration(10 * time.Minute),
			DedupTTL: Duration(24 * time.Hour),
		},
	}
}

// Config is the validated, path-resolved orchestrator configuration.
type Config struct {
	// BaseDir is the directory relative paths were resolved against.
	BaseDir       string
	SharedLibrary string
	Platforms     []domain.Platform
	Synchronizers []domain.Synchronizer
	Channels      []domain.Channel
	Settings      Settings
}

// Platform returns the declared platform with the given id.
func (c *Config) Platform(id string) (domain.Platform, bool) {
	for _, p := range c.Platforms {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Platform{}, false
}

type fileChannel struct {
	ID        domain.ChannelID `yaml:"id" json:"id"`
	Platforms []string         `yaml:"platforms" json:"platforms"`
	Protocol  string           `yaml:"protocol" json:"protocol"`
	Realtime  bool             `yaml:"realtime" json:"realtime"`
	Interval  Duration         `yaml:"interval" json:"interval"`
}

type file struct {
	SharedLibrary string                `yaml:"sharedLibrary" json:"sharedLibrary"`
	Platforms     []domain.Platform     `yaml:"platforms" json:"platforms"`
	Synchronizers []domain.Synchronizer `yaml:"synchronizers" json:"synchronizers"`
	Integrations  []fileChannel         `yaml:"integrations" json:"integrations"`
	Settings      Settings              `yaml:"settings" json:"settings"`
}

// Find returns the first default config file present in dir.
func Find(dir string) (string, error) {
	for _, name := range DefaultFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no %s found in %s", domain.ErrConfig, strings.Join(DefaultFiles, ", "), dir)
}

// Load reads a configuration file (YAML or JSON, chosen by extension),
// applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	return Parse(data, filepath.Ext(path), filepath.Dir(abs))
}

// Parse decodes raw configuration bytes. ext selects the format (".json" or YAML
// otherwise) and baseDir anchors relative paths.
func Parse(data []byte, ext, baseDir string) (*Config, error) {
	var raw file
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: failed to parse json: %v", domain.ErrConfig, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: failed to parse yaml: %v", domain.ErrConfig, err)
		}
	}

	cfg := &Config{
		BaseDir:       baseDir,
		SharedLibrary: raw.SharedLibrary,
		Platforms:     raw.Platforms,
		Synchronizers: raw.Synchronizers,
		Settings:      withDefaults(raw.Settings),
	}
	for _, ch := range raw.Integrations {
		cfg.Channels = append(cfg.Channels, domain.Channel{
			ID:        ch.ID,
			Platforms: ch.Platforms,
			Protocol:  ch.Protocol,
			Realtime:  ch.Realtime,
			Interval:  ch.Interval.Std(),
		})
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.resolvePaths()
	return cfg, nil
}

func withDefaults(s Settings) Settings {
	d := Defaults()
	if s.Debounce == 0 {
		s.Debounce = d.Debounce
	}
	if s.QueueSize <= 0 {
		s.QueueSize = d.QueueSize
	}
	if s.RealtimeInterval == 0 {
		s.RealtimeInterval = d.RealtimeInterval
	}
	if s.PollingInterval == 0 {
		s.PollingInterval = d.PollingInterval
	}
	if s.DeployInterval == 0 {
		s.DeployInterval = d.DeployInterval
	}
	if s.StaleAfter == 0 {
		s.StaleAfter = d.StaleAfter
	}
	if s.CascadeMode == "" {
		s.CascadeMode = d.CascadeMode
	}
	if s.ReportPath == "" {
		s.ReportPath = d.ReportPath
	}
	if s.LogLevel == "" {
		s.LogLevel = d.LogLevel
	}
	if s.Store == "" {
		s.Store = d.Store
	}
	if s.StateDir == "" {
		s.StateDir = d.StateDir
	}
	if s.VaultDir == "" {
		s.VaultDir = d.VaultDir
	}
	if s.Redis.Prefix == "" {
		s.Redis.Prefix = d.Redis.Prefix
	}
	if s.Redis.LockTTL == 0 {
		s.Redis.LockTTL = d.Redis.LockTTL
	}
	if s.Redis.DedupTTL == 0 {
		s.Redis.DedupTTL = d.Redis.DedupTTL
	}
	return s
}

func (c *Config) validate() error {
	if len(c.Platforms) == 0 {
		return fmt.Errorf("%w: no platforms declared", domain.ErrConfig)
	}

	ids := make(map[string]bool, len(c.Platforms))
	for i := range c.Platforms {
		p := &c.Platforms[i]
		if p.ID == "" {
			return fmt.Errorf("%w: platform #%d has no id", domain.ErrConfig, i+1)
		}
		if ids[p.ID] {
			return fmt.Errorf("%w: duplicate platform id %q", domain.ErrConfig, p.ID)
		}
		ids[p.ID] = true

		tech, err := domain.ParseTechnology(string(p.Technology))
		if err != nil {
			return fmt.Errorf("platform %q: %w", p.ID, err)
		}
		p.Technology = tech
		if p.Dir == "" {
			return fmt.Errorf("%w: platform %q has no dir", domain.ErrConfig, p.ID)
		}
		if strings.TrimSpace(p.BuildCmd) == "" {
			return fmt.Errorf("%w: platform %q has no buildCommand", domain.ErrConfig, p.ID)
		}
	}

	if c.SharedLibrary != "" && !ids[c.SharedLibrary] {
		return fmt.Errorf("%w: sharedLibrary %q is not a declared platform", domain.ErrConfig, c.SharedLibrary)
	}

	syncIDs := make(map[string]bool, len(c.Synchronizers))
	for _, s := range c.Synchronizers {
		if s.ID == "" {
			return fmt.Errorf("%w: synchronizer without id", domain.ErrConfig)
		}
		if syncIDs[s.ID] {
			return fmt.Errorf("%w: duplicate synchronizer id %q", domain.ErrConfig, s.ID)
		}
		syncIDs[s.ID] = true
		if !s.Strategy.Valid() {
			return fmt.Errorf("%w: synchronizer %q has unknown strategy %q", domain.ErrConfig, s.ID, s.Strategy)
		}
		if len(s.WatchPaths) == 0 {
			return fmt.Errorf("%w: synchronizer %q watches nothing", domain.ErrConfig, s.ID)
		}
		if s.Strategy == domain.StrategyCascade && c.SharedLibrary == "" {
			return fmt.Errorf("%w: synchronizer %q cascades but no sharedLibrary is declared", domain.ErrConfig, s.ID)
		}
		for _, target := range s.Targets {
			if !ids[target] {
				return fmt.Errorf("%w: synchronizer %q targets unknown platform %q", domain.ErrConfig, s.ID, target)
			}
		}
	}

	seen := make(map[domain.ChannelID]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if !ch.ID.Valid() {
			return fmt.Errorf("%w: unknown integration channel %q", domain.ErrConfig, ch.ID)
		}
		if seen[ch.ID] {
			return fmt.Errorf("%w: duplicate integration channel %q", domain.ErrConfig, ch.ID)
		}
		seen[ch.ID] = true
		for _, pid := range ch.Platforms {
			if !ids[pid] {
				return fmt.Errorf("%w: channel %q binds unknown platform %q", domain.ErrConfig, ch.ID, pid)
			}
		}
	}

	switch c.Settings.CascadeMode {
	case CascadeTopological, CascadeBFS:
	default:
		return fmt.Errorf("%w: unknown cascadeMode %q", domain.ErrConfig, c.Settings.CascadeMode)
	}
	switch c.Settings.Store {
	case StoreMemory, StoreFile:
	case StoreRedis:
		if c.Settings.Redis.Addr == "" {
			return fmt.Errorf("%w: store is redis but redis.addr is empty", domain.ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", domain.ErrConfig, c.Settings.Store)
	}
	return nil
}

func (c *Config) resolvePaths() {
	for i := range c.Platforms {
		c.Platforms[i].Dir = c.abs(c.Platforms[i].Dir)
	}
	for i := range c.Synchronizers {
		for j, glob := range c.Synchronizers[i].WatchPaths {
			c.Synchronizers[i].WatchPaths[j] = filepath.ToSlash(c.abs(glob))
		}
	}
	c.Settings.ReportPath = c.abs(c.Settings.ReportPath)
	c.Settings.StateDir = c.abs(c.Settings.StateDir)
	c.Settings.VaultDir = c.abs(c.Settings.VaultDir)
}

func (c *Config) abs(path string) string {
	if path == "" || filepath.IsAbs(path) || c.BaseDir == "" {
		return path
	}
	return filepath.Join(c.BaseDir, path)
}
