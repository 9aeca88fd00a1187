// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pmcore configuration.
type Config struct {
	Version int `yaml:"version"`

	Log       LogConfig       `yaml:"log"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Replay    ReplayConfig    `yaml:"replay"`
	Alignment AlignmentConfig `yaml:"alignment"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig names the attributes the core reads from events and traces.
type LogConfig struct {
	ActivityKey       string `yaml:"activity_key" validate:"required"`
	TimestampKey      string `yaml:"timestamp_key" validate:"required"`
	StartTimestampKey string `yaml:"start_timestamp_key"`
	CaseIDKey         string `yaml:"case_id_key" validate:"required"`
	ResourceKey       string `yaml:"resource_key"`
	LifecycleKey      string `yaml:"lifecycle_key"`

	BusinessHours     bool       `yaml:"business_hours"`
	BusinessHourSlots [][2]int64 `yaml:"business_hour_slots"`
}

// DiscoveryConfig holds miner thresholds.
type DiscoveryConfig struct {
	NoiseThreshold      float64 `yaml:"noise_threshold" validate:"gte=0,lte=1"`
	DependencyThreshold float64 `yaml:"dependency_threshold" validate:"gte=-1,lte=1"`
	AndThreshold        float64 `yaml:"and_threshold" validate:"gte=0"`
	LoopTwoThreshold    float64 `yaml:"loop_two_threshold" validate:"gte=0,lte=1"`
	MinDFGOccurrences   int     `yaml:"min_dfg_occurrences" validate:"gte=0"`
}

// ReplayConfig controls token-based replay.
type ReplayConfig struct {
	MaxSilentSteps  int `yaml:"max_silent_steps" validate:"gte=0"`
	MaxSilentStates int `yaml:"max_silent_states" validate:"gte=0"`
	Workers         int `yaml:"workers" validate:"gte=0"` // 0 = sequential
}

// AlignmentConfig controls alignment search.
type AlignmentConfig struct {
	Variant       string        `yaml:"variant" validate:"oneof=astar dijkstra dijkstra_low_memory discounted"`
	SyncCost      float64       `yaml:"sync_cost" validate:"gte=0"`
	LogMoveCost   float64       `yaml:"log_move_cost" validate:"gte=0"`
	ModelMoveCost float64       `yaml:"model_move_cost" validate:"gte=0"`
	SilentCost    float64       `yaml:"silent_cost" validate:"gte=0"`
	MarkingLimit  int           `yaml:"marking_limit" validate:"gte=1"`
	Exponent      float64       `yaml:"exponent" validate:"gt=1"`
	Timeout       time.Duration `yaml:"timeout"`
	Workers       int           `yaml:"workers" validate:"gte=0"`
}

// TelemetryConfig for optional tracing and metrics export.
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	PrometheusAddr string `yaml:"prometheus_addr"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Log: LogConfig{
			ActivityKey:  "concept:name",
			TimestampKey: "time:timestamp",
			CaseIDKey:    "concept:name",
			ResourceKey:  "org:resource",
			LifecycleKey: "lifecycle:transition",
		},
		Discovery: DiscoveryConfig{
			NoiseThreshold:      0.0,
			DependencyThreshold: 0.5,
			AndThreshold:        0.65,
			LoopTwoThreshold:    0.5,
			MinDFGOccurrences:   1,
		},
		Replay: ReplayConfig{
			MaxSilentSteps:  32,
			MaxSilentStates: 4096,
			Workers:         0,
		},
		Alignment: AlignmentConfig{
			Variant:       "astar",
			SyncCost:      0,
			LogMoveCost:   1,
			ModelMoveCost: 1,
			SilentCost:    0,
			MarkingLimit:  1,
			Exponent:      1.1,
			Timeout:       0,
			Workers:       0,
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("config %s: %w", path, err)
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()

	return Validate(m.config)
}

// LoadFile merges a single explicit file on top of the current configuration.
func (m *Manager) LoadFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadFile(path); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	m.paths = append(m.paths, path)
	return Validate(m.config)
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/pmcore/config.yaml")
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".pmcore", "config.yaml"))
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".pmcore.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	// Log keys
	if src.Log.ActivityKey != "" {
		m.config.Log.ActivityKey = src.Log.ActivityKey
	}
	if src.Log.TimestampKey != "" {
		m.config.Log.TimestampKey = src.Log.TimestampKey
	}
	if src.Log.StartTimestampKey != "" {
		m.config.Log.StartTimestampKey = src.Log.StartTimestampKey
	}
	if src.Log.CaseIDKey != "" {
		m.config.Log.CaseIDKey = src.Log.CaseIDKey
	}
	if src.Log.ResourceKey != "" {
		m.config.Log.ResourceKey = src.Log.ResourceKey
	}
	if src.Log.LifecycleKey != "" {
		m.config.Log.LifecycleKey = src.Log.LifecycleKey
	}
	if src.Log.BusinessHours {
		m.config.Log.BusinessHours = true
	}
	if len(src.Log.BusinessHourSlots) > 0 {
		m.config.Log.BusinessHourSlots = src.Log.BusinessHourSlots
	}

	// Discovery
	if src.Discovery.NoiseThreshold != 0 {
		m.config.Discovery.NoiseThreshold = src.Discovery.NoiseThreshold
	}
	if src.Discovery.DependencyThreshold != 0 {
		m.config.Discovery.DependencyThreshold = src.Discovery.DependencyThreshold
	}
	if src.Discovery.AndThreshold != 0 {
		m.config.Discovery.AndThreshold = src.Discovery.AndThreshold
	}
	if src.Discovery.LoopTwoThreshold != 0 {
		m.config.Discovery.LoopTwoThreshold = src.Discovery.LoopTwoThreshold
	}
	if src.Discovery.MinDFGOccurrences != 0 {
		m.config.Discovery.MinDFGOccurrences = src.Discovery.MinDFGOccurrences
	}

	// Replay
	if src.Replay.MaxSilentSteps != 0 {
		m.config.Replay.MaxSilentSteps = src.Replay.MaxSilentSteps
	}
	if src.Replay.MaxSilentStates != 0 {
		m.config.Replay.MaxSilentStates = src.Replay.MaxSilentStates
	}
	if src.Replay.Workers != 0 {
		m.config.Replay.Workers = src.Replay.Workers
	}

	// Alignment
	if src.Alignment.Variant != "" {
		m.config.Alignment.Variant = src.Alignment.Variant
	}
	if src.Alignment.SyncCost != 0 {
		m.config.Alignment.SyncCost = src.Alignment.SyncCost
	}
	if src.Alignment.LogMoveCost != 0 {
		m.config.Alignment.LogMoveCost = src.Alignment.LogMoveCost
	}
	if src.Alignment.ModelMoveCost != 0 {
		m.config.Alignment.ModelMoveCost = src.Alignment.ModelMoveCost
	}
	if src.Alignment.SilentCost != 0 {
		m.config.Alignment.SilentCost = src.Alignment.SilentCost
	}
	if src.Alignment.MarkingLimit != 0 {
		m.config.Alignment.MarkingLimit = src.Alignment.MarkingLimit
	}
	if src.Alignment.Exponent != 0 {
		m.config.Alignment.Exponent = src.Alignment.Exponent
	}
	if src.Alignment.Timeout != 0 {
		m.config.Alignment.Timeout = src.Alignment.Timeout
	}
	if src.Alignment.Workers != 0 {
		m.config.Alignment.Workers = src.Alignment.Workers
	}

	// Telemetry
	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
	if src.Telemetry.PrometheusAddr != "" {
		m.config.Telemetry.PrometheusAddr = src.Telemetry.PrometheusAddr
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	// PMCORE_ACTIVITY_KEY
	if v := os.Getenv("PMCORE_ACTIVITY_KEY"); v != "" {
		m.config.Log.ActivityKey = v
	}

	// PMCORE_TIMESTAMP_KEY
	if v := os.Getenv("PMCORE_TIMESTAMP_KEY"); v != "" {
		m.config.Log.TimestampKey = v
	}

	// PMCORE_CASE_ID_KEY
	if v := os.Getenv("PMCORE_CASE_ID_KEY"); v != "" {
		m.config.Log.CaseIDKey = v
	}

	// PMCORE_NOISE_THRESHOLD
	if v := os.Getenv("PMCORE_NOISE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			m.config.Discovery.NoiseThreshold = f
		}
	}

	// PMCORE_ALIGNMENT_TIMEOUT
	if v := os.Getenv("PMCORE_ALIGNMENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			m.config.Alignment.Timeout = d
		}
	}

	// PMCORE_WORKERS
	if v := os.Getenv("PMCORE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.config.Replay.Workers = n
			m.config.Alignment.Workers = n
		}
	}

	// PMCORE_OTLP_ENDPOINT
	if v := os.Getenv("PMCORE_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Enabled = true
		m.config.Telemetry.Endpoint = v
	}
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.paths...)
}

// Save writes the current config to the given path.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
