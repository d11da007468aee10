// Package config loads the editor engine's configuration from a YAML file,
// overlays environment variables, and watches the file for changes so an
// operator can retune most settings without a restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/mantonx/videoforge/internal/logger"
)

// Config is the root configuration for the engine process.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	HotFolder HotFolderConfig `yaml:"hot_folder"`
	Database DatabaseConfig `yaml:"database"`
	Debug   DebugConfig   `yaml:"debug"`
}

type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" default:":8080"`
	GRPCAddr string `yaml:"grpc_addr" default:":9090"`
}

// EngineConfig holds the values spec §5/§9 call out as process-wide
// constants. FPSInternal is immutable after first load: changing it on a
// running engine would invalidate every timestamp already computed against
// it, so Reload refuses to apply a changed value and logs a warning instead.
type EngineConfig struct {
	FPSInternal              int     `yaml:"fps_internal" default:"24"`
	DemuxChunkSize           int     `yaml:"demux_chunk_size" default:"30"`
	DemuxYieldMS             int     `yaml:"demux_yield_ms" default:"10"`
	DemuxSizeGuardBytes      int64   `yaml:"demux_size_guard_bytes" default:"1073741824"`
	ExportDefaultFPS         float64 `yaml:"export_default_fps" default:"30"`
	ProgressiveFirstPassFPS  float64 `yaml:"progressive_first_pass_fps" default:"2"`
	SpeedAnchorWindowMS      int64   `yaml:"speed_anchor_window_ms" default:"500"`
}

// HotFolderConfig controls the ingest watcher (spec §6 supplement).
type HotFolderConfig struct {
	Enabled bool   `yaml:"enabled" default:"false"`
	Path    string `yaml:"path"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" default:"sqlite"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn" default:"videoforge.db"`
}

type DebugConfig struct {
	EnableDebugLogs bool `yaml:"enable_debug_logs" default:"false"`
	LogRequests     bool `yaml:"log_requests" default:"false"`
}

// Default returns a configuration with every documented default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: ":8080", GRPCAddr: ":9090"},
		Engine: EngineConfig{
			FPSInternal:             24,
			DemuxChunkSize:          30,
			DemuxYieldMS:            10,
			DemuxSizeGuardBytes:     1 << 30,
			ExportDefaultFPS:        30,
			ProgressiveFirstPassFPS: 2,
			SpeedAnchorWindowMS:     500,
		},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "videoforge.db"},
	}
}

// Validate rejects configurations that would violate an engine invariant.
func (c *Config) Validate() error {
	if c.Engine.FPSInternal <= 0 {
		return &ValidationError{Field: "engine.fps_internal", Message: "must be positive"}
	}
	if c.Engine.DemuxChunkSize <= 0 {
		return &ValidationError{Field: "engine.demux_chunk_size", Message: "must be positive"}
	}
	if c.Engine.DemuxYieldMS < 0 {
		return &ValidationError{Field: "engine.demux_yield_ms", Message: "must not be negative"}
	}
	if c.Engine.DemuxSizeGuardBytes <= 0 {
		return &ValidationError{Field: "engine.demux_size_guard_bytes", Message: "must be positive"}
	}
	if c.Engine.ExportDefaultFPS <= 0 {
		return &ValidationError{Field: "engine.export_default_fps", Message: "must be positive"}
	}
	return nil
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}

// Load reads path as YAML over Default(), then applies VIDEOFORGE_-prefixed
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VIDEOFORGE_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv("VIDEOFORGE_FPS_INTERNAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.FPSInternal = n
		}
	}
	if v := os.Getenv("VIDEOFORGE_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
}

// Watcher wraps a Config with fsnotify-driven hot reload. Subscribers are
// invoked with the new Config on every successful reload.
type Watcher struct {
	mu          sync.RWMutex
	cfg         *Config
	path        string
	subscribers []func(*Config)
}

func NewWatcher(path string, cfg *Config) *Watcher {
	return &Watcher{cfg: cfg, path: path}
}

func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// Watch blocks, reloading the config file on write events until ctx's done
// channel (passed via stop) closes. It is meant to run in its own goroutine.
func (w *Watcher) Watch(stop <-chan struct{}) error {
	if w.path == "" {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.path); err != nil {
		return fmt.Errorf("config watcher add: %w", err)
	}

	var debounce *time.Timer
	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(150*time.Millisecond, w.reload)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", []logger.Field{logger.Err("error", err)})
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		logger.Warn("config reload failed, keeping previous config", []logger.Field{logger.Err("error", err)})
		return
	}

	w.mu.Lock()
	prev := w.cfg
	if next.Engine.FPSInternal != prev.Engine.FPSInternal {
		logger.Warn("engine.fps_internal changed in config file but is immutable at runtime, ignoring",
			[]logger.Field{logger.Int("previous", prev.Engine.FPSInternal), logger.Int("attempted", next.Engine.FPSInternal)})
		next.Engine.FPSInternal = prev.Engine.FPSInternal
	}
	w.cfg = next
	subs := append([]func(*Config){}, w.subscribers...)
	w.mu.Unlock()

	logger.Info("config reloaded", []logger.Field{logger.String("path", w.path)})
	for _, fn := range subs {
		fn(next)
	}
}

// redactForLog renders a config summary safe to log: DSNs can carry
// credentials, so only the driver name is included.
func redactForLog(c *Config) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "http=%s fps_internal=%d db_driver=%s", c.Server.HTTPAddr, c.Engine.FPSInternal, c.Database.Driver)
	return sb.String()
}
