package config

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/jpequegn/ttsdispatch/internal/model"
)

// Config holds the standalone/CLI-driven defaults: upstream server
// list, concurrency tunables, and the HTTP façade's bind address.
// Per-request submissions through /upload may override Servers on a
// per-batch basis (spec.md §6); the size thresholds always come from
// here. This struct only supplies what a batch doesn't specify.
type Config struct {
	HTTPHost string
	HTTPPort int

	UploadDir string

	Servers []model.UpstreamServer

	// GlobalConcurrencyLimit is GLOBAL_CONCURRENCY_LIMIT; 0 disables the
	// process-wide semaphore.
	GlobalConcurrencyLimit int
	// BalancerMaxConcurrency is BALANCER_MAX_CONCURRENCY; 0 means "use
	// the worker count" for G.
	BalancerMaxConcurrency int

	MinAudioSizeBytes    int
	MinAudioBytesPerChar float64

	// HistoryDBPath is HISTORY_DB_PATH; empty disables the history
	// ledger entirely.
	HistoryDBPath string
}

// Store holds the live Config, safely swappable when the config file
// changes underneath a running process (viper.WatchConfig).
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// New wraps a fully-formed Config in a Store, for callers (such as the
// server package tests) that already have concrete values and don't
// need file-backed live reload.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Store) set(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_host", "0.0.0.0")
	v.SetDefault("http_port", 5055)
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("global_concurrency_limit", 0)
	v.SetDefault("balancer_max_concurrency", 0)
	v.SetDefault("min_audio_size_bytes", 4096)
	v.SetDefault("min_audio_bytes_per_char", 3.0)
	v.SetDefault("history_db_path", "")
}

// bindLiteralEnvNames binds each key to its spec.md §6 literal
// environment variable name (FLASK_HOST, GLOBAL_CONCURRENCY_LIMIT,
// TTS_MIN_AUDIO_SIZE_BYTES, ...) ahead of the TTSDISPATCH_-prefixed
// name AutomaticEnv already derives, so both forms work and the bare
// name wins when both are set.
func bindLiteralEnvNames(v *viper.Viper) {
	binds := map[string][]string{
		"http_host":                {"FLASK_HOST", "TTSDISPATCH_HTTP_HOST"},
		"http_port":                {"FLASK_PORT", "TTSDISPATCH_HTTP_PORT"},
		"upload_dir":               {"UPLOAD_FOLDER", "TTSDISPATCH_UPLOAD_DIR"},
		"global_concurrency_limit": {"GLOBAL_CONCURRENCY_LIMIT", "TTSDISPATCH_GLOBAL_CONCURRENCY_LIMIT"},
		"balancer_max_concurrency": {"BALANCER_MAX_CONCURRENCY", "TTSDISPATCH_BALANCER_MAX_CONCURRENCY"},
		"min_audio_size_bytes":     {"TTS_MIN_AUDIO_SIZE_BYTES", "TTSDISPATCH_MIN_AUDIO_SIZE_BYTES"},
		"min_audio_bytes_per_char": {"TTS_MIN_AUDIO_BYTES_PER_CHAR", "TTSDISPATCH_MIN_AUDIO_BYTES_PER_CHAR"},
		"history_db_path":          {"HISTORY_DB_PATH", "TTSDISPATCH_HISTORY_DB_PATH"},
	}
	for key, names := range binds {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			slog.Warn("config: failed to bind env var", "key", key, "error", err)
		}
	}
}

func fromViper(v *viper.Viper) Config {
	var servers []model.UpstreamServer
	if err := v.UnmarshalKey("servers", &servers); err != nil {
		slog.Warn("config: failed to decode servers list", "error", err)
	}

	return Config{
		HTTPHost:               v.GetString("http_host"),
		HTTPPort:               v.GetInt("http_port"),
		UploadDir:              v.GetString("upload_dir"),
		Servers:                servers,
		GlobalConcurrencyLimit: v.GetInt("global_concurrency_limit"),
		BalancerMaxConcurrency: v.GetInt("balancer_max_concurrency"),
		MinAudioSizeBytes:      v.GetInt("min_audio_size_bytes"),
		MinAudioBytesPerChar:   v.GetFloat64("min_audio_bytes_per_char"),
		HistoryDBPath:          v.GetString("history_db_path"),
	}
}

// Load reads configFile (or searches the current directory for
// ttsdispatch.yaml if empty), binds both the literal spec.md §6 env var
// names (FLASK_HOST, GLOBAL_CONCURRENCY_LIMIT, TTS_MIN_AUDIO_SIZE_BYTES,
// ...) and their TTSDISPATCH_-prefixed equivalents, and returns a Store
// that keeps itself current as the file changes on disk.
func Load(configFile string) (*Store, error) {
	v := viper.New()
	setDefaults(v)
	bindLiteralEnvNames(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("ttsdispatch")
	}

	v.SetEnvPrefix("TTSDISPATCH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
		slog.Info("config: no config file found, using defaults and environment")
	} else {
		slog.Info("config: loaded config file", "path", v.ConfigFileUsed())
	}

	store := &Store{cfg: fromViper(v)}

	v.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("config: file changed, reloading", "path", e.Name)
		store.set(fromViper(v))
	})
	v.WatchConfig()

	return store, nil
}
