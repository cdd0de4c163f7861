package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config sizes the store, its history and its diagnostics.
type Config struct {
	Store    StoreConfig
	History  HistoryConfig
	Log      LogConfig
	Throttle ThrottleConfig
	Persist  PersistConfig
	Metrics  MetricsConfig
}

type StoreConfig struct {
	// FeedbackBuffer is the capacity of the channel carrying effect results
	// back into the store.
	FeedbackBuffer int
	// SubscriberBuffer is the default snapshot buffer per subscriber.
	SubscriberBuffer int
}

type HistoryConfig struct {
	MaxEntries int
}

type LogConfig struct {
	Level string
}

type ThrottleConfig struct {
	Window time.Duration
}

type PersistConfig struct {
	Codec string
	Key   string
}

type MetricsConfig struct {
	Namespace string
}

const (
	defaultConfigPath       = "~/.config/effective_store/config.toml"
	defaultFeedbackBuffer   = 64
	defaultSubscriberBuffer = 16
	defaultMaxEntries       = 1000
	defaultLogLevel         = "info"
	defaultThrottleWindow   = 300 * time.Millisecond
	defaultCodec            = "json"
	defaultPersistKey       = "state"
	defaultMetricsNamespace = "store"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Store: StoreConfig{
			FeedbackBuffer:   defaultFeedbackBuffer,
			SubscriberBuffer: defaultSubscriberBuffer,
		},
		History:  HistoryConfig{MaxEntries: defaultMaxEntries},
		Log:      LogConfig{Level: defaultLogLevel},
		Throttle: ThrottleConfig{Window: defaultThrottleWindow},
		Persist:  PersistConfig{Codec: defaultCodec, Key: defaultPersistKey},
		Metrics:  MetricsConfig{Namespace: defaultMetricsNamespace},
	}
}

type rawConfig struct {
	Store struct {
		FeedbackBuffer   int `toml:"feedback_buffer"`
		SubscriberBuffer int `toml:"subscriber_buffer"`
	} `toml:"store"`
	History struct {
		MaxEntries int `toml:"max_entries"`
	} `toml:"history"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
	Throttle struct {
		Window string `toml:"window"`
	} `toml:"throttle"`
	Persist struct {
		Codec string `toml:"codec"`
		Key   string `toml:"key"`
	} `toml:"persist"`
	Metrics struct {
		Namespace string `toml:"namespace"`
	} `toml:"metrics"`
}

// Load reads the TOML file at path, falling back to defaults when the file or
// any of its fields is missing. An empty path means the default location.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(bytes)
}

// Parse decodes TOML bytes over the defaults.
func Parse(bytes []byte) (Config, error) {
	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if raw.Store.FeedbackBuffer > 0 {
		cfg.Store.FeedbackBuffer = raw.Store.FeedbackBuffer
	}
	if raw.Store.SubscriberBuffer > 0 {
		cfg.Store.SubscriberBuffer = raw.Store.SubscriberBuffer
	}
	if raw.History.MaxEntries > 0 {
		cfg.History.MaxEntries = raw.History.MaxEntries
	}
	if level := strings.TrimSpace(raw.Log.Level); level != "" {
		cfg.Log.Level = strings.ToLower(level)
	}
	if window := strings.TrimSpace(raw.Throttle.Window); window != "" {
		d, err := time.ParseDuration(window)
		if err != nil {
			return Config{}, fmt.Errorf("parse config: throttle.window: %w", err)
		}
		cfg.Throttle.Window = d
	}
	if codec := strings.TrimSpace(raw.Persist.Codec); codec != "" {
		cfg.Persist.Codec = strings.ToLower(codec)
	}
	if key := strings.TrimSpace(raw.Persist.Key); key != "" {
		cfg.Persist.Key = key
	}
	if ns := strings.TrimSpace(raw.Metrics.Namespace); ns != "" {
		cfg.Metrics.Namespace = ns
	}
	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
