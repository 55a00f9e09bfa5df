// Package config loads pipeline settings from YAML and watches the
// settings file for runtime changes.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Settings is the on-disk configuration shared by the pipeline
// binaries. Every section has working defaults; a missing file is not
// an error for the services, only for the producer's required stream.
type Settings struct {
	Stream   StreamSettings   `yaml:"stream"`
	Producer ProducerSettings `yaml:"producer"`
	Ingest   IngestSettings   `yaml:"ingest"`
	Storage  StorageSettings  `yaml:"storage"`
}

// StreamSettings names the event stream and its brokers.
type StreamSettings struct {
	Topic         string   `yaml:"topic"`
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	// NotifyTopic carries object-created notifications from ingest to
	// the transformer.
	NotifyTopic string `yaml:"notifyTopic"`
}

// ProducerSettings controls synthetic event generation.
type ProducerSettings struct {
	Rate      float64 `yaml:"rate"`      // events per second
	Duration  string  `yaml:"duration"`  // total run time, e.g. "60s"
	BatchSize int     `yaml:"batchSize"` // records per publish
}

// IngestSettings controls the ingest service. Validation is
// hot-reloadable through the settings watcher.
type IngestSettings struct {
	Validation *bool `yaml:"validation"`
}

// StorageSettings names the object store buckets.
type StorageSettings struct {
	RawBucket       string `yaml:"rawBucket"`
	ProcessedBucket string `yaml:"processedBucket"`
}

// Default returns settings with every field at its working default.
func Default() *Settings {
	validation := true
	return &Settings{
		Stream: StreamSettings{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "lakeflow-ingest",
			NotifyTopic:   "lakeflow-notifications",
		},
		Producer: ProducerSettings{
			Rate:      10,
			Duration:  "60s",
			BatchSize: 10,
		},
		Ingest: IngestSettings{Validation: &validation},
		Storage: StorageSettings{
			RawBucket:       "events-raw",
			ProcessedBucket: "events-processed",
		},
	}
}

// ValidationEnabled resolves the hot-reloadable validation toggle.
func (s *Settings) ValidationEnabled() bool {
	if s.Ingest.Validation == nil {
		return true
	}
	return *s.Ingest.Validation
}

// RunDuration parses the producer duration.
func (p ProducerSettings) RunDuration() (time.Duration, error) {
	if p.Duration == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.Duration)
	if err != nil {
		return 0, fmt.Errorf("parse producer duration %q: %w", p.Duration, err)
	}
	return d, nil
}

// Load reads settings from path, layered over defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings yaml: %w", err)
	}
	if _, err := s.Producer.RunDuration(); err != nil {
		return nil, err
	}
	return s, nil
}

// Loader loads and watches a settings file.
type Loader struct {
	mu       sync.RWMutex
	settings *Settings
	path     string
	logger   *slog.Logger
	onChange func(*Settings)
}

// NewLoader creates a loader for the given settings file.
func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		settings: Default(),
		path:     path,
		logger:   logger,
	}
}

// OnChange registers a callback that fires when the file changes.
func (l *Loader) OnChange(fn func(*Settings)) {
	l.onChange = fn
}

// Load reads the settings file and caches the result.
func (l *Loader) Load() (*Settings, error) {
	s, err := Load(l.path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.settings = s
	l.mu.Unlock()
	return s, nil
}

// Settings returns the most recently loaded settings.
func (l *Loader) Settings() *Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings
}

// Watch blocks, reloading the settings file on change, until done
// closes. Watching the parent directory survives editors that replace
// the file on save.
func (l *Loader) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %s: %w", dir, err)
	}

	l.logger.Info("watching settings file", "path", l.path)

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(l.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				l.logger.Info("settings change detected", "file", event.Name, "op", event.Op)
				s, err := l.Load()
				if err != nil {
					l.logger.Error("failed to reload settings", "error", err)
					continue
				}
				if l.onChange != nil {
					l.onChange(s)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("watcher error", "error", err)
		}
	}
}
