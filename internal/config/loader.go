package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
)

const envPrefix = "CHEMSCREEN"

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindStructKeys(v, reflect.TypeOf(Config{}), "")
	return v
}

// bindStructKeys registers every mapstructure key of the config tree with
// viper so that AutomaticEnv resolves CHEMSCREEN_* variables even when no
// config file mentions the key.
func bindStructKeys(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			bindStructKeys(v, f.Type, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

// Load reads configuration from the given YAML file, layers environment
// variables with the CHEMSCREEN_ prefix on top, applies defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds configuration purely from defaults and CHEMSCREEN_
// environment variables. Useful in containers where no file is mounted.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// MustLoad is Load that panics on error. Reserved for main functions.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watcher re-reads a configuration file whenever it changes on disk and
// delivers the validated result to a callback. Editors that replace the file
// atomically emit Rename/Create rather than Write, so the watcher tracks the
// parent directory and filters by name.
type Watcher struct {
	path     string
	log      logging.Logger
	onChange func(*Config)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a Watcher for the config file at path. onChange is
// invoked from the watch goroutine with each successfully reloaded Config;
// reload failures are logged and the previous configuration stays in effect.
func NewWatcher(path string, log logging.Logger, onChange func(*Config)) *Watcher {
	return &Watcher{path: filepath.Clean(path), log: log, onChange: onChange}
}

// Start begins watching. It returns immediately; callers stop the watch
// goroutine with Close.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating fs watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("config: watching %s: %w", filepath.Dir(w.path), err)
	}

	w.mu.Lock()
	w.watcher = fw
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(fw)
	return nil
}

func (w *Watcher) loop(fw *fsnotify.Watcher) {
	// Debounce bursts of events from editors that truncate then write.
	var timer *time.Timer
	const settle = 200 * time.Millisecond

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(settle, w.reload)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watch error", logging.Err(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Error("config reload failed, keeping previous configuration",
			logging.String("path", w.path), logging.Err(err))
		return
	}
	w.log.Info("configuration reloaded", logging.String("path", w.path))
	w.onChange(cfg)
}

// Close stops the watch goroutine and releases the underlying watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		close(w.done)
		w.done = nil
	}
	if w.watcher != nil {
		err := w.watcher.Close()
		w.watcher = nil
		return err
	}
	return nil
}
