package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// FileName is the configuration file searched for, without extension.
const FileName = "glazejs"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GLAZEJS"

// Manager loads the configuration and reloads it when the file changes.
type Manager struct {
	viper *viper.Viper
	log   zerolog.Logger

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	watching  bool
}

// Options configures a Manager.
type Options struct {
	// File, when set, is read instead of searching for glazejs.toml.
	File string

	// Dirs are searched in order; empty means the working directory and
	// the user config directory.
	Dirs []string

	Logger zerolog.Logger
}

// NewManager creates a manager. Nothing is read until Load.
func NewManager(opts Options) (*Manager, error) {
	v := viper.New()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("toml")
		dirs := opts.Dirs
		if len(dirs) == 0 {
			dirs = defaultDirs()
		}
		for _, d := range dirs {
			v.AddConfigPath(d)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"logging.level":  "GLAZEJS_LOG_LEVEL",
		"logging.format": "GLAZEJS_LOG_FORMAT",
		"library_path":   "GLAZEJS_LIBRARY_PATH",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	return &Manager{viper: v, log: opts.Logger}, nil
}

func defaultDirs() []string {
	dirs := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, "glazejs"))
	}
	return dirs
}

func (m *Manager) setDefaults() {
	d := Default()
	m.viper.SetDefault("backend", string(d.Backend))
	m.viper.SetDefault("library_path", d.LibraryPath)
	m.viper.SetDefault("debug", d.Debug)
	m.viper.SetDefault("threads", d.Threads)
	m.viper.SetDefault("logging.level", d.Logging.Level)
	m.viper.SetDefault("logging.format", d.Logging.Format)
	m.viper.SetDefault("window.title", d.Window.Title)
	m.viper.SetDefault("window.width", d.Window.Width)
	m.viper.SetDefault("window.height", d.Window.Height)
}

// Load reads the file, if any, and the environment. A missing file is not an
// error: defaults and environment still apply.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setDefaults()
	if err := m.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file %s: %w", m.viper.ConfigFileUsed(), err)
		}
		m.log.Debug().Msg("no config file, using defaults")
	}

	cfg, err := m.decode()
	if err != nil {
		return err
	}
	m.config = cfg
	return nil
}

func (m *Manager) decode() (*Config, error) {
	cfg := &Config{}
	if err := m.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", m.viper.ConfigFileUsed(), err)
	}
	normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Config returns the current configuration, or the defaults before Load.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return Default()
	}
	return m.config
}

// File returns the path of the file in use, if any.
func (m *Manager) File() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viper.ConfigFileUsed()
}

// Set overrides a key for this process, as a command-line flag would.
func (m *Manager) Set(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.viper.Set(key, value)
	cfg, err := m.decode()
	if err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// OnChange registers fn to run after every successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Watch reloads the configuration whenever its file changes. Invalid edits
// are logged and the previous configuration stays in effect.
func (m *Manager) Watch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watching || m.viper.ConfigFileUsed() == "" {
		return
	}
	m.watching = true

	m.viper.OnConfigChange(func(e fsnotify.Event) {
		m.log.Debug().Str("op", e.Op.String()).Str("file", e.Name).Msg("config change detected")
		m.reload()
	})
	m.viper.WatchConfig()
}

func (m *Manager) reload() {
	m.mu.Lock()
	if err := m.viper.ReadInConfig(); err != nil {
		m.mu.Unlock()
		m.log.Warn().Err(err).Msg("failed to reload config")
		return
	}
	cfg, err := m.decode()
	if err != nil {
		m.mu.Unlock()
		m.log.Warn().Err(err).Msg("failed to reload config")
		return
	}
	m.config = cfg
	callbacks := append([]func(*Config)(nil), m.callbacks...)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}
