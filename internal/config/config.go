// Package config loads glazejs settings from glazejs.toml, GLAZEJS_*
// environment variables and defaults.
package config

// Backend names a native toolkit.
type Backend string

const (
	BackendSim     Backend = "sim"
	BackendWebview Backend = "webview"
)

// Config is the full configuration.
type Config struct {
	// Backend selects the native toolkit.
	Backend Backend `mapstructure:"backend" json:"backend" jsonschema:"enum=sim,enum=webview,default=sim,description=Native toolkit backend"`

	// LibraryPath overrides the webview library search.
	LibraryPath string `mapstructure:"library_path" json:"library_path,omitempty" jsonschema:"description=Path to the webview shared library"`

	// Debug enables developer tools in new windows.
	Debug bool `mapstructure:"debug" json:"debug" jsonschema:"description=Enable developer tools"`

	// Threads bounds the toolkit worker pool; zero selects GOMAXPROCS.
	Threads int `mapstructure:"threads" json:"threads" jsonschema:"minimum=0,description=Worker pool size (0 for GOMAXPROCS)"`

	Logging LoggingConfig `mapstructure:"logging" json:"logging"`
	Window  WindowConfig  `mapstructure:"window" json:"window"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level" jsonschema:"enum=trace,enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Format string `mapstructure:"format" json:"format" jsonschema:"enum=console,enum=json,default=console"`
}

// WindowConfig holds defaults for windows created by scripts.
type WindowConfig struct {
	Title  string `mapstructure:"title" json:"title"`
	Width  int    `mapstructure:"width" json:"width" jsonschema:"minimum=1,default=800"`
	Height int    `mapstructure:"height" json:"height" jsonschema:"minimum=1,default=600"`
}

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "console"
	defaultTitle     = "glazejs"
	defaultWidth     = 800
	defaultHeight    = 600
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: BackendSim,
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Window: WindowConfig{
			Title:  defaultTitle,
			Width:  defaultWidth,
			Height: defaultHeight,
		},
	}
}
