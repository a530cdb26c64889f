package config

import (
	"fmt"
	"strings"
)

// Validate reports every invalid value in cfg at once.
func Validate(cfg *Config) error {
	var problems []string

	switch cfg.Backend {
	case BackendSim, BackendWebview:
	default:
		problems = append(problems, fmt.Sprintf("backend must be %q or %q, got %q", BackendSim, BackendWebview, cfg.Backend))
	}
	if cfg.Threads < 0 {
		problems = append(problems, "threads must be non-negative")
	}
	problems = append(problems, validateLogging(&cfg.Logging)...)
	problems = append(problems, validateWindow(&cfg.Window)...)

	if len(problems) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func validateLogging(l *LoggingConfig) []string {
	var problems []string
	switch l.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not a known level", l.Level))
	}
	switch l.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format must be console or json, got %q", l.Format))
	}
	return problems
}

func validateWindow(w *WindowConfig) []string {
	var problems []string
	if w.Width <= 0 {
		problems = append(problems, "window.width must be positive")
	}
	if w.Height <= 0 {
		problems = append(problems, "window.height must be positive")
	}
	return problems
}

// normalize folds case-insensitive values into canonical form.
func normalize(cfg *Config) {
	cfg.Backend = Backend(strings.ToLower(string(cfg.Backend)))
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Backend == "" {
		cfg.Backend = BackendSim
	}
}
