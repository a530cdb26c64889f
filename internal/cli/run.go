package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grafana/sobek"
	"github.com/spf13/cobra"

	"github.com/crgimenes/glazejs"
	"github.com/crgimenes/glazejs/internal/config"
	"github.com/crgimenes/glazejs/internal/logging"
)

const reloadDelay = 100 * time.Millisecond

type runFlags struct {
	backend string
	debug   bool
	watch   []string
}

func newRunCommand(e *env) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <script.js>",
		Short: "Run a script with the glaze module installed",
		Long: `Run evaluates the script on the host loop with the global "glaze"
module installed, then drives the toolkit until the script quits the
application or the process is interrupted.

With --watch, every open webview reloads when one of the watched files
or the configuration file changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return e.run(ctx, args[0], f)
		},
	}

	cmd.Flags().StringVar(&f.backend, "backend", "", "toolkit backend: sim or webview")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "enable developer tools")
	cmd.Flags().StringSliceVar(&f.watch, "watch", nil, "reload webviews when these files change")
	return cmd
}

func (e *env) run(ctx context.Context, path string, f runFlags) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	if f.backend != "" {
		if err := e.manager.Set("backend", f.backend); err != nil {
			return err
		}
	}
	if f.debug {
		if err := e.manager.Set("debug", true); err != nil {
			return err
		}
	}
	cfg := e.manager.Config()

	app, err := glazejs.New(appOptions(cfg, e))
	if err != nil {
		return err
	}
	defer app.Close()

	failed := make(chan error, 1)
	err = app.Enqueue(func(rt *sobek.Runtime) error {
		if _, err := glazejs.Install(rt, app); err != nil {
			failed <- err
			app.Quit()
			return nil
		}
		if _, err := rt.RunScript(path, string(src)); err != nil {
			failed <- fmt.Errorf("script failed: %w", err)
			app.Quit()
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(f.watch) > 0 {
		reload := func() { reloadWebviews(app) }
		w, err := watchFiles(f.watch, reloadDelay, e.log, reload)
		if err != nil {
			return err
		}
		defer w.Close()

		e.manager.OnChange(func(*config.Config) { reload() })
		e.manager.Watch()
	}

	logging.FromContext(ctx).Info().Str("script", path).Str("backend", string(cfg.Backend)).Msg("running")
	if err := app.Run(ctx); err != nil {
		return err
	}

	select {
	case err := <-failed:
		return err
	default:
		return nil
	}
}

func appOptions(cfg *config.Config, e *env) glazejs.Options {
	return glazejs.Options{
		Backend:     string(cfg.Backend),
		LibraryPath: cfg.LibraryPath,
		Threads:     cfg.Threads,
		Logger:      e.log,
		Defaults: glazejs.WebviewOptions{
			Title:  cfg.Window.Title,
			Width:  cfg.Window.Width,
			Height: cfg.Window.Height,
			Debug:  cfg.Debug,
		},
	}
}

func reloadWebviews(app *glazejs.App) {
	log := app.Logger()
	err := app.Enqueue(func(*sobek.Runtime) error {
		for _, w := range app.Webviews() {
			if err := w.Reload(); err != nil && !errors.Is(err, glazejs.ErrDestroyed) {
				log.Warn().Err(err).Msg("failed to reload webview")
			}
		}
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("reload skipped")
	}
}
