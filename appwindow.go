package glazejs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/grafana/sobek"
	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/native"
	"github.com/crgimenes/glazejs/internal/scheme"
)

// AppTransport selects how AppWindow delivers the handler to the page.
type AppTransport string

const (
	// AppTransportAuto uses a custom scheme when the backend has them and
	// a loopback TCP server otherwise.
	AppTransportAuto AppTransport = "auto"

	// AppTransportScheme serves the handler through a custom URL scheme,
	// without opening a socket.
	AppTransportScheme AppTransport = "scheme"

	// AppTransportTCP serves the handler from a loopback HTTP server.
	AppTransportTCP AppTransport = "tcp"
)

// AppOptions configures an AppWindow.
type AppOptions struct {
	// Title is the window title.
	Title string

	// Width and Height set the initial window dimensions.
	Width  int
	Height int

	// Debug enables the browser developer tools.
	Debug bool

	// Backend selects the toolkit, as in Options.
	Backend     string
	LibraryPath string
	Logger      zerolog.Logger

	// Transport defaults to AppTransportAuto.
	Transport AppTransport

	// Scheme names the custom scheme. Defaults to "app".
	Scheme string

	// Addr is the listen address for the TCP transport.
	// Defaults to "127.0.0.1:0" (random port on loopback).
	Addr string

	// Handler is the HTTP handler to serve (typically an http.ServeMux).
	Handler http.Handler

	// Setup, when set, runs on the host loop once the window exists and
	// before the first navigation, for example to expose Go functions.
	Setup func(w *Webview) error

	// OnReady is called with the base URL once the handler is reachable.
	OnReady func(url string)
}

// AppWindow opens a window showing opts.Handler and runs until the window
// closes or ctx is done. Closing the window quits the application on every
// backend.
//
// A full net/http application (templates, assets, routes) works unmodified:
// pass its mux as opts.Handler.
func AppWindow(ctx context.Context, opts AppOptions) error {
	if opts.Handler == nil {
		return errors.New("glazejs: AppOptions.Handler must not be nil")
	}
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 768
	}
	if opts.Title == "" {
		opts.Title = "App"
	}
	if opts.Scheme == "" {
		opts.Scheme = "app"
	}
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}

	transport, err := resolveAppTransport(opts.Transport, opts.Backend != BackendWebview)
	if err != nil {
		return err
	}

	app, err := New(Options{Backend: opts.Backend, LibraryPath: opts.LibraryPath, Logger: opts.Logger})
	if err != nil {
		return err
	}
	defer app.Close()

	var baseURL string
	var srv *http.Server
	if transport == AppTransportTCP {
		ln, err := net.Listen("tcp", opts.Addr)
		if err != nil {
			return fmt.Errorf("glazejs: listen %s: %w", opts.Addr, err)
		}
		baseURL = "http://" + ln.Addr().String()
		srv = &http.Server{Handler: opts.Handler}
		go func() { _ = srv.Serve(ln) }()
		defer srv.Close()
	}

	if transport == AppTransportScheme {
		if err := app.RegisterScheme(opts.Scheme); err != nil {
			return err
		}
	}

	// Run owns the calling goroutine; the window is set up from the host
	// loop once it is running.
	ready := make(chan error, 1)
	err = app.Enqueue(func(rt *sobek.Runtime) error {
		fail := func(err error) error {
			ready <- err
			app.Quit()
			return nil
		}
		w, err := app.NewWebview(WebviewOptions{
			Title:  opts.Title,
			Width:  opts.Width,
			Height: opts.Height,
			Debug:  opts.Debug,
		})
		if err != nil {
			return fail(err)
		}
		quit := rt.ToValue(func(sobek.FunctionCall) sobek.Value {
			app.Quit()
			return sobek.Undefined()
		})
		if err := w.On(string(native.EventClosed), quit); err != nil {
			return fail(err)
		}
		if transport == AppTransportScheme {
			h := scheme.HTTPHandler(opts.Handler)
			if err := w.HandleSchemeWith(opts.Scheme, h, native.LaunchAsync); err != nil {
				return fail(err)
			}
			baseURL = opts.Scheme + "://app/"
		}
		if opts.Setup != nil {
			if err := opts.Setup(w); err != nil {
				return fail(err)
			}
		}
		err = w.Navigate(baseURL)
		if err == nil && opts.OnReady != nil {
			opts.OnReady(baseURL)
		}
		ready <- err
		return nil
	})
	if err != nil {
		return err
	}

	runErr := app.Run(ctx)
	select {
	case err := <-ready:
		if err != nil {
			return err
		}
	default:
	}
	return runErr
}

// resolveAppTransport picks the transport for a backend.
func resolveAppTransport(requested AppTransport, schemes bool) (AppTransport, error) {
	switch requested {
	case "", AppTransportAuto:
		if schemes {
			return AppTransportScheme, nil
		}
		return AppTransportTCP, nil
	case AppTransportScheme:
		if !schemes {
			return "", fmt.Errorf("glazejs: backend has no custom schemes: %w", native.ErrUnsupported)
		}
		return AppTransportScheme, nil
	case AppTransportTCP:
		return AppTransportTCP, nil
	default:
		return "", fmt.Errorf("glazejs: invalid transport %q", requested)
	}
}
