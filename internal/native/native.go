// Package native describes the capabilities glazejs consumes from a desktop
// webview toolkit. Backends live in sub-packages.
package native

import (
	"context"
	"errors"
	"unsafe"
)

var (
	// ErrUnsupported is returned by backends lacking a capability.
	ErrUnsupported = errors.New("native: operation not supported by backend")

	// ErrDestroyed is returned when using a webview after Destroy.
	ErrDestroyed = errors.New("native: webview destroyed")
)

// Handle identifies a native window/webview pair.
type Handle uint64

// Sink receives what a backend raises on its own goroutines. Calls block the
// raising goroutine until the host has handled them.
type Sink interface {
	// Event delivers a non-gating event.
	Event(h Handle, ev Event)

	// Policy asks for an allow/deny verdict on a gating event.
	Policy(h Handle, ev Event) bool

	// Message delivers a page message. It reports whether it was dispatched.
	Message(h Handle, msg string) bool
}

// App is a toolkit instance.
type App interface {
	// Run pumps the native UI loop until Quit or ctx is done. Some backends
	// require it to be called from the main goroutine.
	Run(ctx context.Context) error

	// Quit stops Run. Safe from any goroutine.
	Quit()

	// Post schedules fn on the native UI thread.
	Post(fn func()) error

	// Pool returns the toolkit's worker pool.
	Pool() Pool

	// NewWebview creates a window hosting a webview. Events, policy requests
	// and messages for it are delivered to sink.
	NewWebview(opts Options, sink Sink) (Webview, error)

	// NativeHandle returns a backend-specific pointer, or nil.
	NativeHandle() unsafe.Pointer

	// Close releases the toolkit.
	Close() error
}

// Pool runs callbacks on native worker threads.
type Pool interface {
	// Submit runs fn on a worker and waits for it to finish.
	Submit(fn func()) error

	// Emplace runs fn on a worker without waiting.
	Emplace(fn func()) error
}

// Options configures a new webview.
type Options struct {
	Title  string
	Width  int
	Height int
	Debug  bool
	Hidden bool
}

// Subscriber is the event subscription surface of a webview.
type Subscriber interface {
	// Subscribe arms delivery of name. Persistent subscriptions return a
	// non-zero id; one-shot subscriptions return 0 and disarm after firing.
	Subscribe(name Name, once bool) (uint64, error)

	// Unsubscribe drops a persistent subscription.
	Unsubscribe(name Name, id uint64)

	// ClearEvent drops every subscription for name.
	ClearEvent(name Name)
}

// Webview is a native window/webview pair.
type Webview interface {
	Subscriber

	Handle() Handle

	// Get and Set access window and webview properties. Value types per
	// property are documented on the Property constants.
	Get(p Property) (any, error)
	Set(p Property, v any) error

	Show()
	Hide()
	Focus()
	Close()

	// StartDrag and StartResize hand the pointer to the window manager for
	// an interactive move or resize, as a custom title bar does from a
	// pointer-down handler.
	StartDrag() error
	StartResize(edge Edge) error

	Navigate(url string)
	SetFile(path string) error
	LoadHTML(html string)
	Reload()
	Back()
	Forward()

	// Execute runs code in the page without a result.
	Execute(code string)

	// Evaluate runs code in the page; the future completes with the JSON
	// encoding of its value.
	Evaluate(code string) *Future

	Inject(s Script)
	ClearScripts()

	Embed(files map[string]EmbeddedFile, policy LaunchPolicy) error
	Serve(name string) error
	ClearEmbedded(name string)

	// Expose makes fn callable from page script under name.
	Expose(name string, fn RPCFunc) error
	Unexpose(name string)

	// HandleScheme routes requests for the name scheme to fn.
	HandleScheme(name string, fn SchemeFunc, policy LaunchPolicy) error
	RemoveScheme(name string)

	// Destroy closes the window and frees the native resources.
	Destroy()
}

// Property names a window or webview attribute.
type Property int

const (
	PropVisible         Property = iota // bool
	PropFocused                         // bool, read only
	PropMinimized                       // bool
	PropMaximized                       // bool
	PropResizable                       // bool
	PropDecorations                     // bool
	PropAlwaysOnTop                     // bool
	PropClickThrough                    // bool
	PropFullscreen                      // bool
	PropTitle                           // string
	PropSize                            // Size
	PropMaxSize                         // Size
	PropMinSize                         // Size
	PropPosition                        // Point
	PropZoom                            // float64
	PropURL                             // string, read only
	PropPageTitle                       // string, read only
	PropFavicon                         // []byte, read only
	PropIcon                            // []byte, write only
	PropDevTools                        // bool
	PropContextMenu                     // bool
	PropForceDarkMode                   // bool
	PropBackgroundColor                 // Color
)

var propertyNames = [...]string{
	PropVisible:         "visible",
	PropFocused:         "focused",
	PropMinimized:       "minimized",
	PropMaximized:       "maximized",
	PropResizable:       "resizable",
	PropDecorations:     "decorations",
	PropAlwaysOnTop:     "alwaysOnTop",
	PropClickThrough:    "clickThrough",
	PropFullscreen:      "fullscreen",
	PropTitle:           "title",
	PropSize:            "size",
	PropMaxSize:         "maxSize",
	PropMinSize:         "minSize",
	PropPosition:        "position",
	PropZoom:            "zoom",
	PropURL:             "url",
	PropPageTitle:       "pageTitle",
	PropFavicon:         "favicon",
	PropIcon:            "icon",
	PropDevTools:        "devTools",
	PropContextMenu:     "contextMenu",
	PropForceDarkMode:   "forceDarkMode",
	PropBackgroundColor: "backgroundColor",
}

func (p Property) String() string {
	if int(p) < len(propertyNames) {
		return propertyNames[p]
	}
	return "unknown"
}

// Properties lists every property in declaration order.
func Properties() []Property {
	out := make([]Property, len(propertyNames))
	for i := range out {
		out[i] = Property(i)
	}
	return out
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point is a screen position in pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Color is an RGBA color.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}
