package native

// Name is an event name from the closed set the bridge understands.
type Name string

const (
	EventDecorated Name = "decorated"
	EventMaximize  Name = "maximize"
	EventMinimize  Name = "minimize"
	EventClosed    Name = "closed"
	EventResize    Name = "resize"
	EventFocus     Name = "focus"
	EventClose     Name = "close"

	EventDOMReady  Name = "dom-ready"
	EventNavigated Name = "navigated"
	EventNavigate  Name = "navigate"
	EventFavicon   Name = "favicon"
	EventTitle     Name = "title"
	EventLoad      Name = "load"
)

// Category partitions event names.
type Category int

const (
	WindowEvent Category = iota + 1
	WebEvent
)

func (c Category) String() string {
	switch c {
	case WindowEvent:
		return "window"
	case WebEvent:
		return "web"
	default:
		return "unknown"
	}
}

var categories = map[Name]Category{
	EventDecorated: WindowEvent,
	EventMaximize:  WindowEvent,
	EventMinimize:  WindowEvent,
	EventClosed:    WindowEvent,
	EventResize:    WindowEvent,
	EventFocus:     WindowEvent,
	EventClose:     WindowEvent,
	EventDOMReady:  WebEvent,
	EventNavigated: WebEvent,
	EventNavigate:  WebEvent,
	EventFavicon:   WebEvent,
	EventTitle:     WebEvent,
	EventLoad:      WebEvent,
}

// Lookup resolves an event name to its category.
func Lookup(name string) (Name, Category, bool) {
	n := Name(name)
	c, ok := categories[n]
	return n, c, ok
}

// Category returns the partition of n, or 0 for unknown names.
func (n Name) Category() Category { return categories[n] }

// Gating reports whether handlers of n decide whether a native action proceeds.
func (n Name) Gating() bool { return n == EventNavigate || n == EventClose }

// Event is one occurrence raised by a backend. The concrete type determines
// the payload.
type Event interface {
	Name() Name
}

// Decorated reports a change of window decorations.
type Decorated struct{ Decorated bool }

// Maximize reports a change of the maximized state.
type Maximize struct{ Maximized bool }

// Minimize reports a change of the minimized state.
type Minimize struct{ Minimized bool }

// Closed reports that the window has closed.
type Closed struct{}

// Resize reports a new window size.
type Resize struct{ Width, Height int }

// Focus reports a change of keyboard focus.
type Focus struct{ Focused bool }

// Close asks whether the window may close.
type Close struct{}

// DOMReady reports that the document has been parsed.
type DOMReady struct{}

// Navigated reports the URL of the committed navigation.
type Navigated struct{ URL string }

// Navigate asks whether a navigation may proceed.
type Navigate struct{ Navigation Navigation }

// Favicon carries the page icon, nil when the page has none.
type Favicon struct{ Icon []byte }

// Title reports a new page title.
type Title struct{ Title string }

// Load reports a load state transition.
type Load struct{ State LoadState }

// Navigation describes a pending navigation.
type Navigation struct {
	URL           string `json:"url"`
	NewWindow     bool   `json:"newWindow"`
	Redirection   bool   `json:"redirection"`
	UserInitiated bool   `json:"userInitiated"`
}

// LoadState is the page load phase.
type LoadState int

const (
	LoadStarted LoadState = iota
	LoadFinished
)

func (s LoadState) String() string {
	if s == LoadFinished {
		return "finished"
	}
	return "started"
}

func (Decorated) Name() Name { return EventDecorated }
func (Maximize) Name() Name  { return EventMaximize }
func (Minimize) Name() Name  { return EventMinimize }
func (Closed) Name() Name    { return EventClosed }
func (Resize) Name() Name    { return EventResize }
func (Focus) Name() Name     { return EventFocus }
func (Close) Name() Name     { return EventClose }
func (DOMReady) Name() Name  { return EventDOMReady }
func (Navigated) Name() Name { return EventNavigated }
func (Navigate) Name() Name  { return EventNavigate }
func (Favicon) Name() Name   { return EventFavicon }
func (Title) Name() Name     { return EventTitle }
func (Load) Name() Name      { return EventLoad }
