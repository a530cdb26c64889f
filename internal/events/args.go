package events

import (
	"github.com/grafana/sobek"

	"github.com/crgimenes/glazejs/internal/host"
	"github.com/crgimenes/glazejs/internal/native"
)

// Args builds the handler arguments for ev.
func Args(ev native.Event) host.ArgsBuilder {
	return func(rt *sobek.Runtime) []sobek.Value {
		switch e := ev.(type) {
		case native.Decorated:
			return []sobek.Value{rt.ToValue(e.Decorated)}
		case native.Maximize:
			return []sobek.Value{rt.ToValue(e.Maximized)}
		case native.Minimize:
			return []sobek.Value{rt.ToValue(e.Minimized)}
		case native.Focus:
			return []sobek.Value{rt.ToValue(e.Focused)}
		case native.Resize:
			return []sobek.Value{rt.ToValue(e.Width), rt.ToValue(e.Height)}
		case native.Navigated:
			return []sobek.Value{rt.ToValue(e.URL)}
		case native.Title:
			return []sobek.Value{rt.ToValue(e.Title)}
		case native.Navigate:
			obj := rt.NewObject()
			_ = obj.Set("url", e.Navigation.URL)
			_ = obj.Set("newWindow", e.Navigation.NewWindow)
			_ = obj.Set("redirection", e.Navigation.Redirection)
			_ = obj.Set("userInitiated", e.Navigation.UserInitiated)
			return []sobek.Value{obj}
		case native.Favicon:
			if e.Icon == nil {
				return []sobek.Value{sobek.Null()}
			}
			return []sobek.Value{rt.ToValue(rt.NewArrayBuffer(e.Icon))}
		case native.Load:
			return []sobek.Value{rt.ToValue(e.State.String())}
		default:
			return nil
		}
	}
}
