package glazejs

import (
	"errors"
	"fmt"

	"github.com/crgimenes/glazejs/internal/native"
)

var (
	// ErrDestroyed is returned by every operation on a destroyed webview.
	ErrDestroyed = fmt.Errorf("native webview handle unavailable: %w", native.ErrDestroyed)

	// ErrUnknownBackend is returned by New for an unrecognized backend name.
	ErrUnknownBackend = errors.New("glazejs: unknown backend")

	// ErrSchemeName is returned for scheme names that are not valid URL schemes.
	ErrSchemeName = errors.New("glazejs: invalid scheme name")

	// ErrResizeEdge is returned for an empty edge set or one naming opposite
	// edges.
	ErrResizeEdge = errors.New("glazejs: invalid resize edge")
)
