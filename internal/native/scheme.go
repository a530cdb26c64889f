package native

import (
	"fmt"
	"strings"
)

// SchemeRequest is an inbound request for a custom URL scheme.
type SchemeRequest struct {
	URL     string
	Method  string
	Content []byte
	Headers map[string]string
}

// SchemeResponse is a synthetic response.
type SchemeResponse struct {
	Data    []byte
	Mime    string
	Status  int
	Headers map[string]string
}

// SchemeError is the failure code of a scheme request.
type SchemeError int

const (
	SchemeNotFound SchemeError = iota + 1
	SchemeInvalid
	SchemeDenied
	SchemeFailed
)

var schemeErrorNames = map[SchemeError]string{
	SchemeNotFound: "not-found",
	SchemeInvalid:  "invalid",
	SchemeDenied:   "denied",
	SchemeFailed:   "failed",
}

func (e SchemeError) String() string {
	if s, ok := schemeErrorNames[e]; ok {
		return s
	}
	return fmt.Sprintf("scheme-error(%d)", int(e))
}

func (e SchemeError) Error() string { return "scheme: " + e.String() }

// Status maps the code to an HTTP status.
func (e SchemeError) Status() int {
	switch e {
	case SchemeNotFound:
		return 404
	case SchemeInvalid:
		return 400
	case SchemeDenied:
		return 403
	default:
		return 500
	}
}

// ParseSchemeError maps a code name back to its value.
func ParseSchemeError(s string) (SchemeError, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for code, name := range schemeErrorNames {
		if name == s {
			return code, true
		}
	}
	return 0, false
}

// SchemeExecutor completes one scheme request.
type SchemeExecutor interface {
	Resolve(resp SchemeResponse)
	Reject(code SchemeError)
}

// SchemeFunc serves scheme requests.
type SchemeFunc func(req *SchemeRequest, exec SchemeExecutor)

// LaunchPolicy selects whether a handler runs on the UI thread or the pool.
type LaunchPolicy int

const (
	LaunchSync LaunchPolicy = iota
	LaunchAsync
)

// ParseLaunchPolicy accepts "sync" and "async"; the empty string is async.
func ParseLaunchPolicy(s string) (LaunchPolicy, bool) {
	switch s {
	case "sync":
		return LaunchSync, true
	case "", "async":
		return LaunchAsync, true
	default:
		return 0, false
	}
}

// SchemeMatches reports whether url belongs to the scheme called name, in
// either "name://" or "name:" form.
func SchemeMatches(name, url string) bool {
	if name == "" || !strings.HasPrefix(url, name) {
		return false
	}
	return strings.HasPrefix(url[len(name):], ":")
}
