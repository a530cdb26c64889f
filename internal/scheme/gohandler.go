package scheme

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/crgimenes/glazejs/internal/native"
)

// HandlerFunc is a synchronous Go scheme handler. Returning a
// native.SchemeError selects the rejection code; other errors fail.
type HandlerFunc func(req *native.SchemeRequest) (*native.SchemeResponse, error)

// ServeScheme implements Handler.
func (f HandlerFunc) ServeScheme(req *native.SchemeRequest, exec native.SchemeExecutor) {
	resp, err := f(req)
	if err != nil {
		var code native.SchemeError
		if errors.As(err, &code) {
			exec.Reject(code)
			return
		}
		exec.Reject(native.SchemeFailed)
		return
	}
	if resp == nil || resp.Data == nil {
		exec.Reject(native.SchemeFailed)
		return
	}
	if resp.Mime == "" {
		resp.Mime = DefaultMime
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	exec.Resolve(*resp)
}

// Release implements Handler.
func (HandlerFunc) Release() {}

// HTTPHandler serves scheme requests with a standard http.Handler, so a
// regular mux (templates, assets, routes) can back a custom scheme without a
// local listener.
func HTTPHandler(h http.Handler) Handler {
	return HandlerFunc(func(req *native.SchemeRequest) (*native.SchemeResponse, error) {
		method := req.Method
		if method == "" {
			method = http.MethodGet
		}
		httpReq, err := http.NewRequest(method, httpURL(req.URL), bytes.NewReader(req.Content))
		if err != nil {
			return nil, native.SchemeInvalid
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httpReq)
		res := rec.Result()
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, native.SchemeFailed
		}
		switch res.StatusCode {
		case http.StatusNotFound:
			return nil, native.SchemeNotFound
		case http.StatusForbidden, http.StatusUnauthorized:
			return nil, native.SchemeDenied
		case http.StatusBadRequest:
			return nil, native.SchemeInvalid
		}

		headers := make(map[string]string, len(res.Header))
		for k := range res.Header {
			headers[k] = res.Header.Get(k)
		}
		mime := res.Header.Get("Content-Type")
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = strings.TrimSpace(mime[:i])
		}
		return &native.SchemeResponse{
			Data:    body,
			Mime:    mime,
			Status:  res.StatusCode,
			Headers: headers,
		}, nil
	})
}

// httpURL rewrites "name://host/path" and "name:path" into a URL the http
// package accepts while keeping host, path and query.
func httpURL(raw string) string {
	i := strings.IndexByte(raw, ':')
	if i < 0 {
		return "http://localhost/" + strings.TrimPrefix(raw, "/")
	}
	rest := raw[i+1:]
	if strings.HasPrefix(rest, "//") {
		return "http:" + rest
	}
	return "http://localhost/" + strings.TrimPrefix(rest, "/")
}
