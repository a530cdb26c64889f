package sim

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/crgimenes/glazejs/internal/native"
)

// resource is a fetched document or subresource.
type resource struct {
	data    []byte
	mime    string
	status  int
	headers map[string]string
}

const embeddedPrefix = "glaze://embedded/"

// navigate runs the navigate policy and loads nav.URL if it is allowed. UI
// goroutine only.
func (w *Webview) navigate(nav native.Navigation, record bool) {
	if !w.policy(native.Navigate{Navigation: nav}) {
		w.log.Debug().Str("url", nav.URL).Msg("navigation vetoed")
		return
	}
	w.load(nav.URL, record)
}

// load fetches url and commits it unless a newer navigation started first.
func (w *Webview) load(target string, record bool) {
	w.navigation++
	id := w.navigation
	w.fire(native.Load{State: native.LoadStarted})

	req := &native.SchemeRequest{URL: target, Method: "GET", Headers: map[string]string{}}
	w.fetch(req, func(res resource, err error) {
		if id != w.navigation || w.isDestroyed() {
			return
		}
		if err != nil {
			w.log.Warn().Err(err).Str("url", target).Msg("navigation failed")
			res = resource{data: fmt.Appendf(nil, "<title>%s</title>", err), mime: "text/html", status: statusOf(err)}
		}
		if loc := res.headers["Location"]; loc != "" && res.status >= 300 && res.status < 400 {
			w.navigate(native.Navigation{URL: resolveURL(target, loc), Redirection: true}, record)
			return
		}
		w.commit(target, res, record)
	})
}

func statusOf(err error) int {
	var code native.SchemeError
	if !errors.As(err, &code) {
		code = native.SchemeFailed
	}
	return code.Status()
}

// commit replaces the current document. UI goroutine only.
func (w *Webview) commit(target string, res resource, record bool) {
	w.mu.Lock()
	w.st.url = target
	if record {
		w.history = append(w.history[:w.pos+1], target)
		w.pos = len(w.history) - 1
	}
	scripts := slices.Clone(w.scripts)
	w.mu.Unlock()

	if old := w.page; old != nil {
		w.abandon(old, errPageUnloaded)
	}
	p := newPage(w, target)
	w.page = p
	runScripts(p, scripts, native.InjectCreation)

	doc := parseDocument(res)
	if doc.hasTitle {
		p.setTitle(doc.title)
	}
	for _, code := range doc.scripts {
		p.run(code)
		if w.page != p {
			return
		}
	}
	w.fire(native.DOMReady{})
	runScripts(p, scripts, native.InjectReady)
	w.fire(native.Navigated{URL: target})
	w.fire(native.Load{State: native.LoadFinished})

	if doc.icon != "" {
		w.loadFavicon(p, resolveURL(target, doc.icon))
	}
}

func runScripts(p *page, scripts []native.Script, at native.InjectTime) {
	for _, s := range scripts {
		if s.Time == at {
			p.run(s.Code)
		}
	}
}

func (w *Webview) loadFavicon(p *page, target string) {
	req := &native.SchemeRequest{URL: target, Method: "GET", Headers: map[string]string{}}
	w.fetch(req, func(res resource, err error) {
		if w.page != p || w.isDestroyed() {
			return
		}
		if err != nil {
			w.log.Debug().Err(err).Str("url", target).Msg("favicon unavailable")
			return
		}
		w.mu.Lock()
		w.st.favicon = slices.Clone(res.data)
		w.mu.Unlock()
		w.fire(native.Favicon{Icon: res.data})
	})
}

// fetch resolves req and calls done on the UI goroutine exactly once.
func (w *Webview) fetch(req *native.SchemeRequest, done func(resource, error)) {
	var once sync.Once
	complete := func(res resource, err error) {
		once.Do(func() {
			_ = w.app.Post(func() { done(res, err) })
		})
	}

	target := req.URL
	switch {
	case target == "" || target == "about:blank":
		complete(resource{mime: "text/html", status: 200}, nil)
	case strings.HasPrefix(target, "data:"):
		complete(parseDataURL(target))
	case strings.HasPrefix(target, embeddedPrefix):
		complete(w.embeddedResource(strings.TrimPrefix(target, embeddedPrefix)))
	case strings.HasPrefix(target, "file://"):
		if err := w.app.pool.Emplace(func() { complete(readFile(target)) }); err != nil {
			complete(resource{}, native.SchemeFailed)
		}
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		// No network: remote documents load empty.
		complete(resource{mime: "text/html", status: 200}, nil)
	default:
		e, ok := w.scheme(target)
		if !ok {
			complete(resource{}, native.SchemeNotFound)
			return
		}
		exec := &schemeExecutor{complete: complete}
		if e.policy == native.LaunchSync {
			e.fn(req, exec)
			return
		}
		if err := w.app.pool.Emplace(func() { e.fn(req, exec) }); err != nil {
			exec.Reject(native.SchemeFailed)
		}
	}
}

func (w *Webview) scheme(target string) (schemeEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.schemes {
		if native.SchemeMatches(e.name, target) {
			return e, true
		}
	}
	return schemeEntry{}, false
}

func (w *Webview) embeddedResource(name string) (resource, error) {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	w.mu.Lock()
	f, ok := w.embedded[name]
	w.mu.Unlock()
	if !ok {
		return resource{}, native.SchemeNotFound
	}
	typ := f.Mime
	if typ == "" {
		typ = mime.TypeByExtension(filepath.Ext(name))
	}
	sum := blake2b.Sum256(f.Content)
	return resource{
		data:    f.Content,
		mime:    typ,
		status:  200,
		headers: map[string]string{"ETag": `"` + hex.EncodeToString(sum[:]) + `"`},
	}, nil
}

type schemeExecutor struct {
	complete func(resource, error)
}

func (e *schemeExecutor) Resolve(resp native.SchemeResponse) {
	status := resp.Status
	if status == 0 {
		status = 200
	}
	e.complete(resource{data: resp.Data, mime: resp.Mime, status: status, headers: resp.Headers}, nil)
}

func (e *schemeExecutor) Reject(code native.SchemeError) {
	e.complete(resource{}, code)
}

func readFile(target string) (resource, error) {
	u, err := url.Parse(target)
	if err != nil {
		return resource{}, native.SchemeInvalid
	}
	data, err := os.ReadFile(filepath.FromSlash(u.Path))
	if err != nil {
		if os.IsNotExist(err) {
			return resource{}, native.SchemeNotFound
		}
		return resource{}, native.SchemeDenied
	}
	return resource{data: data, mime: mime.TypeByExtension(filepath.Ext(u.Path)), status: 200}, nil
}

// parseDataURL decodes an RFC 2397 data URL.
func parseDataURL(s string) (resource, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return resource{}, native.SchemeInvalid
	}
	typ, encoded := strings.CutSuffix(meta, ";base64")
	if typ == "" {
		typ = "text/plain;charset=US-ASCII"
	}

	var data []byte
	if encoded {
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return resource{}, native.SchemeInvalid
		}
		data = b
	} else {
		text, err := url.PathUnescape(payload)
		if err != nil {
			return resource{}, native.SchemeInvalid
		}
		data = []byte(text)
	}
	return resource{data: data, mime: typ, status: 200}, nil
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil || b.Opaque != "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
