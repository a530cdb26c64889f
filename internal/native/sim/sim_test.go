package sim

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/crgimenes/glazejs/internal/native"
)

type recorder struct {
	mu       sync.Mutex
	events   []native.Event
	messages []string
	allow    func(native.Event) bool
}

func (r *recorder) Event(_ native.Handle, ev native.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Policy(_ native.Handle, ev native.Event) bool {
	r.mu.Lock()
	r.events = append(r.events, ev)
	allow := r.allow
	r.mu.Unlock()
	return allow == nil || allow(ev)
}

func (r *recorder) Message(_ native.Handle, msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return true
}

func (r *recorder) seen() []native.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) inbox() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.messages)
}

func (r *recorder) has(ev native.Event) bool {
	return slices.Contains(r.seen(), ev)
}

func start(t *testing.T) (*App, *Webview, *recorder) {
	t.Helper()
	app := New(Options{Threads: 2, Logger: zerolog.Nop()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = app.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = app.Close()
	})

	rec := &recorder{}
	wv, err := app.NewWebview(native.Options{Title: "test", Width: 800, Height: 600}, rec)
	require.NoError(t, err)
	return app, wv.(*Webview), rec
}

func subscribe(t *testing.T, w *Webview, names ...native.Name) {
	t.Helper()
	for _, n := range names {
		_, err := w.Subscribe(n, false)
		require.NoError(t, err)
	}
}

func flush(t *testing.T, app *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, app.Flush(ctx))
}

func TestLoadHTMLLifecycle(t *testing.T) {
	_, w, rec := start(t)
	subscribe(t, w, native.EventLoad, native.EventTitle, native.EventDOMReady, native.EventNavigated)

	w.LoadHTML(`<html><head><title> Hello
	world </title></head><body><script>document.title = "Changed"</script></body></html>`)

	finished := native.Load{State: native.LoadFinished}
	require.Eventually(t, func() bool { return rec.has(finished) }, time.Second, 5*time.Millisecond)

	url, err := w.Get(native.PropURL)
	require.NoError(t, err)
	assert.Equal(t, []native.Event{
		native.Load{State: native.LoadStarted},
		native.Title{Title: "Hello world"},
		native.Title{Title: "Changed"},
		native.DOMReady{},
		native.Navigated{URL: url.(string)},
		finished,
	}, rec.seen())
}

func TestUnsubscribedEventsAreNotRaised(t *testing.T) {
	app, w, rec := start(t)
	subscribe(t, w, native.EventLoad)

	w.LoadHTML(`<title>x</title>`)
	require.Eventually(t, func() bool {
		return rec.has(native.Load{State: native.LoadFinished})
	}, time.Second, 5*time.Millisecond)
	flush(t, app)

	for _, ev := range rec.seen() {
		assert.Equal(t, native.EventLoad, ev.Name())
	}
}

func TestNavigatePolicyVeto(t *testing.T) {
	app, w, rec := start(t)
	rec.allow = func(ev native.Event) bool {
		nav, ok := ev.(native.Navigate)
		return !ok || nav.Navigation.URL != "https://blocked.test/"
	}
	subscribe(t, w, native.EventNavigate, native.EventNavigated)

	w.Navigate("https://blocked.test/")
	flush(t, app)
	flush(t, app)

	url, err := w.Get(native.PropURL)
	require.NoError(t, err)
	assert.Equal(t, "about:blank", url)
	assert.Equal(t, []native.Event{
		native.Navigate{Navigation: native.Navigation{URL: "https://blocked.test/"}},
	}, rec.seen())

	w.Navigate("https://allowed.test/")
	require.Eventually(t, func() bool {
		return rec.has(native.Navigated{URL: "https://allowed.test/"})
	}, time.Second, 5*time.Millisecond)
}

func TestPageInitiatedNavigation(t *testing.T) {
	_, w, rec := start(t)
	subscribe(t, w, native.EventNavigate)

	w.LoadHTML(`<script>window.open("https://popup.test/")</script>`)
	require.Eventually(t, func() bool {
		return rec.has(native.Navigate{Navigation: native.Navigation{
			URL: "https://popup.test/", NewWindow: true, UserInitiated: true,
		}})
	}, time.Second, 5*time.Millisecond)
}

func TestExposedCallRoundTrip(t *testing.T) {
	_, w, rec := start(t)
	require.NoError(t, w.Expose("add", func(params json.RawMessage, exec native.Executor) {
		var args []int
		if err := json.Unmarshal(params, &args); err != nil {
			exec.Reject(strconv.Quote(err.Error()))
			return
		}
		exec.Resolve(json.RawMessage(strconv.Itoa(args[0] + args[1])))
	}))
	require.NoError(t, w.Expose("fail", func(_ json.RawMessage, exec native.Executor) {
		go exec.Reject(`"nope"`)
	}))

	w.LoadHTML(`<script>
		glaze.call("add", 2, 3).then(r => glaze.postMessage("sum " + r));
		glaze.call("fail").catch(e => glaze.postMessage("fail " + e));
		glaze.call("missing").catch(e => glaze.postMessage("missing " + e.name));
	</script>`)

	require.Eventually(t, func() bool { return len(rec.inbox()) == 3 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"sum 5", "fail nope", "missing TypeError"}, rec.inbox())
}

func TestEvaluate(t *testing.T) {
	_, w, _ := start(t)

	tests := []struct {
		code string
		want string
		err  string
	}{
		{code: "1 + 2", want: "3"},
		{code: "undefined", want: "null"},
		{code: `({a: [1, "x"]})`, want: `{"a":[1,"x"]}`},
		{code: "Promise.resolve(42)", want: "42"},
		{code: `new Promise(r => setTimeout(() => r("late"), 5))`, want: `"late"`},
		{code: `throw new Error("boom")`, err: "boom"},
		{code: `Promise.reject(new Error("async boom"))`, err: "async boom"},
		{code: "(function () {})", err: "not JSON serializable"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			got, err := w.Evaluate(tt.code).Await(ctx)
			if tt.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestCustomScheme(t *testing.T) {
	_, w, rec := start(t)
	subscribe(t, w, native.EventTitle)

	var requests []string
	var mu sync.Mutex
	require.NoError(t, w.HandleScheme("app", func(req *native.SchemeRequest, exec native.SchemeExecutor) {
		mu.Lock()
		requests = append(requests, req.Method+" "+req.URL)
		mu.Unlock()
		switch req.URL {
		case "app://index.html":
			exec.Resolve(native.SchemeResponse{Data: []byte(`<title>From scheme</title><script>
				fetch("app://data.json").then(r => r.json()).then(d => glaze.postMessage(d.msg));
				fetch("app://missing").catch(() => glaze.postMessage("missing"));
			</script>`), Mime: "text/html"})
		case "app://data.json":
			exec.Resolve(native.SchemeResponse{Data: []byte(`{"msg":"hi"}`), Mime: "application/json"})
		default:
			exec.Reject(native.SchemeNotFound)
		}
	}, native.LaunchAsync))

	w.Navigate("app://index.html")
	require.Eventually(t, func() bool { return len(rec.inbox()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"hi", "missing"}, rec.inbox())
	assert.True(t, rec.has(native.Title{Title: "From scheme"}))

	mu.Lock()
	assert.Contains(t, requests, "GET app://data.json")
	mu.Unlock()
}

func TestRemovedSchemeIsNotFound(t *testing.T) {
	_, w, rec := start(t)
	require.NoError(t, w.HandleScheme("app", func(_ *native.SchemeRequest, exec native.SchemeExecutor) {
		exec.Resolve(native.SchemeResponse{Data: []byte("ok")})
	}, native.LaunchSync))
	w.RemoveScheme("app")

	w.LoadHTML(`<script>fetch("app://x").then(
		r => glaze.postMessage("resolved"),
		e => glaze.postMessage("rejected"))</script>`)
	require.Eventually(t, func() bool { return len(rec.inbox()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"rejected"}, rec.inbox())
}

func TestEmbeddedResource(t *testing.T) {
	_, w, _ := start(t)
	require.NoError(t, w.Embed(map[string]native.EmbeddedFile{
		"index.html": {Content: []byte("<p>hi</p>")},
		"app.js":     {Content: []byte("1"), Mime: "text/javascript"},
	}, native.LaunchAsync))

	res, err := w.embeddedResource("index.html?v=1")
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(res.data))
	assert.Contains(t, res.mime, "text/html")
	etag := res.headers["ETag"]
	sum := blake2b.Sum256([]byte("<p>hi</p>"))
	assert.Equal(t, `"`+hex.EncodeToString(sum[:])+`"`, etag)

	again, err := w.embeddedResource("index.html")
	require.NoError(t, err)
	assert.Equal(t, etag, again.headers["ETag"])

	js, err := w.embeddedResource("app.js")
	require.NoError(t, err)
	assert.Equal(t, "text/javascript", js.mime)
	assert.NotEqual(t, etag, js.headers["ETag"])

	w.ClearEmbedded("index.html")
	_, err = w.embeddedResource("index.html")
	assert.ErrorIs(t, err, native.SchemeNotFound)
	assert.Error(t, w.Serve("index.html"))
	assert.NoError(t, w.Serve("app.js"))
}

func TestInjectedScripts(t *testing.T) {
	_, w, rec := start(t)
	w.Inject(native.Script{Code: `glaze.postMessage("creation:" + typeof marker)`, Time: native.InjectCreation})
	w.Inject(native.Script{Code: `glaze.postMessage("ready:" + typeof marker)`, Time: native.InjectReady, Permanent: true})

	w.LoadHTML(`<script>var marker = 1</script>`)
	require.Eventually(t, func() bool { return len(rec.inbox()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"creation:undefined", "ready:number"}, rec.inbox())

	w.ClearScripts()
	w.LoadHTML(`<title>again</title>`)
	require.Eventually(t, func() bool { return len(rec.inbox()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "ready:undefined", rec.inbox()[2])
}

func TestPropertiesRaiseEventsOnChange(t *testing.T) {
	app, w, rec := start(t)
	subscribe(t, w, native.EventMaximize, native.EventResize, native.EventDecorated, native.EventFocus)

	require.NoError(t, w.Set(native.PropMaximized, true))
	require.NoError(t, w.Set(native.PropMaximized, true))
	require.NoError(t, w.Set(native.PropSize, native.Size{Width: 1024, Height: 768}))
	require.NoError(t, w.Set(native.PropDecorations, false))
	w.Focus()
	flush(t, app)

	assert.Equal(t, []native.Event{
		native.Maximize{Maximized: true},
		native.Resize{Width: 1024, Height: 768},
		native.Decorated{Decorated: false},
		native.Focus{Focused: true},
	}, rec.seen())

	got, err := w.Get(native.PropMaximized)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	assert.Error(t, w.Set(native.PropMaximized, "yes"))
	assert.ErrorIs(t, w.Set(native.PropURL, "x"), native.ErrUnsupported)
	assert.Error(t, w.Set(native.PropZoom, -1.0))
}

func TestSizeIsClamped(t *testing.T) {
	_, w, _ := start(t)
	require.NoError(t, w.Set(native.PropMinSize, native.Size{Width: 200, Height: 100}))
	require.NoError(t, w.Set(native.PropMaxSize, native.Size{Width: 1000, Height: 800}))
	require.NoError(t, w.Set(native.PropSize, native.Size{Width: 50, Height: 5000}))

	got, err := w.Get(native.PropSize)
	require.NoError(t, err)
	assert.Equal(t, native.Size{Width: 200, Height: 800}, got)
}

func TestClosePolicy(t *testing.T) {
	app, w, rec := start(t)
	subscribe(t, w, native.EventClose, native.EventClosed)

	var veto atomic.Bool
	veto.Store(true)
	rec.allow = func(native.Event) bool { return !veto.Load() }
	w.Close()
	flush(t, app)
	visible, _ := w.Get(native.PropVisible)
	assert.Equal(t, true, visible)
	assert.False(t, rec.has(native.Closed{}))

	veto.Store(false)
	w.Close()
	flush(t, app)
	visible, _ = w.Get(native.PropVisible)
	assert.Equal(t, false, visible)
	assert.True(t, rec.has(native.Closed{}))
}

func TestHistory(t *testing.T) {
	_, w, rec := start(t)
	subscribe(t, w, native.EventNavigated)

	for _, u := range []string{"https://a.test/", "https://b.test/"} {
		w.Navigate(u)
		require.Eventually(t, func() bool { return rec.has(native.Navigated{URL: u}) }, time.Second, 5*time.Millisecond)
	}
	waitURL := func(want string) {
		require.Eventually(t, func() bool {
			got, _ := w.Get(native.PropURL)
			return got == want
		}, time.Second, 5*time.Millisecond)
	}

	w.Back()
	waitURL("https://a.test/")
	w.Back()
	w.Forward()
	waitURL("https://b.test/")
}

func TestDestroy(t *testing.T) {
	app, w, _ := start(t)
	w.Destroy()
	w.Destroy()

	_, err := w.Get(native.PropTitle)
	assert.ErrorIs(t, err, native.ErrDestroyed)
	assert.ErrorIs(t, w.Expose("x", nil), native.ErrDestroyed)
	assert.Empty(t, app.Webviews())

	_, err = w.Evaluate("1").Await(context.Background())
	assert.ErrorIs(t, err, native.ErrDestroyed)
}

func TestDestroySettlesPendingEvaluations(t *testing.T) {
	_, w, _ := start(t)

	queued := w.Evaluate("1 + 1")
	waiting := w.Evaluate("new Promise(function () {})")
	w.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := waiting.Await(ctx)
	assert.ErrorIs(t, err, native.ErrDestroyed)

	select {
	case <-queued.Done():
	case <-ctx.Done():
		t.Fatal("queued evaluation never settled")
	}
}

func TestNavigationSettlesPendingEvaluations(t *testing.T) {
	app, w, _ := start(t)

	f := w.Evaluate("new Promise(function () {})")
	flush(t, app)
	w.LoadHTML("<title>next</title>")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, errPageUnloaded)
}

func TestPointerGrabs(t *testing.T) {
	_, w, _ := start(t)

	require.NoError(t, w.StartDrag())
	require.NoError(t, w.StartResize(native.EdgeTop|native.EdgeLeft))
	assert.Error(t, w.StartResize(native.EdgeLeft|native.EdgeRight))

	require.NoError(t, w.Set(native.PropResizable, false))
	assert.ErrorIs(t, w.StartResize(native.EdgeDefault), errNotResizable)

	w.mu.Lock()
	assert.Equal(t, 1, w.drags)
	assert.Equal(t, []native.Edge{native.EdgeTop | native.EdgeLeft}, w.resizes)
	w.mu.Unlock()

	w.Destroy()
	assert.ErrorIs(t, w.StartDrag(), native.ErrDestroyed)
}

func TestFetchSendsBodyAndReadsHeaders(t *testing.T) {
	_, w, rec := start(t)

	var got []byte
	var mu sync.Mutex
	require.NoError(t, w.HandleScheme("api", func(req *native.SchemeRequest, exec native.SchemeExecutor) {
		mu.Lock()
		got = req.Content
		mu.Unlock()
		exec.Resolve(native.SchemeResponse{
			Data:    []byte("ok"),
			Mime:    "text/plain",
			Headers: map[string]string{"X-Answer": "42"},
		})
	}, native.LaunchAsync))

	w.Execute(`fetch("api://echo", {method: "POST", body: new Uint8Array([1, 2, 3])})
		.then(r => glaze.postMessage(r.headers.get("x-answer") + " " + r.headers.get("Content-Type")))`)
	require.Eventually(t, func() bool { return len(rec.inbox()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "42 text/plain", rec.inbox()[0])

	mu.Lock()
	assert.Equal(t, []byte{1, 2, 3}, got)
	mu.Unlock()
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		in   string
		data string
		mime string
		err  bool
	}{
		{in: "data:,Hello%2C%20World", data: "Hello, World", mime: "text/plain;charset=US-ASCII"},
		{in: "data:text/html;base64,PGI+aGk8L2I+", data: "<b>hi</b>", mime: "text/html"},
		{in: "data:text/html;base64,***", err: true},
		{in: "data:nocomma", err: true},
	}
	for _, tt := range tests {
		res, err := parseDataURL(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.data, string(res.data))
		assert.Equal(t, tt.mime, res.mime)
	}
}

func TestParseDocument(t *testing.T) {
	doc := parseDocument(resource{mime: "text/html", data: []byte(`<!doctype html>
<html><head>
<title>First</title><title>Second</title>
<link rel="shortcut icon" href="/favicon.ico">
<script src="x.js"></script>
<script>var a = "</p>";</script>
</head><body><script>b()</script></body></html>`)})

	assert.True(t, doc.hasTitle)
	assert.Equal(t, "First", doc.title)
	assert.Equal(t, "/favicon.ico", doc.icon)
	assert.Equal(t, []string{`var a = "</p>";`, "b()"}, doc.scripts)

	assert.Empty(t, parseDocument(resource{mime: "application/json", data: []byte("<script>x</script>")}).scripts)
}
