package libwebview

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Hints are used to configure window sizing and resizing.
type Hint int

const (
	// Width and height are default size.
	HintNone Hint = iota

	// Width and height are minimum bounds.
	HintMin

	// Width and height are maximum bounds.
	HintMax

	// Window size can not be changed by a user.
	HintFixed
)

// Global once to load native library symbols.
var loadOnce sync.Once

// loadInitErr stores the initialization failure (if any) for all future calls.
var loadInitErr error

// Function pointers for native library functions.
var (
	pCreate    uintptr
	pDestroy   uintptr
	pRun       uintptr
	pTerminate uintptr
	pDispatch  uintptr
	pGetWindow uintptr
	pSetTitle  uintptr
	pSetSize   uintptr
	pNavigate  uintptr
	pSetHtml   uintptr
	pInit      uintptr
	pEval      uintptr
	pBind      uintptr
	pUnbind    uintptr
	pReturn    uintptr
)

// Callback function pointers.
var (
	dispatchCallback uintptr
	bindingCallback  uintptr
)

// Global state for dispatched functions and bound callbacks. The C library
// hands back an opaque integer, so closures live in these maps.
var (
	dispatchMu      sync.Mutex
	dispatchMap     = make(map[uintptr]func())
	dispatchCounter uintptr

	bindMu         sync.Mutex
	bindingMap     = make(map[uintptr]binding)
	bindingCounter uintptr
)

// binding receives the call id and the JSON argument array of a bound
// function.
type binding func(id, req string)

// Load resolves the webview library. path overrides the search; an empty
// path looks in GLAZEJS_LIBRARY_PATH, WEBVIEW_PATH and next to the
// executable.
func Load(path string) error {
	loadOnce.Do(func() {
		if path == "" {
			path = libraryPath()
		}
		libHandle, err := loadLibrary(path)
		if err != nil {
			loadInitErr = fmt.Errorf("libwebview: failed to load native library: %w", err)
			return
		}
		if libHandle == 0 {
			loadInitErr = errors.New("libwebview: native library handle is nil")
			return
		}
		symbols := []struct {
			ptr  *uintptr
			name string
		}{
			{&pCreate, "webview_create"},
			{&pDestroy, "webview_destroy"},
			{&pRun, "webview_run"},
			{&pTerminate, "webview_terminate"},
			{&pDispatch, "webview_dispatch"},
			{&pGetWindow, "webview_get_window"},
			{&pSetTitle, "webview_set_title"},
			{&pSetSize, "webview_set_size"},
			{&pNavigate, "webview_navigate"},
			{&pSetHtml, "webview_set_html"},
			{&pInit, "webview_init"},
			{&pEval, "webview_eval"},
			{&pBind, "webview_bind"},
			{&pUnbind, "webview_unbind"},
			{&pReturn, "webview_return"},
		}
		for _, s := range symbols {
			ptr, err := loadSymbol(libHandle, s.name)
			if err != nil {
				loadInitErr = err
				return
			}
			*s.ptr = ptr
		}
		dispatchCallback = purego.NewCallback(dispatchCallbackFn)
		bindingCallback = purego.NewCallback(bindingCallbackFn)
	})
	return loadInitErr
}

// handle is one webview_t.
type handle uintptr

func create(debug bool) (handle, error) {
	if pCreate == 0 {
		return 0, errors.New("libwebview: native symbols are not initialized")
	}
	r1, _, _ := purego.SyscallN(pCreate, boolToInt(debug), 0)
	if r1 == 0 {
		return 0, errors.New("libwebview: failed to create window")
	}
	return handle(r1), nil
}

func (h handle) run()     { purego.SyscallN(pRun, uintptr(h)) }
func (h handle) destroy() { purego.SyscallN(pDestroy, uintptr(h)) }

func (h handle) terminate() {
	// On Windows, we need to dispatch the terminate call to the main thread.
	// Remove once this is merged: https://github.com/webview/webview/pull/1240
	if runtime.GOOS == "windows" {
		h.dispatch(func() { purego.SyscallN(pTerminate, uintptr(h)) })
		return
	}
	purego.SyscallN(pTerminate, uintptr(h))
}

func (h handle) dispatch(f func()) {
	dispatchMu.Lock()
	idx := dispatchCounter
	dispatchCounter++
	dispatchMap[idx] = f
	dispatchMu.Unlock()
	purego.SyscallN(pDispatch, uintptr(h), dispatchCallback, idx)
}

func (h handle) window() unsafe.Pointer {
	r1, _, _ := purego.SyscallN(pGetWindow, uintptr(h))
	// We take the address and then dereference it to avoid go vet reporting
	// a possible misuse of unsafe.Pointer on direct uintptr conversion.
	return *(*unsafe.Pointer)(unsafe.Pointer(&r1))
}

func (h handle) setTitle(title string) { h.call1(pSetTitle, title) }
func (h handle) navigate(url string)   { h.call1(pNavigate, url) }
func (h handle) setHTML(html string)   { h.call1(pSetHtml, html) }
func (h handle) init(js string)        { h.call1(pInit, js) }
func (h handle) eval(js string)        { h.call1(pEval, js) }

func (h handle) setSize(width, height int, hint Hint) {
	purego.SyscallN(pSetSize, uintptr(h), uintptr(width), uintptr(height), uintptr(hint))
}

func (h handle) call1(fn uintptr, s string) {
	cs, ptr := cString(s)
	purego.SyscallN(fn, uintptr(h), uintptr(ptr))
	runtime.KeepAlive(cs)
}

// register stores b and returns the key the binding callback receives.
func register(b binding) uintptr {
	bindMu.Lock()
	defer bindMu.Unlock()
	key := bindingCounter
	bindingCounter++
	bindingMap[key] = b
	return key
}

func (h handle) bind(name string, key uintptr) {
	nameBytes, namePtr := cString(name)
	purego.SyscallN(pBind, uintptr(h), uintptr(namePtr), bindingCallback, key)
	runtime.KeepAlive(nameBytes)
}

func (h handle) unbind(name string, key uintptr) {
	bindMu.Lock()
	delete(bindingMap, key)
	bindMu.Unlock()

	cs, namePtr := cString(name)
	purego.SyscallN(pUnbind, uintptr(h), uintptr(namePtr))
	runtime.KeepAlive(cs)
}

// complete answers a bound call. status 0 resolves, anything else rejects.
func (h handle) complete(id string, status int, result string) {
	idBytes, idPtr := cString(id)
	resBytes, resPtr := cString(result)
	purego.SyscallN(pReturn, uintptr(h), uintptr(idPtr), uintptr(status), uintptr(resPtr))
	runtime.KeepAlive(idBytes)
	runtime.KeepAlive(resBytes)
}

// dispatchCallbackFn executes a function posted with dispatch on the main thread.
func dispatchCallbackFn(_, arg uintptr) uintptr {
	dispatchMu.Lock()
	fn := dispatchMap[arg]
	delete(dispatchMap, arg)
	dispatchMu.Unlock()
	if fn != nil {
		fn()
	}
	return 0
}

// bindingCallbackFn is invoked by the native webview when a bound JS function is called.
func bindingCallbackFn(idPtr, reqPtr, arg uintptr) uintptr {
	bindMu.Lock()
	b, ok := bindingMap[arg]
	bindMu.Unlock()
	if !ok {
		return 0
	}

	// Copy the strings now: the pointers are only valid during the callback.
	id := goString(idPtr)
	req := goString(reqPtr)
	go b(id, req)
	return 0
}

func boolToInt(b bool) uintptr {
	if b {
		return 1
	}
	return 0
}

func cString(s string) ([]byte, unsafe.Pointer) {
	b := append([]byte(s), 0)
	return b, unsafe.Pointer(&b[0])
}

func goString(c uintptr) string {
	// We take the address and then dereference it to trick go vet from creating a possible misuse of unsafe.Pointer
	ptr := *(*unsafe.Pointer)(unsafe.Pointer(&c))
	if ptr == nil {
		return ""
	}
	var length int
	for {
		if *(*byte)(unsafe.Add(ptr, uintptr(length))) == '\x00' {
			break
		}
		length++
	}
	return string(unsafe.Slice((*byte)(ptr), length))
}
