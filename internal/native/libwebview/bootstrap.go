package libwebview

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/crgimenes/glazejs/internal/native"
)

// Names of the functions bound into every page.
const (
	bindEvent   = "__glaze_event"
	bindMessage = "__glaze_message"
	bindResult  = "__glaze_result"
)

// bootstrap is installed with webview_init. It provides glaze.call and
// glaze.postMessage and reports the page lifecycle the C library does not
// expose.
const bootstrap = `(function () {
	if (window.glaze) return;
	var fire = function (name, detail) {
		try { window.` + bindEvent + `(name, detail === undefined ? null : detail); } catch (e) {}
	};
	window.glaze = {
		call: function (name) {
			var fn = window[name];
			if (typeof fn !== "function") {
				return Promise.reject(new TypeError(name + " is not exposed"));
			}
			return fn.apply(window, Array.prototype.slice.call(arguments, 1));
		},
		postMessage: function (msg) {
			return window.` + bindMessage + `(msg === undefined ? "" : String(msg));
		}
	};
	fire("load", "started");
	var lastTitle = null;
	var reportTitle = function () {
		if (document.title !== lastTitle) {
			lastTitle = document.title;
			fire("title", lastTitle);
		}
	};
	document.addEventListener("DOMContentLoaded", function () {
		reportTitle();
		fire("dom-ready");
		fire("navigated", location.href);
		var head = document.querySelector("head");
		if (head && window.MutationObserver) {
			new MutationObserver(reportTitle).observe(head, {subtree: true, childList: true, characterData: true});
		}
	});
	window.addEventListener("load", function () { fire("load", "finished"); });
})();`

// readyScript defers code until the document is parsed.
func readyScript(code string) string {
	return `document.addEventListener("DOMContentLoaded", function () {` + "\n" + code + "\n});"
}

// evaluateScript wraps code so that its completion value, awaited if it is a
// promise, is reported back through the result binding under id.
func evaluateScript(id uint64, code string) string {
	quoted, _ := json.Marshal(code)
	return fmt.Sprintf(`Promise.resolve().then(function () { return (0, eval)(%s); }).then(
	function (v) { window.%s(%d, true, JSON.stringify(v === undefined ? null : v)); },
	function (e) { window.%s(%d, false, String(e && e.message !== undefined ? e.message : e)); });`,
		quoted, bindResult, id, bindResult, id)
}

// pageEvent is one lifecycle report from the bootstrap script.
func pageEvent(req string) (native.Event, error) {
	var args []json.RawMessage
	if err := json.Unmarshal([]byte(req), &args); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, errors.New("libwebview: empty event report")
	}
	var name, detail string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return nil, err
	}
	if len(args) > 1 {
		_ = json.Unmarshal(args[1], &detail)
	}

	switch native.Name(name) {
	case native.EventDOMReady:
		return native.DOMReady{}, nil
	case native.EventNavigated:
		return native.Navigated{URL: detail}, nil
	case native.EventTitle:
		return native.Title{Title: detail}, nil
	case native.EventLoad:
		if detail == native.LoadFinished.String() {
			return native.Load{State: native.LoadFinished}, nil
		}
		return native.Load{State: native.LoadStarted}, nil
	default:
		return nil, fmt.Errorf("libwebview: unknown page event %q", name)
	}
}

// evalResult decodes the arguments of the result binding.
func evalResult(req string) (id uint64, ok bool, text string, err error) {
	var args []json.RawMessage
	if err = json.Unmarshal([]byte(req), &args); err != nil {
		return 0, false, "", err
	}
	if len(args) != 3 {
		return 0, false, "", fmt.Errorf("libwebview: result report has %d arguments", len(args))
	}
	if id, err = strconv.ParseUint(string(args[0]), 10, 64); err != nil {
		return 0, false, "", err
	}
	if err = json.Unmarshal(args[1], &ok); err != nil {
		return 0, false, "", err
	}
	if err = json.Unmarshal(args[2], &text); err != nil {
		return 0, false, "", err
	}
	return id, ok, text, nil
}

// message decodes the single string argument of the message binding.
func message(req string) string {
	var args []string
	if err := json.Unmarshal([]byte(req), &args); err != nil || len(args) == 0 {
		return ""
	}
	return args[0]
}
