//go:build integration

package libwebview

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/native"
)

type sink struct {
	messages chan string
}

func (sink) Event(native.Handle, native.Event)       {}
func (sink) Policy(native.Handle, native.Event) bool { return true }

func (s sink) Message(_ native.Handle, msg string) bool {
	s.messages <- msg
	return true
}

func TestWebview(t *testing.T) {
	app, err := New(Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	s := sink{messages: make(chan string, 1)}
	run := make(chan bool, 1)

	go func() {
		w, err := app.NewWebview(native.Options{Title: "Hello", Width: 800, Height: 600}, s)
		if err != nil {
			t.Error(err)
			app.Quit()
			return
		}
		err = w.Expose("run", func(params json.RawMessage, exec native.Executor) {
			var args []bool
			_ = json.Unmarshal(params, &args)
			exec.Resolve(json.RawMessage("null"))
			run <- len(args) == 1 && args[0]
		})
		if err != nil {
			t.Error(err)
		}
		w.LoadHTML(`<!doctype html>
			<html>
				<script>
					window.onload = function() {
						glaze.postMessage("loaded");
						glaze.call("run", true);
					};
				</script>
			</html>`)

		select {
		case ok := <-run:
			if !ok {
				t.Error("run failed")
			}
		case <-time.After(time.Minute):
			t.Error("timeout")
		}
		app.Quit()
	}()

	if err := app.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-s.messages:
		if msg != "loaded" {
			t.Fatalf("message = %q", msg)
		}
	default:
		t.Fatal("no message")
	}
}
