package main

import (
	"runtime"

	"github.com/crgimenes/glazejs/internal/cli"
)

func init() {
	// Native toolkits must run on the main thread.
	runtime.LockOSThread()
}

func main() {
	cli.Execute()
}
