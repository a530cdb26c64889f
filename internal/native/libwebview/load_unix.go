//go:build darwin || linux

package libwebview

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ebitengine/purego"
)

func libraryPath() string {
	var name string
	var paths []string

	execPath, _ := os.Executable()
	dir := filepath.Dir(execPath)
	dirs := []string{os.Getenv("GLAZEJS_LIBRARY_PATH"), os.Getenv("WEBVIEW_PATH"), dir}

	switch runtime.GOOS {
	case "linux":
		name = "libwebview.so"
		paths = dirs
	case "darwin":
		name = "libwebview.dylib"
		paths = append(dirs, filepath.Join(dir, "..", "Frameworks"))
	}

	for _, v := range paths {
		if v == "" {
			continue
		}
		n := filepath.Join(v, name)
		if _, err := os.Stat(n); err == nil {
			return n
		}
	}
	return name
}

func loadLibrary(name string) (uintptr, error) {
	return purego.Dlopen(name, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
}

func loadSymbol(lib uintptr, name string) (uintptr, error) {
	ptr, err := purego.Dlsym(lib, name)
	if err != nil {
		return 0, fmt.Errorf("libwebview: failed to load symbol %s: %w", name, err)
	}
	return ptr, nil
}
