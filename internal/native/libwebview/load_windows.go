package libwebview

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

func libraryPath() string {
	if dir := os.Getenv("GLAZEJS_LIBRARY_PATH"); dir != "" {
		return filepath.Join(dir, "webview.dll")
	}
	return "webview.dll"
}

func loadLibrary(name string) (uintptr, error) {
	handle, err := syscall.LoadLibrary(name)
	return uintptr(handle), err
}

func loadSymbol(lib uintptr, name string) (uintptr, error) {
	ptr, err := syscall.GetProcAddress(syscall.Handle(lib), name)
	if err != nil {
		return 0, fmt.Errorf("libwebview: failed to load symbol %s: %w", name, err)
	}
	return ptr, nil
}
