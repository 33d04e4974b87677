// This package used for locking goroutines to
// the main OS thread.
// See: https://github.com/golang/go/wiki/LockOSThread
package thread

import (
	"runtime"
	"sync/atomic"

	"github.com/faiface/mainthread"
)

var (
	isMacOs = runtime.GOOS == "darwin"
	wrapped atomic.Bool
)

// MainWrapMaybe enables functions to be executed in the main thread.
// Enabled for macOS only.
func MainWrapMaybe(f func()) {
	if isMacOs {
		wrapped.Store(true)
		defer wrapped.Store(false)
		mainthread.Run(f)
	} else {
		f()
	}
}

// MainMaybe calls a function on the main thread.
// Enabled for macOS only and only inside of MainWrapMaybe,
// otherwise the function is called in place.
func MainMaybe(f func()) {
	if isMacOs && wrapped.Load() {
		mainthread.Call(f)
	} else {
		f()
	}
}
