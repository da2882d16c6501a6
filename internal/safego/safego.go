// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn in a new goroutine under the given task name. A panic in fn is
// recovered and logged with its stack instead of crashing the process.
func Go(task string, fn func()) {
	go func() {
		defer Recover(task)
		fn()
	}()
}

// Recover logs a recovered panic for task. It must be called directly by a
// deferred statement.
func Recover(task string) {
	if r := recover(); r != nil {
		slog.Error("recovered panic in background goroutine",
			"task", task, "panic", r, "stack", string(debug.Stack()))
	}
}
