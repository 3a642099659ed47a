package server

import (
	"log"
	"sync/atomic"
)

// debugMode gates DebugLog. Set from the debug config key, KMUD_DEBUG or
// serve --debug.
var debugMode atomic.Bool

// SetDebug turns debug logging on or off.
func SetDebug(on bool) {
	debugMode.Store(on)
	if on {
		log.Printf("[DEBUG] Debug logging enabled")
	}
}

// IsDebug reports whether debug logging is on.
func IsDebug() bool { return debugMode.Load() }

// DebugLog logs like log.Printf when debug logging is on.
func DebugLog(format string, args ...any) {
	if debugMode.Load() {
		log.Printf("[DEBUG] "+format, args...)
	}
}
