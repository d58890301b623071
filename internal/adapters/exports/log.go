package exports

import logpkg "github.com/echa/log"

var log logpkg.Logger = logpkg.Log

// DisableLog disables all library log output.
func DisableLog() {
	log = logpkg.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger logpkg.Logger) {
	log = logger
}
