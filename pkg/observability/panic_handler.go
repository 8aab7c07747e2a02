package observability

import "runtime/debug"

// RecoverPanic is deferred around background work (cron jobs, detached
// goroutines) where a panic must not take the process down. The panic value
// and stack are logged at error level under the given scope; the panic is
// not re-raised.
func RecoverPanic(logger *Logger, scope string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic": r,
			"scope": scope,
			"stack": string(debug.Stack()),
		}).Error("panic recovered")
	}
}
