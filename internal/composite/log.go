package composite

import "github.com/rs/zerolog"

// logger is disabled by default: the engine is a library and stays quiet
// unless the host wires in a logger.
var logger = zerolog.Nop()

// SetLogger installs a logger for engine events (plan builds, rebuilds,
// storage handle revocation).
func SetLogger(l zerolog.Logger) {
	logger = l
}
