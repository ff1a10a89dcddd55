package telemetry

// Logger is the minimal logging surface used across the node.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}
