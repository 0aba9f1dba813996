// Package observe wires structured logging and metrics for tracesink.
package observe

import "go.uber.org/zap"

// NewLogger builds the process logger. Verbose switches to the
// development encoder with debug-level output.
func NewLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
