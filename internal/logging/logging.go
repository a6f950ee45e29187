// Package logging centralizes the structured-logging call-site idiom used
// across this module: every component logs through a *slog.Logger tagged
// with its own "component" attribute, via the three helpers below.
package logging

import (
	"io"
	"log/slog"
)

// LogOperation records a notable, non-error lifecycle event (a build
// starting, a swap completing, a worker shutting down) at info level.
func LogOperation(logger *slog.Logger, op string, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)*2)
	for _, a := range attrs {
		args = append(args, a)
	}
	logger.Info(op, args...)
}

// LogError records a recoverable error at error level, attaching it as the
// "error" attribute alongside any caller-supplied context.
func LogError(logger *slog.Logger, msg string, err error, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)*2+2)
	args = append(args, slog.String("error", err.Error()))
	for _, a := range attrs {
		args = append(args, a)
	}
	logger.Error(msg, args...)
}

// SafeCloseWithLogging closes c and logs any error instead of returning it,
// for use in defer statements where the close error has nowhere useful to
// propagate.
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, name string) {
	if err := c.Close(); err != nil {
		LogError(logger, "failed to close "+name, err)
	}
}
