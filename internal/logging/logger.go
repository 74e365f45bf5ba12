// Package logging configures logrus and carries request-scoped loggers.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a logger writing to stdout at the given level.
// Format is "text" (default) or "json".
func New(level, format string) (*logrus.Logger, error) {
	return NewWithOutput(os.Stdout, level, format)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(out io.Writer, level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return logger, nil
}

type ctxKey struct{}

// WithEntry returns a copy of ctx carrying entry.
func WithEntry(ctx context.Context, entry logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, entry)
}

// FromContext returns the request logger stored in ctx, or the standard logger.
func FromContext(ctx context.Context) logrus.FieldLogger {
	if entry, ok := ctx.Value(ctxKey{}).(logrus.FieldLogger); ok {
		return entry
	}
	return logrus.StandardLogger()
}
