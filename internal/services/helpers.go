package services

import (
	"context"
	"time"
)

// Logger receives structured service events. A nil logger is replaced with a
// no-op so services never guard their log calls.
type Logger func(ctx context.Context, event string, fields map[string]any)

func ensureLogger(logger Logger) Logger {
	if logger != nil {
		return logger
	}
	return func(context.Context, string, map[string]any) {}
}

// utcNow wraps a clock so every timestamp a service stamps is UTC.
func utcNow(clock func() time.Time) func() time.Time {
	if clock == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return func() time.Time { return clock().UTC() }
}
