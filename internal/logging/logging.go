// Package logging builds the logrus loggers shared by every component.
// Lines are JSON objects with "ts", "level" and "msg" keys.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

type zoneFormatter struct {
	inner *logrus.JSONFormatter
	loc   *time.Location
}

func (f zoneFormatter) Format(e *logrus.Entry) ([]byte, error) {
	if f.loc != nil {
		e.Time = e.Time.In(f.loc)
	}
	return f.inner.Format(e)
}

// New returns a JSON logger writing to w at the given level. Timestamps are
// rendered in loc; a nil loc keeps the local zone. An unparsable level falls back to info.
func New(w io.Writer, level string, loc *time.Location) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(zoneFormatter{
		inner: &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
			},
		},
		loc: loc,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// Default logs to stdout at info level in UTC.
func Default() *logrus.Logger {
	return New(os.Stdout, "info", time.UTC)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	l := New(io.Discard, "panic", time.UTC)
	return l
}

// Component tags a logger with the component field.
func Component(l logrus.FieldLogger, name string) *logrus.Entry {
	if l == nil {
		l = Default()
	}
	return l.WithField("component", name)
}

type requestIDKey struct{}

// WithRequestID stores the request id on ctx for FromContext.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext adds the request_id field to l when ctx carries one, so service
// lines can be joined with the access log line of the same request.
func FromContext(ctx context.Context, l *logrus.Entry) *logrus.Entry {
	if id := RequestID(ctx); id != "" {
		return l.WithField("request_id", id)
	}
	return l
}
