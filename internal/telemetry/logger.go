package telemetry

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

type Options struct {
	// Path is a file to append to. "-" logs to stderr; empty discards unless Writer is set.
	Path   string
	Writer io.Writer
	Format string
	Debug  bool
}

// Logger writes structured events named component.action. A nil *Logger is valid and
// drops everything.
type Logger struct {
	l      *logrus.Logger
	closer io.Closer
}

func New(opts Options) (*Logger, error) {
	out := opts.Writer
	var closer io.Closer
	switch {
	case opts.Path == "-":
		out = os.Stderr
	case opts.Path != "":
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log %s: %w", opts.Path, err)
		}
		out, closer = f, f
	case out == nil:
		out = io.Discard
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	if opts.Debug {
		l.SetLevel(logrus.DebugLevel)
	}
	switch opts.Format {
	case FormatText:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	case "", FormatJSON:
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap:        logrus.FieldMap{logrus.FieldKeyTime: "ts"},
		})
	default:
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return &Logger{l: l, closer: closer}, nil
}

func NewJSONLogger(path string) (*Logger, error) {
	return New(Options{Path: path, Format: FormatJSON})
}

func (l *Logger) Debug(msg string, fields map[string]any) {
	l.log(logrus.DebugLevel, msg, fields)
}

func (l *Logger) Info(msg string, fields map[string]any) {
	l.log(logrus.InfoLevel, msg, fields)
}

func (l *Logger) Error(msg string, fields map[string]any) {
	l.log(logrus.ErrorLevel, msg, fields)
}

func (l *Logger) log(level logrus.Level, msg string, fields map[string]any) {
	if l == nil || l.l == nil {
		return
	}
	l.l.WithFields(logrus.Fields(fields)).Log(level, msg)
}

func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
