package exercise

import (
	"context"

	"assistdojo/internal/catalog"
	"assistdojo/internal/session"
	"assistdojo/internal/simulator"
)

type Simulator interface {
	Process(input string) simulator.Response
	Session() *session.Session
	Restore(sess *session.Session)
}

type Catalog interface {
	Get(id string) (catalog.Definition, error)
	Fingerprint(id string) uint64
}

// Store is a best-effort key/value port. Get returns a nil slice for a missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CompletionSink receives one record per finished run. It is a one-way notification.
type CompletionSink interface {
	RecordCompletion(ctx context.Context, c Completion)
}

type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}
