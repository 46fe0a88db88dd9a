package app

import (
	"context"

	"assistdojo/internal/exercise"
	"assistdojo/internal/progress"
)

type Store interface {
	exercise.Store
	progress.Store
	progress.Reader
	EnsureSchema(ctx context.Context) error
	Close() error
}
