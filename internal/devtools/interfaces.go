package devtools

import (
	"context"

	"assistdojo/internal/catalog"
)

type Verifier interface {
	Verify(ctx context.Context, defs []catalog.Definition) Report
}
