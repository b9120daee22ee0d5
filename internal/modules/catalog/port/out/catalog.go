package out

import (
	"context"

	"gametrack/internal/modules/catalog/domain"
)

// SignatureSource fetches the full signature list. A reload replaces the
// in-memory catalog wholesale.
type SignatureSource interface {
	Fetch(ctx context.Context) ([]domain.Signature, error)
}

// SourceWatcher reports external changes to a signature source, driving
// the on-demand reload path. Watch blocks until ctx is done.
type SourceWatcher interface {
	Watch(ctx context.Context, onChange func()) error
}
