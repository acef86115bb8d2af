// Package pattern resolves merchants against learned patterns and past
// categorization history without calling any external service.
package pattern

import (
	"context"

	"github.com/Veraticus/saffron/internal/model"
)

// Categorizer resolves a single merchant string to an outcome.
type Categorizer interface {
	// Categorize returns an unresolved outcome when nothing matches. Only
	// storage failures produce an error.
	Categorize(ctx context.Context, merchant string) (model.Outcome, error)
}
