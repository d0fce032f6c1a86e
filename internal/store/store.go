// Package store persists the registration state behind a narrow port so the
// engine never touches the database directly.
package store

import (
	"context"

	"github.com/halvely/push-relay-agent/internal/model"
)

// Store loads and saves the full registration state. Save overwrites the
// previous snapshot; callers serialize access through the engine.
type Store interface {
	Load(ctx context.Context) (*model.RegistrationState, error)
	Save(ctx context.Context, state *model.RegistrationState) error
}
