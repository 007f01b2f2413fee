// Package drafts persists in-progress form input per step, independent of
// whether the step has been completed. A draft existing is never read as
// completion.
package drafts

import (
	"context"
	"encoding/json"
	"log"

	"signup-middleware/progress"
	"signup-middleware/store"
)

const draftKeyPrefix = "form_draft_"

type Store struct {
	store *store.Store
}

func NewStore(st *store.Store) *Store {
	return &Store{store: st}
}

// SaveDraft writes the step's field record as-is. Each step defines and
// interprets its own schema; nothing is validated here.
func (d *Store) SaveDraft(ctx context.Context, userID string, stepName string, data json.RawMessage) {
	d.store.Set(ctx, store.Durable, userID, draftKeyPrefix+stepName, data)
}

// LoadDraft returns the saved draft for a step, or nil if there is none.
func (d *Store) LoadDraft(ctx context.Context, userID string, stepName string) json.RawMessage {
	var data json.RawMessage
	if !d.store.Get(ctx, store.Durable, userID, draftKeyPrefix+stepName, &data) {
		return nil
	}
	return data
}

// ClearAll drops every step's draft. Only the explicit full resets
// (sign-out, fresh signup) call this; progress changes never do.
func (d *Store) ClearAll(ctx context.Context, userID string) {
	for i := 0; i < progress.StepCount(); i++ {
		name, err := progress.StepNameForIndex(i)
		if err != nil {
			continue
		}
		err = d.store.Remove(ctx, store.Durable, userID, draftKeyPrefix+name)
		if err != nil {
			log.Printf("drafts: failed to clear draft %v for user %v: %v", name, userID, err.Error())
		}
	}
}
