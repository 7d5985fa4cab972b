package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HistoryAction tags a mutation.
type HistoryAction string

// HistoryAction values
const (
	ActionCreate HistoryAction = "create"
	ActionModify HistoryAction = "modify"
	ActionDelete HistoryAction = "delete"
)

// HistoryEntry is an immutable audit record of one mutation.
type HistoryEntry[ID comparable] struct {
	ID        string          `json:"id" bson:"_id"`
	Entity    string          `json:"entity" bson:"entity"`
	EntityID  ID              `json:"entity_id" bson:"entity_id"`
	Action    HistoryAction   `json:"action" bson:"action"`
	Actor     string          `json:"actor,omitempty" bson:"actor,omitempty"`
	Timestamp time.Time       `json:"timestamp" bson:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty" bson:"payload,omitempty"`
}

// HistoryEntryFactory builds a history entry for a successful mutation.
type HistoryEntryFactory[P any, ID comparable] interface {
	NewEntry(pc *Context, action HistoryAction, persistent P) (HistoryEntry[ID], error)
}

// HistoryEntryFactoryFunc adapts a function to HistoryEntryFactory.
type HistoryEntryFactoryFunc[P any, ID comparable] func(pc *Context, action HistoryAction, persistent P) (HistoryEntry[ID], error)

// NewEntry calls f.
func (f HistoryEntryFactoryFunc[P, ID]) NewEntry(pc *Context, action HistoryAction, persistent P) (HistoryEntry[ID], error) {
	return f(pc, action, persistent)
}

// JSONHistoryFactory snapshots the storage object as JSON.
type JSONHistoryFactory[P Identifiable[ID], ID comparable] struct{}

// NewEntry builds an entry with a random id, the context actor and clock.
func (JSONHistoryFactory[P, ID]) NewEntry(pc *Context, action HistoryAction, persistent P) (HistoryEntry[ID], error) {
	payload, err := json.Marshal(persistent)
	if err != nil {
		return HistoryEntry[ID]{}, fmt.Errorf("failed to snapshot %s: %w", pc.Entity, err)
	}
	return HistoryEntry[ID]{
		ID:        uuid.NewString(),
		Entity:    pc.Entity,
		EntityID:  persistent.GetID(),
		Action:    action,
		Actor:     pc.User,
		Timestamp: pc.Now().UTC(),
		Payload:   payload,
	}, nil
}
