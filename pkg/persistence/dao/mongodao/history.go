package mongodao

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nimburion/entitykit/pkg/persistence"
)

type historyDocument[ID comparable] struct {
	ID        string    `bson:"_id"`
	Entity    string    `bson:"entity"`
	EntityID  ID        `bson:"entity_id"`
	Action    string    `bson:"action"`
	Actor     string    `bson:"actor,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	Payload   string    `bson:"payload,omitempty"`
}

// HistoryStore reads and writes history entries in one collection shared by
// every entity.
type HistoryStore[ID comparable] struct {
	executor   Executor
	collection string
}

// NewHistoryStore creates a store over collection.
func NewHistoryStore[ID comparable](executor Executor, collection string) *HistoryStore[ID] {
	return &HistoryStore[ID]{executor: executor, collection: collection}
}

// SaveHistory appends one entry. The payload is kept as JSON text.
func (h *HistoryStore[ID]) SaveHistory(ctx context.Context, entry persistence.HistoryEntry[ID]) error {
	doc := historyDocument[ID]{
		ID:        entry.ID,
		Entity:    entry.Entity,
		EntityID:  entry.EntityID,
		Action:    string(entry.Action),
		Actor:     entry.Actor,
		Timestamp: entry.Timestamp,
		Payload:   string(entry.Payload),
	}
	if _, err := h.executor.InsertOne(ctx, h.collection, doc); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// GetHistory reads entries for one entity id, oldest first.
func (h *HistoryStore[ID]) GetHistory(ctx context.Context, entity string, id ID, start, limit int) ([]persistence.HistoryEntry[ID], error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	if start > 0 {
		opts.SetSkip(int64(start))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	var docs []historyDocument[ID]
	filter := bson.M{"entity": entity, "entity_id": id}
	if err := h.executor.FindAll(ctx, h.collection, filter, &docs, opts); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	out := make([]persistence.HistoryEntry[ID], 0, len(docs))
	for _, doc := range docs {
		entry := persistence.HistoryEntry[ID]{
			ID:        doc.ID,
			Entity:    doc.Entity,
			EntityID:  doc.EntityID,
			Action:    persistence.HistoryAction(doc.Action),
			Actor:     doc.Actor,
			Timestamp: doc.Timestamp.UTC(),
		}
		if doc.Payload != "" {
			entry.Payload = json.RawMessage(doc.Payload)
		}
		out = append(out, entry)
	}
	return out, nil
}

// SaveHistory appends one entry to the history collection.
func (d *Dao[P, ID]) SaveHistory(ctx context.Context, entry persistence.HistoryEntry[ID]) error {
	if d.history == nil {
		return ErrHistoryDisabled
	}
	return d.history.SaveHistory(ctx, entry)
}

// GetHistory reads entries for one entity id, oldest first.
func (d *Dao[P, ID]) GetHistory(ctx context.Context, entity string, id ID, start, limit int) ([]persistence.HistoryEntry[ID], error) {
	if d.history == nil {
		return nil, ErrHistoryDisabled
	}
	return d.history.GetHistory(ctx, entity, id, start, limit)
}
