// Package mongodao implements persistence.Dao on a MongoDB collection. Field
// names of the storage TypeMapper are document keys; the "id" field is stored
// as "_id".
package mongodao

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nimburion/entitykit/pkg/fieldtype"
	"github.com/nimburion/entitykit/pkg/persistence"
	"github.com/nimburion/entitykit/pkg/translation"
)

const idColumn = "id"

// Executor is the collection access the Dao needs. The mongodb store adapter
// implements it.
type Executor interface {
	InsertOne(ctx context.Context, collection string, doc interface{}) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, collection string, filter interface{}, result interface{}) error
	FindAll(ctx context.Context, collection string, filter interface{}, results interface{}, opts ...*options.FindOptions) error
	CountDocuments(ctx context.Context, collection string, filter interface{}) (int64, error)
	ReplaceOne(ctx context.Context, collection string, filter, replacement interface{}) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, collection string, filter interface{}) (*mongo.DeleteResult, error)
}

type settings struct {
	uuidIDs           bool
	historyCollection string
}

// Option configures a Dao.
type Option func(*settings)

// WithUUIDs assigns a random UUID to objects created with an empty string id
// instead of letting the server generate an ObjectID.
func WithUUIDs() Option {
	return func(s *settings) { s.uuidIDs = true }
}

// WithHistoryCollection enables SaveHistory and GetHistory against collection.
func WithHistoryCollection(collection string) Option {
	return func(s *settings) { s.historyCollection = collection }
}

// ErrHistoryDisabled is returned by the history methods of a Dao built
// without WithHistoryCollection.
var ErrHistoryDisabled = errors.New("history collection not configured")

// Dao is a collection-backed persistence.Dao.
type Dao[P persistence.Identifiable[ID], ID comparable] struct {
	executor   Executor
	collection string
	fields     *translation.TypeMapper[P]
	columns    []translation.Field[P]
	settings   settings
	history    *HistoryStore[ID]
}

// New creates a Dao over collection.
func New[P persistence.Identifiable[ID], ID comparable](
	executor Executor,
	collection string,
	fields *translation.TypeMapper[P],
	opts ...Option,
) (*Dao[P, ID], error) {
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, errors.New("collection name is required")
	}
	if f, ok := fields.Field(idColumn); !ok || !f.Writable() {
		return nil, fmt.Errorf("collection %s: storage type must declare a writable id field", collection)
	}
	d := &Dao[P, ID]{executor: executor, collection: collection, fields: fields}
	for _, f := range fields.Fields() {
		if f.Writable() {
			d.columns = append(d.columns, f)
		}
	}
	for _, opt := range opts {
		opt(&d.settings)
	}
	if d.settings.historyCollection != "" {
		d.history = NewHistoryStore[ID](executor, d.settings.historyCollection)
	}
	return d, nil
}

func (d *Dao[P, ID]) toDocument(obj P, withID bool) (bson.M, error) {
	w := d.fields.Wrap(obj)
	doc := bson.M{}
	for _, f := range d.columns {
		if f.Name == idColumn && !withID {
			continue
		}
		v, err := w.Get(f.Name)
		if err != nil {
			return nil, err
		}
		doc[documentKey(f.Name)] = v
	}
	return doc, nil
}

func (d *Dao[P, ID]) fromDocument(doc bson.M) (P, error) {
	obj := d.fields.New()
	w := d.fields.Wrap(obj)
	for _, f := range d.columns {
		v, err := fromValue(f.Kind, doc[documentKey(f.Name)])
		if err != nil {
			return obj, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if err := w.Set(f.Name, v); err != nil {
			return obj, err
		}
	}
	return obj, nil
}

func (d *Dao[P, ID]) decodeAll(docs []bson.M) ([]P, error) {
	out := make([]P, 0, len(docs))
	for _, doc := range docs {
		obj, err := d.fromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

// Find retrieves the document with id.
func (d *Dao[P, ID]) Find(ctx context.Context, id ID) (P, bool, error) {
	var zero P
	doc := bson.M{}
	err := d.executor.FindOne(ctx, d.collection, bson.M{"_id": id}, &doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to find %s: %w", d.collection, err)
	}
	obj, err := d.fromDocument(doc)
	if err != nil {
		return zero, false, err
	}
	return obj, true, nil
}

// FindAll retrieves the documents matching ids ordered by id.
func (d *Dao[P, ID]) FindAll(ctx context.Context, ids []ID) ([]P, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var docs []bson.M
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if err := d.executor.FindAll(ctx, d.collection, bson.M{"_id": bson.M{"$in": ids}}, &docs, opts); err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", d.collection, err)
	}
	return d.decodeAll(docs)
}

// Create inserts a document. A zero string id is filled from WithUUIDs or
// from the ObjectID the server generates.
func (d *Dao[P, ID]) Create(ctx context.Context, persistent P) (P, error) {
	w := d.fields.Wrap(persistent)
	var zero ID
	generate := persistent.GetID() == zero
	if generate && d.settings.uuidIDs {
		if err := w.Set(idColumn, uuid.NewString()); err != nil {
			return persistent, err
		}
		generate = false
	}

	doc, err := d.toDocument(persistent, !generate)
	if err != nil {
		return persistent, err
	}
	result, err := d.executor.InsertOne(ctx, d.collection, doc)
	if err != nil {
		return persistent, fmt.Errorf("failed to insert into %s: %w", d.collection, err)
	}
	if !generate {
		return persistent, nil
	}
	f, _ := d.fields.Field(idColumn)
	id, err := fromValue(f.Kind, result.InsertedID)
	if err != nil {
		return persistent, err
	}
	return persistent, w.Set(idColumn, id)
}

// Update replaces the document identified by persistent's id.
func (d *Dao[P, ID]) Update(ctx context.Context, persistent P) (P, error) {
	doc, err := d.toDocument(persistent, true)
	if err != nil {
		return persistent, err
	}
	result, err := d.executor.ReplaceOne(ctx, d.collection, bson.M{"_id": persistent.GetID()}, doc)
	if err != nil {
		return persistent, fmt.Errorf("failed to update %s: %w", d.collection, err)
	}
	if result.MatchedCount == 0 {
		return persistent, mongo.ErrNoDocuments
	}
	return persistent, nil
}

// Delete removes the document identified by persistent's id.
func (d *Dao[P, ID]) Delete(ctx context.Context, persistent P) error {
	if _, err := d.executor.DeleteOne(ctx, d.collection, bson.M{"_id": persistent.GetID()}); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", d.collection, err)
	}
	return nil
}

// Query counts the matching documents and, when there are any, loads one page.
func (d *Dao[P, ID]) Query(ctx context.Context, q persistence.Query) (persistence.QueryPage[P], error) {
	filter, err := Filter(q.Predicate)
	if err != nil {
		return persistence.QueryPage[P]{}, err
	}
	var page persistence.QueryPage[P]
	if page.TotalCount, err = d.executor.CountDocuments(ctx, d.collection, filter); err != nil {
		return page, fmt.Errorf("failed to count %s: %w", d.collection, err)
	}
	if page.TotalCount == 0 || int64(q.Offset) >= page.TotalCount {
		return page, nil
	}

	opts := options.Find()
	if len(q.Order) > 0 {
		opts.SetSort(Sort(q.Order))
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	var docs []bson.M
	if err := d.executor.FindAll(ctx, d.collection, filter, &docs, opts); err != nil {
		return page, fmt.Errorf("failed to query %s: %w", d.collection, err)
	}
	page.Items, err = d.decodeAll(docs)
	return page, err
}

// fromValue normalizes a decoded BSON value to the field kind.
func fromValue(kind fieldtype.Kind, v any) (any, error) {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC(), nil
	case primitive.ObjectID:
		return t.Hex(), nil
	case int32:
		return int64(t), nil
	case time.Time:
		return t.UTC(), nil
	case string:
		if kind != fieldtype.String && kind != fieldtype.Any {
			return kind.Parse(t)
		}
	}
	return v, nil
}
