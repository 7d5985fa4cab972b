// Package memory provides an in-process Dao that evaluates predicate trees
// directly against declared fields. It backs tests and local tooling.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nimburion/entitykit/pkg/persistence"
	"github.com/nimburion/entitykit/pkg/persistence/query"
	"github.com/nimburion/entitykit/pkg/translation"
)

// Dao stores copies of storage objects keyed by id, in insertion order.
type Dao[P persistence.Identifiable[ID], ID comparable] struct {
	mu      sync.RWMutex
	fields  *translation.TypeMapper[P]
	rows    map[ID]P
	order   []ID
	history []persistence.HistoryEntry[ID]
	nextID  func() ID
	seq     int64
}

// Option configures a Dao.
type Option[P persistence.Identifiable[ID], ID comparable] func(*Dao[P, ID])

// WithIDGenerator sets the generator used when a created object has a zero id.
func WithIDGenerator[P persistence.Identifiable[ID], ID comparable](next func() ID) Option[P, ID] {
	return func(d *Dao[P, ID]) {
		d.nextID = next
	}
}

// New creates an empty Dao. fields must declare a writable "id" field.
// Integer ids default to a sequence starting at 1, string ids to random UUIDs.
func New[P persistence.Identifiable[ID], ID comparable](fields *translation.TypeMapper[P], opts ...Option[P, ID]) (*Dao[P, ID], error) {
	f, ok := fields.Field("id")
	if !ok || !f.Writable() {
		return nil, fmt.Errorf("storage type must declare a writable id field")
	}
	d := &Dao[P, ID]{fields: fields, rows: make(map[ID]P)}
	for _, opt := range opts {
		opt(d)
	}
	if d.nextID == nil {
		d.nextID = d.defaultNextID
	}
	return d, nil
}

func (d *Dao[P, ID]) defaultNextID() ID {
	var id ID
	switch p := any(&id).(type) {
	case *int64:
		d.seq++
		*p = d.seq
	case *int:
		d.seq++
		*p = int(d.seq)
	case *string:
		*p = uuid.NewString()
	}
	return id
}

// clone copies every writable field into a fresh instance.
func (d *Dao[P, ID]) clone(src P) (P, error) {
	dst := d.fields.New()
	sw, dw := d.fields.Wrap(src), d.fields.Wrap(dst)
	for _, f := range d.fields.Fields() {
		if !f.Writable() {
			continue
		}
		v, err := sw.Get(f.Name)
		if err != nil {
			return dst, err
		}
		if err := dw.Set(f.Name, v); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

func (d *Dao[P, ID]) Find(_ context.Context, id ID) (P, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	row, ok := d.rows[id]
	if !ok {
		var zero P
		return zero, false, nil
	}
	c, err := d.clone(row)
	return c, err == nil, err
}

func (d *Dao[P, ID]) FindAll(_ context.Context, ids []ID) ([]P, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	wanted := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []P
	for _, id := range d.order {
		if _, ok := wanted[id]; !ok {
			continue
		}
		c, err := d.clone(d.rows[id])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (d *Dao[P, ID]) Create(_ context.Context, persistent P) (P, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero ID
	id := persistent.GetID()
	if id == zero {
		id = d.nextID()
		if err := d.fields.Wrap(persistent).Set("id", id); err != nil {
			return persistent, err
		}
	}
	if _, exists := d.rows[id]; exists {
		return persistent, fmt.Errorf("duplicate id %v", id)
	}
	stored, err := d.clone(persistent)
	if err != nil {
		return persistent, err
	}
	d.rows[id] = stored
	d.order = append(d.order, id)
	return persistent, nil
}

func (d *Dao[P, ID]) Update(_ context.Context, persistent P) (P, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := persistent.GetID()
	if _, exists := d.rows[id]; !exists {
		return persistent, fmt.Errorf("row %v does not exist", id)
	}
	stored, err := d.clone(persistent)
	if err != nil {
		return persistent, err
	}
	d.rows[id] = stored
	return persistent, nil
}

func (d *Dao[P, ID]) Delete(_ context.Context, persistent P) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := persistent.GetID()
	if _, exists := d.rows[id]; !exists {
		return nil
	}
	delete(d.rows, id)
	for i, existing := range d.order {
		if existing == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

// Query evaluates the predicate against every row, sorts stably by the
// requested order and slices the page.
func (d *Dao[P, ID]) Query(_ context.Context, q persistence.Query) (persistence.QueryPage[P], error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var matched []*translation.ObjectWrapper[P]
	for _, id := range d.order {
		w := d.fields.Wrap(d.rows[id])
		ok, err := query.Evaluate(q.Predicate, w.Value)
		if err != nil {
			return persistence.QueryPage[P]{}, err
		}
		if ok {
			matched = append(matched, w)
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return query.CompareByOrder(q.Order, matched[i].Value, matched[j].Value) < 0
		})
	}

	page := persistence.QueryPage[P]{TotalCount: int64(len(matched))}
	if q.Offset >= len(matched) {
		return page, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	for _, w := range matched {
		c, err := d.clone(w.Object())
		if err != nil {
			return persistence.QueryPage[P]{}, err
		}
		page.Items = append(page.Items, c)
	}
	return page, nil
}

func (d *Dao[P, ID]) SaveHistory(_ context.Context, entry persistence.HistoryEntry[ID]) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, entry)
	return nil
}

func (d *Dao[P, ID]) GetHistory(_ context.Context, entity string, id ID, start, limit int) ([]persistence.HistoryEntry[ID], error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []persistence.HistoryEntry[ID]
	for _, e := range d.history {
		if e.Entity == entity && e.EntityID == id {
			out = append(out, e)
		}
	}
	if start < 0 {
		start = 0
	}
	if start > len(out) {
		return nil, nil
	}
	out = out[start:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
