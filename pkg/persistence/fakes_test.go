package persistence

import (
	"context"
	"sort"

	"github.com/nimburion/entitykit/pkg/fieldtype"
	"github.com/nimburion/entitykit/pkg/persistence/query"
)

type item struct {
	ID    int64
	Name  string
	Owner string
}

type record struct {
	ID    int64
	Name  string
	Owner string
}

func (r *record) GetID() int64 { return r.ID }

// fakeTranslator copies fields directly and counts invocations.
type fakeTranslator struct {
	calls int
}

func (t *fakeTranslator) ConvertClient(c *item, _ *Context) (*record, error) {
	t.calls++
	return &record{ID: c.ID, Name: c.Name, Owner: c.Owner}, nil
}

func (t *fakeTranslator) CopyClient(c *item, p *record, pc *Context) (bool, error) {
	t.calls++
	id := p.ID
	dirty := false
	if c.ID != 0 && c.ID != p.ID {
		p.ID = c.ID
		pc.AddChangedField(pc.Entity, id, "id")
		dirty = true
	}
	if c.Name != "" && c.Name != p.Name {
		p.Name = c.Name
		pc.AddChangedField(pc.Entity, id, "name")
		dirty = true
	}
	return dirty, nil
}

func (t *fakeTranslator) ConvertPersistent(p *record, _ *Context) (*item, error) {
	t.calls++
	return &item{ID: p.ID, Name: p.Name, Owner: p.Owner}, nil
}

func (t *fakeTranslator) ConvertPersistentList(items []*record, pc *Context) ([]*item, error) {
	out := make([]*item, 0, len(items))
	for _, p := range items {
		c, err := t.ConvertPersistent(p, pc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (t *fakeTranslator) ConvertID(c *item, _ *Context) (int64, error) {
	t.calls++
	return c.ID, nil
}

func (t *fakeTranslator) QueryFields() []query.Field {
	return []query.Field{
		{Name: "id", Kind: fieldtype.Int},
		{Name: "name", Kind: fieldtype.String},
		{Name: "owner", Kind: fieldtype.String},
	}
}

// fakeDao is a map-backed Dao recording every call.
type fakeDao struct {
	rows      map[int64]*record
	nextID    int64
	history   []HistoryEntry[int64]
	lastQuery Query

	finds, findAlls, creates, updates, deletes, queries, historyReads int
}

func newFakeDao(rows ...*record) *fakeDao {
	d := &fakeDao{rows: make(map[int64]*record), nextID: 100}
	for _, r := range rows {
		d.rows[r.ID] = r
	}
	return d
}

func (d *fakeDao) mutations() int {
	return d.creates + d.updates + d.deletes + len(d.history)
}

func (d *fakeDao) Find(_ context.Context, id int64) (*record, bool, error) {
	d.finds++
	r, ok := d.rows[id]
	if !ok {
		return nil, false, nil
	}
	clone := *r
	return &clone, true, nil
}

func (d *fakeDao) FindAll(_ context.Context, ids []int64) ([]*record, error) {
	d.findAlls++
	var out []*record
	for _, id := range ids {
		if r, ok := d.rows[id]; ok {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (d *fakeDao) Create(_ context.Context, p *record) (*record, error) {
	d.creates++
	if p.ID == 0 {
		d.nextID++
		p.ID = d.nextID
	}
	clone := *p
	d.rows[p.ID] = &clone
	return p, nil
}

func (d *fakeDao) Update(_ context.Context, p *record) (*record, error) {
	d.updates++
	clone := *p
	d.rows[p.ID] = &clone
	return p, nil
}

func (d *fakeDao) Delete(_ context.Context, p *record) error {
	d.deletes++
	delete(d.rows, p.ID)
	return nil
}

func (d *fakeDao) Query(_ context.Context, q Query) (QueryPage[*record], error) {
	d.queries++
	d.lastQuery = q
	var matched []*record
	for _, r := range d.rows {
		row := map[string]any{"id": r.ID, "name": r.Name, "owner": r.Owner}
		ok, err := query.Evaluate(q.Predicate, func(column string) (any, bool) {
			v, found := row[column]
			return v, found
		})
		if err != nil {
			return QueryPage[*record]{}, err
		}
		if ok {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := int64(len(matched))
	if q.Offset < len(matched) {
		matched = matched[q.Offset:]
	} else {
		matched = nil
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return QueryPage[*record]{Items: matched, TotalCount: total}, nil
}

func (d *fakeDao) SaveHistory(_ context.Context, entry HistoryEntry[int64]) error {
	d.history = append(d.history, entry)
	return nil
}

func (d *fakeDao) GetHistory(_ context.Context, entity string, id int64, start, limit int) ([]HistoryEntry[int64], error) {
	d.historyReads++
	var out []HistoryEntry[int64]
	for _, e := range d.history {
		if e.Entity == entity && e.EntityID == id {
			out = append(out, e)
		}
	}
	if start < len(out) {
		out = out[start:]
	} else {
		out = nil
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// policy is a configurable PersistenceFilter.
type policy struct {
	AllowAll[*record]
	hidden       map[int64]bool
	denyCreate   bool
	denyUpdate   bool
	denyDeleteOf map[int64]bool
}

func (p policy) IsVisible(r *record, _ *Context) bool { return !p.hidden[r.ID] }
func (p policy) CanCreate(*record, *Context) bool     { return !p.denyCreate }
func (p policy) CanUpdate(*record, *Context) bool     { return !p.denyUpdate }
func (p policy) CanDelete(r *record, _ *Context) bool { return !p.denyDeleteOf[r.ID] }

// rules is a configurable Validator.
type rules struct {
	createErr error
	updateErr error
	deleteOf  map[int64]error
}

func (v rules) ValidateCreate(context.Context, *item, *Context) error { return v.createErr }
func (v rules) ValidateUpdate(context.Context, *item, *record, *Context) error {
	return v.updateErr
}
func (v rules) ValidateDelete(_ context.Context, r *record, _ *Context) error {
	return v.deleteOf[r.ID]
}

type fixture struct {
	translator *fakeTranslator
	dao        *fakeDao
	ops        *Operations[*item, *record, int64]
}

func newFixture(t interface{ Fatalf(string, ...any) }, configure func(*EntityPluginBuilder[*item, *record, int64]), rows ...*record) *fixture {
	f := &fixture{translator: &fakeTranslator{}, dao: newFakeDao(rows...)}
	b := NewEntityPlugin[*item, *record, int64]("item").WithTranslator(f.translator).WithDao(f.dao)
	if configure != nil {
		configure(b)
	}
	plugin, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	f.ops = NewOperations(plugin)
	return f
}
