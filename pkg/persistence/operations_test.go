package persistence

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/nimburion/entitykit/pkg/apperror"
	"github.com/nimburion/entitykit/pkg/persistence/query"
)

func seedRows(n int) []*record {
	rows := make([]*record, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, &record{ID: int64(i), Name: "row", Owner: "ann"})
	}
	return rows
}

func TestQuery_Pagination(t *testing.T) {
	tests := []struct {
		name       string
		req        QueryRequest
		wantOffset int
		wantLimit  int
		wantStart  int
		wantCount  int
	}{
		{name: "unset", req: QueryRequest{}, wantOffset: 0, wantLimit: DefaultQueryLimit, wantStart: 1, wantCount: 25},
		{name: "first page", req: QueryRequest{Start: 1, Limit: 10}, wantOffset: 0, wantLimit: 10, wantStart: 1, wantCount: 10},
		{name: "second page", req: QueryRequest{Start: 11, Limit: 10}, wantOffset: 10, wantLimit: 10, wantStart: 11, wantCount: 10},
		{name: "last partial page", req: QueryRequest{Start: 21, Limit: 10}, wantOffset: 20, wantLimit: 10, wantStart: 21, wantCount: 5},
		{name: "past the end", req: QueryRequest{Start: 40, Limit: 10}, wantOffset: 39, wantLimit: 10, wantStart: 40, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, seedRows(25)...)

			result, err := f.ops.Query(context.Background(), tt.req, NewContext("item"))
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if f.dao.lastQuery.Offset != tt.wantOffset || f.dao.lastQuery.Limit != tt.wantLimit {
				t.Errorf("dao offset/limit = %d/%d, want %d/%d",
					f.dao.lastQuery.Offset, f.dao.lastQuery.Limit, tt.wantOffset, tt.wantLimit)
			}
			if result.Start != tt.wantStart {
				t.Errorf("Start = %d, want %d", result.Start, tt.wantStart)
			}
			if result.ResponseCount != tt.wantCount || len(result.Items) != tt.wantCount {
				t.Errorf("ResponseCount = %d, items = %d, want %d", result.ResponseCount, len(result.Items), tt.wantCount)
			}
			if result.TotalCount != 25 {
				t.Errorf("TotalCount = %d, want 25", result.TotalCount)
			}
		})
	}
}

func TestQuery_EmptyResultSkipsTranslator(t *testing.T) {
	f := newFixture(t, nil, seedRows(3)...)

	result, err := f.ops.Query(context.Background(), QueryRequest{Filter: "name==nothing"}, NewContext("item"))
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalCount != 0 || result.Items == nil || len(result.Items) != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if f.translator.calls != 0 {
		t.Errorf("translator invoked %d times", f.translator.calls)
	}
}

func TestQuery_CombinesFilterPredicate(t *testing.T) {
	rows := []*record{
		{ID: 1, Name: "a", Owner: "ann"},
		{ID: 2, Name: "a", Owner: "bob"},
		{ID: 3, Name: "b", Owner: "ann"},
	}
	f := newFixture(t, func(b *EntityPluginBuilder[*item, *record, int64]) {
		b.WithFilter(OwnerFilter[*record]{Column: "owner", Owner: func(r *record) string { return r.Owner }})
	}, rows...)

	result, err := f.ops.Query(context.Background(), QueryRequest{Filter: "name==a", Sort: "-id"}, NewContext("item", WithUser("ann")))
	if err != nil {
		t.Fatal(err)
	}
	if got := f.dao.lastQuery.Predicate.String(); got != "(name==a;owner==ann)" {
		t.Errorf("predicate = %s", got)
	}
	if want := []query.Order{{Field: "id", Column: "id", Descending: true}}; !reflect.DeepEqual(f.dao.lastQuery.Order, want) {
		t.Errorf("order = %v", f.dao.lastQuery.Order)
	}
	if result.TotalCount != 1 || result.Items[0].ID != 1 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestQuery_DefaultOrderIsID(t *testing.T) {
	f := newFixture(t, nil, seedRows(1)...)

	if _, err := f.ops.Query(context.Background(), QueryRequest{}, NewContext("item")); err != nil {
		t.Fatal(err)
	}
	if want := []query.Order{{Field: "id", Column: "id"}}; !reflect.DeepEqual(f.dao.lastQuery.Order, want) {
		t.Errorf("order = %v, want %v", f.dao.lastQuery.Order, want)
	}
	if f.dao.lastQuery.Predicate != nil {
		t.Errorf("predicate = %v, want nil", f.dao.lastQuery.Predicate)
	}
}

func TestQuery_BadExpressions(t *testing.T) {
	tests := []QueryRequest{
		{Filter: "color==red"},
		{Filter: "name=="},
		{Sort: "color"},
		{Sort: "name:sideways"},
	}
	for _, req := range tests {
		f := newFixture(t, nil, seedRows(1)...)
		_, err := f.ops.Query(context.Background(), req, NewContext("item"))
		if !apperror.Is(err, apperror.KindBadRequest) {
			t.Errorf("Query(%+v) error = %v, want bad request", req, err)
		}
		if f.dao.queries != 0 {
			t.Errorf("Query(%+v) reached the dao", req)
		}
	}
}

func TestFindByIDs_FiltersInvisible(t *testing.T) {
	f := newFixture(t, func(b *EntityPluginBuilder[*item, *record, int64]) {
		b.WithFilter(policy{hidden: map[int64]bool{2: true}})
	}, seedRows(3)...)

	got, err := f.ops.FindByIDs(context.Background(), []int64{3, 2, 1, 9}, NewContext("item"))
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if !reflect.DeepEqual(ids, []int64{1, 3}) {
		t.Errorf("ids = %v, want [1 3]", ids)
	}
}

func TestCreateOrUpdateItem_Create(t *testing.T) {
	f := newFixture(t, func(b *EntityPluginBuilder[*item, *record, int64]) {
		b.WithJSONHistory()
	})
	pc := NewContext("item", WithUser("ann"))

	got, ok, err := f.ops.CreateOrUpdateItem(context.Background(), &item{Name: "new"}, pc)
	if err != nil || !ok {
		t.Fatalf("CreateOrUpdateItem() = %v, %v", ok, err)
	}
	if got.ID != 101 || got.Name != "new" {
		t.Errorf("created = %+v", got)
	}
	if pc.WriteContext != WriteCreate {
		t.Errorf("WriteContext = %q", pc.WriteContext)
	}
	if f.dao.creates != 1 || f.dao.updates != 0 {
		t.Errorf("creates = %d, updates = %d", f.dao.creates, f.dao.updates)
	}
	if len(f.dao.history) != 1 || f.dao.history[0].Action != ActionCreate || f.dao.history[0].EntityID != 101 || f.dao.history[0].Actor != "ann" {
		t.Errorf("history = %+v", f.dao.history)
	}
	if events := pc.Events(); len(events) != 1 || events[0].Action != ActionCreate || events[0].ID != int64(101) {
		t.Errorf("events = %+v", events)
	}
}

func TestCreateOrUpdateItem_PolicySuppressed(t *testing.T) {
	f := newFixture(t, func(b *EntityPluginBuilder[*item, *record, int64]) {
		b.WithFilter(policy{denyCreate: true}).WithJSONHistory()
	})
	pc := NewContext("item")

	got, ok, err := f.ops.CreateOrUpdateItem(context.Background(), &item{Name: "new"}, pc)
	if err != nil {
		t.Fatal(err)
	}
	if ok || got != nil {
		t.Errorf("expected suppressed result, got %+v, %v", got, ok)
	}
	if f.dao.mutations() != 0 || f.dao.finds+f.dao.findAlls+f.dao.queries != 0 {
		t.Errorf("dao was called: %+v", f.dao)
	}
	if pc.WriteContext != WriteNone || len(pc.Events()) != 0 {
		t.Errorf("side effects recorded: %q, %v", pc.WriteContext, pc.Events())
	}
}

func TestCreateOrUpdateItem_CreateKeyRedirect(t *testing.T) {
	f := newFixture(t, func(b *EntityPluginBuilder[*item, *record, int64]) {
		b.WithCreateKey(CreateKeyFunc[*item, int64](func(_ context.Context, c *item, _ *Context) (int64, bool, error) {
			if c.Owner == "ann" {
				return 1, true, nil
			}
			return 0, false, nil
		}))
	}, &record{ID: 1, Name: "old", Owner: "ann"})
	pc := NewContext("item")

	got, ok, err := f.ops.CreateOrUpdateItem(context.Background(), &item{Name: "renamed", Owner: "ann"}, pc)
	if err != nil || !ok {
		t.Fatalf("CreateOrUpdateItem() = %v, %v", ok, err)
	}
	if f.dao.creates != 0 || f.dao.updates != 1 {
		t.Errorf("creates = %d, updates = %d", f.dao.creates, f.dao.updates)
	}
	if got.ID != 1 || got.Name != "renamed" {
		t.Errorf("updated = %+v", got)
	}
	if pc.WriteContext != WriteUpdate {
		t.Errorf("WriteContext = %q", pc.WriteContext)
	}
}

func TestCreateOrUpdateItem_ValidationFailure(t *testing.T) {
	f := newFixture(t, func(b *EntityPluginBuilder[*item, *record, int64]) {
		b.WithValidator(rules{createErr: apperror.Validation("name is required", nil)})
	})

	_, _, err := f.ops.CreateOrUpdateItem(context.Background(), &item{}, NewContext("item"))
	if !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("error = %v, want validation", err)
	}
	if f.dao.mutations() != 0 || f.translator.calls != 0 {
		t.Error("validation failure had side effects")
	}
}

func TestUpdateItem(t *testing.T) {
	f := newFixture(t, func(b *EntityPluginBuilder[*item, *record, int64]) {
		b.WithJSONHistory()
	}, &record{ID: 1, Name: "old"})
	pc := NewContext("item")

	got, ok, err := f.ops.UpdateItem(context.Background(), []int64{1}, &item{Name: "new"}, pc)
	if err != nil || !ok {
		t.Fatalf("UpdateItem() = %v, %v", ok, err)
	}
	if got.Name != "new" || f.dao.rows[1].Name != "new" {
		t.Errorf("updated = %+v, stored = %+v", got, f.dao.rows[1])
	}
	if pc.WriteContext != WriteUpdate {
		t.Errorf("WriteContext = %q", pc.WriteContext)
	}
	if len(f.dao.history) != 1 || f.dao.history[0].Action != ActionModify {
		t.Errorf("history = %+v", f.dao.history)
	}
	events := pc.Events()
	if len(events) != 1 || !reflect.DeepEqual(events[0].Fields, []string{"name"}) {
		t.Errorf("events = %+v", events)
	}
}

func TestUpdateItem_Errors(t *testing.T) {
	tests := []struct {
		name     string
		ids      []int64
		payload  *item
		validate rules
		wantKind apperror.Kind
	}{
		{name: "absent id", ids: []int64{9}, payload: &item{Name: "x"}, wantKind: apperror.KindNotFound},
		{name: "no id", payload: &item{Name: "x"}, wantKind: apperror.KindNotFound},
		{name: "identity change", ids: []int64{1}, payload: &item{ID: 2, Name: "x"}, wantKind: apperror.KindValidation},
		{
			name:     "update rule",
			ids:      []int64{1},
			payload:  &item{Name: "x"},
			validate: rules{updateErr: apperror.Validation("locked", nil)},
			wantKind: apperror.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(b *EntityPluginBuilder[*item, *record, int64]) {
				b.WithValidator(tt.validate).WithJSONHistory()
			}, &record{ID: 1, Name: "old"})

			_, ok, err := f.ops.UpdateItem(context.Background(), tt.ids, tt.payload, NewContext("item"))
			if ok || !apperror.Is(err, tt.wantKind) {
				t.Fatalf("UpdateItem() = %v, %v; want %s", ok, err, tt.wantKind)
			}
			if f.dao.mutations() != 0 {
				t.Errorf("dao mutated: updates = %d, history = %d", f.dao.updates, len(f.dao.history))
			}
			if f.dao.rows[1].ID != 1 || f.dao.rows[1].Name != "old" {
				t.Errorf("stored row changed: %+v", f.dao.rows[1])
			}
		})
	}
}

func TestUpdateItem_SameIdentifierAllowed(t *testing.T) {
	f := newFixture(t, nil, &record{ID: 1, Name: "old"})

	_, ok, err := f.ops.UpdateItem(context.Background(), []int64{1}, &item{ID: 1, Name: "new"}, NewContext("item"))
	if err != nil || !ok {
		t.Fatalf("UpdateItem() = %v, %v", ok, err)
	}
}

func TestUpdateItem_PolicySuppressed(t *testing.T) {
	f := newFixture(t, func(b *EntityPluginBuilder[*item, *record, int64]) {
		b.WithFilter(policy{denyUpdate: true})
	}, &record{ID: 1, Name: "old"})
	pc := NewContext("item")

	_, ok, err := f.ops.UpdateItem(context.Background(), []int64{1}, &item{Name: "new"}, pc)
	if err != nil || ok {
		t.Fatalf("UpdateItem() = %v, %v", ok, err)
	}
	if f.dao.updates != 0 || f.translator.calls != 0 || len(pc.ChangedFields()) != 0 {
		t.Error("suppressed update had side effects")
	}
}

func TestDeleteItem(t *testing.T) {
	f := newFixture(t, func(b *EntityPluginBuilder[*item, *record, int64]) {
		b.WithFilter(policy{denyDeleteOf: map[int64]bool{2: true}}).WithJSONHistory()
	}, seedRows(3)...)
	pc := NewContext("item")

	deleted, err := f.ops.DeleteItem(context.Background(), []int64{1, 2, 3, 4}, pc)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if _, ok := f.dao.rows[2]; !ok || len(f.dao.rows) != 1 {
		t.Errorf("remaining rows = %v", f.dao.rows)
	}
	if len(f.dao.history) != 2 || f.dao.history[0].Action != ActionDelete {
		t.Errorf("history = %+v", f.dao.history)
	}
	if len(pc.Events()) != 2 {
		t.Errorf("events = %+v", pc.Events())
	}
}

func TestDeleteItem_ValidationAborts(t *testing.T) {
	f := newFixture(t, func(b *EntityPluginBuilder[*item, *record, int64]) {
		b.WithValidator(rules{deleteOf: map[int64]error{2: apperror.Validation("in use", nil)}})
	}, seedRows(3)...)

	deleted, err := f.ops.DeleteItem(context.Background(), []int64{1, 2, 3}, NewContext("item"))
	if !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("error = %v, want validation", err)
	}
	if deleted != 1 || f.dao.deletes != 1 {
		t.Errorf("deleted = %d, dao deletes = %d; want 1", deleted, f.dao.deletes)
	}
	if _, ok := f.dao.rows[3]; !ok {
		t.Error("row after the failing id was deleted")
	}
}

func TestHistoryGating(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		f := newFixture(t, func(b *EntityPluginBuilder[*item, *record, int64]) {
			b.WithHistory(enabled, JSONHistoryFactory[*record, int64]{})
		}, &record{ID: 1, Name: "a"})
		ctx := context.Background()

		if _, _, err := f.ops.CreateOrUpdateItem(ctx, &item{Name: "b"}, NewContext("item")); err != nil {
			t.Fatal(err)
		}
		if _, _, err := f.ops.UpdateItem(ctx, []int64{1}, &item{Name: "c"}, NewContext("item")); err != nil {
			t.Fatal(err)
		}
		if _, err := f.ops.DeleteItem(ctx, []int64{1}, NewContext("item")); err != nil {
			t.Fatal(err)
		}

		var actions []HistoryAction
		for _, e := range f.dao.history {
			actions = append(actions, e.Action)
		}
		var want []HistoryAction
		if enabled {
			want = []HistoryAction{ActionCreate, ActionModify, ActionDelete}
		}
		if !reflect.DeepEqual(actions, want) {
			t.Errorf("enabled=%v: actions = %v, want %v", enabled, actions, want)
		}
	}
}

func TestGetHistory(t *testing.T) {
	f := newFixture(t, func(b *EntityPluginBuilder[*item, *record, int64]) {
		b.WithJSONHistory()
	}, &record{ID: 1, Name: "a"})
	ctx := context.Background()
	for _, name := range []string{"b", "c", "d"} {
		if _, _, err := f.ops.UpdateItem(ctx, []int64{1}, &item{Name: name}, NewContext("item")); err != nil {
			t.Fatal(err)
		}
	}
	calls := f.translator.calls

	entries, err := f.ops.GetHistory(ctx, 1, 1, 1, NewContext("item"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || string(entries[0].Payload) != `{"ID":1,"Name":"c","Owner":""}` {
		t.Errorf("entries = %+v", entries)
	}
	if f.translator.calls != calls || f.dao.historyReads != 1 {
		t.Error("history read was not a direct dao read")
	}
}

type recordingObserver struct {
	ops  []string
	errs int
}

func (o *recordingObserver) ObserveOperation(_ string, operation string, _ time.Duration, err error) {
	o.ops = append(o.ops, operation)
	if err != nil {
		o.errs++
	}
}

func TestOperations_Observer(t *testing.T) {
	observer := &recordingObserver{}
	f := newFixture(t, nil, seedRows(1)...)
	ops := NewOperations(f.ops.Plugin(), WithObserver(observer))
	ctx := context.Background()

	_, _ = ops.Query(ctx, QueryRequest{Filter: "bad=="}, NewContext("item"))
	_, _, _ = ops.UpdateItem(ctx, []int64{1}, &item{Name: "x"}, NewContext("item"))

	if !reflect.DeepEqual(observer.ops, []string{OpQuery, OpUpdate}) || observer.errs != 1 {
		t.Errorf("observed %v with %d errors", observer.ops, observer.errs)
	}
}

func TestDispatchChangeEvents(t *testing.T) {
	pc := NewContext("item")
	pc.AddEvent(EntityChangeEvent{Entity: "item", ID: int64(1), Action: ActionCreate})
	pc.AddEvent(EntityChangeEvent{Entity: "item", ID: int64(2), Action: ActionDelete})

	var seen []any
	ok := ChangeListenerFunc(func(_ context.Context, e EntityChangeEvent) error {
		seen = append(seen, e.ID)
		return nil
	})
	failing := ChangeListenerFunc(func(context.Context, EntityChangeEvent) error {
		return errors.New("broker down")
	})

	err := DispatchChangeEvents(context.Background(), pc, failing, ok)
	if err == nil {
		t.Fatal("expected joined listener error")
	}
	if !reflect.DeepEqual(seen, []any{int64(1), int64(2)}) {
		t.Errorf("delivered = %v", seen)
	}
}
