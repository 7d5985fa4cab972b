package persistence

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/entitykit/pkg/apperror"
	"github.com/nimburion/entitykit/pkg/observability/logger"
	"github.com/nimburion/entitykit/pkg/observability/tracing"
	"github.com/nimburion/entitykit/pkg/persistence/query"
)

// Operation names reported to loggers and observers.
const (
	OpFindByIDs = "find_by_ids"
	OpQuery     = "query"
	OpCreate    = "create_or_update"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpHistory   = "history"
)

// OperationObserver records the outcome of each operation.
type OperationObserver interface {
	ObserveOperation(entity, operation string, duration time.Duration, err error)
}

// Option configures Operations.
type Option func(*options)

type options struct {
	logger   logger.Logger
	observer OperationObserver
}

// WithLogger sets the operation logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver sets an observer notified after every operation.
func WithObserver(observer OperationObserver) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// Operations is the CRUD and query orchestrator for one entity. It holds no
// per-request state and is safe for concurrent use.
type Operations[C any, P Identifiable[ID], ID comparable] struct {
	plugin   *EntityPlugin[C, P, ID]
	logger   logger.Logger
	observer OperationObserver
}

// NewOperations creates the orchestrator for a built plugin.
func NewOperations[C any, P Identifiable[ID], ID comparable](plugin *EntityPlugin[C, P, ID], opts ...Option) *Operations[C, P, ID] {
	o := &options{logger: logger.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return &Operations[C, P, ID]{
		plugin:   plugin,
		logger:   o.logger.With("entity", plugin.Name),
		observer: o.observer,
	}
}

// Plugin returns the entity configuration.
func (o *Operations[C, P, ID]) Plugin() *EntityPlugin[C, P, ID] {
	return o.plugin
}

// FindByIDs returns the visible objects among ids. Output order is not
// guaranteed to follow ids.
func (o *Operations[C, P, ID]) FindByIDs(ctx context.Context, ids []ID, pc *Context) (result []C, err error) {
	ctx, finish := o.begin(ctx, OpFindByIDs, tracing.SpanOperationDBQuery)
	defer func() { finish(err) }()

	items, err := o.plugin.Dao.FindAll(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", o.plugin.Name, err)
	}

	visible := make([]P, 0, len(items))
	for _, item := range items {
		if o.plugin.Filter.IsVisible(item, pc) {
			visible = append(visible, item)
		}
	}

	result, err = o.plugin.Translator.ConvertPersistentList(visible, pc)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("found items", "operation", OpFindByIDs, "requested", len(ids), "returned", len(result))
	return result, nil
}

// Query runs a filtered, sorted and paginated query.
func (o *Operations[C, P, ID]) Query(ctx context.Context, req QueryRequest, pc *Context) (result *QueryResult[C], err error) {
	ctx, finish := o.begin(ctx, OpQuery, tracing.SpanOperationDBQuery)
	defer func() { finish(err) }()

	limit := req.Limit
	if limit <= 0 {
		limit = o.plugin.DefaultLimit
	}
	start, offset := 1, 0
	if req.Start > 0 {
		start = req.Start
		offset = req.Start - 1
	}

	var predicate query.Predicate
	if req.Filter != "" {
		predicate, err = o.plugin.PredicateBuilder.BuildPredicate(req.Filter, o.plugin.Schema)
		if err != nil {
			return nil, err
		}
	}
	order, err := o.plugin.OrderBuilder.BuildOrder(req.Sort, o.plugin.Schema)
	if err != nil {
		return nil, err
	}

	page, err := o.plugin.Dao.Query(ctx, Query{
		Offset:    offset,
		Limit:     limit,
		Order:     order,
		Predicate: query.And(predicate, o.plugin.Filter.FilterPredicate(pc)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", o.plugin.Name, err)
	}

	result = &QueryResult[C]{Items: []C{}, TotalCount: page.TotalCount, Start: start}
	if page.TotalCount == 0 {
		return result, nil
	}

	items, err := o.plugin.Translator.ConvertPersistentList(page.Items, pc)
	if err != nil {
		return nil, err
	}
	result.Items = items
	result.ResponseCount = len(items)
	o.logger.Debug("query executed", "operation", OpQuery, "filter", req.Filter, "returned", result.ResponseCount, "total", result.TotalCount)
	return result, nil
}

// CreateOrUpdateItem creates item, or updates the existing row when the
// create-key processor resolves item to an existing id. ok is false when the
// persistence filter suppressed the write.
func (o *Operations[C, P, ID]) CreateOrUpdateItem(ctx context.Context, item C, pc *Context) (C, bool, error) {
	var zero C
	if o.plugin.CreateKey != nil {
		id, found, err := o.plugin.CreateKey.LookupID(ctx, item, pc)
		if err != nil {
			return zero, false, err
		}
		if found {
			o.logger.Debug("create key matched existing item", "id", id)
			return o.UpdateItem(ctx, []ID{id}, item, pc)
		}
	}
	return o.create(ctx, item, pc)
}

func (o *Operations[C, P, ID]) create(ctx context.Context, item C, pc *Context) (result C, ok bool, err error) {
	ctx, finish := o.begin(ctx, OpCreate, tracing.SpanOperationDBInsert)
	defer func() { finish(err) }()

	var zero C
	if err := o.plugin.Validator.ValidateCreate(ctx, item, pc); err != nil {
		return zero, false, err
	}

	persistent, err := o.plugin.Translator.ConvertClient(item, pc)
	if err != nil {
		return zero, false, err
	}
	if !o.plugin.Filter.CanCreate(persistent, pc) {
		o.logger.Warn("create suppressed by persistence filter", "user", pc.User)
		return zero, false, nil
	}

	saved, err := o.plugin.Dao.Create(ctx, persistent)
	if err != nil {
		return zero, false, fmt.Errorf("failed to create %s: %w", o.plugin.Name, err)
	}
	if err := o.saveHistory(ctx, pc, ActionCreate, saved); err != nil {
		return zero, false, err
	}
	o.recordEvent(pc, ActionCreate, saved.GetID(), nil)

	result, err = o.plugin.Translator.ConvertPersistent(saved, pc)
	if err != nil {
		return zero, false, err
	}
	pc.WriteContext = WriteCreate
	o.logger.Debug("item created", "operation", OpCreate, "id", saved.GetID())
	return result, true, nil
}

// UpdateItem applies item onto the row identified by the first id. ok is
// false when the persistence filter suppressed the write.
func (o *Operations[C, P, ID]) UpdateItem(ctx context.Context, ids []ID, item C, pc *Context) (result C, ok bool, err error) {
	ctx, finish := o.begin(ctx, OpUpdate, tracing.SpanOperationDBUpdate)
	defer func() { finish(err) }()

	var zero C
	if len(ids) == 0 {
		return zero, false, apperror.NotFound(fmt.Sprintf("%s without id was not found.", pc.Entity))
	}
	existing, found, err := o.plugin.Dao.Find(ctx, ids[0])
	if err != nil {
		return zero, false, fmt.Errorf("failed to load %s: %w", o.plugin.Name, err)
	}
	if !found {
		return zero, false, apperror.NotFound(fmt.Sprintf("%s with id %v was not found.", pc.Entity, ids[0]))
	}

	if err := o.plugin.Validator.ValidateUpdate(ctx, item, existing, pc); err != nil {
		return zero, false, err
	}
	if !o.plugin.Filter.CanUpdate(existing, pc) {
		o.logger.Warn("update suppressed by persistence filter", "id", ids[0], "user", pc.User)
		return zero, false, nil
	}

	oldID := existing.GetID()
	if _, err := o.plugin.Translator.CopyClient(item, existing, pc); err != nil {
		return zero, false, err
	}
	var zeroID ID
	if oldID != zeroID && existing.GetID() != oldID {
		return zero, false, apperror.Validation("Id in URI does not match the Id in the payload.", map[string]interface{}{
			"id": oldID,
		})
	}

	pc.WriteContext = WriteUpdate
	saved, err := o.plugin.Dao.Update(ctx, existing)
	if err != nil {
		return zero, false, fmt.Errorf("failed to update %s: %w", o.plugin.Name, err)
	}
	if err := o.saveHistory(ctx, pc, ActionModify, saved); err != nil {
		return zero, false, err
	}
	o.recordEvent(pc, ActionModify, oldID, pc.changedFieldNames(pc.Entity, any(oldID)))

	result, err = o.plugin.Translator.ConvertPersistent(saved, pc)
	if err != nil {
		return zero, false, err
	}
	return result, true, nil
}

// DeleteItem deletes every deletable row among ids and returns how many were
// deleted. A validation failure aborts the remaining ids.
func (o *Operations[C, P, ID]) DeleteItem(ctx context.Context, ids []ID, pc *Context) (deleted int, err error) {
	ctx, finish := o.begin(ctx, OpDelete, tracing.SpanOperationDBDelete)
	defer func() { finish(err) }()

	items, err := o.plugin.Dao.FindAll(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", o.plugin.Name, err)
	}

	for _, item := range items {
		if !o.plugin.Filter.CanDelete(item, pc) {
			o.logger.Debug("delete skipped by persistence filter", "id", item.GetID())
			continue
		}
		if err := o.plugin.Validator.ValidateDelete(ctx, item, pc); err != nil {
			return deleted, err
		}
		if err := o.plugin.Dao.Delete(ctx, item); err != nil {
			return deleted, fmt.Errorf("failed to delete %s %v: %w", o.plugin.Name, item.GetID(), err)
		}
		if err := o.saveHistory(ctx, pc, ActionDelete, item); err != nil {
			return deleted, err
		}
		o.recordEvent(pc, ActionDelete, item.GetID(), nil)
		deleted++
	}
	o.logger.Debug("items deleted", "operation", OpDelete, "requested", len(ids), "deleted", deleted)
	return deleted, nil
}

// GetHistory reads the stored history of one entity id through the Dao.
func (o *Operations[C, P, ID]) GetHistory(ctx context.Context, id ID, start, limit int, pc *Context) (entries []HistoryEntry[ID], err error) {
	ctx, finish := o.begin(ctx, OpHistory, tracing.SpanOperationDBQuery)
	defer func() { finish(err) }()

	entries, err = o.plugin.Dao.GetHistory(ctx, pc.Entity, id, start, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s history: %w", o.plugin.Name, err)
	}
	return entries, nil
}

func (o *Operations[C, P, ID]) saveHistory(ctx context.Context, pc *Context, action HistoryAction, persistent P) error {
	if !o.plugin.HistoryEnabled {
		return nil
	}
	entry, err := o.plugin.HistoryFactory.NewEntry(pc, action, persistent)
	if err != nil {
		return err
	}
	if err := o.plugin.Dao.SaveHistory(ctx, entry); err != nil {
		return fmt.Errorf("failed to save %s history: %w", o.plugin.Name, err)
	}
	return nil
}

func (o *Operations[C, P, ID]) recordEvent(pc *Context, action HistoryAction, id ID, fields []string) {
	pc.AddEvent(EntityChangeEvent{
		Entity:    pc.Entity,
		ID:        id,
		Action:    action,
		Fields:    fields,
		Actor:     pc.User,
		Timestamp: pc.Now().UTC(),
	})
}

// begin opens a span for one operation and returns the function that ends
// it, notifying the observer.
func (o *Operations[C, P, ID]) begin(ctx context.Context, operation string, spanOp tracing.SpanOperation) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := tracing.StartDatabaseSpan(ctx, spanOp, tracing.WithDBTable(o.plugin.Name))
	return ctx, func(err error) {
		finishSpan(span, err)
		if o.observer != nil {
			o.observer.ObserveOperation(o.plugin.Name, operation, time.Since(started), err)
		}
	}
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		tracing.RecordError(span, err)
	} else {
		tracing.RecordSuccess(span)
	}
	span.End()
}
