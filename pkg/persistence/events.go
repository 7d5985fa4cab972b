package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EntityChangeEvent describes one committed mutation.
type EntityChangeEvent struct {
	Entity    string        `json:"entity"`
	ID        any           `json:"id"`
	Action    HistoryAction `json:"action"`
	Fields    []string      `json:"fields,omitempty"`
	Actor     string        `json:"actor,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ChangeListener receives entity change events after an operation completes.
type ChangeListener interface {
	OnEntityChange(ctx context.Context, event EntityChangeEvent) error
}

// ChangeListenerFunc adapts a function to ChangeListener.
type ChangeListenerFunc func(ctx context.Context, event EntityChangeEvent) error

// OnEntityChange calls f.
func (f ChangeListenerFunc) OnEntityChange(ctx context.Context, event EntityChangeEvent) error {
	return f(ctx, event)
}

// DispatchChangeEvents delivers every event recorded on pc to every listener.
// Delivery continues past listener failures; the failures are joined.
func DispatchChangeEvents(ctx context.Context, pc *Context, listeners ...ChangeListener) error {
	var errs []error
	for _, event := range pc.Events() {
		for _, listener := range listeners {
			if err := listener.OnEntityChange(ctx, event); err != nil {
				errs = append(errs, fmt.Errorf("listener failed for %s %v: %w", event.Entity, event.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}
