package persistence

import (
	"context"
)

// Validator applies entity-specific business rules. Violations are returned
// as apperror validation errors.
type Validator[C any, P any] interface {
	ValidateCreate(ctx context.Context, client C, pc *Context) error
	ValidateUpdate(ctx context.Context, client C, existing P, pc *Context) error
	ValidateDelete(ctx context.Context, existing P, pc *Context) error
}

// NoopValidator accepts everything.
type NoopValidator[C any, P any] struct{}

func (NoopValidator[C, P]) ValidateCreate(context.Context, C, *Context) error    { return nil }
func (NoopValidator[C, P]) ValidateUpdate(context.Context, C, P, *Context) error { return nil }
func (NoopValidator[C, P]) ValidateDelete(context.Context, P, *Context) error    { return nil }

// CreateKeyProcessor resolves the natural key of an incoming client object
// to the identifier of an existing row.
type CreateKeyProcessor[C any, ID comparable] interface {
	// LookupID returns ok=false when no row carries the natural key.
	LookupID(ctx context.Context, client C, pc *Context) (id ID, ok bool, err error)
}

// CreateKeyFunc adapts a function to CreateKeyProcessor.
type CreateKeyFunc[C any, ID comparable] func(ctx context.Context, client C, pc *Context) (ID, bool, error)

// LookupID calls f.
func (f CreateKeyFunc[C, ID]) LookupID(ctx context.Context, client C, pc *Context) (ID, bool, error) {
	return f(ctx, client, pc)
}
