// Package mongodb connects the document Dao to a MongoDB database.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nimburion/entitykit/pkg/observability/logger"
)

var errClosed = errors.New("mongodb adapter is closed")

// Config holds MongoDB adapter configuration.
type Config struct {
	URL              string
	Database         string
	// ConnectTimeout bounds the initial connect and ping. Defaults to 5s.
	ConnectTimeout   time.Duration
	// OperationTimeout applies to calls whose context has no deadline.
	// Defaults to 5s.
	OperationTimeout time.Duration
}

// Adapter executes collection calls for mongodao against one database.
type Adapter struct {
	client  *mongo.Client
	db      *mongo.Database
	logger  logger.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewAdapter connects and pings the primary. Collections are created lazily
// by the server on first insert.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	switch {
	case cfg.URL == "":
		return nil, fmt.Errorf("mongodb URL is required")
	case cfg.Database == "":
		return nil, fmt.Errorf("mongodb database is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	log.Info("mongodb connection established", "database", cfg.Database)
	return &Adapter{
		client:  client,
		db:      client.Database(cfg.Database),
		logger:  log,
		timeout: cfg.OperationTimeout,
	}, nil
}

// collection returns the named collection and a context bounded by the
// operation timeout.
func (a *Adapter) collection(ctx context.Context, name string) (*mongo.Collection, context.Context, context.CancelFunc, error) {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return nil, ctx, func() {}, errClosed
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	return a.db.Collection(name), opCtx, cancel, nil
}

func (a *Adapter) InsertOne(ctx context.Context, collection string, doc interface{}) (*mongo.InsertOneResult, error) {
	coll, opCtx, cancel, err := a.collection(ctx, collection)
	defer cancel()
	if err != nil {
		return nil, err
	}
	return coll.InsertOne(opCtx, doc)
}

// FindOne returns mongo.ErrNoDocuments when nothing matches.
func (a *Adapter) FindOne(ctx context.Context, collection string, filter interface{}, result interface{}) error {
	coll, opCtx, cancel, err := a.collection(ctx, collection)
	defer cancel()
	if err != nil {
		return err
	}
	return coll.FindOne(opCtx, filter).Decode(result)
}

// FindAll decodes every match into results, a pointer to a slice.
func (a *Adapter) FindAll(ctx context.Context, collection string, filter interface{}, results interface{}, opts ...*options.FindOptions) error {
	coll, opCtx, cancel, err := a.collection(ctx, collection)
	defer cancel()
	if err != nil {
		return err
	}
	cursor, err := coll.Find(opCtx, filter, opts...)
	if err != nil {
		return err
	}
	return cursor.All(opCtx, results)
}

func (a *Adapter) CountDocuments(ctx context.Context, collection string, filter interface{}) (int64, error) {
	coll, opCtx, cancel, err := a.collection(ctx, collection)
	defer cancel()
	if err != nil {
		return 0, err
	}
	return coll.CountDocuments(opCtx, filter)
}

func (a *Adapter) ReplaceOne(ctx context.Context, collection string, filter, replacement interface{}) (*mongo.UpdateResult, error) {
	coll, opCtx, cancel, err := a.collection(ctx, collection)
	defer cancel()
	if err != nil {
		return nil, err
	}
	return coll.ReplaceOne(opCtx, filter, replacement)
}

func (a *Adapter) DeleteOne(ctx context.Context, collection string, filter interface{}) (*mongo.DeleteResult, error) {
	coll, opCtx, cancel, err := a.collection(ctx, collection)
	defer cancel()
	if err != nil {
		return nil, err
	}
	return coll.DeleteOne(opCtx, filter)
}

// HealthCheck pings the primary within two seconds.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return errClosed
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.client.Ping(ctx, readpref.Primary()); err != nil {
		a.logger.Error("mongodb health check failed", "error", err)
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

// Close disconnects the client. Later calls are no-ops.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}
	return nil
}

func (a *Adapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
