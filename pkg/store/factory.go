package store

import (
	"fmt"
	"strings"

	"github.com/nimburion/entitykit/pkg/config"
	"github.com/nimburion/entitykit/pkg/observability/logger"
	"github.com/nimburion/entitykit/pkg/store/mongodb"
	"github.com/nimburion/entitykit/pkg/store/sqlstore"
)

// NewStorageAdapter selects and initializes the storage adapter for
// cfg.Type. The memory backend needs no adapter and returns nil, nil.
func NewStorageAdapter(cfg config.DatabaseConfig, log logger.Logger) (Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypeMemory:
		return nil, nil
	case config.DatabaseTypePostgres, config.DatabaseTypeMySQL:
		adapter, err := sqlstore.NewAdapter(sqlstore.Config{
			Driver:          cfg.Type,
			URL:             cfg.URL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			QueryTimeout:    cfg.QueryTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	case config.DatabaseTypeMongoDB:
		adapter, err := mongodb.NewAdapter(mongodb.Config{
			URL:              cfg.URL,
			Database:         cfg.DatabaseName,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.QueryTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: memory, postgres, mysql, mongodb)", cfg.Type)
	}
}
