package internal

import (
	"context"
	"fmt"
	"krysselista/contract"
	"krysselista/infrastructure/memstore"
	"krysselista/infrastructure/redisstore"
	"krysselista/infrastructure/storage"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Store is the collection backend picked by STORE_BACKEND.
type Store struct {
	Client  contract.ICollectionClient
	Healthy func(ctx context.Context) bool
	close   []func()
}

// Close releases the backend, last opened first.
func (s *Store) Close() {
	for i := len(s.close) - 1; i >= 0; i-- {
		s.close[i]()
	}
}

func OpenStore(ctx context.Context, config Config, log *slog.Logger) (*Store, error) {
	alwaysHealthy := func(context.Context) bool { return true }

	switch config.StoreBackend {
	case BackendMemory:
		client := memstore.NewMemoryClient(log, time.Now)
		return &Store{Client: client, Healthy: alwaysHealthy, close: []func(){client.Close}}, nil

	case BackendBadger:
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, fmt.Errorf("database opening failed: %w", err)
		}
		client := storage.NewBadgerClient(db, log, time.Now)
		return &Store{
			Client:  client,
			Healthy: func(context.Context) bool { return !db.IsClosed() },
			close: []func(){
				func() {
					log.Info("Closing BadgerDB...")
					_ = db.Close()
				},
				client.Close,
			},
		}, nil

	case BackendRedis:
		rdb := redisstore.NewRedis(config.RedisAddr)
		client, err := redisstore.NewRedisClient(ctx, rdb, config.RedisPrefix, log)
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return &Store{
			Client:  client,
			Healthy: client.Healthy,
			close: []func(){
				func() { _ = rdb.Close() },
				client.Close,
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", config.StoreBackend)
}
