// Package redisstore keeps collections in Redis hashes and fans changes out through pub/sub,
// so several server instances see each other's writes.
package redisstore

import (
	"context"
	"fmt"
	"krysselista/collection"
	"krysselista/contract"
	"krysselista/errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 5

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
}

// RedisClient stores each collection as a hash "{prefix}:{collection}" of encoded records,
// with "{prefix}:{collection}:seq" and "{prefix}:{collection}:ver" counters.
// Every write publishes the collection name on "{prefix}:changes".
type RedisClient struct {
	rdb    *redis.Client
	log    *slog.Logger
	prefix string
	hub    *collection.Hub
	pubsub *redis.PubSub
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewRedisClient(ctx context.Context, rdb *redis.Client, prefix string, log *slog.Logger) (*RedisClient, error) {
	if prefix == "" {
		prefix = "krysselista"
	}
	c := &RedisClient{
		rdb:    rdb,
		log:    log,
		prefix: prefix,
		hub:    collection.NewHub(),
		done:   make(chan struct{}),
	}
	c.pubsub = rdb.Subscribe(ctx, c.channel())
	if _, err := c.pubsub.Receive(ctx); err != nil {
		_ = c.pubsub.Close()
		return nil, errors.NewPersistenceError("subscribe", c.channel(), "", err)
	}
	go c.listen()
	return c, nil
}

func (c *RedisClient) channel() string { return c.prefix + ":changes" }

func (c *RedisClient) hashKey(name collection.Name) string {
	return fmt.Sprintf("%s:%s", c.prefix, name)
}

func (c *RedisClient) seqKey(name collection.Name) string {
	return fmt.Sprintf("%s:%s:seq", c.prefix, name)
}

func (c *RedisClient) versionKey(name collection.Name) string {
	return fmt.Sprintf("%s:%s:ver", c.prefix, name)
}

// Healthy verifies redis connectivity.
func (c *RedisClient) Healthy(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}

func (c *RedisClient) Subscribe(ctx context.Context, name collection.Name, filter collection.Filter) (contract.ISubscription, error) {
	if err := c.check(ctx); err != nil {
		return nil, errors.NewPersistenceError("subscribe", string(name), "", err)
	}
	feed := c.hub.Subscribe(name, filter).Bind(ctx)
	snapshot, err := c.Snapshot(ctx, name)
	if err != nil {
		feed.Close()
		return nil, err
	}
	feed.Deliver(snapshot)
	return feed, nil
}

func (c *RedisClient) Append(ctx context.Context, name collection.Name, fields collection.Fields) (string, error) {
	if err := c.check(ctx); err != nil {
		return "", errors.NewPersistenceError("append", string(name), "", err)
	}
	now, err := c.rdb.Time(ctx).Result()
	if err != nil {
		return "", errors.NewPersistenceError("append", string(name), "", err)
	}
	resolved, err := collection.Apply(nil, fields, now)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	seq, err := c.rdb.Incr(ctx, c.seqKey(name)).Uint64()
	if err != nil {
		return "", errors.NewPersistenceError("append", string(name), id, err)
	}
	data, err := collection.Marshal(collection.Record{ID: id, Seq: seq, Fields: resolved})
	if err != nil {
		return "", err
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, c.hashKey(name), id, data)
		pipe.Incr(ctx, c.versionKey(name))
		pipe.Publish(ctx, c.channel(), string(name))
		return nil
	})
	if err != nil {
		return "", errors.NewPersistenceError("append", string(name), id, err)
	}
	c.refresh(ctx, name)
	return id, nil
}

func (c *RedisClient) UpdateFields(ctx context.Context, name collection.Name, id string, fields collection.Fields) error {
	if err := c.check(ctx); err != nil {
		return errors.NewPersistenceError("update", string(name), id, err)
	}
	now, err := c.rdb.Time(ctx).Result()
	if err != nil {
		return errors.NewPersistenceError("update", string(name), id, err)
	}
	key := c.hashKey(name)
	txf := func(tx *redis.Tx) error {
		data, err := tx.HGet(ctx, key, id).Bytes()
		if errors.Is(err, redis.Nil) {
			return errors.ErrRecordNotFound
		}
		if err != nil {
			return err
		}
		record, err := collection.Unmarshal(data)
		if err != nil {
			return err
		}
		if record.Fields, err = collection.Apply(record.Fields, fields, now); err != nil {
			return err
		}
		encoded, err := collection.Marshal(record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, encoded)
			pipe.Incr(ctx, c.versionKey(name))
			pipe.Publish(ctx, c.channel(), string(name))
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err = c.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if errors.Is(err, errors.ErrInvalidRecord) {
		return err
	}
	if err != nil {
		return errors.NewPersistenceError("update", string(name), id, err)
	}
	c.refresh(ctx, name)
	return nil
}

// Snapshot reads the hash and its version atomically.
func (c *RedisClient) Snapshot(ctx context.Context, name collection.Name) (collection.Snapshot, error) {
	var all *redis.MapStringStringCmd
	var version *redis.StringCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		all = pipe.HGetAll(ctx, c.hashKey(name))
		version = pipe.Get(ctx, c.versionKey(name))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return collection.Snapshot{}, errors.NewPersistenceError("snapshot", string(name), "", err)
	}

	snapshot := collection.Snapshot{Name: name}
	if v, err := version.Uint64(); err == nil {
		snapshot.Version = v
	}
	for id, data := range all.Val() {
		record, err := collection.Unmarshal([]byte(data))
		if err != nil {
			c.log.Warn("Skipping unreadable record", "collection", name, "id", id, "error", err)
			continue
		}
		snapshot.Records = append(snapshot.Records, record)
	}
	collection.SortBySeq(snapshot.Records)
	return snapshot, nil
}

// Close stops listening for changes and releases subscriptions.
// The redis connection belongs to the caller.
func (c *RedisClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.pubsub.Close()
	<-c.done
	c.hub.Close()
}

func (c *RedisClient) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.ErrStoreClosed
	}
	return nil
}

// listen forwards changes made by any instance to local subscribers.
func (c *RedisClient) listen() {
	defer close(c.done)
	for msg := range c.pubsub.Channel() {
		c.refresh(context.Background(), collection.Name(msg.Payload))
	}
}

func (c *RedisClient) refresh(ctx context.Context, name collection.Name) {
	snapshot, err := c.Snapshot(ctx, name)
	if err != nil {
		c.log.Error("Cannot refresh snapshot", "collection", name, "error", err)
		return
	}
	c.hub.Publish(snapshot)
}
