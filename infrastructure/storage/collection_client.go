package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"krysselista/collection"
	"krysselista/contract"
	"krysselista/errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const maxTxnRetries = 5

// BadgerClient keeps collections in BadgerDB.
// Keys:
//   - "rec:{collection}:{id}" holds the encoded record
//   - "seq:{collection}" the last arrival number
//   - "ver:{collection}" the collection version, bumped on every write
type BadgerClient struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
	hub *collection.Hub

	mu     sync.RWMutex
	closed bool
}

func NewBadgerClient(db *badger.DB, log *slog.Logger, now func() time.Time) *BadgerClient {
	if now == nil {
		now = time.Now
	}
	return &BadgerClient{db: db, log: log, now: now, hub: collection.NewHub()}
}

func recordPrefix(name collection.Name) []byte {
	return []byte(fmt.Sprintf("rec:%s:", name))
}

func recordKey(name collection.Name, id string) []byte {
	return []byte(fmt.Sprintf("rec:%s:%s", name, id))
}

func seqKey(name collection.Name) []byte { return []byte(fmt.Sprintf("seq:%s", name)) }

func versionKey(name collection.Name) []byte { return []byte(fmt.Sprintf("ver:%s", name)) }

func (b *BadgerClient) Subscribe(ctx context.Context, name collection.Name, filter collection.Filter) (contract.ISubscription, error) {
	if err := b.check(ctx); err != nil {
		return nil, errors.NewPersistenceError("subscribe", string(name), "", err)
	}
	// Registered before reading so no write can slip between the two
	feed := b.hub.Subscribe(name, filter).Bind(ctx)
	snapshot, err := b.Snapshot(name)
	if err != nil {
		feed.Close()
		return nil, err
	}
	feed.Deliver(snapshot)
	return feed, nil
}

func (b *BadgerClient) Append(ctx context.Context, name collection.Name, fields collection.Fields) (string, error) {
	if err := b.check(ctx); err != nil {
		return "", errors.NewPersistenceError("append", string(name), "", err)
	}
	resolved, err := collection.Apply(nil, fields, b.now())
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	err = b.update(func(txn *badger.Txn) error {
		seq, err := increment(txn, seqKey(name))
		if err != nil {
			return err
		}
		data, err := collection.Marshal(collection.Record{ID: id, Seq: seq, Fields: resolved})
		if err != nil {
			return err
		}
		if err := txn.Set(recordKey(name, id), data); err != nil {
			return err
		}
		_, err = increment(txn, versionKey(name))
		return err
	})
	if err != nil {
		return "", errors.NewPersistenceError("append", string(name), id, err)
	}
	b.publish(name)
	return id, nil
}

func (b *BadgerClient) UpdateFields(ctx context.Context, name collection.Name, id string, fields collection.Fields) error {
	if err := b.check(ctx); err != nil {
		return errors.NewPersistenceError("update", string(name), id, err)
	}
	now := b.now()
	err := b.update(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(name, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrRecordNotFound
		}
		if err != nil {
			return err
		}
		var record collection.Record
		err = item.Value(func(val []byte) error {
			record, err = collection.Unmarshal(val)
			return err
		})
		if err != nil {
			return err
		}
		if record.Fields, err = collection.Apply(record.Fields, fields, now); err != nil {
			return err
		}
		data, err := collection.Marshal(record)
		if err != nil {
			return err
		}
		if err := txn.Set(recordKey(name, id), data); err != nil {
			return err
		}
		_, err = increment(txn, versionKey(name))
		return err
	})
	if errors.Is(err, errors.ErrInvalidRecord) {
		return err
	}
	if err != nil {
		return errors.NewPersistenceError("update", string(name), id, err)
	}
	b.publish(name)
	return nil
}

// Snapshot reads a whole collection, ordered by arrival, in a single read transaction.
func (b *BadgerClient) Snapshot(name collection.Name) (collection.Snapshot, error) {
	snapshot := collection.Snapshot{Name: name}
	err := b.db.View(func(txn *badger.Txn) error {
		version, err := read(txn, versionKey(name))
		if err != nil {
			return err
		}
		snapshot.Version = version

		prefix := recordPrefix(name)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				record, err := collection.Unmarshal(val)
				if err != nil {
					b.log.Warn("Skipping unreadable record", "key", string(it.Item().Key()), "error", err)
					return nil
				}
				snapshot.Records = append(snapshot.Records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return collection.Snapshot{}, errors.NewPersistenceError("snapshot", string(name), "", err)
	}
	collection.SortBySeq(snapshot.Records)
	return snapshot, nil
}

// Close releases subscriptions. The database itself belongs to the caller.
func (b *BadgerClient) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.hub.Close()
}

func (b *BadgerClient) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.ErrStoreClosed
	}
	return nil
}

// update retries transactions that lost an optimistic concurrency check.
func (b *BadgerClient) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (b *BadgerClient) publish(name collection.Name) {
	snapshot, err := b.Snapshot(name)
	if err != nil {
		b.log.Error("Cannot publish snapshot", "collection", name, "error", err)
		return
	}
	b.hub.Publish(snapshot)
}

func read(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("counter %s: unexpected length %d", key, len(val))
		}
		n = binary.BigEndian.Uint64(val)
		return nil
	})
	return n, err
}

func increment(txn *badger.Txn, key []byte) (uint64, error) {
	n, err := read(txn, key)
	if err != nil {
		return 0, err
	}
	n++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return n, txn.Set(key, buf)
}
