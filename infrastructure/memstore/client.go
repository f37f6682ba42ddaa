// Package memstore is the in-process collection client used for development and tests.
package memstore

import (
	"context"
	"krysselista/collection"
	"krysselista/contract"
	"krysselista/errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryClient struct {
	mu      sync.Mutex
	log     *slog.Logger
	now     func() time.Time
	hub     *collection.Hub
	data    map[collection.Name]map[string]collection.Record
	seq     map[collection.Name]uint64
	version map[collection.Name]uint64
	closed  bool
}

// NewMemoryClient returns an empty store. now stands for the server clock, time.Now when nil.
func NewMemoryClient(log *slog.Logger, now func() time.Time) *MemoryClient {
	if now == nil {
		now = time.Now
	}
	return &MemoryClient{
		log:     log,
		now:     now,
		hub:     collection.NewHub(),
		data:    make(map[collection.Name]map[string]collection.Record),
		seq:     make(map[collection.Name]uint64),
		version: make(map[collection.Name]uint64),
	}
}

func (m *MemoryClient) Subscribe(ctx context.Context, name collection.Name, filter collection.Filter) (contract.ISubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewPersistenceError("subscribe", string(name), "", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.NewPersistenceError("subscribe", string(name), "", errors.ErrStoreClosed)
	}

	feed := m.hub.Subscribe(name, filter).Bind(ctx)
	feed.Deliver(m.snapshotLocked(name))
	m.log.Debug("Subscribed", "collection", name, "conditions", len(filter))
	return feed, nil
}

func (m *MemoryClient) Append(ctx context.Context, name collection.Name, fields collection.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.NewPersistenceError("append", string(name), "", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errors.NewPersistenceError("append", string(name), "", errors.ErrStoreClosed)
	}

	resolved, err := collection.Apply(nil, fields, m.now())
	if err != nil {
		return "", err
	}
	m.seq[name]++
	record := collection.Record{ID: uuid.NewString(), Seq: m.seq[name], Fields: resolved}
	if m.data[name] == nil {
		m.data[name] = make(map[string]collection.Record)
	}
	m.data[name][record.ID] = record
	m.publishLocked(name)
	return record.ID, nil
}

func (m *MemoryClient) UpdateFields(ctx context.Context, name collection.Name, id string, fields collection.Fields) error {
	if err := ctx.Err(); err != nil {
		return errors.NewPersistenceError("update", string(name), id, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.NewPersistenceError("update", string(name), id, errors.ErrStoreClosed)
	}

	record, ok := m.data[name][id]
	if !ok {
		return errors.NewPersistenceError("update", string(name), id, errors.ErrRecordNotFound)
	}
	resolved, err := collection.Apply(record.Fields, fields, m.now())
	if err != nil {
		return err
	}
	record.Fields = resolved
	m.data[name][id] = record
	m.publishLocked(name)
	return nil
}

// Records returns the current content of a collection ordered by arrival.
func (m *MemoryClient) Records(name collection.Name) []collection.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(name).Records
}

// Close releases every subscription. Later calls fail with ErrStoreClosed.
func (m *MemoryClient) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.hub.Close()
}

func (m *MemoryClient) publishLocked(name collection.Name) {
	m.version[name]++
	m.hub.Publish(m.snapshotLocked(name))
}

func (m *MemoryClient) snapshotLocked(name collection.Name) collection.Snapshot {
	records := make([]collection.Record, 0, len(m.data[name]))
	for _, r := range m.data[name] {
		records = append(records, r)
	}
	collection.SortBySeq(records)
	return collection.Snapshot{Name: name, Version: m.version[name], Records: records}
}
