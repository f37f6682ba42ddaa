package services

import (
	"context"
	"krysselista/collection"
	"krysselista/contract"
	"krysselista/domain"
	"krysselista/errors"
	"krysselista/observability"
	"krysselista/repositories"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

const defaultReadMarkConcurrency = 8

// MarkResult summarizes one read-marking pass. Err joins the per-message failures.
type MarkResult struct {
	Written int
	Pending int
	Failed  int
	Err     error
}

// ReadTracker propagates a viewer's read receipts onto the messages of a thread.
// A message id stays remembered from the moment its write is issued until a
// snapshot shows the viewer among its readers, so repeated passes never rewrite it.
type ReadTracker struct {
	client      contract.ICollectionClient
	log         *slog.Logger
	monitoring  *observability.MonitoringManager
	concurrency int

	mu      sync.Mutex
	marked  map[string]map[string]struct{} // viewer -> message ids written or in flight
	holders map[string]int                 // viewer -> sessions retaining its bookkeeping
}

func NewReadTracker(client contract.ICollectionClient, log *slog.Logger, monitoring *observability.MonitoringManager, concurrency int) *ReadTracker {
	if concurrency <= 0 {
		concurrency = defaultReadMarkConcurrency
	}
	return &ReadTracker{
		client:      client,
		log:         log,
		monitoring:  monitoring,
		concurrency: concurrency,
		marked:      make(map[string]map[string]struct{}),
		holders:     make(map[string]int),
	}
}

// MarkThreadRead adds viewerID to the readers of every message of thread it has not read.
// Failures are isolated per message, logged and returned in the result; a failed
// message is tried again on the next pass.
func (t *ReadTracker) MarkThreadRead(ctx context.Context, thread domain.Thread, viewerID string) MarkResult {
	var result MarkResult
	targets := t.claim(thread, viewerID, &result)
	if len(targets) == 0 {
		return result
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(t.concurrency)
	for _, id := range targets {
		g.Go(func() error {
			err := t.client.UpdateFields(ctx, collection.Messages, id, repositories.MarkReadUpdate(viewerID))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.release(viewerID, id)
				errs = append(errs, err)
				t.log.Warn("Cannot mark message as read", "message", id, "viewer", viewerID, "error", err)
				return nil
			}
			result.Written++
			return nil
		})
	}
	_ = g.Wait()

	result.Failed = len(errs)
	result.Err = errors.Join(errs...)
	t.monitoring.ReadMarked(result.Written, result.Failed)
	return result
}

// Retain keeps the viewer's bookkeeping alive until a matching Release.
// Every session of a viewer retains it once.
func (t *ReadTracker) Retain(viewerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.holders[viewerID]++
}

// Release drops what is remembered for the viewer once its last holder is gone.
func (t *ReadTracker) Release(viewerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.holders[viewerID] > 1 {
		t.holders[viewerID]--
		return
	}
	delete(t.holders, viewerID)
	delete(t.marked, viewerID)
}

// claim returns the ids that need a write and remembers them as in flight.
func (t *ReadTracker) claim(thread domain.Thread, viewerID string, result *MarkResult) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	marked, ok := t.marked[viewerID]
	if !ok {
		marked = make(map[string]struct{})
		t.marked[viewerID] = marked
	}
	var targets []string
	for _, m := range thread.Messages {
		if m.ReadByViewer(viewerID) {
			delete(marked, m.ID)
			continue
		}
		if _, inFlight := marked[m.ID]; inFlight {
			result.Pending++
			continue
		}
		marked[m.ID] = struct{}{}
		targets = append(targets, m.ID)
	}
	return targets
}

func (t *ReadTracker) release(viewerID, messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.marked[viewerID], messageID)
}
