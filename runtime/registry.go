package runtime

import (
	"krysselista/contract"
	"sync"
)

// Registry maps each viewer to the sinks of their open streams.
// A viewer may follow from several devices at once, one stream each.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]map[string]contract.EventSink // viewer -> stream -> sink
}

func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]map[string]contract.EventSink)}
}

// GetSinksForViewer returns nil when the viewer has no open stream.
func (r *Registry) GetSinksForViewer(viewerID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	streams, ok := r.streams[viewerID]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(streams))
	for _, sink := range streams {
		sinks = append(sinks, sink)
	}
	return sinks
}

func (r *Registry) Subscribe(viewerID, streamID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.streams[viewerID]; !ok {
		r.streams[viewerID] = make(map[string]contract.EventSink)
	}
	r.streams[viewerID][streamID] = sink
}

// Unsubscribe removes one stream and drops the viewer entry once empty.
func (r *Registry) Unsubscribe(viewerID, streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if streams, ok := r.streams[viewerID]; ok {
		delete(streams, streamID)
		if len(streams) == 0 {
			delete(r.streams, viewerID)
		}
	}
}
