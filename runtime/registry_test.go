package runtime

import (
	"context"
	"krysselista/contract"
	"krysselista/domain/event"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type Sink struct {
	name string
}

func (s Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	return nil
}

func TestRegistry_Subscribe_One_Viewer_One_Stream(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	viewerID := uuid.NewString()
	sink := Sink{name: "phone"}

	// Given no viewer is connected
	req.Empty(registry.streams)

	// When a viewer opens a stream
	registry.Subscribe(viewerID, "s1", sink)

	// Then
	req.Len(registry.streams, 1)
	req.Len(registry.GetSinksForViewer(viewerID), 1)
	req.Contains(registry.GetSinksForViewer(viewerID), sink)
}

func TestRegistry_Subscribe_One_Viewer_Multiple_Streams(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	viewerID := uuid.NewString()
	phone := Sink{name: "phone"}
	laptop := Sink{name: "laptop"}

	registry.Subscribe(viewerID, "s1", phone)
	registry.Subscribe(viewerID, "s2", laptop)

	req.Len(registry.GetSinksForViewer(viewerID), 2)
	req.Nil(registry.GetSinksForViewer(uuid.NewString()))
}

func TestRegistry_Unsubscribe(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	viewerID := uuid.NewString()
	phone := Sink{name: "phone"}
	laptop := Sink{name: "laptop"}
	registry.Subscribe(viewerID, "s1", phone)
	registry.Subscribe(viewerID, "s2", laptop)

	// When one stream closes
	registry.Unsubscribe(viewerID, "s1")

	// Then only the other one is left
	req.Equal([]Sink{laptop}, toSinks(registry.GetSinksForViewer(viewerID)))

	// When the last one closes, the viewer is forgotten
	registry.Unsubscribe(viewerID, "s2")
	req.Empty(registry.streams)
	req.Nil(registry.GetSinksForViewer(viewerID))
}

func toSinks(sinks []contract.EventSink) []Sink {
	result := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		result = append(result, s.(Sink))
	}
	return result
}
