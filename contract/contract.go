//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"krysselista/collection"
	"krysselista/domain/event"
	"reflect"
)

// ICollectionClient is the only persistence capability the core consumes.
// Implementations push a fresh snapshot on every change of a subscribed collection.
type ICollectionClient interface {
	Subscribe(ctx context.Context, name collection.Name, filter collection.Filter) (ISubscription, error)
	Append(ctx context.Context, name collection.Name, fields collection.Fields) (string, error)
	UpdateFields(ctx context.Context, name collection.Name, id string, fields collection.Fields) error
}

// ISubscription delivers coalesced snapshots until Close is called.
// The channel is closed once the subscription is released.
type ISubscription interface {
	Snapshots() <-chan collection.Snapshot
	Close()
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

type IRegistry interface {
	GetSinksForViewer(viewerID string) []EventSink
	Subscribe(viewerID, streamID string, sink EventSink)
	Unsubscribe(viewerID, streamID string)
}
