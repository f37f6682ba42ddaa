package storage

import (
	"context"
	"krysselista/collection"
	"krysselista/errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func openClient(t *testing.T, now func() time.Time) (*BadgerClient, *badger.DB) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	client := NewBadgerClient(db, logs.GetLoggerFromLevel(slog.LevelDebug), now)
	t.Cleanup(func() {
		client.Close()
		_ = db.Close()
	})
	return client, db
}

func TestBadgerClient_Append_And_Snapshot_Ordered_By_Arrival(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client, _ := openClient(t, nil)

	// Given three messages appended in order
	var ids []string
	for _, text := range []string{"first", "second", "third"} {
		id, err := client.Append(ctx, collection.Messages, collection.Fields{"text": text})
		req.NoError(err)
		ids = append(ids, id)
	}

	// When reading the collection
	snapshot, err := client.Snapshot(collection.Messages)
	req.NoError(err)

	// Then records come back in arrival order with increasing seq
	req.Len(snapshot.Records, 3)
	for i, record := range snapshot.Records {
		req.Equal(ids[i], record.ID)
		req.Equal(uint64(i+1), record.Seq)
	}
	req.Equal(uint64(3), snapshot.Version)
}

func TestBadgerClient_UpdateFields_Resolves_Operations(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 3, 8, 0, 0, 0, time.UTC)
	client, _ := openClient(t, func() time.Time { return now })

	id, err := client.Append(ctx, collection.Subjects, collection.Fields{"name": "Ola", "checkedIn": false})
	req.NoError(err)

	err = client.UpdateFields(ctx, collection.Subjects, id, collection.Fields{
		"checkedIn":   true,
		"lastCheckIn": collection.ServerTimestamp,
	})
	req.NoError(err)

	snapshot, err := client.Snapshot(collection.Subjects)
	req.NoError(err)
	req.Len(snapshot.Records, 1)
	fields := snapshot.Records[0].Fields
	req.True(fields.Bool("checkedIn"))
	req.Equal("Ola", fields.String("name"))
	at, ok := fields.Time("lastCheckIn")
	req.True(ok)
	req.True(now.Equal(at))
}

func TestBadgerClient_UpdateFields_Unknown_Record(t *testing.T) {
	req := require.New(t)
	client, _ := openClient(t, nil)

	err := client.UpdateFields(context.Background(), collection.Messages, "nope", collection.Fields{"a": "b"})

	req.ErrorIs(err, errors.ErrPersistence)
	req.ErrorIs(err, errors.ErrRecordNotFound)
}

func TestBadgerClient_Concurrent_ArrayUnion_Keeps_Every_Reader(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client, _ := openClient(t, nil)

	id, err := client.Append(ctx, collection.Messages, collection.Fields{"readBy": []string{"staff-1"}})
	req.NoError(err)

	// When many viewers mark the same message concurrently
	readers := []string{"g1", "g2", "g3", "g4", "g5", "g6"}
	var wg sync.WaitGroup
	errs := make(chan error, len(readers))
	for _, reader := range readers {
		wg.Add(1)
		go func(reader string) {
			defer wg.Done()
			errs <- client.UpdateFields(ctx, collection.Messages, id, collection.Fields{
				"readBy": collection.ArrayUnion(reader),
			})
		}(reader)
	}
	wg.Wait()
	close(errs)

	// Then every successful write is kept
	var failed int
	for err := range errs {
		if err != nil {
			req.ErrorIs(err, badger.ErrConflict)
			failed++
		}
	}
	snapshot, err := client.Snapshot(collection.Messages)
	req.NoError(err)
	req.Len(snapshot.Records[0].Fields.Strings("readBy"), 1+len(readers)-failed)
}

func TestBadgerClient_Subscription_Sees_Changes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client, _ := openClient(t, nil)

	_, err := client.Append(ctx, collection.Subjects, collection.Fields{"name": "Ola", "parentIds": []string{"g1"}})
	req.NoError(err)

	sub, err := client.Subscribe(ctx, collection.Subjects, collection.Where("parentIds", collection.ArrayContains, "g1"))
	req.NoError(err)
	defer sub.Close()

	initial := <-sub.Snapshots()
	req.Len(initial.Records, 1)

	// When another child of the same guardian is added
	_, err = client.Append(ctx, collection.Subjects, collection.Fields{"name": "Kari", "parentIds": []string{"g1", "g2"}})
	req.NoError(err)
	// And a child of someone else
	_, err = client.Append(ctx, collection.Subjects, collection.Fields{"name": "Per", "parentIds": []string{"g3"}})
	req.NoError(err)

	// Then the subscriber ends with exactly the guardian's children
	req.Eventually(func() bool {
		select {
		case s := <-sub.Snapshots():
			initial = s
		default:
		}
		return initial.Version == 3
	}, time.Second, 10*time.Millisecond)
	req.Len(initial.Records, 2)
}

func TestBadgerClient_Closed(t *testing.T) {
	req := require.New(t)
	client, _ := openClient(t, nil)
	client.Close()

	_, err := client.Append(context.Background(), collection.Messages, collection.Fields{"text": "x"})

	req.ErrorIs(err, errors.ErrStoreClosed)
}
