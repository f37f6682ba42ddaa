package memstore

import (
	"context"
	"krysselista/collection"
	"krysselista/errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func next(t *testing.T, ch <-chan collection.Snapshot) collection.Snapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return s
	case <-time.After(time.Second):
		require.FailNow(t, "no snapshot delivered")
	}
	return collection.Snapshot{}
}

func TestMemoryClient_Subscribe_Delivers_Initial_Then_Updates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 3, 9, 50, 0, 0, time.UTC)
	client := NewMemoryClient(logs.GetLoggerFromLevel(slog.LevelDebug), fixedClock(now))
	defer client.Close()

	// Given an empty collection and a subscriber
	sub, err := client.Subscribe(ctx, collection.Messages, nil)
	req.NoError(err)
	defer sub.Close()
	req.Empty(next(t, sub.Snapshots()).Records)

	// When a message is appended with a server timestamp
	id, err := client.Append(ctx, collection.Messages, collection.Fields{
		"text":   "Hei",
		"readBy": collection.ArrayUnion("staff-1"),
		"sentAt": collection.ServerTimestamp,
	})
	req.NoError(err)

	// Then the subscriber sees it resolved
	s := next(t, sub.Snapshots())
	req.Len(s.Records, 1)
	req.Equal(id, s.Records[0].ID)
	req.Equal(uint64(1), s.Records[0].Seq)
	req.Equal([]string{"staff-1"}, s.Records[0].Fields.Strings("readBy"))
	sentAt, ok := s.Records[0].Fields.Time("sentAt")
	req.True(ok)
	req.True(now.Equal(sentAt))
}

func TestMemoryClient_UpdateFields_Unions_Arrays(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client := NewMemoryClient(logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	id, err := client.Append(ctx, collection.Messages, collection.Fields{"readBy": []string{"staff-1"}})
	req.NoError(err)

	req.NoError(client.UpdateFields(ctx, collection.Messages, id, collection.Fields{"readBy": collection.ArrayUnion("g1")}))
	req.NoError(client.UpdateFields(ctx, collection.Messages, id, collection.Fields{"readBy": collection.ArrayUnion("g1")}))

	records := client.Records(collection.Messages)
	req.Len(records, 1)
	req.Equal([]string{"staff-1", "g1"}, records[0].Fields.Strings("readBy"))
}

func TestMemoryClient_UpdateFields_Unknown_Record(t *testing.T) {
	req := require.New(t)
	client := NewMemoryClient(logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	err := client.UpdateFields(context.Background(), collection.Messages, "missing", collection.Fields{"x": "y"})

	req.ErrorIs(err, errors.ErrPersistence)
	req.ErrorIs(err, errors.ErrRecordNotFound)
}

func TestMemoryClient_Filtered_Subscription(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client := NewMemoryClient(logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	_, err := client.Append(ctx, collection.Subjects, collection.Fields{"name": "Ola", "parentIds": []string{"g1"}})
	req.NoError(err)
	_, err = client.Append(ctx, collection.Subjects, collection.Fields{"name": "Kari", "parentIds": []string{"g2"}})
	req.NoError(err)

	sub, err := client.Subscribe(ctx, collection.Subjects, collection.Where("parentIds", collection.ArrayContains, "g1"))
	req.NoError(err)
	defer sub.Close()

	s := next(t, sub.Snapshots())
	req.Len(s.Records, 1)
	req.Equal("Ola", s.Records[0].Fields.String("name"))
}

func TestMemoryClient_Context_Cancel_Releases_Subscription(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	client := NewMemoryClient(logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	sub, err := client.Subscribe(ctx, collection.Messages, nil)
	req.NoError(err)
	next(t, sub.Snapshots())

	// When the subscriber's context ends
	cancel()

	// Then the channel is closed
	req.Eventually(func() bool {
		select {
		case _, open := <-sub.Snapshots():
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	req.Zero(client.hub.Len())
}

func TestMemoryClient_Closed_Store_Rejects_Calls(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client := NewMemoryClient(logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	client.Close()

	_, err := client.Append(ctx, collection.Messages, collection.Fields{"text": "x"})
	req.ErrorIs(err, errors.ErrStoreClosed)
	_, err = client.Subscribe(ctx, collection.Messages, nil)
	req.ErrorIs(err, errors.ErrPersistence)
}
