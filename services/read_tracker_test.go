package services

import (
	"context"
	"krysselista/collection"
	"krysselista/domain"
	"krysselista/errors"
	"krysselista/infrastructure/memstore"
	"krysselista/mocks"
	"krysselista/projection"
	"krysselista/repositories"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func unreadThread(ids ...string) domain.Thread {
	thread := domain.Thread{Ref: domain.DirectRef{SubjectID: ola.ID, Dept: ola.Department}}
	for i, id := range ids {
		thread.Messages = append(thread.Messages, domain.Message{
			ID:     id,
			Seq:    uint64(i + 1),
			Kind:   domain.KindStaffToGuardian,
			SentAt: time.Date(2024, 5, 3, 9, i, 0, 0, time.UTC),
			ReadBy: []string{staff.ID},
		})
	}
	return thread
}

func TestReadTracker_Second_Pass_Issues_No_Writes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	client := mocks.NewMockICollectionClient(ctrl)
	tracker := NewReadTracker(client, testLogger(), testMonitoring(), 2)
	thread := unreadThread("m1", "m2", "m3")

	// Given every write succeeds
	client.EXPECT().
		UpdateFields(gomock.Any(), collection.Messages, gomock.Any(), repositories.MarkReadUpdate(anne.ID)).
		Return(nil).
		Times(3)

	// When the same thread is marked twice before any snapshot arrives
	first := tracker.MarkThreadRead(context.Background(), thread, anne.ID)
	second := tracker.MarkThreadRead(context.Background(), thread, anne.ID)

	// Then only the first pass writes
	req.Equal(3, first.Written)
	req.NoError(first.Err)
	req.Zero(second.Written)
	req.Equal(3, second.Pending)
}

func TestReadTracker_Release_Keeps_Claims_Of_Remaining_Holder(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	client := mocks.NewMockICollectionClient(ctrl)
	tracker := NewReadTracker(client, testLogger(), testMonitoring(), 2)
	thread := unreadThread("m1", "m2", "m3")

	client.EXPECT().
		UpdateFields(gomock.Any(), collection.Messages, gomock.Any(), repositories.MarkReadUpdate(anne.ID)).
		Return(nil).
		Times(3)

	// Given a replaced session and its successor both hold Anne's bookkeeping
	tracker.Retain(anne.ID)
	tracker.Retain(anne.ID)
	first := tracker.MarkThreadRead(context.Background(), thread, anne.ID)
	req.Equal(3, first.Written)

	// When the old one releases before any snapshot shows the receipts
	tracker.Release(anne.ID)
	second := tracker.MarkThreadRead(context.Background(), thread, anne.ID)

	// Then nothing is written again
	req.Zero(second.Written)
	req.Equal(3, second.Pending)

	// When the last holder releases, the claims are gone
	tracker.Release(anne.ID)
	tracker.mu.Lock()
	_, remembered := tracker.marked[anne.ID]
	tracker.mu.Unlock()
	req.False(remembered)
}

func TestReadTracker_Isolates_Failures_And_Retries_Them(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	client := mocks.NewMockICollectionClient(ctrl)
	tracker := NewReadTracker(client, testLogger(), testMonitoring(), 4)
	thread := unreadThread("m1", "m2", "m3")
	boom := errors.NewPersistenceError("update", "messages", "m2", context.DeadlineExceeded)

	// Given the write of m2 fails once
	client.EXPECT().UpdateFields(gomock.Any(), collection.Messages, "m1", gomock.Any()).Return(nil).Times(1)
	client.EXPECT().UpdateFields(gomock.Any(), collection.Messages, "m3", gomock.Any()).Return(nil).Times(1)
	client.EXPECT().UpdateFields(gomock.Any(), collection.Messages, "m2", gomock.Any()).Return(boom).Times(1)

	result := tracker.MarkThreadRead(context.Background(), thread, anne.ID)

	// Then the other messages are still marked and the failure is reported, not raised
	req.Equal(2, result.Written)
	req.Equal(1, result.Failed)
	req.ErrorIs(result.Err, errors.ErrPersistence)

	// When the next pass runs
	client.EXPECT().UpdateFields(gomock.Any(), collection.Messages, "m2", gomock.Any()).Return(nil).Times(1)
	retry := tracker.MarkThreadRead(context.Background(), thread, anne.ID)

	// Then only the failed message is written again
	req.Equal(1, retry.Written)
	req.Equal(2, retry.Pending)
	req.NoError(retry.Err)
}

func TestReadTracker_Bounded_Concurrency(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	client := mocks.NewMockICollectionClient(ctrl)
	tracker := NewReadTracker(client, testLogger(), testMonitoring(), 2)
	thread := unreadThread("m1", "m2", "m3", "m4", "m5", "m6")

	var running, peak atomic.Int32
	client.EXPECT().
		UpdateFields(gomock.Any(), collection.Messages, gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, collection.Name, string, collection.Fields) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		}).
		Times(6)

	result := tracker.MarkThreadRead(context.Background(), thread, anne.ID)

	req.Equal(6, result.Written)
	req.LessOrEqual(peak.Load(), int32(2))
}

func TestReadTracker_Unread_Count_Never_Increases(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client := memstore.NewMemoryClient(testLogger(), nil)
	tracker := NewReadTracker(client, testLogger(), testMonitoring(), 4)
	subject := seedSubject(t, client, ola)
	composer := NewComposer(client, testLogger(), testMonitoring(), 0)
	roster := domain.NewRoster([]domain.Subject{subject})
	ref := domain.DirectRef{SubjectID: subject.ID}

	// Given three staff messages Anne has not read
	for _, body := range []string{"God morgen", "Ola har sovet", "Hentes kl 16?"} {
		_, err := composer.Send(ctx, domain.SendCommand{Viewer: staff, Thread: ref, Body: body}, roster)
		req.NoError(err)
	}
	derive := func() domain.Thread {
		messages, err := repositories.DecodeMessages(client.Records(collection.Messages))
		req.NoError(err)
		thread, ok := projection.ThreadMessages(anne, ref, []domain.Subject{subject}, messages)
		req.True(ok)
		return thread
	}
	before := derive()
	req.Equal(3, before.UnreadCount)

	// When Anne opens the thread, twice
	tracker.MarkThreadRead(ctx, before, anne.ID)
	middle := derive()
	tracker.MarkThreadRead(ctx, middle, anne.ID)
	after := derive()

	// Then the unread count only goes down
	req.LessOrEqual(middle.UnreadCount, before.UnreadCount)
	req.LessOrEqual(after.UnreadCount, middle.UnreadCount)
	req.Zero(after.UnreadCount)
	for _, m := range after.Messages {
		req.Equal([]string{staff.ID, anne.ID}, m.ReadBy)
	}
}
