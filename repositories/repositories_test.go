package repositories

import (
	"context"
	"krysselista/collection"
	"krysselista/domain"
	"krysselista/errors"
	"krysselista/infrastructure/memstore"
	"krysselista/mocks"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEncodeNewMessage_Direct_From_Guardian(t *testing.T) {
	req := require.New(t)
	viewer := domain.Viewer{ID: "g1", Name: "Anne", Role: domain.RoleGuardian}

	fields := EncodeNewMessage(viewer, domain.DirectRef{SubjectID: "c1", Dept: domain.Storbarna}, "Vi kommer sent")

	req.Equal(string(domain.KindGuardianToStaff), fields[FieldType])
	req.Equal("c1", fields[FieldChildID])
	req.Equal(string(domain.Storbarna), fields[FieldDepartment])
	req.Equal("Anne", fields[FieldFromName])
	req.Equal(collection.ServerTimestamp, fields[FieldSentAt])
	req.Equal(collection.ArrayUnion("g1"), fields[FieldReadBy])
}

func TestEncodeNewMessage_Broadcast_Has_No_Subject(t *testing.T) {
	req := require.New(t)
	viewer := domain.Viewer{ID: "s1", Email: "staff@bhg.no", Role: domain.RoleStaff}

	fields := EncodeNewMessage(viewer, domain.BroadcastRef{Dept: domain.Mellombarna}, "Tur i morgen")

	req.Equal(string(domain.KindStaffBroadcast), fields[FieldType])
	req.NotContains(fields, FieldChildID)
	req.Equal("staff@bhg.no", fields[FieldFromName])
}

func TestDecodeMessage(t *testing.T) {
	req := require.New(t)
	sentAt := time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)

	m, err := DecodeMessage(collection.Record{ID: "m1", Seq: 7, Fields: collection.Fields{
		FieldType:       string(domain.KindStaffToGuardian),
		FieldChildID:    "c1",
		FieldDepartment: string(domain.Smabarna),
		FieldFromID:     "s1",
		FieldFromRole:   "staff",
		FieldText:       "Sov godt i dag",
		FieldSentAt:     sentAt.Format(time.RFC3339Nano),
		FieldReadBy:     []any{"s1"},
	}})

	req.NoError(err)
	req.Equal(domain.DirectRef{SubjectID: "c1", Dept: domain.Smabarna}, m.Ref())
	req.Equal(uint64(7), m.Seq)
	req.True(sentAt.Equal(m.SentAt))
	req.Equal([]string{"s1"}, m.ReadBy)
}

func TestDecodeMessages_Skips_Malformed(t *testing.T) {
	req := require.New(t)
	now := time.Now()

	messages, err := DecodeMessages([]collection.Record{
		{ID: "ok", Fields: collection.Fields{FieldType: "staff-broadcast", FieldSentAt: now}},
		{ID: "no-type", Fields: collection.Fields{FieldSentAt: now}},
		{ID: "no-child", Fields: collection.Fields{FieldType: "parent-to-staff", FieldSentAt: now}},
		{ID: "no-time", Fields: collection.Fields{FieldType: "staff-broadcast"}},
	})

	req.Len(messages, 1)
	req.Equal("ok", messages[0].ID)
	req.ErrorIs(err, errors.ErrInvalidRecord)
}

func TestDecodeSubject(t *testing.T) {
	req := require.New(t)
	in := time.Date(2024, 5, 3, 8, 0, 0, 0, time.UTC)

	s, err := DecodeSubject(collection.Record{ID: "c1", Fields: EncodeSubject(domain.Subject{
		Name:          "Ola",
		Department:    domain.Storbarna,
		GuardianIDs:   []string{"g1"},
		CheckedIn:     true,
		LastCheckIn:   &in,
		LastCheckInBy: domain.Actor{ID: "s1", Label: "Kari"},
	})})

	req.NoError(err)
	req.Equal("c1", s.ID)
	req.True(s.HasGuardian("g1"))
	req.True(s.CheckedIn)
	req.NotNil(s.LastCheckIn)
	req.Equal(domain.Actor{ID: "s1", Label: "Kari"}, s.LastCheckInBy)
	req.Nil(s.LastCheckOut)
	req.Empty(s.LastCheckOutBy)

	_, err = DecodeSubject(collection.Record{ID: "c2", Fields: collection.Fields{}})
	req.ErrorIs(err, errors.ErrInvalidRecord)
}

func TestStatusUpdate(t *testing.T) {
	req := require.New(t)
	at := time.Date(2024, 5, 3, 16, 0, 0, 0, time.UTC)

	kari := domain.Actor{ID: "s1", Label: "Kari"}
	req.Equal(collection.Fields{
		FieldCheckedIn:        true,
		FieldLastCheckIn:      at,
		FieldLastCheckInBy:    "s1",
		FieldLastCheckInLabel: "Kari",
	}, StatusUpdate(domain.CheckIn, at, kari))
	req.Equal(collection.Fields{
		FieldCheckedIn:         false,
		FieldLastCheckOut:      at,
		FieldLastCheckOutBy:    "s1",
		FieldLastCheckOutLabel: "Kari",
	}, StatusUpdate(domain.CheckOut, at, kari))
}

func TestTransitionLogFilter_Finds_Exact_Record(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client := memstore.NewMemoryClient(logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	at := time.Date(2024, 5, 3, 8, 0, 0, 0, time.UTC)

	for _, e := range []domain.AttendanceEvent{
		{SubjectID: "c1", Action: domain.CheckIn, PerformedBy: "s1", Timestamp: at},
		{SubjectID: "c1", Action: domain.CheckIn, PerformedBy: "s1", Timestamp: at.Add(-24 * time.Hour)},
		{SubjectID: "c2", Action: domain.CheckIn, PerformedBy: "s1", Timestamp: at},
	} {
		_, err := client.Append(ctx, collection.AttendanceLog, EncodeAttendanceEvent(e))
		req.NoError(err)
	}

	records, err := Fetch(ctx, client, collection.AttendanceLog, TransitionLogFilter("c1", domain.CheckIn, at))

	req.NoError(err)
	req.Len(records, 1)
	event, err := DecodeAttendanceEvent(records[0])
	req.NoError(err)
	req.True(at.Equal(event.Timestamp))
}

func TestFetch_Subscribe_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	client := mocks.NewMockICollectionClient(ctrl)
	boom := errors.NewPersistenceError("subscribe", "logs", "", errors.ErrStoreClosed)

	client.EXPECT().Subscribe(gomock.Any(), collection.AttendanceLog, gomock.Any()).Return(nil, boom)

	_, err := Fetch(context.Background(), client, collection.AttendanceLog, nil)
	req.ErrorIs(err, errors.ErrPersistence)
}
