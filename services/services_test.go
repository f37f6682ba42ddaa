package services

import (
	"context"
	"krysselista/collection"
	"krysselista/domain"
	"krysselista/infrastructure/memstore"
	"krysselista/observability"
	"krysselista/repositories"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var (
	staff = domain.Viewer{ID: "s1", Name: "Kari", Role: domain.RoleStaff}
	anne  = domain.Viewer{ID: "g1", Name: "Anne", Role: domain.RoleGuardian}
	ola   = domain.Subject{ID: "c1", Name: "Ola", Department: domain.Storbarna, GuardianIDs: []string{"g1"}}
	per   = domain.Subject{ID: "c3", Name: "Per", Department: domain.Smabarna, GuardianIDs: []string{"g3"}}
)

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func testMonitoring() *observability.MonitoringManager {
	return observability.NewMonitoringManager(testLogger(), prometheus.NewRegistry())
}

// seedSubject appends s and returns it with the id assigned by the store.
func seedSubject(t *testing.T, client *memstore.MemoryClient, s domain.Subject) domain.Subject {
	t.Helper()
	id, err := client.Append(context.Background(), collection.Subjects, repositories.EncodeSubject(s))
	require.NoError(t, err)
	s.ID = id
	return s
}

func currentSubject(t *testing.T, client *memstore.MemoryClient, id string) domain.Subject {
	t.Helper()
	for _, r := range client.Records(collection.Subjects) {
		if r.ID == id {
			s, err := repositories.DecodeSubject(r)
			require.NoError(t, err)
			return s
		}
	}
	require.FailNow(t, "subject not found", id)
	return domain.Subject{}
}

func auditTrail(t *testing.T, client *memstore.MemoryClient, subjectID string) []domain.AttendanceEvent {
	t.Helper()
	var events []domain.AttendanceEvent
	for _, r := range client.Records(collection.AttendanceLog) {
		if r.Fields.String(repositories.FieldChildID) != subjectID {
			continue
		}
		e, err := repositories.DecodeAttendanceEvent(r)
		require.NoError(t, err)
		events = append(events, e)
	}
	return events
}

func clockAt(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}
