package e2e

import (
	"krysselista/domain"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

// viewers created by cmd/seed
var (
	kari = domain.Viewer{ID: "staff-kari", Name: "Kari Nordmann", Role: domain.RoleStaff}
	anne = domain.Viewer{ID: "guardian-anne", Name: "Anne Hansen", Role: domain.RoleGuardian}
)

type testDaycareSuite struct {
	BaseHTTPSuite
}

func TestDaycareSuite(t *testing.T) {
	suite.Run(t, &testDaycareSuite{})
}

func (s *testDaycareSuite) TestBroadcastReachesGuardian() {
	text := "Tur til skogen i morgen " + uuid.NewString()[:8]

	s.Run("Step 1: Staff post a broadcast to Storbarna", func() {
		s.Step("Broadcast as staff")
		var created map[string]any
		status := s.Call(kari, http.MethodPost, "/v1/messages", map[string]any{
			"text":   text,
			"thread": map[string]string{"type": "broadcast", "department": string(domain.Storbarna)},
		}, &created)
		s.Require().Equal(http.StatusCreated, status)
		s.Require().NotEmpty(created["id"])
	})

	s.Run("Step 2: A Storbarna guardian sees it unread", func() {
		s.Step("List threads as guardian")
		s.Require().Eventually(func() bool {
			var body struct {
				Threads []struct {
					Type        string `json:"type"`
					Department  string `json:"department"`
					UnreadCount int    `json:"unread_count"`
					LastMessage *struct {
						Text string `json:"text"`
					} `json:"last_message"`
				} `json:"threads"`
			}
			if s.Call(anne, http.MethodGet, "/v1/threads", nil, &body) != http.StatusOK {
				return false
			}
			for _, t := range body.Threads {
				if t.Type == "broadcast" && t.LastMessage != nil && t.LastMessage.Text == text {
					return t.UnreadCount > 0
				}
			}
			return false
		}, 5*time.Second, 200*time.Millisecond)
	})

	s.Run("Step 3: The guardian cannot answer it", func() {
		s.Step("Reply to broadcast as guardian")
		status := s.Call(anne, http.MethodPost, "/v1/messages", map[string]any{
			"text":   "Takk!",
			"thread": map[string]string{"type": "broadcast", "department": string(domain.Storbarna)},
		}, nil)
		s.Require().Equal(http.StatusForbidden, status)
	})
}

func (s *testDaycareSuite) TestCheckInIsIdempotent() {
	var subjectID string

	s.Run("Step 1: Staff pick a subject", func() {
		s.Step("Startable subjects")
		var body struct {
			Departments []struct {
				Subjects []struct {
					ID string `json:"id"`
				} `json:"subjects"`
			} `json:"departments"`
		}
		s.Require().Equal(http.StatusOK, s.Call(kari, http.MethodGet, "/v1/subjects/startable", nil, &body))
		s.Require().NotEmpty(body.Departments, "run cmd/seed first")
		subjectID = body.Departments[0].Subjects[0].ID
	})

	s.Run("Step 2: Check-in twice writes at most one record", func() {
		s.Step("Check in")
		path := "/v1/subjects/" + subjectID + "/attendance"
		var first, second map[string]any
		s.Require().Equal(http.StatusOK, s.Call(kari, http.MethodPost, path, map[string]string{"action": "check-in"}, &first))
		s.Require().Equal(http.StatusOK, s.Call(kari, http.MethodPost, path, map[string]string{"action": "check-in"}, &second))
		s.Require().Equal(false, second["applied"])

		var history struct {
			Events []map[string]any `json:"events"`
		}
		s.Require().Equal(http.StatusOK, s.Call(kari, http.MethodGet, path+"?limit=1", nil, &history))
		s.Require().Len(history.Events, 1)
		s.Require().Equal("check-in", history.Events[0]["action"])

		s.Step("Check out again")
		s.Require().Equal(http.StatusOK, s.Call(kari, http.MethodPost, path, map[string]string{"action": "check-out"}, nil))
	})
}
