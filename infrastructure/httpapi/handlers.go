package httpapi

import (
	"krysselista/domain"
	"krysselista/errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) listThreads(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	threads := session.VisibleThreads(c.Query("q"))
	c.JSON(http.StatusOK, gin.H{
		"threads":      toThreadViews(threads, session.Viewer().ID),
		"unread_total": session.UnreadTotal(),
	})
}

func (s *Server) openThread(c *gin.Context) {
	clientID, ok := s.clientID(c)
	if !ok {
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	thread, ok := session.OpenThread(clientID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errors.ErrNoThreadSelected.Error()})
		return
	}
	c.JSON(http.StatusOK, toThreadView(thread, session.Viewer().ID, true))
}

func (s *Server) selectThread(c *gin.Context) {
	clientID, ok := s.clientID(c)
	if !ok {
		return
	}
	var body threadRefBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	if err := session.SelectThread(clientID, body.ref()); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deselectThread(c *gin.Context) {
	clientID, ok := s.clientID(c)
	if !ok {
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	session.DeselectThread(clientID)
	c.Status(http.StatusNoContent)
}

// logout closes the viewer's session on every device, ending its streams.
func (s *Server) logout(c *gin.Context) {
	s.sessions.Close(viewerFrom(c).ID)
	c.Status(http.StatusNoContent)
}

// sendMessage takes the thread from the request, never from a selection.
func (s *Server) sendMessage(c *gin.Context) {
	var body struct {
		Text   string         `json:"text"`
		Thread *threadRefBody `json:"thread" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	id, err := session.ComposeTo(c.Request.Context(), body.Thread.ref(), body.Text)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) startableSubjects(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"departments": toDepartmentViews(session.StartableSubjects(c.Query("q")))})
}

func (s *Server) transition(c *gin.Context) {
	var body struct {
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	result, err := session.TransitionAttendance(c.Request.Context(), c.Param("id"), domain.Action(body.Action))
	if err != nil {
		s.abort(c, err)
		return
	}
	response := gin.H{
		"subject":  toSubjectView(result.Subject),
		"applied":  result.Applied,
		"repaired": result.Repaired,
	}
	if result.Event.ID != "" {
		response["event"] = toAttendanceEventView(result.Event)
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) history(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
			return
		}
		limit = n
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	events, err := session.AttendanceHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.abort(c, err)
		return
	}
	views := make([]attendanceEventView, 0, len(events))
	for _, e := range events {
		views = append(views, toAttendanceEventView(e))
	}
	c.JSON(http.StatusOK, gin.H{"events": views})
}

func (s *Server) attendanceStats(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	stats := session.AttendanceStats()
	c.JSON(http.StatusOK, gin.H{"checked_in": stats.CheckedIn, "checked_out": stats.CheckedOut})
}

func (s *Server) monitoringStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitoring.GetLatest())
}
