package httpapi

import (
	"io"
	"krysselista/domain/event"
	"krysselista/sink"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// events streams the viewer's thread list as server-sent events.
// The current list is sent first, then every new derivation and read pass.
// The stream keeps the client's selection live; when the client's last stream
// ends its selection is dropped.
func (s *Server) events(c *gin.Context) {
	clientID, ok := s.clientID(c)
	if !ok {
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	viewer := session.Viewer()
	stream := sink.NewStreamSink(s.log, s.streamBuffer)
	streamID := uuid.NewString()
	release := session.Attach(clientID)
	s.registry.Subscribe(viewer.ID, streamID, stream)
	defer func() {
		s.registry.Unsubscribe(viewer.ID, streamID)
		stream.Close()
		release()
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("threads", gin.H{
		"threads":      toThreadViews(session.VisibleThreads(""), viewer.ID),
		"unread_total": session.UnreadTotal(),
	})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-session.Done():
			return false
		case e, open := <-stream.Events():
			if !open {
				return false
			}
			switch evt := e.(type) {
			case event.ThreadsDerived:
				c.SSEvent("threads", gin.H{
					"threads":      toThreadViews(evt.Threads, viewer.ID),
					"unread_total": evt.UnreadTotal,
				})
			case event.ReadMarked:
				c.SSEvent("read", gin.H{
					"thread":  evt.Thread.String(),
					"written": evt.Written,
					"failed":  evt.Failed,
				})
			}
			return true
		}
	})
}
