package runtime

import (
	"context"
	"krysselista/collection"
	"krysselista/contract"
	"krysselista/domain"
	"krysselista/domain/event"
	"krysselista/errors"
	"krysselista/observability"
	"krysselista/projection"
	"krysselista/repositories"
	"krysselista/services"
	"log/slog"
	"sync"
	"time"
)

// Session is one viewer's live view over the roster and the messages.
// It holds one subscription per collection, consumed by Run, and re-derives
// the thread list on every snapshot. Nothing derived survives a newer snapshot.
// Thread selection belongs to a client of the viewer, never to the session as a whole.
type Session struct {
	viewer     domain.Viewer
	client     contract.ICollectionClient
	composer   *services.Composer
	tracker    *services.ReadTracker
	ledger     *services.AttendanceLedger
	registry   contract.IRegistry
	monitoring *observability.MonitoringManager
	log        *slog.Logger
	now        func() time.Time

	mu          sync.RWMutex
	subjects    []domain.Subject
	messages    []domain.Message
	threads     []domain.Thread
	hasSubjects bool
	hasMessages bool
	views       map[string]*view
	lastSeen    time.Time

	kick        chan struct{}
	ready       chan struct{}
	readyOnce   sync.Once
	done        chan struct{}
	closeOnce   sync.Once
	releaseOnce sync.Once
	marks       sync.WaitGroup
}

// view is the viewing context of one client: a device or a browser tab.
type view struct {
	selected domain.ThreadRef
	streams  int  // live event streams attached
	pending  bool // selected since the last read pass
}

type SessionDeps struct {
	Client     contract.ICollectionClient
	Composer   *services.Composer
	Tracker    *services.ReadTracker
	Ledger     *services.AttendanceLedger
	Registry   contract.IRegistry
	Monitoring *observability.MonitoringManager
	Log        *slog.Logger
	Now        func() time.Time
}

func NewSession(viewer domain.Viewer, deps SessionDeps) *Session {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	deps.Tracker.Retain(viewer.ID)
	return &Session{
		viewer:     viewer,
		client:     deps.Client,
		composer:   deps.Composer,
		tracker:    deps.Tracker,
		ledger:     deps.Ledger,
		registry:   deps.Registry,
		monitoring: deps.Monitoring,
		log:        deps.Log.With("viewer", viewer.ID),
		now:        now,
		views:      make(map[string]*view),
		lastSeen:   now(),
		kick:       make(chan struct{}, 1),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run consumes both subscriptions until the session is closed or ctx is canceled.
// A subscription closing underneath returns ErrSubscriptionClosed so the
// supervisor subscribes again.
func (s *Session) Run(ctx context.Context) error {
	defer s.settle()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	var rosterFilter collection.Filter
	if !s.viewer.IsStaff() {
		rosterFilter = repositories.GuardianFilter(s.viewer.ID)
	}
	roster, err := s.client.Subscribe(ctx, collection.Subjects, rosterFilter)
	if err != nil {
		return s.stopped(ctx, err)
	}
	defer roster.Close()
	messages, err := s.client.Subscribe(ctx, collection.Messages, nil)
	if err != nil {
		return s.stopped(ctx, err)
	}
	defer messages.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-roster.Snapshots():
			if !ok {
				return s.stopped(ctx, errors.ErrSubscriptionClosed)
			}
			s.onSubjects(snap)
		case snap, ok := <-messages.Snapshots():
			if !ok {
				return s.stopped(ctx, errors.ErrSubscriptionClosed)
			}
			s.onMessages(snap)
		case <-s.kick:
		}
		s.refresh(ctx)
	}
}

func (s *Session) stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	s.log.Warn("Session subscription lost", "error", err)
	return err
}

func (s *Session) onSubjects(snap collection.Snapshot) {
	s.monitoring.SnapshotReceived(string(snap.Name))
	subjects, err := repositories.DecodeSubjects(snap.Records)
	if err != nil {
		s.log.Warn("Skipping malformed subjects", "version", snap.Version, "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = subjects
	s.hasSubjects = true
}

func (s *Session) onMessages(snap collection.Snapshot) {
	s.monitoring.SnapshotReceived(string(snap.Name))
	messages, err := repositories.DecodeMessages(snap.Records)
	if err != nil {
		s.log.Warn("Skipping malformed messages", "version", snap.Version, "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = messages
	s.hasMessages = true
}

// refresh derives the thread list once both collections have arrived, publishes
// it and re-applies the read intent of the selected threads. A client's
// selection is read on every snapshot while it has a live stream, and once
// right after it was made otherwise.
func (s *Session) refresh(ctx context.Context) {
	s.mu.Lock()
	if !s.hasSubjects || !s.hasMessages {
		s.mu.Unlock()
		return
	}
	start := time.Now()
	s.threads = projection.DeriveThreads(s.viewer, s.subjects, s.messages)
	s.monitoring.ObserveDerivation(time.Since(start))
	threads := s.threads
	reading := s.readingLocked()
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
	s.publish(ctx, event.ThreadsDerived{
		Viewer:      s.viewer.ID,
		Threads:     threads,
		UnreadTotal: projection.UnreadTotal(threads),
		At:          s.now(),
	})
	for _, thread := range reading {
		s.markRead(ctx, thread)
	}
}

// readingLocked returns the selected threads with unread messages, once each.
func (s *Session) readingLocked() []domain.Thread {
	var reading []domain.Thread
	seen := make(map[domain.ThreadKey]struct{})
	for _, v := range s.views {
		if v.selected == nil || (v.streams == 0 && !v.pending) {
			continue
		}
		v.pending = false
		open, ok := projection.ThreadMessages(s.viewer, v.selected, s.subjects, s.messages)
		if !ok || open.UnreadCount == 0 {
			continue
		}
		if _, dup := seen[open.Key()]; dup {
			continue
		}
		seen[open.Key()] = struct{}{}
		reading = append(reading, open)
	}
	return reading
}

// markRead runs one read-marking pass in the background.
func (s *Session) markRead(ctx context.Context, thread domain.Thread) {
	s.marks.Add(1)
	go func() {
		defer s.marks.Done()
		result := s.tracker.MarkThreadRead(ctx, thread, s.viewer.ID)
		if result.Written == 0 && result.Failed == 0 {
			return
		}
		s.publish(ctx, event.ReadMarked{
			Viewer:  s.viewer.ID,
			Thread:  thread.Key(),
			Written: result.Written,
			Skipped: result.Pending,
			Failed:  result.Failed,
			At:      s.now(),
		})
	}()
}

func (s *Session) publish(ctx context.Context, e event.DomainEvent) {
	for _, sink := range s.registry.GetSinksForViewer(s.viewer.ID) {
		if err := sink.Consume(ctx, e); err != nil {
			s.log.Warn("Sink rejected event", "error", err)
		}
	}
}

func (s *Session) Viewer() domain.Viewer { return s.viewer }

// Ready is closed once the first roster and message snapshots were derived.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Done is closed by Close.
func (s *Session) Done() <-chan struct{} { return s.done }

// VisibleThreads returns the latest derived threads matching query.
func (s *Session) VisibleThreads(query string) []domain.Thread {
	s.touch()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return projection.FilterThreads(s.threads, query)
}

func (s *Session) UnreadTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return projection.UnreadTotal(s.threads)
}

// SelectThread makes ref the open thread of clientID. Its messages are marked
// read now, and again on every later snapshot while the client stays attached.
func (s *Session) SelectThread(clientID string, ref domain.ThreadRef) error {
	s.touch()
	if ref == nil {
		return errors.ErrNoThreadSelected
	}
	s.mu.Lock()
	_, ok := projection.ThreadMessages(s.viewer, ref, s.subjects, s.messages)
	if ok {
		v := s.viewLocked(clientID)
		v.selected, v.pending = ref, true
	}
	s.mu.Unlock()
	if !ok {
		return s.unreachable(ref)
	}
	s.nudge()
	return nil
}

func (s *Session) unreachable(ref domain.ThreadRef) error {
	switch r := ref.(type) {
	case domain.BroadcastRef:
		if !r.Dept.Valid() {
			return errors.ErrUnknownDepartment
		}
		return errors.ErrNotGuardian
	default:
		if s.viewer.IsStaff() {
			return errors.ErrUnknownSubject
		}
		return errors.ErrNotGuardian
	}
}

// DeselectThread ends the read intent of clientID.
func (s *Session) DeselectThread(clientID string) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[clientID]
	if !ok {
		return
	}
	v.selected, v.pending = nil, false
	if v.streams == 0 {
		delete(s.views, clientID)
	}
}

// OpenThread returns the thread selected by clientID, built from the latest snapshot.
func (s *Session) OpenThread(clientID string) (domain.Thread, bool) {
	s.touch()
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[clientID]
	if !ok || v.selected == nil {
		return domain.Thread{}, false
	}
	return projection.ThreadMessages(s.viewer, v.selected, s.subjects, s.messages)
}

// ComposeMessage sends body to the thread selected by clientID.
func (s *Session) ComposeMessage(ctx context.Context, clientID, body string) (string, error) {
	var ref domain.ThreadRef
	s.mu.RLock()
	if v, ok := s.views[clientID]; ok {
		ref = v.selected
	}
	s.mu.RUnlock()
	return s.ComposeTo(ctx, ref, body)
}

// Attach records a live event stream of clientID until release is called.
// Releasing the client's last stream drops its selection.
func (s *Session) Attach(clientID string) (release func()) {
	s.touch()
	s.mu.Lock()
	s.viewLocked(clientID).streams++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			v, ok := s.views[clientID]
			if !ok {
				return
			}
			v.streams--
			if v.streams <= 0 {
				delete(s.views, clientID)
			}
		})
	}
}

func (s *Session) viewLocked(clientID string) *view {
	v, ok := s.views[clientID]
	if !ok {
		v = &view{}
		s.views[clientID] = v
	}
	return v
}

func (s *Session) ComposeTo(ctx context.Context, ref domain.ThreadRef, body string) (string, error) {
	s.touch()
	s.mu.RLock()
	roster := domain.NewRoster(s.subjects)
	s.mu.RUnlock()
	return s.composer.Send(ctx, domain.SendCommand{Viewer: s.viewer, Thread: ref, Body: body}, roster)
}

func (s *Session) TransitionAttendance(ctx context.Context, subjectID string, action domain.Action) (domain.TransitionResult, error) {
	s.touch()
	return s.ledger.Transition(ctx, domain.TransitionCommand{Viewer: s.viewer, SubjectID: subjectID, Action: action})
}

func (s *Session) AttendanceHistory(ctx context.Context, subjectID string, limit int) ([]domain.AttendanceEvent, error) {
	s.touch()
	return s.ledger.History(ctx, s.viewer, subjectID, limit)
}

func (s *Session) AttendanceStats() domain.AttendanceStats {
	s.touch()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return projection.AttendanceStats(s.viewer, s.subjects)
}

func (s *Session) StartableSubjects(query string) []projection.DepartmentGroup {
	s.touch()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return projection.StartableSubjects(s.viewer, s.subjects, query)
}

// IdleSince reports the last time the viewer used the session.
func (s *Session) IdleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Close stops Run, which releases both subscriptions.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// settle waits for the read marking started by Run and releases the read
// bookkeeping of a closed session.
func (s *Session) settle() {
	s.marks.Wait()
	select {
	case <-s.done:
		s.releaseOnce.Do(func() { s.tracker.Release(s.viewer.ID) })
	default:
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
}

func (s *Session) nudge() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}
