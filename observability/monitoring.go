package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/process"
)

// Transition outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeRepaired = "repaired"
	OutcomeFailed   = "failed"
)

// MonitoringStats is the snapshot served to staff on the monitoring endpoint.
type MonitoringStats struct {
	ActiveSessions   int64   `json:"active_sessions"`
	MessagesSent     uint64  `json:"messages_sent"`
	SendFailures     uint64  `json:"send_failures"`
	ReadMarksWritten uint64  `json:"read_marks_written"`
	ReadMarksFailed  uint64  `json:"read_marks_failed"`
	Transitions      uint64  `json:"transitions"`
	Snapshots        uint64  `json:"snapshots"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	AllocMemMb       uint64  `json:"alloc_mem_mb"`
	NumGC            uint32  `json:"num_gc"`
	Goroutines       int     `json:"goroutines"`
	RSSBytes         uint64  `json:"rss_bytes"`
	CPUPercent       float64 `json:"cpu_percent"`
	ProcessStatus    string  `json:"process_status,omitempty"`
}

// MonitoringManager counts what the core does, for prometheus and for the JSON stats.
type MonitoringManager struct {
	log       *slog.Logger
	startedAt time.Time
	self      *process.Process
	mu        sync.RWMutex
	latest    MonitoringStats

	activeSessions   atomic.Int64
	messagesSent     atomic.Uint64
	sendFailures     atomic.Uint64
	readMarksWritten atomic.Uint64
	readMarksFailed  atomic.Uint64
	transitions      atomic.Uint64
	snapshots        atomic.Uint64

	sentTotal        *prometheus.CounterVec
	sendFailureTotal prometheus.Counter
	readMarksTotal   *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	snapshotsTotal   *prometheus.CounterVec
	deriveDuration   prometheus.Histogram
	sessionsGauge    prometheus.Gauge
}

// NewMonitoringManager registers its collectors on reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewMonitoringManager(log *slog.Logger, reg prometheus.Registerer) *MonitoringManager {
	factory := promauto.With(reg)
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process stats unavailable", "error", err)
		self = nil
	}
	return &MonitoringManager{
		log:       log,
		startedAt: time.Now(),
		self:      self,
		sentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krysselista_messages_sent_total",
			Help: "Messages appended, by thread type",
		}, []string{"thread_type"}),
		sendFailureTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "krysselista_send_failures_total",
			Help: "Messages that could not be appended",
		}),
		readMarksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krysselista_read_marks_total",
			Help: "Read receipts written, by outcome",
		}, []string{"outcome"}),
		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krysselista_attendance_transitions_total",
			Help: "Attendance transitions, by action and outcome",
		}, []string{"action", "outcome"}),
		snapshotsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krysselista_snapshots_received_total",
			Help: "Collection snapshots consumed by sessions",
		}, []string{"collection"}),
		deriveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "krysselista_thread_derivation_duration_seconds",
			Help:    "Time spent deriving a viewer's threads from a snapshot",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		sessionsGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "krysselista_active_sessions",
			Help: "Viewing sessions currently open",
		}),
	}
}

func (mm *MonitoringManager) MessageSent(threadType string) {
	mm.messagesSent.Add(1)
	mm.sentTotal.WithLabelValues(threadType).Inc()
}

func (mm *MonitoringManager) SendFailed() {
	mm.sendFailures.Add(1)
	mm.sendFailureTotal.Inc()
}

func (mm *MonitoringManager) ReadMarked(written, failed int) {
	mm.readMarksWritten.Add(uint64(written))
	mm.readMarksFailed.Add(uint64(failed))
	mm.readMarksTotal.WithLabelValues("written").Add(float64(written))
	mm.readMarksTotal.WithLabelValues(OutcomeFailed).Add(float64(failed))
}

func (mm *MonitoringManager) Transition(action, outcome string) {
	mm.transitions.Add(1)
	mm.transitionsTotal.WithLabelValues(action, outcome).Inc()
}

func (mm *MonitoringManager) SnapshotReceived(collection string) {
	mm.snapshots.Add(1)
	mm.snapshotsTotal.WithLabelValues(collection).Inc()
}

func (mm *MonitoringManager) ObserveDerivation(d time.Duration) {
	mm.deriveDuration.Observe(d.Seconds())
}

func (mm *MonitoringManager) SessionOpened() {
	mm.activeSessions.Add(1)
	mm.sessionsGauge.Inc()
}

func (mm *MonitoringManager) SessionClosed() {
	mm.activeSessions.Add(-1)
	mm.sessionsGauge.Dec()
}

// Run refreshes the JSON stats every second until ctx is done.
func (mm *MonitoringManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.log.Info("Monitoring manager stopped")
			return nil
		case <-ticker.C:
			mm.updateStats()
		}
	}
}

func (mm *MonitoringManager) updateStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	rss, cpu, status := mm.selfStats()

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latest = MonitoringStats{
		ActiveSessions:   mm.activeSessions.Load(),
		MessagesSent:     mm.messagesSent.Load(),
		SendFailures:     mm.sendFailures.Load(),
		ReadMarksWritten: mm.readMarksWritten.Load(),
		ReadMarksFailed:  mm.readMarksFailed.Load(),
		Transitions:      mm.transitions.Load(),
		Snapshots:        mm.snapshots.Load(),
		UptimeSeconds:    time.Since(mm.startedAt).Seconds(),
		AllocMemMb:       m.Alloc / 1024 / 1024,
		NumGC:            m.NumGC,
		Goroutines:       runtime.NumGoroutine(),
		RSSBytes:         rss,
		CPUPercent:       cpu,
		ProcessStatus:    status,
	}
	mm.log.Debug("Stats updated",
		"sessions", mm.latest.ActiveSessions,
		"messages_sent", mm.latest.MessagesSent,
		"mem_mb", mm.latest.AllocMemMb,
	)
}

// selfStats reads memory, CPU and OS status of this process. Zero values when unavailable.
func (mm *MonitoringManager) selfStats() (uint64, float64, string) {
	if mm.self == nil {
		return 0, 0, ""
	}
	memInfo, err := mm.self.MemoryInfo()
	if err != nil {
		mm.log.Debug("Failed to collect self stats", "err", err)
		return 0, 0, ""
	}
	cpuPercent, err := mm.self.CPUPercent()
	if err != nil {
		return memInfo.RSS, 0, ""
	}
	status, err := mm.self.Status()
	if err != nil {
		return memInfo.RSS, cpuPercent, ""
	}
	return memInfo.RSS, cpuPercent, status
}

// GetLatest returns the stats computed by the last tick, refreshing them first if none ran yet.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	stale := mm.latest.UptimeSeconds == 0
	mm.mu.RUnlock()
	if stale {
		mm.updateStats()
	}
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latest
}
