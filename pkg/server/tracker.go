package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ConnectionTracker periodically closes connections whose clients have gone
// quiet for longer than the idle timeout.
type ConnectionTracker struct {
	cron    *cron.Cron
	idle    time.Duration
	source  func() []*Connection
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewConnectionTracker schedules a sweep of source's connections on
// schedule, a cron spec such as "@every 5s".
func NewConnectionTracker(schedule string, idle time.Duration, source func() []*Connection, metrics *Metrics, logger *slog.Logger) (*ConnectionTracker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &ConnectionTracker{
		cron:    cron.New(),
		idle:    idle,
		source:  source,
		metrics: metrics,
		logger:  logger.With("component", "tracker"),
		now:     time.Now,
	}
	if _, err := t.cron.AddFunc(schedule, func() { t.Sweep() }); err != nil {
		return nil, fmt.Errorf("server: idle sweep schedule %q: %w", schedule, err)
	}
	return t, nil
}

// Start begins the sweep schedule.
func (t *ConnectionTracker) Start() {
	t.cron.Start()
}

// Stop ends the schedule. The returned context is done once a running
// sweep has finished.
func (t *ConnectionTracker) Stop() context.Context {
	return t.cron.Stop()
}

// Sweep closes idle connections and returns how many it closed.
func (t *ConnectionTracker) Sweep() int {
	cutoff := t.now().Add(-t.idle)
	closed := 0
	for _, conn := range t.source() {
		if conn.IsClosed() || conn.LastActivity().After(cutoff) {
			continue
		}
		t.logger.Info("closing idle connection",
			"connection_id", conn.ID(),
			"last_activity", conn.LastActivity())
		conn.Close()
		t.metrics.idleClose()
		closed++
	}
	return closed
}
