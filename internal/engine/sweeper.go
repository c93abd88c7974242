// ABOUTME: Background retry loop re-dispatching reports for COMPLETE sessions
// ABOUTME: Every candidate is re-checked under its own session lock before sending

package engine

import (
	"context"
	"time"

	"github.com/Apurva654/agentic-honeypot-buildathon/internal/session"
)

// RunSweeper periodically retries report delivery for sessions that
// completed but could not be reported. It blocks until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("report sweeper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("report sweeper stopped")
			return
		case <-ticker.C:
			e.SweepOnce()
		}
	}
}

// SweepOnce retries every COMPLETE session whose cooldown has expired and
// returns how many reports were delivered. Sessions that flip status
// between the scan and the lock are skipped.
func (e *Engine) SweepOnce() int {
	delivered := 0
	for _, id := range e.sessions.IDsByStatus(session.StatusComplete) {
		if !e.gate.Allow(id) {
			continue
		}

		unlock := e.sessions.Lock(id)
		st, ok := e.sessions.Get(id)
		if !ok || st.Status != session.StatusComplete {
			unlock()
			continue
		}
		logger := e.logger.With("session_id", id)
		logger.Info("retrying report dispatch")
		e.dispatchLocked(st, logger)
		if st.Status == session.StatusReported {
			delivered++
		}
		unlock()
	}
	return delivered
}
