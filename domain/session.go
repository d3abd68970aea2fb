package domain

import (
	"fmt"
	"sync"
	"time"
)

// FocusSession tracks elapsed wall-clock time for a single focus-zone
// sitting. Elapsed time is recomputed from the injected clock on read rather
// than accumulated by a polling tick, so display cadence and correctness are
// decoupled.
//
// State machine: Running ↔ Paused, then Finished. Finished is absorbing.
type FocusSession struct {
	mu sync.Mutex

	now func() time.Time

	running     bool
	paused      bool
	finished    bool
	resumedAt   time.Time
	accumulated time.Duration
	breakCount  int
}

// NewFocusSession creates a session driven by the given clock. A nil clock
// defaults to time.Now.
func NewFocusSession(now func() time.Time) *FocusSession {
	if now == nil {
		now = time.Now
	}
	return &FocusSession{now: now}
}

// Start begins the session. Starting an already running or finished session
// is a no-op.
func (s *FocusSession) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.finished {
		return
	}
	s.running = true
	s.paused = false
	s.resumedAt = s.now()
}

// Pause toggles the paused state. Only the not-paused to paused transition
// counts as a break; resuming does not.
func (s *FocusSession) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.finished {
		return
	}
	if s.paused {
		s.paused = false
		s.resumedAt = s.now()
		return
	}
	s.paused = true
	s.breakCount++
	s.accumulated += s.now().Sub(s.resumedAt)
}

// Finish ends the session, freezing the elapsed time and break count.
// Further Pause or Finish calls have no effect.
func (s *FocusSession) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.running && !s.paused {
		s.accumulated += s.now().Sub(s.resumedAt)
	}
	s.finished = true
	s.running = false
}

// Elapsed returns the session's elapsed time. It advances only while the
// session is running and not paused.
func (s *FocusSession) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && !s.paused {
		return s.accumulated + s.now().Sub(s.resumedAt)
	}
	return s.accumulated
}

// BreakCount returns how many times the session transitioned into pause.
func (s *FocusSession) BreakCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breakCount
}

// Paused reports whether the session is currently paused.
func (s *FocusSession) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Finished reports whether the session reached its terminal state.
func (s *FocusSession) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Running reports whether the session has started and not yet finished.
func (s *FocusSession) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// FormatElapsed renders a duration as HH:MM:SS.mmm with zero padding. Hours
// widen past two digits when the session exceeds 99 hours.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	seconds := (d % time.Minute) / time.Second
	millis := (d % time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
