package api

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestFocusRegistryLifecycle(t *testing.T) {
	clock := newTestClock()
	registry := NewFocusRegistry(clock.Now)
	t.Cleanup(registry.Close)

	if _, err := registry.Status("user"); !errors.Is(err, errNoFocusSession) {
		t.Fatalf("expected errNoFocusSession, got %v", err)
	}

	registry.Start("user")
	clock.Advance(90 * time.Second)

	status, err := registry.Status("user")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Running || status.Paused || status.Finished {
		t.Fatalf("unexpected flags: %+v", status)
	}
	if status.Elapsed != "00:01:30.000" || status.ElapsedMs != 90_000 {
		t.Fatalf("unexpected elapsed: %+v", status)
	}
	if !strings.HasPrefix(status.Color, "#") {
		t.Fatalf("expected a hex color, got %q", status.Color)
	}

	if err := registry.Pause("user"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	clock.Advance(time.Minute) // ignored while paused
	if err := registry.Pause("user"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	clock.Advance(30 * time.Second)

	status, _ = registry.Status("user")
	if status.Elapsed != "00:02:00.000" || status.Breaks != 1 {
		t.Fatalf("unexpected state after break: %+v", status)
	}

	if err := registry.Finish("user"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	clock.Advance(time.Hour)
	status, _ = registry.Status("user")
	if !status.Finished || status.Elapsed != "00:02:00.000" {
		t.Fatalf("finish must freeze the session: %+v", status)
	}
}

func TestFocusRegistryStartReplacesSession(t *testing.T) {
	clock := newTestClock()
	registry := NewFocusRegistry(clock.Now)
	t.Cleanup(registry.Close)

	registry.Start("user")
	clock.Advance(10 * time.Minute)
	registry.Start("user")
	clock.Advance(5 * time.Second)

	status, err := registry.Status("user")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.ElapsedMs != 5_000 || status.Breaks != 0 {
		t.Fatalf("expected a fresh session, got %+v", status)
	}
}

func TestFocusRegistrySessionsAreIsolatedPerUser(t *testing.T) {
	clock := newTestClock()
	registry := NewFocusRegistry(clock.Now)
	t.Cleanup(registry.Close)

	registry.Start("alice")
	registry.Start("bob")
	if err := registry.Pause("alice"); err != nil {
		t.Fatalf("pause alice: %v", err)
	}

	alice, _ := registry.Status("alice")
	bob, _ := registry.Status("bob")
	if !alice.Paused || bob.Paused {
		t.Fatalf("pause leaked across users: alice=%+v bob=%+v", alice, bob)
	}
}

func TestFocusHandlers(t *testing.T) {
	registry := NewFocusRegistry(nil)
	t.Cleanup(registry.Close)

	c, rec := newTestContext(t, http.MethodGet, "/api/focus", "")
	if err := getFocus(registry, mockAuth{})(c); err != nil {
		t.Fatalf("getFocus: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a session, got %d", rec.Code)
	}

	c, rec = newTestContext(t, http.MethodPost, "/api/focus/start", "")
	if err := startFocus(registry, mockAuth{})(c); err != nil {
		t.Fatalf("startFocus: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	c, rec = newTestContext(t, http.MethodPost, "/api/focus/pause", "")
	if err := pauseFocus(registry, mockAuth{})(c); err != nil {
		t.Fatalf("pauseFocus: %v", err)
	}
	var status FocusStatus
	if err := sonic.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !status.Paused || status.Breaks != 1 {
		t.Fatalf("unexpected status after pause: %+v", status)
	}

	c, rec = newTestContext(t, http.MethodPost, "/api/focus/finish", "")
	if err := finishFocus(registry, mockAuth{})(c); err != nil {
		t.Fatalf("finishFocus: %v", err)
	}
	if err := sonic.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !status.Finished {
		t.Fatalf("expected finished status, got %+v", status)
	}
}
