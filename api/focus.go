package api

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"hustlehub-api/domain"
)

const colorCycleInterval = 3 * time.Second

var errNoFocusSession = errors.New("no focus session")

type focusEntry struct {
	session *domain.FocusSession
	cycler  *domain.ColorCycler
	cancel  context.CancelFunc
}

// FocusRegistry holds at most one live focus session per user, together with
// the session's cosmetic color cycler. Starting a new session replaces and
// tears down the previous one.
type FocusRegistry struct {
	mu      sync.Mutex
	entries map[string]*focusEntry
	now     func() time.Time
}

// NewFocusRegistry creates an empty registry driven by the given clock. A
// nil clock defaults to time.Now.
func NewFocusRegistry(now func() time.Time) *FocusRegistry {
	if now == nil {
		now = time.Now
	}
	return &FocusRegistry{entries: make(map[string]*focusEntry), now: now}
}

// Start begins a fresh session for the user.
func (r *FocusRegistry) Start(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[userID]; ok {
		prev.cancel()
	}

	session := domain.NewFocusSession(r.now)
	session.Start()

	cycler := domain.NewColorCycler(rand.New(rand.NewSource(r.now().UnixNano())))
	ctx, cancel := context.WithCancel(context.Background())
	go cycler.Run(ctx, colorCycleInterval)

	r.entries[userID] = &focusEntry{session: session, cycler: cycler, cancel: cancel}
}

// Pause toggles the user's session between paused and running.
func (r *FocusRegistry) Pause(userID string) error {
	entry, err := r.lookup(userID)
	if err != nil {
		return err
	}
	entry.session.Pause()
	return nil
}

// Finish moves the user's session into its terminal state and stops the
// color cycler.
func (r *FocusRegistry) Finish(userID string) error {
	entry, err := r.lookup(userID)
	if err != nil {
		return err
	}
	entry.session.Finish()
	entry.cancel()
	return nil
}

// Status reports the user's current session state.
func (r *FocusRegistry) Status(userID string) (FocusStatus, error) {
	entry, err := r.lookup(userID)
	if err != nil {
		return FocusStatus{}, err
	}
	s := entry.session
	elapsed := s.Elapsed()
	return FocusStatus{
		Elapsed:   domain.FormatElapsed(elapsed),
		ElapsedMs: elapsed.Milliseconds(),
		Breaks:    s.BreakCount(),
		Running:   s.Running(),
		Paused:    s.Paused(),
		Finished:  s.Finished(),
		Color:     entry.cycler.Color(),
	}, nil
}

// Close tears down every cycler goroutine. Intended for shutdown and tests.
func (r *FocusRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		entry.cancel()
	}
	r.entries = make(map[string]*focusEntry)
}

func (r *FocusRegistry) lookup(userID string) (*focusEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[userID]
	if !ok {
		return nil, errNoFocusSession
	}
	return entry, nil
}

// FocusStatus is the wire shape of a focus session.
type FocusStatus struct {
	Elapsed   string `json:"elapsed"`
	ElapsedMs int64  `json:"elapsedMs"`
	Breaks    int    `json:"breaks"`
	Running   bool   `json:"running"`
	Paused    bool   `json:"paused"`
	Finished  bool   `json:"finished"`
	Color     string `json:"color"`
}

func startFocus(registry *FocusRegistry, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		registry.Start(userID)
		status, _ := registry.Status(userID)
		return c.JSON(http.StatusCreated, status)
	}
}

func pauseFocus(registry *FocusRegistry, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := registry.Pause(userID); err != nil {
			return c.String(http.StatusNotFound, err.Error())
		}
		status, _ := registry.Status(userID)
		return c.JSON(http.StatusOK, status)
	}
}

func finishFocus(registry *FocusRegistry, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := registry.Finish(userID); err != nil {
			return c.String(http.StatusNotFound, err.Error())
		}
		status, _ := registry.Status(userID)
		return c.JSON(http.StatusOK, status)
	}
}

func getFocus(registry *FocusRegistry, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		status, err := registry.Status(userID)
		if err != nil {
			return c.String(http.StatusNotFound, err.Error())
		}
		return c.JSON(http.StatusOK, status)
	}
}
