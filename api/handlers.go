package api

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"hustlehub-api/domain"
	"hustlehub-api/qrexport"
)

const postTaskMaxSize = 64 * 1024 // 64 KiB

var errCouldNotLoadTasks = errors.New("could not load tasks")

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, deduper Deduper, completer *Completer, amb AmbientSource, focus *FocusRegistry, logger *log.Logger) {
	e.GET("/api/tasks", getTasks(store, auth, logger))
	e.POST("/api/tasks", postTask(store, auth, deduper, logger))
	e.POST("/api/tasks/:id/complete", completeTask(store, auth, completer, logger))
	e.GET("/api/tasks/qr", getTasksQR(store, auth, logger))
	e.GET("/api/tasks/qr.txt", getTasksQRText(store, auth, logger))
	e.GET("/api/quote", getQuote(auth))
	e.GET("/api/ambient", getAmbient(amb, auth))
	e.POST("/api/ambient/refresh", refreshAmbient(amb, auth))
	e.GET("/api/focus", getFocus(focus, auth))
	e.POST("/api/focus/start", startFocus(focus, auth))
	e.POST("/api/focus/pause", pauseFocus(focus, auth))
	e.POST("/api/focus/finish", finishFocus(focus, auth))
	e.GET("/healthz", healthz())
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
	Error string        `json:"error,omitempty"`
}

// createTaskRequest mirrors the planner form. Time is accepted for wire
// compatibility with the form but never persisted; the schedule is per-day.
type createTaskRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Priority       string `json:"priority"`
	DueDate        string `json:"dueDate"`
	Time           string `json:"time"`
	IdempotencyKey string `json:"idempotencyKey"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getTasks(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.ListTasks(ctx, userID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			// The planning view degrades to an empty list rather than failing.
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.JSON(http.StatusOK, tasksResponse{Tasks: []domain.Task{}, Error: errCouldNotLoadTasks.Error()})
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postTask(store Storage, auth Authenticator, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		lr := io.LimitReader(c.Request().Body, postTaskMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req createTaskRequest
		if err := dec.Decode(&req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Title == "" {
			return c.String(http.StatusBadRequest, "title is required")
		}
		priority, err := domain.ParsePriority(req.Priority)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		dueDate, err := parseDueDate(req.DueDate)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid due date")
		}

		key := req.IdempotencyKey
		if key == "" {
			key = uuid.NewString()
		}
		if deduper != nil {
			added, dedupeErr := deduper.Add(ctx, userID, key)
			if dedupeErr != nil {
				// Deduper outage should not stop creations, only deduplication.
				logger.WithError(dedupeErr).Warn("idempotency check unavailable")
			} else if !added {
				return c.JSON(http.StatusAccepted, map[string]string{"idempotencyKey": key})
			}
		}

		task := domain.Task{
			Title:       req.Title,
			Description: req.Description,
			Priority:    priority,
			DueDate:     dueDate,
			OwnerID:     userID,
		}
		stored, insertErr := store.InsertTask(ctx, task)
		if insertErr != nil {
			if deduper != nil {
				if remErr := deduper.Remove(ctx, userID, key); remErr != nil {
					logger.WithError(remErr).Warn("idempotency rollback failed")
				}
			}
			c.Logger().Error(insertErr)
			return c.String(http.StatusInternalServerError, "failed to create task")
		}
		return c.JSON(http.StatusCreated, stored)
	}
}

func completeTask(store Storage, auth Authenticator, completer *Completer, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		taskID := c.Param("id")
		if taskID == "" {
			return c.String(http.StatusBadRequest, "task id is required")
		}

		// The client already removed the task from its view; completion is
		// acknowledged before the delete lands.
		if completer != nil && completer.Enqueue(userID, taskID) {
			return c.NoContent(http.StatusAccepted)
		}

		deleteCtx, cancel := context.WithTimeout(context.Background(), defaultDeleteTimeout)
		deleteErr := store.DeleteTask(deleteCtx, userID, taskID)
		cancel()
		if deleteErr != nil {
			logger.WithFields(log.Fields{
				"owner_id": userID,
				"task_id":  taskID,
			}).WithError(deleteErr).Error("task delete failed")
		}
		return c.NoContent(http.StatusAccepted)
	}
}

func getQuote(auth Authenticator) echo.HandlerFunc {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		mu.Lock()
		quote := domain.RandomQuote(rng)
		mu.Unlock()
		return c.JSON(http.StatusOK, quote)
	}
}

func getAmbient(amb AmbientSource, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		return c.JSON(http.StatusOK, amb.Snapshot())
	}
}

func refreshAmbient(amb AmbientSource, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		// The pipeline restarts in the background; stages land in later reads.
		amb.Refresh()
		return c.NoContent(http.StatusAccepted)
	}
}

func getTasksQR(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		payload, status, err := todayPayload(c, store, auth)
		if err != nil {
			return c.String(status, err.Error())
		}
		png, renderErr := qrexport.RenderPNG(payload, qrexport.DefaultSize)
		if renderErr != nil {
			logger.WithError(renderErr).Error("qr render failed")
			return c.String(http.StatusInternalServerError, "failed to render qr code")
		}
		c.Response().Header().Set("Content-Disposition", `attachment; filename="tasks_qr_code.png"`)
		return c.Blob(http.StatusOK, "image/png", png)
	}
}

func getTasksQRText(store Storage, auth Authenticator, _ *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		payload, status, err := todayPayload(c, store, auth)
		if err != nil {
			return c.String(status, err.Error())
		}
		return c.String(http.StatusOK, payload)
	}
}

func todayPayload(c echo.Context, store Storage, auth Authenticator) (string, int, error) {
	ctx := c.Request().Context()
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
	if err != nil {
		return "", http.StatusUnauthorized, err
	}
	tasks, err := store.ListTasks(ctx, userID)
	if err != nil {
		c.Logger().Error(err)
		return "", http.StatusInternalServerError, errCouldNotLoadTasks
	}
	return qrexport.Serialize(qrexport.DueToday(tasks, time.Now())), http.StatusOK, nil
}

func parseDueDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
