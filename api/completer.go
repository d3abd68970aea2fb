package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultCompleterWorkers = 4
	defaultCompleterBuffer  = 256
	defaultDeleteTimeout    = 30 * time.Second
)

type completionJob struct {
	ownerID string
	taskID  string
}

// Completer performs store deletes for completed tasks on background
// workers, so the completion endpoint can answer optimistically. A failed
// delete is logged and dropped: the task list is reloaded from the store on
// the next fetch, which is where local and remote state reconverge.
type Completer struct {
	store  Storage
	logger *log.Logger

	jobs          chan completionJob
	deleteTimeout time.Duration
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// NewCompleter starts workers draining the completion queue. Zero workers or
// buffer fall back to defaults.
func NewCompleter(store Storage, logger *log.Logger, workers, buffer int) *Completer {
	if store == nil {
		panic("api.NewCompleter: storage is required")
	}
	if logger == nil {
		panic("api.NewCompleter: logger is required")
	}
	if workers <= 0 {
		workers = defaultCompleterWorkers
	}
	if buffer <= 0 {
		buffer = defaultCompleterBuffer
	}

	c := &Completer{
		store:         store,
		logger:        logger,
		jobs:          make(chan completionJob, buffer),
		deleteTimeout: defaultDeleteTimeout,
	}
	c.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go c.worker()
	}
	return c
}

// Enqueue hands a completion to the worker pool without blocking. It returns
// false when the buffer is saturated or the pool has shut down, in which case
// the caller should delete inline.
func (c *Completer) Enqueue(ownerID, taskID string) (ok bool) {
	// A send on the closed jobs channel panics when Enqueue races Shutdown.
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	select {
	case c.jobs <- completionJob{ownerID: ownerID, taskID: taskID}:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting jobs and waits for in-flight deletes to finish.
func (c *Completer) Shutdown() {
	c.closeOnce.Do(func() {
		close(c.jobs)
	})
	c.wg.Wait()
}

func (c *Completer) worker() {
	defer c.wg.Done()
	for job := range c.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), c.deleteTimeout)
		err := c.store.DeleteTask(ctx, job.ownerID, job.taskID)
		cancel()
		if err != nil {
			c.logger.WithFields(log.Fields{
				"owner_id": job.ownerID,
				"task_id":  job.taskID,
			}).WithError(err).Error("background task delete failed")
		}
	}
}
