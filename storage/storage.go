package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"hustlehub-api/domain"
)

// ErrOwnerRequired is returned when a task operation is attempted without an
// owner identifier. Every row is partitioned by owner.
var ErrOwnerRequired = errors.New("owner id is required")

// Storage provides access to the task table.
type Storage struct {
	taskTable *aztables.Client
	now       func() time.Time
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{taskTable: svc.NewClient(tasksTable), now: time.Now}, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Priority    string `json:"Priority"`
	DueDate     string `json:"DueDate"`
	CreatedAt   string `json:"CreatedAt"`
	Status      string `json:"Status"`
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	dueDate, err := time.Parse(time.RFC3339, ent.DueDate)
	if err != nil {
		return domain.Task{}, err
	}
	createdAt, err := time.Parse(time.RFC3339, ent.CreatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:          ent.RowKey,
		OwnerID:     ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Priority:    domain.Priority(ent.Priority),
		DueDate:     dueDate,
		CreatedAt:   createdAt,
		Status:      ent.Status,
	}, nil
}

func encodeTask(t domain.Task) ([]byte, error) {
	return json.Marshal(taskEntity{
		Entity: aztables.Entity{
			PartitionKey: t.OwnerID,
			RowKey:       t.ID,
		},
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		DueDate:     t.DueDate.UTC().Format(time.RFC3339),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		Status:      t.Status,
	})
}

// ListTasks retrieves all tasks owned by the given user. Order follows the
// store's own row order.
func (s *Storage) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	filter := "PartitionKey eq '" + ownerID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			task, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// InsertTask persists a new task, assigning its identifier, creation time and
// initial status. The stored task is returned.
func (s *Storage) InsertTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	if task.OwnerID == "" {
		return domain.Task{}, ErrOwnerRequired
	}
	task.ID = uuid.NewString()
	task.CreatedAt = s.now().UTC()
	task.Status = domain.StatusPending

	data, err := encodeTask(task)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, data, nil); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// DeleteTask removes a task row permanently. Completion is a hard delete, not
// an archival transition.
func (s *Storage) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if ownerID == "" {
		return ErrOwnerRequired
	}
	_, err := s.taskTable.DeleteEntity(ctx, ownerID, taskID, nil)
	return err
}
