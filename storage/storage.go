package storage

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"

	"taskboard-api/domain"
)

const (
	defaultQueueConcurrency = 4
	queuePerCPU             = 10
	maxQueueConcurrency     = 64
)

// queueClient is the slice of the azqueue client the store uses; tests swap
// in a fake.
type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Storage provides access to the entity tables and the write-event queue.
type Storage struct {
	users       *aztables.Client
	tasks       *aztables.Client
	assignments *aztables.Client
	comments    *aztables.Client
	eventQueue  queueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, usersTable, tasksTable, assignmentsTable, commentsTable, eventQueue string) (*Storage, error) {
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
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		users:       svc.NewClient(usersTable),
		tasks:       svc.NewClient(tasksTable),
		assignments: svc.NewClient(assignmentsTable),
		comments:    svc.NewClient(commentsTable),
		eventQueue:  eq,
	}, nil
}

type userEntity struct {
	aztables.Entity
	Name      string `json:"Name"`
	Email     string `json:"Email"`
	Avatar    string `json:"Avatar"`
	CreatedAt int64  `json:"CreatedAt"`
	UpdatedAt int64  `json:"UpdatedAt"`
}

type taskEntity struct {
	aztables.Entity
	Title         string `json:"Title"`
	Description   string `json:"Description"`
	Status        string `json:"Status"`
	Priority      string `json:"Priority"`
	DueDate       int64  `json:"DueDate"`
	CreatorID     string `json:"CreatorID"`
	CreatorName   string `json:"CreatorName"`
	CreatorEmail  string `json:"CreatorEmail"`
	CreatorAvatar string `json:"CreatorAvatar"`
	CreatedAt     int64  `json:"CreatedAt"`
	UpdatedAt     int64  `json:"UpdatedAt"`
}

type assignmentEntity struct {
	aztables.Entity
	UserID    string `json:"UserID"`
	CreatedAt int64  `json:"CreatedAt"`
	UpdatedAt int64  `json:"UpdatedAt"`
}

type commentEntity struct {
	aztables.Entity
	Text         string `json:"Text"`
	AuthorID     string `json:"AuthorID"`
	AuthorName   string `json:"AuthorName"`
	AuthorAvatar string `json:"AuthorAvatar"`
	CreatedAt    int64  `json:"CreatedAt"`
	UpdatedAt    int64  `json:"UpdatedAt"`
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:        ent.RowKey,
		Name:      ent.Name,
		Email:     ent.Email,
		Avatar:    ent.Avatar,
		CreatedAt: ent.CreatedAt,
		UpdatedAt: ent.UpdatedAt,
	}, nil
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      domain.Status(ent.Status),
		Priority:    domain.Priority(ent.Priority),
		DueDate:     ent.DueDate,
		CreatedBy: domain.CreatorSnapshot{
			UserID: ent.CreatorID,
			Name:   ent.CreatorName,
			Email:  ent.CreatorEmail,
			Avatar: ent.CreatorAvatar,
		},
		CreatedAt: ent.CreatedAt,
		UpdatedAt: ent.UpdatedAt,
	}, nil
}

// FindUser resolves a user by identifier. Absent users surface as a
// not-found error, store outages as unavailable.
func (s *Storage) FindUser(ctx context.Context, id string) (domain.User, error) {
	resp, err := s.users.GetEntity(ctx, id, id, nil)
	if err != nil {
		return domain.User{}, classifyLookupError("user", id, err)
	}
	return decodeUserEntity(resp.Value)
}

// FindTask resolves a task by identifier.
func (s *Storage) FindTask(ctx context.Context, id string) (domain.Task, error) {
	resp, err := s.tasks.GetEntity(ctx, id, id, nil)
	if err != nil {
		return domain.Task{}, classifyLookupError("task", id, err)
	}
	return decodeTaskEntity(resp.Value)
}

// InsertTask assigns an identifier and timestamps and performs the durable
// write. The returned Task is the persisted record.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	now := time.Now().UTC().UnixMilli()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now
	ent := taskEntity{
		Entity:        aztables.Entity{PartitionKey: t.ID, RowKey: t.ID},
		Title:         t.Title,
		Description:   t.Description,
		Status:        string(t.Status),
		Priority:      string(t.Priority),
		DueDate:       t.DueDate,
		CreatorID:     t.CreatedBy.UserID,
		CreatorName:   t.CreatedBy.Name,
		CreatorEmail:  t.CreatedBy.Email,
		CreatorAvatar: t.CreatedBy.Avatar,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if err := s.addEntity(ctx, s.tasks, ent); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// InsertAssignment persists a new assignment, partitioned by its task.
func (s *Storage) InsertAssignment(ctx context.Context, a domain.Assignment) (domain.Assignment, error) {
	now := time.Now().UTC().UnixMilli()
	a.ID = uuid.NewString()
	a.CreatedAt = now
	a.UpdatedAt = now
	ent := assignmentEntity{
		Entity:    aztables.Entity{PartitionKey: a.TaskID, RowKey: a.ID},
		UserID:    a.UserID,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if err := s.addEntity(ctx, s.assignments, ent); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

// InsertComment persists a new comment, partitioned by its task.
func (s *Storage) InsertComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	now := time.Now().UTC().UnixMilli()
	c.ID = uuid.NewString()
	c.CreatedAt = now
	c.UpdatedAt = now
	ent := commentEntity{
		Entity:       aztables.Entity{PartitionKey: c.TaskID, RowKey: c.ID},
		Text:         c.Text,
		AuthorID:     c.Author.UserID,
		AuthorName:   c.Author.Name,
		AuthorAvatar: c.Author.Avatar,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if err := s.addEntity(ctx, s.comments, ent); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

// UpsertUser mirrors a profile record from the identity provider. The
// creation timestamp of an existing record is preserved.
func (s *Storage) UpsertUser(ctx context.Context, u domain.User) (domain.User, error) {
	now := time.Now().UTC().UnixMilli()
	u.CreatedAt = now
	u.UpdatedAt = now
	if existing, err := s.FindUser(ctx, u.ID); err == nil {
		u.CreatedAt = existing.CreatedAt
	} else {
		var nf notFoundError
		if !errors.As(err, &nf) {
			return domain.User{}, err
		}
	}
	ent := userEntity{
		Entity:    aztables.Entity{PartitionKey: u.ID, RowKey: u.ID},
		Name:      u.Name,
		Email:     u.Email,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := s.users.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
		return domain.User{}, classifyWriteError(err)
	}
	return u, nil
}

func (s *Storage) addEntity(ctx context.Context, table *aztables.Client, ent any) error {
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := table.AddEntity(ctx, data, nil); err != nil {
		return classifyWriteError(err)
	}
	return nil
}

// EnqueueEvents publishes the given write events to the event queue, one
// message per event, fanning out with bounded concurrency.
func (s *Storage) EnqueueEvents(ctx context.Context, userID string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]string, len(events))
	for i, ev := range events {
		data, err := json.Marshal(domain.EventEnvelope{UserID: userID, Event: ev})
		if err != nil {
			return err
		}
		msgs[i] = string(data)
	}
	if len(msgs) == 1 {
		_, err := s.eventQueue.EnqueueMessage(ctx, msgs[0], nil)
		return err
	}

	sem := make(chan struct{}, queueConcurrencyForCPU(runtime.NumCPU()))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, msg := range msgs {
		wg.Add(1)
		sem <- struct{}{}
		go func(m string) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := s.eventQueue.EnqueueMessage(ctx, m, nil); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(msg)
	}
	wg.Wait()
	return firstErr
}

func queueConcurrencyForCPU(cpu int) int {
	if cpu <= 0 {
		return defaultQueueConcurrency
	}
	n := cpu * queuePerCPU
	if n > maxQueueConcurrency {
		n = maxQueueConcurrency
	}
	return n
}
