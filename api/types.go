package api

import (
	"context"

	"taskboard-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FindUser(ctx context.Context, id string) (domain.User, error)
	FindTask(ctx context.Context, id string) (domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) (domain.Task, error)
	InsertAssignment(ctx context.Context, a domain.Assignment) (domain.Assignment, error)
	InsertComment(ctx context.Context, c domain.Comment) (domain.Comment, error)
	UpsertUser(ctx context.Context, u domain.User) (domain.User, error)
	EnqueueEvents(ctx context.Context, userID string, events []domain.Event) error
}

// NotFoundError is returned by lookups that resolved to no entity.
type NotFoundError interface {
	error
	EntityNotFound()
}

// UnavailableError is returned when the backing store itself cannot be
// reached. It is never mapped to an envelope error code.
type UnavailableError interface {
	error
	StorageUnavailable()
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
