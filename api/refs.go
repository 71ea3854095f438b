package api

import (
	"context"
	"errors"
	"fmt"

	"taskboard-api/domain"
)

type refKind string

const (
	refUser refKind = "user"
	refTask refKind = "task"
)

// refSpec declares one foreign-key reference an operation depends on and
// the envelope code to surface when it does not resolve. Each handler
// declares its specs as an explicit ordered list; the order decides which
// code wins when several references are invalid at once.
type refSpec struct {
	kind    refKind
	id      string
	missing domain.ErrorCode
}

// refError carries the declared code for the first reference that failed
// to resolve.
type refError struct {
	code domain.ErrorCode
	kind refKind
	id   string
}

func (e refError) Error() string {
	return fmt.Sprintf("%s %q does not resolve (%s)", e.kind, e.id, e.code)
}

// resolvedRefs holds the entities an operation's references resolved to.
type resolvedRefs struct {
	user domain.User
	task domain.Task
}

// resolveRefs checks each declared reference in order against the store,
// short-circuiting on the first miss. Store outages abort resolution
// unmapped so no write is attempted against a store that is down.
func resolveRefs(ctx context.Context, store Storage, specs []refSpec) (resolvedRefs, error) {
	var out resolvedRefs
	for _, sp := range specs {
		if sp.id == "" {
			return out, refError{code: sp.missing, kind: sp.kind, id: sp.id}
		}
		switch sp.kind {
		case refUser:
			u, err := store.FindUser(ctx, sp.id)
			if err != nil {
				return out, classifyRefErr(sp, err)
			}
			out.user = u
		case refTask:
			task, err := store.FindTask(ctx, sp.id)
			if err != nil {
				return out, classifyRefErr(sp, err)
			}
			out.task = task
		default:
			return out, fmt.Errorf("unknown reference kind %q", sp.kind)
		}
	}
	return out, nil
}

func classifyRefErr(sp refSpec, err error) error {
	var nf NotFoundError
	if errors.As(err, &nf) {
		return refError{code: sp.missing, kind: sp.kind, id: sp.id}
	}
	return err
}
