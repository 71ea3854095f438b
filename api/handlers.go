package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, logger *log.Logger) {
	e.POST("/api/tasks", createTask(store, auth, logger))
	e.POST("/api/tasks/assign", assignTask(store, auth))
	e.POST("/api/tasks/comments", addComment(store, auth))
	e.PUT("/api/users/me", syncUser(store, auth))
	e.GET("/healthz", healthz(store))

	initEventPublisher(store, logger)
}

func healthz(_ Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, writeBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeFailure translates an operation failure into the response the
// envelope contract prescribes: reference misses carry their declared code
// with a 404, store outages propagate distinctly as a 503 and never borrow
// an envelope code, anything else collapses to the operation's fallback
// code with the underlying message attached as diagnostic detail.
func writeFailure(c echo.Context, metrics *writeRequestMetrics, opErr error, fallback domain.ErrorCode) error {
	var re refError
	if errors.As(opErr, &re) {
		metrics.SetErrorStage("reference")
		metrics.SetErrorCode(string(re.code))
		return c.JSON(http.StatusNotFound, domain.Failure(re.code, ""))
	}
	var ua UnavailableError
	if errors.As(opErr, &ua) {
		metrics.SetErrorStage("storage_unavailable")
		c.Logger().Error(opErr)
		return c.String(http.StatusServiceUnavailable, "storage unavailable")
	}
	metrics.SetErrorStage("persist")
	metrics.SetErrorCode(string(fallback))
	c.Logger().Error(opErr)
	return c.JSON(http.StatusInternalServerError, domain.Failure(fallback, opErr.Error()))
}

func createTask(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newWriteRequestMetrics(ctx, logger, "/api/tasks")
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
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

		var req createTaskRequest
		if decodeErr := decodeBody(c, &req); decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, domain.Failure(domain.ErrFailedToCreateTask, "invalid body"))
			return err
		}
		status, parseErr := domain.ParseStatus(req.Status)
		if parseErr != nil {
			metrics.SetErrorStage("validate")
			err = c.JSON(http.StatusBadRequest, domain.Failure(domain.ErrFailedToCreateTask, parseErr.Error()))
			return err
		}
		priority, parseErr := domain.ParsePriority(req.Priority)
		if parseErr != nil {
			metrics.SetErrorStage("validate")
			err = c.JSON(http.StatusBadRequest, domain.Failure(domain.ErrFailedToCreateTask, parseErr.Error()))
			return err
		}

		validateStart := time.Now()
		refs, refErr := resolveRefs(ctx, store, []refSpec{
			{kind: refUser, id: userID, missing: domain.ErrUserNotFound},
		})
		metrics.ObserveValidate(time.Since(validateStart))
		if refErr != nil {
			err = writeFailure(c, metrics, refErr, domain.ErrFailedToCreateTask)
			return err
		}

		task := domain.Task{
			Title:       req.Title,
			Description: req.Description,
			Status:      status,
			Priority:    priority,
			DueDate:     req.DueDate,
			CreatedBy:   domain.SnapshotCreator(refs.user),
		}
		persistStart := time.Now()
		created, insErr := store.InsertTask(ctx, task)
		metrics.ObservePersist(time.Since(persistStart))
		if insErr != nil {
			err = writeFailure(c, metrics, insErr, domain.ErrFailedToCreateTask)
			return err
		}

		publishWriteEvent(store, c.Logger(), userID, newEvent("task", created.ID, domain.EventTaskCreated, created))

		encodeStart := time.Now()
		err = c.JSON(http.StatusCreated, domain.Success(created))
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func assignTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if authErr != nil {
			return c.String(http.StatusUnauthorized, authErr.Error())
		}

		var req assignTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, domain.Failure(domain.ErrFailedToAssignTask, "invalid body"))
		}

		// Task before user: when both are missing the caller sees TASK_NOT_FOUND.
		refs, refErr := resolveRefs(ctx, store, []refSpec{
			{kind: refTask, id: req.TaskID, missing: domain.ErrTaskNotFound},
			{kind: refUser, id: req.UserID, missing: domain.ErrUserNotFound},
		})
		if refErr != nil {
			return writeFailure(c, nil, refErr, domain.ErrFailedToAssignTask)
		}

		created, insErr := store.InsertAssignment(ctx, domain.Assignment{
			TaskID: refs.task.ID,
			UserID: refs.user.ID,
		})
		if insErr != nil {
			return writeFailure(c, nil, insErr, domain.ErrFailedToAssignTask)
		}

		publishWriteEvent(store, c.Logger(), userID, newEvent("assignment", created.ID, domain.EventTaskAssigned, created))

		return c.JSON(http.StatusOK, domain.Success(created))
	}
}

func addComment(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if authErr != nil {
			return c.String(http.StatusUnauthorized, authErr.Error())
		}

		var req addCommentRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, domain.Failure(domain.ErrFailedToAddComment, "invalid body"))
		}

		// Same fixed order as assignment: the task reference wins.
		refs, refErr := resolveRefs(ctx, store, []refSpec{
			{kind: refTask, id: req.TaskID, missing: domain.ErrTaskNotFound},
			{kind: refUser, id: userID, missing: domain.ErrUserNotFound},
		})
		if refErr != nil {
			return writeFailure(c, nil, refErr, domain.ErrFailedToAddComment)
		}

		created, insErr := store.InsertComment(ctx, domain.Comment{
			TaskID: refs.task.ID,
			Text:   req.Text,
			Author: domain.SnapshotAuthor(refs.user),
		})
		if insErr != nil {
			return writeFailure(c, nil, insErr, domain.ErrFailedToAddComment)
		}

		publishWriteEvent(store, c.Logger(), userID, newEvent("comment", created.ID, domain.EventCommentAdded, created))

		return c.JSON(http.StatusCreated, domain.Success(created))
	}
}

// syncUser mirrors the authenticated user's profile into the entity store.
// The identity provider owns credentials; this endpoint only keeps the
// record reference validation resolves against.
func syncUser(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if authErr != nil {
			return c.String(http.StatusUnauthorized, authErr.Error())
		}

		var req syncUserRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		synced, err := store.UpsertUser(ctx, domain.User{
			ID:     userID,
			Name:   req.Name,
			Email:  req.Email,
			Avatar: req.Avatar,
		})
		if err != nil {
			var ua UnavailableError
			if errors.As(err, &ua) {
				c.Logger().Error(err)
				return c.String(http.StatusServiceUnavailable, "storage unavailable")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to sync profile")
		}

		publishWriteEvent(store, c.Logger(), userID, newEvent("user", synced.ID, domain.EventUserSynced, synced))

		return c.JSON(http.StatusOK, domain.Success(synced))
	}
}
