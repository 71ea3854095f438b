package storage

import (
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// notFoundError reports a lookup that resolved to no entity. It satisfies
// the api package's NotFoundError behavioral interface.
type notFoundError struct {
	kind string
	id   string
}

func (e notFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.kind, e.id) }

func (notFoundError) EntityNotFound() {}

// unavailableError reports that the backing store itself could not be
// reached. It is the only fatal, unretried condition the handlers see.
type unavailableError struct {
	err error
}

func (e unavailableError) Error() string { return "storage unavailable: " + e.err.Error() }

func (e unavailableError) Unwrap() error { return e.err }

func (unavailableError) StorageUnavailable() {}

func classifyLookupError(kind, id string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == 404 {
			return notFoundError{kind: kind, id: id}
		}
		if isUnavailableStatus(respErr.StatusCode) {
			return unavailableError{err: err}
		}
		return err
	}
	// Transport errors never produced a response; the store is unreachable.
	return unavailableError{err: err}
}

func classifyWriteError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if isUnavailableStatus(respErr.StatusCode) {
			return unavailableError{err: err}
		}
		return err
	}
	return unavailableError{err: err}
}

func isUnavailableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
