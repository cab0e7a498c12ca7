package service

import (
	"errors"
	"manuscript-ingest/repository"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrInvalidState  = errors.New("invalid state")
	ErrStorage       = errors.New("storage error")
	ErrGateway       = errors.New("transcription gateway error")
)

const (
	CategoryValidation    = "validation"
	CategoryConfiguration = "configuration"
	CategoryNotFound      = "not_found"
	CategoryConflict      = "conflict"
	CategoryStorage       = "storage"
	CategoryGateway       = "gateway"
	CategoryInternal      = "internal"
)

// Category names the class of a service error for callers that report it.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CategoryValidation
	case errors.Is(err, ErrConfiguration):
		return CategoryConfiguration
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrInvalidState):
		return CategoryConflict
	case errors.Is(err, ErrStorage):
		return CategoryStorage
	case errors.Is(err, ErrGateway):
		return CategoryGateway
	default:
		return CategoryInternal
	}
}

var categories = []error{ErrValidation, ErrConfiguration, ErrNotFound, ErrInvalidState, ErrStorage, ErrGateway}

// Message returns the error text without the category it was joined with.
func Message(err error) string {
	if err == nil {
		return ""
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return err.Error()
	}
	var parts []string
	for _, e := range joined.Unwrap() {
		if isCategory(e) {
			continue
		}
		parts = append(parts, Message(e))
	}
	if len(parts) == 0 {
		return err.Error()
	}
	return strings.Join(parts, ": ")
}

func isCategory(err error) bool {
	for _, c := range categories {
		if err == c {
			return true
		}
	}
	return false
}

func repoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return errors.Join(ErrNotFound, err)
	case errors.Is(err, repository.ErrStateConflict):
		return errors.Join(ErrInvalidState, err)
	default:
		return err
	}
}
