package resolver

import (
	"errors"
	"net/http"
)

// Category classifies resolution failures for HTTP status mapping and logs.
type Category string

const (
	CategoryInvalidInput       Category = "invalid_input"
	CategoryBackendUnavailable Category = "backend_unavailable"
	CategoryAllInstancesFailed Category = "all_instances_failed"
	CategoryNoSuitableFormat   Category = "no_suitable_format"
	CategoryUpstreamFetch      Category = "upstream_fetch_failed"
)

// CategorizedError tags an underlying error with a failure category.
type CategorizedError struct {
	Category Category
	Err      error
}

func (e CategorizedError) Error() string { return e.Err.Error() }

func (e CategorizedError) Unwrap() error { return e.Err }

func wrapCategory(category Category, err error) error {
	if err == nil {
		return nil
	}
	return CategorizedError{Category: category, Err: err}
}

// CategoryOf returns the category attached to err. Errors without one are
// reported as upstream fetch failures.
func CategoryOf(err error) Category {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryUpstreamFetch
}

// HTTPStatus maps a resolution error to the response status for the API
// boundary.
func HTTPStatus(err error) int {
	switch CategoryOf(err) {
	case CategoryInvalidInput:
		return http.StatusBadRequest
	case CategoryNoSuitableFormat:
		return http.StatusNotFound
	case CategoryBackendUnavailable, CategoryAllInstancesFailed, CategoryUpstreamFetch:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
