// Package server provides the HTTP adapter over the catalog source.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/bookmeta/internal/catalog"
	"github.com/jonathan/bookmeta/internal/fetch"
	"github.com/jonathan/bookmeta/internal/source"
	"github.com/jonathan/bookmeta/internal/types"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// Error codes returned in JSON error bodies.
const (
	codeBadRequest    = "bad_request"
	codeNotFound      = "not_found"
	codeAccessDenied  = "access_denied"
	codeUpstream      = "upstream_error"
	codeTimeout       = "upstream_timeout"
	codeInternalError = "internal_error"
)

// HTTPStatus returns the HTTP status code and error code for an error.
func HTTPStatus(err error) (int, string) {
	var (
		validation *ErrValidation
		fieldErrs  validator.ValidationErrors
		mapping    *catalog.MappingError
		parse      *catalog.ParseError
		fetchErr   *fetch.Error
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &fieldErrs), errors.Is(err, types.ErrEmptyRequest):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, catalog.ErrNoMatch), errors.Is(err, source.ErrNoCover):
		return http.StatusNotFound, codeNotFound
	case errors.As(err, &mapping), errors.As(err, &parse):
		return http.StatusBadGateway, codeUpstream
	case errors.As(err, &fetchErr):
		switch fetchErr.Kind {
		case fetch.KindAccessDenied:
			return http.StatusBadGateway, codeAccessDenied
		case fetch.KindTimeout:
			return http.StatusGatewayTimeout, codeTimeout
		case fetch.KindStatus:
			if fetchErr.StatusCode == http.StatusNotFound {
				return http.StatusNotFound, codeNotFound
			}
		}
		return http.StatusBadGateway, codeUpstream
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeTimeout
	default:
		return http.StatusInternalServerError, codeInternalError
	}
}
