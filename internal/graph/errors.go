package graph

import (
	"errors"
	"log/slog"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/raphaelgruber/voxchat/internal/auth"
	"github.com/raphaelgruber/voxchat/internal/models"
	"github.com/raphaelgruber/voxchat/internal/service"
)

// ErrBadInput marks arguments the resolvers reject.
var ErrBadInput = errors.New("bad input")

// Error codes set in the "code" extension of every resolver error.
const (
	CodeBadInput        = "BAD_USER_INPUT"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL_SERVER_ERROR"
)

// errorCode classifies a resolver error.
func errorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, models.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, auth.ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, models.ErrUnsupportedModel),
		errors.Is(err, service.ErrInvalidScore),
		errors.Is(err, service.ErrInvalidLatency),
		errors.Is(err, ErrBadInput):
		return CodeBadInput
	default:
		return CodeInternal
	}
}

// presentError turns a resolver error into a GraphQL error at path.
// Internal failures are logged and reported without detail.
func presentError(logger *slog.Logger, path ast.Path, err error) *gqlerror.Error {
	code := errorCode(err)
	msg := err.Error()
	if code == CodeInternal {
		logger.Error("resolver failed", "path", path.String(), "error", err)
		msg = "internal server error"
	}
	return &gqlerror.Error{
		Err:        err,
		Message:    msg,
		Path:       path,
		Extensions: map[string]any{"code": code},
	}
}
