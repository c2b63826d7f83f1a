package http

import (
	stderrors "errors"

	"quillroom/internal/core/domain"
	"quillroom/pkg/errors"
)

// mapDomainError translates core sentinel errors into the HTTP error
// vocabulary. Anything unrecognized is an internal error; the sentinel
// text never leaks storage or transport details, so passing the message
// through is safe.
func mapDomainError(err error) *errors.AppError {
	switch {
	case stderrors.Is(err, domain.ErrUnauthenticated):
		return errors.NewUnauthenticatedError("authentication required")
	case stderrors.Is(err, domain.ErrUnauthorized):
		return errors.NewUnauthorizedError("only the document owner can do this")
	case stderrors.Is(err, domain.ErrDocumentNotFound):
		return errors.NewNotFoundError("document")
	case stderrors.Is(err, domain.ErrMembershipNotFound):
		return errors.NewNotFoundError("membership")
	case stderrors.Is(err, domain.ErrUserNotFound):
		return errors.NewNotFoundError("user")
	case stderrors.Is(err, domain.ErrInvalidTarget):
		return errors.NewInvalidTargetError(domain.ErrInvalidTarget.Error())
	case stderrors.Is(err, domain.ErrMisconfigured):
		return errors.NewMisconfiguredError(domain.ErrMisconfigured.Error())
	default:
		return errors.NewInternalError("internal error")
	}
}
