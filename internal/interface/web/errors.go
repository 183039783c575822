package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
)

// statusFor maps an error family to an HTTP status and a stable code. Order
// matters: wrapping errors are matched before the errors they wrap.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrWrongNetwork):
		return http.StatusPreconditionFailed, "wrong_network"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrRoleDenied):
		return http.StatusForbidden, "role_denied"
	case errors.Is(err, domain.ErrNoProvider):
		return http.StatusServiceUnavailable, "no_provider"
	case errors.Is(err, domain.ErrUserRejected):
		return http.StatusConflict, "user_rejected"
	case errors.Is(err, domain.ErrNotConnected):
		return http.StatusUnauthorized, "not_connected"
	case errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrTransactionFailed):
		return http.StatusUnprocessableEntity, "transaction_failed"
	case errors.Is(err, domain.ErrConfirmationTimeout):
		return http.StatusGatewayTimeout, "confirmation_timeout"
	case errors.Is(err, domain.ErrTransactionAbandoned):
		return http.StatusGatewayTimeout, "abandoned"
	case errors.Is(err, domain.ErrRead):
		return http.StatusBadGateway, "read_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
