package handler

import (
	"errors"
	"net/http"

	"github.com/openwager/wagerbook/internal/domain"
)

// mapError translates domain errors to HTTP error responses. Validation
// failures are 400, missing entities 404, authorization 403, and state
// conflicts 409.
func mapError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrMarketNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrPurchaserNotFound),
		errors.Is(err, domain.ErrPositionNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), err.Error())
	case errors.Is(err, domain.ErrNotAuthorized):
		WriteError(w, http.StatusForbidden, "not_authorized", err.Error())
	case errors.Is(err, domain.ErrPurchaserAlreadyExists):
		WriteError(w, http.StatusConflict, "purchaser_already_exists", err.Error())
	case errors.Is(err, domain.ErrMarketNotOpen),
		errors.Is(err, domain.ErrMarketLocked),
		errors.Is(err, domain.ErrInvalidStatusTransition),
		errors.Is(err, domain.ErrOutcomeNotSet),
		errors.Is(err, domain.ErrQueueNotEmpty),
		errors.Is(err, domain.ErrCountersNotZero),
		errors.Is(err, domain.ErrOrderAlreadyFinal),
		errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrAlreadyClosed),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientLiquidity),
		errors.Is(err, domain.ErrCrossMatchingDisabled),
		errors.Is(err, domain.ErrNoViableCrossLiquidity):
		WriteError(w, http.StatusConflict, err.Error(), err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
