package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/resonance/pkg/resonance"
)

var requestErrors = []error{
	resonance.ErrInvalidAccountID,
	resonance.ErrInvalidMomentID,
	resonance.ErrInvalidAmount,
	resonance.ErrInvalidTier,
	resonance.ErrInvalidPersona,
	resonance.ErrInvalidMomentKind,
	resonance.ErrInvalidEntryType,
	resonance.ErrInvalidIdempotencyKey,
	resonance.ErrInvalidMetadataJSON,
	resonance.ErrInvalidReference,
}

// statusForError maps domain failures to HTTP responses. Unknown errors
// surface as 500 without leaking internals to the caller.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, resonance.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, resonance.ErrInadequateTier):
		return http.StatusForbidden, "inadequate_tier"
	case errors.Is(err, resonance.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, resonance.ErrSelfTransaction):
		return http.StatusUnprocessableEntity, "self_transaction"
	case errors.Is(err, resonance.ErrNotPaywalled):
		return http.StatusUnprocessableEntity, "not_paywalled"
	case errors.Is(err, resonance.ErrAlreadyUnlocked):
		return http.StatusConflict, "already_unlocked"
	case errors.Is(err, resonance.ErrDuplicateOperation):
		return http.StatusConflict, "duplicate_operation"
	case errors.Is(err, resonance.ErrSignatureInvalid):
		return http.StatusUnauthorized, "signature_invalid"
	case errors.Is(err, resonance.ErrTransactionAborted):
		return http.StatusServiceUnavailable, "transaction_aborted"
	case isRequestError(err):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func isRequestError(err error) bool {
	for _, candidate := range requestErrors {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}
