package payment

import (
	"errors"
	"net/http"

	"github.com/noah-isme/hotel-payments/internal/common"
)

var (
	// ErrNotFound indicates the referenced booking or hotel does not exist.
	ErrNotFound = errors.New("payment: not found")
	// ErrConfiguration indicates the hotel lacks a gateway price identifier.
	ErrConfiguration = errors.New("payment: configuration error")
	// ErrGateway indicates the payment processor failed or returned incomplete data.
	ErrGateway = errors.New("payment: gateway error")
	// ErrVerification indicates a webhook signature or payload could not be verified.
	ErrVerification = errors.New("payment: webhook verification failed")
	// ErrMetadataMissing indicates a gateway session carries no booking linkage.
	ErrMetadataMissing = errors.New("payment: session metadata has no booking id")
	// ErrInvalidRequest indicates a malformed client request.
	ErrInvalidRequest = errors.New("payment: invalid request")
)

func notFoundError(message string, cause error) error {
	return common.NewAppError("NOT_FOUND", message, http.StatusInternalServerError, errors.Join(ErrNotFound, cause))
}

func configurationError(message string) error {
	return common.NewAppError("CONFIGURATION", message, http.StatusInternalServerError, ErrConfiguration)
}

func gatewayError(message string, cause error) error {
	if cause != nil {
		message = message + ": " + cause.Error()
		return common.NewAppError("GATEWAY_ERROR", message, http.StatusInternalServerError, errors.Join(ErrGateway, cause))
	}
	return common.NewAppError("GATEWAY_ERROR", message, http.StatusInternalServerError, ErrGateway)
}

func metadataMissingError(sessionID string) error {
	return common.NewAppError("METADATA_MISSING", "No bookingId found in session metadata for session "+sessionID, http.StatusInternalServerError, ErrMetadataMissing)
}

func invalidRequestError(message string) error {
	return common.NewAppError("BAD_REQUEST", message, http.StatusBadRequest, ErrInvalidRequest)
}
