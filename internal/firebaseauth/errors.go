package firebaseauth

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrDuplicateAccountLink signals that an account link for the same
	// (provider, providerAccountID) pair already exists. Store
	// implementations translate their backend's unique-violation into this
	// sentinel so the reconciler never inspects error text.
	ErrDuplicateAccountLink = errors.New("account_store.duplicate")
	// ErrUserNotFound indicates a user id referenced by an account link has
	// no backing record.
	ErrUserNotFound = errors.New("user_store.not_found")
	// ErrSessionCreationFailed indicates the host session store rejected the
	// create call; fatal to the sign-in attempt.
	ErrSessionCreationFailed = errors.New("session_store.create_failed")
	// ErrMissingClientConfig indicates a flow needing the Firebase web API
	// key was invoked without client configuration.
	ErrMissingClientConfig = errors.New("config.missing_firebase_config")
)

// APIError is a failure with a fixed HTTP status and caller-facing message.
type APIError struct {
	Status  int
	Message string
	cause   error
}

func (apiErr *APIError) Error() string {
	return apiErr.Message
}

func (apiErr *APIError) Unwrap() error {
	return apiErr.cause
}

func badRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: message}
}

func badRequestCause(message string, cause error) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: fmt.Sprintf("%s: %v", message, cause), cause: cause}
}

func missingClientConfig(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: message, cause: ErrMissingClientConfig}
}

func unauthorized(message string, cause error) *APIError {
	if cause == nil {
		return &APIError{Status: http.StatusUnauthorized, Message: message}
	}
	return &APIError{Status: http.StatusUnauthorized, Message: fmt.Sprintf("%s: %v", message, cause), cause: cause}
}

func internalFailure(message string, cause error) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Message: message, cause: cause}
}
