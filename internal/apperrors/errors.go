package apperrors

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInternalServer     = errors.New("internal server error")
	ErrInvalidAuthHeader  = errors.New("invalid or missing Authorization header")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid login or password")

	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrDuplicateExternalRef = errors.New("external reference already applied")
	ErrUnknownReference     = errors.New("unknown external reference")
	ErrAlreadySettled       = errors.New("order already settled")
	ErrAlreadyProcessed     = errors.New("request already processed")
	ErrNotFound             = errors.New("not found")
	ErrProviderUnavailable  = errors.New("payment provider unavailable")
	ErrTransient            = errors.New("transient storage conflict")
)
