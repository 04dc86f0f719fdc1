package domain

import "fmt"

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`

	// RetryAfter carries a remediation hint in seconds for rate-limit and
	// quarantine rejections. Zero means no hint.
	RetryAfter int `json:"retry_after,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: msg, Status: 400}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Message: msg, Status: 409}
}

func ErrInsufficientFunds() *AppError {
	return &AppError{Code: "INSUFFICIENT_FUNDS", Message: "insufficient available balance", Status: 400}
}

// ErrIntegrityViolation is fatal for the offending account: the caller must
// freeze it and reject all further mutations.
func ErrIntegrityViolation(accountID, detail string) *AppError {
	return &AppError{
		Code:    "INTEGRITY_VIOLATION",
		Message: fmt.Sprintf("account %s integrity check failed: %s", accountID, detail),
		Status:  500,
	}
}

func ErrAccountFrozen(accountID string) *AppError {
	return &AppError{Code: "ACCOUNT_FROZEN", Message: fmt.Sprintf("account %s is frozen", accountID), Status: 403}
}

func ErrInvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("transition %s -> %s is not allowed", from, to),
		Status:  409,
	}
}

func ErrRateLimited(retryAfter int) *AppError {
	return &AppError{Code: "RATE_LIMITED", Message: "too many match requests", Status: 429, RetryAfter: retryAfter}
}

func ErrQuarantined(retryAfter int) *AppError {
	return &AppError{Code: "QUARANTINED", Message: "account is in temporary quarantine", Status: 403, RetryAfter: retryAfter}
}

func ErrKYCRequired() *AppError {
	return &AppError{Code: "KYC_REQUIRED", Message: "identity verification required for high stakes", Status: 403}
}

func ErrLowTrust(score int) *AppError {
	return &AppError{Code: "LOW_TRUST", Message: fmt.Sprintf("trust score too low: %d", score), Status: 403}
}

func ErrCollusionSuspected(level string) *AppError {
	return &AppError{Code: "COLLUSION_SUSPECTED", Message: fmt.Sprintf("collusion risk %s", level), Status: 403}
}

func ErrTimeout(what string) *AppError {
	return &AppError{Code: "TIMEOUT", Message: fmt.Sprintf("%s timed out", what), Status: 408}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Status: 500, Cause: cause}
}
