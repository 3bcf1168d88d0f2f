package service

import (
	"fmt"
	"time"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindNotFound
	KindRateExceeded
	KindLocked
	KindDependency
	KindIntegrity
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindRateExceeded:
		return "rate_exceeded"
	case KindLocked:
		return "locked"
	case KindDependency:
		return "dependency"
	case KindIntegrity:
		return "integrity"
	default:
		return "internal"
	}
}

// Error is the only error type the service layer hands to callers. Message is
// safe to show to users; Err carries operator-only detail.
type Error struct {
	Kind    Kind
	Code    string
	Message string

	AttemptsLeft *int
	LockoutUntil *time.Time
	Suggestions  []string
	Threats      []string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by code so errors.Is works against the package sentinels even
// after fields were attached to a copy.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) clone() *Error {
	c := *e
	return &c
}

func (e *Error) withCause(err error) *Error {
	c := e.clone()
	c.Err = err
	return c
}

func (e *Error) withMessage(msg string) *Error {
	c := e.clone()
	c.Message = msg
	return c
}

var (
	ErrMissingFields       = &Error{Kind: KindValidation, Code: "missing_fields", Message: "Please enter all fields"}
	ErrInvalidEmail        = &Error{Kind: KindValidation, Code: "invalid_email", Message: "Please enter a valid email address"}
	ErrDuplicateAccount    = &Error{Kind: KindValidation, Code: "duplicate_account", Message: "User already exists"}
	ErrPasswordPolicy      = &Error{Kind: KindValidation, Code: "password_policy", Message: "Password does not meet the requirements"}
	ErrPasswordReused      = &Error{Kind: KindValidation, Code: "password_reused", Message: "Cannot reuse one of your recent passwords"}
	ErrIncorrectPassword   = &Error{Kind: KindValidation, Code: "incorrect_password", Message: "Current password is incorrect."}
	ErrInvalidCredentials  = &Error{Kind: KindAuthentication, Code: "invalid_credentials", Message: "Invalid credentials"}
	ErrInvalidOrExpiredOtp = &Error{Kind: KindAuthentication, Code: "invalid_otp", Message: "Invalid or expired OTP. Please try logging in again."}
	ErrUnauthenticated     = &Error{Kind: KindAuthentication, Code: "unauthenticated", Message: "Not authorized"}
	ErrInvalidSignature    = &Error{Kind: KindAuthentication, Code: "invalid_signature", Message: "Invalid signature"}
	ErrLocked              = &Error{Kind: KindLocked, Code: "account_locked", Message: "Account is locked due to too many failed attempts."}
	ErrRateExceeded        = &Error{Kind: KindRateExceeded, Code: "rate_exceeded", Message: "Too many requests, please try again later."}
	ErrOtpDelivery         = &Error{Kind: KindDependency, Code: "otp_delivery_failed", Message: "Could not send OTP. Please try again later."}

	ErrNoFile               = &Error{Kind: KindValidation, Code: "no_file", Message: "No file uploaded."}
	ErrFileTooLarge         = &Error{Kind: KindValidation, Code: "file_too_large", Message: "File exceeds the upload limit for your plan. Upgrade to PRO for larger uploads."}
	ErrFileType             = &Error{Kind: KindValidation, Code: "file_type", Message: "Invalid file type. Only images, pdfs, docs, and zips are allowed."}
	ErrInfected             = &Error{Kind: KindValidation, Code: "file_infected", Message: "File rejected: malware detected."}
	ErrScanFailed           = &Error{Kind: KindDependency, Code: "scan_failed", Message: "Server error"}
	ErrNotFoundOrForbidden  = &Error{Kind: KindNotFound, Code: "not_found", Message: "File not found"}
	ErrInvalidOrExpiredLink = &Error{Kind: KindNotFound, Code: "invalid_link", Message: "Invalid or expired link"}
	ErrIntegrity            = &Error{Kind: KindIntegrity, Code: "integrity_failure", Message: "Server error"}

	ErrSessionNotFound = &Error{Kind: KindNotFound, Code: "session_not_found", Message: "Session not found"}
	ErrInvalidPlan     = &Error{Kind: KindValidation, Code: "invalid_plan", Message: "Invalid plan selected"}
	ErrInvalidEvent    = &Error{Kind: KindValidation, Code: "invalid_event", Message: "Malformed payment event"}

	ErrInternal = &Error{Kind: KindInternal, Code: "internal", Message: "Server error"}
)

func internal(err error) *Error {
	return ErrInternal.withCause(err)
}

func dependency(sentinel *Error, err error) *Error {
	return sentinel.withCause(err)
}
