package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMalformedCredential indicates a credential without the expected segments or claims.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrExpired indicates the credential expiry claim is in the past.
	ErrExpired = errors.New("credential expired")
	// ErrIdleTimedOut indicates the session exceeded the inactivity window.
	ErrIdleTimedOut = errors.New("session idle timed out")
	// ErrUnauthenticated indicates there is no active session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInsufficientPermission indicates the principal lacks the required grant.
	ErrInsufficientPermission = errors.New("insufficient permission")
	// ErrUnknownRole indicates a role outside ADMIN, MANAGER and EMPLOYEE.
	ErrUnknownRole = errors.New("unknown role")

	// ErrInvalidAmount indicates a negative, non-finite or out of range amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidKind indicates a line item kind other than PERCEPCION or DEDUCCION.
	ErrInvalidKind = errors.New("invalid line item kind")
	// ErrInvalidPeriod indicates a payroll period that is not a calendar date.
	ErrInvalidPeriod = errors.New("invalid payroll period")
	// ErrEntityNotFound indicates the record does not exist (or was purged).
	ErrEntityNotFound = errors.New("entity not found")
	// ErrAlreadyPurged indicates an operation against a purged record.
	ErrAlreadyPurged = errors.New("entity already purged")
	// ErrInvalidTransition indicates a lifecycle change not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrConfirmationRequired indicates a permanent operation without explicit confirmation.
	ErrConfirmationRequired = errors.New("permanent operation requires confirmation")
	// ErrCollaboratorUnavailable indicates a store or provider failure.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)
