package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrInvalidArgument is returned when a required input is absent.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidEmailAddress is returned when an address fails structural validation.
	ErrInvalidEmailAddress = errors.New("invalid email address")
	// ErrNonPositiveVerificationLength is returned when the verified window length is <= 0.
	ErrNonPositiveVerificationLength = errors.New("verification length must be positive")
	// ErrNoSuchRecord is returned when no email address record exists for an id.
	ErrNoSuchRecord = errors.New("no such email address record")
	// ErrVerifiableDataAttached is returned when a record already carries a
	// verification subject and a second one is attached.
	ErrVerifiableDataAttached = errors.New("verifiable data already attached")
)
