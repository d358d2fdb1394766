package app

import (
	"errors"

	"murojaat/pkg/auth"
	"murojaat/pkg/domain"
)

var (
	// ErrInvalidCredentials is shown to end users as-is. It does not say which
	// half of the pair was wrong.
	ErrInvalidCredentials = errors.New("incorrect login or password")

	ErrNoSession      = errors.New("no active session")
	ErrForbidden      = errors.New("operation not allowed for this role")
	ErrTicketNotFound = errors.New("ticket not found")

	ErrRegistrationIncomplete = errors.New("name, surname, faculty, direction, group and credential are required")
	ErrUnknownFaculty         = errors.New("unknown faculty")
	ErrUnknownFilter          = errors.New("unknown ticket filter")

	ErrCredentialTooLong = auth.ErrCredentialTooLong

	// Ticket state machine errors live in the domain package and are
	// re-exported so callers only need this package.
	ErrTitleRequired          = domain.ErrTitleRequired
	ErrMessageRequired        = domain.ErrMessageRequired
	ErrTicketResolved         = domain.ErrTicketResolved
	ErrNotPendingConfirmation = domain.ErrNotPendingConfirmation
	ErrStatusTransition       = domain.ErrStatusTransition
)
