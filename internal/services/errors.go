// Package services implements the business logic for refund checks, status
// application, and alarm reporting. This file centralizes common
// service-level error values so they can be consistently returned by service
// methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrCaseNotFound indicates that the requested tax case does not exist.
	ErrCaseNotFound = errors.New("case not found")

	// ErrCheckNotFound indicates that the requested refund check does not
	// exist.
	ErrCheckNotFound = errors.New("check not found")

	// ErrInvalidPortal is returned when a portal value is neither federal
	// nor state.
	ErrInvalidPortal = errors.New("portal must be federal or state")

	// ErrMissingIdentifier is returned when the case's identifier
	// ciphertext is empty or cannot be decrypted.
	ErrMissingIdentifier = errors.New("case has no usable lookup identifier")

	// ErrMissingAmount is returned when the portal's refund-amount rule
	// cannot be satisfied: the federal portal needs an actual or estimated
	// amount, the state portal strictly an actual amount.
	ErrMissingAmount = errors.New("no refund amount available for this portal")

	// ErrNotAwaitingReview is returned when approve or dismiss is called
	// on a check that carries no pending status proposal.
	ErrNotAwaitingReview = errors.New("check has no pending status proposal")

	// ErrNoScreenshot is returned when a signed URL is requested for a
	// check that stored no screenshot reference.
	ErrNoScreenshot = errors.New("check has no screenshot")
)
