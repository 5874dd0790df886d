package repository

import "errors"

var (
	// ErrNotFound is returned when a referenced row does not exist or is
	// not visible to the caller.
	ErrNotFound = errors.New("not found")

	// ErrNotDraft is returned when recipients are modified on a campaign
	// that has already left the draft state.
	ErrNotDraft = errors.New("campaign is not in draft state")

	// ErrInvalidEmail is returned when a recipient address fails
	// syntactic validation.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrDuplicateEmail is returned when the same address is submitted
	// twice to one campaign.
	ErrDuplicateEmail = errors.New("duplicate email in campaign")

	// ErrInvalidStatus is returned when a row-level status transition is
	// not legal from the row's current status.
	ErrInvalidStatus = errors.New("invalid status transition")
)
