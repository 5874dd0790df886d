package engine

import (
	"fmt"

	"github.com/foxzi/outreach/internal/models"
)

// ValidationError reports malformed caller input. Nothing is mutated when
// one is returned.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Msg
}

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError reports a campaign operation that is illegal for
// the campaign's current status.
type InvalidTransitionError struct {
	From models.CampaignStatus
	To   models.CampaignStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// CredentialError reports that the owner's provider credential could not
// be resolved. It fails the whole campaign, not a single recipient: no
// further sends can succeed without credentials.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return "credential error: " + e.Err.Error()
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}
