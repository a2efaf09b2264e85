package steps

import (
	"errors"
	"fmt"

	"github.com/primestride/atlas-backend/internal/platform/openai"
)

var (
	ErrRateLimited          = errors.New("rate limited")
	ErrProvider             = errors.New("provider error")
	ErrMalformedResponse    = errors.New("malformed provider response")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrGenerationFailed     = errors.New("generation failed")
)

const (
	LimitPerUser = "per_user_runs"
	LimitPerOrg  = "per_organization_documents"
)

// RateLimitError reports which refresh limit was hit and what is left of both.
type RateLimitError struct {
	Limit         string
	RunsUsed      int
	RunsRemaining int
	DocsUsed      int
	DocsRemaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s): runs remaining %d, documents remaining %d", e.Limit, e.RunsRemaining, e.DocsRemaining)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// ProviderError wraps a failed embedding or generation call.
type ProviderError struct {
	Op         string
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s failed (status %d): %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

func providerErr(op string, err error) error {
	if err == nil {
		return nil
	}
	pe := &ProviderError{Op: op, Provider: "openai", Err: err}
	var oe *openai.Error
	if errors.As(err, &oe) {
		pe.StatusCode = oe.StatusCode
	}
	return pe
}
