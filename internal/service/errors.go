package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for the approval workflow. Handlers map these onto HTTP
// status codes; everything else surfaces as a generic failure.
var (
	ErrPolicyNotFound  = errors.New("no action policy configured for this action type")
	ErrPolicyInactive  = errors.New("action policy is inactive")
	ErrRequestNotFound = errors.New("approval request not found")
	ErrNotEligible     = errors.New("user has no pending decision slot on this request")
	ErrAlreadyDecided  = errors.New("decision slot has already been decided")
	ErrConflict        = errors.New("concurrent update conflict, please retry")

	// ErrOverrideNotAllowed rejects a per-request auto-approval role list
	// from a requester without the administrative auto-approve capability.
	ErrOverrideNotAllowed = errors.New("auto-approval role override requires the " + PermAutoApprove + " permission")
)

// DuplicateRequestError reports an existing non-terminal request for the
// same (requester, action type, fingerprint). It carries the existing
// request's code and status so callers can tell "awaiting decision" from
// "approved, awaiting execution".
type DuplicateRequestError struct {
	ExistingCode   string
	ExistingStatus string
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("duplicate request: %s is already %s", e.ExistingCode, e.ExistingStatus)
}

// NotPendingError reports a mutation attempted on a terminal request.
type NotPendingError struct {
	Status string
}

func (e *NotPendingError) Error() string {
	return fmt.Sprintf("approval request is already %s", e.Status)
}

// InvalidStrategyError reports a policy that cannot produce a decision,
// e.g. a minimum-approvers count above the number of eligible approvers.
type InvalidStrategyError struct {
	Reason string
}

func (e *InvalidStrategyError) Error() string {
	return "invalid strategy configuration: " + e.Reason
}
