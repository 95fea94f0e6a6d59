package service

import (
	"encoding/json"
	"strings"

	"backend/internal/model"
)

// Auto-approval sources, recorded in the AUTO_APPROVE history metadata so
// role-based grants and the admin escape hatch stay separately auditable.
const (
	AutoApproveByRole  = "ROLE"
	AutoApproveByAdmin = "ADMIN_CAPABILITY"
)

// PermAutoApprove is the administrative capability that bypasses the role
// list entirely.
const PermAutoApprove = "requests.autoapprove"

// EvaluateAutoApproval decides whether the requester's own role satisfies
// the policy's auto-approval list. Only AUTO_APPROVAL_BY_ROLE policies
// qualify; under any other strategy the answer is always false. Role
// sources in priority order: per-request override, then the policy's list,
// then defaultRoles — the caller is responsible for restricting who may
// supply an override. An empty resolved list denies (fail closed);
// matching is trimmed, case-insensitive.
func EvaluateAutoApproval(policy *model.ActionPolicy, requesterRole string, overrideRoles, defaultRoles []string) bool {
	if policy.Strategy != model.StrategyAutoByRole {
		return false
	}

	roles := overrideRoles
	if len(roles) == 0 {
		roles = parseRoleList(policy.AutoApprovalRoles)
	}
	if len(roles) == 0 {
		roles = defaultRoles
	}

	requester := strings.TrimSpace(requesterRole)
	if requester == "" {
		return false
	}
	for _, role := range roles {
		if strings.EqualFold(strings.TrimSpace(role), requester) {
			return true
		}
	}
	return false
}

// HasAdminAutoApproval reports whether the requester's permission set grants
// auto-approval regardless of the policy's role list.
func HasAdminAutoApproval(permissionCodes []string) bool {
	for _, code := range permissionCodes {
		if code == PermAutoApprove {
			return true
		}
	}
	return false
}

// parseRoleList reads the policy's jsonb role column, tolerating a plain
// comma-separated string from older rows.
func parseRoleList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var roles []string
	if err := json.Unmarshal([]byte(raw), &roles); err != nil {
		roles = strings.Split(raw, ",")
	}

	out := roles[:0]
	for _, r := range roles {
		if trimmed := strings.TrimSpace(r); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
