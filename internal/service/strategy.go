package service

import (
	"fmt"

	"backend/internal/model"
)

// RequiredApprovals computes how many approvals a request needs to reach
// APPROVED under the given policy and approver count.
func RequiredApprovals(policy *model.ActionPolicy, totalApprovers int) int {
	switch policy.Strategy {
	case model.StrategyMajority:
		return (totalApprovers + 1) / 2 // ceil(n/2)
	case model.StrategyCustomMinimum:
		if policy.MinApprovers < 1 {
			return 1
		}
		return policy.MinApprovers
	default:
		// SIMPLE, HIERARCHICAL_ESCALATION: one approval decides
		return 1
	}
}

// RejectionQuorum computes how many explicit rejects make the request
// REJECTED. SIMPLE and CUSTOM_MINIMUM fail fast on a single reject;
// MAJORITY requires the same quorum fraction rejecting as approving —
// that asymmetry is deliberate.
func RejectionQuorum(policy *model.ActionPolicy, totalApprovers int) int {
	if policy.Strategy == model.StrategyMajority {
		return (totalApprovers + 1) / 2
	}
	return 1
}

// ValidateStrategy checks that the policy can terminate given the available
// approver count. Called at submit time; a misconfiguration here is not
// discoverable later.
func ValidateStrategy(policy *model.ActionPolicy, totalApprovers int) error {
	if totalApprovers < 1 {
		return &InvalidStrategyError{Reason: "no eligible approvers configured for " + policy.ActionType}
	}
	required := RequiredApprovals(policy, totalApprovers)
	if required > totalApprovers {
		return &InvalidStrategyError{Reason: fmt.Sprintf(
			"policy requires %d approvals but only %d approvers are eligible", required, totalApprovers)}
	}
	return nil
}
