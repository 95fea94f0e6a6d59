package service

import (
	"testing"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredApprovals(t *testing.T) {
	tests := []struct {
		name      string
		strategy  string
		minApprov int
		total     int
		want      int
	}{
		{"simple needs one", model.StrategySimple, 0, 5, 1},
		{"hierarchical needs one", model.StrategyHierarchical, 0, 4, 1},
		{"majority of three", model.StrategyMajority, 0, 3, 2},
		{"majority of four", model.StrategyMajority, 0, 4, 2},
		{"majority of five", model.StrategyMajority, 0, 5, 3},
		{"majority of one", model.StrategyMajority, 0, 1, 1},
		{"custom minimum", model.StrategyCustomMinimum, 3, 5, 3},
		{"custom minimum floor", model.StrategyCustomMinimum, 0, 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := &model.ActionPolicy{Strategy: tt.strategy, MinApprovers: tt.minApprov}
			assert.Equal(t, tt.want, RequiredApprovals(policy, tt.total))
		})
	}
}

func TestRejectionQuorum(t *testing.T) {
	simple := &model.ActionPolicy{Strategy: model.StrategySimple}
	assert.Equal(t, 1, RejectionQuorum(simple, 5), "one reject fails a SIMPLE request")

	custom := &model.ActionPolicy{Strategy: model.StrategyCustomMinimum, MinApprovers: 3}
	assert.Equal(t, 1, RejectionQuorum(custom, 5))

	majority := &model.ActionPolicy{Strategy: model.StrategyMajority}
	assert.Equal(t, 2, RejectionQuorum(majority, 3), "MAJORITY needs the same quorum to reject")
	assert.Equal(t, 3, RejectionQuorum(majority, 5))
}

func TestValidateStrategy(t *testing.T) {
	policy := &model.ActionPolicy{ActionType: model.ActionTypeReleasePayment, Strategy: model.StrategySimple}
	require.NoError(t, ValidateStrategy(policy, 1))

	err := ValidateStrategy(policy, 0)
	var invalid *InvalidStrategyError
	require.ErrorAs(t, err, &invalid)

	tooMany := &model.ActionPolicy{
		ActionType:   model.ActionTypeGrantBenefit,
		Strategy:     model.StrategyCustomMinimum,
		MinApprovers: 4,
	}
	err = ValidateStrategy(tooMany, 2)
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "4 approvals")
}
