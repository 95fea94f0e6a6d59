package service

import (
	"testing"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
)

func autoPolicy(roles string) *model.ActionPolicy {
	return &model.ActionPolicy{
		ActionType:        model.ActionTypeUpdateCitizen,
		Strategy:          model.StrategyAutoByRole,
		AutoApprovalRoles: roles,
	}
}

func TestEvaluateAutoApproval(t *testing.T) {
	t.Run("role in policy list", func(t *testing.T) {
		policy := autoPolicy(`["gestor", "coordenador"]`)
		assert.True(t, EvaluateAutoApproval(policy, "gestor", nil, nil))
		assert.True(t, EvaluateAutoApproval(policy, "coordenador", nil, nil))
		assert.False(t, EvaluateAutoApproval(policy, "tecnico", nil, nil))
	})

	t.Run("matching is trimmed and case-insensitive", func(t *testing.T) {
		policy := autoPolicy(`[" Gestor "]`)
		assert.True(t, EvaluateAutoApproval(policy, "gestor", nil, nil))
		assert.True(t, EvaluateAutoApproval(policy, "  GESTOR  ", nil, nil))
	})

	t.Run("empty list fails closed", func(t *testing.T) {
		assert.False(t, EvaluateAutoApproval(autoPolicy(""), "gestor", nil, nil))
		assert.False(t, EvaluateAutoApproval(autoPolicy("[]"), "gestor", nil, nil))
	})

	t.Run("empty requester role fails closed", func(t *testing.T) {
		policy := autoPolicy(`["gestor"]`)
		assert.False(t, EvaluateAutoApproval(policy, "", nil, nil))
		assert.False(t, EvaluateAutoApproval(policy, "   ", nil, nil))
	})

	t.Run("request override beats policy list", func(t *testing.T) {
		policy := autoPolicy(`["gestor"]`)
		assert.True(t, EvaluateAutoApproval(policy, "tecnico", []string{"tecnico"}, nil))
		assert.False(t, EvaluateAutoApproval(policy, "gestor", []string{"tecnico"}, nil))
	})

	t.Run("override never bypasses the strategy check", func(t *testing.T) {
		policy := &model.ActionPolicy{Strategy: model.StrategySimple}
		assert.False(t, EvaluateAutoApproval(policy, "gestor", []string{"gestor"}, nil))

		policy.Strategy = model.StrategyMajority
		assert.False(t, EvaluateAutoApproval(policy, "gestor", []string{"gestor"}, nil))
	})

	t.Run("defaults used when policy has no list", func(t *testing.T) {
		policy := autoPolicy("")
		assert.True(t, EvaluateAutoApproval(policy, "admin", nil, []string{"admin"}))
		assert.False(t, EvaluateAutoApproval(policy, "gestor", nil, []string{"admin"}))
	})

	t.Run("non-auto strategy ignores policy and defaults", func(t *testing.T) {
		policy := &model.ActionPolicy{Strategy: model.StrategyMajority, AutoApprovalRoles: `["gestor"]`}
		assert.False(t, EvaluateAutoApproval(policy, "gestor", nil, []string{"gestor"}))
	})

	t.Run("comma-separated legacy list", func(t *testing.T) {
		policy := autoPolicy("gestor, coordenador")
		assert.True(t, EvaluateAutoApproval(policy, "coordenador", nil, nil))
	})
}

func TestHasAdminAutoApproval(t *testing.T) {
	assert.True(t, HasAdminAutoApproval([]string{"users.read", PermAutoApprove}))
	assert.False(t, HasAdminAutoApproval([]string{"users.read", "requests.decide"}))
	assert.False(t, HasAdminAutoApproval(nil))
}
