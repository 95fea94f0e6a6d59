package service

import (
	"context"
	"testing"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPolicyFixture(t *testing.T) (PolicyService, *fakePolicyRepo, *fakeApproverRepo, *fakeUserRepo, *fakeAuditRepo) {
	t.Helper()
	policies := newFakePolicyRepo()
	approvers := &fakeApproverRepo{}
	users := newFakeUserRepo()
	audit := &fakeAuditRepo{}
	svc := NewPolicyService(fakeTxManager{}, policies, approvers, users, audit)
	return svc, policies, approvers, users, audit
}

func TestCreatePolicy(t *testing.T) {
	svc, _, _, users, audit := newPolicyFixture(t)
	admin := users.addUser("admin", "admin")

	resp, err := svc.CreatePolicy(context.Background(), admin.String(), CreatePolicyRequest{
		ActionType:    model.ActionTypeReleasePayment,
		Strategy:      model.StrategyMajority,
		DeadlineHours: 72,
	})
	require.NoError(t, err)

	assert.Equal(t, model.ActionTypeReleasePayment, resp.ActionType)
	assert.Equal(t, model.StrategyMajority, resp.Strategy)
	assert.True(t, resp.Active)
	assert.Equal(t, 1, resp.MinApprovers, "min_approvers floors at 1")

	require.Len(t, audit.entries, 1)
	assert.Equal(t, model.ActionCreatePolicy, audit.entries[0].Action)
}

func TestCreatePolicyValidation(t *testing.T) {
	svc, _, _, users, _ := newPolicyFixture(t)
	admin := users.addUser("admin", "admin")

	var invalid *InvalidStrategyError

	_, err := svc.CreatePolicy(context.Background(), admin.String(), CreatePolicyRequest{
		ActionType: model.ActionTypeGrantBenefit,
		Strategy:   model.StrategyCustomMinimum,
	})
	require.ErrorAs(t, err, &invalid)

	_, err = svc.CreatePolicy(context.Background(), admin.String(), CreatePolicyRequest{
		ActionType: model.ActionTypeGrantBenefit,
		Strategy:   model.StrategyHierarchical,
	})
	require.ErrorAs(t, err, &invalid)
}

func TestUpdatePolicy(t *testing.T) {
	svc, _, _, users, _ := newPolicyFixture(t)
	admin := users.addUser("admin", "admin")

	created, err := svc.CreatePolicy(context.Background(), admin.String(), CreatePolicyRequest{
		ActionType: model.ActionTypeCloseCaseRecord,
		Strategy:   model.StrategySimple,
	})
	require.NoError(t, err)

	inactive := false
	updated, err := svc.UpdatePolicy(context.Background(), created.ID, admin.String(), UpdatePolicyRequest{
		Active: &inactive,
	})
	require.NoError(t, err)
	assert.False(t, updated.Active)

	_, err = svc.UpdatePolicy(context.Background(), uuid.NewString(), admin.String(), UpdatePolicyRequest{})
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestAddAndRemoveApprover(t *testing.T) {
	svc, _, approvers, users, _ := newPolicyFixture(t)
	admin := users.addUser("admin", "admin")
	gestor := users.addUser("joao.gestor", "gestor")

	_, err := svc.CreatePolicy(context.Background(), admin.String(), CreatePolicyRequest{
		ActionType: model.ActionTypeReleasePayment,
		Strategy:   model.StrategySimple,
	})
	require.NoError(t, err)

	added, err := svc.AddApprover(context.Background(), model.ActionTypeReleasePayment, admin.String(), AddApproverRequest{
		UserID: gestor.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "joao.gestor", added.Username)
	assert.Equal(t, 1, added.Tier, "tier floors at 1")

	// Unknown action types have no policy to attach to.
	_, err = svc.AddApprover(context.Background(), "UNKNOWN_ACTION", admin.String(), AddApproverRequest{
		UserID: gestor.String(),
	})
	assert.ErrorIs(t, err, ErrPolicyNotFound)

	require.NoError(t, svc.RemoveApprover(context.Background(), added.ID))
	active, err := approvers.ListActiveByActionType(context.Background(), model.ActionTypeReleasePayment)
	require.NoError(t, err)
	assert.Empty(t, active, "removed approvers are deactivated, not deleted")
}
