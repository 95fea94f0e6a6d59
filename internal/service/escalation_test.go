package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schedulerFixture struct {
	scheduler *EscalationScheduler
	requests  *fakeRequestRepo
	policies  *fakePolicyRepo
	users     *fakeUserRepo
	history   *fakeHistoryRepo
	audit     *fakeAuditRepo
	notifier  *recordingNotifier
}

func newSchedulerFixture(t *testing.T, cfg EscalationConfig) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		requests: newFakeRequestRepo(),
		policies: newFakePolicyRepo(),
		users:    newFakeUserRepo(),
		history:  &fakeHistoryRepo{},
		audit:    &fakeAuditRepo{},
		notifier: &recordingNotifier{},
	}
	f.scheduler = NewEscalationScheduler(
		cfg,
		fakeTxManager{},
		f.requests,
		f.policies,
		f.users,
		f.history,
		f.audit,
		f.notifier,
	)
	return f
}

// seedRequest plants a PENDING request with one undecided slot per approver.
func (f *schedulerFixture) seedRequest(t *testing.T, actionType string, deadline time.Time, approvers ...uuid.UUID) *model.ApprovalRequest {
	t.Helper()

	req := &model.ApprovalRequest{
		Code:              "APR-20260831-00042",
		ActionType:        actionType,
		Status:            model.StatusPending,
		RequesterID:       uuid.New(),
		Payload:           `{}`,
		Fingerprint:       PayloadFingerprint(`{}`),
		RequiredApprovals: 1,
		ExecutionStatus:   model.ExecutionNone,
		Deadline:          &deadline,
	}
	slots := make([]model.ApproverDecision, 0, len(approvers))
	for _, a := range approvers {
		slots = append(slots, model.ApproverDecision{ApproverID: a, Tier: 1})
	}
	require.NoError(t, f.requests.Create(context.Background(), req, slots))
	return req
}

func TestSweepExpiresOverdueRequest(t *testing.T) {
	f := newSchedulerFixture(t, DefaultEscalationConfig())
	f.policies.Create(context.Background(), &model.ActionPolicy{
		ActionType: model.ActionTypeReleasePayment,
		Strategy:   model.StrategySimple,
		Active:     true,
	})
	req := f.seedRequest(t, model.ActionTypeReleasePayment, time.Now().Add(-time.Hour), uuid.New())

	require.NoError(t, f.scheduler.Sweep(context.Background()))

	got, err := f.requests.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
	assert.Equal(t, []string{model.HistoryExpire}, f.history.actions(req.ID))
	assert.Equal(t, 1, f.notifier.terminal)

	// Expired requests leave the scan set; a second sweep is a no-op.
	require.NoError(t, f.scheduler.Sweep(context.Background()))
	assert.Equal(t, []string{model.HistoryExpire}, f.history.actions(req.ID))
	assert.Equal(t, 1, f.notifier.terminal)
}

func TestSweepEscalatesHierarchicalRequest(t *testing.T) {
	cfg := DefaultEscalationConfig()
	cfg.DeadlineExtension = 24 * time.Hour
	cfg.MaxEscalations = 1
	f := newSchedulerFixture(t, cfg)

	f.policies.Create(context.Background(), &model.ActionPolicy{
		ActionType:     model.ActionTypeGrantBenefit,
		Strategy:       model.StrategyHierarchical,
		EscalationRole: "coordenador",
		Active:         true,
	})
	coordinator := f.users.addUser("rui.coordenador", "coordenador")
	originalApprover := uuid.New()
	req := f.seedRequest(t, model.ActionTypeGrantBenefit, time.Now().Add(-time.Hour), originalApprover)

	require.NoError(t, f.scheduler.Sweep(context.Background()))

	got, err := f.requests.FindByIDWithRelations(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status, "escalation keeps the request open")
	assert.Equal(t, 1, got.EscalationLevel)
	assert.True(t, got.Deadline.After(time.Now()), "deadline was extended")

	require.Len(t, got.Decisions, 1)
	require.NotNil(t, got.Decisions[0].DelegateID)
	assert.Equal(t, coordinator, *got.Decisions[0].DelegateID)
	assert.Equal(t, originalApprover, got.Decisions[0].ApproverID, "the original slot owner is preserved")

	assert.Equal(t, []string{model.HistoryEscalate}, f.history.actions(req.ID))
	assert.Equal(t, []string{"coordenador"}, f.notifier.escalated)
}

func TestSweepExpiresAfterMaxEscalations(t *testing.T) {
	cfg := DefaultEscalationConfig()
	cfg.MaxEscalations = 1
	f := newSchedulerFixture(t, cfg)

	f.policies.Create(context.Background(), &model.ActionPolicy{
		ActionType:     model.ActionTypeGrantBenefit,
		Strategy:       model.StrategyHierarchical,
		EscalationRole: "coordenador",
		Active:         true,
	})
	f.users.addUser("rui.coordenador", "coordenador")
	req := f.seedRequest(t, model.ActionTypeGrantBenefit, time.Now().Add(-time.Hour), uuid.New())

	// First sweep escalates, then the extended deadline lapses too.
	require.NoError(t, f.scheduler.Sweep(context.Background()))
	past := time.Now().Add(-time.Minute)
	f.requests.requests[req.ID].Deadline = &past

	require.NoError(t, f.scheduler.Sweep(context.Background()))

	got, err := f.requests.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
	assert.Equal(t, []string{model.HistoryEscalate, model.HistoryExpire}, f.history.actions(req.ID))
}

func TestSweepExpiresWhenEscalationRoleIsEmptyOfUsers(t *testing.T) {
	f := newSchedulerFixture(t, DefaultEscalationConfig())
	f.policies.Create(context.Background(), &model.ActionPolicy{
		ActionType:     model.ActionTypeGrantBenefit,
		Strategy:       model.StrategyHierarchical,
		EscalationRole: "coordenador",
		Active:         true,
	})
	req := f.seedRequest(t, model.ActionTypeGrantBenefit, time.Now().Add(-time.Hour), uuid.New())

	require.NoError(t, f.scheduler.Sweep(context.Background()))

	got, err := f.requests.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status, "no escalation target means expiry")
}

func TestSweepSkipsDecidedSlotsOnEscalation(t *testing.T) {
	cfg := DefaultEscalationConfig()
	f := newSchedulerFixture(t, cfg)

	f.policies.Create(context.Background(), &model.ActionPolicy{
		ActionType:     model.ActionTypeCloseCaseRecord,
		Strategy:       model.StrategyHierarchical,
		EscalationRole: "coordenador",
		Active:         true,
	})
	f.users.addUser("rui.coordenador", "coordenador")

	decided := uuid.New()
	undecided := uuid.New()
	req := f.seedRequest(t, model.ActionTypeCloseCaseRecord, time.Now().Add(-time.Hour), decided, undecided)

	// One approver already rejected before the deadline hit.
	for _, slot := range f.requests.slots {
		if slot.RequestID == req.ID && slot.ApproverID == decided {
			_, err := f.requests.MarkDecided(context.Background(), slot.ID, false, "", decided, time.Now())
			require.NoError(t, err)
		}
	}

	require.NoError(t, f.scheduler.Sweep(context.Background()))

	got, err := f.requests.FindByIDWithRelations(context.Background(), req.ID)
	require.NoError(t, err)
	for _, slot := range got.Decisions {
		if slot.ApproverID == decided {
			assert.Nil(t, slot.DelegateID, "decided slots are not reassigned")
		} else {
			assert.NotNil(t, slot.DelegateID)
		}
	}
}

func TestSweepWarnsApproachingDeadlineOnce(t *testing.T) {
	cfg := DefaultEscalationConfig()
	cfg.WarningWindow = 2 * time.Hour
	f := newSchedulerFixture(t, cfg)

	f.policies.Create(context.Background(), &model.ActionPolicy{
		ActionType: model.ActionTypeReleasePayment,
		Strategy:   model.StrategySimple,
		Active:     true,
	})
	f.seedRequest(t, model.ActionTypeReleasePayment, time.Now().Add(time.Hour), uuid.New())

	require.NoError(t, f.scheduler.Sweep(context.Background()))
	assert.Equal(t, 1, f.notifier.approaching)

	require.NoError(t, f.scheduler.Sweep(context.Background()))
	assert.Equal(t, 1, f.notifier.approaching, "warning fires at most once per deadline")
}

func TestApplyEscalationIsLevelGuarded(t *testing.T) {
	f := newSchedulerFixture(t, DefaultEscalationConfig())
	req := f.seedRequest(t, model.ActionTypeGrantBenefit, time.Now().Add(-time.Hour), uuid.New())

	newDeadline := time.Now().Add(24 * time.Hour)
	applied, err := f.requests.ApplyEscalation(context.Background(), req.ID, 0, newDeadline)
	require.NoError(t, err)
	assert.True(t, applied)

	// A second writer that scanned the request at level 0 loses the race.
	applied, err = f.requests.ApplyEscalation(context.Background(), req.ID, 0, newDeadline)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := f.requests.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EscalationLevel)
}
