package service

import (
	"context"
	"sync"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// In-memory repository fakes. They reproduce the conditional-update
// semantics of the Postgres implementations (RowsAffected checks, CAS on
// status and escalation level) so the engine's concurrency logic is
// observable without a database.

// txLocks collects advisory-style locks taken during one fake transaction;
// like pg_advisory_xact_lock, they release when the transaction ends.
type txLocks struct {
	mu   sync.Mutex
	held []*sync.Mutex
}

func (l *txLocks) add(m *sync.Mutex) {
	l.mu.Lock()
	l.held = append(l.held, m)
	l.mu.Unlock()
}

func (l *txLocks) release() {
	l.mu.Lock()
	for _, m := range l.held {
		m.Unlock()
	}
	l.held = nil
	l.mu.Unlock()
}

type txLocksKey struct{}

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	locks := &txLocks{}
	err := fn(context.WithValue(ctx, txLocksKey{}, locks))
	locks.release()
	return err
}

type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*model.ApprovalRequest
	slots    map[uuid.UUID]*model.ApproverDecision
	delegs   map[uuid.UUID]*model.DelegationRecord // keyed by decision id
	dupLocks map[string]*sync.Mutex
	seq      int
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{
		requests: make(map[uuid.UUID]*model.ApprovalRequest),
		slots:    make(map[uuid.UUID]*model.ApproverDecision),
		delegs:   make(map[uuid.UUID]*model.DelegationRecord),
		dupLocks: make(map[string]*sync.Mutex),
	}
}

func (f *fakeRequestRepo) Create(ctx context.Context, req *model.ApprovalRequest, slots []model.ApproverDecision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.CreatedAt = time.Now()
	cp := *req
	f.requests[req.ID] = &cp
	for i := range slots {
		slots[i].ID = uuid.New()
		slots[i].RequestID = req.ID
		slots[i].CreatedAt = time.Now()
		sc := slots[i]
		f.slots[sc.ID] = &sc
	}
	return nil
}

func (f *fakeRequestRepo) NextCode(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return time.Now().Format("APR-20060102-") + padSeq(f.seq), nil
}

func padSeq(n int) string {
	s := ""
	for d := 10000; d >= 1; d /= 10 {
		s += string(rune('0' + (n/d)%10))
	}
	return s
}

func (f *fakeRequestRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *req
	return &cp, nil
}

func (f *fakeRequestRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeRequestRepo) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *req
	cp.Decisions = nil
	for _, slot := range f.slots {
		if slot.RequestID == id {
			cp.Decisions = append(cp.Decisions, *slot)
		}
	}
	return &cp, nil
}

func (f *fakeRequestRepo) List(ctx context.Context, filter repository.RequestFilter) ([]model.ApprovalRequest, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ApprovalRequest
	for _, req := range f.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.ActionType != "" && req.ActionType != filter.ActionType {
			continue
		}
		out = append(out, *req)
	}
	return out, int64(len(out)), nil
}

func (f *fakeRequestRepo) FindActiveDuplicate(ctx context.Context, requesterID uuid.UUID, actionType, fingerprint string) (*model.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if req.RequesterID != requesterID || req.ActionType != actionType || req.Fingerprint != fingerprint {
			continue
		}
		if req.Status == model.StatusPending ||
			(req.Status == model.StatusApproved && req.ExecutionStatus != model.ExecutionDone) {
			cp := *req
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRequestRepo) ClaimDuplicateKey(ctx context.Context, requesterID uuid.UUID, actionType, fingerprint string) (*model.ApprovalRequest, error) {
	key := requesterID.String() + "|" + actionType + "|" + fingerprint
	f.mu.Lock()
	mtx, ok := f.dupLocks[key]
	if !ok {
		mtx = &sync.Mutex{}
		f.dupLocks[key] = mtx
	}
	f.mu.Unlock()

	mtx.Lock()
	if locks, ok := ctx.Value(txLocksKey{}).(*txLocks); ok {
		locks.add(mtx)
	} else {
		mtx.Unlock()
	}
	return f.FindActiveDuplicate(ctx, requesterID, actionType, fingerprint)
}

func (f *fakeRequestRepo) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, next string, actorID *uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok || req.Status != expected {
		return false, nil
	}
	req.Status = next
	req.ProcessedAt = &at
	if actorID != nil {
		req.ProcessedBy = actorID
	}
	if next == model.StatusApproved {
		req.ExecutionStatus = model.ExecutionPending
	}
	return true, nil
}

func (f *fakeRequestRepo) SetExecutionResult(ctx context.Context, id uuid.UUID, status, execErr string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.requests[id]; ok {
		req.ExecutionStatus = status
		req.ExecutionError = execErr
		req.ExecutedAt = &at
	}
	return nil
}

func (f *fakeRequestRepo) FindSlotForDecider(ctx context.Context, requestID, deciderID uuid.UUID) (*model.ApproverDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, slot := range f.slots {
		if slot.RequestID != requestID {
			continue
		}
		if (slot.ApproverID == deciderID && slot.DelegateID == nil) ||
			(slot.DelegateID != nil && *slot.DelegateID == deciderID) {
			cp := *slot
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRequestRepo) FindSlotForApprover(ctx context.Context, requestID, approverID uuid.UUID) (*model.ApproverDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, slot := range f.slots {
		if slot.RequestID == requestID && slot.ApproverID == approverID {
			cp := *slot
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRequestRepo) MarkDecided(ctx context.Context, slotID uuid.UUID, approved bool, comment string, decidedBy uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.slots[slotID]
	if !ok || slot.Approved != nil {
		return false, nil
	}
	slot.Approved = &approved
	slot.Comment = comment
	slot.DecidedBy = &decidedBy
	slot.DecidedAt = &at
	return true, nil
}

func (f *fakeRequestRepo) CountDecided(ctx context.Context, requestID uuid.UUID) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var approved, rejected int
	for _, slot := range f.slots {
		if slot.RequestID != requestID || slot.Approved == nil {
			continue
		}
		if *slot.Approved {
			approved++
		} else {
			rejected++
		}
	}
	return approved, rejected, nil
}

func (f *fakeRequestRepo) CountSlots(ctx context.Context, requestID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, slot := range f.slots {
		if slot.RequestID == requestID {
			total++
		}
	}
	return total, nil
}

func (f *fakeRequestRepo) SetSlotDelegate(ctx context.Context, slotID, delegateID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.slots[slotID]
	if !ok || slot.Approved != nil {
		return false, nil
	}
	d := delegateID
	slot.DelegateID = &d
	return true, nil
}

func (f *fakeRequestRepo) UpsertDelegation(ctx context.Context, rec *model.DelegationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.delegs[rec.DecisionID]; ok {
		existing.ToUserID = rec.ToUserID
		existing.Reason = rec.Reason
		return nil
	}
	cp := *rec
	cp.ID = uuid.New()
	f.delegs[rec.DecisionID] = &cp
	return nil
}

func (f *fakeRequestRepo) ListPastDeadline(ctx context.Context, now time.Time, limit int) ([]model.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ApprovalRequest
	for _, req := range f.requests {
		if req.Status == model.StatusPending && req.Deadline != nil && req.Deadline.Before(now) {
			out = append(out, *req)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) ListApproachingDeadline(ctx context.Context, now time.Time, window time.Duration, limit int) ([]model.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ApprovalRequest
	for _, req := range f.requests {
		if req.Status != model.StatusPending || req.DeadlineWarned || req.Deadline == nil {
			continue
		}
		if !req.Deadline.Before(now) && req.Deadline.Before(now.Add(window)) {
			out = append(out, *req)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) MarkDeadlineWarned(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.requests[id]; ok {
		req.DeadlineWarned = true
	}
	return nil
}

func (f *fakeRequestRepo) ApplyEscalation(ctx context.Context, id uuid.UUID, fromLevel int, newDeadline time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok || req.Status != model.StatusPending || req.EscalationLevel != fromLevel {
		return false, nil
	}
	req.EscalationLevel = fromLevel + 1
	d := newDeadline
	req.Deadline = &d
	req.DeadlineWarned = false
	return true, nil
}

type fakePolicyRepo struct {
	mu       sync.Mutex
	policies map[string]*model.ActionPolicy
}

func newFakePolicyRepo() *fakePolicyRepo {
	return &fakePolicyRepo{policies: make(map[string]*model.ActionPolicy)}
}

func (f *fakePolicyRepo) Create(ctx context.Context, policy *model.ActionPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}
	cp := *policy
	f.policies[policy.ActionType] = &cp
	return nil
}

func (f *fakePolicyRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.ActionPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.policies {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakePolicyRepo) FindByActionType(ctx context.Context, actionType string) (*model.ActionPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[actionType]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePolicyRepo) List(ctx context.Context, page, limit int) ([]model.ActionPolicy, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ActionPolicy
	for _, p := range f.policies {
		out = append(out, *p)
	}
	return out, int64(len(out)), nil
}

func (f *fakePolicyRepo) Update(ctx context.Context, policy *model.ActionPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *policy
	f.policies[policy.ActionType] = &cp
	return nil
}

type fakeApproverRepo struct {
	mu      sync.Mutex
	configs []model.ApproverConfig
}

func (f *fakeApproverRepo) Create(ctx context.Context, cfg *model.ApproverConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	f.configs = append(f.configs, *cfg)
	return nil
}

func (f *fakeApproverRepo) ListActiveByActionType(ctx context.Context, actionType string) ([]model.ApproverConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ApproverConfig
	for _, c := range f.configs {
		if c.ActionType == actionType && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeApproverRepo) ListByActionType(ctx context.Context, actionType string) ([]model.ApproverConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ApproverConfig
	for _, c := range f.configs {
		if c.ActionType == actionType {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeApproverRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.configs {
		if f.configs[i].ID == id {
			f.configs[i].Active = false
		}
	}
	return nil
}

type fakeUserRepo struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*model.User
	permsByRole map[string][]string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:       make(map[uuid.UUID]*model.User),
		permsByRole: make(map[string][]string),
	}
}

func (f *fakeUserRepo) addUser(username, role string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.users[id] = &model.User{ID: id, Username: username, Role: role}
	return id
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) ListByRole(ctx context.Context, role string) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) List(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, int64(len(out)), nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *model.User) error { return nil }
func (f *fakeUserRepo) Delete(ctx context.Context, id string) error        { return nil }

func (f *fakeUserRepo) PermissionCodesForRole(ctx context.Context, roleName string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permsByRole[roleName], nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []model.ApprovalHistory
}

func (f *fakeHistoryRepo) Append(ctx context.Context, entry *model.ApprovalHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeHistoryRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.ApprovalHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ApprovalHistory
	for _, e := range f.entries {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeHistoryRepo) actions(requestID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.entries {
		if e.RequestID == requestID {
			out = append(out, e.Action)
		}
	}
	return out
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func (f *fakeAuditRepo) Create(ctx context.Context, entry *model.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAuditRepo) List(ctx context.Context, page, limit int) ([]model.AuditLog, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AuditLog(nil), f.entries...), int64(len(f.entries)), nil
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeExecutor) Execute(ctx context.Context, req *model.ApprovalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu          sync.Mutex
	decision    int
	terminal    int
	escalated   []string
	approaching int
}

func (n *recordingNotifier) DecisionNeeded(req *model.ApprovalRequest, approverIDs []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decision++
}

func (n *recordingNotifier) TerminalState(req *model.ApprovalRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.terminal++
}

func (n *recordingNotifier) Escalated(req *model.ApprovalRequest, targetRole string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.escalated = append(n.escalated, targetRole)
}

func (n *recordingNotifier) DeadlineApproaching(req *model.ApprovalRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approaching++
}
