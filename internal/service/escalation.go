package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"gorm.io/gorm"
)

// EscalationConfig tunes the deadline scanner.
type EscalationConfig struct {
	Interval          time.Duration // how often to sweep
	BatchSize         int           // max requests handled per sweep
	DeadlineExtension time.Duration // how far a deadline moves on escalation
	MaxEscalations    int           // tiers before a request expires instead
	WarningWindow     time.Duration // deadline-approaching notification window
}

// DefaultEscalationConfig mirrors the production defaults.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		Interval:          time.Minute,
		BatchSize:         50,
		DeadlineExtension: 24 * time.Hour,
		MaxEscalations:    1,
		WarningWindow:     2 * time.Hour,
	}
}

// EscalationScheduler sweeps PENDING requests past their deadlines on a
// fixed interval, reassigning them to the policy's escalation target or
// expiring them. Every write is conditioned on the request still being
// PENDING so a racing decision always wins.
type EscalationScheduler struct {
	cfg         EscalationConfig
	txManager   repository.TransactionManager
	requestRepo repository.RequestRepository
	policyRepo  repository.PolicyRepository
	userRepo    repository.UserRepository
	historyRepo repository.HistoryRepository
	auditRepo   repository.AuditRepository
	notifier    Notifier
}

func NewEscalationScheduler(
	cfg EscalationConfig,
	txManager repository.TransactionManager,
	requestRepo repository.RequestRepository,
	policyRepo repository.PolicyRepository,
	userRepo repository.UserRepository,
	historyRepo repository.HistoryRepository,
	auditRepo repository.AuditRepository,
	notifier Notifier,
) *EscalationScheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &EscalationScheduler{
		cfg:         cfg,
		txManager:   txManager,
		requestRepo: requestRepo,
		policyRepo:  policyRepo,
		userRepo:    userRepo,
		historyRepo: historyRepo,
		auditRepo:   auditRepo,
		notifier:    notifier,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *EscalationScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.Printf("escalation scheduler started (interval %s, batch %d)", s.cfg.Interval, s.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			log.Println("escalation scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				log.Printf("escalation sweep failed: %v", err)
			}
		}
	}
}

// Sweep processes one bounded batch of overdue requests plus the
// deadline-approaching warnings. Exported so tests and admin tooling can
// trigger it directly.
func (s *EscalationScheduler) Sweep(ctx context.Context) error {
	now := time.Now()

	overdue, err := s.requestRepo.ListPastDeadline(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to scan overdue requests: %w", err)
	}

	for i := range overdue {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.handleOverdue(ctx, &overdue[i], now); err != nil {
			log.Printf("failed to process overdue request %s: %v", overdue[i].Code, err)
		}
	}

	return s.warnApproaching(ctx, now)
}

func (s *EscalationScheduler) handleOverdue(ctx context.Context, req *model.ApprovalRequest, now time.Time) error {
	policy, err := s.policyRepo.FindByActionType(ctx, req.ActionType)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	canEscalate := policy != nil &&
		policy.Strategy == model.StrategyHierarchical &&
		policy.EscalationRole != "" &&
		req.EscalationLevel < s.cfg.MaxEscalations

	if canEscalate {
		return s.escalate(ctx, req, policy, now)
	}
	return s.expire(ctx, req, now)
}

// escalate reassigns all undecided slots to approvers holding the policy's
// escalation role and extends the deadline. The level check in
// ApplyEscalation makes repeated scans of the same request idempotent.
func (s *EscalationScheduler) escalate(ctx context.Context, req *model.ApprovalRequest, policy *model.ActionPolicy, now time.Time) error {
	targets, err := s.userRepo.ListByRole(ctx, policy.EscalationRole)
	if err != nil {
		return fmt.Errorf("failed to resolve escalation role %q: %w", policy.EscalationRole, err)
	}
	if len(targets) == 0 {
		log.Printf("no users hold escalation role %q, expiring request %s", policy.EscalationRole, req.Code)
		return s.expire(ctx, req, now)
	}

	var escalated bool
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		newDeadline := now.Add(s.cfg.DeadlineExtension)
		applied, applyErr := s.requestRepo.ApplyEscalation(txCtx, req.ID, req.EscalationLevel, newDeadline)
		if applyErr != nil {
			return applyErr
		}
		if !applied {
			// decided, cancelled or escalated by someone else between the
			// scan and this write
			return nil
		}
		escalated = true

		current, findErr := s.requestRepo.FindByIDWithRelations(txCtx, req.ID)
		if findErr != nil {
			return findErr
		}
		target := 0
		for _, slot := range current.Decisions {
			if slot.Approved != nil {
				continue
			}
			to := targets[target%len(targets)]
			target++
			if to.ID == slot.ApproverID {
				continue
			}
			if _, moveErr := s.requestRepo.SetSlotDelegate(txCtx, slot.ID, to.ID); moveErr != nil {
				return moveErr
			}
			rec := &model.DelegationRecord{
				DecisionID: slot.ID,
				FromUserID: slot.ApproverID,
				ToUserID:   to.ID,
				Tier:       slot.Tier,
				Reason:     "deadline escalation to " + policy.EscalationRole,
			}
			if upsertErr := s.requestRepo.UpsertDelegation(txCtx, rec); upsertErr != nil {
				return upsertErr
			}
		}

		return s.appendHistory(txCtx, req, model.HistoryEscalate, map[string]interface{}{
			"escalation_role": policy.EscalationRole,
			"level":           req.EscalationLevel + 1,
			"new_deadline":    newDeadline.Format(time.RFC3339),
		})
	})
	if err != nil {
		return err
	}

	if escalated {
		s.notifier.Escalated(req, policy.EscalationRole)
	}
	return nil
}

// expire terminalizes an overdue request with no further escalation tier.
// The status CAS keeps this safe against concurrent decisions and repeated
// scans: only the sweep that wins the PENDING->EXPIRED edge writes history.
func (s *EscalationScheduler) expire(ctx context.Context, req *model.ApprovalRequest, now time.Time) error {
	var expired bool
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		won, casErr := s.requestRepo.UpdateStatusIf(txCtx, req.ID, model.StatusPending, model.StatusExpired, nil, now)
		if casErr != nil {
			return casErr
		}
		if !won {
			return nil
		}
		expired = true
		return s.appendHistory(txCtx, req, model.HistoryExpire, map[string]interface{}{
			"deadline": req.Deadline.Format(time.RFC3339),
		})
	})
	if err != nil {
		return err
	}

	if expired {
		req.Status = model.StatusExpired
		s.notifier.TerminalState(req)
	}
	return nil
}

// warnApproaching emits best-effort deadline-approaching notifications,
// at most once per deadline.
func (s *EscalationScheduler) warnApproaching(ctx context.Context, now time.Time) error {
	approaching, err := s.requestRepo.ListApproachingDeadline(ctx, now, s.cfg.WarningWindow, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to scan approaching deadlines: %w", err)
	}

	for i := range approaching {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req := &approaching[i]
		if err := s.requestRepo.MarkDeadlineWarned(ctx, req.ID); err != nil {
			log.Printf("failed to mark deadline warning for %s: %v", req.Code, err)
			continue
		}
		s.notifier.DeadlineApproaching(req)
	}
	return nil
}

// appendHistory mirrors the engine's history+audit forwarding for
// scheduler-initiated entries (no human actor).
func (s *EscalationScheduler) appendHistory(ctx context.Context, req *model.ApprovalRequest, action string, metadata map[string]interface{}) error {
	encoded, _ := json.Marshal(metadata)
	entry := &model.ApprovalHistory{
		RequestID: req.ID,
		Action:    action,
		Metadata:  string(encoded),
	}
	if err := s.historyRepo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to write history entry: %w", err)
	}

	audit := &model.AuditLog{
		Action:     auditActionFor(action),
		EntityID:   req.ID.String(),
		EntityName: req.Code,
		Details:    string(encoded),
	}
	if err := s.auditRepo.Create(ctx, audit); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
