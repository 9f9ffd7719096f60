package fraud

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/audit"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/policy"
	"github.com/josh-kwaku/grey-ledger/internal/repository"
)

type staffRepo interface {
	GetRule(ctx context.Context, id uuid.UUID) (*domain.FraudRule, error)
	UpsertRule(ctx context.Context, rule *domain.FraudRule, applyActive bool) error
	SetRuleActive(ctx context.Context, id uuid.UUID, active bool) error
	GetAlertForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.FraudAlert, error)
	ResolveAlert(ctx context.Context, tx *sql.Tx, a *domain.FraudAlert) error
	RecordFalsePositive(ctx context.Context, q repository.Querier, ruleID uuid.UUID) error
	ListAlerts(ctx context.Context, f repository.AlertFilter) ([]domain.FraudAlert, error)
}

type auditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// Service holds the staff-facing operations on rules and alerts.
type Service struct {
	repo   staffRepo
	db     *sql.DB
	policy *policy.Policy
	audit  auditRecorder
}

func NewService(repo staffRepo, db *sql.DB, p *policy.Policy, rec auditRecorder) *Service {
	return &Service{repo: repo, db: db, policy: p, audit: rec}
}

func (s *Service) ResolveAlert(ctx context.Context, actor domain.Actor, alertID uuid.UUID, falsePositive bool) (*domain.FraudAlert, error) {
	if !s.policy.Can(actor.Role, policy.OpManageFraud) {
		return nil, fmt.Errorf("ResolveAlert: %w", domain.DenyPermission("role cannot resolve fraud alerts"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ResolveAlert: begin tx: %w", err)
	}
	defer tx.Rollback()

	alert, err := s.repo.GetAlertForUpdate(ctx, tx, alertID)
	if err != nil {
		return nil, fmt.Errorf("ResolveAlert: %w", err)
	}
	if alert.IsResolved {
		return nil, fmt.Errorf("ResolveAlert: alert already resolved: %w", domain.ErrInvalidState)
	}

	now := time.Now().UTC()
	alert.IsResolved = true
	alert.FalsePositive = falsePositive
	alert.ResolvedBy = &actor.ID
	alert.ResolvedAt = &now

	if err := s.repo.ResolveAlert(ctx, tx, alert); err != nil {
		return nil, fmt.Errorf("ResolveAlert: %w", err)
	}
	if falsePositive {
		if err := s.repo.RecordFalsePositive(ctx, tx, alert.RuleID); err != nil {
			return nil, fmt.Errorf("ResolveAlert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ResolveAlert: commit: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     domain.AuditActionResolve,
		EntityType: "fraud_alert",
		EntityID:   alert.ID.String(),
		Repr:       alert.Message,
		Changes: domain.ChangeSet{
			"is_resolved":    {Old: false, New: true},
			"false_positive": {Old: false, New: falsePositive},
		},
	})
	return alert, nil
}

func (s *Service) SetRuleActive(ctx context.Context, actor domain.Actor, ruleID uuid.UUID, active bool) (*domain.FraudRule, error) {
	if !s.policy.Can(actor.Role, policy.OpManageFraud) {
		return nil, fmt.Errorf("SetRuleActive: %w", domain.DenyPermission("role cannot manage fraud rules"))
	}

	rule, err := s.repo.GetRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("SetRuleActive: %w", err)
	}
	if rule.IsActive == active {
		return rule, nil
	}
	if err := s.repo.SetRuleActive(ctx, ruleID, active); err != nil {
		return nil, fmt.Errorf("SetRuleActive: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     domain.AuditActionUpdate,
		EntityType: "fraud_rule",
		EntityID:   rule.ID.String(),
		Repr:       rule.Name,
		Changes:    domain.ChangeSet{"is_active": {Old: rule.IsActive, New: active}},
	})
	rule.IsActive = active
	return rule, nil
}

type ImportOptions struct {
	// ApplyActive makes the catalogue's is_active overwrite the state of
	// existing rules. Without it, activation set by staff survives re-imports.
	ApplyActive bool
}

// ImportRules upserts a catalogue by rule name. Every rule is compiled
// first so a bad entry rejects the whole import.
func (s *Service) ImportRules(ctx context.Context, actor domain.Actor, rules []domain.FraudRule, opts ImportOptions) (int, error) {
	if !s.policy.Can(actor.Role, policy.OpManageFraud) {
		return 0, fmt.Errorf("ImportRules: %w", domain.DenyPermission("role cannot manage fraud rules"))
	}
	for _, r := range rules {
		if _, err := Compile(r); err != nil {
			return 0, fmt.Errorf("ImportRules: %w", err)
		}
	}

	now := time.Now().UTC()
	for i := range rules {
		r := &rules[i]
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		r.CreatedAt = now
		r.UpdatedAt = now
		if err := s.repo.UpsertRule(ctx, r, opts.ApplyActive); err != nil {
			return i, fmt.Errorf("ImportRules: %w", err)
		}
		s.audit.Record(ctx, audit.Entry{
			Actor:      actor,
			Action:     domain.AuditActionUpdate,
			EntityType: "fraud_rule",
			EntityID:   r.ID.String(),
			Repr:       r.Name,
			Changes: audit.Created(map[string]any{
				"type":             r.Type,
				"field":            r.Field,
				"operator":         r.Operator,
				"value":            r.Value,
				"severity":         r.Severity,
				"auto_block":       r.AutoBlock,
				"require_approval": r.RequireApproval,
				"is_active":        r.IsActive,
			}),
		})
	}
	return len(rules), nil
}

func (s *Service) ListAlerts(ctx context.Context, actor domain.Actor, f repository.AlertFilter) ([]domain.FraudAlert, error) {
	if !s.policy.Can(actor.Role, policy.OpManageFraud) && !s.policy.Can(actor.Role, policy.OpViewAudit) {
		return nil, fmt.Errorf("ListAlerts: %w", domain.DenyPermission("role cannot view fraud alerts"))
	}
	alerts, err := s.repo.ListAlerts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("ListAlerts: %w", err)
	}
	return alerts, nil
}
