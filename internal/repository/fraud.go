package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

const fraudRuleColumns = `id, name, type, field, operator, value, severity,
	auto_block, require_approval, escalation_threshold, trigger_count,
	false_positive_count, last_triggered, is_active, created_at, updated_at`

const fraudAlertColumns = `id, rule_id, customer_id, transaction_id, message, severity,
	is_resolved, false_positive, resolved_by, resolved_at, created_at`

type FraudRepository struct {
	db *sql.DB
}

func NewFraudRepository(db *sql.DB) *FraudRepository {
	return &FraudRepository{db: db}
}

func (r *FraudRepository) ActiveRules(ctx context.Context, q Querier) ([]domain.FraudRule, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+fraudRuleColumns+` FROM fraud_rules WHERE is_active ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("ActiveRules: %w", err)
	}
	defer rows.Close()

	var rules []domain.FraudRule
	for rows.Next() {
		rule, err := scanFraudRule(rows)
		if err != nil {
			return nil, fmt.Errorf("ActiveRules: scan: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ActiveRules: rows: %w", err)
	}
	return rules, nil
}

func (r *FraudRepository) GetRule(ctx context.Context, id uuid.UUID) (*domain.FraudRule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+fraudRuleColumns+` FROM fraud_rules WHERE id = $1`, id)
	rule, err := scanFraudRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetRule: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetRule: %w", err)
	}
	return rule, nil
}

// UpsertRule creates a rule or replaces its definition by name. Counters are
// preserved, and so is the activation state of an existing rule unless
// applyActive is set. rule.IsActive is updated to the stored value.
func (r *FraudRepository) UpsertRule(ctx context.Context, rule *domain.FraudRule, applyActive bool) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO fraud_rules (
			id, name, type, field, operator, value, severity,
			auto_block, require_approval, escalation_threshold, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (name) DO UPDATE SET
			type = EXCLUDED.type, field = EXCLUDED.field, operator = EXCLUDED.operator,
			value = EXCLUDED.value, severity = EXCLUDED.severity, auto_block = EXCLUDED.auto_block,
			require_approval = EXCLUDED.require_approval,
			escalation_threshold = EXCLUDED.escalation_threshold,
			is_active = CASE WHEN $13::boolean THEN EXCLUDED.is_active ELSE fraud_rules.is_active END,
			updated_at = EXCLUDED.updated_at
		RETURNING id, is_active`,
		rule.ID, rule.Name, rule.Type, rule.Field, rule.Operator, rule.Value, rule.Severity,
		rule.AutoBlock, rule.RequireApproval, rule.EscalationThreshold, rule.IsActive, rule.CreatedAt,
		applyActive,
	).Scan(&rule.ID, &rule.IsActive)
	if err != nil {
		return fmt.Errorf("UpsertRule: %w", err)
	}
	return nil
}

func (r *FraudRepository) SetRuleActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE fraud_rules SET is_active = $1, updated_at = now() WHERE id = $2`, active, id,
	)
	if err != nil {
		return fmt.Errorf("SetRuleActive: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetRuleActive: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SetRuleActive: %w", domain.ErrNotFound)
	}
	return nil
}

// RecordTrigger increments the rule counter in a single statement so
// concurrent evaluations never lose an update.
func (r *FraudRepository) RecordTrigger(ctx context.Context, q Querier, ruleID uuid.UUID, at time.Time) (int64, error) {
	var count int64
	err := q.QueryRowContext(ctx,
		`UPDATE fraud_rules SET trigger_count = trigger_count + 1, last_triggered = $1
		WHERE id = $2 RETURNING trigger_count`,
		at, ruleID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("RecordTrigger: %w", err)
	}
	return count, nil
}

func (r *FraudRepository) RecordFalsePositive(ctx context.Context, q Querier, ruleID uuid.UUID) error {
	_, err := q.ExecContext(ctx,
		`UPDATE fraud_rules SET false_positive_count = false_positive_count + 1 WHERE id = $1`, ruleID,
	)
	if err != nil {
		return fmt.Errorf("RecordFalsePositive: %w", err)
	}
	return nil
}

// CreateAlert inserts an alert unless one already exists for the same rule
// and transaction. It reports whether a row was written.
func (r *FraudRepository) CreateAlert(ctx context.Context, q Querier, a *domain.FraudAlert) (bool, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO fraud_alerts (`+fraudAlertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (rule_id, transaction_id) DO NOTHING`,
		a.ID, a.RuleID, a.CustomerID, a.TransactionID, a.Message, a.Severity,
		a.IsResolved, a.FalsePositive, a.ResolvedBy, a.ResolvedAt, a.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("CreateAlert: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("CreateAlert: rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *FraudRepository) CountOpenAlerts(ctx context.Context, q Querier, customerID, ruleID uuid.UUID) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fraud_alerts
		WHERE customer_id = $1 AND rule_id = $2 AND NOT is_resolved`,
		customerID, ruleID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountOpenAlerts: %w", err)
	}
	return n, nil
}

func (r *FraudRepository) GetAlertForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.FraudAlert, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+fraudAlertColumns+` FROM fraud_alerts WHERE id = $1 FOR UPDATE`, id)
	a, err := scanFraudAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetAlertForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetAlertForUpdate: %w", err)
	}
	return a, nil
}

func (r *FraudRepository) ResolveAlert(ctx context.Context, tx *sql.Tx, a *domain.FraudAlert) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE fraud_alerts SET is_resolved = TRUE, false_positive = $1, resolved_by = $2, resolved_at = $3
		WHERE id = $4`,
		a.FalsePositive, a.ResolvedBy, a.ResolvedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("ResolveAlert: %w", err)
	}
	return nil
}

type AlertFilter struct {
	CustomerID    *uuid.UUID
	TransactionID *uuid.UUID
	OpenOnly      bool
	Limit         int
}

func (r *FraudRepository) ListAlerts(ctx context.Context, f AlertFilter) ([]domain.FraudAlert, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fraudAlertColumns+` FROM fraud_alerts
		WHERE ($1::uuid IS NULL OR customer_id = $1)
			AND ($2::uuid IS NULL OR transaction_id = $2)
			AND (NOT $3 OR NOT is_resolved)
		ORDER BY created_at DESC LIMIT $4`,
		f.CustomerID, f.TransactionID, f.OpenOnly, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListAlerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.FraudAlert
	for rows.Next() {
		a, err := scanFraudAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAlerts: scan: %w", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAlerts: rows: %w", err)
	}
	return alerts, nil
}

func scanFraudRule(s scanner) (*domain.FraudRule, error) {
	var r domain.FraudRule
	err := s.Scan(
		&r.ID, &r.Name, &r.Type, &r.Field, &r.Operator, &r.Value, &r.Severity,
		&r.AutoBlock, &r.RequireApproval, &r.EscalationThreshold, &r.TriggerCount,
		&r.FalsePositiveCount, &r.LastTriggered, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanFraudAlert(s scanner) (*domain.FraudAlert, error) {
	var a domain.FraudAlert
	err := s.Scan(
		&a.ID, &a.RuleID, &a.CustomerID, &a.TransactionID, &a.Message, &a.Severity,
		&a.IsResolved, &a.FalsePositive, &a.ResolvedBy, &a.ResolvedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
