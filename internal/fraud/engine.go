// Package fraud screens transactions against configurable rules.
package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
	"github.com/josh-kwaku/grey-ledger/internal/repository"
)

const window = 24 * time.Hour

type ruleRepo interface {
	ActiveRules(ctx context.Context, q repository.Querier) ([]domain.FraudRule, error)
	CountOpenAlerts(ctx context.Context, q repository.Querier, customerID, ruleID uuid.UUID) (int, error)
	CreateAlert(ctx context.Context, q repository.Querier, a *domain.FraudAlert) (bool, error)
	RecordTrigger(ctx context.Context, q repository.Querier, ruleID uuid.UUID, at time.Time) (int64, error)
}

type activityRepo interface {
	Activity(ctx context.Context, q repository.Querier, accountID uuid.UUID, since, until time.Time, excludeID uuid.UUID) (int64, int64, error)
	LastActivity(ctx context.Context, q repository.Querier, accountID uuid.UUID, before time.Time, excludeID uuid.UUID) (*time.Time, error)
}

// Facts are the values rule conditions are evaluated against.
type Facts struct {
	Amount                int64
	Amount24h             int64
	Transactions24h       int64
	Country               string
	Hour                  int
	AccountAgeDays        int64
	DaysSinceLastActivity int64
}

// Subject identifies whose activity a transaction is judged by.
type Subject struct {
	Account    *domain.Account
	CustomerID uuid.UUID
}

type Match struct {
	Rule      domain.FraudRule
	Severity  domain.Severity
	Escalated bool
	Message   string
}

type Verdict struct {
	Matches         []Match
	MaxSeverity     domain.Severity
	Block           bool
	RequireApproval bool
	// Blockers names the rules that caused Block.
	Blockers []string
}

type Options struct {
	BlockSeverity domain.Severity
	Location      *time.Location
}

type Engine struct {
	rules    ruleRepo
	activity activityRepo
	opts     Options
}

func NewEngine(rules ruleRepo, activity activityRepo, opts Options) *Engine {
	if !opts.BlockSeverity.IsValid() {
		opts.BlockSeverity = domain.SeverityCritical
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Engine{rules: rules, activity: activity, opts: opts}
}

// Evaluate matches txn against every active rule. It only reads, so the
// caller decides whether the verdict blocks, parks or completes the
// transaction before anything is recorded. q is normally the caller's
// transaction so the velocity facts see the same snapshot as the balance
// check.
func (e *Engine) Evaluate(ctx context.Context, q repository.Querier, txn *domain.Transaction, subj Subject) (*Verdict, error) {
	rules, err := e.loadRules(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("Evaluate: %w", err)
	}

	verdict := &Verdict{}
	if len(rules) == 0 {
		return verdict, nil
	}

	facts, err := e.facts(ctx, q, txn, subj.Account)
	if err != nil {
		return nil, fmt.Errorf("Evaluate: %w", err)
	}

	for _, cr := range rules {
		if !cr.Cond.Matches(facts) {
			continue
		}

		m := Match{
			Rule:     cr.Rule,
			Severity: cr.Rule.Severity,
			Message:  fmt.Sprintf("%s: %s", cr.Rule.Name, cr.Cond.Describe(facts)),
		}

		if cr.Rule.EscalationThreshold > 0 {
			open, err := e.rules.CountOpenAlerts(ctx, q, subj.CustomerID, cr.Rule.ID)
			if err != nil {
				return nil, fmt.Errorf("Evaluate: %w", err)
			}
			if open+1 >= cr.Rule.EscalationThreshold {
				m.Severity = domain.SeverityCritical
				m.Escalated = true
				m.Message += fmt.Sprintf(" (escalated after %d unresolved alerts)", open)
			}
		}

		if m.Severity.Rank() > verdict.MaxSeverity.Rank() {
			verdict.MaxSeverity = m.Severity
		}
		// Escalation forces review; only the configured severity can block.
		if cr.Rule.AutoBlock || cr.Rule.Severity.Rank() >= e.opts.BlockSeverity.Rank() {
			verdict.Block = true
			verdict.Blockers = append(verdict.Blockers, cr.Rule.Name)
		}
		if cr.Rule.RequireApproval || m.Escalated {
			verdict.RequireApproval = true
		}
		verdict.Matches = append(verdict.Matches, m)
	}

	return verdict, nil
}

// Record persists one alert per match and bumps the matching rule counters.
// Alerts are unique per rule and transaction, so recording the same verdict
// twice leaves both alerts and counters unchanged. It returns only the
// alerts written by this call.
func (e *Engine) Record(ctx context.Context, q repository.Querier, txn *domain.Transaction, customerID uuid.UUID, v *Verdict) ([]domain.FraudAlert, error) {
	if v == nil || len(v.Matches) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	txnID := txn.ID
	var created []domain.FraudAlert

	for _, m := range v.Matches {
		alert := domain.FraudAlert{
			ID:            uuid.New(),
			RuleID:        m.Rule.ID,
			CustomerID:    customerID,
			TransactionID: &txnID,
			Message:       m.Message,
			Severity:      m.Severity,
			CreatedAt:     now,
		}
		inserted, err := e.rules.CreateAlert(ctx, q, &alert)
		if err != nil {
			return created, fmt.Errorf("Record: %w", err)
		}
		if !inserted {
			continue
		}
		if _, err := e.rules.RecordTrigger(ctx, q, m.Rule.ID, now); err != nil {
			return created, fmt.Errorf("Record: %w", err)
		}
		created = append(created, alert)
	}

	if len(created) > 0 {
		logging.FromContext(ctx).Warn("fraud alerts raised",
			"transaction_id", txn.ID,
			"alerts", len(created),
			"max_severity", v.MaxSeverity,
			"blocked", v.Block,
		)
	}
	return created, nil
}

func (e *Engine) loadRules(ctx context.Context, q repository.Querier) ([]*CompiledRule, error) {
	stored, err := e.rules.ActiveRules(ctx, q)
	if err != nil {
		return nil, err
	}
	compiled := make([]*CompiledRule, 0, len(stored))
	for _, r := range stored {
		cr, err := Compile(r)
		if err != nil {
			logging.FromContext(ctx).Warn("skipping invalid fraud rule",
				slog.String("rule", r.Name),
				slog.Any("error", err),
			)
			continue
		}
		compiled = append(compiled, cr)
	}
	return compiled, nil
}

func (e *Engine) facts(ctx context.Context, q repository.Querier, txn *domain.Transaction, acct *domain.Account) (Facts, error) {
	at := txn.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	f := Facts{
		Amount:          txn.Amount,
		Amount24h:       txn.Amount,
		Transactions24h: 1,
		Hour:            at.In(e.opts.Location).Hour(),
	}
	if txn.OriginCountry != nil {
		f.Country = *txn.OriginCountry
	}
	if acct == nil {
		return f, nil
	}

	count, sum, err := e.activity.Activity(ctx, q, acct.ID, at.Add(-window), at, txn.ID)
	if err != nil {
		return f, err
	}
	f.Transactions24h += count
	f.Amount24h += sum

	f.AccountAgeDays = days(at.Sub(acct.CreatedAt))

	last, err := e.activity.LastActivity(ctx, q, acct.ID, at, txn.ID)
	if err != nil {
		return f, err
	}
	if last != nil {
		f.DaysSinceLastActivity = days(at.Sub(*last))
	} else {
		f.DaysSinceLastActivity = f.AccountAgeDays
	}
	return f, nil
}

func days(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / (24 * time.Hour))
}
