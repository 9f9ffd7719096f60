package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/repository"
)

type fakeRules struct {
	rules    []domain.FraudRule
	open     map[uuid.UUID]int
	alerts   map[string]bool
	triggers map[uuid.UUID]int64
}

func newFakeRules(rules ...domain.FraudRule) *fakeRules {
	return &fakeRules{
		rules:    rules,
		open:     map[uuid.UUID]int{},
		alerts:   map[string]bool{},
		triggers: map[uuid.UUID]int64{},
	}
}

func (f *fakeRules) ActiveRules(context.Context, repository.Querier) ([]domain.FraudRule, error) {
	return f.rules, nil
}

func (f *fakeRules) CountOpenAlerts(_ context.Context, _ repository.Querier, _ uuid.UUID, ruleID uuid.UUID) (int, error) {
	return f.open[ruleID], nil
}

func (f *fakeRules) CreateAlert(_ context.Context, _ repository.Querier, a *domain.FraudAlert) (bool, error) {
	k := a.RuleID.String() + a.TransactionID.String()
	if f.alerts[k] {
		return false, nil
	}
	f.alerts[k] = true
	return true, nil
}

func (f *fakeRules) RecordTrigger(_ context.Context, _ repository.Querier, ruleID uuid.UUID, _ time.Time) (int64, error) {
	f.triggers[ruleID]++
	return f.triggers[ruleID], nil
}

type fakeActivity struct {
	count, sum int64
	last       *time.Time
}

func (f fakeActivity) Activity(context.Context, repository.Querier, uuid.UUID, time.Time, time.Time, uuid.UUID) (int64, int64, error) {
	return f.count, f.sum, nil
}

func (f fakeActivity) LastActivity(context.Context, repository.Querier, uuid.UUID, time.Time, uuid.UUID) (*time.Time, error) {
	return f.last, nil
}

func seededRule(name string, typ domain.RuleType, field, op, value string, sev domain.Severity) domain.FraudRule {
	return domain.FraudRule{ID: uuid.New(), Name: name, Type: typ, Field: field, Operator: op, Value: value, Severity: sev, IsActive: true}
}

func testTxn(amount int64) *domain.Transaction {
	acct := uuid.New()
	return &domain.Transaction{
		ID:            uuid.New(),
		Type:          domain.TransactionTypeWithdrawal,
		FromAccountID: &acct,
		Amount:        amount,
		CreatedAt:     time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
}

func testSubject(txn *domain.Transaction) Subject {
	return Subject{
		Account:    &domain.Account{ID: txn.PrimaryAccountID(), CreatedAt: txn.CreatedAt.AddDate(-1, 0, 0)},
		CustomerID: uuid.New(),
	}
}

func TestEvaluate_AutoBlock(t *testing.T) {
	block := seededRule("large-cash", domain.RuleTypeAmountThreshold, "amount", "gt", "5000", domain.SeverityHigh)
	block.AutoBlock = true
	e := NewEngine(newFakeRules(block), fakeActivity{}, Options{})

	txn := testTxn(600000)
	v, err := e.Evaluate(context.Background(), nil, txn, testSubject(txn))
	require.NoError(t, err)

	assert.True(t, v.Block)
	assert.Equal(t, []string{"large-cash"}, v.Blockers)
	require.Len(t, v.Matches, 1)
	assert.Equal(t, domain.SeverityHigh, v.MaxSeverity)
}

func TestEvaluate_RequireApprovalDoesNotBlock(t *testing.T) {
	review := seededRule("review", domain.RuleTypeAmountThreshold, "amount", "gt", "1000", domain.SeverityMedium)
	review.RequireApproval = true
	e := NewEngine(newFakeRules(review), fakeActivity{}, Options{})

	txn := testTxn(120000)
	v, err := e.Evaluate(context.Background(), nil, txn, testSubject(txn))
	require.NoError(t, err)

	assert.False(t, v.Block)
	assert.True(t, v.RequireApproval)
}

func TestEvaluate_SeverityAtOrAboveBlockLevelBlocks(t *testing.T) {
	r := seededRule("high", domain.RuleTypeAmountThreshold, "amount", "gt", "100", domain.SeverityHigh)

	strict := NewEngine(newFakeRules(r), fakeActivity{}, Options{BlockSeverity: domain.SeverityHigh})
	txn := testTxn(20000)
	v, err := strict.Evaluate(context.Background(), nil, txn, testSubject(txn))
	require.NoError(t, err)
	assert.True(t, v.Block)

	lenient := NewEngine(newFakeRules(r), fakeActivity{}, Options{})
	v, err = lenient.Evaluate(context.Background(), nil, txn, testSubject(txn))
	require.NoError(t, err)
	assert.False(t, v.Block)
	assert.Len(t, v.Matches, 1)
}

func TestEvaluate_EscalatesOnRepeatedOpenAlerts(t *testing.T) {
	r := seededRule("repeat", domain.RuleTypeAmountThreshold, "amount", "gt", "100", domain.SeverityLow)
	r.EscalationThreshold = 3
	rules := newFakeRules(r)
	e := NewEngine(rules, fakeActivity{}, Options{})
	txn := testTxn(20000)

	rules.open[r.ID] = 1
	v, err := e.Evaluate(context.Background(), nil, txn, testSubject(txn))
	require.NoError(t, err)
	assert.False(t, v.Matches[0].Escalated)
	assert.False(t, v.RequireApproval)

	rules.open[r.ID] = 2
	v, err = e.Evaluate(context.Background(), nil, txn, testSubject(txn))
	require.NoError(t, err)
	assert.True(t, v.Matches[0].Escalated)
	assert.Equal(t, domain.SeverityCritical, v.MaxSeverity)
	assert.True(t, v.RequireApproval)
	assert.False(t, v.Block, "escalation forces review, not a block")
}

func TestEvaluate_VelocityIncludesCurrentTransaction(t *testing.T) {
	r := seededRule("burst", domain.RuleTypeVelocity, "transactions_24h", "gte", "3", domain.SeverityMedium)
	txn := testTxn(1000)

	e := NewEngine(newFakeRules(r), fakeActivity{count: 1, sum: 5000}, Options{})
	v, err := e.Evaluate(context.Background(), nil, txn, testSubject(txn))
	require.NoError(t, err)
	assert.Empty(t, v.Matches)

	e = NewEngine(newFakeRules(r), fakeActivity{count: 2, sum: 5000}, Options{})
	v, err = e.Evaluate(context.Background(), nil, txn, testSubject(txn))
	require.NoError(t, err)
	assert.Len(t, v.Matches, 1)
}

func TestEvaluate_SkipsInvalidRules(t *testing.T) {
	bad := seededRule("bad", domain.RuleTypeAmountThreshold, "amount", "gt", "not-a-number", domain.SeverityHigh)
	good := seededRule("good", domain.RuleTypeAmountThreshold, "amount", "gt", "1", domain.SeverityLow)
	e := NewEngine(newFakeRules(bad, good), fakeActivity{}, Options{})

	txn := testTxn(1000)
	v, err := e.Evaluate(context.Background(), nil, txn, testSubject(txn))
	require.NoError(t, err)
	require.Len(t, v.Matches, 1)
	assert.Equal(t, "good", v.Matches[0].Rule.Name)
}

func TestEvaluate_HourUsesConfiguredZone(t *testing.T) {
	r := seededRule("late", domain.RuleTypeTimeBased, "hour", "eq", "13", domain.SeverityLow)
	lagos, err := time.LoadLocation("Africa/Lagos")
	require.NoError(t, err)

	e := NewEngine(newFakeRules(r), fakeActivity{}, Options{Location: lagos})
	txn := testTxn(1000)
	v, err := e.Evaluate(context.Background(), nil, txn, testSubject(txn))
	require.NoError(t, err)
	assert.Len(t, v.Matches, 1)
}

func TestRecord_IsIdempotentPerRuleAndTransaction(t *testing.T) {
	r := seededRule("any", domain.RuleTypeAmountThreshold, "amount", "gt", "1", domain.SeverityLow)
	rules := newFakeRules(r)
	e := NewEngine(rules, fakeActivity{}, Options{})
	txn := testTxn(1000)
	subj := testSubject(txn)

	v, err := e.Evaluate(context.Background(), nil, txn, subj)
	require.NoError(t, err)

	created, err := e.Record(context.Background(), nil, txn, subj.CustomerID, v)
	require.NoError(t, err)
	assert.Len(t, created, 1)

	created, err = e.Record(context.Background(), nil, txn, subj.CustomerID, v)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Equal(t, int64(1), rules.triggers[r.ID])
}
