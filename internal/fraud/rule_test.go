package fraud

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

func rule(typ domain.RuleType, field, op, value string) domain.FraudRule {
	return domain.FraudRule{Name: "r", Type: typ, Field: field, Operator: op, Value: value, Severity: domain.SeverityHigh}
}

func TestCompile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		rule domain.FraudRule
	}{
		{"unknown type", rule("weather", "amount", "gt", "1")},
		{"field not valid for type", rule(domain.RuleTypeAmountThreshold, "country", "gt", "1")},
		{"unknown operator", rule(domain.RuleTypeAmountThreshold, "amount", "approx", "1")},
		{"between needs two", rule(domain.RuleTypeAmountThreshold, "amount", "between", "1")},
		{"gt needs one", rule(domain.RuleTypeAmountThreshold, "amount", "gt", "1,2")},
		{"bad amount", rule(domain.RuleTypeAmountThreshold, "amount", "gt", "lots")},
		{"hour out of range", rule(domain.RuleTypeTimeBased, "hour", "gt", "24")},
		{"ordering on country", rule(domain.RuleTypeGeographic, "country", "gt", "GH")},
		{"eq with many countries", rule(domain.RuleTypeGeographic, "country", "eq", "GH,NG")},
		{"negative count", rule(domain.RuleTypeVelocity, "transactions_24h", "gt", "-1")},
		{"bad severity", domain.FraudRule{Name: "r", Type: domain.RuleTypeAmountThreshold, Field: "amount", Operator: "gt", Value: "1", Severity: "urgent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.rule)
			assert.ErrorIs(t, err, domain.ErrInvalidRule)
		})
	}
}

func TestCompile_Matches(t *testing.T) {
	base := Facts{
		Amount:                600000,
		Amount24h:             900000,
		Transactions24h:       4,
		Country:               "NG",
		Hour:                  23,
		AccountAgeDays:        3,
		DaysSinceLastActivity: 200,
	}

	tests := []struct {
		name  string
		rule  domain.FraudRule
		facts Facts
		want  bool
	}{
		{"amount gt hit", rule(domain.RuleTypeAmountThreshold, "amount", "gt", "5000"), base, true},
		{"amount gt boundary", rule(domain.RuleTypeAmountThreshold, "amount", "gt", "6000.00"), base, false},
		{"amount gte boundary", rule(domain.RuleTypeAmountThreshold, "amount", "gte", "6000.00"), base, true},
		{"amount between", rule(domain.RuleTypeAmountThreshold, "amount", "between", "5000, 7000"), base, true},
		{"amount not_between", rule(domain.RuleTypeAmountThreshold, "amount", "not_between", "5000,7000"), base, false},
		{"velocity count", rule(domain.RuleTypeVelocity, "transactions_24h", "gte", "4"), base, true},
		{"velocity sum", rule(domain.RuleTypeVelocity, "amount_24h", "gt", "10000"), base, false},
		{"country in", rule(domain.RuleTypeGeographic, "country", "in", "ng, ci"), base, true},
		{"country not_in", rule(domain.RuleTypeGeographic, "country", "not_in", "GH"), base, true},
		{"country missing never matches", rule(domain.RuleTypeGeographic, "country", "not_in", "GH"), Facts{}, false},
		{"night window wraps", rule(domain.RuleTypeTimeBased, "hour", "between", "22,5"), base, true},
		{"night window early morning", rule(domain.RuleTypeTimeBased, "hour", "between", "22,5"), Facts{Hour: 3}, true},
		{"night window midday", rule(domain.RuleTypeTimeBased, "hour", "between", "22,5"), Facts{Hour: 12}, false},
		{"business hours excluded", rule(domain.RuleTypeTimeBased, "hour", "not_between", "8,17"), base, true},
		{"young account", rule(domain.RuleTypeAccountActivity, "account_age_days", "lt", "7"), base, true},
		{"dormant account", rule(domain.RuleTypeAccountActivity, "days_since_last_activity", "gt", "180"), base, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cr, err := Compile(tt.rule)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cr.Cond.Matches(tt.facts))
		})
	}
}

func TestCompile_TypedConditions(t *testing.T) {
	cr, err := Compile(rule(domain.RuleTypeAmountThreshold, "amount", "gt", "1000.50"))
	require.NoError(t, err)
	assert.Equal(t, AmountCondition{Op: OpGT, Values: []int64{100050}}, cr.Cond)

	cr, err = Compile(rule(domain.RuleTypeVelocity, "amount_24h", "gt", "20000"))
	require.NoError(t, err)
	assert.Equal(t, VelocityCondition{Metric: VelocitySum, Op: OpGT, Values: []int64{2000000}}, cr.Cond)
}

func TestCatalogValue(t *testing.T) {
	assert.Equal(t, "5000", catalogValue(5000))
	assert.Equal(t, "1000000", catalogValue(float64(1000000)))
	assert.Equal(t, "NG,CI", catalogValue([]any{"NG", "CI"}))
	assert.Equal(t, "22,5", catalogValue([]any{22, 5}))
	assert.Equal(t, "", catalogValue(nil))
}
