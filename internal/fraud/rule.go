package fraud

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

type Operator string

const (
	OpGT         Operator = "gt"
	OpGTE        Operator = "gte"
	OpLT         Operator = "lt"
	OpLTE        Operator = "lte"
	OpEQ         Operator = "eq"
	OpNEQ        Operator = "neq"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
	OpBetween    Operator = "between"
	OpNotBetween Operator = "not_between"
)

var numericOperators = []Operator{OpGT, OpGTE, OpLT, OpLTE, OpEQ, OpNEQ, OpIn, OpNotIn, OpBetween, OpNotBetween}

var setOperators = []Operator{OpEQ, OpNEQ, OpIn, OpNotIn}

const (
	FieldAmount                = "amount"
	FieldAmount24h             = "amount_24h"
	FieldTransactions24h       = "transactions_24h"
	FieldCountry               = "country"
	FieldHour                  = "hour"
	FieldAccountAgeDays        = "account_age_days"
	FieldDaysSinceLastActivity = "days_since_last_activity"
)

// Condition is the compiled, typed form of a rule's field/operator/value
// triple. Each rule type compiles to exactly one implementation.
type Condition interface {
	Matches(f Facts) bool
	Describe(f Facts) string
}

// AmountCondition compares the transaction amount in minor units.
type AmountCondition struct {
	Op     Operator
	Values []int64
}

func (c AmountCondition) Matches(f Facts) bool { return compare(c.Op, f.Amount, c.Values) }

func (c AmountCondition) Describe(f Facts) string {
	return fmt.Sprintf("amount %s %s %s", domain.FormatAmount(f.Amount), c.Op, formatAmounts(c.Values))
}

type VelocityMetric string

const (
	VelocityCount VelocityMetric = "transactions_24h"
	VelocitySum   VelocityMetric = "amount_24h"
)

// VelocityCondition compares rolling 24h aggregates for the primary account,
// the evaluated transaction included.
type VelocityCondition struct {
	Metric VelocityMetric
	Op     Operator
	Values []int64
}

func (c VelocityCondition) value(f Facts) int64 {
	if c.Metric == VelocityCount {
		return f.Transactions24h
	}
	return f.Amount24h
}

func (c VelocityCondition) Matches(f Facts) bool { return compare(c.Op, c.value(f), c.Values) }

func (c VelocityCondition) Describe(f Facts) string {
	if c.Metric == VelocityCount {
		return fmt.Sprintf("%d transactions in 24h %s %v", f.Transactions24h, c.Op, c.Values)
	}
	return fmt.Sprintf("24h volume %s %s %s", domain.FormatAmount(f.Amount24h), c.Op, formatAmounts(c.Values))
}

// GeoCondition matches the ISO country the command originated from.
// Commands without origin metadata never match.
type GeoCondition struct {
	Op        Operator
	Countries []string
}

func (c GeoCondition) Matches(f Facts) bool {
	if f.Country == "" {
		return false
	}
	in := slices.Contains(c.Countries, f.Country)
	switch c.Op {
	case OpEQ, OpIn:
		return in
	case OpNEQ, OpNotIn:
		return !in
	}
	return false
}

func (c GeoCondition) Describe(f Facts) string {
	return fmt.Sprintf("origin country %s %s %s", f.Country, c.Op, strings.Join(c.Countries, ","))
}

// TimeCondition matches the local hour of the transaction. A between range
// whose start is after its end wraps midnight, so "22,6" covers the night.
type TimeCondition struct {
	Op    Operator
	Hours []int64
}

func (c TimeCondition) Matches(f Facts) bool {
	h := int64(f.Hour)
	if (c.Op == OpBetween || c.Op == OpNotBetween) && c.Hours[0] > c.Hours[1] {
		inside := h >= c.Hours[0] || h <= c.Hours[1]
		if c.Op == OpBetween {
			return inside
		}
		return !inside
	}
	return compare(c.Op, h, c.Hours)
}

func (c TimeCondition) Describe(f Facts) string {
	return fmt.Sprintf("hour %02d %s %v", f.Hour, c.Op, c.Hours)
}

type ActivityMetric string

const (
	ActivityAccountAge ActivityMetric = "account_age_days"
	ActivityIdleDays   ActivityMetric = "days_since_last_activity"
)

type ActivityCondition struct {
	Metric ActivityMetric
	Op     Operator
	Values []int64
}

func (c ActivityCondition) value(f Facts) int64 {
	if c.Metric == ActivityAccountAge {
		return f.AccountAgeDays
	}
	return f.DaysSinceLastActivity
}

func (c ActivityCondition) Matches(f Facts) bool { return compare(c.Op, c.value(f), c.Values) }

func (c ActivityCondition) Describe(f Facts) string {
	return fmt.Sprintf("%s %d %s %v", c.Metric, c.value(f), c.Op, c.Values)
}

// CompiledRule pairs a stored rule with its typed condition.
type CompiledRule struct {
	Rule domain.FraudRule
	Cond Condition
}

// Compile parses the external string format of a rule into its typed condition.
func Compile(r domain.FraudRule) (*CompiledRule, error) {
	if !r.Severity.IsValid() {
		return nil, fmt.Errorf("Compile: rule %q: unknown severity %q: %w", r.Name, r.Severity, domain.ErrInvalidRule)
	}

	op := Operator(r.Operator)
	var (
		cond Condition
		err  error
	)

	switch r.Type {
	case domain.RuleTypeAmountThreshold:
		if r.Field != FieldAmount {
			return nil, fieldError(r)
		}
		var vals []int64
		vals, err = parseValues(op, r.Value, parseMoney)
		cond = AmountCondition{Op: op, Values: vals}

	case domain.RuleTypeVelocity:
		switch r.Field {
		case FieldTransactions24h:
			var vals []int64
			vals, err = parseValues(op, r.Value, parseCount)
			cond = VelocityCondition{Metric: VelocityCount, Op: op, Values: vals}
		case FieldAmount24h:
			var vals []int64
			vals, err = parseValues(op, r.Value, parseMoney)
			cond = VelocityCondition{Metric: VelocitySum, Op: op, Values: vals}
		default:
			return nil, fieldError(r)
		}

	case domain.RuleTypeGeographic:
		if r.Field != FieldCountry {
			return nil, fieldError(r)
		}
		if !slices.Contains(setOperators, op) {
			return nil, fmt.Errorf("Compile: rule %q: operator %q not valid for country: %w", r.Name, op, domain.ErrInvalidRule)
		}
		countries := splitList(r.Value)
		for i, c := range countries {
			countries[i] = strings.ToUpper(c)
		}
		if len(countries) == 0 || ((op == OpEQ || op == OpNEQ) && len(countries) != 1) {
			return nil, fmt.Errorf("Compile: rule %q: bad country list %q: %w", r.Name, r.Value, domain.ErrInvalidRule)
		}
		cond = GeoCondition{Op: op, Countries: countries}

	case domain.RuleTypeTimeBased:
		if r.Field != FieldHour {
			return nil, fieldError(r)
		}
		var vals []int64
		vals, err = parseValues(op, r.Value, parseHour)
		cond = TimeCondition{Op: op, Hours: vals}

	case domain.RuleTypeAccountActivity:
		switch r.Field {
		case FieldAccountAgeDays, FieldDaysSinceLastActivity:
			var vals []int64
			vals, err = parseValues(op, r.Value, parseCount)
			cond = ActivityCondition{Metric: ActivityMetric(r.Field), Op: op, Values: vals}
		default:
			return nil, fieldError(r)
		}

	default:
		return nil, fmt.Errorf("Compile: rule %q: unknown type %q: %w", r.Name, r.Type, domain.ErrInvalidRule)
	}

	if err != nil {
		return nil, fmt.Errorf("Compile: rule %q: %w", r.Name, err)
	}
	return &CompiledRule{Rule: r, Cond: cond}, nil
}

func fieldError(r domain.FraudRule) error {
	return fmt.Errorf("Compile: rule %q: field %q not valid for %s: %w", r.Name, r.Field, r.Type, domain.ErrInvalidRule)
}

// parseValues checks operator arity: between takes exactly two values, the
// set operators take one or more, everything else exactly one.
func parseValues(op Operator, raw string, parse func(string) (int64, error)) ([]int64, error) {
	if !slices.Contains(numericOperators, op) {
		return nil, fmt.Errorf("unknown operator %q: %w", op, domain.ErrInvalidRule)
	}
	parts := splitList(raw)

	switch op {
	case OpBetween, OpNotBetween:
		if len(parts) != 2 {
			return nil, fmt.Errorf("%s needs two values, got %q: %w", op, raw, domain.ErrInvalidRule)
		}
	case OpIn, OpNotIn:
		if len(parts) == 0 {
			return nil, fmt.Errorf("%s needs at least one value: %w", op, domain.ErrInvalidRule)
		}
	default:
		if len(parts) != 1 {
			return nil, fmt.Errorf("%s needs one value, got %q: %w", op, raw, domain.ErrInvalidRule)
		}
	}

	vals := make([]int64, len(parts))
	for i, p := range parts {
		v, err := parse(p)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseMoney(s string) (int64, error) {
	v, err := domain.ParseAmount(s)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q: %w", s, domain.ErrInvalidRule)
	}
	return v, nil
}

func parseCount(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("bad count %q: %w", s, domain.ErrInvalidRule)
	}
	return v, nil
}

func parseHour(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 || v > 23 {
		return 0, fmt.Errorf("bad hour %q: %w", s, domain.ErrInvalidRule)
	}
	return v, nil
}

func compare(op Operator, v int64, vals []int64) bool {
	switch op {
	case OpGT:
		return v > vals[0]
	case OpGTE:
		return v >= vals[0]
	case OpLT:
		return v < vals[0]
	case OpLTE:
		return v <= vals[0]
	case OpEQ:
		return v == vals[0]
	case OpNEQ:
		return v != vals[0]
	case OpIn:
		return slices.Contains(vals, v)
	case OpNotIn:
		return !slices.Contains(vals, v)
	case OpBetween:
		return v >= vals[0] && v <= vals[1]
	case OpNotBetween:
		return v < vals[0] || v > vals[1]
	}
	return false
}

func formatAmounts(vals []int64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = domain.FormatAmount(v)
	}
	return strings.Join(parts, ",")
}
