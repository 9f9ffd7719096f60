package fraud

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

type catalogRule struct {
	Name                string          `mapstructure:"name"`
	Type                domain.RuleType `mapstructure:"type"`
	Field               string          `mapstructure:"field"`
	Operator            string          `mapstructure:"operator"`
	Value               any             `mapstructure:"value"`
	Severity            domain.Severity `mapstructure:"severity"`
	AutoBlock           bool            `mapstructure:"auto_block"`
	RequireApproval     bool            `mapstructure:"require_approval"`
	EscalationThreshold int             `mapstructure:"escalation_threshold"`
	Active              *bool           `mapstructure:"active"`
}

// LoadCatalog reads a rule catalogue file (YAML, JSON or TOML, by extension).
// A rule value may be written as a scalar or a list; either way it is stored
// in the comma-separated form the compiler reads.
func LoadCatalog(path string) ([]domain.FraudRule, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("LoadCatalog: %w", err)
	}

	var raw []catalogRule
	if err := v.UnmarshalKey("rules", &raw); err != nil {
		return nil, fmt.Errorf("LoadCatalog: decode: %w", err)
	}

	rules := make([]domain.FraudRule, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, cr := range raw {
		if cr.Name == "" {
			return nil, fmt.Errorf("LoadCatalog: rule without name: %w", domain.ErrInvalidRule)
		}
		if seen[cr.Name] {
			return nil, fmt.Errorf("LoadCatalog: duplicate rule %q: %w", cr.Name, domain.ErrInvalidRule)
		}
		seen[cr.Name] = true

		active := true
		if cr.Active != nil {
			active = *cr.Active
		}
		rules = append(rules, domain.FraudRule{
			Name:                cr.Name,
			Type:                cr.Type,
			Field:               cr.Field,
			Operator:            cr.Operator,
			Value:               catalogValue(cr.Value),
			Severity:            cr.Severity,
			AutoBlock:           cr.AutoBlock,
			RequireApproval:     cr.RequireApproval,
			EscalationThreshold: cr.EscalationThreshold,
			IsActive:            active,
		})
	}
	return rules, nil
}

func catalogValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}
