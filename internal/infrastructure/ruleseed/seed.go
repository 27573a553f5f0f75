// Package ruleseed loads declarative workflow rules from a YAML file and
// registers them for their owners at startup.
package ruleseed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

type File struct {
	Rules []RuleSpec `yaml:"rules"`
}

type RuleSpec struct {
	Owner       string          `yaml:"owner"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Active      *bool           `yaml:"active"`
	Conditions  []ConditionSpec `yaml:"conditions"`
	Actions     []ActionSpec    `yaml:"actions"`
}

type ConditionSpec struct {
	Field    string `yaml:"field"`
	Operator string `yaml:"operator"`
	Value    any    `yaml:"value"`
}

type ActionSpec struct {
	Type   string            `yaml:"type"`
	Params map[string]string `yaml:"params"`
}

// Load reads path, expands ${ENV} references and decodes the rule list.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule seed file: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode rule seed file: %w", err)
	}
	for i, spec := range file.Rules {
		if strings.TrimSpace(spec.Owner) == "" {
			return nil, fmt.Errorf("rule seed #%d (%q): owner is required", i, spec.Name)
		}
	}
	return &file, nil
}

// Draft converts the seed entry into a rule draft. Rules are active unless the file
// says otherwise.
func (s RuleSpec) Draft() (domain.RuleDraft, error) {
	draft := domain.RuleDraft{
		Name:        s.Name,
		Description: s.Description,
		Active:      s.Active == nil || *s.Active,
		Conditions:  make([]domain.Condition, 0, len(s.Conditions)),
		Actions:     make([]domain.Action, 0, len(s.Actions)),
	}
	for _, c := range s.Conditions {
		field, err := domain.ParseFieldRef(c.Field)
		if err != nil {
			return domain.RuleDraft{}, fmt.Errorf("condition field: %w", err)
		}
		draft.Conditions = append(draft.Conditions, domain.Condition{
			Field:    field,
			Operator: domain.Operator(c.Operator),
			Value:    c.Value,
		})
	}
	for _, a := range s.Actions {
		draft.Actions = append(draft.Actions, domain.Action{
			Type:   domain.ActionType(a.Type),
			Params: a.Params,
		})
	}
	return draft, nil
}

// Apply creates every seeded rule whose name the owner does not already use.
// It returns the number of rules created.
func Apply(ctx context.Context, rules ports.RuleService, file *File, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	existing := make(map[string]map[string]struct{})
	created := 0
	for _, spec := range file.Rules {
		names, ok := existing[spec.Owner]
		if !ok {
			current, err := rules.ListRules(ctx, spec.Owner, nil)
			if err != nil {
				return created, fmt.Errorf("list rules for %s: %w", spec.Owner, err)
			}
			names = make(map[string]struct{}, len(current))
			for _, r := range current {
				names[r.Name] = struct{}{}
			}
			existing[spec.Owner] = names
		}
		name := strings.TrimSpace(spec.Name)
		if _, taken := names[name]; taken {
			logger.Info("rule_seed_skipped", "owner_id", spec.Owner, "name", name)
			continue
		}

		draft, err := spec.Draft()
		if err != nil {
			return created, fmt.Errorf("rule seed %q: %w", spec.Name, err)
		}
		rule, err := rules.CreateRule(ctx, spec.Owner, draft)
		if err != nil {
			return created, fmt.Errorf("rule seed %q: %w", spec.Name, err)
		}
		names[rule.Name] = struct{}{}
		created++
	}
	logger.Info("rule_seed_applied", "rules", len(file.Rules), "created", created)
	return created, nil
}
