package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type RuleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `id, owner_id, name, description, conditions, actions, is_active, trigger_count,
	created_by, created_at, updated_at`

func (r *RuleRepository) Create(ctx context.Context, rule *domain.WorkflowRule) error {
	conditionsJSON, actionsJSON, err := marshalRuleBody(rule)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO workflow_rules (`+ruleColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		rule.ID, rule.OwnerID, rule.Name, rule.Description, conditionsJSON, actionsJSON, rule.Active,
		rule.TriggerCount, rule.CreatedBy, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return writeError("insert workflow rule", err)
	}
	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, ownerID, id string) (*domain.WorkflowRule, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+ruleColumns+`
FROM workflow_rules
WHERE id = $1 AND owner_id = $2
`, id, ownerID)
	rule, err := scanRule(row)
	if err != nil {
		return nil, ruleLookupError("get workflow rule", id, err)
	}
	return &rule, nil
}

func (r *RuleRepository) List(ctx context.Context, ownerID string, active *bool) ([]domain.WorkflowRule, error) {
	query := `
SELECT ` + ruleColumns + `
FROM workflow_rules
WHERE owner_id = $1
`
	args := []any{ownerID}
	if active != nil {
		query += "AND is_active = $2\n"
		args = append(args, *active)
	}
	query += "ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflow rules: %w", err)
	}
	return collectRules(rows)
}

func (r *RuleRepository) ListActive(ctx context.Context, ownerID string) ([]domain.WorkflowRule, error) {
	active := true
	return r.List(ctx, ownerID, &active)
}

// Update rewrites the whole rule definition in one statement. trigger_count
// is left alone.
func (r *RuleRepository) Update(ctx context.Context, rule *domain.WorkflowRule, active *bool) error {
	conditionsJSON, actionsJSON, err := marshalRuleBody(rule)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE workflow_rules
SET name = $3, description = $4, conditions = $5, actions = $6, is_active = COALESCE($7, is_active), updated_at = $8
WHERE id = $1 AND owner_id = $2
`, rule.ID, rule.OwnerID, rule.Name, rule.Description, conditionsJSON, actionsJSON, active, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update workflow rule: %w", err)
	}
	return expectRuleRow(result, "update workflow rule", rule.ID)
}

func (r *RuleRepository) Toggle(ctx context.Context, ownerID, id string) (*domain.WorkflowRule, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE workflow_rules
SET is_active = NOT is_active, updated_at = $3
WHERE id = $1 AND owner_id = $2
RETURNING `+ruleColumns, id, ownerID, time.Now().UTC())
	rule, err := scanRule(row)
	if err != nil {
		return nil, ruleLookupError("toggle workflow rule", id, err)
	}
	return &rule, nil
}

func (r *RuleRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_rules WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete workflow rule: %w", err)
	}
	return expectRuleRow(result, "delete workflow rule", id)
}

// IncrementTriggerCount bumps the counter atomically and returns the new value.
func (r *RuleRepository) IncrementTriggerCount(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
UPDATE workflow_rules
SET trigger_count = trigger_count + 1
WHERE id = $1
RETURNING trigger_count
`, id).Scan(&count)
	if err != nil {
		return 0, ruleLookupError("increment trigger count", id, err)
	}
	return count, nil
}

func ruleLookupError(operation, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrRuleNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func expectRuleRow(result sql.Result, operation, id string) error {
	n, err := rowsAffected(result, operation)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.WrapError(domain.ErrRuleNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func marshalRuleBody(rule *domain.WorkflowRule) ([]byte, []byte, error) {
	conditions := rule.Conditions
	if conditions == nil {
		conditions = []domain.Condition{}
	}
	actions := rule.Actions
	if actions == nil {
		actions = []domain.Action{}
	}
	conditionsJSON, err := json.Marshal(conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal conditions: %w", err)
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal actions: %w", err)
	}
	return conditionsJSON, actionsJSON, nil
}

func scanRule(row rowScanner) (domain.WorkflowRule, error) {
	var rule domain.WorkflowRule
	var conditionsRaw, actionsRaw []byte
	err := row.Scan(
		&rule.ID, &rule.OwnerID, &rule.Name, &rule.Description, &conditionsRaw, &actionsRaw,
		&rule.Active, &rule.TriggerCount, &rule.CreatedBy, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return domain.WorkflowRule{}, err
	}
	if err := json.Unmarshal(conditionsRaw, &rule.Conditions); err != nil {
		return domain.WorkflowRule{}, fmt.Errorf("unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal(actionsRaw, &rule.Actions); err != nil {
		return domain.WorkflowRule{}, fmt.Errorf("unmarshal actions: %w", err)
	}
	return rule, nil
}

func collectRules(rows *sql.Rows) ([]domain.WorkflowRule, error) {
	defer rows.Close()
	out := make([]domain.WorkflowRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow rules: %w", err)
	}
	return out, nil
}
