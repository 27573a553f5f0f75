package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// RuleRepository stores immutable rule snapshots. Updates swap the whole
// snapshot under the write lock, so a concurrent evaluation sees either the
// old or the new definition.
type RuleRepository struct {
	mu    sync.RWMutex
	rules map[string]domain.WorkflowRule
	now   func() time.Time
}

func NewRuleRepository() *RuleRepository {
	return &RuleRepository{
		rules: make(map[string]domain.WorkflowRule),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *RuleRepository) Create(_ context.Context, rule *domain.WorkflowRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[rule.ID]; exists {
		return domain.WrapError(domain.ErrConflict, "insert workflow rule", fmt.Errorf("duplicate id %s", rule.ID))
	}
	r.rules[rule.ID] = rule.Clone()
	return nil
}

func (r *RuleRepository) GetByID(_ context.Context, ownerID, id string) (*domain.WorkflowRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok || rule.OwnerID != ownerID {
		return nil, ruleNotFound("get workflow rule", id)
	}
	out := rule.Clone()
	return &out, nil
}

func (r *RuleRepository) List(_ context.Context, ownerID string, active *bool) ([]domain.WorkflowRule, error) {
	r.mu.RLock()
	out := make([]domain.WorkflowRule, 0)
	for _, rule := range r.rules {
		if rule.OwnerID != ownerID {
			continue
		}
		if active != nil && rule.Active != *active {
			continue
		}
		out = append(out, rule.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *RuleRepository) ListActive(ctx context.Context, ownerID string) ([]domain.WorkflowRule, error) {
	active := true
	return r.List(ctx, ownerID, &active)
}

func (r *RuleRepository) Update(_ context.Context, rule *domain.WorkflowRule, active *bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rules[rule.ID]
	if !ok || current.OwnerID != rule.OwnerID {
		return ruleNotFound("update workflow rule", rule.ID)
	}
	next := rule.Clone()
	next.TriggerCount = current.TriggerCount
	next.CreatedAt = current.CreatedAt
	next.CreatedBy = current.CreatedBy
	next.Active = current.Active
	if active != nil {
		next.Active = *active
	}
	r.rules[rule.ID] = next
	return nil
}

func (r *RuleRepository) Toggle(_ context.Context, ownerID, id string) (*domain.WorkflowRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok || rule.OwnerID != ownerID {
		return nil, ruleNotFound("toggle workflow rule", id)
	}
	next := rule.Clone()
	next.Active = !next.Active
	next.UpdatedAt = r.now()
	r.rules[id] = next
	out := next.Clone()
	return &out, nil
}

func (r *RuleRepository) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok || rule.OwnerID != ownerID {
		return ruleNotFound("delete workflow rule", id)
	}
	delete(r.rules, id)
	return nil
}

func (r *RuleRepository) IncrementTriggerCount(_ context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return 0, ruleNotFound("increment trigger count", id)
	}
	rule.TriggerCount++
	r.rules[id] = rule
	return rule.TriggerCount, nil
}

func ruleNotFound(operation, id string) error {
	return domain.WrapError(domain.ErrRuleNotFound, operation, fmt.Errorf("id=%s", id))
}
