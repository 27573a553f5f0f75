package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const defaultEvaluateParallelism = 4

// Action outcome labels reported to the RuleObserver.
const (
	actionStatusApplied    = "applied"
	actionStatusNoop       = "noop"
	actionStatusDispatched = "dispatched"
	actionStatusFailed     = "failed"
	actionStatusIgnored    = "ignored"
)

// RuleEngine owns workflow rule management and evaluation.
type RuleEngine struct {
	rules       ports.RuleRepository
	docs        ports.DocumentRepository
	dispatcher  ports.ActionDispatcher
	observer    ports.RuleObserver
	logger      *slog.Logger
	parallelism int
	now         func() time.Time
}

func NewRuleEngine(
	rules ports.RuleRepository,
	docs ports.DocumentRepository,
	dispatcher ports.ActionDispatcher,
	logger *slog.Logger,
) *RuleEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{
		rules:       rules,
		docs:        docs,
		dispatcher:  dispatcher,
		logger:      logger,
		parallelism: defaultEvaluateParallelism,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (e *RuleEngine) SetParallelism(n int) {
	if n > 0 {
		e.parallelism = n
	}
}

func (e *RuleEngine) SetObserver(observer ports.RuleObserver) {
	e.observer = observer
}

func (e *RuleEngine) CreateRule(ctx context.Context, ownerID string, draft domain.RuleDraft) (*domain.WorkflowRule, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "create rule", errors.New("owner is required"))
	}
	name := strings.TrimSpace(draft.Name)
	if err := domain.ValidateRule(name, draft.Conditions, draft.Actions); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create rule", err)
	}

	now := e.now()
	rule := domain.WorkflowRule{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Description: draft.Description,
		Conditions:  draft.Conditions,
		Actions:     draft.Actions,
		Active:      draft.Active,
		CreatedBy:   ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rule = rule.Clone()
	if err := e.rules.Create(ctx, &rule); err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}
	e.logger.Info("rule_created", "rule_id", rule.ID, "owner_id", ownerID, "name", rule.Name)
	return &rule, nil
}

func (e *RuleEngine) UpdateRule(ctx context.Context, ownerID, id string, patch domain.RulePatch) (*domain.WorkflowRule, error) {
	existing, err := e.rules.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("load rule: %w", err)
	}
	updated := patch.Apply(*existing)
	if err := domain.ValidateRule(updated.Name, updated.Conditions, updated.Actions); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update rule", err)
	}
	updated.UpdatedAt = e.now()
	if err := e.rules.Update(ctx, &updated, patch.Active); err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}

	stored, err := e.rules.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("reload rule: %w", err)
	}
	e.logger.Info("rule_updated", "rule_id", id, "owner_id", ownerID)
	return stored, nil
}

func (e *RuleEngine) DeleteRule(ctx context.Context, ownerID, id string) error {
	if err := e.rules.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	e.logger.Info("rule_deleted", "rule_id", id, "owner_id", ownerID)
	return nil
}

func (e *RuleEngine) ToggleRule(ctx context.Context, ownerID, id string) (*domain.WorkflowRule, error) {
	rule, err := e.rules.Toggle(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("toggle rule: %w", err)
	}
	e.logger.Info("rule_toggled", "rule_id", id, "owner_id", ownerID, "active", rule.Active)
	return rule, nil
}

func (e *RuleEngine) GetRule(ctx context.Context, ownerID, id string) (*domain.WorkflowRule, error) {
	rule, err := e.rules.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

func (e *RuleEngine) ListRules(ctx context.Context, ownerID string, active *bool) ([]domain.WorkflowRule, error) {
	rules, err := e.rules.List(ctx, ownerID, active)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// Evaluate runs doc through every active rule of its owner and returns the
// rules that triggered, each with its updated trigger count. A failing rule is
// logged and skipped; only failing to enumerate rules is returned as an error.
func (e *RuleEngine) Evaluate(ctx context.Context, doc *domain.Document) ([]domain.WorkflowRule, error) {
	if doc == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "evaluate rules", errors.New("document is nil"))
	}
	started := time.Now()

	active, err := e.rules.ListActive(ctx, doc.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	triggered := make([]domain.WorkflowRule, 0)
	for _, rule := range active {
		if err := ctx.Err(); err != nil {
			return triggered, err
		}
		matched, err := e.evaluateRule(ctx, &rule, doc)
		if err != nil {
			e.logger.Warn("rule_evaluation_failed",
				"rule_id", rule.ID,
				"document_id", doc.ID,
				"error", err,
			)
			continue
		}
		if matched {
			triggered = append(triggered, rule)
		}
	}

	if e.observer != nil {
		e.observer.ObserveEvaluation(len(triggered), time.Since(started))
	}
	return triggered, nil
}

// evaluateRule isolates one rule: a panic is converted into an error so the
// remaining rules still run.
func (e *RuleEngine) evaluateRule(ctx context.Context, rule *domain.WorkflowRule, doc *domain.Document) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()

	if !rule.Active || !MatchConditions(rule.Conditions, doc) {
		return false, nil
	}

	e.logger.Info("rule_triggered", "rule_id", rule.ID, "rule_name", rule.Name, "document_id", doc.ID)
	e.runActions(ctx, rule, doc)

	count, err := e.rules.IncrementTriggerCount(ctx, rule.ID)
	if err != nil {
		e.logger.Error("rule_trigger_count_failed", "rule_id", rule.ID, "error", err)
		rule.TriggerCount++
		return true, nil
	}
	rule.TriggerCount = count
	return true, nil
}

func (e *RuleEngine) runActions(ctx context.Context, rule *domain.WorkflowRule, doc *domain.Document) {
	for _, action := range rule.Actions {
		switch action.Type {
		case domain.ActionTag:
			e.observeAction(action.Type, e.applyTag(ctx, doc, action.Param("tag")))
		case domain.ActionNotify, domain.ActionMove, domain.ActionApproveRequest:
			e.observeAction(action.Type, e.forward(ctx, rule, doc, action))
		default:
			e.logger.Warn("unknown_action_type", "rule_id", rule.ID, "action_type", string(action.Type))
			e.observeAction(action.Type, actionStatusIgnored)
		}
	}
}

func (e *RuleEngine) applyTag(ctx context.Context, doc *domain.Document, tag string) string {
	tag = strings.TrimSpace(tag)
	if !doc.AddTag(tag) {
		return actionStatusNoop
	}
	if e.docs != nil && doc.ID != "" {
		if err := e.docs.AddTag(ctx, doc.ID, tag); err != nil {
			e.logger.Error("tag_persist_failed", "document_id", doc.ID, "tag", tag, "error", err)
			return actionStatusFailed
		}
	}
	return actionStatusApplied
}

func (e *RuleEngine) forward(ctx context.Context, rule *domain.WorkflowRule, doc *domain.Document, action domain.Action) string {
	if e.dispatcher == nil {
		e.logger.Warn("action_dispatcher_missing", "rule_id", rule.ID, "action_type", string(action.Type))
		return actionStatusIgnored
	}
	event := domain.ActionEvent{
		Type:       action.Type,
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		Filename:   doc.Filename,
		Params:     action.Params,
		OccurredAt: e.now(),
	}
	if err := e.dispatcher.Dispatch(ctx, event); err != nil {
		e.logger.Warn("action_dispatch_failed",
			"rule_id", rule.ID,
			"document_id", doc.ID,
			"action_type", string(action.Type),
			"error", err,
		)
		return actionStatusFailed
	}
	return actionStatusDispatched
}

func (e *RuleEngine) observeAction(action domain.ActionType, status string) {
	if e.observer != nil {
		e.observer.ObserveAction(action, status)
	}
}

// EvaluateMany evaluates independent documents concurrently. Per-document
// failures are reported in the result instead of cancelling the batch.
func (e *RuleEngine) EvaluateMany(ctx context.Context, docs []*domain.Document) ([]domain.RuleEvaluation, error) {
	results := make([]domain.RuleEvaluation, len(docs))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.parallelism)
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		eg.Go(func() error {
			triggered, err := e.Evaluate(gctx, doc)
			result := domain.RuleEvaluation{DocumentID: doc.ID, Triggered: triggered}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				result.Error = err.Error()
			}
			if result.Triggered == nil {
				result.Triggered = []domain.WorkflowRule{}
			}
			results[i] = result
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("evaluate documents: %w", err)
	}

	out := make([]domain.RuleEvaluation, 0, len(results))
	for i, doc := range docs {
		if doc != nil {
			out = append(out, results[i])
		}
	}
	return out, nil
}
