package httpadapter

import (
	"encoding/json"
	"net/http"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type createRuleRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Conditions  []domain.Condition `json:"conditions"`
	Actions     []domain.Action    `json:"actions"`
	Active      *bool              `json:"is_active"`
}

type updateRuleRequest struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	Conditions  []domain.Condition `json:"conditions"`
	Actions     []domain.Action    `json:"actions"`
	Active      *bool              `json:"is_active"`
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}

// normalizeNumbers turns json.Number condition values into float64 so stored
// rules compare the same way regardless of their source.
func normalizeNumbers(conditions []domain.Condition) {
	for i := range conditions {
		conditions[i].Value = plainNumber(conditions[i].Value)
	}
}

func plainNumber(v any) any {
	switch typed := v.(type) {
	case json.Number:
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = plainNumber(item)
		}
		return out
	default:
		return v
	}
}

func (rt *Router) listRules(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	active, err := queryParam[bool](r, "active")
	if err != nil {
		writeError(w, err)
		return
	}
	rules, err := rt.deps.Rules.ListRules(r.Context(), owner, active)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": rules, "total": len(rules)})
}

func (rt *Router) createRule(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	normalizeNumbers(req.Conditions)

	rule, err := rt.deps.Rules.CreateRule(r.Context(), owner, domain.RuleDraft{
		Name:        req.Name,
		Description: req.Description,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		Active:      req.Active == nil || *req.Active,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (rt *Router) getRule(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rule, err := rt.deps.Rules.GetRule(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (rt *Router) updateRule(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	normalizeNumbers(req.Conditions)

	rule, err := rt.deps.Rules.UpdateRule(r.Context(), owner, r.PathValue("id"), domain.RulePatch{
		Name:        req.Name,
		Description: req.Description,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		Active:      req.Active,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (rt *Router) deleteRule(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rt.deps.Rules.DeleteRule(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) toggleRule(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rule, err := rt.deps.Rules.ToggleRule(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}
