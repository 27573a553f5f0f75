package httpadapter

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/core/domain"
)

const highValueRule = `{
	"name": "High value invoices",
	"conditions": [
		{"field": "classification", "operator": "equals", "value": "invoice"},
		{"field": "entity_MONEY", "operator": "greater_than", "value": 10000}
	],
	"actions": [
		{"type": "tag", "params": {"tag": "high-value"}},
		{"type": "notify", "params": {"email": "ap@example.com"}}
	]
}`

func TestRuleLifecycle(t *testing.T) {
	env := newTestEnv(t, config.Config{})

	res := env.do(t, http.MethodPost, "/v1/rules", "user-1", strings.NewReader(highValueRule))
	if res.Code != http.StatusCreated {
		t.Fatalf("create expected 201, got %d: %s", res.Code, res.Body.String())
	}
	created := decodeBody[domain.WorkflowRule](t, res)
	if !created.Active || created.OwnerID != "user-1" || created.Conditions[1].Field != domain.EntityField(domain.EntityMoney) {
		t.Fatalf("unexpected rule: %+v", created)
	}
	if v, ok := created.Conditions[1].Value.(float64); !ok || v != 10000 {
		t.Fatalf("expected numeric condition value, got %#v", created.Conditions[1].Value)
	}

	res = env.do(t, http.MethodPut, "/v1/rules/"+created.ID, "user-1", strings.NewReader(`{"name":"Renamed"}`))
	if res.Code != http.StatusOK {
		t.Fatalf("update expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if updated := decodeBody[domain.WorkflowRule](t, res); updated.Name != "Renamed" || len(updated.Conditions) != 2 {
		t.Fatalf("unexpected update: %+v", updated)
	}

	res = env.do(t, http.MethodPost, "/v1/rules/"+created.ID+"/toggle", "user-1", nil)
	if toggled := decodeBody[domain.WorkflowRule](t, res); toggled.Active {
		t.Fatalf("expected rule deactivated")
	}

	res = env.do(t, http.MethodGet, "/v1/rules?active=true", "user-1", nil)
	if list := decodeBody[struct {
		Total int `json:"total"`
	}](t, res); list.Total != 0 {
		t.Fatalf("expected no active rules, got %d", list.Total)
	}

	if res := env.do(t, http.MethodGet, "/v1/rules/"+created.ID, "user-2", nil); res.Code != http.StatusNotFound {
		t.Fatalf("foreign get expected 404, got %d", res.Code)
	}
	if res := env.do(t, http.MethodDelete, "/v1/rules/"+created.ID, "user-1", nil); res.Code != http.StatusNoContent {
		t.Fatalf("delete expected 204, got %d", res.Code)
	}
	if res := env.do(t, http.MethodGet, "/v1/rules/"+created.ID, "user-1", nil); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.Code)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	cases := map[string]string{
		"no conditions":    `{"name":"x","conditions":[],"actions":[]}`,
		"unknown entity":   `{"name":"x","conditions":[{"field":"entity_SHOE_SIZE","operator":"equals","value":"9"}]}`,
		"unknown operator": `{"name":"x","conditions":[{"field":"classification","operator":"matches","value":"a"}]}`,
		"in without list":  `{"name":"x","conditions":[{"field":"classification","operator":"in","value":"a"}]}`,
		"tag without tag":  `{"name":"x","conditions":[{"field":"classification","operator":"equals","value":"a"}],"actions":[{"type":"tag"}]}`,
		"malformed json":   `{"name":`,
	}
	for name, body := range cases {
		res := env.do(t, http.MethodPost, "/v1/rules", "user-1", strings.NewReader(body))
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, res.Code)
		}
	}
}

func TestEvaluateDocumentTriggersRule(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	env.seedProcessed(t, "doc-1", "user-1", "acme.txt", "Invoice total $15,000",
		domain.Entity{Type: domain.EntityMoney, Value: "$15,000", Start: 14, End: 21, Confidence: 0.8})

	if res := env.do(t, http.MethodPost, "/v1/rules", "user-1", strings.NewReader(highValueRule)); res.Code != http.StatusCreated {
		t.Fatalf("create expected 201, got %d", res.Code)
	}

	res := env.do(t, http.MethodPost, "/v1/documents/doc-1/evaluate", "user-1", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("evaluate expected 200, got %d: %s", res.Code, res.Body.String())
	}
	evaluation := decodeBody[domain.RuleEvaluation](t, res)
	if len(evaluation.Triggered) != 1 || evaluation.Triggered[0].TriggerCount != 1 {
		t.Fatalf("unexpected evaluation: %+v", evaluation)
	}

	doc, err := env.docs.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !doc.HasTag("high-value") {
		t.Fatalf("expected high-value tag, got %v", doc.Tags)
	}
	if len(env.dispatcher.events) != 1 || env.dispatcher.events[0].Type != domain.ActionNotify {
		t.Fatalf("expected one notify dispatch, got %+v", env.dispatcher.events)
	}
}

func TestEvaluateAllDocuments(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	env.seedProcessed(t, "doc-1", "user-1", "a.txt", "Invoice", domain.Entity{Type: domain.EntityMoney, Value: "$20,000"})
	env.seedProcessed(t, "doc-2", "user-1", "b.txt", "Invoice", domain.Entity{Type: domain.EntityMoney, Value: "$20"})
	if res := env.do(t, http.MethodPost, "/v1/rules", "user-1", strings.NewReader(highValueRule)); res.Code != http.StatusCreated {
		t.Fatalf("create expected 201, got %d", res.Code)
	}

	res := env.do(t, http.MethodPost, "/v1/documents/evaluate", "user-1", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := decodeBody[struct {
		Documents int                     `json:"documents"`
		Results   []domain.RuleEvaluation `json:"results"`
	}](t, res)
	if body.Documents != 2 || len(body.Results) != 2 {
		t.Fatalf("unexpected batch response: %+v", body)
	}
	triggered := map[string]int{}
	for _, r := range body.Results {
		triggered[r.DocumentID] = len(r.Triggered)
	}
	if triggered["doc-1"] != 1 || triggered["doc-2"] != 0 {
		t.Fatalf("unexpected triggers: %v", triggered)
	}
}
