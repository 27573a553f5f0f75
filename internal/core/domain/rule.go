package domain

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"
)

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan, OpIn:
		return true
	default:
		return false
	}
}

type ActionType string

const (
	ActionTag            ActionType = "tag"
	ActionNotify         ActionType = "notify"
	ActionMove           ActionType = "move"
	ActionApproveRequest ActionType = "approve_request"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionTag, ActionNotify, ActionMove, ActionApproveRequest:
		return true
	default:
		return false
	}
}

// Forwarded reports whether the action is handed to an external dispatcher
// rather than applied to the document.
func (a ActionType) Forwarded() bool {
	return a == ActionNotify || a == ActionMove || a == ActionApproveRequest
}

type FieldKind string

const (
	FieldClassification FieldKind = "classification"
	FieldFileSize       FieldKind = "file_size"
	FieldMimeType       FieldKind = "mime_type"
	FieldEntity         FieldKind = "entity"
	FieldAttribute      FieldKind = "attribute"
	// FieldUnknown marks a stored reference that no longer parses. It never
	// resolves to a value.
	FieldUnknown FieldKind = "unknown"
)

const entityFieldPrefix = "entity_"

// FieldRef is a condition field resolved once at authoring time.
type FieldRef struct {
	Kind       FieldKind
	EntityType EntityType
	Name       string
}

func ClassificationField() FieldRef { return FieldRef{Kind: FieldClassification} }
func FileSizeField() FieldRef       { return FieldRef{Kind: FieldFileSize} }
func MimeTypeField() FieldRef       { return FieldRef{Kind: FieldMimeType} }
func EntityField(t EntityType) FieldRef {
	return FieldRef{Kind: FieldEntity, EntityType: t}
}
func AttributeField(name string) FieldRef {
	return FieldRef{Kind: FieldAttribute, Name: name}
}

// ParseFieldRef parses the textual field syntax used by rule authors:
// "classification", "file_size", "mime_type", "entity_<TYPE>" or any other
// document attribute name.
func ParseFieldRef(raw string) (FieldRef, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return FieldRef{}, errors.New("field is required")
	}
	switch name {
	case string(FieldClassification):
		return ClassificationField(), nil
	case string(FieldFileSize):
		return FileSizeField(), nil
	case string(FieldMimeType):
		return MimeTypeField(), nil
	}
	if suffix, ok := strings.CutPrefix(name, entityFieldPrefix); ok {
		t, known := ParseEntityType(suffix)
		if !known {
			return FieldRef{}, fmt.Errorf("unknown entity type %q", suffix)
		}
		return EntityField(t), nil
	}
	return AttributeField(name), nil
}

func (f FieldRef) String() string {
	switch f.Kind {
	case FieldClassification, FieldFileSize, FieldMimeType:
		return string(f.Kind)
	case FieldEntity:
		return entityFieldPrefix + string(f.EntityType)
	default:
		return f.Name
	}
}

func (f FieldRef) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText never fails: a reference that does not parse is kept as
// FieldUnknown so the owning rule still loads and its condition evaluates to
// false.
func (f *FieldRef) UnmarshalText(text []byte) error {
	parsed, err := ParseFieldRef(string(text))
	if err != nil {
		*f = FieldRef{Kind: FieldUnknown, Name: string(text)}
		return nil
	}
	*f = parsed
	return nil
}

type Condition struct {
	Field    FieldRef `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

type Action struct {
	Type   ActionType        `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}

// Param returns the named parameter or "".
func (a Action) Param(name string) string {
	if a.Params == nil {
		return ""
	}
	return a.Params[name]
}

type WorkflowRule struct {
	ID           string      `json:"id"`
	OwnerID      string      `json:"owner_id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Conditions   []Condition `json:"conditions"`
	Actions      []Action    `json:"actions"`
	Active       bool        `json:"is_active"`
	TriggerCount int64       `json:"trigger_count"`
	CreatedBy    string      `json:"created_by"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with r.
func (r WorkflowRule) Clone() WorkflowRule {
	out := r
	out.Conditions = make([]Condition, len(r.Conditions))
	for i, c := range r.Conditions {
		if list, ok := AsList(c.Value); ok {
			c.Value = list
		}
		out.Conditions[i] = c
	}
	out.Actions = make([]Action, len(r.Actions))
	for i, a := range r.Actions {
		a.Params = maps.Clone(a.Params)
		out.Actions[i] = a
	}
	return out
}

// RuleDraft carries the author-supplied part of a new rule.
type RuleDraft struct {
	Name        string
	Description string
	Conditions  []Condition
	Actions     []Action
	Active      bool
}

// RulePatch carries optional replacements. Nil fields stay unchanged.
type RulePatch struct {
	Name        *string
	Description *string
	Conditions  []Condition
	Actions     []Action
	Active      *bool
}

// Apply returns r with the patch applied. Conditions and actions are replaced
// as a whole.
func (p RulePatch) Apply(r WorkflowRule) WorkflowRule {
	out := r.Clone()
	if p.Name != nil {
		out.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Conditions != nil {
		out.Conditions = slices.Clone(p.Conditions)
	}
	if p.Actions != nil {
		out.Actions = slices.Clone(p.Actions)
	}
	if p.Active != nil {
		out.Active = *p.Active
	}
	return out
}

// ValidateRule checks a rule definition before it is stored.
func ValidateRule(name string, conditions []Condition, actions []Action) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	if len(conditions) == 0 {
		return errors.New("at least one condition is required")
	}
	for i, c := range conditions {
		if err := validateCondition(c); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	for i, a := range actions {
		if err := validateAction(a); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

func validateCondition(c Condition) error {
	if c.Field.Kind == "" || c.Field.Kind == FieldUnknown {
		return fmt.Errorf("invalid field %q", c.Field.Name)
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	if c.Value == nil {
		return errors.New("value is required")
	}
	if _, isList := AsList(c.Value); c.Operator == OpIn && !isList {
		return errors.New("operator in requires a list value")
	}
	return nil
}

func validateAction(a Action) error {
	if !a.Type.Valid() {
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if a.Type == ActionTag && strings.TrimSpace(a.Param("tag")) == "" {
		return errors.New("tag action requires a tag param")
	}
	return nil
}

// AsList returns v as []any when it is any kind of slice or array. Byte slices
// are not treated as lists.
func AsList(v any) ([]any, bool) {
	switch typed := v.(type) {
	case nil:
		return nil, false
	case []any:
		return slices.Clone(typed), true
	case []string:
		out := make([]any, len(typed))
		for i, s := range typed {
			out[i] = s
		}
		return out, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// ActionEvent is what forwarded actions carry to external systems.
type ActionEvent struct {
	Type       ActionType        `json:"type"`
	RuleID     string            `json:"rule_id"`
	RuleName   string            `json:"rule_name"`
	DocumentID string            `json:"document_id"`
	OwnerID    string            `json:"owner_id"`
	Filename   string            `json:"filename"`
	Params     map[string]string `json:"params,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// RuleEvaluation is the outcome of evaluating one document.
type RuleEvaluation struct {
	DocumentID string         `json:"document_id"`
	Triggered  []WorkflowRule `json:"triggered"`
	Error      string         `json:"error,omitempty"`
}
