package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// MatchConditions reports whether every condition holds for doc. Evaluation
// stops at the first condition that does not hold.
func MatchConditions(conditions []domain.Condition, doc *domain.Document) bool {
	for _, c := range conditions {
		if !evaluateCondition(c, doc) {
			return false
		}
	}
	return true
}

func evaluateCondition(c domain.Condition, doc *domain.Document) bool {
	value, ok := resolveField(c.Field, doc)
	if !ok || value == nil {
		return false
	}
	return applyOperator(c.Operator, value, c.Value)
}

// resolveField returns ok=false when the document has no value for ref.
func resolveField(ref domain.FieldRef, doc *domain.Document) (any, bool) {
	if doc == nil {
		return nil, false
	}
	switch ref.Kind {
	case domain.FieldClassification:
		return nonEmpty(doc.Classification)
	case domain.FieldFileSize:
		return doc.FileSize, true
	case domain.FieldMimeType:
		return nonEmpty(doc.MimeType)
	case domain.FieldEntity:
		return domain.EntityValues(doc.Entities, ref.EntityType), true
	case domain.FieldAttribute:
		return attributeValue(ref.Name, doc)
	default:
		return nil, false
	}
}

func attributeValue(name string, doc *domain.Document) (any, bool) {
	switch strings.ToLower(name) {
	case "id":
		return nonEmpty(doc.ID)
	case "filename", "original_filename":
		return nonEmpty(doc.Filename)
	case "owner_id", "user_id":
		return nonEmpty(doc.OwnerID)
	case "status":
		return nonEmpty(string(doc.Status))
	case "text", "extracted_text":
		return nonEmpty(doc.Text)
	case "confidence", "confidence_score":
		return doc.Confidence, true
	case "tags":
		return slices.Clone(doc.Tags), true
	case "error":
		return nonEmpty(doc.Error)
	case "created_at":
		return domain.FormatTimestamp(doc.CreatedAt), !doc.CreatedAt.IsZero()
	case "updated_at":
		return domain.FormatTimestamp(doc.UpdatedAt), !doc.UpdatedAt.IsZero()
	default:
		return nil, false
	}
}

func nonEmpty(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

func applyOperator(op domain.Operator, fieldValue, conditionValue any) bool {
	switch op {
	case domain.OpEquals:
		return valuesEqual(fieldValue, conditionValue)
	case domain.OpNotEquals:
		return !valuesEqual(fieldValue, conditionValue)
	case domain.OpContains:
		return containsValue(fieldValue, conditionValue)
	case domain.OpGreaterThan:
		return compareNumeric(fieldValue, conditionValue, func(a, b float64) bool { return a > b })
	case domain.OpLessThan:
		return compareNumeric(fieldValue, conditionValue, func(a, b float64) bool { return a < b })
	case domain.OpIn:
		return inList(fieldValue, conditionValue)
	default:
		return false
	}
}

// valuesEqual compares numbers numerically and everything else by value.
// Values of different kinds are never equal.
func valuesEqual(a, b any) bool {
	listA, aIsList := domain.AsList(a)
	listB, bIsList := domain.AsList(b)
	if aIsList || bIsList {
		if !aIsList || !bIsList || len(listA) != len(listB) {
			return false
		}
		for i := range listA {
			if !valuesEqual(listA[i], listB[i]) {
				return false
			}
		}
		return true
	}

	if na, ok := numberOf(a); ok {
		nb, ok := numberOf(b)
		return ok && na == nb
	}
	switch typed := a.(type) {
	case string:
		other, ok := b.(string)
		return ok && typed == other
	case bool:
		other, ok := b.(bool)
		return ok && typed == other
	default:
		return false
	}
}

func containsValue(fieldValue, conditionValue any) bool {
	if list, ok := domain.AsList(fieldValue); ok {
		needle := stringify(conditionValue)
		for _, item := range list {
			if stringify(item) == needle {
				return true
			}
		}
		return false
	}
	return strings.Contains(strings.ToLower(stringify(fieldValue)), strings.ToLower(stringify(conditionValue)))
}

// compareNumeric coerces both sides to numbers. A multi-valued field holds when
// any element satisfies cmp. Any failed coercion counts as false.
func compareNumeric(fieldValue, conditionValue any, cmp func(a, b float64) bool) bool {
	threshold, ok := coerceNumber(conditionValue)
	if !ok {
		return false
	}
	if list, isList := domain.AsList(fieldValue); isList {
		for _, item := range list {
			if n, ok := coerceNumber(item); ok && cmp(n, threshold) {
				return true
			}
		}
		return false
	}
	n, ok := coerceNumber(fieldValue)
	return ok && cmp(n, threshold)
}

func inList(fieldValue, conditionValue any) bool {
	candidates, ok := domain.AsList(conditionValue)
	if !ok {
		return false
	}
	values := []any{fieldValue}
	if list, isList := domain.AsList(fieldValue); isList {
		values = list
	}
	for _, v := range values {
		for _, c := range candidates {
			if valuesEqual(v, c) {
				return true
			}
		}
	}
	return false
}

// numberOf accepts only values that are already numeric.
func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// coerceNumber also parses strings such as "15000", " 1,250.50 " or "$99".
func coerceNumber(v any) (float64, bool) {
	if n, ok := numberOf(v); ok {
		return n, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£¥")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringify(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case nil:
		return ""
	}
	if n, ok := numberOf(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
