package domain

import (
	"sort"
	"strings"
)

type EntityType string

const (
	EntityPerson          EntityType = "PERSON"
	EntityOrganization    EntityType = "ORGANIZATION"
	EntityLocation        EntityType = "LOCATION"
	EntityDate            EntityType = "DATE"
	EntityTime            EntityType = "TIME"
	EntityMoney           EntityType = "MONEY"
	EntityPercentage      EntityType = "PERCENTAGE"
	EntityNumber          EntityType = "NUMBER"
	EntityEmail           EntityType = "EMAIL"
	EntityPhone           EntityType = "PHONE"
	EntityReferenceNumber EntityType = "REFERENCE_NUMBER"
	EntityOther           EntityType = "OTHER"
)

var entityTypes = []EntityType{
	EntityPerson,
	EntityOrganization,
	EntityLocation,
	EntityDate,
	EntityTime,
	EntityMoney,
	EntityPercentage,
	EntityNumber,
	EntityEmail,
	EntityPhone,
	EntityReferenceNumber,
	EntityOther,
}

// EntityTypes returns the closed set of entity types.
func EntityTypes() []EntityType {
	out := make([]EntityType, len(entityTypes))
	copy(out, entityTypes)
	return out
}

// ParseEntityType resolves a case-insensitive type name. Unknown names map to
// EntityOther and ok=false.
func ParseEntityType(raw string) (EntityType, bool) {
	candidate := EntityType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, t := range entityTypes {
		if t == candidate {
			return t, true
		}
	}
	return EntityOther, false
}

type Entity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Confidence float64    `json:"confidence"`
}

func (e Entity) dedupeKey() string {
	return string(e.Type) + "\x00" + strings.ToLower(e.Value)
}

// DedupeEntities keeps the first entity for every (type, lower(value)) pair and
// preserves input order. Entities with an empty value are dropped.
func DedupeEntities(in []Entity) []Entity {
	if len(in) == 0 {
		return []Entity{}
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]Entity, 0, len(in))
	for _, e := range in {
		if strings.TrimSpace(e.Value) == "" {
			continue
		}
		key := e.dedupeKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

// SummarizeEntities groups entity values by type.
func SummarizeEntities(entities []Entity) map[string][]string {
	summary := make(map[string][]string)
	for _, e := range entities {
		summary[string(e.Type)] = append(summary[string(e.Type)], e.Value)
	}
	return summary
}

// EntityValues returns the values of all entities of type t in order.
func EntityValues(entities []Entity, t EntityType) []string {
	values := make([]string, 0)
	for _, e := range entities {
		if e.Type == t {
			values = append(values, e.Value)
		}
	}
	return values
}

// SortEntitiesBySpan orders entities by start offset, then by type.
func SortEntitiesBySpan(entities []Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		return entities[i].Type < entities[j].Type
	})
}
