package model

import "encoding/json"

// Action is what the query asks to do with the matched resources
type Action string

const (
	ActionShow  Action = "show"
	ActionFind  Action = "find"
	ActionGet   Action = "get"
	ActionCount Action = "count"
)

// Resource types the extractor can recognise
const (
	ResourcePatient     = "Patient"
	ResourceCondition   = "Condition"
	ResourceObservation = "Observation"
)

// Modifier flags detected independently of each other
const (
	ModifierAll    = "all"
	ModifierActive = "active"
	ModifierRecent = "recent"
)

// Gender values used in intents and mock resources
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// AgeOp is the shape of an age filter
type AgeOp string

const (
	AgeGreaterThan AgeOp = "gt"
	AgeLessThan    AgeOp = "lt"
	AgeEqual       AgeOp = "eq"
	AgeRange       AgeOp = "range"
)

// QueryIntent represents the normalized intent extracted from a natural language query
type QueryIntent struct {
	Action       Action           `json:"action"`
	ResourceType string           `json:"resource_type"`
	Conditions   []ConditionMatch `json:"conditions"`
	AgeFilter    *AgeFilter       `json:"age_filter,omitempty"`
	Gender       *string          `json:"gender,omitempty"`
	CountLimit   *int             `json:"count_limit,omitempty"`
	Modifiers    []string         `json:"modifiers"`
}

// ConditionMatch is a clinical term found in the query with its coded form
type ConditionMatch struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	System  string `json:"system"`
	Display string `json:"display"`
}

// AgeFilter holds one age constraint. Value is set for gt/lt/eq, Min and Max for range.
type AgeFilter struct {
	Op    AgeOp `json:"op"`
	Value int   `json:"value"`
	Min   int   `json:"min"`
	Max   int   `json:"max"`
}

// MarshalJSON writes only the fields that belong to the filter's shape, so a
// zero bound is never confused with an absent one
func (a AgeFilter) MarshalJSON() ([]byte, error) {
	if a.Op == AgeRange {
		return json.Marshal(struct {
			Op  AgeOp `json:"op"`
			Min int   `json:"min"`
			Max int   `json:"max"`
		}{a.Op, a.Min, a.Max})
	}
	return json.Marshal(struct {
		Op    AgeOp `json:"op"`
		Value int   `json:"value"`
	}{a.Op, a.Value})
}

// HasModifier reports whether the intent carries the given modifier
func (i *QueryIntent) HasModifier(modifier string) bool {
	for _, m := range i.Modifiers {
		if m == modifier {
			return true
		}
	}
	return false
}
