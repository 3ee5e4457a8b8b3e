package service

import (
	"strconv"
	"strings"

	"fhirnlp/internal/model"
	"fhirnlp/internal/rules"
)

// IntentExtractor parses natural language queries into a QueryIntent using
// a fixed rule set
type IntentExtractor struct {
	rules *rules.RuleSet
}

// NewIntentExtractor creates a new intent extractor
func NewIntentExtractor(rs *rules.RuleSet) *IntentExtractor {
	return &IntentExtractor{
		rules: rs,
	}
}

// Extract never fails. Fields with no matching rule keep their default or stay absent.
func (e *IntentExtractor) Extract(text string) *model.QueryIntent {
	intent := &model.QueryIntent{
		Action:       e.rules.DefaultAction,
		ResourceType: e.rules.DefaultResource,
		Conditions:   []model.ConditionMatch{},
		Modifiers:    []string{},
	}

	query := strings.ToLower(strings.TrimSpace(text))
	if query == "" {
		return intent
	}

	for _, r := range e.rules.Actions {
		if r.Pattern.MatchString(query) {
			intent.Action = r.Action
			break
		}
	}

	for _, r := range e.rules.Resources {
		if r.Pattern.MatchString(query) {
			intent.ResourceType = r.Type
			break
		}
	}

	intent.Conditions = e.extractConditions(query)
	var ageSpans []span
	intent.AgeFilter, ageSpans = e.extractAge(query)
	intent.CountLimit = e.extractCountLimit(query, ageSpans)

	for _, r := range e.rules.Genders {
		if r.Pattern.MatchString(query) {
			gender := r.Gender
			intent.Gender = &gender
			break
		}
	}

	for _, r := range e.rules.Modifiers {
		if r.Pattern.MatchString(query) {
			intent.Modifiers = append(intent.Modifiers, r.Modifier)
		}
	}

	return intent
}

// KnownConditions lists every condition in the dictionary, named by its first term
func (e *IntentExtractor) KnownConditions() []model.ConditionMatch {
	out := make([]model.ConditionMatch, 0, len(e.rules.Conditions))
	for _, c := range e.rules.Conditions {
		name := ""
		if len(c.Terms) > 0 {
			name = c.Terms[0]
		}
		out = append(out, model.ConditionMatch{Name: name, Code: c.Code, System: c.System, Display: c.Display})
	}
	return out
}

// extractConditions collects every dictionary entry with a term contained in
// the query, in dictionary order. Each entry contributes at most once.
func (e *IntentExtractor) extractConditions(query string) []model.ConditionMatch {
	matches := []model.ConditionMatch{}
	for _, c := range e.rules.Conditions {
		for _, term := range c.Terms {
			if strings.Contains(query, term) {
				matches = append(matches, model.ConditionMatch{
					Name:    term,
					Code:    c.Code,
					System:  c.System,
					Display: c.Display,
				})
				break
			}
		}
	}
	return matches
}

// span is the byte range of a number captured from the query
type span struct{ start, end int }

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// extractAge returns the first age filter by rule priority together with the
// spans of the numbers it consumed
func (e *IntentExtractor) extractAge(query string) (*model.AgeFilter, []span) {
	for _, r := range e.rules.Ages {
		m := r.Pattern.FindStringSubmatchIndex(query)
		if m == nil {
			continue
		}

		if r.Op == model.AgeRange {
			lo, err1 := strconv.Atoi(query[m[2]:m[3]])
			hi, err2 := strconv.Atoi(query[m[4]:m[5]])
			if err1 != nil || err2 != nil {
				continue
			}
			if lo > hi {
				lo, hi = hi, lo
			}
			return &model.AgeFilter{Op: model.AgeRange, Min: lo, Max: hi}, []span{{m[2], m[3]}, {m[4], m[5]}}
		}

		v, err := strconv.Atoi(query[m[2]:m[3]])
		if err != nil {
			continue
		}
		return &model.AgeFilter{Op: r.Op, Value: v}, []span{{m[2], m[3]}}
	}
	return nil, nil
}

// extractCountLimit takes the first "<N> <plural>" whose number was not
// already read as an age
func (e *IntentExtractor) extractCountLimit(query string, taken []span) *int {
	if e.rules.CountLimit == nil {
		return nil
	}
	for _, m := range e.rules.CountLimit.FindAllStringSubmatchIndex(query, -1) {
		num := span{m[2], m[3]}
		if overlapsAny(num, taken) {
			continue
		}
		n, err := strconv.Atoi(query[num.start:num.end])
		if err != nil || n <= 0 {
			return nil
		}
		return &n
	}
	return nil
}

func overlapsAny(s span, spans []span) bool {
	for _, o := range spans {
		if s.overlaps(o) {
			return true
		}
	}
	return false
}
