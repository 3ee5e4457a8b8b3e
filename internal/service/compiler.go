package service

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fhirnlp/internal/model"
	"fhirnlp/internal/rules"
)

// ErrInvalidArgument is returned when a caller breaks a pipeline contract,
// such as passing a nil intent
var ErrInvalidArgument = errors.New("invalid argument")

const (
	dateLayout = "2006-01-02"

	// RecentDays is how far back the "recent" modifier reaches
	RecentDays = 30

	countParam = "_count"

	// Birth years are clamped to what a FHIR date can carry
	minYear = 1
	maxYear = 9999
)

// DateBound is one end of a date range
type DateBound struct {
	Date      time.Time
	Inclusive bool
}

// DateRange is a birth date window. A nil bound is open.
type DateRange struct {
	Lower *DateBound
	Upper *DateBound
}

// BirthDateRange converts an age filter into birth dates relative to now.
//
// Ages follow a year-boundary policy: someone born in calendar year b is
// treated as Y-b-1 years old, where Y is now's year (the age reached by the
// end of the previous year). Every window therefore starts on 1 January or
// ends on 31 December and does not move within a calendar year. Ages too large
// for a four digit year saturate at year 1.
func BirthDateRange(af *model.AgeFilter, now time.Time) DateRange {
	if af == nil {
		return DateRange{}
	}
	y := now.Year()

	switch af.Op {
	case model.AgeGreaterThan:
		return DateRange{Upper: &DateBound{Date: jan1(yearsBefore(y-1, af.Value))}}
	case model.AgeLessThan:
		return DateRange{Lower: &DateBound{Date: jan1(yearsBefore(y, af.Value)), Inclusive: true}}
	case model.AgeEqual:
		return DateRange{
			Lower: &DateBound{Date: jan1(yearsBefore(y-1, af.Value)), Inclusive: true},
			Upper: &DateBound{Date: jan1(yearsBefore(y, af.Value))},
		}
	case model.AgeRange:
		lo, hi := af.Min, af.Max
		if lo > hi {
			lo, hi = hi, lo
		}
		return DateRange{
			Lower: &DateBound{Date: jan1(yearsBefore(y-1, hi)), Inclusive: true},
			Upper: &DateBound{Date: dec31(yearsBefore(y-1, lo)), Inclusive: true},
		}
	}
	return DateRange{}
}

// yearsBefore returns year-n clamped to [minYear, maxYear] without overflowing
func yearsBefore(year, n int) int {
	switch {
	case n >= year-minYear:
		return minYear
	case n <= year-maxYear:
		return maxYear
	}
	return year - n
}

// IsZero reports whether the range has no bounds
func (r DateRange) IsZero() bool {
	return r.Lower == nil && r.Upper == nil
}

// Contains reports whether t falls inside the range
func (r DateRange) Contains(t time.Time) bool {
	if r.Lower != nil {
		if r.Lower.Inclusive && t.Before(r.Lower.Date) {
			return false
		}
		if !r.Lower.Inclusive && !t.After(r.Lower.Date) {
			return false
		}
	}
	if r.Upper != nil {
		if r.Upper.Inclusive && t.After(r.Upper.Date) {
			return false
		}
		if !r.Upper.Inclusive && !t.Before(r.Upper.Date) {
			return false
		}
	}
	return true
}

// Params renders the range as FHIR date search values, lower bound first
func (r DateRange) Params() []string {
	var out []string
	if r.Lower != nil {
		prefix := "gt"
		if r.Lower.Inclusive {
			prefix = "ge"
		}
		out = append(out, prefix+r.Lower.Date.Format(dateLayout))
	}
	if r.Upper != nil {
		prefix := "lt"
		if r.Upper.Inclusive {
			prefix = "le"
		}
		out = append(out, prefix+r.Upper.Date.Format(dateLayout))
	}
	return out
}

// RecentSince is the first day covered by the "recent" modifier
func RecentSince(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -RecentDays)
}

func jan1(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func dec31(year int) time.Time {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
}

// QueryCompiler turns intents into FHIR search parameters
type QueryCompiler struct {
	rules *rules.RuleSet
}

// NewQueryCompiler creates a new query compiler
func NewQueryCompiler(rs *rules.RuleSet) *QueryCompiler {
	return &QueryCompiler{
		rules: rs,
	}
}

// Build compiles an intent against now. It is a pure function of its inputs
// and emits no parameter the intent does not imply.
func (c *QueryCompiler) Build(intent *model.QueryIntent, now time.Time) (*model.CompiledQuery, error) {
	if intent == nil {
		return nil, fmt.Errorf("%w: intent is nil", ErrInvalidArgument)
	}
	resource, ok := c.rules.Resource(intent.ResourceType)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported resource type %q", ErrInvalidArgument, intent.ResourceType)
	}
	p := resource.Params
	params := url.Values{}

	if intent.AgeFilter != nil && p.BirthDate != "" {
		for _, v := range BirthDateRange(intent.AgeFilter, now).Params() {
			params.Add(p.BirthDate, v)
		}
	}

	if intent.Gender != nil && p.Gender != "" {
		params.Set(p.Gender, *intent.Gender)
	}

	if len(intent.Conditions) > 0 && p.Condition != "" {
		tokens := make([]string, 0, len(intent.Conditions))
		for _, cond := range intent.Conditions {
			tokens = append(tokens, cond.System+"|"+cond.Code)
		}
		if p.ConditionJoin == rules.JoinOr {
			params.Set(p.Condition, strings.Join(tokens, ","))
		} else {
			params[p.Condition] = tokens
		}
	}

	if intent.HasModifier(model.ModifierActive) && p.ClinicalStatus != "" {
		params.Set(p.ClinicalStatus, "active")
	}

	if intent.HasModifier(model.ModifierRecent) && p.Recent != "" {
		params.Set(p.Recent, "ge"+RecentSince(now).Format(dateLayout))
	}

	if intent.CountLimit != nil && *intent.CountLimit > 0 {
		params.Set(countParam, strconv.Itoa(*intent.CountLimit))
	}

	query := &model.CompiledQuery{
		ResourceType: resource.Type,
		Params:       params,
		URL:          resource.Type,
	}
	if len(params) > 0 {
		query.URL += "?" + params.Encode()
	}
	return query, nil
}
