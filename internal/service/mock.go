package service

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"fhirnlp/internal/config"
	"fhirnlp/internal/model"
)

// RandSource is the randomness a MockGenerator draws from. *rand.Rand from
// math/rand satisfies it; the bundle id is read through io.Reader.
type RandSource interface {
	Intn(n int) int
	io.Reader
}

const mrnSystem = "urn:fhirnlp:mock:mrn"

var (
	familyNames      = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez"}
	maleGivenNames   = []string{"John", "Michael", "David", "Chris", "Robert"}
	femaleGivenNames = []string{"Jane", "Sarah", "Lisa", "Amanda", "Jennifer"}
	genders          = []string{model.GenderMale, model.GenderFemale}
	sampledStatuses  = []string{"active", "inactive", "resolved"}
)

// MockGenerator produces synthetic searchset bundles that satisfy an intent
type MockGenerator struct {
	rand       RandSource
	minResults int
	maxResults int
	minAge     int
	maxAge     int
	pool       []model.ConditionMatch
}

// NewMockGenerator creates a generator drawing from src. Candidates get a
// condition sampled from pool when the intent constrains conditions without
// naming one.
func NewMockGenerator(src RandSource, cfg config.MockConfig, pool []model.ConditionMatch) *MockGenerator {
	return &MockGenerator{
		rand:       src,
		minResults: cfg.MinResults,
		maxResults: cfg.MaxResults,
		minAge:     cfg.MinAge,
		maxAge:     cfg.MaxAge,
		pool:       pool,
	}
}

// Generate samples between minResults and maxResults candidate patients,
// keeps those matching the intent and truncates to the intent's count limit.
// Candidate ages are drawn from the part of the configured age range that the
// intent's age filter admits. Candidate ids follow generation order, so gaps
// mark filtered candidates.
func (g *MockGenerator) Generate(intent *model.QueryIntent, now time.Time) (*model.Bundle, error) {
	if intent == nil {
		return nil, fmt.Errorf("%w: intent is nil", ErrInvalidArgument)
	}

	id, err := uuid.NewRandomFromReader(g.rand)
	if err != nil {
		return nil, fmt.Errorf("failed to generate bundle id: %w", err)
	}

	bundle := &model.Bundle{
		ResourceType: "Bundle",
		ID:           id.String(),
		Type:         "searchset",
		Entry:        []model.BundleEntry{},
	}

	minAge, maxAge := g.ageBounds(intent.AgeFilter)
	n := g.minResults + g.rand.Intn(g.maxResults-g.minResults+1)
	for i := 0; i < n; i++ {
		patient := g.candidate(i, intent, now, minAge, maxAge)
		if !MatchesIntent(patient, intent, now) {
			continue
		}
		bundle.Entry = append(bundle.Entry, model.BundleEntry{
			FullURL:  "Patient/" + patient.ID,
			Resource: patient,
			Search:   &model.BundleSearch{Mode: "match"},
		})
	}

	if intent.CountLimit != nil && *intent.CountLimit >= 0 && len(bundle.Entry) > *intent.CountLimit {
		bundle.Entry = bundle.Entry[:*intent.CountLimit]
	}
	bundle.Total = len(bundle.Entry)

	return bundle, nil
}

// ageBounds narrows the configured age range to the ages the filter admits.
// When they do not overlap the configured range is kept and every candidate
// is filtered out.
func (g *MockGenerator) ageBounds(af *model.AgeFilter) (int, int) {
	lo, hi := g.minAge, g.maxAge
	if af == nil {
		return lo, hi
	}

	wantLo, wantHi := lo, hi
	switch af.Op {
	case model.AgeGreaterThan:
		wantLo = math.MaxInt
		if af.Value < math.MaxInt {
			wantLo = af.Value + 1
		}
	case model.AgeLessThan:
		wantHi = math.MinInt
		if af.Value > math.MinInt {
			wantHi = af.Value - 1
		}
	case model.AgeEqual:
		wantLo, wantHi = af.Value, af.Value
	case model.AgeRange:
		wantLo, wantHi = af.Min, af.Max
	}

	if wantLo > lo {
		lo = wantLo
	}
	if wantHi < hi {
		hi = wantHi
	}
	if lo > hi {
		return g.minAge, g.maxAge
	}
	return lo, hi
}

func (g *MockGenerator) candidate(i int, intent *model.QueryIntent, now time.Time, minAge, maxAge int) *model.Patient {
	age := minAge + g.rand.Intn(maxAge-minAge+1)
	gender := genders[g.rand.Intn(len(genders))]
	given := maleGivenNames
	if gender == model.GenderFemale {
		given = femaleGivenNames
	}

	// Born in Y-age-1 so the year-boundary age policy yields exactly age
	birth := time.Date(now.Year()-age-1, time.Month(1+g.rand.Intn(12)), 1+g.rand.Intn(28), 0, 0, 0, 0, time.UTC)

	recent := intent.HasModifier(model.ModifierRecent)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	id := fmt.Sprintf("patient-%d", i+1)
	patient := &model.Patient{
		ResourceType: model.ResourcePatient,
		ID:           id,
		Meta:         &model.Meta{LastUpdated: today.AddDate(0, 0, -g.daysAgo(recent, 365)).Format(time.RFC3339)},
		Identifier: []model.Identifier{{
			System: mrnSystem,
			Value:  fmt.Sprintf("MRN-%06d", g.rand.Intn(1000000)),
		}},
		Name: []model.HumanName{{
			Use:    "official",
			Family: familyNames[g.rand.Intn(len(familyNames))],
			Given:  []string{given[g.rand.Intn(len(given))]},
		}},
		Gender:    gender,
		BirthDate: birth.Format(dateLayout),
	}

	conditions := intent.Conditions
	if len(conditions) == 0 && needsCondition(intent) && len(g.pool) > 0 {
		conditions = []model.ConditionMatch{g.pool[g.rand.Intn(len(g.pool))]}
	}

	for j, cond := range conditions {
		status := "active"
		if !intent.HasModifier(model.ModifierActive) {
			status = sampledStatuses[g.rand.Intn(len(sampledStatuses))]
		}
		patient.Contained = append(patient.Contained, model.Condition{
			ResourceType: model.ResourceCondition,
			ID:           fmt.Sprintf("condition-%d", j+1),
			ClinicalStatus: model.CodeableConcept{
				Coding: []model.Coding{{System: model.ClinicalStatusSystem, Code: status}},
			},
			Code: model.CodeableConcept{
				Coding: []model.Coding{{System: cond.System, Code: cond.Code, Display: cond.Display}},
				Text:   cond.Display,
			},
			Subject:      model.Reference{Reference: "Patient/" + id},
			RecordedDate: today.AddDate(0, 0, -g.daysAgo(recent, 3*365)).Format(dateLayout),
		})
	}

	return patient
}

// daysAgo samples an offset inside the recent window when recent is set,
// otherwise within the last window days
func (g *MockGenerator) daysAgo(recent bool, window int) int {
	if recent {
		return g.rand.Intn(RecentDays)
	}
	return g.rand.Intn(window)
}

// MatchesIntent re-evaluates the intent's predicates against a patient using
// the same date semantics as QueryCompiler.Build
func MatchesIntent(p *model.Patient, intent *model.QueryIntent, now time.Time) bool {
	if p == nil || intent == nil {
		return false
	}

	if intent.AgeFilter != nil {
		birth, err := time.Parse(dateLayout, p.BirthDate)
		if err != nil || !BirthDateRange(intent.AgeFilter, now).Contains(birth) {
			return false
		}
	}

	if intent.Gender != nil && p.Gender != *intent.Gender {
		return false
	}

	active := intent.HasModifier(model.ModifierActive)
	recent := intent.HasModifier(model.ModifierRecent)
	since := RecentSince(now)

	if recent {
		if p.Meta == nil {
			return false
		}
		updated, err := time.Parse(time.RFC3339, p.Meta.LastUpdated)
		if err != nil || updated.Before(since) {
			return false
		}
	}

	for i := range intent.Conditions {
		if !hasMatchingCondition(p, &intent.Conditions[i], active, recent, since) {
			return false
		}
	}

	if len(intent.Conditions) == 0 && needsCondition(intent) {
		recentCondition := recent && intent.ResourceType != model.ResourcePatient
		if !hasMatchingCondition(p, nil, active, recentCondition, since) {
			return false
		}
	}

	return true
}

// needsCondition reports whether the compiled search constrains conditions
// through a modifier alone: clinical status for "active", and the recorded
// date for "recent" on Condition and Observation searches.
func needsCondition(intent *model.QueryIntent) bool {
	if intent.HasModifier(model.ModifierActive) {
		return true
	}
	return intent.HasModifier(model.ModifierRecent) && intent.ResourceType != model.ResourcePatient
}

// hasMatchingCondition finds a contained condition satisfying the status and
// date constraints. A nil want accepts any code.
func hasMatchingCondition(p *model.Patient, want *model.ConditionMatch, active, recent bool, since time.Time) bool {
	for i := range p.Contained {
		c := &p.Contained[i]
		if want != nil && !c.HasCode(want.System, want.Code) {
			continue
		}
		if active && c.Status() != "active" {
			continue
		}
		if recent {
			recorded, err := time.Parse(dateLayout, c.RecordedDate)
			if err != nil || recorded.Before(since) {
				continue
			}
		}
		return true
	}
	return false
}
