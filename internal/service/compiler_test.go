package service

import (
	"errors"
	"math"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirnlp/internal/model"
)

var refNow = time.Date(2025, time.June, 1, 10, 30, 0, 0, time.UTC)

func TestBirthDateRange_Params(t *testing.T) {
	tests := []struct {
		name   string
		filter *model.AgeFilter
		want   []string
	}{
		{name: "greater than", filter: &model.AgeFilter{Op: model.AgeGreaterThan, Value: 50}, want: []string{"lt1974-01-01"}},
		{name: "less than", filter: &model.AgeFilter{Op: model.AgeLessThan, Value: 30}, want: []string{"ge1995-01-01"}},
		{name: "equal", filter: &model.AgeFilter{Op: model.AgeEqual, Value: 40}, want: []string{"ge1984-01-01", "lt1985-01-01"}},
		{name: "range", filter: &model.AgeFilter{Op: model.AgeRange, Min: 40, Max: 70}, want: []string{"ge1954-01-01", "le1984-12-31"}},
		{name: "single year range", filter: &model.AgeFilter{Op: model.AgeRange, Min: 40, Max: 40}, want: []string{"ge1984-01-01", "le1984-12-31"}},
		{name: "nil", filter: nil, want: nil},
		{name: "greater than oldest year", filter: &model.AgeFilter{Op: model.AgeGreaterThan, Value: 2024}, want: []string{"lt0001-01-01"}},
		{name: "greater than max int", filter: &model.AgeFilter{Op: model.AgeGreaterThan, Value: math.MaxInt}, want: []string{"lt0001-01-01"}},
		{name: "less than max int", filter: &model.AgeFilter{Op: model.AgeLessThan, Value: math.MaxInt}, want: []string{"ge0001-01-01"}},
		{name: "equal max int minus one", filter: &model.AgeFilter{Op: model.AgeEqual, Value: math.MaxInt - 1}, want: []string{"ge0001-01-01", "lt0001-01-01"}},
		{name: "range max int", filter: &model.AgeFilter{Op: model.AgeRange, Min: 40, Max: math.MaxInt}, want: []string{"ge0001-01-01", "le1984-12-31"}},
		{name: "negative age", filter: &model.AgeFilter{Op: model.AgeLessThan, Value: math.MinInt}, want: []string{"ge9999-01-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BirthDateRange(tt.filter, refNow).Params())
		})
	}
}

func TestBirthDateRange_Contains(t *testing.T) {
	date := func(s string) time.Time {
		d, err := time.Parse(dateLayout, s)
		require.NoError(t, err)
		return d
	}

	tests := []struct {
		name   string
		filter *model.AgeFilter
		birth  string
		want   bool
	}{
		{name: "over 50 born 1973", filter: &model.AgeFilter{Op: model.AgeGreaterThan, Value: 50}, birth: "1973-12-31", want: true},
		{name: "over 50 born 1974", filter: &model.AgeFilter{Op: model.AgeGreaterThan, Value: 50}, birth: "1974-01-01", want: false},
		{name: "under 30 born 1995", filter: &model.AgeFilter{Op: model.AgeLessThan, Value: 30}, birth: "1995-01-01", want: true},
		{name: "under 30 born 1994", filter: &model.AgeFilter{Op: model.AgeLessThan, Value: 30}, birth: "1994-12-31", want: false},
		{name: "age 40 first day", filter: &model.AgeFilter{Op: model.AgeEqual, Value: 40}, birth: "1984-01-01", want: true},
		{name: "age 40 last day", filter: &model.AgeFilter{Op: model.AgeEqual, Value: 40}, birth: "1984-12-31", want: true},
		{name: "age 40 next year", filter: &model.AgeFilter{Op: model.AgeEqual, Value: 40}, birth: "1985-01-01", want: false},
		{name: "range lower inclusive", filter: &model.AgeFilter{Op: model.AgeRange, Min: 40, Max: 70}, birth: "1954-01-01", want: true},
		{name: "range upper inclusive", filter: &model.AgeFilter{Op: model.AgeRange, Min: 40, Max: 70}, birth: "1984-12-31", want: true},
		{name: "range too old", filter: &model.AgeFilter{Op: model.AgeRange, Min: 40, Max: 70}, birth: "1953-12-31", want: false},
		{name: "range too young", filter: &model.AgeFilter{Op: model.AgeRange, Min: 40, Max: 70}, birth: "1985-01-01", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BirthDateRange(tt.filter, refNow).Contains(date(tt.birth)))
		})
	}
}

func TestBirthDateRange_LowerNeverExceedsUpper(t *testing.T) {
	extractor := NewIntentExtractor(newTestRules(t))

	queries := []string{
		"patients age 0",
		"patients aged 40",
		"patients 65 years old",
		"patients between 40 and 70",
		"patients between 70 and 40",
		"patients between 50 and 50",
		"patients aged 0-120",
		"patients 1 to 2",
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			intent := extractor.Extract(q)
			require.NotNil(t, intent.AgeFilter)
			r := BirthDateRange(intent.AgeFilter, refNow)
			require.NotNil(t, r.Lower)
			require.NotNil(t, r.Upper)
			assert.False(t, r.Lower.Date.After(r.Upper.Date), "lower %s after upper %s", r.Lower.Date, r.Upper.Date)
		})
	}
}

func TestRecentSince(t *testing.T) {
	assert.Equal(t, "2025-05-02", RecentSince(refNow).Format(dateLayout))
	assert.Equal(t, "2024-12-02", RecentSince(time.Date(2025, time.January, 1, 23, 59, 0, 0, time.UTC)).Format(dateLayout))
}

func TestQueryCompiler_Build(t *testing.T) {
	rs := newTestRules(t)
	compiler := NewQueryCompiler(rs)
	extractor := NewIntentExtractor(rs)

	tests := []struct {
		name    string
		query   string
		want    url.Values
		wantURL string
	}{
		{
			name:  "diabetic patients over 50",
			query: "Show me all diabetic patients over 50",
			want: url.Values{
				"birthdate":                   {"lt1974-01-01"},
				"_has:Condition:patient:code": {icd10 + "|E11.9"},
			},
		},
		{
			name:  "age 40 window",
			query: "patients aged 40",
			want: url.Values{
				"birthdate": {"ge1984-01-01", "lt1985-01-01"},
			},
			wantURL: "Patient?birthdate=ge1984-01-01&birthdate=lt1985-01-01",
		},
		{
			name:  "patient conditions are ANDed",
			query: "patients with diabetes and hypertension",
			want: url.Values{
				"_has:Condition:patient:code": {icd10 + "|E11.9", icd10 + "|I10"},
			},
		},
		{
			name:  "condition codes are ORed",
			query: "show conditions of diabetes or hypertension",
			want: url.Values{
				"code": {icd10 + "|E11.9," + icd10 + "|I10"},
			},
		},
		{
			name:  "gender and count",
			query: "List 3 patients with depression, female only",
			want: url.Values{
				"gender":                      {"female"},
				"_has:Condition:patient:code": {icd10 + "|F32.9"},
				"_count":                      {"3"},
			},
		},
		{
			name:  "active and recent patients",
			query: "Get all active recent asthma patients",
			want: url.Values{
				"_has:Condition:patient:code":            {icd10 + "|J45.9"},
				"_has:Condition:patient:clinical-status": {"active"},
				"_lastUpdated":                           {"ge2025-05-02"},
			},
		},
		{
			name:  "active recent conditions",
			query: "show active recent conditions for men under 30",
			want: url.Values{
				"subject:Patient.birthdate": {"ge1995-01-01"},
				"subject:Patient.gender":    {"male"},
				"clinical-status":           {"active"},
				"recorded-date":             {"ge2025-05-02"},
			},
		},
		{
			name:  "observations chain through the patient",
			query: "show recent vitals for diabetic women",
			want: url.Values{
				"subject:Patient.gender":                      {"female"},
				"subject:Patient._has:Condition:patient:code": {icd10 + "|E11.9"},
				"date":                                        {"ge2025-05-02"},
			},
		},
		{
			name:    "nothing implied",
			query:   "show me everything",
			want:    url.Values{},
			wantURL: "Patient",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := compiler.Build(extractor.Extract(tt.query), refNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Params)
			if tt.wantURL != "" {
				assert.Equal(t, tt.wantURL, got.URL)
			}
			for key, values := range got.Params {
				assert.NotEmpty(t, key)
				assert.NotEmpty(t, values)
			}
		})
	}
}

func TestQueryCompiler_BuildURL(t *testing.T) {
	compiler := NewQueryCompiler(newTestRules(t))

	got, err := compiler.Build(&model.QueryIntent{
		ResourceType: model.ResourceCondition,
		Conditions:   []model.ConditionMatch{{Code: "J45.9", System: icd10}},
		Modifiers:    []string{model.ModifierActive},
	}, refNow)
	require.NoError(t, err)

	assert.Equal(t, model.ResourceCondition, got.ResourceType)
	assert.Equal(t, "Condition?clinical-status=active&code=http%3A%2F%2Fhl7.org%2Ffhir%2Fsid%2Ficd-10-cm%7CJ45.9", got.URL)
}

func TestQueryCompiler_BuildIsPure(t *testing.T) {
	rs := newTestRules(t)
	compiler := NewQueryCompiler(rs)
	intent := NewIntentExtractor(rs).Extract("Show me all diabetic patients over 50")

	first, err := compiler.Build(intent, refNow)
	require.NoError(t, err)
	second, err := compiler.Build(intent, refNow)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	later, err := compiler.Build(intent, refNow.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"lt1975-01-01"}, later.Params["birthdate"])
}

func TestQueryCompiler_BuildInvalidArgument(t *testing.T) {
	compiler := NewQueryCompiler(newTestRules(t))

	_, err := compiler.Build(nil, refNow)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = compiler.Build(&model.QueryIntent{ResourceType: "Encounter"}, refNow)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
