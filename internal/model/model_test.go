package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgeFilter_MarshalJSON(t *testing.T) {
	tests := []struct {
		name   string
		filter AgeFilter
		want   string
	}{
		{name: "greater than", filter: AgeFilter{Op: AgeGreaterThan, Value: 50}, want: `{"op":"gt","value":50}`},
		{name: "zero is kept", filter: AgeFilter{Op: AgeLessThan, Value: 0}, want: `{"op":"lt","value":0}`},
		{name: "range", filter: AgeFilter{Op: AgeRange, Min: 40, Max: 70}, want: `{"op":"range","min":40,"max":70}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.filter)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestQueryIntent_OmitsAbsentFields(t *testing.T) {
	intent := &QueryIntent{
		Action:       ActionShow,
		ResourceType: ResourcePatient,
		Conditions:   []ConditionMatch{},
		Modifiers:    []string{},
	}

	got, err := json.Marshal(intent)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"show","resource_type":"Patient","conditions":[],"modifiers":[]}`, string(got))
}

func TestQueryIntent_HasModifier(t *testing.T) {
	intent := &QueryIntent{Modifiers: []string{ModifierAll, ModifierRecent}}

	assert.True(t, intent.HasModifier(ModifierRecent))
	assert.False(t, intent.HasModifier(ModifierActive))
}

func TestJSONMap_ScanAndValue(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan([]byte(`{"action":"count"}`)))
	assert.Equal(t, "count", m["action"])

	require.NoError(t, m.Scan(`{"action":"find"}`))
	assert.Equal(t, "find", m["action"])

	require.NoError(t, m.Scan(nil))
	assert.Nil(t, m)

	assert.Error(t, m.Scan(42))

	v, err := JSONMap{"a": 1}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(v.([]byte)))
}

func TestJSONArray_ScanAndValue(t *testing.T) {
	var a JSONArray
	require.NoError(t, a.Scan([]byte(`["all","active"]`)))
	assert.Equal(t, JSONArray{"all", "active"}, a)

	v, err := JSONArray(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestToJSONMap(t *testing.T) {
	m, err := ToJSONMap(&QueryIntent{Action: ActionCount, ResourceType: ResourcePatient})
	require.NoError(t, err)
	assert.Equal(t, "count", m["action"])

	_, err = ToJSONMap([]string{"not", "an", "object"})
	assert.Error(t, err)
}

func TestPatient_HasCode(t *testing.T) {
	p := &Patient{Contained: []Condition{{
		Code: CodeableConcept{Coding: []Coding{{System: "http://hl7.org/fhir/sid/icd-10-cm", Code: "J45.9"}}},
	}}}

	assert.True(t, p.HasCode("http://hl7.org/fhir/sid/icd-10-cm", "J45.9"))
	assert.False(t, p.HasCode("http://hl7.org/fhir/sid/icd-10-cm", "E11.9"))
	assert.False(t, p.HasCode("http://snomed.info/sct", "J45.9"))
}
