package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirnlp/internal/model"
)

func TestDefault(t *testing.T) {
	rs, err := Default()
	require.NoError(t, err)

	assert.Equal(t, model.ActionShow, rs.DefaultAction)
	assert.Equal(t, model.ResourcePatient, rs.DefaultResource)
	require.Len(t, rs.Actions, 4)
	assert.Equal(t, model.ActionCount, rs.Actions[0].Action, "count must be checked first")
	assert.NotEmpty(t, rs.Examples)

	patient, ok := rs.Resource(model.ResourcePatient)
	require.True(t, ok)
	assert.Equal(t, "_has:Condition:patient:code", patient.Params.Condition)
	assert.Equal(t, JoinAnd, patient.Params.ConditionJoin)

	condition, ok := rs.Resource(model.ResourceCondition)
	require.True(t, ok)
	assert.Equal(t, JoinOr, condition.Params.ConditionJoin)

	_, ok = rs.Resource("Encounter")
	assert.False(t, ok)
}

func TestDefault_ConditionDictionary(t *testing.T) {
	rs, err := Default()
	require.NoError(t, err)

	codes := make(map[string]string)
	for _, c := range rs.Conditions {
		assert.Equal(t, "http://hl7.org/fhir/sid/icd-10-cm", c.System)
		for _, term := range c.Terms {
			codes[term] = c.Code
		}
	}

	assert.Equal(t, "E11.9", codes["diabetes"])
	assert.Equal(t, "E11.9", codes["diabetic"])
	assert.Equal(t, "I10", codes["high blood pressure"])
	assert.Equal(t, "F32.9", codes["depression"])
	assert.Equal(t, "I25.9", codes["heart disease"])
	assert.Equal(t, "J45.9", codes["asthma"])
	assert.Equal(t, "J44.1", codes["copd"])
}

func TestDefault_CountLimitPattern(t *testing.T) {
	rs, err := Default()
	require.NoError(t, err)

	m := rs.CountLimit.FindStringSubmatch("list 3 patients with depression")
	require.Len(t, m, 2)
	assert.Equal(t, "3", m[1])
	assert.False(t, rs.CountLimit.MatchString("patients over 50"))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "invalid yaml",
			yaml: "actions: [",
		},
		{
			name: "bad regex",
			yaml: `
resources:
  - type: Patient
    pattern: '\bpatients?\b'
actions:
  - action: show
    pattern: '(unclosed'
`,
		},
		{
			name: "unknown action",
			yaml: `
resources:
  - type: Patient
    pattern: '\bpatients?\b'
actions:
  - action: delete
    pattern: '\bdelete\b'
`,
		},
		{
			name: "range needs two groups",
			yaml: `
resources:
  - type: Patient
    pattern: '\bpatients?\b'
age:
  - op: range
    pattern: '\bbetween (\d+)\b'
`,
		},
		{
			name: "missing default resource",
			yaml: `
resources:
  - type: Condition
    pattern: '\bconditions?\b'
`,
		},
		{
			name: "bad join",
			yaml: `
resources:
  - type: Patient
    pattern: '\bpatients?\b'
    params:
      condition_join: xor
`,
		},
		{
			name: "duplicate condition code",
			yaml: `
resources:
  - type: Patient
    pattern: '\bpatients?\b'
condition_system: http://hl7.org/fhir/sid/icd-10-cm
conditions:
  - terms: [asthma]
    code: J45.9
  - terms: [wheeze]
    code: J45.9
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_NormalisesTerms(t *testing.T) {
	rs, err := Parse([]byte(`
resources:
  - type: Patient
    pattern: '\bpatients?\b'
    plural: patients
conditions:
  - terms: ["  Gout "]
    code: M10.9
    system: http://hl7.org/fhir/sid/icd-10-cm
`))
	require.NoError(t, err)
	require.Len(t, rs.Conditions, 1)
	assert.Equal(t, []string{"gout"}, rs.Conditions[0].Terms)
	assert.Equal(t, JoinAnd, rs.Resources[0].Params.ConditionJoin)
}

func TestLoad(t *testing.T) {
	rs, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, rs.Conditions)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
resources:
  - type: Patient
    pattern: '\bpatients?\b'
`), 0o600))
	rs, err = Load(path)
	require.NoError(t, err)
	assert.Empty(t, rs.Conditions)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
