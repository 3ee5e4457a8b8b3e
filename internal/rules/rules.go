// Package rules loads the keyword tables, regex templates and condition
// dictionary that drive intent extraction and query compilation.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"fhirnlp/internal/model"
)

//go:embed rules.yaml
var defaultRules []byte

// Condition joins for repeated condition codes
const (
	JoinAnd = "and"
	JoinOr  = "or"
)

// RuleSet is the compiled, read-only form of a rules file. It is shared by
// every request and must not be modified after Load returns.
type RuleSet struct {
	DefaultAction   model.Action
	DefaultResource string
	Actions         []ActionRule
	Resources       []ResourceRule
	Genders         []GenderRule
	Modifiers       []ModifierRule
	Ages            []AgeRule
	CountLimit      *regexp.Regexp
	Conditions      []ConditionRule
	Examples        []string
}

type ActionRule struct {
	Action  model.Action
	Pattern *regexp.Regexp
}

type ResourceRule struct {
	Type    string
	Pattern *regexp.Regexp
	Plural  string
	Params  ResourceParams
}

// ResourceParams names the FHIR search parameter used for each intent slot
type ResourceParams struct {
	BirthDate      string `yaml:"birthdate"`
	Gender         string `yaml:"gender"`
	Condition      string `yaml:"condition"`
	ConditionJoin  string `yaml:"condition_join"`
	ClinicalStatus string `yaml:"clinical_status"`
	Recent         string `yaml:"recent"`
}

type GenderRule struct {
	Gender  string
	Pattern *regexp.Regexp
}

type ModifierRule struct {
	Modifier string
	Pattern  *regexp.Regexp
}

// AgeRule captures one number (gt, lt, eq) or two (range)
type AgeRule struct {
	Op      model.AgeOp
	Pattern *regexp.Regexp
}

// ConditionRule maps lower-case terms onto one coded condition
type ConditionRule struct {
	Terms   []string
	Code    string
	System  string
	Display string
}

// Resource returns the rule for a FHIR resource type
func (rs *RuleSet) Resource(resourceType string) (ResourceRule, bool) {
	for _, r := range rs.Resources {
		if r.Type == resourceType {
			return r, true
		}
	}
	return ResourceRule{}, false
}

// file mirrors the YAML layout
type file struct {
	DefaultAction   string `yaml:"default_action"`
	DefaultResource string `yaml:"default_resource"`
	Actions         []struct {
		Action  string `yaml:"action"`
		Pattern string `yaml:"pattern"`
	} `yaml:"actions"`
	Resources []struct {
		Type    string         `yaml:"type"`
		Pattern string         `yaml:"pattern"`
		Plural  string         `yaml:"plural"`
		Params  ResourceParams `yaml:"params"`
	} `yaml:"resources"`
	Genders []struct {
		Gender  string `yaml:"gender"`
		Pattern string `yaml:"pattern"`
	} `yaml:"genders"`
	Modifiers []struct {
		Modifier string `yaml:"modifier"`
		Pattern  string `yaml:"pattern"`
	} `yaml:"modifiers"`
	Age []struct {
		Op      string `yaml:"op"`
		Pattern string `yaml:"pattern"`
	} `yaml:"age"`
	ConditionSystem string `yaml:"condition_system"`
	Conditions      []struct {
		Terms   []string `yaml:"terms"`
		Code    string   `yaml:"code"`
		System  string   `yaml:"system"`
		Display string   `yaml:"display"`
	} `yaml:"conditions"`
	Examples []string `yaml:"examples"`
}

// Default returns the rule set embedded in the binary
func Default() (*RuleSet, error) {
	return Parse(defaultRules)
}

// Load reads a rules file, falling back to the embedded rule set when path is empty
func Load(path string) (*RuleSet, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rs, nil
}

// Parse compiles YAML rules into a RuleSet
func Parse(data []byte) (*RuleSet, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	rs := &RuleSet{
		DefaultAction:   model.Action(f.DefaultAction),
		DefaultResource: f.DefaultResource,
		Examples:        f.Examples,
	}
	if rs.DefaultAction == "" {
		rs.DefaultAction = model.ActionShow
	}
	if rs.DefaultResource == "" {
		rs.DefaultResource = model.ResourcePatient
	}
	if !validAction(rs.DefaultAction) {
		return nil, fmt.Errorf("unknown default action %q", f.DefaultAction)
	}

	for i, a := range f.Actions {
		action := model.Action(a.Action)
		if !validAction(action) {
			return nil, fmt.Errorf("actions[%d]: unknown action %q", i, a.Action)
		}
		re, err := compile(a.Pattern)
		if err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", i, err)
		}
		rs.Actions = append(rs.Actions, ActionRule{Action: action, Pattern: re})
	}

	var plurals []string
	for i, r := range f.Resources {
		if r.Type == "" {
			return nil, fmt.Errorf("resources[%d]: type is required", i)
		}
		re, err := compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("resources[%d]: %w", i, err)
		}
		switch r.Params.ConditionJoin {
		case "":
			r.Params.ConditionJoin = JoinAnd
		case JoinAnd, JoinOr:
		default:
			return nil, fmt.Errorf("resources[%d]: condition_join must be %q or %q", i, JoinAnd, JoinOr)
		}
		rs.Resources = append(rs.Resources, ResourceRule{Type: r.Type, Pattern: re, Plural: r.Plural, Params: r.Params})
		if r.Plural != "" {
			plurals = append(plurals, regexp.QuoteMeta(strings.ToLower(r.Plural)))
		}
	}
	if _, ok := rs.Resource(rs.DefaultResource); !ok {
		return nil, fmt.Errorf("default resource %q has no resource rule", rs.DefaultResource)
	}

	for i, g := range f.Genders {
		re, err := compile(g.Pattern)
		if err != nil {
			return nil, fmt.Errorf("genders[%d]: %w", i, err)
		}
		rs.Genders = append(rs.Genders, GenderRule{Gender: g.Gender, Pattern: re})
	}

	for i, m := range f.Modifiers {
		re, err := compile(m.Pattern)
		if err != nil {
			return nil, fmt.Errorf("modifiers[%d]: %w", i, err)
		}
		rs.Modifiers = append(rs.Modifiers, ModifierRule{Modifier: m.Modifier, Pattern: re})
	}

	for i, a := range f.Age {
		op := model.AgeOp(a.Op)
		want := 1
		switch op {
		case model.AgeRange:
			want = 2
		case model.AgeGreaterThan, model.AgeLessThan, model.AgeEqual:
		default:
			return nil, fmt.Errorf("age[%d]: unknown op %q", i, a.Op)
		}
		re, err := compile(a.Pattern)
		if err != nil {
			return nil, fmt.Errorf("age[%d]: %w", i, err)
		}
		if re.NumSubexp() != want {
			return nil, fmt.Errorf("age[%d]: %s pattern needs %d capture groups, has %d", i, op, want, re.NumSubexp())
		}
		rs.Ages = append(rs.Ages, AgeRule{Op: op, Pattern: re})
	}

	if len(plurals) > 0 {
		rs.CountLimit = regexp.MustCompile(`\b(\d+)\s+(?:` + strings.Join(plurals, "|") + `)\b`)
	}

	seen := make(map[string]bool)
	for i, c := range f.Conditions {
		if c.Code == "" || len(c.Terms) == 0 {
			return nil, fmt.Errorf("conditions[%d]: code and at least one term are required", i)
		}
		system := c.System
		if system == "" {
			system = f.ConditionSystem
		}
		key := system + "|" + c.Code
		if seen[key] {
			return nil, fmt.Errorf("conditions[%d]: duplicate code %s", i, key)
		}
		seen[key] = true

		terms := make([]string, 0, len(c.Terms))
		for _, t := range c.Terms {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				terms = append(terms, t)
			}
		}
		if len(terms) == 0 {
			return nil, fmt.Errorf("conditions[%d]: terms are blank", i)
		}
		rs.Conditions = append(rs.Conditions, ConditionRule{
			Terms:   terms,
			Code:    c.Code,
			System:  system,
			Display: c.Display,
		})
	}

	return rs, nil
}

func compile(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, errors.New("pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

func validAction(a model.Action) bool {
	switch a {
	case model.ActionShow, model.ActionFind, model.ActionGet, model.ActionCount:
		return true
	}
	return false
}
