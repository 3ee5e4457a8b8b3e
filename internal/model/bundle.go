package model

// Bundle is a FHIR searchset Bundle
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        int           `json:"total"`
	Entry        []BundleEntry `json:"entry"`
}

// BundleEntry wraps one matched resource
type BundleEntry struct {
	FullURL  string        `json:"fullUrl,omitempty"`
	Resource *Patient      `json:"resource"`
	Search   *BundleSearch `json:"search,omitempty"`
}

// BundleSearch records why an entry is in the searchset
type BundleSearch struct {
	Mode string `json:"mode"`
}

// Patient is the canonical record shape of a mock bundle. Requested
// conditions travel with the patient as contained Condition resources.
type Patient struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id"`
	Meta         *Meta        `json:"meta,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Name         []HumanName  `json:"name,omitempty"`
	Gender       string       `json:"gender,omitempty"`
	BirthDate    string       `json:"birthDate,omitempty"`
	Contained    []Condition  `json:"contained,omitempty"`
}

// Condition is a contained FHIR Condition
type Condition struct {
	ResourceType   string          `json:"resourceType"`
	ID             string          `json:"id"`
	ClinicalStatus CodeableConcept `json:"clinicalStatus"`
	Code           CodeableConcept `json:"code"`
	Subject        Reference       `json:"subject"`
	RecordedDate   string          `json:"recordedDate,omitempty"`
}

// Meta carries resource metadata; LastUpdated backs the _lastUpdated search parameter
type Meta struct {
	LastUpdated string `json:"lastUpdated,omitempty"`
}

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
}

// ClinicalStatusSystem is the FHIR code system for Condition.clinicalStatus
const ClinicalStatusSystem = "http://terminology.hl7.org/CodeSystem/condition-clinical"

// HasCode reports whether a contained condition carries system|code
func (p *Patient) HasCode(system, code string) bool {
	for i := range p.Contained {
		if p.Contained[i].HasCode(system, code) {
			return true
		}
	}
	return false
}

// HasCode reports whether the condition is coded as system|code
func (c *Condition) HasCode(system, code string) bool {
	for _, coding := range c.Code.Coding {
		if coding.System == system && coding.Code == code {
			return true
		}
	}
	return false
}

// Status returns the first clinical status code of a condition
func (c *Condition) Status() string {
	if len(c.ClinicalStatus.Coding) == 0 {
		return ""
	}
	return c.ClinicalStatus.Coding[0].Code
}
