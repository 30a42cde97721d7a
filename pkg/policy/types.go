package policy

import "time"

// Severity decides what a violation does to an override: info and warning
// come back as warnings on an applied override, error and critical reject it.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is one house rule. Rego must declare a package with a deny set;
// each member is a message string or an object with "message" and optional
// "severity" and "crew" keys.
type Policy struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Rego        string `json:"rego"`

	// Severity applies to deny entries that do not name their own.
	Severity Severity `json:"severity"`
	Enabled  bool     `json:"enabled"`

	Tags     []string               `json:"tags,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PolicyBundle is the content of a name.bundle.json file.
type PolicyBundle struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Policies    []Policy  `json:"policies"`
	CreatedAt   time.Time `json:"created_at"`
}

// PolicyViolation is one deny entry produced by an evaluation.
type PolicyViolation struct {
	Policy     string    `json:"policy"`
	CrewID     int64     `json:"crew_id,omitempty"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	DetectedAt time.Time `json:"detected_at"`
}

// PolicyResult splits the violations of one evaluation by severity. Allowed
// is false exactly when Violations is non-empty.
type PolicyResult struct {
	Allowed           bool              `json:"allowed"`
	Violations        []PolicyViolation `json:"violations,omitempty"`
	Warnings          []PolicyViolation `json:"warnings,omitempty"`
	EvaluatedPolicies []string          `json:"evaluated_policies"`
	EvaluatedAt       time.Time         `json:"evaluated_at"`
	Duration          time.Duration     `json:"duration"`
}
