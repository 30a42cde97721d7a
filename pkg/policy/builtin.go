package policy

import "time"

// Built-in policy names.
const (
	PolicyRoleOverlap      = "override-role-overlap"
	PolicyHiredFOH         = "override-hired-foh"
	PolicyFOHCapability    = "override-foh-capability"
	PolicyStageEligibility = "override-stage-eligibility"
	PolicyUnavailable      = "override-unavailable"
)

// Only the role overlap rule blocks. The others restate the automatic
// selection rules, which a booker may knowingly break.
var builtins = []struct {
	name, description string
	severity          Severity
	tags              []string
	rego              string
}{
	{
		name:        PolicyRoleOverlap,
		description: "A crew member cannot be both FOH and Stage on the same event",
		severity:    SeverityError,
		tags:        []string{"override", "roles"},
		rego: `package crewdesk.override.overlap

import rego.v1

deny contains violation if {
	foh := input.override.foh
	some member in input.override.stage
	member.id == foh.id
	violation := {
		"message": sprintf("%s cannot hold FOH and Stage on the same event", [foh.name]),
		"severity": "error",
		"crew": foh.id,
	}
}
`,
	},
	{
		name:        PolicyHiredFOH,
		description: "Hired crew are never picked for FOH automatically",
		severity:    SeverityWarning,
		tags:        []string{"override", "foh"},
		rego: `package crewdesk.override.hired

import rego.v1

deny contains violation if {
	foh := input.override.foh
	foh.hired
	violation := {
		"message": sprintf("%s is Hired and would not be picked for FOH", [foh.name]),
		"crew": foh.id,
	}
}
`,
	},
	{
		name:        PolicyFOHCapability,
		description: "FOH should be capable for the event's venue and vertical",
		severity:    SeverityWarning,
		tags:        []string{"override", "foh", "capability"},
		rego: `package crewdesk.override.capability

import rego.v1

deny contains violation if {
	foh := input.override.foh
	not foh.foh_capable
	ev := input.override.event
	violation := {
		"message": sprintf("%s is not FOH capable for %s / %s", [foh.name, ev.venue, ev.vertical]),
		"crew": foh.id,
	}
}
`,
	},
	{
		name:        PolicyStageEligibility,
		description: "Stage crew should be marked as able to do stage work",
		severity:    SeverityWarning,
		tags:        []string{"override", "stage"},
		rego: `package crewdesk.override.stage

import rego.v1

deny contains violation if {
	some member in input.override.stage
	not member.can_stage
	violation := {
		"message": sprintf("%s is not marked for stage work", [member.name]),
		"crew": member.id,
	}
}
`,
	},
	{
		name:        PolicyUnavailable,
		description: "Assigned crew should be available on the event date",
		severity:    SeverityWarning,
		tags:        []string{"override", "availability"},
		rego: `package crewdesk.override.unavailable

import rego.v1

assigned contains crew if {
	crew := input.override.foh
}

assigned contains crew if {
	some crew in input.override.stage
}

deny contains violation if {
	some crew in assigned
	crew.unavailable
	violation := {
		"message": sprintf("%s is unavailable on %s", [crew.name, input.override.event.date]),
		"crew": crew.id,
	}
}
`,
	},
}

// GetBuiltinPolicies returns fresh, enabled copies of the built-in policies.
func GetBuiltinPolicies() []Policy {
	now := time.Now()
	out := make([]Policy, 0, len(builtins))
	for _, b := range builtins {
		out = append(out, Policy{
			Name:        b.name,
			Description: b.description,
			Rego:        b.rego,
			Severity:    b.severity,
			Enabled:     true,
			Tags:        append([]string(nil), b.tags...),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return out
}
