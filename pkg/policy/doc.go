// Package policy checks manual crew overrides with Open Policy Agent.
//
// The Engine compiles Rego modules into prepared queries over each module's
// deny set and implements engine.OverrideChecker, so the assignment engine
// consults it before an override is written. Violations with severity error
// or critical reject the override; the rest are returned as warnings.
//
// # Input
//
// Policies see a single document:
//
//	{
//	  "override": {
//	    "event": {"id": 7, "name": "...", "date": "2024-03-05", "venue": "JBT", "vertical": "Dance"},
//	    "experimental_venue": "Experimental",
//	    "foh": {"id": 1, "name": "...", "level": "Senior", "hired": false,
//	            "foh_capable": true, "foh_specialist": true, "can_stage": false, "unavailable": false},
//	    "stage": [ ...same shape as foh... ]
//	  },
//	  "context": {"timestamp": "...", "operation": "override"}
//	}
//
// Capability flags are resolved in Go with engine.CanDoFOH, so a policy
// never re-implements the capability tables.
//
// # Built-in Policies
//
//   - override-role-overlap (error): one crew member on FOH and Stage
//   - override-hired-foh (warning): Hired crew on FOH
//   - override-foh-capability (warning): FOH not capable for venue or vertical
//   - override-stage-eligibility (warning): Stage crew not marked for stage work
//   - override-unavailable (warning): crew unavailable on the event date
//
// # Custom Policies
//
// LoadPolicies reads .rego files, single-policy .json files and
// *.bundle.json bundles from files or directories. A deny set member may be a
// string or an object with message, severity and crew fields:
//
//	package crewdesk.local.stage_size
//
//	import rego.v1
//
//	deny contains violation if {
//	    count(input.override.stage) > 4
//	    violation := {"message": "too many stage crew", "severity": "error"}
//	}
//
// A leading comment block describes a .rego policy; "# severity:",
// "# tags:" and "# enabled:" lines in it set those fields.
//
// Watcher reports edits to policy and rule files, for validate --watch.
package policy
