package engine

import (
	"fmt"
	"strings"
)

// Capability is a crew member's standing for a venue or vertical.
type Capability int

const (
	// CapabilityNone means no entry exists; treated as ineligible.
	CapabilityNone Capability = iota
	// CapabilityNo is an explicit "N".
	CapabilityNo
	// CapabilityYes is "Y".
	CapabilityYes
	// CapabilitySpecialist is "Y*": eligible and preferred.
	CapabilitySpecialist
	// CapabilityExperimentalOnly is "Exp only": eligible for a vertical only
	// at the experimental venue. Only meaningful in vertical matrices.
	CapabilityExperimentalOnly
)

var capabilityLabels = map[Capability]string{
	CapabilityNone:             "",
	CapabilityNo:               "N",
	CapabilityYes:              "Y",
	CapabilitySpecialist:       "Y*",
	CapabilityExperimentalOnly: "Exp only",
}

// ParseCapability converts a matrix label into a Capability. Surrounding
// whitespace is ignored.
func ParseCapability(label string) (Capability, error) {
	label = strings.TrimSpace(label)
	for c, l := range capabilityLabels {
		if l == label {
			return c, nil
		}
	}
	return CapabilityNone, fmt.Errorf("unknown capability %q", label)
}

func (c Capability) String() string {
	if l, ok := capabilityLabels[c]; ok {
		return l
	}
	return fmt.Sprintf("Capability(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Capability) MarshalText() ([]byte, error) {
	l, ok := capabilityLabels[c]
	if !ok {
		return nil, fmt.Errorf("invalid capability %d", int(c))
	}
	return []byte(l), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Capability) UnmarshalText(text []byte) error {
	parsed, err := ParseCapability(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// VenueEligible reports whether a venue capability admits the crew member.
// "Exp only" belongs to vertical matrices and never qualifies a venue.
func (c Capability) VenueEligible() bool {
	switch c {
	case CapabilityYes, CapabilitySpecialist:
		return true
	default:
		return false
	}
}

// FOHCapability is the result of resolving FOH eligibility.
type FOHCapability struct {
	Can          bool
	IsSpecialist bool
}

// CanDoFOH resolves whether crew may run FOH at venue for vertical.
// Hired crew are excluded by callers, not here.
func CanDoFOH(crew *CrewMember, venue, vertical, experimentalVenue string) FOHCapability {
	venueCap := crew.VenueCapability(venue)
	verticalCap := crew.VerticalCapability(vertical)

	if !venueCap.VenueEligible() {
		return FOHCapability{}
	}

	switch verticalCap {
	case CapabilityNone, CapabilityNo:
		return FOHCapability{}
	case CapabilityExperimentalOnly:
		return FOHCapability{Can: venue == experimentalVenue}
	case CapabilityYes, CapabilitySpecialist:
		return FOHCapability{
			Can:          true,
			IsSpecialist: venueCap == CapabilitySpecialist || verticalCap == CapabilitySpecialist,
		}
	default:
		return FOHCapability{}
	}
}

// CanDoStage reports Stage eligibility; no venue or vertical check applies.
func CanDoStage(crew *CrewMember) bool {
	return crew.CanStage
}
