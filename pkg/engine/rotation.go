package engine

import (
	"sort"
)

// Rotation round-robins FOH picks among each vertical's specialists.
// Cursors are run-scoped.
type Rotation struct {
	rosters map[string][]*CrewMember
	cursors map[string]int
}

// NewRotation builds a roster per vertical of non-Hired crew whose vertical
// capability is "Y*", ordered by seniority rank then crew id.
func NewRotation(crew []*CrewMember) *Rotation {
	r := &Rotation{
		rosters: make(map[string][]*CrewMember),
		cursors: make(map[string]int),
	}
	for _, c := range crew {
		if c.Level == LevelHired {
			continue
		}
		for vertical, capability := range c.VerticalCapabilities {
			if capability == CapabilitySpecialist {
				r.rosters[vertical] = append(r.rosters[vertical], c)
			}
		}
	}
	for _, roster := range r.rosters {
		sort.SliceStable(roster, func(i, j int) bool {
			if roster[i].Level.Rank() != roster[j].Level.Rank() {
				return roster[i].Level.Rank() < roster[j].Level.Rank()
			}
			return roster[i].ID < roster[j].ID
		})
	}
	return r
}

// Roster returns the specialist roster for vertical.
func (r *Rotation) Roster(vertical string) []*CrewMember {
	return r.rosters[vertical]
}

// Next returns the next specialist for vertical who is available on dates and
// capable at venue, advancing the cursor past the pick. It returns nil when no
// specialist qualifies; the cursor is left untouched in that case.
func (r *Rotation) Next(vertical, venue string, dates []string, avail *Availability) *CrewMember {
	roster := r.rosters[vertical]
	if len(roster) == 0 {
		return nil
	}

	filtered := make([]*CrewMember, 0, len(roster))
	for _, c := range roster {
		if !avail.IsAvailable(c.ID, dates) {
			continue
		}
		if !c.VenueCapability(venue).VenueEligible() {
			continue
		}
		filtered = append(filtered, c)
	}
	if len(filtered) == 0 {
		return nil
	}

	idx := r.cursors[vertical] % len(filtered)
	r.cursors[vertical] = (idx + 1) % len(filtered)
	return filtered[idx]
}
