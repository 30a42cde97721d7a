package policy

import (
	"time"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

// PolicyInput is the document policies see as `input`.
type PolicyInput struct {
	Override *OverrideDoc   `json:"override,omitempty"`
	Context  *PolicyContext `json:"context"`
}

// OverrideDoc describes a proposed manual override. Capability fields are
// resolved in Go so policies compare booleans rather than capability tables.
type OverrideDoc struct {
	Event             EventDoc  `json:"event"`
	ExperimentalVenue string    `json:"experimental_venue"`
	FOH               *CrewDoc  `json:"foh,omitempty"`
	Stage             []CrewDoc `json:"stage"`
}

// EventDoc is the event under override.
type EventDoc struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	Venue      string `json:"venue"`
	Vertical   string `json:"vertical"`
	EventGroup string `json:"event_group,omitempty"`
}

// CrewDoc is a crew member proposed for the event.
type CrewDoc struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Level         string `json:"level"`
	Hired         bool   `json:"hired"`
	FOHCapable    bool   `json:"foh_capable"`
	FOHSpecialist bool   `json:"foh_specialist"`
	CanStage      bool   `json:"can_stage"`
	Unavailable   bool   `json:"unavailable"`
}

// PolicyContext is input.context.
type PolicyContext struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation,omitempty"`
}

// NewOverrideDoc builds the policy document for an override.
func NewOverrideDoc(in engine.OverrideInput) *OverrideDoc {
	unavailable := make(map[int64]bool, len(in.UnavailableCrew))
	for _, id := range in.UnavailableCrew {
		unavailable[id] = true
	}

	ev := in.Event
	doc := &OverrideDoc{
		Event: EventDoc{
			ID:       ev.ID,
			Name:     ev.Name,
			Date:     ev.DateKey(),
			Venue:    ev.VenueNormalized,
			Vertical: ev.Vertical,
		},
		ExperimentalVenue: in.ExperimentalVenue,
		Stage:             make([]CrewDoc, 0, len(in.Stage)),
	}
	if ev.EventGroup != nil {
		doc.Event.EventGroup = *ev.EventGroup
	}

	crewDoc := func(c *engine.CrewMember) CrewDoc {
		foh := engine.CanDoFOH(c, ev.VenueNormalized, ev.Vertical, in.ExperimentalVenue)
		return CrewDoc{
			ID:            c.ID,
			Name:          c.Name,
			Level:         string(c.Level),
			Hired:         c.Level == engine.LevelHired,
			FOHCapable:    foh.Can,
			FOHSpecialist: foh.IsSpecialist,
			CanStage:      engine.CanDoStage(c),
			Unavailable:   unavailable[c.ID],
		}
	}

	if in.FOH != nil {
		d := crewDoc(in.FOH)
		doc.FOH = &d
	}
	for i := range in.Stage {
		doc.Stage = append(doc.Stage, crewDoc(&in.Stage[i]))
	}
	return doc
}
