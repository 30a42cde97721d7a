package roster

// CrewFile is a crew roster document.
//
//	crew:
//	  - name: Asha
//	    level: Senior
//	    can_stage: false
//	    venues: {JBT: "Y*", Tata: "Y"}
//	    verticals: {Dance: "Y", Theatre: "Exp only"}
type CrewFile struct {
	Crew []CrewEntry `yaml:"crew" validate:"required,min=1,dive"`
}

// CrewEntry is one crew member in a roster file.
type CrewEntry struct {
	Name              string            `yaml:"name" validate:"required"`
	Level             string            `yaml:"level" validate:"required,oneof=Senior Mid Junior Hired"`
	CanStage          bool              `yaml:"can_stage"`
	StageOnlyIfUrgent bool              `yaml:"stage_only_if_urgent"`
	Venues            map[string]string `yaml:"venues" validate:"dive,keys,required,endkeys,capability"`
	Verticals         map[string]string `yaml:"verticals" validate:"dive,keys,required,endkeys,capability"`
	Notes             string            `yaml:"notes,omitempty"`
}

// BatchFile is an already-normalized event batch.
//
//	batch_id: 2024-03-week1   # optional
//	events:
//	  - name: Nutcracker
//	    date: 2024-03-05
//	    venue: Jamshed Bhabha Theatre
//	    venue_normalized: JBT
//	    vertical: Dance
//	    stage_crew_needed: 3    # optional, venue default otherwise
type BatchFile struct {
	BatchID string       `yaml:"batch_id,omitempty"`
	Events  []EventEntry `yaml:"events" validate:"required,min=1,dive"`
}

// EventEntry is one event row in a batch file.
type EventEntry struct {
	Name            string `yaml:"name" validate:"required"`
	Date            string `yaml:"date" validate:"required,datetime=2006-01-02"`
	Venue           string `yaml:"venue,omitempty"`
	VenueNormalized string `yaml:"venue_normalized" validate:"required"`
	Vertical        string `yaml:"vertical" validate:"required"`
	StageCrewNeeded *int   `yaml:"stage_crew_needed,omitempty" validate:"omitempty,min=0"`
	EventGroup      string `yaml:"event_group,omitempty"`
}

// UnavailabilityFile is a bulk unavailability change set.
//
//	entries:
//	  - crew: Asha
//	    dates: [2024-03-05, 2024-03-06]
//	    reason: leave
//	  - crew_id: 4
//	    dates: [2024-03-09]
//	    action: remove
type UnavailabilityFile struct {
	Entries []UnavailabilityEntry `yaml:"entries" validate:"required,min=1,dive"`
}

// Unavailability actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// UnavailabilityEntry names a crew member by name or id.
type UnavailabilityEntry struct {
	Crew   string   `yaml:"crew,omitempty" validate:"required_without=CrewID"`
	CrewID int64    `yaml:"crew_id,omitempty" validate:"omitempty,min=1"`
	Dates  []string `yaml:"dates" validate:"required,min=1,dive,datetime=2006-01-02"`
	Reason string   `yaml:"reason,omitempty"`
	Action string   `yaml:"action,omitempty" validate:"omitempty,oneof=add remove"`
}
