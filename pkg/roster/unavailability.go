package roster

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

// LoadUnavailabilityFile loads a bulk unavailability file.
func LoadUnavailabilityFile(path string) (*UnavailabilityFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read unavailability file: %w", err)
	}
	return ParseUnavailability(data)
}

// ParseUnavailability parses and validates a bulk unavailability document.
func ParseUnavailability(data []byte) (*UnavailabilityFile, error) {
	var uf UnavailabilityFile
	if err := yaml.Unmarshal(data, &uf); err != nil {
		return nil, fmt.Errorf("failed to parse unavailability YAML: %w", err)
	}

	if err := validateStruct("unavailability file", &uf); err != nil {
		return nil, err
	}

	return &uf, nil
}

// CrewLookup resolves a crew name to its id.
type CrewLookup func(name string) (int64, error)

// Removal is a set of dates to clear for one crew member.
type Removal struct {
	CrewID int64
	Dates  []time.Time
}

// ChangeSet is a resolved bulk unavailability change.
type ChangeSet struct {
	Add    []engine.Unavailability
	Remove []Removal
}

// Resolve maps names to ids and splits entries into additions and removals.
// Entries without an action are additions.
func (uf *UnavailabilityFile) Resolve(lookup CrewLookup) (*ChangeSet, error) {
	cs := &ChangeSet{}
	for i, e := range uf.Entries {
		crewID := e.CrewID
		if crewID == 0 {
			id, err := lookup(e.Crew)
			if err != nil {
				return nil, fmt.Errorf("entry %d: crew %q: %w", i, e.Crew, err)
			}
			crewID = id
		}

		dates, err := ParseDates(e.Dates)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		if e.Action == ActionRemove {
			cs.Remove = append(cs.Remove, Removal{CrewID: crewID, Dates: dates})
			continue
		}
		for _, d := range dates {
			cs.Add = append(cs.Add, engine.Unavailability{CrewID: crewID, Date: d, Reason: e.Reason})
		}
	}
	return cs, nil
}

// ParseDates parses YYYY-MM-DD dates.
func ParseDates(values []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		d, err := time.Parse(engine.DateLayout, v)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", v, err)
		}
		out = append(out, d)
	}
	return out, nil
}
