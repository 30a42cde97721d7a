package roster

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

// LoadBatchFile loads an event batch from a YAML file.
func LoadBatchFile(path string) (*BatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	return ParseBatch(data)
}

// ParseBatch parses and validates an event batch document.
func ParseBatch(data []byte) (*BatchFile, error) {
	var bf BatchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("failed to parse batch YAML: %w", err)
	}

	if err := validateStruct("batch file", &bf); err != nil {
		return nil, err
	}

	return &bf, nil
}

// Option configures PrepareBatch.
type Option func(*preparer)

type preparer struct {
	newID func() string
}

// WithIDSource sets the generator for batch and group ids.
func WithIDSource(newID func() string) Option {
	return func(p *preparer) {
		if newID != nil {
			p.newID = newID
		}
	}
}

// PrepareBatch turns a batch file into engine events ready to insert.
//
// Events without an explicit event_group that share a name with another
// event in the batch become one event group under a fresh id. Missing
// stage_crew_needed takes the venue default from rules. The batch id is
// generated when the file has none. Event order follows the file.
func PrepareBatch(bf *BatchFile, rules engine.Rules, opts ...Option) (string, []engine.Event, error) {
	p := &preparer{newID: uuid.NewString}
	for _, opt := range opts {
		opt(p)
	}

	batchID := bf.BatchID
	if batchID == "" {
		batchID = "batch-" + p.newID()
	}

	byName := make(map[string]int)
	for _, e := range bf.Events {
		if e.EventGroup == "" {
			byName[e.Name]++
		}
	}

	groups := make(map[string]string)
	events := make([]engine.Event, 0, len(bf.Events))
	for i, e := range bf.Events {
		date, err := time.Parse(engine.DateLayout, e.Date)
		if err != nil {
			return "", nil, fmt.Errorf("event %d (%s): invalid date %q: %w", i, e.Name, e.Date, err)
		}

		ev := engine.Event{
			BatchID:         batchID,
			Name:            e.Name,
			Date:            date,
			Venue:           e.Venue,
			VenueNormalized: e.VenueNormalized,
			Vertical:        e.Vertical,
		}
		if ev.Venue == "" {
			ev.Venue = e.VenueNormalized
		}

		if e.StageCrewNeeded != nil {
			ev.StageCrewNeeded = *e.StageCrewNeeded
		} else {
			ev.StageCrewNeeded = rules.StageCrewDefault(e.VenueNormalized)
		}

		switch {
		case e.EventGroup != "":
			group := e.EventGroup
			ev.EventGroup = &group
		case byName[e.Name] > 1:
			group, ok := groups[e.Name]
			if !ok {
				group = "group-" + p.newID()
				groups[e.Name] = group
			}
			ev.EventGroup = &group
		}

		events = append(events, ev)
	}

	return batchID, events, nil
}
