package roster

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

// LoadCrewFile loads a crew roster from a YAML file.
func LoadCrewFile(path string) (*CrewFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read crew file: %w", err)
	}
	return ParseCrew(data)
}

// ParseCrew parses and validates a crew roster document.
func ParseCrew(data []byte) (*CrewFile, error) {
	var cf CrewFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse crew YAML: %w", err)
	}

	if err := validateStruct("crew file", &cf); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(cf.Crew))
	for _, c := range cf.Crew {
		if seen[c.Name] {
			return nil, fmt.Errorf("invalid crew file: %s listed more than once", c.Name)
		}
		seen[c.Name] = true
	}

	return &cf, nil
}

// Members converts the roster into engine crew members without ids.
func (cf *CrewFile) Members() ([]engine.CrewMember, error) {
	out := make([]engine.CrewMember, 0, len(cf.Crew))
	for _, c := range cf.Crew {
		m, err := c.ToCrewMember()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ToCrewMember converts an entry into an engine crew member.
func (c CrewEntry) ToCrewMember() (engine.CrewMember, error) {
	venues, err := parseMatrix(c.Name, "venue", c.Venues)
	if err != nil {
		return engine.CrewMember{}, err
	}
	verticals, err := parseMatrix(c.Name, "vertical", c.Verticals)
	if err != nil {
		return engine.CrewMember{}, err
	}

	return engine.CrewMember{
		Name:                 c.Name,
		Level:                engine.Level(c.Level),
		CanStage:             c.CanStage,
		StageOnlyIfUrgent:    c.StageOnlyIfUrgent,
		VenueCapabilities:    venues,
		VerticalCapabilities: verticals,
		SpecialNotes:         c.Notes,
	}, nil
}

func parseMatrix(name, kind string, labels map[string]string) (map[string]engine.Capability, error) {
	out := make(map[string]engine.Capability, len(labels))
	for key, label := range labels {
		c, err := engine.ParseCapability(label)
		if err != nil {
			return nil, fmt.Errorf("crew %s %s %s: %w", name, kind, key, err)
		}
		// Empty labels mean no entry.
		if c == engine.CapabilityNone {
			continue
		}
		out[key] = c
	}
	return out, nil
}

// FromMembers builds a roster document from stored crew, sorted by name.
func FromMembers(members []engine.CrewMember) *CrewFile {
	cf := &CrewFile{Crew: make([]CrewEntry, 0, len(members))}
	for _, m := range members {
		cf.Crew = append(cf.Crew, CrewEntry{
			Name:              m.Name,
			Level:             string(m.Level),
			CanStage:          m.CanStage,
			StageOnlyIfUrgent: m.StageOnlyIfUrgent,
			Venues:            labels(m.VenueCapabilities),
			Verticals:         labels(m.VerticalCapabilities),
			Notes:             m.SpecialNotes,
		})
	}
	sort.Slice(cf.Crew, func(i, j int) bool { return cf.Crew[i].Name < cf.Crew[j].Name })
	return cf
}

func labels(m map[string]engine.Capability) map[string]string {
	out := make(map[string]string, len(m))
	for k, c := range m {
		out[k] = c.String()
	}
	return out
}

// Marshal encodes the roster as YAML.
func (cf *CrewFile) Marshal() ([]byte, error) {
	return yaml.Marshal(cf)
}
