package engine

// dateSet maps a date key to the crew ids present on that date.
type dateSet map[string]map[int64]struct{}

func (s dateSet) add(date string, crewID int64) {
	ids, ok := s[date]
	if !ok {
		ids = make(map[int64]struct{})
		s[date] = ids
	}
	ids[crewID] = struct{}{}
}

func (s dateSet) has(date string, crewID int64) bool {
	_, ok := s[date][crewID]
	return ok
}

// Availability tracks static unavailability and run-scoped reservations.
type Availability struct {
	unavailable dateSet
	reserved    dateSet
}

// NewAvailability builds a tracker from persisted unavailability records.
func NewAvailability(records []Unavailability) *Availability {
	a := &Availability{
		unavailable: make(dateSet),
		reserved:    make(dateSet),
	}
	for _, r := range records {
		a.unavailable.add(r.Date.Format(DateLayout), r.CrewID)
	}
	return a
}

// IsAvailable reports whether crewID is neither unavailable nor reserved on
// every one of dates. A miss on any single date fails the whole set.
func (a *Availability) IsAvailable(crewID int64, dates []string) bool {
	for _, d := range dates {
		if a.unavailable.has(d, crewID) || a.reserved.has(d, crewID) {
			return false
		}
	}
	return true
}

// Reserve books crewID on every date.
func (a *Availability) Reserve(crewID int64, dates []string) {
	for _, d := range dates {
		a.reserved.add(d, crewID)
	}
}

// Reserved reports whether crewID holds a reservation on date.
func (a *Availability) Reserved(crewID int64, date string) bool {
	return a.reserved.has(date, crewID)
}
