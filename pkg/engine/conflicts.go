package engine

import (
	"fmt"
)

const reasonNoFOH = "No qualified FOH available"

func stageShortfallReason(found, needed int) string {
	return fmt.Sprintf("Only %d/%d crew available", found, needed)
}

// conflictLog accumulates conflicts and keeps per-event exclusivity:
// one Manual conflict, or at most one FOH and one Stage conflict.
type conflictLog struct {
	items []Conflict
	seen  map[int64]map[ConflictType]bool
}

func newConflictLog() *conflictLog {
	return &conflictLog{seen: make(map[int64]map[ConflictType]bool)}
}

// record adds a conflict and reports whether it was kept.
func (l *conflictLog) record(e *Event, typ ConflictType, reason string) bool {
	s := l.seen[e.ID]
	if s == nil {
		s = make(map[ConflictType]bool)
		l.seen[e.ID] = s
	}
	if s[typ] {
		return false
	}
	if typ == ConflictManual && (s[ConflictFOH] || s[ConflictStage]) {
		return false
	}
	if typ != ConflictManual && s[ConflictManual] {
		return false
	}
	s[typ] = true
	l.items = append(l.items, Conflict{
		EventID:   e.ID,
		EventName: e.Name,
		Type:      typ,
		Reason:    reason,
	})
	return true
}

func (l *conflictLog) list() []Conflict {
	out := make([]Conflict, len(l.items))
	copy(out, l.items)
	return out
}
