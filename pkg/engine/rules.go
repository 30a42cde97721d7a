package engine

import (
	"fmt"
)

// FOHWeights parameterize the scored FOH fallback:
// score = (MaxRank - rank) * LevelWeight - workload * WorkloadPenalty.
type FOHWeights struct {
	MaxRank         int `json:"max_rank"`
	LevelWeight     int `json:"level_weight"`
	WorkloadPenalty int `json:"workload_penalty"`
}

// StageWeights parameterize Stage scoring:
// score = Base - workload * WorkloadPenalty + WillingBonus (unless stage-only-if-urgent) - HiredPenalty (if Hired).
type StageWeights struct {
	Base            int `json:"base"`
	WorkloadPenalty int `json:"workload_penalty"`
	WillingBonus    int `json:"willing_bonus"`
	HiredPenalty    int `json:"hired_penalty"`
}

// Rules is the versioned policy data the engine is constructed with.
type Rules struct {
	Version string `json:"version"`

	// ExperimentalVenue is the only venue where "Exp only" vertical capability applies.
	ExperimentalVenue string `json:"experimental_venue"`

	FOH   FOHWeights   `json:"foh"`
	Stage StageWeights `json:"stage"`

	// RollingWindowMonths is the number of calendar months, ending at the run's
	// reference month, summed into a crew member's rolling workload.
	RollingWindowMonths int `json:"rolling_window_months"`

	// LedgerMerge selects how run deltas are written back.
	LedgerMerge MergeMode `json:"ledger_merge"`

	// VenueStageDefaults maps a normalized venue to the default total crew
	// (FOH seat included) for events imported without an explicit count.
	VenueStageDefaults map[string]int `json:"venue_stage_defaults"`

	// DefaultStageCrew applies to venues missing from VenueStageDefaults.
	DefaultStageCrew int `json:"default_stage_crew"`
}

// DefaultRules returns the rule tables the venue has historically run with.
func DefaultRules() Rules {
	return Rules{
		Version:           "2024.1",
		ExperimentalVenue: "Experimental",
		FOH: FOHWeights{
			MaxRank:         3,
			LevelWeight:     100,
			WorkloadPenalty: 5,
		},
		Stage: StageWeights{
			Base:            500,
			WorkloadPenalty: 20,
			WillingBonus:    10,
			HiredPenalty:    300,
		},
		RollingWindowMonths: 3,
		LedgerMerge:         MergeAdditive,
		VenueStageDefaults: map[string]int{
			"JBT":            2,
			"Tata":           2,
			"Experimental":   1,
			"Little Theatre": 1,
			"Godrej Dance":   1,
		},
		DefaultStageCrew: 1,
	}
}

// Validate checks the rules for values the engine cannot run with.
func (r Rules) Validate() error {
	if r.ExperimentalVenue == "" {
		return fmt.Errorf("experimental venue is required")
	}
	if r.RollingWindowMonths < 1 {
		return fmt.Errorf("rolling window must cover at least one month, got %d", r.RollingWindowMonths)
	}
	if !r.LedgerMerge.Valid() {
		return fmt.Errorf("invalid ledger merge mode: %q", r.LedgerMerge)
	}
	if r.FOH.MaxRank < LevelJunior.Rank()+1 {
		return fmt.Errorf("foh max rank must be at least %d, got %d", LevelJunior.Rank()+1, r.FOH.MaxRank)
	}
	if r.DefaultStageCrew < 0 {
		return fmt.Errorf("default stage crew must not be negative")
	}
	for venue, n := range r.VenueStageDefaults {
		if n < 0 {
			return fmt.Errorf("stage default for venue %s must not be negative", venue)
		}
	}
	return nil
}

// StageCrewDefault returns the default total crew for a normalized venue.
func (r Rules) StageCrewDefault(venue string) int {
	if n, ok := r.VenueStageDefaults[venue]; ok {
		return n
	}
	return r.DefaultStageCrew
}

func (r Rules) fohScore(level Level, workload int) int {
	return (r.FOH.MaxRank-level.Rank())*r.FOH.LevelWeight - workload*r.FOH.WorkloadPenalty
}

func (r Rules) stageScore(crew *CrewMember, workload int) int {
	score := r.Stage.Base - workload*r.Stage.WorkloadPenalty
	if !crew.StageOnlyIfUrgent {
		score += r.Stage.WillingBonus
	}
	if crew.Level == LevelHired {
		score -= r.Stage.HiredPenalty
	}
	return score
}
