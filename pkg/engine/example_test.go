package engine_test

import (
	"errors"
	"fmt"
	"time"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

// ExampleCanDoFOH shows how venue and vertical matrices combine.
func ExampleCanDoFOH() {
	asha := &engine.CrewMember{
		Name:  "Asha",
		Level: engine.LevelSenior,
		VenueCapabilities: map[string]engine.Capability{
			"JBT":          engine.CapabilitySpecialist,
			"Experimental": engine.CapabilityYes,
		},
		VerticalCapabilities: map[string]engine.Capability{
			"Theatre": engine.CapabilityYes,
			"Dance":   engine.CapabilityExperimentalOnly,
		},
	}

	fmt.Println(engine.CanDoFOH(asha, "JBT", "Theatre", "Experimental"))
	fmt.Println(engine.CanDoFOH(asha, "JBT", "Dance", "Experimental"))
	fmt.Println(engine.CanDoFOH(asha, "Experimental", "Dance", "Experimental"))
	fmt.Println(engine.CanDoFOH(asha, "Tata", "Theatre", "Experimental"))
	// Output:
	// {true true}
	// {false false}
	// {true false}
	// {false false}
}

func ExampleParseCapability() {
	for _, label := range []string{"Y", " Y* ", "Exp only", "N", "maybe"} {
		c, err := engine.ParseCapability(label)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Printf("%q\n", c.String())
	}
	// Output:
	// "Y"
	// "Y*"
	// "Exp only"
	// "N"
	// error: unknown capability "maybe"
}

// ExampleWindowMonths lists the ledger months a run in March 2024 reads.
func ExampleWindowMonths() {
	ref := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	fmt.Println(engine.WindowMonths(ref, 3))
	// Output:
	// [2024-01 2024-02 2024-03]
}

func ExampleRules_StageCrewDefault() {
	rules := engine.DefaultRules()
	fmt.Println(rules.StageCrewDefault("JBT"))
	fmt.Println(rules.StageCrewDefault("Prithvi"))
	// Output:
	// 2
	// 1
}

func ExampleEngineError() {
	err := engine.NewConflictError("batch is already being assigned", errors.New("held by run 42")).
		WithBatch("march")

	fmt.Println(engine.IsConflict(err))
	fmt.Println(engine.IsValidation(err))
	// Output:
	// true
	// false
}
