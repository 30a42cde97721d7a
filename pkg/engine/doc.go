// Package engine assigns sound crew to a batch of theater events.
//
// # Overview
//
// A run is a single greedy pass over one batch. Events belonging to a
// multi-day production (an event group) are processed first, then the rest,
// each class in date order. For every event or production the engine:
//
//  1. Resolves the dates the crew must cover (every date of the group).
//  2. Stops with a Manual conflict if any event of the production is flagged
//     for manual review.
//  3. Picks FOH from the vertical's specialist rotation, else the best scored
//     non-Hired candidate, else records an FOH conflict.
//  4. Picks the remaining Stage seats by score, workload first, and records a
//     Stage conflict on shortfall.
//  5. Reserves every pick on every group date and charges the workload ledger.
//
// Later events of the same production reuse the first event's picks without
// rescoring. At the end the run's workload deltas are merged into the ledger
// according to Rules.LedgerMerge.
//
// # Run Context
//
// Reservations, rotation cursors and workload deltas live in a run context
// created per call to Engine.Run and discarded afterwards. The engine has no
// internal locking; callers serialize runs per batch.
//
// # Rules
//
// Scoring weights, the experimental venue, the rolling window and venue
// defaults are data supplied at construction time (see Rules and
// DefaultRules), normally loaded from a CUE file by the config package.
//
// # Usage
//
//	eng, err := engine.NewEngine(store, rules,
//	    engine.WithLogger(logger),
//	    engine.WithRecorder(metrics),
//	)
//	if err != nil {
//	    return err
//	}
//	result, err := eng.Run(ctx, "2024-03-week1")
//
// # Error Classification
//
// Capacity shortfalls are conflicts, not errors. Errors returned from Run and
// Override are *EngineError values classified as persistence, validation,
// conflict or not_found; use IsPersistence and friends to inspect them. A
// persistence failure mid-run leaves partial writes behind and is remedied by
// running the batch again.
package engine
