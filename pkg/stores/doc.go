// Package stores provides the SQLite persistence layer for crewdesk.
// It stores the crew roster, event batches, unavailability, assignments,
// the monthly workload ledger, run records and per-batch run locks, and
// implements engine.Repository. The schema is managed with embedded
// golang-migrate migrations; connections use WAL mode and foreign keys.
package stores
