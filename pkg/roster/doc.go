// Package roster reads the YAML documents operators hand to crewdesk: the
// crew roster with its capability matrices, normalized event batches, and
// bulk unavailability changes.
//
// Every document is decoded with yaml.v3 and checked with validator tags;
// errors name the offending yaml field (e.g. "crew[2].venues[JBT]").
// PrepareBatch turns a batch file into engine events, grouping same-named
// events and filling venue stage defaults from the rule tables.
package roster
