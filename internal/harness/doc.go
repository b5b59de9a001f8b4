// Package harness runs reconstruction scenarios as executable tests.
//
// A scenario loads component specs, commits setup entities to a document,
// then runs a sequence of passes. Each pass solves one component, or
// several components together, against the same document and state store
// so that later passes reconcile with the outputs of earlier ones.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: levels
//	description: "Levels keep their identity when moved"
//	specs:
//	  - ../specs/levels.cue
//	setup:
//	  - kind: element-type
//	    name: Level Head
//	    attrs: { default: true }
//	passes:
//	  - component: Levels
//	    rows:
//	      - { Elevation: 0.0, Name: Ground }
//	    expect:
//	      status: Committed
//	      transitions: [insert]
//	  - steps:
//	      - component: Levels
//	        rows: [{ Elevation: 0.5, Name: Ground }]
//	      - component: Tags
//	        rows: [{ Elements: [{ ref: Wall }] }]
//	assertions:
//	  - type: same_identity
//	    component: Levels
//	    passes: [1, 2]
//
// Row values are converted with value.FromNative, so a real input must be
// written with a decimal point. A single-key map {ref: <name>} refers to a
// named setup entity.
//
// # Assertion Types
//
//   - same_identity: two passes produced the same entities at each ordinal
//   - deleted: how many previous outputs a pass deleted or replaced
//   - created: how many entities a pass created
//   - diagnostic: some pass reported a diagnostic containing a text
//   - entity_count: entities of a kind in the final document
//
// # Deterministic Testing
//
// Unique ids come from a testutil.UUIDSequence and solve ids from an
// engine.SequenceGenerator prefixed with the scenario name. Each run uses
// a fresh in-memory SQLite store unless WithStore is given, so traces are
// identical across runs and can be compared with golden files.
package harness
