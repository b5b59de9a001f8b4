// Package engine implements the reconstruction engine.
//
// A component runs one Operation once per input row ("run") inside a
// transaction on a target document. Between recomputations the engine keeps
// the ordered outputs of the last committed pass (RunState) and hands the
// entity at the same ordinal back to the operation on the next pass, so
// reruns update entities in place instead of recreating them.
//
// ARCHITECTURE:
//
// Single-Writer Pass:
// All binding, invocation and reconciliation of a pass happen on the calling
// goroutine, in run order. There is no parallel execution of runs.
//
// Pass Flow:
//  1. Open a txn.Scope (per-component strategy) or join a standing one
//     (per-solution strategy, see Solution).
//  2. For each run: advance the cursor, resolve the previous handle, bind
//     inputs, invoke the operation, reconcile identity and clean up orphans.
//  3. Before commit: delete previous outputs past the current run count.
//  4. After commit: replace the RunState with the output column. After
//     rollback: mark the outputs failed and keep the old RunState.
//
// FAILURE CLASSES:
//
// Soft failures (fault.CodeValidationWarning) report a warning and leave the
// run's output absent. Argument failures report an error and leave the
// output absent. Anything else is hard: it reports an error and aborts the
// remaining runs, but the open transaction is still driven to a terminal
// state before Solve returns.
package engine
