// Package value defines the boundary value catalog exchanged between the
// dataflow host, the parameter binder and domain operations.
//
// Value is a sealed interface. Only the types in this package implement it:
//
//   - scalars: Bool, Int, Real, Text, ID, Time
//   - geometry: Transform, Point, Vector, Plane, Line, Circle, Arc, Shape
//   - containers: List, Object
//   - document-facing: Ref (entity reference), Enum (named enum member)
//   - Null, the explicit "present but null" marker
//
// Every value has a tagged JSON encoding ({"kind": ..., "value": ...}) used
// for attribute storage, and a canonical form (RFC 8785 key ordering, NFC
// normalized strings) used for input fingerprints. Reals are permitted here,
// unlike a content-addressed log: fingerprints only need to be stable for a
// given process and encoding, and strconv's shortest round-trip formatting
// gives that.
package value
