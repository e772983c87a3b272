// Package store is the safety-checked persistence layer over a storage
// backend: every write of a per-user schedule passes its data-loss
// checks before it may commit.
//
// # Invariants
//
//   - A write that would replace a non-empty schedule with an empty one
//     is rejected with ErrDataLossPrevented unless explicitly overridden.
//   - Any write over a non-empty previous state is preceded by a
//     timestamped snapshot of that state. A failed snapshot is logged and
//     published as an event but never blocks the write.
//   - Writes for one user are serialized by a per-user mutex so the
//     snapshot-then-write sequence is atomic with respect to concurrent
//     requests. Different users never contend.
//   - Visibility filtering (hidden item categories) happens only on the
//     read path; persisted data is always the full item set.
package store
