// Package schedule implements regimen's recurring-schedule core: expanding
// recurrence patterns into dated occurrences and merging those occurrences
// into a per-user, per-date schedule.
//
// # Overview
//
// A Pattern describes an abstract recurrence (daily/weekly/biweekly/monthly)
// plus a time of day and an item template. The Generator expands a pattern
// into concrete timestamps within a horizon. The Merger stamps each
// occurrence into an Item with a deterministic id and inserts it into a
// Schedule, suppressing candidates that land within the conflict window of
// an existing item.
//
// # Determinism and idempotence
//
// Item ids are derived from (pattern id, occurrence timestamp), so removing
// a pattern's materialized items and re-applying the same pattern over the
// same horizon reproduces identical items. Re-applying without removal is
// a no-op: each candidate collides with its own previous materialization.
//
// # Failure posture
//
// The generator and merger are best-effort. Malformed pattern fields make
// the generator fail closed (empty result, logged) instead of raising into
// the batch pipeline that feeds it; an unparsable time of day falls back to
// DefaultTimeOfDay. Only the store's save path (package store) surfaces a
// hard error, because it guards irreversible data loss.
package schedule
