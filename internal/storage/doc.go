// Package storage provides the persistence backends for per-user
// schedules, pre-write snapshots, and completion history.
//
// It currently supports:
//   - "file": per-user JSON documents with atomic tmp+rename writes
//   - "sqlite": embedded SQLite database (modernc, no cgo)
//
// Backends store data; safety policy (empty-over-nonempty rejection,
// snapshot-before-destructive-write) lives in package store, so every
// backend stays dumb and interchangeable.
package storage
