// Package cdc provides the public interfaces and types for query-based change detection.
//
// A watcher re-runs a SQL query on a timer, compares the result with what it saw
// before and reports rows as new, updated or deleted. The package defines the data
// model shared by the watcher and its collaborators, and the capabilities a watcher
// consumes from the outside world.
//
// Key Components:
//   - Row, Identity, Fingerprint, Snapshot: the data model of one watched result set
//   - ChangeSet: the outcome of one poll cycle
//   - SessionProvider / Session: query execution against the store
//   - Handlers: the onNew / onUpdate / onDelete callbacks
//   - ChangePublisher: optional downstream stream of ChangeEvent values
package cdc
