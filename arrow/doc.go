// Package arrow provides Apache Arrow integration for the bank engine.
// This package implements:
// - Schema definitions for results and account balances
// - Result and balance conversion to and from Arrow records
// - A batched Arrow IPC result sink
// - Account snapshot export and import
package arrow
