// Package clientstore persists per-client storage snapshots so that a
// browser reconnecting to a host gets back the values stored during its
// previous connection.
//
// Three backends are provided:
//
//   - MemoryStore: in-process, for single-server deployments and tests
//   - SQLStore: database/sql with the pgx (PostgreSQL) and MySQL drivers
//   - S3Store: one object per snapshot in an S3 bucket
//
// Snapshots are opaque bytes to the stores; EncodeSnapshot and
// DecodeSnapshot convert them to and from key/value maps.
package clientstore
