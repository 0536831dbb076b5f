// Package deletes runs cascading deletes for the HTTP service.
//
// One Execute call is one transaction:
//   - initialize the named specification for the root id
//   - snapshot the ids every leaf step would delete
//   - optionally upload the snapshot as a backup object
//   - drive every step with the snapshot as id source
//   - insert the delete_run audit event
//
// Any failure rolls the transaction back and closes the run. Plan performs
// the first two stages and always rolls back.
//
// Runs of the same top-level specification are serialized; a caller waits
// for the previous run until its context is done.
package deletes
