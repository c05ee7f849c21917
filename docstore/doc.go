// Package docstore is the DynamoDB adapter for entity documents.
//
// Each entity kind (art, artizen) lives in its own table keyed by the
// numeric "id" attribute, with a global secondary index on "username" for
// slug lookups. Documents are schemaless beyond those two attributes; the
// adapter reads and writes whole documents and never merges.
//
// The adapter exposes exactly the operations the coordination layer needs:
//
//   - [Store.Get], [Store.GetByID], [Store.GetByUsername] - existence checks
//     and full fetches, returning [ErrNotFound] for absent keys
//   - [Store.Put] - whole-document upsert, last writer wins
//   - [Store.AppendType] - idempotent append to the denormalized type-tag list
//   - [Store.Delete] - hard delete
//   - [Store.BatchGet] - projected multi-id fetch; absent ids are silently
//     omitted from the result
//
// All methods treat DynamoDB as an independently-owned resource: there is no
// coordination with the relational store, and infrastructure failures are
// returned to the caller unwrapped of any retry policy.
package docstore
