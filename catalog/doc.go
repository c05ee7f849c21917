// Package catalog is the entity/relation coordination layer.
//
// An entity (an art or an artizen) is authoritative across three
// independent stores: its document lives in DynamoDB, its username
// reservation, id counter and relation rows live in the relational store,
// and a best-effort copy of its display attributes lives in the search
// mirror. None of the stores share a transaction, so the [Coordinator]
// sequences every multi-store flow explicitly:
//
//   - Create: validate, verify related entities concurrently, reserve the
//     username, allocate the id, write the document, tag the related
//     entities, insert the relation rows, then index - in that order.
//   - Relations: ordered join of relation rows with a projected batch fetch
//     of the related documents, grouped by relation type.
//   - Delete: idempotent teardown of rows, document and reservation.
//
// The only strong guarantee is username uniqueness, enforced by the
// relational store's primary key at reservation time. Everything after the
// reservation can fail partway; the Coordinator surfaces the failing step
// and leaves partial state in place rather than attempting compensation.
// Each flow logs which step failed so an offline reconciliation job can
// repair drift.
package catalog
