// Package core implements the valued-customer import pipeline.
//
// A multipart upload flows through these stages, each usable on its own:
//
//  1. [ExtractFile] pulls the CSV part out of the raw multipart body.
//  2. [Tokenizer] splits the payload into rows, honoring quoted fields.
//  3. [ParseBatch] checks the header and the column count of every row.
//  4. [PlanImport] drops rows without a customer name and assigns contiguous
//     identifiers after the current maximum.
//  5. [Store.ImportBatch] persists the plan atomically, serialized against
//     other imports.
//  6. [Exporter] renders stored customers back to CSV.
//
// [Service] wires the stages together with a concurrency limiter, a
// deadline, and a bounded retry when another writer claims the same
// identifiers. Identifiers look like 9000-000001; an empty store starts
// after [EmptyCursor].
//
// Failures carry sentinel errors (see errors.go) that [MapError] turns into
// user messages with support codes and HTTP statuses.
package core
