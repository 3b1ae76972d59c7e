// Package core provides the business logic for policy file ingestion.
//
// The package holds the domain independent of any transport or storage
// layer. Web handlers, the CLI entry point and tests all drive it through
// [Service] or, for lower level work, through [Pipeline].
//
// # Ingestion Flow
//
// An upload moves through a fixed sequence of stages:
//
//  1. [ParseFile] turns the payload (CSV or XLSX) into [RawRow] values keyed
//     by lower-cased header name. Malformed quoting aborts the upload with a
//     [*ParseError].
//  2. [Normalize] applies technical validation and produces a typed
//     [Candidate], or the first [RowError] it finds.
//  3. The [RuleEngine] evaluates business [Rule] values against each
//     Candidate. Only the first violation is reported per row.
//  4. Accepted candidates are persisted with a single
//     [PolicyStore.BulkInsert] call. Existing policy numbers are skipped.
//  5. A [MetricEvent] is emitted to the configured [MetricSink].
//
// # Operation Tracing
//
// Every upload is recorded as an [Operation] by the [Tracer]. It is created
// as RECEIVED before processing starts and ends as COMPLETED or FAILED.
// Trace updates are best effort and never change the upload outcome.
//
// # Error Handling
//
// Row-level problems are data: they are collected in [IngestionResult.Errors]
// and never abort an upload. Fatal problems are returned as errors wrapping
// one of the sentinels in errors.go. Technical errors are mapped to
// user-friendly messages using [MapError]:
//
//   - DB001-DB008: Database errors (duplicates, constraints, connections)
//   - FILE001, FILE002, FILE004: File errors (size, format, missing)
//   - UPL001-UPL005: Upload errors (cancelled, timeout, capacity, not found)
package core
