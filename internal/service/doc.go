// Package service implements the operations of the ETL metadata repository
// on top of a repository session.
//
// The services sit between the CLI, HTTP handlers and watcher on one side
// and the repository layer on the other. They resolve objects by directory
// path and name, validate designs before they are stored, and publish an
// event for every change.
//
// # Services
//
// RepositoryService manages directories, transformations, jobs, shared
// objects, locks and the change log.
//
// TransferService exports a directory subtree as a single XML document and
// imports such a document back, one fragment at a time. Every imported
// object is committed on its own, so a failed or cancelled import keeps the
// objects saved before it stopped. The caller steers an import through
// ImportOptions and a Feedback implementation.
//
// UserService manages repository accounts and authenticates logins.
//
// # Event System
//
// All services publish events via EventBus. The hub forwards them to
// Server-Sent Events clients. Publishing never blocks: slow subscribers
// miss events.
package service
