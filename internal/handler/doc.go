// Package handler implements the HTTP API of the repository server.
//
// RepositoryHandler exposes one repository session: the directory tree,
// transformations, jobs and shared objects, object locks, the change log,
// accounts, and whole-repository import and export. Routes registers every
// endpoint on a Go 1.22 pattern mux.
//
// # Response Format
//
// Success responses return JSON data with 200 or 201, or no body with 204.
// Error responses return JSON with {error, details} structure. Repository
// errors map to statuses: not found is 404, already exists, directory not
// empty and dependency violations are 409, an object locked by another
// session is 423 and a backing store failure is 500.
//
// Export streams XML and reports its outcome in a trailer because the
// status line is already sent when the first object is written.
//
// Middleware provides request logging, panic recovery and CORS support.
package handler
