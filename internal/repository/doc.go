// Package repository defines the session interface of the ETL metadata
// repository.
//
// A session is opened with a lock-source identity and optionally bound to a
// repository user. It caches the directory tree and the shared objects
// (connections, slave servers, cluster and partition schemas) it read at
// connect time; Refresh reloads both. Commits of other sessions are not
// visible until then.
//
// # Persistence
//
// Save, Load, Exists and DelAll dispatch on the object's Kind. Save assigns
// ids and writes the object row, its owned children and its attributes in
// one transaction under the repository-wide lock. DelAll removes notes,
// attributes, owned children, associations, dependencies and finally the
// object row, in that order.
//
// # Locking
//
// Object locks are advisory and re-entrant for the owning lock source. The
// repository-wide lock serializes multi-row mutations between sessions of
// the same store.
//
// # SQLite Implementation
//
// The sqlite subpackage implements the interface on modernc.org/sqlite with
// the schema generated through the dialect package.
package repository
