// Package domain defines the core types of the ETL metadata repository.
//
// This package contains the persisted design objects, the directory namespace
// tree that organizes them, and the value types shared by the persistence and
// transfer layers.
//
// # Core Types
//
// Transformation and Job are the top-level design objects. A Transformation
// exclusively owns its Steps, TransHops, Notes and step Conditions; a Job
// exclusively owns its JobEntries, JobHops and Notes. Both reference shared
// objects (DatabaseConnection, SlaveServer, ClusterSchema, PartitionSchema)
// by name without owning them.
//
// Every persisted object has a Kind from a closed enumeration and an ObjectID
// that is assigned on first insert and never changes afterwards.
//
// # Attributes
//
// AttributeSet holds the schema-less properties of an owner, keyed by
// (code, index) and typed as boolean, integer, real or string. Plugins store
// arbitrary configuration this way without any table change.
//
// # Directories
//
// DirectoryNode forms the repository namespace. The root has id 0 and name
// "/"; segment lookups are case-insensitive and names are unique among
// siblings.
//
// # Errors
//
// errors.go declares the sentinel errors every layer reports through
// errors.Is, together with typed errors that carry context.
package domain
