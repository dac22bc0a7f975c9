package domain

import (
	"fmt"
	"strings"
)

// ObjectID identifies a persisted object within its kind. Zero means the
// object has not been saved yet.
type ObjectID int64

// IsZero reports whether the id has not been assigned.
func (id ObjectID) IsZero() bool {
	return id == 0
}

// Kind is the closed enumeration of repository object kinds
type Kind int

const (
	KindUnknown Kind = iota
	KindTransformation
	KindJob
	KindDatabase
	KindSlaveServer
	KindClusterSchema
	KindPartitionSchema
	KindStep
	KindJobEntry
	KindNote
	KindCondition
	KindUser
	KindDirectory
)

var kindNames = map[Kind]string{
	KindTransformation:  "transformation",
	KindJob:             "job",
	KindDatabase:        "database",
	KindSlaveServer:     "slave_server",
	KindClusterSchema:   "cluster_schema",
	KindPartitionSchema: "partition_schema",
	KindStep:            "step",
	KindJobEntry:        "job_entry",
	KindNote:            "note",
	KindCondition:       "condition",
	KindUser:            "user",
	KindDirectory:       "directory",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the kind by name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseKind converts a kind name (case-insensitive) to a Kind
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown object kind %q", s)
}

// IsShared reports whether objects of this kind are referenced by many
// transformations and jobs rather than owned by one.
func (k Kind) IsShared() bool {
	switch k {
	case KindDatabase, KindSlaveServer, KindClusterSchema, KindPartitionSchema:
		return true
	}
	return false
}

// IsTopLevel reports whether the kind lives in a directory and is
// transferred as a fragment of its own.
func (k Kind) IsTopLevel() bool {
	return k == KindTransformation || k == KindJob
}

// SharedKinds lists the shared kinds in the order they are preloaded.
var SharedKinds = []Kind{KindDatabase, KindSlaveServer, KindClusterSchema, KindPartitionSchema}
