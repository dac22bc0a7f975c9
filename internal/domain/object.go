package domain

import (
	"strings"
	"time"
)

// RepositoryObject is implemented by every persisted design object
type RepositoryObject interface {
	Kind() Kind
	ObjectID() ObjectID
	SetObjectID(id ObjectID)
	ObjectName() string
}

// DirectoryObject is a repository object stored inside a directory
type DirectoryObject interface {
	RepositoryObject
	Directory() string
	SetDirectory(path string)
	AuditInfo() *Audit
}

// Audit records who created and last modified an object
type Audit struct {
	CreatedUser  string    `json:"created_user,omitempty"`
	CreatedDate  time.Time `json:"created_date,omitempty"`
	ModifiedUser string    `json:"modified_user,omitempty"`
	ModifiedDate time.Time `json:"modified_date,omitempty"`
}

// Touch fills in missing creation data and stamps the modification
func (a *Audit) Touch(user string, now time.Time) {
	if a.CreatedUser == "" {
		a.CreatedUser = user
	}
	if a.CreatedDate.IsZero() {
		a.CreatedDate = now
	}
	a.ModifiedUser = user
	a.ModifiedDate = now
}

// ObjectReference points from a step or job entry to another top-level
// object by directory path and name, e.g. a mapping step that runs a
// sub-transformation.
type ObjectReference struct {
	Kind      Kind   `json:"kind"`
	Name      string `json:"name"`
	Directory string `json:"directory"`
}

// Note is a free-text annotation on a transformation or job canvas
type Note struct {
	ID     ObjectID `json:"id"`
	Text   string   `json:"text"`
	X      int      `json:"x"`
	Y      int      `json:"y"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
}

// Condition is a (possibly nested) filter predicate attached to a step
type Condition struct {
	ID         ObjectID     `json:"id"`
	Negate     bool         `json:"negate"`
	Operator   string       `json:"operator,omitempty"`
	LeftField  string       `json:"left_field,omitempty"`
	Function   string       `json:"function,omitempty"`
	RightField string       `json:"right_field,omitempty"`
	Value      string       `json:"value,omitempty"`
	Children   []*Condition `json:"children,omitempty"`
}

// IsAtomic reports whether the condition has no sub-conditions
func (c *Condition) IsAtomic() bool {
	return len(c.Children) == 0
}

// Walk visits the condition tree in pre-order
func (c *Condition) Walk(fn func(*Condition)) {
	fn(c)
	for _, child := range c.Children {
		child.Walk(fn)
	}
}

func findByName[T any](items []T, name string, nameOf func(T) string) (T, bool) {
	for _, item := range items {
		if strings.EqualFold(nameOf(item), name) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// ObjectInfo is the listing view of a directory object
type ObjectInfo struct {
	Kind         Kind      `json:"kind"`
	ID           ObjectID  `json:"id"`
	Name         string    `json:"name"`
	Directory    string    `json:"directory"`
	Description  string    `json:"description,omitempty"`
	ModifiedUser string    `json:"modified_user,omitempty"`
	ModifiedDate time.Time `json:"modified_date,omitempty"`
}
