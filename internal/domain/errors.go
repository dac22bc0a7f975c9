package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Repository errors
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrAlreadyLocked       = errors.New("already locked")
	ErrNotEmpty            = errors.New("directory not empty")
	ErrMalformedFragment   = errors.New("malformed fragment")
	ErrDependencyViolation = errors.New("dependency violation")
	ErrBackingStore        = errors.New("backing store error")
)

// BackingStoreError wraps an I/O or connectivity failure of the relational store
type BackingStoreError struct {
	Op  string
	Err error
}

// NewBackingStoreError wraps err unless it is nil or already classified.
func NewBackingStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) {
		return err
	}
	return &BackingStoreError{Op: op, Err: err}
}

func (e *BackingStoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrBackingStore, e.Op, e.Err)
}

func (e *BackingStoreError) Unwrap() error { return e.Err }

func (e *BackingStoreError) Is(target error) bool { return target == ErrBackingStore }

// LockedError reports the live lock that blocked an operation
type LockedError struct {
	Lock Lock
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: %s %d by %s (%s)", ErrAlreadyLocked, e.Lock.Kind, e.Lock.ObjectID, e.Lock.Owner, e.Lock.Message)
}

func (e *LockedError) Is(target error) bool { return target == ErrAlreadyLocked }

// DependencyError reports a shared object that is still referenced
type DependencyError struct {
	Kind         Kind
	Name         string
	ReferencedBy []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %s %q is used by %s", ErrDependencyViolation, e.Kind, e.Name, strings.Join(e.ReferencedBy, ", "))
}

func (e *DependencyError) Is(target error) bool { return target == ErrDependencyViolation }

// MalformedFragmentError reports a fragment of an import stream that could
// not be tokenized or decoded.
type MalformedFragmentError struct {
	Index int
	Err   error
}

func (e *MalformedFragmentError) Error() string {
	return fmt.Sprintf("%s #%d: %v", ErrMalformedFragment, e.Index, e.Err)
}

func (e *MalformedFragmentError) Unwrap() error { return e.Err }

func (e *MalformedFragmentError) Is(target error) bool { return target == ErrMalformedFragment }

func isClassified(err error) bool {
	for _, sentinel := range []error{
		ErrNotFound, ErrAlreadyExists, ErrAlreadyLocked, ErrNotEmpty,
		ErrMalformedFragment, ErrDependencyViolation, ErrBackingStore,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
