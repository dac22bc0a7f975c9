package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"etlrepo/internal/domain"
)

// Header opens every repository export document
const Header = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

type writerState int

const (
	writerInit writerState = iota
	writerOpen
	writerTransformations
	writerJobs
	writerClosed
)

// transitions holds the markup written when leaving each state
var transitions = map[writerState]string{
	writerInit:            Header + "<repository>\n",
	writerOpen:            "  <transformations>\n",
	writerTransformations: "  </transformations>\n  <jobs>\n",
	writerJobs:            "  </jobs>\n</repository>\n",
}

// EncodeError reports an object that could not be serialized. Nothing of
// the object has been written when it is returned.
type EncodeError struct {
	Kind domain.Kind
	Name string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s %s: %v", e.Kind, e.Name, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// RepositoryWriter streams a repository export document: a <repository>
// root with a <transformations> collection followed by a <jobs> collection.
// Each object is serialized to memory first so a failing object leaves the
// document intact.
type RepositoryWriter struct {
	w       io.Writer
	codec   *XMLCodec
	state   writerState
	written int
	bytes   int64
}

// NewRepositoryWriter creates a writer emitting to w
func NewRepositoryWriter(w io.Writer) *RepositoryWriter {
	return &RepositoryWriter{w: w, codec: &XMLCodec{prefix: "    "}}
}

// Write appends one transformation or job. All transformations must be
// written before the first job.
func (rw *RepositoryWriter) Write(obj domain.DirectoryObject) error {
	var target writerState
	switch obj.Kind() {
	case domain.KindTransformation:
		target = writerTransformations
	case domain.KindJob:
		target = writerJobs
	default:
		return &EncodeError{Kind: obj.Kind(), Name: obj.ObjectName(), Err: fmt.Errorf("not a top-level object")}
	}
	if rw.state > target {
		return fmt.Errorf("%s %s written after the %s collection was closed", obj.Kind(), obj.ObjectName(), fragmentSections[obj.Kind()])
	}

	var buf bytes.Buffer
	if err := rw.codec.Encode(obj, &buf); err != nil {
		var encErr *EncodeError
		if errors.As(err, &encErr) {
			return err
		}
		return &EncodeError{Kind: obj.Kind(), Name: obj.ObjectName(), Err: err}
	}
	if err := rw.advance(target); err != nil {
		return err
	}
	if err := rw.write(buf.Bytes()); err != nil {
		return err
	}
	rw.written++
	return nil
}

// Close completes the document. Empty collections are still written.
func (rw *RepositoryWriter) Close() error {
	return rw.advance(writerClosed)
}

// Written returns the number of objects written
func (rw *RepositoryWriter) Written() int {
	return rw.written
}

// Bytes returns the number of bytes written
func (rw *RepositoryWriter) Bytes() int64 {
	return rw.bytes
}

func (rw *RepositoryWriter) advance(to writerState) error {
	for rw.state < to {
		if err := rw.write([]byte(transitions[rw.state])); err != nil {
			return err
		}
		rw.state++
	}
	return nil
}

func (rw *RepositoryWriter) write(p []byte) error {
	n, err := rw.w.Write(p)
	rw.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
