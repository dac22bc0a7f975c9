package codec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"etlrepo/internal/domain"
)

// ScanState is the state of a FragmentScanner
type ScanState int

const (
	// StateIdle waits for the next top-level object element
	StateIdle ScanState = iota
	// StateStreaming buffers the tokens of an object element
	StateStreaming
	// StateObjectReady holds a complete fragment for dispatch
	StateObjectReady
	// StateAborted is terminal after a syntax error or Abort
	StateAborted
	// StateDone is terminal after the end of the document
	StateDone
)

func (s ScanState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateObjectReady:
		return "object-ready"
	case StateAborted:
		return "aborted"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Fragment is one complete top-level object element of an import stream
type Fragment struct {
	Kind  domain.Kind
	Index int // 1-based position in the stream
	Data  []byte
}

var fragmentKinds = map[string]domain.Kind{
	"transformation": domain.KindTransformation,
	"job":            domain.KindJob,
}

var fragmentSections = map[domain.Kind]string{
	domain.KindTransformation: "transformations",
	domain.KindJob:            "jobs",
}

// FragmentScanner pulls tokens from an XML document and re-emits every
// <transformation> and <job> element as a self-contained fragment. Objects
// are recognized as the document root or inside
// <repository><transformations> and <repository><jobs>; deeper elements of
// the same name belong to the enclosing fragment. Object elements found
// anywhere else are skipped with a warning. Only the current fragment is
// held in memory.
//
// Usage follows bufio.Scanner:
//
//	sc := NewFragmentScanner(r)
//	for sc.Next() {
//		f := sc.Fragment()
//	}
//	if err := sc.Err(); err != nil { ... }
type FragmentScanner struct {
	dec      *xml.Decoder
	state    ScanState
	stack    []string
	base     int
	buf      bytes.Buffer
	kind     domain.Kind
	index    int
	fragment Fragment
	err      error
	logger   *zap.Logger
}

// ScannerOption configures a FragmentScanner
type ScannerOption func(*FragmentScanner)

// WithScannerLogger sets the logger that reports skipped elements
func WithScannerLogger(logger *zap.Logger) ScannerOption {
	return func(s *FragmentScanner) {
		s.logger = logger
	}
}

// NewFragmentScanner creates a scanner reading from r
func NewFragmentScanner(r io.Reader, opts ...ScannerOption) *FragmentScanner {
	s := &FragmentScanner{dec: xml.NewDecoder(r), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state
func (s *FragmentScanner) State() ScanState {
	return s.state
}

// Fragment returns the fragment produced by the last successful Next
func (s *FragmentScanner) Fragment() Fragment {
	return s.fragment
}

// Err returns the error that stopped the scan, nil at a clean end or after
// Abort.
func (s *FragmentScanner) Err() error {
	return s.err
}

// Offset returns the number of input bytes consumed so far
func (s *FragmentScanner) Offset() int64 {
	return s.dec.InputOffset()
}

// Count returns the number of fragments produced so far
func (s *FragmentScanner) Count() int {
	return s.index
}

// Abort stops the scan. The next call to Next returns false.
func (s *FragmentScanner) Abort() {
	s.state = StateAborted
	s.buf.Reset()
}

// Next advances to the next fragment. It returns false at the end of the
// document, after a syntax error, or after Abort.
func (s *FragmentScanner) Next() bool {
	switch s.state {
	case StateAborted, StateDone:
		return false
	case StateObjectReady:
		s.state = StateIdle
	}

	for {
		tok, err := s.dec.RawToken()
		if errors.Is(err, io.EOF) {
			return s.finish()
		}
		if err != nil {
			s.fail(err)
			return false
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := qualifiedName(t.Name)
			if s.state == StateIdle {
				if kind, ok := s.matches(name); ok {
					s.state = StateStreaming
					s.kind = kind
					s.base = len(s.stack)
					s.buf.Reset()
				} else if _, misplaced := fragmentKinds[name]; misplaced {
					s.logger.Warn("skipping misplaced object element",
						zap.String("element", name),
						zap.String("parent", "/"+strings.Join(s.stack, "/")),
						zap.Int("line", s.line()))
				}
			}
			s.stack = append(s.stack, name)
			if s.state == StateStreaming {
				s.writeStart(name, t.Attr)
			}

		case xml.EndElement:
			name := qualifiedName(t.Name)
			if len(s.stack) == 0 || s.stack[len(s.stack)-1] != name {
				s.fail(fmt.Errorf("line %d: unexpected </%s>", s.line(), name))
				return false
			}
			s.stack = s.stack[:len(s.stack)-1]
			if s.state != StateStreaming {
				continue
			}
			s.buf.WriteString("</")
			s.buf.WriteString(name)
			s.buf.WriteByte('>')
			if len(s.stack) == s.base {
				s.index++
				s.fragment = Fragment{
					Kind:  s.kind,
					Index: s.index,
					Data:  append([]byte(nil), s.buf.Bytes()...),
				}
				s.buf.Reset()
				s.state = StateObjectReady
				return true
			}

		case xml.CharData:
			if s.state == StateStreaming {
				if err := xml.EscapeText(&s.buf, t); err != nil {
					s.fail(err)
					return false
				}
			}
		}
	}
}

// matches reports whether an element opened at the current depth starts a
// top-level object.
func (s *FragmentScanner) matches(name string) (domain.Kind, bool) {
	kind, ok := fragmentKinds[name]
	if !ok {
		return domain.KindUnknown, false
	}
	if len(s.stack) == 0 {
		return kind, true
	}
	if len(s.stack) == 2 && s.stack[0] == "repository" && s.stack[1] == fragmentSections[kind] {
		return kind, true
	}
	return domain.KindUnknown, false
}

func (s *FragmentScanner) writeStart(name string, attrs []xml.Attr) {
	s.buf.WriteByte('<')
	s.buf.WriteString(name)
	for _, a := range attrs {
		s.buf.WriteByte(' ')
		s.buf.WriteString(qualifiedName(a.Name))
		s.buf.WriteString(`="`)
		_ = xml.EscapeText(&s.buf, []byte(a.Value))
		s.buf.WriteByte('"')
	}
	s.buf.WriteByte('>')
}

func (s *FragmentScanner) finish() bool {
	if s.state == StateStreaming {
		s.fail(fmt.Errorf("document ends inside <%s>", s.stack[s.base]))
		return false
	}
	if len(s.stack) > 0 {
		s.fail(fmt.Errorf("document ends inside <%s>", s.stack[len(s.stack)-1]))
		return false
	}
	s.state = StateDone
	return false
}

func (s *FragmentScanner) fail(err error) {
	s.err = &domain.MalformedFragmentError{Index: s.index + 1, Err: err}
	s.state = StateAborted
	s.buf.Reset()
}

func (s *FragmentScanner) line() int {
	line, _ := s.dec.InputPos()
	return line
}

func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
