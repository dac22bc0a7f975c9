package domain

import (
	"strings"
)

// RootDirectoryID is the id of the namespace root
const RootDirectoryID ObjectID = 0

// PathSeparator separates directory segments
const PathSeparator = "/"

// DirectoryNode is one directory of the repository namespace. The tree owns
// the nodes; parent is a back-link only.
type DirectoryNode struct {
	ID       ObjectID
	Name     string
	parent   *DirectoryNode
	children []*DirectoryNode
}

// NewRootDirectory returns an empty tree consisting of the root only
func NewRootDirectory() *DirectoryNode {
	return &DirectoryNode{ID: RootDirectoryID, Name: PathSeparator}
}

// IsRoot reports whether the node is the namespace root
func (d *DirectoryNode) IsRoot() bool {
	return d.parent == nil
}

// Parent returns the parent directory, nil for the root
func (d *DirectoryNode) Parent() *DirectoryNode {
	return d.parent
}

// Children returns the subdirectories in insertion order
func (d *DirectoryNode) Children() []*DirectoryNode {
	out := make([]*DirectoryNode, len(d.children))
	copy(out, d.children)
	return out
}

// Path returns the absolute path of the node; the root is "/".
func (d *DirectoryNode) Path() string {
	if d.IsRoot() {
		return PathSeparator
	}
	var names []string
	for n := d; !n.IsRoot(); n = n.parent {
		names = append(names, n.Name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return PathSeparator + strings.Join(names, PathSeparator)
}

// Child returns the direct subdirectory with the given name, compared
// case-insensitively.
func (d *DirectoryNode) Child(name string) *DirectoryNode {
	for _, c := range d.children {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// AddChild attaches child under d. It returns false when a sibling with the
// same name already exists.
func (d *DirectoryNode) AddChild(child *DirectoryNode) bool {
	if d.Child(child.Name) != nil {
		return false
	}
	child.parent = d
	d.children = append(d.children, child)
	return true
}

// RemoveChild detaches child from d
func (d *DirectoryNode) RemoveChild(child *DirectoryNode) {
	for i, c := range d.children {
		if c == child {
			d.children = append(d.children[:i], d.children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// Find walks segments from d. A single "/" segment (or no segments) matches
// the node itself. Nil is returned unless every segment matches.
func (d *DirectoryNode) Find(segments []string) *DirectoryNode {
	if len(segments) == 1 && segments[0] == PathSeparator {
		return d
	}
	node := d
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		node = node.Child(seg)
		if node == nil {
			return nil
		}
	}
	return node
}

// FindPath resolves a slash-separated path relative to d
func (d *DirectoryNode) FindPath(path string) *DirectoryNode {
	return d.Find(SplitPath(path))
}

// FindByID searches the subtree for a directory id
func (d *DirectoryNode) FindByID(id ObjectID) *DirectoryNode {
	var found *DirectoryNode
	d.Walk(func(n *DirectoryNode) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Walk visits the subtree in pre-order. Returning false from fn stops the
// walk.
func (d *DirectoryNode) Walk(fn func(*DirectoryNode) bool) bool {
	if !fn(d) {
		return false
	}
	for _, c := range d.children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether d is other or one of its ancestors
func (d *DirectoryNode) IsAncestorOf(other *DirectoryNode) bool {
	for n := other; n != nil; n = n.parent {
		if n == d {
			return true
		}
	}
	return false
}

// SplitPath splits a path into its non-empty segments. The root path yields
// the single segment "/".
func SplitPath(path string) []string {
	path = strings.TrimSpace(path)
	var segments []string
	for _, seg := range strings.Split(path, PathSeparator) {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return []string{PathSeparator}
	}
	return segments
}

// CleanPath normalizes a path to its absolute form without trailing slash
func CleanPath(path string) string {
	segments := SplitPath(path)
	if len(segments) == 1 && segments[0] == PathSeparator {
		return PathSeparator
	}
	return PathSeparator + strings.Join(segments, PathSeparator)
}

// ResolvePath places entryPath below rootPath. An entry path of "/" maps to
// rootPath itself, and paths containing variables are returned unchanged.
func ResolvePath(rootPath, entryPath string) string {
	if strings.Contains(entryPath, "${") || strings.Contains(entryPath, "%%") {
		return entryPath
	}
	root := CleanPath(rootPath)
	entry := CleanPath(entryPath)
	if entry == PathSeparator {
		return root
	}
	if root == PathSeparator {
		return entry
	}
	return root + entry
}

// HasPathPrefix reports whether path equals prefix or lies below it,
// comparing segments case-insensitively.
func HasPathPrefix(path, prefix string) bool {
	p := CleanPath(prefix)
	if p == PathSeparator {
		return true
	}
	c := CleanPath(path)
	if len(c) < len(p) || !strings.EqualFold(c[:len(p)], p) {
		return false
	}
	return len(c) == len(p) || c[len(p)] == '/'
}
