package domain

import "testing"

func buildTree() (*DirectoryNode, *DirectoryNode, *DirectoryNode) {
	root := NewRootDirectory()
	etl := &DirectoryNode{ID: 1, Name: "etl"}
	daily := &DirectoryNode{ID: 2, Name: "daily"}
	root.AddChild(etl)
	etl.AddChild(daily)
	return root, etl, daily
}

func TestDirectoryPath(t *testing.T) {
	root, etl, daily := buildTree()

	tests := []struct {
		name string
		node *DirectoryNode
		want string
	}{
		{"root", root, "/"},
		{"first level", etl, "/etl"},
		{"second level", daily, "/etl/daily"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.Path(); got != tt.want {
				t.Errorf("expected path %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDirectoryFind(t *testing.T) {
	root, etl, daily := buildTree()

	t.Run("root matches single slash segment", func(t *testing.T) {
		if got := root.Find([]string{"/"}); got != root {
			t.Errorf("expected root, got %v", got)
		}
	})

	t.Run("segments match case-insensitively", func(t *testing.T) {
		if got := root.Find([]string{"ETL", "Daily"}); got != daily {
			t.Errorf("expected daily, got %v", got)
		}
	})

	t.Run("path round trip", func(t *testing.T) {
		for _, n := range []*DirectoryNode{root, etl, daily} {
			if got := root.FindPath(n.Path()); got != n {
				t.Errorf("FindPath(%q) returned %v", n.Path(), got)
			}
		}
	})

	t.Run("missing segment is not a partial match", func(t *testing.T) {
		if got := root.Find([]string{"etl", "weekly"}); got != nil {
			t.Errorf("expected nil, got %v", got.Path())
		}
	})

	t.Run("find by id", func(t *testing.T) {
		if got := root.FindByID(2); got != daily {
			t.Errorf("expected daily, got %v", got)
		}
		if got := root.FindByID(99); got != nil {
			t.Errorf("expected nil for unknown id")
		}
	})
}

func TestDirectoryAddChildRejectsDuplicateName(t *testing.T) {
	root, _, _ := buildTree()
	if root.AddChild(&DirectoryNode{ID: 3, Name: "ETL"}) {
		t.Error("expected duplicate sibling name to be rejected")
	}
	if len(root.Children()) != 1 {
		t.Errorf("expected 1 child, got %d", len(root.Children()))
	}
}

func TestDirectoryRemoveChild(t *testing.T) {
	root, etl, daily := buildTree()
	etl.RemoveChild(daily)
	if daily.Parent() != nil {
		t.Error("expected parent link to be cleared")
	}
	if root.FindPath("/etl/daily") != nil {
		t.Error("expected removed directory to be unreachable")
	}
}

func TestDirectoryWalkPreOrder(t *testing.T) {
	root, etl, _ := buildTree()
	etl.AddChild(&DirectoryNode{ID: 3, Name: "weekly"})
	root.AddChild(&DirectoryNode{ID: 4, Name: "reports"})

	var paths []string
	root.Walk(func(n *DirectoryNode) bool {
		paths = append(paths, n.Path())
		return true
	})

	want := []string{"/", "/etl", "/etl/daily", "/etl/weekly", "/reports"}
	if len(paths) != len(want) {
		t.Fatalf("expected %v, got %v", want, paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], paths[i])
		}
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		root, entry, want string
	}{
		{"/", "/etl/daily", "/etl/daily"},
		{"/import", "/etl/daily", "/import/etl/daily"},
		{"/import/", "etl", "/import/etl"},
		{"/import", "/", "/import"},
		{"/import", "${Internal.Entry.Current.Directory}/sub", "${Internal.Entry.Current.Directory}/sub"},
	}
	for _, tt := range tests {
		if got := ResolvePath(tt.root, tt.entry); got != tt.want {
			t.Errorf("ResolvePath(%q, %q) = %q, want %q", tt.root, tt.entry, got, tt.want)
		}
	}
}

func TestHasPathPrefix(t *testing.T) {
	tests := []struct {
		path, prefix string
		want         bool
	}{
		{"/etl/daily", "/etl", true},
		{"/ETL/daily", "/etl", true},
		{"/etl", "/etl", true},
		{"/etlx", "/etl", false},
		{"/other", "/etl", false},
		{"/anything", "/", true},
	}
	for _, tt := range tests {
		if got := HasPathPrefix(tt.path, tt.prefix); got != tt.want {
			t.Errorf("HasPathPrefix(%q, %q) = %v, want %v", tt.path, tt.prefix, got, tt.want)
		}
	}
}
