package codec

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"etlrepo/internal/domain"
)

// ObjectDecoder parses fragments into repository objects
type ObjectDecoder interface {
	Decode(fragment []byte) (domain.DirectoryObject, error)
	Format() string
}

// ObjectEncoder serializes repository objects as fragments
type ObjectEncoder interface {
	Encode(obj domain.DirectoryObject, w io.Writer) error
	Format() string
}

// Importer parses an inventory listing
type Importer interface {
	Parse(r io.Reader) (*Inventory, error)
	Format() string
}

// Exporter writes an inventory listing
type Exporter interface {
	Export(inv *Inventory, w io.Writer) error
	Format() string
}

// Inventory lists the top-level objects of a repository per directory
type Inventory struct {
	Directories []InventoryDirectory `json:"directories" yaml:"directories"`
}

// InventoryDirectory is one directory of an inventory
type InventoryDirectory struct {
	Path            string            `json:"path" yaml:"path"`
	Transformations []InventoryObject `json:"transformations,omitempty" yaml:"transformations,omitempty"`
	Jobs            []InventoryObject `json:"jobs,omitempty" yaml:"jobs,omitempty"`
}

// InventoryObject is one listed transformation or job
type InventoryObject struct {
	ID           int64     `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	ModifiedUser string    `json:"modified_user,omitempty" yaml:"modified_user,omitempty"`
	ModifiedDate time.Time `json:"modified_date,omitempty" yaml:"modified_date,omitempty"`
}

// NewInventory groups object listings by directory. Directories are
// sorted by path, objects keep the given order.
func NewInventory(infos []domain.ObjectInfo) *Inventory {
	byPath := make(map[string]*InventoryDirectory)
	var paths []string
	for _, info := range infos {
		dir, ok := byPath[info.Directory]
		if !ok {
			dir = &InventoryDirectory{Path: info.Directory}
			byPath[info.Directory] = dir
			paths = append(paths, info.Directory)
		}
		obj := InventoryObject{
			ID:           int64(info.ID),
			Name:         info.Name,
			Description:  info.Description,
			ModifiedUser: info.ModifiedUser,
			ModifiedDate: info.ModifiedDate,
		}
		switch info.Kind {
		case domain.KindTransformation:
			dir.Transformations = append(dir.Transformations, obj)
		case domain.KindJob:
			dir.Jobs = append(dir.Jobs, obj)
		}
	}
	sort.Strings(paths)

	inv := &Inventory{Directories: make([]InventoryDirectory, 0, len(paths))}
	for _, p := range paths {
		inv.Directories = append(inv.Directories, *byPath[p])
	}
	return inv
}

// Count returns the number of objects listed
func (inv *Inventory) Count() int {
	n := 0
	for _, d := range inv.Directories {
		n += len(d.Transformations) + len(d.Jobs)
	}
	return n
}

// ExporterFor returns the inventory exporter of a format
func ExporterFor(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	case "json":
		return NewJSONCodec(), nil
	}
	return nil, fmt.Errorf("unsupported inventory format %q", format)
}
