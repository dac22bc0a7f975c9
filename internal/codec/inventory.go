package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"etlrepo/internal/domain"
)

// InventoryCodec reads and writes inventory listings in one text format.
// Both directions reject fields the Inventory type does not declare.
type InventoryCodec struct {
	format string
	decode func(r io.Reader, inv *Inventory) error
	encode func(w io.Writer, inv *Inventory) error
}

// NewJSONCodec returns the JSON inventory codec
func NewJSONCodec() *InventoryCodec {
	return &InventoryCodec{
		format: "json",
		decode: func(r io.Reader, inv *Inventory) error {
			dec := json.NewDecoder(r)
			dec.DisallowUnknownFields()
			return dec.Decode(inv)
		},
		encode: func(w io.Writer, inv *Inventory) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(inv)
		},
	}
}

// NewYAMLCodec returns the YAML inventory codec
func NewYAMLCodec() *InventoryCodec {
	return &InventoryCodec{
		format: "yaml",
		decode: func(r io.Reader, inv *Inventory) error {
			dec := yaml.NewDecoder(r)
			dec.KnownFields(true)
			return dec.Decode(inv)
		},
		encode: func(w io.Writer, inv *Inventory) error {
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(inv); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func (c *InventoryCodec) Format() string {
	return c.format
}

// Parse reads an inventory. An empty document is an empty inventory.
// Directory paths are normalized.
func (c *InventoryCodec) Parse(r io.Reader) (*Inventory, error) {
	var inv Inventory
	if err := c.decode(r, &inv); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s inventory: %w", c.format, err)
	}

	for i := range inv.Directories {
		dir := &inv.Directories[i]
		if dir.Path == "" {
			return nil, fmt.Errorf("directory %d: path is required", i)
		}
		dir.Path = domain.CleanPath(dir.Path)
		for _, objs := range [][]InventoryObject{dir.Transformations, dir.Jobs} {
			for j, obj := range objs {
				if obj.Name == "" {
					return nil, fmt.Errorf("%s: object %d: name is required", dir.Path, j)
				}
			}
		}
	}
	return &inv, nil
}

// Export writes an inventory
func (c *InventoryCodec) Export(inv *Inventory, w io.Writer) error {
	if err := c.encode(w, inv); err != nil {
		return fmt.Errorf("encode %s inventory: %w", c.format, err)
	}
	return nil
}
