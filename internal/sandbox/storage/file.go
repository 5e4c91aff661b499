package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileStore reads the inventory from a YAML file on every load:
//
//	creatives:
//	  - id: ad1
//	    slot_id: S1
//	    slot_type: 1
//	    image_url: https://cdn.example/ad1.png
//	    status: ACTIVE
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

type inventoryFile struct {
	Creatives []CreativeRow `yaml:"creatives"`
}

func (f *FileStore) LoadActiveCreatives(_ context.Context) ([]CreativeRow, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read inventory %s: %w", f.path, err)
	}
	return ParseInventory(b)
}

// ParseInventory decodes an inventory document and keeps ACTIVE rows. A missing status
// counts as ACTIVE.
func ParseInventory(b []byte) ([]CreativeRow, error) {
	var inv inventoryFile
	if err := yaml.Unmarshal(b, &inv); err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}
	out := make([]CreativeRow, 0, len(inv.Creatives))
	for _, r := range inv.Creatives {
		if r.Status == "" {
			r.Status = "ACTIVE"
		}
		if !strings.EqualFold(r.Status, "ACTIVE") {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// StaticStore serves a fixed inventory.
type StaticStore []CreativeRow

func (s StaticStore) LoadActiveCreatives(_ context.Context) ([]CreativeRow, error) {
	return append([]CreativeRow(nil), s...), nil
}
