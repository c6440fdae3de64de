// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

func LoadRegistry(path string) (*DatasetRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg DatasetRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// ParseRegistry decodes a registry from raw JSON, used by tests and embedding.
func ParseRegistry(data []byte) (*DatasetRegistry, error) {
	var reg DatasetRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Dataset returns the dataset with the given table name.
func (r *DatasetRegistry) Dataset(name string) (*Dataset, error) {
	for i := range r.Datasets {
		if r.Datasets[i].Name == name {
			return &r.Datasets[i], nil
		}
	}
	return nil, fmt.Errorf("dataset %q not in registry", name)
}

// AllowsTable reports whether a table name is registered.
func (r *DatasetRegistry) AllowsTable(name string) bool {
	_, err := r.Dataset(name)
	return err == nil
}

// AllowsColumn reports whether a column is registered for the given table.
func (r *DatasetRegistry) AllowsColumn(table, column string) bool {
	ds, err := r.Dataset(table)
	if err != nil {
		return false
	}
	if column == ds.KeyColumn {
		return true
	}
	for _, c := range ds.Columns {
		if c.Name == column {
			return true
		}
	}
	return false
}
