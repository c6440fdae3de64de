// pkg/registry/registry_test.go
package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRegistry = `{
	"version": "1.0",
	"datasets": [
		{
			"name": "buildings",
			"keyColumn": "bbl",
			"columns": [
				{"name": "borough", "type": "text"},
				{"name": "year_built", "type": "integer"}
			]
		},
		{
			"name": "hpd_violations",
			"keyColumn": "bbl",
			"dateColumn": "issue_date",
			"columns": [
				{"name": "issue_date", "type": "date"},
				{"name": "violation_type", "type": "text"}
			]
		}
	]
}`

func TestParseRegistry(t *testing.T) {
	reg, err := ParseRegistry([]byte(sampleRegistry))
	require.NoError(t, err)
	assert.Len(t, reg.Datasets, 2)
	assert.Equal(t, "1.0", reg.Version)
}

func TestLoadRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datasets.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleRegistry), 0o644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Len(t, reg.Datasets, 2)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDatasetLookup(t *testing.T) {
	reg, err := ParseRegistry([]byte(sampleRegistry))
	require.NoError(t, err)

	ds, err := reg.Dataset("hpd_violations")
	require.NoError(t, err)
	assert.Equal(t, "issue_date", ds.DateColumn)

	_, err = reg.Dataset("pg_shadow")
	assert.Error(t, err)
}

func TestAllowsTableAndColumn(t *testing.T) {
	reg, err := ParseRegistry([]byte(sampleRegistry))
	require.NoError(t, err)

	assert.True(t, reg.AllowsTable("buildings"))
	assert.False(t, reg.AllowsTable("users"))

	// Key columns are always allowed even when not listed in columns.
	assert.True(t, reg.AllowsColumn("buildings", "bbl"))
	assert.True(t, reg.AllowsColumn("buildings", "borough"))
	assert.False(t, reg.AllowsColumn("buildings", "password"))
	assert.False(t, reg.AllowsColumn("users", "borough"))
}
