// pkg/registry/schema.go
package registry

// DatasetRegistry describes the tables the compiler may reference. It is the
// identifier allow-list: table and column names that are not listed here are
// never interpolated into SQL text.
type DatasetRegistry struct {
	Version     string    `json:"version"`
	LastUpdated string    `json:"lastUpdated"`
	Datasets    []Dataset `json:"datasets"`
}

// Dataset is one table in the dataset store.
type Dataset struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	KeyColumn   string   `json:"keyColumn"`
	DateColumn  string   `json:"dateColumn,omitempty"`
	Columns     []Column `json:"columns"`
	Tags        []string `json:"tags,omitempty"`
}

// Column is one allow-listed column.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}
