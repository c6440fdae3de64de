// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"nycdb-insight/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	columnCmd := flag.NewFlagSet("add-column", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	// Add command flags
	nameAdd := addCmd.String("name", "", "Table name (e.g., hpd_violations)")
	displayName := addCmd.String("displayName", "", "Display Name (e.g., HPD Violations)")
	description := addCmd.String("description", "", "Description")
	keyColumn := addCmd.String("keyColumn", "bbl", "Key column joining the dataset to buildings")
	dateColumn := addCmd.String("dateColumn", "", "Date column used for time-range filters (optional)")
	addCmd.StringVar(&registryPath, "path", "configs/datasets.json", "Path to registry file")

	// Add-column command flags
	nameCol := columnCmd.String("dataset", "", "Table name to add the column to")
	colName := columnCmd.String("column", "", "Column name")
	colType := columnCmd.String("type", "text", "Column type (text, integer, date, numeric)")
	colDesc := columnCmd.String("description", "", "Column description")
	columnCmd.StringVar(&registryPath, "path", "configs/datasets.json", "Path to registry file")

	// Validate command flags
	validateCmd.StringVar(&registryPath, "path", "configs/datasets.json", "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *nameAdd == "" || *displayName == "" {
			fmt.Println("Error: name and displayName are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		dataset := registry.Dataset{
			Name:        *nameAdd,
			DisplayName: *displayName,
			Description: *description,
			KeyColumn:   *keyColumn,
			DateColumn:  *dateColumn,
			Columns:     []registry.Column{},
			Tags:        []string{},
		}
		err := addDataset(&dataset)
		if err != nil {
			fmt.Printf("Error adding dataset: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added dataset: %s\n", *nameAdd)

	case "add-column":
		columnCmd.Parse(os.Args[2:])
		if *nameCol == "" || *colName == "" {
			fmt.Println("Error: dataset and column are required for add-column.")
			columnCmd.Usage()
			os.Exit(1)
		}
		err := addColumn(*nameCol, registry.Column{
			Name:        *colName,
			Type:        *colType,
			Description: *colDesc,
		})
		if err != nil {
			fmt.Printf("Error adding column: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added column %s to dataset %s\n", *colName, *nameCol)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		err := validateRegistry()
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Registry validation passed.")

	case "help":
		fallthrough
	default:
		help()
	}
}

func addDataset(dataset *registry.Dataset) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		// If file doesn't exist, create new registry
		if os.IsNotExist(err) {
			reg = &registry.DatasetRegistry{
				Version:     "1.0.0",
				LastUpdated: time.Now().Format(time.RFC3339),
				Datasets:    []registry.Dataset{},
			}
		} else {
			return fmt.Errorf("failed to load registry: %w", err)
		}
	}

	// Check if dataset already exists
	for _, existing := range reg.Datasets {
		if existing.Name == dataset.Name {
			return fmt.Errorf("dataset with name %s already exists", dataset.Name)
		}
	}

	reg.Datasets = append(reg.Datasets, *dataset)
	reg.LastUpdated = time.Now().Format(time.RFC3339)

	return saveRegistry(reg, registryPath)
}

func addColumn(datasetName string, column registry.Column) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	found := false
	for i := range reg.Datasets {
		if reg.Datasets[i].Name != datasetName {
			continue
		}
		found = true
		for _, existing := range reg.Datasets[i].Columns {
			if existing.Name == column.Name {
				return fmt.Errorf("column %s already exists on dataset %s", column.Name, datasetName)
			}
		}
		reg.Datasets[i].Columns = append(reg.Datasets[i].Columns, column)
		break
	}

	if !found {
		return fmt.Errorf("dataset with name %s not found", datasetName)
	}

	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return saveRegistry(reg, registryPath)
}

func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	if len(reg.Datasets) == 0 {
		return fmt.Errorf("registry contains no datasets")
	}

	names := make(map[string]bool)
	for _, dataset := range reg.Datasets {
		if dataset.Name == "" {
			return fmt.Errorf("dataset missing required field: Name")
		}
		if names[dataset.Name] {
			return fmt.Errorf("duplicate dataset name: %s", dataset.Name)
		}
		names[dataset.Name] = true

		if dataset.KeyColumn == "" {
			return fmt.Errorf("dataset %s missing required field: KeyColumn", dataset.Name)
		}
		if len(dataset.Columns) == 0 {
			return fmt.Errorf("dataset %s has no columns", dataset.Name)
		}

		columns := make(map[string]bool)
		for _, column := range dataset.Columns {
			if column.Name == "" {
				return fmt.Errorf("dataset %s has a column missing required field: Name", dataset.Name)
			}
			if columns[column.Name] {
				return fmt.Errorf("dataset %s has duplicate column: %s", dataset.Name, column.Name)
			}
			columns[column.Name] = true
		}

		if dataset.DateColumn != "" && !columns[dataset.DateColumn] {
			return fmt.Errorf("dataset %s dateColumn %s is not a listed column", dataset.Name, dataset.DateColumn)
		}
	}

	fmt.Printf("Registry validation passed. Found %d datasets.\n", len(reg.Datasets))
	return nil
}

// saveRegistry handles saving the registry to file
func saveRegistry(reg *registry.DatasetRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	err = os.WriteFile(path, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}

	return nil
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  add        Add a new dataset to the registry
  add-column Add a column to an existing dataset
  validate   Validate the registry file
  help       Show this help message

Examples:
  registry-updater add -name hpd_violations -displayName "HPD Violations" -description "Housing maintenance code violations" -keyColumn bbl -dateColumn issue_date
  registry-updater add-column -dataset hpd_violations -column violation_type -type text
  registry-updater validate -path configs/datasets.json

Use 'registry-updater <command> -h' for more information about a command.`)
}
