package database

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/types"
	"gopkg.in/yaml.v3"
)

// SeedTable is the default content of one reference table
type SeedTable struct {
	Model string           `yaml:"model"`
	Rows  []map[string]any `yaml:"rows"`
}

// ParseSeed decodes the seed document
func ParseSeed(raw []byte) ([]SeedTable, error) {
	var tables []SeedTable
	if err := yaml.Unmarshal(raw, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	return tables, nil
}

// Seed fills every empty reference table from raw. Tables that already have rows are skipped,
// so running it twice is harmless. It returns the inserted row count per model.
func Seed(ctx context.Context, repo *repository.Repository, raw []byte) (map[string]int, error) {
	tables, err := ParseSeed(raw)
	if err != nil {
		return nil, err
	}

	inserted := make(map[string]int)
	for _, table := range tables {
		desc, ok := repo.Registry().Get(table.Model)
		if !ok {
			return nil, types.Configf("seed: model %q is not registered", table.Model)
		}
		rows, err := buildRows(desc, table.Rows)
		if err != nil {
			return nil, err
		}
		ok, err = repo.BulkInsertIfEmpty(ctx, desc, rows)
		if err != nil {
			return nil, err
		}
		if ok {
			inserted[desc.Name] = len(table.Rows)
		}
	}
	return inserted, nil
}

func buildRows(desc *meta.Descriptor, rows []map[string]any) (any, error) {
	slice := desc.NewSlice()
	sv := reflect.ValueOf(slice).Elem()
	for i, row := range rows {
		e := desc.New()
		columns := make([]string, 0, len(row))
		for column := range row {
			columns = append(columns, column)
		}
		sort.Strings(columns)
		for _, column := range columns {
			f, ok := desc.Field(column)
			if !ok {
				return nil, types.Configf("seed %s row %d: unknown column %q", desc.Name, i, column)
			}
			if err := f.SetValue(e, row[column]); err != nil {
				return nil, types.Configf("seed %s row %d: %v", desc.Name, i, err)
			}
		}
		sv.Set(reflect.Append(sv, reflect.ValueOf(e)))
	}
	return slice, nil
}
