package main

import (
	"context"

	"github.com/matsen/jsonviews/internal/schema"
	"github.com/matsen/jsonviews/internal/storage"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(schemaCmd)
}

var schemaCmd = &cobra.Command{
	Use:   "schema <view>",
	Short: "Show a view's materialized columns",
	Long: `Show the columns of a view's data table and how they map to SQL.

Column values live in col_1..col_N of the table, in the order listed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSchema,
}

// SchemaColumn pairs a column definition with its SQL column.
type SchemaColumn struct {
	schema.ColumnDefinition
	Column string `json:"column"`
}

// SchemaResult is the response for the schema command.
type SchemaResult struct {
	ViewID       string                 `json:"view_id"`
	Name         string                 `json:"name"`
	Materialized bool                   `json:"materialized"`
	Table        *storage.DataTableInfo `json:"table,omitempty"`
	Columns      []SchemaColumn         `json:"columns"`
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dir := mustFindProject()
	v := mustResolveView(ctx, dir, args[0])

	h, err := registry.Handle(ctx, dir)
	if err != nil {
		exitWithErr(err)
	}
	info, err := h.DataTableInfo(ctx, v.ID)
	if err != nil {
		exitWithErr(err)
	}

	res := SchemaResult{
		ViewID:       v.ID,
		Name:         v.Name,
		Materialized: info != nil,
		Table:        info,
		Columns:      make([]SchemaColumn, len(v.TableSchema)),
	}
	for i, c := range v.TableSchema {
		res.Columns[i] = SchemaColumn{ColumnDefinition: c, Column: storage.ColumnName(i + 1)}
	}

	if humanOutput {
		if info == nil {
			outputHuman("View %s has no data table. Run 'jv scan %s'.\n", v.Name, v.Name)
			return nil
		}
		outputHuman("%s (%s, %d rows)\n", v.Name, info.TableName, info.Rows)
		for _, c := range res.Columns {
			outputHuman("  %-8s %-7s %s\n", c.Column, c.Type, c.Name)
		}
	} else {
		outputJSON(res)
	}
	return nil
}
