package main

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/matsen/jsonviews/internal/storage"
	"github.com/matsen/jsonviews/internal/view"
	"github.com/spf13/cobra"
)

// TablePlaceholder in a query is replaced by the view's data table name.
const TablePlaceholder = "{table}"

func init() {
	queryCmd.Flags().Bool("save", false, "Save the query on the view")
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query <view> [sql]",
	Short: "Run a read-only SQL query against a view",
	Long: `Run a read-only SQL query against the project store.

{table} in the query is replaced by the view's data table. Without a query,
the view's saved query is run. Statements that write are rejected.

Example:
  jv query orders 'SELECT col_1, COUNT(*) FROM {table} GROUP BY col_1' --save`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runQuery,
}

// SavedQuery is the document stored as a view's query by --save.
type SavedQuery struct {
	SQL string `json:"sql"`
}

// QueryResult is the response for the query command.
type QueryResult struct {
	ViewID string           `json:"view_id"`
	SQL    string           `json:"sql"`
	Rows   []storage.Record `json:"rows"`
	Count  int              `json:"count"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dir := mustFindProject()
	save, _ := cmd.Flags().GetBool("save")

	v := mustResolveView(ctx, dir, args[0])

	var sqlText string
	if len(args) == 2 {
		sqlText = args[1]
	} else {
		saved, ok := savedSQL(v)
		if !ok {
			exitWithError(ExitDataError, "view %s has no saved SQL query", v.Name)
		}
		sqlText = saved
	}

	expanded, err := expandQuery(sqlText, v.ID)
	if err != nil {
		exitWithErr(err)
	}

	h, err := registry.Handle(ctx, dir)
	if err != nil {
		exitWithErr(err)
	}
	rows, err := h.ExecuteQuery(ctx, expanded)
	if err != nil {
		exitWithErr(err)
	}

	if save {
		doc, _ := json.Marshal(SavedQuery{SQL: sqlText})
		if _, err := registry.UpdateView(ctx, dir, v.ID, view.ViewUpdate{LastQuery: view.SetQuery(doc)}); err != nil {
			exitWithErr(err)
		}
	}

	if humanOutput {
		printRecordsHuman(rows)
	} else {
		outputJSON(QueryResult{ViewID: v.ID, SQL: expanded, Rows: rows, Count: len(rows)})
	}
	return nil
}

// savedSQL extracts the SQL text from a view's saved query, if it has one.
func savedSQL(v *view.View) (string, bool) {
	if !v.HasQuery() {
		return "", false
	}
	var q SavedQuery
	if err := json.Unmarshal(v.LastQuery, &q); err != nil || q.SQL == "" {
		return "", false
	}
	return q.SQL, true
}

// expandQuery substitutes the view's table name for TablePlaceholder.
func expandQuery(sqlText, viewID string) (string, error) {
	if !strings.Contains(sqlText, TablePlaceholder) {
		return sqlText, nil
	}
	table, err := storage.DataTableName(viewID)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(sqlText, TablePlaceholder, table), nil
}

func printRecordsHuman(rows []storage.Record) {
	if len(rows) == 0 {
		outputHuman("(no rows)\n")
		return
	}
	cols := slices.Sorted(maps.Keys(rows[0]))
	outputHuman("%s\n", strings.Join(cols, "\t"))
	for _, r := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = formatCell(r[c])
		}
		outputHuman("%s\n", strings.Join(cells, "\t"))
	}
	outputHuman("(%d rows)\n", len(rows))
}
