package main

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/matsen/jsonviews/internal/apperr"
	"github.com/matsen/jsonviews/internal/view"
	"github.com/spf13/cobra"
)

// QueryPreviewMaxLen bounds the saved query shown by view list --human.
const QueryPreviewMaxLen = 60

func init() {
	rootCmd.AddCommand(viewCmd)

	viewCmd.AddCommand(viewCreateCmd)
	viewCmd.AddCommand(viewListCmd)
	viewCmd.AddCommand(viewGetCmd)
	viewCmd.AddCommand(viewRenameCmd)

	viewDeleteCmd.Flags().BoolP("force", "f", false, "Do not fail when the view does not exist")
	viewCmd.AddCommand(viewDeleteCmd)

	viewAvailableCmd.Flags().String("exclude", "", "View (name or id) to ignore, for renames")
	viewCmd.AddCommand(viewAvailableCmd)

	viewSetQueryCmd.Flags().Bool("clear", false, "Remove the saved query")
	viewCmd.AddCommand(viewSetQueryCmd)
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Manage views",
	Long:  `Commands for managing the named views of the current project.`,
}

var viewCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a view",
	Long:  `Create an empty view. Names are unique per project, ignoring case.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runViewCreate,
}

var viewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List views, most recently modified first",
	Args:  cobra.NoArgs,
	RunE:  runViewList,
}

var viewGetCmd = &cobra.Command{
	Use:   "get <view>",
	Short: "Show a view",
	Long:  `Show a view by name or id, including its materialized columns.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runViewGet,
}

var viewRenameCmd = &cobra.Command{
	Use:   "rename <view> <new-name>",
	Short: "Rename a view",
	Args:  cobra.ExactArgs(2),
	RunE:  runViewRename,
}

var viewDeleteCmd = &cobra.Command{
	Use:   "delete <view>",
	Short: "Delete a view and its data table",
	Args:  cobra.ExactArgs(1),
	RunE:  runViewDelete,
}

var viewAvailableCmd = &cobra.Command{
	Use:   "available <name>",
	Short: "Check whether a view name is valid and unused",
	Args:  cobra.ExactArgs(1),
	RunE:  runViewAvailable,
}

var viewSetQueryCmd = &cobra.Command{
	Use:   "set-query <view> [json]",
	Short: "Save or clear a view's query",
	Long: `Save a JSON document as the view's query, or clear it with --clear.

The document is stored as given and never interpreted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runViewSetQuery,
}

// ViewListResult is the response for view list.
type ViewListResult struct {
	Views []*view.View `json:"views"`
	Count int          `json:"count"`
}

// AvailabilityResult is the response for view available.
type AvailabilityResult struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// DeleteResult is the response for view delete.
type DeleteResult struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Deleted bool   `json:"deleted"`
}

// resolveView finds a view by id or, failing that, by name.
func resolveView(ctx context.Context, projectDir, ref string) (*view.View, error) {
	if _, err := uuid.Parse(ref); err == nil {
		v, err := registry.GetView(ctx, projectDir, ref)
		if !apperr.IsNotFound(err) {
			return v, err
		}
	}
	return registry.FindViewByName(ctx, projectDir, ref)
}

// mustResolveView resolves a view reference, exits on error.
func mustResolveView(ctx context.Context, projectDir, ref string) *view.View {
	v, err := resolveView(ctx, projectDir, ref)
	if err != nil {
		exitWithErr(err)
	}
	return v
}

func runViewCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dir := mustFindProject()

	v, err := registry.CreateView(ctx, dir, args[0])
	if err != nil {
		exitWithErr(err)
	}

	if humanOutput {
		outputHuman("Created view: %s\n", v.Name)
		outputHuman("  ID: %s\n", v.ID)
	} else {
		outputJSON(v)
	}
	return nil
}

func runViewList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dir := mustFindProject()

	views, err := registry.GetViewsForProject(ctx, dir)
	if err != nil {
		exitWithErr(err)
	}

	if humanOutput {
		if len(views) == 0 {
			outputHuman("No views. Create one with 'jv view create <name>'.\n")
			return nil
		}
		for _, v := range views {
			outputHuman("%s  %s\n", v.ID, v.Name)
			outputHuman("    modified %s, %d columns\n", formatTime(v.LastModified), len(v.TableSchema))
			if v.HasQuery() {
				outputHuman("    query: %s\n", truncateString(string(v.LastQuery), QueryPreviewMaxLen))
			}
		}
	} else {
		outputJSON(ViewListResult{Views: views, Count: len(views)})
	}
	return nil
}

func runViewGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dir := mustFindProject()

	v := mustResolveView(ctx, dir, args[0])
	if humanOutput {
		printViewHuman(v)
	} else {
		outputJSON(v)
	}
	return nil
}

func printViewHuman(v *view.View) {
	outputHuman("%s\n", v.Name)
	outputHuman("  ID:       %s\n", v.ID)
	outputHuman("  Created:  %s\n", formatTime(v.CreatedAt))
	outputHuman("  Modified: %s\n", formatTime(v.LastModified))
	if v.HasQuery() {
		outputHuman("  Query:    %s\n", string(v.LastQuery))
	}
	outputHuman("  Columns:\n")
	printColumnsHuman(v.TableSchema)
}

func runViewRename(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dir := mustFindProject()

	v := mustResolveView(ctx, dir, args[0])
	name := args[1]
	updated, err := registry.UpdateView(ctx, dir, v.ID, view.ViewUpdate{Name: &name})
	if err != nil {
		exitWithErr(err)
	}

	if humanOutput {
		outputHuman("Renamed %s to %s\n", v.Name, updated.Name)
	} else {
		outputJSON(updated)
	}
	return nil
}

func runViewDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dir := mustFindProject()
	force, _ := cmd.Flags().GetBool("force")

	v, err := resolveView(ctx, dir, args[0])
	if apperr.IsNotFound(err) && force {
		if humanOutput {
			outputHuman("No view %s\n", args[0])
		} else {
			outputJSON(DeleteResult{Status: "absent"})
		}
		return nil
	}
	if err != nil {
		exitWithErr(err)
	}

	deleted, err := registry.DeleteViewInProject(ctx, dir, v.ID)
	if err != nil {
		exitWithErr(err)
	}

	if humanOutput {
		outputHuman("Deleted view: %s\n", v.Name)
	} else {
		outputJSON(DeleteResult{Status: "deleted", ID: v.ID, Deleted: deleted})
	}
	return nil
}

func runViewAvailable(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dir := mustFindProject()

	excludeID := ""
	if ref, _ := cmd.Flags().GetString("exclude"); ref != "" {
		excludeID = mustResolveView(ctx, dir, ref).ID
	}

	ok, err := registry.IsViewNameAvailable(ctx, dir, args[0], excludeID)
	if err != nil {
		exitWithErr(err)
	}

	if humanOutput {
		if ok {
			outputHuman("%q is available\n", args[0])
		} else {
			outputHuman("%q is not available\n", args[0])
		}
	} else {
		outputJSON(AvailabilityResult{Name: args[0], Available: ok})
	}
	return nil
}

func runViewSetQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dir := mustFindProject()
	clearQuery, _ := cmd.Flags().GetBool("clear")

	var upd view.ViewUpdate
	switch {
	case clearQuery && len(args) == 2:
		exitWithError(ExitError, "--clear takes no query document")
	case clearQuery:
		upd.LastQuery = view.ClearQuery()
	case len(args) == 2:
		upd.LastQuery = view.SetQuery(json.RawMessage(args[1]))
	default:
		exitWithError(ExitError, "a query document or --clear is required")
	}

	v := mustResolveView(ctx, dir, args[0])
	updated, err := registry.UpdateView(ctx, dir, v.ID, upd)
	if err != nil {
		exitWithErr(err)
	}

	if humanOutput {
		printViewHuman(updated)
	} else {
		outputJSON(updated)
	}
	return nil
}
