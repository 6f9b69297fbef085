package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/matsen/jsonviews/internal/schema"
	"github.com/matsen/jsonviews/internal/view"
	"github.com/spf13/cobra"
)

func init() {
	scanCmd.Flags().Bool("dry-run", false, "Infer and print the schema without touching any view")
	scanCmd.Flags().Bool("replace", false, "Rebuild the data table if the view already has one")
	scanCmd.Flags().Bool("no-populate", false, "Create the table without loading records")
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan [view]",
	Short: "Infer a schema from the source folders and materialize a view",
	Long: `Scan every JSON file in the project's source folders, infer one merged
column set, then create the view's data table and load the records into it.

With --dry-run the view argument is optional and nothing is written.
Files that cannot be parsed are reported and skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	replace, _ := cmd.Flags().GetBool("replace")
	noPopulate, _ := cmd.Flags().GetBool("no-populate")

	if !dryRun && len(args) == 0 {
		exitWithError(ExitError, "a view is required unless --dry-run is set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := mustLoadProject()
	folders := p.FolderPaths()

	if dryRun {
		res, err := registry.ScanSourceFolders(ctx, folders, progressPrinter("scan"))
		if err != nil {
			exitWithErr(err)
		}
		if humanOutput {
			printScanHuman(res)
		} else {
			outputJSON(res)
		}
		return nil
	}

	v := mustResolveView(ctx, p.WorkingDirectory, args[0])
	res, err := registry.Materialize(ctx, p.WorkingDirectory, v.ID, folders, view.MaterializeOptions{
		Replace:      replace,
		Populate:     !noPopulate,
		Progress:     progressPrinter("scan"),
		LoadProgress: progressPrinter("load"),
	})
	if err != nil {
		exitWithErr(err)
	}

	if humanOutput {
		printScanHuman(res.Scan)
		verb := "Created"
		if res.Replaced {
			verb = "Replaced"
		}
		outputHuman("%s table %s for view %s", verb, res.Table, v.Name)
		if !noPopulate {
			outputHuman(" (%d rows)", res.RowsInserted)
		}
		outputHuman("\n")
	} else {
		outputJSON(res)
	}
	return nil
}

func printScanHuman(res *schema.ScanResult) {
	outputHuman("Scanned %d files, %d records\n", res.ProcessedFiles, res.TotalRecords)
	if len(res.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "%d files skipped:\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", e.Path, e.Message)
		}
	}
	outputHuman("Columns:\n")
	printColumnsHuman(res.Columns)
}
