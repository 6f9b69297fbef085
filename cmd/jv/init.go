package main

import (
	"context"
	"os"
	"time"

	"github.com/matsen/jsonviews/internal/config"
	"github.com/matsen/jsonviews/internal/project"
	"github.com/spf13/cobra"
)

func init() {
	initCmd.Flags().StringP("name", "n", "", "Project name (default: directory name)")
	initCmd.Flags().StringArrayP("source", "s", nil, "Source folder to add (repeatable)")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a new project",
	Long: `Initialize a jsonviews project in dir (default: current directory).

Creates .jsonviews/ with the project descriptor and the view store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

// InitResult is the response for the init command.
type InitResult struct {
	Status  string           `json:"status"`
	Project *project.Project `json:"project"`
	DBPath  string           `json:"db_path"`
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := projectFlag
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			exitWithError(ExitError, "getting current directory: %v", err)
		}
		dir = cwd
	}
	dir = config.ExpandPath(dir)

	name, _ := cmd.Flags().GetString("name")
	sources, _ := cmd.Flags().GetStringArray("source")

	p, err := project.New(dir, name, time.Now())
	if err != nil {
		exitWithErr(err)
	}
	if config.IsProject(p.WorkingDirectory) {
		exitWithError(ExitConflict, "project already initialized in %s", p.WorkingDirectory)
	}
	// Validate every folder before anything touches the disk.
	for _, src := range sources {
		if _, err := p.AddSourceFolder(src); err != nil {
			exitWithError(ExitDataError, "adding source folder: %v", err)
		}
	}
	if err := p.Save(); err != nil {
		exitWithError(ExitError, "writing project: %v", err)
	}

	// Create the store eagerly so a broken location fails now, not on first use.
	h, err := registry.Handle(context.Background(), p.WorkingDirectory)
	if err != nil {
		exitWithErr(err)
	}

	if humanOutput {
		outputHuman("Initialized project %q in %s\n", p.Name, config.StatePath(p.WorkingDirectory))
		for _, f := range p.SourceFolders {
			outputHuman("  Source: %s\n", f.Path)
		}
	} else {
		outputJSON(InitResult{
			Status:  "initialized",
			Project: p,
			DBPath:  h.Path(),
		})
	}
	return nil
}
