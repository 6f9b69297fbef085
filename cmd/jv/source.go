package main

import (
	"time"

	"github.com/matsen/jsonviews/internal/project"
	"github.com/spf13/cobra"
)

func init() {
	sourceCmd.AddCommand(sourceAddCmd)
	sourceCmd.AddCommand(sourceRemoveCmd)
	sourceCmd.AddCommand(sourceListCmd)
	rootCmd.AddCommand(sourceCmd)
}

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage source folders",
	Long:  `Commands for managing the folders of JSON files scanned into views.`,
}

var sourceAddCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Add source folders",
	Long:  `Add one or more folders. Relative paths resolve against the project directory.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSourceAdd,
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove <id-or-path>",
	Short: "Remove a source folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceRemove,
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List source folders in scan order",
	Args:  cobra.NoArgs,
	RunE:  runSourceList,
}

// SourceResult is the response for source add and remove.
type SourceResult struct {
	Status  string                 `json:"status"`
	Folders []project.SourceFolder `json:"folders"`
}

// mustLoadProject loads the descriptor of the current project, exits on error.
func mustLoadProject() *project.Project {
	p, err := project.Load(mustFindProject())
	if err != nil {
		exitWithError(ExitConfigError, "loading project: %v", err)
	}
	return p
}

// mustSaveProject writes the descriptor, exits on error.
func mustSaveProject(p *project.Project) {
	if err := p.Save(); err != nil {
		exitWithError(ExitError, "writing project: %v", err)
	}
}

func runSourceAdd(cmd *cobra.Command, args []string) error {
	p := mustLoadProject()

	added := make([]project.SourceFolder, 0, len(args))
	for _, path := range args {
		f, err := p.AddSourceFolder(path)
		if err != nil {
			code := exitCodeFor(err)
			if code == ExitError {
				code = ExitDataError
			}
			exitWithError(code, "adding source folder: %v", err)
		}
		added = append(added, f)
	}
	p.Touch(time.Now())
	mustSaveProject(p)

	if humanOutput {
		for _, f := range added {
			outputHuman("Added source: %s\n", f.Path)
		}
	} else {
		outputJSON(SourceResult{Status: "added", Folders: added})
	}
	return nil
}

func runSourceRemove(cmd *cobra.Command, args []string) error {
	p := mustLoadProject()

	f, err := p.RemoveSourceFolder(args[0])
	if err != nil {
		exitWithError(exitCodeFor(err), "%v", err)
	}
	p.Touch(time.Now())
	mustSaveProject(p)

	if humanOutput {
		outputHuman("Removed source: %s\n", f.Path)
	} else {
		outputJSON(SourceResult{Status: "removed", Folders: []project.SourceFolder{f}})
	}
	return nil
}

func runSourceList(cmd *cobra.Command, args []string) error {
	p := mustLoadProject()

	if humanOutput {
		if len(p.SourceFolders) == 0 {
			outputHuman("No source folders. Add one with 'jv source add <path>'.\n")
			return nil
		}
		for i, f := range p.SourceFolders {
			outputHuman("%d. %s\n   id: %s\n", i+1, f.Path, f.ID)
		}
	} else {
		outputJSON(p.SourceFolders)
	}
	return nil
}
