package main

import (
	"context"
	"time"

	"github.com/matsen/jsonviews/internal/project"
	"github.com/matsen/jsonviews/internal/storage"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(projectCmd)
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Show the current project",
	Long:  `Show the project descriptor, its store and how many views it holds.`,
	Args:  cobra.NoArgs,
	RunE:  runProject,
}

// StoreInfo describes the project's SQLite store.
type StoreInfo struct {
	Path             string     `json:"path"`
	SchemaVersion    string     `json:"schema_version"`
	CreatedAt        time.Time  `json:"created_at"`
	LastMaterialized *time.Time `json:"last_materialized_at,omitempty"`
}

// ProjectResult is the response for the project command.
type ProjectResult struct {
	Project   *project.Project `json:"project"`
	Store     StoreInfo        `json:"store"`
	ViewCount int              `json:"view_count"`
}

// storeInfo reads the store's metadata.
func storeInfo(ctx context.Context, h *storage.Manager) (StoreInfo, error) {
	info := StoreInfo{Path: h.Path()}
	var err error
	if info.SchemaVersion, err = h.Meta(ctx, storage.MetaSchemaVersion); err != nil {
		return info, err
	}
	if info.CreatedAt, err = h.CreatedAt(ctx); err != nil {
		return info, err
	}
	last, err := h.MetaTime(ctx, storage.MetaLastMaterialized)
	if err != nil {
		return info, err
	}
	if !last.IsZero() {
		info.LastMaterialized = &last
	}
	return info, nil
}

func runProject(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	p := mustLoadProject()

	h, err := registry.Handle(ctx, p.WorkingDirectory)
	if err != nil {
		exitWithErr(err)
	}
	views, err := registry.GetViewsForProject(ctx, p.WorkingDirectory)
	if err != nil {
		exitWithErr(err)
	}
	store, err := storeInfo(ctx, h)
	if err != nil {
		exitWithErr(err)
	}

	if humanOutput {
		outputHuman("%s\n", p.Name)
		outputHuman("  ID:        %s\n", p.ID)
		outputHuman("  Directory: %s\n", p.WorkingDirectory)
		outputHuman("  Store:     %s (schema v%s, created %s)\n", store.Path, store.SchemaVersion, formatTime(store.CreatedAt))
		outputHuman("  Created:   %s\n", formatTime(p.CreatedAt))
		if store.LastMaterialized != nil {
			outputHuman("  Scanned:   %s\n", formatTime(*store.LastMaterialized))
		}
		outputHuman("  Sources:   %d\n", len(p.SourceFolders))
		outputHuman("  Views:     %d\n", len(views))
	} else {
		outputJSON(ProjectResult{
			Project:   p,
			Store:     store,
			ViewCount: len(views),
		})
	}
	return nil
}
