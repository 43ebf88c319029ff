package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oukeidos/kotoba/internal/store"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List translation jobs found under a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to scan for job metadata sidecars")
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}

func runList(cmd *cobra.Command, dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*_metadata.json"))
	if err != nil {
		return err
	}
	sort.Strings(matches)

	if len(matches) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
		return nil
	}

	fs := store.New()
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Jobs:")
	for _, path := range matches {
		meta, err := fs.ReadMetadata(path)
		if err != nil {
			fmt.Fprintf(out, "  %-40s (unreadable: %v)\n", filepath.Base(path), err)
			continue
		}
		if meta == nil {
			continue
		}
		done := len(meta.TranslatedChunks)
		failed := len(meta.FailedChunks)
		fmt.Fprintf(out, "  %-40s %-22s %d/%d translated, %d failed\n",
			strings.TrimSuffix(filepath.Base(meta.InputFile), filepath.Ext(meta.InputFile)),
			meta.Status, done, meta.TotalChunks, failed)
	}
	return nil
}
