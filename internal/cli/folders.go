package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newFoldersCmd creates the 'folders' command.
func newFoldersCmd() *cobra.Command {
	foldersCmd := &cobra.Command{
		Use:   "folders",
		Short: "Manage photo folders",
	}

	foldersCmd.AddCommand(newFoldersListCmd())

	return foldersCmd
}

// newFoldersListCmd creates the 'folders list' command.
func newFoldersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List photo folders",
		Long: `List photo folders with their analysis progress.

Listings are served from the local cache when available; a stale listing
is shown immediately while a refresh runs in the background.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			folders, stale, err := app.Library.Folders(GetContext())
			if err != nil {
				return err
			}

			if len(folders) == 0 {
				fmt.Println("No folders found")
				return nil
			}

			fmt.Printf("Found %d folder(s):\n\n", len(folders))
			fmt.Printf("%-20s %-40s %10s %10s\n", "FOLDER ID", "NAME", "PHOTOS", "ANALYZED")
			fmt.Println(strings.Repeat("-", 84))

			for _, f := range folders {
				name := f.Name
				if len(name) > 40 {
					name = name[:37] + "..."
				}
				fmt.Printf("%-20s %-40s %10d %10d\n", f.ID, name, f.PhotoCount, f.AnalyzedCount)
			}

			if stale {
				fmt.Println("\n(cached listing; refreshing in the background)")
			}

			return nil
		},
	}
}
