package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lumapix/lumapix-cli/internal/models"
)

// newPhotosCmd creates the 'photos' command.
func newPhotosCmd() *cobra.Command {
	photosCmd := &cobra.Command{
		Use:   "photos",
		Short: "Manage photos",
	}

	photosCmd.AddCommand(newPhotosListCmd())
	photosCmd.AddCommand(newPhotosStatusCmd())

	return photosCmd
}

// newPhotosListCmd creates the 'photos list' command.
func newPhotosListCmd() *cobra.Command {
	var folderID string
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List photos in a folder",
		Long: `List photos in a folder with their analysis status.

Listings are served from the local cache when available; a stale listing
is shown immediately while a refresh runs in the background.

Example:
  lumapix photos list --folder fld_123
  lumapix photos list --folder fld_123 --status failed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if folderID == "" {
				return fmt.Errorf("--folder is required")
			}
			if statusFilter != "" && !models.PhotoStatus(statusFilter).Valid() {
				return fmt.Errorf("unknown status %q", statusFilter)
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			photos, stale, err := app.Library.Photos(GetContext(), folderID)
			if err != nil {
				return err
			}

			if statusFilter != "" {
				var filtered []models.Photo
				for _, p := range photos {
					if string(p.Status) == statusFilter {
						filtered = append(filtered, p)
					}
				}
				photos = filtered
			}

			if len(photos) == 0 {
				fmt.Println("No photos found")
				return nil
			}

			fmt.Printf("Found %d photo(s):\n\n", len(photos))
			fmt.Printf("%-20s %-40s %-15s %s\n", "PHOTO ID", "NAME", "STATUS", "TAKEN")
			fmt.Println(strings.Repeat("-", 90))

			for _, p := range photos {
				name := p.Name
				if len(name) > 40 {
					name = name[:37] + "..."
				}
				taken := ""
				if p.TakenAt != nil {
					taken = p.TakenAt.Format("2006-01-02")
				}
				fmt.Printf("%-20s %-40s %-15s %s\n", p.LocalID, name, p.Status, taken)
			}

			if stale {
				fmt.Println("\n(cached listing; refreshing in the background)")
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&folderID, "folder", "f", "", "Folder to list photos from (required)")
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show photos with this status (e.g. completed, failed)")

	return cmd
}

// newPhotosStatusCmd creates the 'photos status' command.
func newPhotosStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <photo-id>",
		Short: "Show a photo's analysis status from the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			status, err := app.Client.GetPhotoStatus(GetContext(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Photo:  %s\n", status.PhotoID)
			fmt.Printf("Status: %s\n", status.Status)
			if status.Result != nil {
				if status.Result.Description != "" {
					fmt.Printf("Description: %s\n", status.Result.Description)
				}
				if len(status.Result.Tags) > 0 {
					fmt.Printf("Tags: %s\n", strings.Join(status.Result.Tags, ", "))
				}
			}
			return nil
		},
	}
}
