package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumapix/lumapix-cli/internal/batch"
	"github.com/lumapix/lumapix-cli/internal/events"
	"github.com/lumapix/lumapix-cli/internal/models"
	"github.com/lumapix/lumapix-cli/internal/progress"
)

// newAnalyzeCmd creates the 'analyze' command group.
func newAnalyzeCmd() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Submit photos for AI analysis and track progress",
		Long: `Batch analysis commands.

Commands:
  start       - Submit photos for analysis
  watch       - Attach to an in-flight batch and show progress
  status      - Show the backend's batch status
  cancel      - Cancel the in-flight batch
  clear-queue - Clear queued, not-yet-started work`,
	}

	analyzeCmd.AddCommand(newAnalyzeStartCmd())
	analyzeCmd.AddCommand(newAnalyzeWatchCmd())
	analyzeCmd.AddCommand(newAnalyzeStatusCmd())
	analyzeCmd.AddCommand(newAnalyzeCancelCmd())
	analyzeCmd.AddCommand(newAnalyzeClearQueueCmd())

	return analyzeCmd
}

// newAnalyzeStartCmd creates the 'analyze start' command.
func newAnalyzeStartCmd() *cobra.Command {
	var folderID string
	var photoIDs []string
	var watch bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Submit photos for AI analysis",
		Long: `Submit a set of photos for asynchronous AI analysis.

Select photos either explicitly with repeated --photo flags or with
--folder, which submits every eligible photo in the folder that has not
already been analyzed. Photos that are not yet synced to the backend are
skipped.

Example:
  lumapix analyze start --folder fld_123 --watch
  lumapix analyze start --photo ph_1 --photo ph_2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if folderID == "" && len(photoIDs) == 0 {
				return fmt.Errorf("either --folder or --photo is required")
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := GetContext()

			// An in-flight batch survives restarts server-side; pick it up
			// before doing anything else.
			if resumed := app.Orchestrator.Resume(ctx); resumed != nil {
				fmt.Printf("A batch is already in flight (%d photos outstanding).\n", len(resumed.Items))
				fmt.Println("Use 'lumapix analyze watch' to follow it, or 'lumapix analyze cancel' first.")
				return nil
			}

			items := photoIDs
			if len(photoIDs) > 0 {
				resolvePhotos(ctx, app, photoIDs)
			}
			if folderID != "" {
				photos, stale, err := app.Library.Photos(ctx, folderID)
				if err != nil {
					return err
				}
				if stale {
					GetLogger().Debug().Msg("Serving stale photo listing; refresh running in background")
				}
				for _, p := range photos {
					if p.Synced() && p.Status != models.StatusCompleted {
						items = append(items, p.LocalID)
					}
				}
			}

			var sub <-chan events.Event
			if watch {
				sub = app.Bus.SubscribeAll()
			}

			job, err := app.Orchestrator.Submit(ctx, items)
			if err != nil {
				if errors.Is(err, batch.ErrNoEligibleItems) {
					return fmt.Errorf("no eligible photos: only synced photos can be analyzed")
				}
				return err
			}

			fmt.Printf("✓ Batch submitted: %d photos\n", len(job.Items))

			if watch {
				return watchBatch(ctx, app, job, sub)
			}

			// The batch runs server-side; 'analyze watch' re-attaches to it.
			fmt.Println("Use 'lumapix analyze watch' to follow progress.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&folderID, "folder", "f", "", "Submit all eligible photos in this folder")
	cmd.Flags().StringArrayVarP(&photoIDs, "photo", "p", nil, "Photo ID to submit (repeatable)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Show live progress until the batch finishes")

	return cmd
}

// resolvePhotos makes explicitly selected photo IDs known to the registry.
// IDs no listing has seen are looked up on the backend and recorded
// identity-keyed, the same way resume handles untracked remote IDs. Lookup
// failures skip the photo; submission reports it as ineligible.
func resolvePhotos(ctx context.Context, app *App, ids []string) {
	for _, id := range ids {
		if _, ok := app.Registry.Get(id); ok {
			continue
		}
		status, err := app.Client.GetPhotoStatus(ctx, id)
		if err != nil {
			GetLogger().Warn().Err(err).Str("photo_id", id).Msg("Photo lookup failed; skipping")
			continue
		}
		app.Registry.Seed([]models.Photo{{
			LocalID:  id,
			RemoteID: id,
			Status:   status.Status,
		}})
	}
}

// newAnalyzeWatchCmd creates the 'analyze watch' command.
func newAnalyzeWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Attach to the in-flight batch and show live progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := GetContext()

			sub := app.Bus.SubscribeAll()
			job := app.Orchestrator.Resume(ctx)
			if job == nil {
				fmt.Println("No batch is in flight.")
				return nil
			}

			return watchBatch(ctx, app, job, sub)
		},
	}
}

// watchBatch renders aggregate progress until the job reaches a terminal
// state. Ctrl+C detaches without cancelling: the batch keeps running
// server-side and can be picked up again with 'analyze watch'.
func watchBatch(ctx context.Context, app *App, job *batch.Job, sub <-chan events.Event) error {
	bar := progress.NewCLIProgress()
	bar.Start(int64(len(job.Items)), fmt.Sprintf("Analyzing %d photos", len(job.Items)))

	for {
		select {
		case <-ctx.Done():
			bar.Finish()
			fmt.Println("\nDetached. The batch keeps running; use 'lumapix analyze watch' to re-attach.")
			return nil

		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			be, isBatch := ev.(*events.BatchEvent)
			if !isBatch || be.JobID != job.ID {
				continue
			}

			switch ev.Type() {
			case events.EventBatchProgress:
				bar.Update(int64(be.Counts.Terminal()))
				bar.SetDescription(be.Message)

			case events.EventBatchCompleted:
				bar.Update(int64(be.Counts.Terminal()))
				bar.Finish()
				fmt.Printf("✓ %s (%d done, %d failed, %d total)\n",
					be.Message, be.Counts.Completed, be.Counts.Failed, be.Counts.Total)
				return nil

			case events.EventBatchTimedOut:
				bar.Finish()
				return fmt.Errorf("%s", be.Message)

			case events.EventBatchCancelled:
				bar.Finish()
				fmt.Printf("✗ %s\n", be.Message)
				return nil
			}
		}
	}
}

// newAnalyzeStatusCmd creates the 'analyze status' command.
func newAnalyzeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the backend's batch status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			status, err := app.Client.GetBatchStatus(GetContext())
			if err != nil {
				return err
			}

			if !status.InFlight {
				fmt.Println("No batch is in flight.")
				return nil
			}

			fmt.Printf("Batch in flight: %d photos outstanding, %d processing\n",
				len(status.Outstanding), len(status.Processing))
			return nil
		},
	}
}

// newAnalyzeCancelCmd creates the 'analyze cancel' command.
func newAnalyzeCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the in-flight batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := GetContext()

			job := app.Orchestrator.Resume(ctx)
			if job == nil {
				fmt.Println("No batch is in flight.")
				return nil
			}

			if err := app.Orchestrator.Cancel(ctx); err != nil {
				return err
			}

			// The poller observes the cancel at its next cycle boundary and
			// publishes the cancelled event before exiting.
			app.Orchestrator.Wait()
			fmt.Println("✓ Batch cancelled")
			return nil
		},
	}
}

// newAnalyzeClearQueueCmd creates the 'analyze clear-queue' command.
func newAnalyzeClearQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-queue",
		Short: "Clear queued, not-yet-started analysis work",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := GetContext()

			app.Orchestrator.Resume(ctx)
			if err := app.Orchestrator.ClearQueue(ctx); err != nil {
				return err
			}

			fmt.Println("✓ Queue cleared")
			return nil
		},
	}
}
