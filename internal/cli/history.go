package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/anime-shed/image-editor-go/internal/repository"
	"github.com/anime-shed/image-editor-go/pkg/models"
)

// defaultDatabasePath matches the DATABASE_PATH default of the API server
const defaultDatabasePath = "./data/history.db"

func newHistoryCmd() *cobra.Command {
	var dbPath string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history [job-id]",
		Short: "List finished batch jobs, or show one job in detail",
		Example: `  imgctl history
  imgctl history --limit 5
  imgctl history 0b7c2c8e-6f55-4a5a-9d7c-3c1b7a0f2e11`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = os.Getenv("DATABASE_PATH")
			}
			if dbPath == "" {
				dbPath = defaultDatabasePath
			}
			repo, err := repository.OpenSQLite(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open job history: %w", err)
			}
			defer repo.Close()

			if len(args) == 1 {
				return runShowJob(cmd.Context(), cmd.OutOrStdout(), repo, args[0], asJSON)
			}
			return runListJobs(cmd.Context(), cmd.OutOrStdout(), repo, limit, asJSON)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the job history database (defaults to DATABASE_PATH)")
	cmd.Flags().IntVar(&limit, "limit", repository.DefaultListLimit, "Maximum number of jobs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

func runListJobs(ctx context.Context, w io.Writer, repo repository.JobRepository, limit int, asJSON bool) error {
	records, err := repo.ListJobs(ctx, limit)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(w, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No finished jobs yet.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tOPERATION\tTOTAL\tCOMPLETED\tFAILED\tFINISHED")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			rec.ID, operationLabel(rec), rec.Total, rec.Completed, rec.Failed,
			rec.FinishedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runShowJob(ctx context.Context, w io.Writer, repo repository.JobRepository, id string, asJSON bool) error {
	rec, err := repo.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(w, rec)
	}

	fmt.Fprintf(w, "Job:       %s\n", rec.ID)
	fmt.Fprintf(w, "Operation: %s %s\n", operationLabel(*rec), formatParams(rec.Operation.Params))
	fmt.Fprintf(w, "Started:   %s\n", rec.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Duration:  %s\n", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "Result:    %d of %d completed, %d failed\n\n", rec.Completed, rec.Total, rec.Failed)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tSTATUS\tDETAIL")
	for _, o := range rec.Outcomes {
		detail := o.ResultRef
		if o.Status == models.StatusError {
			detail = o.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", o.ItemID, o.Status, detail)
	}
	return tw.Flush()
}

func operationLabel(rec models.JobRecord) string {
	if rec.Canceled {
		return string(rec.Operation.Kind) + " (canceled)"
	}
	return string(rec.Operation.Kind)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
