package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/olcbioinformatics/sippr-launcher/internal/history"
)

type historyOptions struct {
	Limit int
	JSON  bool
}

func newHistoryCmd() *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previously launched runs",
		Long:  `List launched runs, newest first, with their outcome and report path.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path, err := cfg.HistoryPath()
			if err != nil {
				return err
			}
			store, err := history.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), opts.Limit)
			if err != nil {
				return err
			}
			if opts.JSON {
				return outputHistoryJSON(cmd.OutOrStdout(), records)
			}
			return outputHistoryTable(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output as JSON")
	return cmd
}

func outputHistoryJSON(w io.Writer, records []history.Record) error {
	type recordOutput struct {
		ID         string `json:"id"`
		RunName    string `json:"run_name"`
		Folder     string `json:"folder"`
		State      string `json:"state"`
		ReportPath string `json:"report_path,omitempty"`
		Error      string `json:"error,omitempty"`
		Started    string `json:"started"`
		Finished   string `json:"finished,omitempty"`
	}

	items := make([]recordOutput, len(records))
	for i, r := range records {
		items[i] = recordOutput{
			ID:         r.ID,
			RunName:    r.RunName,
			Folder:     r.Folder,
			State:      r.State,
			ReportPath: r.ReportPath,
			Error:      r.Error,
			Started:    r.Started.Format(time.RFC3339),
		}
		if !r.Finished.IsZero() {
			items[i].Finished = r.Finished.Format(time.RFC3339)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func outputHistoryTable(w io.Writer, records []history.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRUN\tSTATE\tDURATION\tREPORT")
	for _, r := range records {
		duration := "-"
		if d := r.Duration(); d > 0 {
			duration = d.Round(time.Second).String()
		}
		detail := r.ReportPath
		if r.State == history.StateFailed && r.Error != "" {
			detail = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Started.Local().Format("2006-01-02 15:04"),
			r.RunName,
			r.State,
			duration,
			valueOr(detail, "-"),
		)
	}
	return tw.Flush()
}
