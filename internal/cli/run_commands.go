package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/olcbioinformatics/sippr-launcher/internal/core"
	"github.com/olcbioinformatics/sippr-launcher/internal/events"
	"github.com/olcbioinformatics/sippr-launcher/internal/gui"
	"github.com/olcbioinformatics/sippr-launcher/internal/pathutil"
	"github.com/olcbioinformatics/sippr-launcher/internal/progress"
	"github.com/olcbioinformatics/sippr-launcher/internal/runfolder"
	"github.com/olcbioinformatics/sippr-launcher/internal/workflow"
)

// ErrRunFailed is returned by the run command when no report was produced.
var ErrRunFailed = errors.New("run finished without a report")

func newCheckCmd() *cobra.Command {
	var showCommand bool

	cmd := &cobra.Command{
		Use:   "check <run-folder>",
		Short: "Check whether a run folder is ready for analysis",
		Long: `Count the completed cycles of a MiSeq run folder and compare them with
the forward read length from RunInfo.xml. Analysis may start once
cycles >= forward + 16.

Exits non-zero when the folder is not a run folder or not ready yet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			folder, err := pathutil.ResolveAbsolutePath(args[0])
			if err != nil {
				return err
			}
			rf, err := runfolder.Evaluate(folder)
			printFolder(out, rf)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Status:   ready")

			if showCommand {
				engine, err := newEngine(cmd.Context(), core.WithoutHistory(), core.WithoutDelivery())
				if err != nil {
					return err
				}
				defer engine.Stop()
				inv, err := engine.Builder().Build(rf)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Command:  %s\n", inv.String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showCommand, "show-command", false, "Print the docker command that would be run")
	return cmd
}

func printFolder(w io.Writer, rf *runfolder.RunFolder) {
	if rf == nil {
		return
	}
	fmt.Fprintf(w, "Run:      %s\n", rf.Name)
	fmt.Fprintf(w, "Cycles:   %d\n", rf.Cycles)
	fmt.Fprintf(w, "Forward:  %s\n", rf.Forward)
	fmt.Fprintf(w, "Reverse:  %s\n", rf.Reverse)
	if req := rf.RequiredCycles(); req > 0 {
		fmt.Fprintf(w, "Required: %d\n", req)
	}
}

func newRunCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run <run-folder>",
		Short: "Run GeneSippr on a run folder and build the report",
		Long: `Validate the run folder, start the GeneSippr container, follow its log and
write the GeneSippr Analysis Report once the pipeline finishes.

Ctrl+C stops the container; the run is then recorded as failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			folder, err := pathutil.ResolveAbsolutePath(args[0])
			if err != nil {
				return err
			}
			engine, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Stop()

			if dryRun {
				rf, err := engine.Controller().SelectFolder(folder)
				printFolder(cmd.OutOrStdout(), rf)
				if err != nil {
					return err
				}
				inv, err := engine.Builder().Build(rf)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), inv.String())
				return nil
			}
			return runPipeline(ctx, engine, folder, progress.New(os.Stderr))
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the folder and print the docker command without running it")
	return cmd
}

// runPipeline drives one run through the controller and reports progress
// until the run completes or fails.
func runPipeline(ctx context.Context, engine *core.Engine, folder string, rep progress.Reporter) error {
	bus := engine.Events()
	stateCh := bus.Subscribe(events.EventStateChange)
	logCh := bus.Subscribe(events.EventLog)
	completeCh := bus.Subscribe(events.EventComplete)
	errorCh := bus.Subscribe(events.EventError)
	defer func() {
		for _, ch := range []<-chan events.Event{stateCh, logCh, completeCh, errorCh} {
			bus.UnsubscribeAll(ch)
		}
	}()

	ctrl := engine.Controller()
	if _, err := ctrl.SelectFolder(folder); err != nil {
		return err
	}
	if err := ctrl.Launch(ctx); err != nil {
		return err
	}

	log := GetLogger()
	rep.Start("Starting GeneSippr")
	for {
		select {
		case e, ok := <-stateCh:
			if !ok {
				return ErrRunFailed
			}
			if sc, ok := e.(*events.StateChangeEvent); ok {
				switch sc.NewState {
				case workflow.StateRunning.String():
					rep.Describe("Running GeneSippr on " + sc.RunName)
				case workflow.StateReporting.String():
					rep.Describe("Building report")
				}
			}

		case e, ok := <-logCh:
			if !ok {
				continue
			}
			if le, ok := e.(*events.LogEvent); ok {
				rep.Advance(le.Lines)
				if last := lastLine(le.Text); last != "" {
					rep.Describe(last)
				}
			}

		case e, ok := <-errorCh:
			if !ok {
				continue
			}
			if ee, ok := e.(*events.ErrorEvent); ok && ee.Error != nil {
				log.Debug().Err(ee.Error).Str("stage", ee.Stage).Msg("Run error")
			}

		case e, ok := <-completeCh:
			if !ok {
				return ErrRunFailed
			}
			c, ok := e.(*events.CompleteEvent)
			if !ok {
				continue
			}
			if !c.Success {
				err := fmt.Errorf("%w: %s", ErrRunFailed, c.RunName)
				rep.Error(err)
				return err
			}
			rep.Finish(fmt.Sprintf("Report ready: %s (%s)", c.ReportPath, c.Duration.Round(time.Second)))
			return nil
		}
	}
}

func lastLine(text string) string {
	text = strings.TrimRight(text, "\n")
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	return strings.TrimSpace(text)
}

func newReportCmd() *cobra.Command {
	var opts core.ReportOptions

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build the report for a run whose pipeline outputs exist",
		Long: `Build the GeneSippr Analysis Report from <output_dir>/<run>/reports without
running the pipeline. The sample sheet defaults to
<miseq_root>/<run>/SampleSheet.csv.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(cmd.Context(), core.WithoutHistory(), core.WithoutDelivery())
			if err != nil {
				return err
			}
			defer engine.Stop()

			if opts.SampleSheet != "" {
				abs, err := pathutil.ResolveAbsolutePath(opts.SampleSheet)
				if err != nil {
					return err
				}
				opts.SampleSheet = abs
			}
			path, err := engine.Report(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.RunName, "run", "", "Run name (folder name under the output directory)")
	cmd.Flags().StringVar(&opts.SampleSheet, "sample-sheet", "", "Sample sheet path")
	cmd.Flags().StringVar(&opts.Format, "format", "pdf", "Output format (pdf|yaml)")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newGUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gui",
		Short: "Open the graphical launcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return gui.Run(cfgFile)
		},
	}
}
