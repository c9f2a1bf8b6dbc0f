package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/olcbioinformatics/sippr-launcher/internal/config"
	"github.com/olcbioinformatics/sippr-launcher/internal/core"
	"github.com/olcbioinformatics/sippr-launcher/internal/pipeline"
	"github.com/olcbioinformatics/sippr-launcher/internal/progress"
	"github.com/olcbioinformatics/sippr-launcher/internal/workflow"
)

type stubLauncher struct {
	mu      sync.Mutex
	procs   []*pipeline.Process
	started chan struct{}
}

func newStubLauncher() *stubLauncher {
	return &stubLauncher{started: make(chan struct{}, 1)}
}

func (l *stubLauncher) Start(ctx context.Context, inv pipeline.Invocation) (*pipeline.Process, error) {
	l.mu.Lock()
	p := pipeline.NewProcess(inv.RunID, inv.RunName)
	l.procs = append(l.procs, p)
	l.mu.Unlock()
	l.started <- struct{}{}
	return p, nil
}

func (l *stubLauncher) last() *pipeline.Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[len(l.procs)-1]
}

// recorder is a progress.Reporter that keeps the final outcome.
type recorder struct {
	progress.NoOp
	mu       sync.Mutex
	finished string
	err      error
}

func (r *recorder) Finish(summary string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = summary
}

func (r *recorder) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func newRunEngine(t *testing.T, cfg *config.Config, l *stubLauncher) *core.Engine {
	t.Helper()
	engine, err := core.NewEngine(context.Background(), cfg, nil,
		core.WithLauncher(l),
		core.WithManualPolling(),
		core.WithoutHistory(),
		core.WithoutDelivery(),
	)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(engine.Stop)
	return engine
}

// finishRun waits for the launch, writes the pipeline log, ends the fake
// process with exitCode and polls once.
func finishRun(t *testing.T, engine *core.Engine, l *stubLauncher, log string, exitCode int) {
	select {
	case <-l.started:
	case <-time.After(3 * time.Second):
		t.Error("pipeline was never started")
		return
	}
	if err := os.WriteFile(engine.Config().LogPath(), []byte(log), 0644); err != nil {
		t.Error(err)
		return
	}
	l.last().Finish(pipeline.Result{ExitCode: exitCode})
	_ = engine.Controller().Poll(context.Background())
}

func TestRunPipelineReport(t *testing.T) {
	cfg, _, root := testConfig(t)
	run := makeRunFolder(t, root, 167)
	reports := filepath.Join(cfg.Paths.OutputDir, runName, "reports")
	writeFile(t, filepath.Join(reports, "genesippr.csv"), "Strain,Genus,eae\n2016-SEQ-0001,Escherichia,100%\n")
	writeFile(t, filepath.Join(reports, "sixteens_full.csv"), "Strain,Genus\n2016-SEQ-0001,Escherichia\n")
	writeFile(t, filepath.Join(reports, "GDCS.csv"), "Strain,Pass/Fail\n2016-SEQ-0001,+\n")

	l := newStubLauncher()
	engine := newRunEngine(t, cfg, l)
	rec := &recorder{}

	go finishRun(t, engine, l, "SampleSheet: /data/miseq/"+runName+"/SampleSheet.csv\nAnalyses complete\n", 0)

	if err := runPipeline(context.Background(), engine, run, rec); err != nil {
		t.Fatalf("runPipeline() error = %v", err)
	}
	if rec.finished == "" || rec.err != nil {
		t.Errorf("reporter finished=%q err=%v, want a summary", rec.finished, rec.err)
	}
	matches, _ := filepath.Glob(filepath.Join(cfg.Paths.OutputDir, runName+"_gar_*.pdf"))
	if len(matches) != 1 {
		t.Errorf("expected one report PDF, found %v", matches)
	}
	if got := engine.Controller().State(); got != workflow.StateIdle {
		t.Errorf("state after report = %v, want Idle", got)
	}
}

func TestRunPipelineFailure(t *testing.T) {
	cfg, _, root := testConfig(t)
	run := makeRunFolder(t, root, 167)

	l := newStubLauncher()
	engine := newRunEngine(t, cfg, l)
	rec := &recorder{}

	go finishRun(t, engine, l, "Traceback (most recent call last):\n", 1)

	err := runPipeline(context.Background(), engine, run, rec)
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("runPipeline() error = %v, want ErrRunFailed", err)
	}
	if rec.err == nil {
		t.Error("reporter should have been told about the failure")
	}
	if got := engine.Controller().State(); got != workflow.StateFailed {
		t.Errorf("state = %v, want Failed", got)
	}
}

func TestRunPipelineRejectsUnreadyFolder(t *testing.T) {
	cfg, _, root := testConfig(t)
	run := makeRunFolder(t, root, 20)

	engine := newRunEngine(t, cfg, newStubLauncher())
	if err := runPipeline(context.Background(), engine, run, progress.NoOp{}); err == nil {
		t.Fatal("runPipeline() should refuse a folder that is not ready")
	}
	if got := engine.Controller().State(); got != workflow.StateInvalid {
		t.Errorf("state = %v, want Invalid", got)
	}
}
