package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/olcbioinformatics/sippr-launcher/internal/logging"
	"github.com/olcbioinformatics/sippr-launcher/internal/runfolder"
)

func testOptions() Options {
	return Options{
		Image:       "olcbioinformatics/sipprverse:latest",
		CondaEnv:    "genesippr",
		EntryScript: "method.py",
		Mounts: []Mount{
			{Host: "/home/lab/Bioinformatics", Container: "/home/ubuntu/Bioinformatics"},
			{Host: "/mnt/nas", Container: "/mnt/nas"},
		},
		ReferenceDB: "/mnt/nas/assemblydatabases/0.2.3/databases",
		SequenceDir: "/home/lab/Bioinformatics/sippr/method/sequences",
		OutputDir:   "/home/lab/Bioinformatics/sippr/method",
		LogPath:     "/home/lab/Bioinformatics/sippr/method/portal.log",
		SampleSheet: "/home/lab/Bioinformatics/sippr/method/SampleSheet.csv",
	}
}

func readyFolder(cycles int) *runfolder.RunFolder {
	return &runfolder.RunFolder{
		Name:     "161104_M02466_0002_000000000-AV4G5",
		BasePath: "/home/lab/Bioinformatics",
		Path:     "/home/lab/Bioinformatics/161104_M02466_0002_000000000-AV4G5",
		Cycles:   cycles,
		Forward:  70,
		Reverse:  70,
		Valid:    true,
	}
}

func TestBuildTemplate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("container paths are POSIX")
	}

	inv, err := NewBuilder(testOptions()).Build(readyFolder(86))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := "source activate genesippr && python method.py -m /home/ubuntu/Bioinformatics/ " +
		"-f 161104_M02466_0002_000000000-AV4G5 -r1 70 -r2 0 " +
		"-c /home/ubuntu/Bioinformatics/sippr/method/SampleSheet.csv " +
		"-r /mnt/nas/assemblydatabases/0.2.3/databases " +
		"-d /home/ubuntu/Bioinformatics/sippr/method/sequences " +
		"-o /home/ubuntu/Bioinformatics/sippr/method"
	if inv.Script != want {
		t.Errorf("Script mismatch:\n got %s\nwant %s", inv.Script, want)
	}

	argv := inv.Command()
	if argv[0] != "docker" || argv[1] != "run" {
		t.Errorf("unexpected argv prefix: %v", argv[:2])
	}
	if !strings.HasPrefix(inv.ContainerName, "sippr-") || inv.RunID == "" {
		t.Errorf("expected container name derived from run id, got %q / %q", inv.ContainerName, inv.RunID)
	}
	joined := strings.Join(argv, " ")
	for _, v := range []string{
		"-v /home/lab/Bioinformatics:/home/ubuntu/Bioinformatics",
		"-v /mnt/nas:/mnt/nas",
		"olcbioinformatics/sipprverse:latest /bin/bash -c",
	} {
		if !strings.Contains(joined, v) {
			t.Errorf("argv missing %q: %s", v, joined)
		}
	}
	if len(inv.Mounts) != 2 {
		t.Errorf("expected no extra mounts, got %v", inv.Mounts)
	}
	if inv.ReportDir != "/home/lab/Bioinformatics/sippr/method/161104_M02466_0002_000000000-AV4G5/reports" {
		t.Errorf("ReportDir = %s", inv.ReportDir)
	}
}

func TestBuildReverseRead(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("container paths are POSIX")
	}

	tests := []struct {
		cycles int
		want   string
	}{
		{cycles: 86, want: "-r2 0"},
		{cycles: 155, want: "-r2 0"},
		{cycles: 156, want: "-r2 70"},
	}

	b := NewBuilder(testOptions())
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.cycles), func(t *testing.T) {
			inv, err := b.Build(readyFolder(tt.cycles))
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(inv.Script, tt.want) {
				t.Errorf("Script %q does not contain %q", inv.Script, tt.want)
			}
		})
	}
}

func TestBuildRefusesNotReady(t *testing.T) {
	b := NewBuilder(testOptions())

	if _, err := b.Build(readyFolder(85)); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady at F+15, got %v", err)
	}

	invalid := readyFolder(100)
	invalid.Valid = false
	if _, err := b.Build(invalid); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady for invalid folder, got %v", err)
	}

	if _, err := b.Build(nil); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady for nil folder, got %v", err)
	}
}

func TestBuildMountsUnmappedPaths(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("container paths are POSIX")
	}

	rf := readyFolder(86)
	rf.BasePath = "/data/miseq"
	rf.Path = "/data/miseq/" + rf.Name

	opts := testOptions()
	opts.SampleSheet = ""
	inv, err := NewBuilder(opts).Build(rf)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(inv.Script, "-m /data/miseq/ ") {
		t.Errorf("expected identity mapped base path, got %s", inv.Script)
	}
	if !strings.Contains(inv.Script, "-c /data/miseq/"+rf.Name+"/SampleSheet.csv") {
		t.Errorf("expected default sample sheet inside run folder, got %s", inv.Script)
	}
	found := false
	for _, m := range inv.Mounts {
		if m.Host == "/data/miseq" && m.Container == "/data/miseq" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected identity mount for /data/miseq, got %v", inv.Mounts)
	}
}

func TestHostPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("container paths are POSIX")
	}

	b := NewBuilder(testOptions())
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"/home/ubuntu/Bioinformatics/sippr/method/SampleSheet.csv", "/home/lab/Bioinformatics/sippr/method/SampleSheet.csv", true},
		{"/mnt/nas/sheets/x.csv", "/mnt/nas/sheets/x.csv", true},
		{"/home/ubuntu/Bioinformatics2/x.csv", "", false},
		{"/opt/other.csv", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := b.HostPath(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("HostPath(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/plain/path", "/plain/path"},
		{"", "''"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTailWriter(t *testing.T) {
	w := newTailWriter(2)
	fmt.Fprint(w, "one\ntwo\nthr")
	fmt.Fprint(w, "ee\nfour")

	if got := w.String(); got != "three\nfour" {
		t.Errorf("String() = %q", got)
	}
}

func TestProcessFinishOnce(t *testing.T) {
	p := NewProcess("id", "run")
	p.Finish(Result{ExitCode: 2})
	p.Finish(Result{ExitCode: 0})

	r := <-p.Done()
	if r.ExitCode != 2 || r.Success() {
		t.Errorf("unexpected result %+v", r)
	}
	if _, ok := <-p.Done(); ok {
		t.Error("Done channel should be closed after the result")
	}
}

func TestDockerLauncherExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the docker binary")
	}

	fake := filepath.Join(t.TempDir(), "docker")
	script := "#!/bin/sh\necho \"pulling image\" >&2\necho \"no space left on device\" >&2\nexit 3\n"
	if err := os.WriteFile(fake, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	l := NewDockerLauncher(logging.NewNopLogger())
	l.Binary = fake

	inv, err := NewBuilder(testOptions()).Build(readyFolder(86))
	if err != nil {
		t.Fatal(err)
	}

	proc, err := l.Start(context.Background(), inv)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case r := <-proc.Done():
		if r.ExitCode != 3 {
			t.Errorf("ExitCode = %d, want 3", r.ExitCode)
		}
		if r.Err != nil {
			t.Errorf("Err = %v, want nil for a non-zero exit", r.Err)
		}
		if !strings.Contains(r.Stderr, "no space left on device") {
			t.Errorf("Stderr tail = %q", r.Stderr)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for process")
	}
}

func TestDockerLauncherMissingBinary(t *testing.T) {
	l := NewDockerLauncher(nil)
	l.Binary = filepath.Join(t.TempDir(), "does-not-exist")

	if _, err := l.Start(context.Background(), Invocation{Image: "x", Shell: "/bin/bash"}); err == nil {
		t.Error("expected error for missing docker binary")
	}
}
