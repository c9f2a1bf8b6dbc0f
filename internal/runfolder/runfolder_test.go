package runfolder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const miseqRunInfo = `<?xml version="1.0"?>
<RunInfo xmlns:xsd="http://www.w3.org/2001/XMLSchema" Version="2">
  <Run Id="161104_M02466_0002_000000000-AV4G5" Number="2">
    <Flowcell>000000000-AV4G5</Flowcell>
    <Instrument>M02466</Instrument>
    <Date>161104</Date>
    <Reads>
      <Read NumCycles="%d" Number="1" IsIndexedRead="N" />
      <Read NumCycles="8" Number="2" IsIndexedRead="Y" />
      <Read NumCycles="8" Number="3" IsIndexedRead="Y" />
      <Read NumCycles="%d" Number="4" IsIndexedRead="N" />
    </Reads>
  </Run>
</RunInfo>
`

// makeRun creates a run folder with the given number of completed cycles.
// forward < 0 skips RunInfo.xml.
func makeRun(t *testing.T, cycles, forward, reverse int) string {
	t.Helper()

	run := filepath.Join(t.TempDir(), "161104_M02466_0002_000000000-AV4G5")
	lane := filepath.Join(run, "Data", "Intensities", "BaseCalls", "L001")
	if err := os.MkdirAll(lane, 0755); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= cycles; i++ {
		if err := os.Mkdir(filepath.Join(lane, fmt.Sprintf("C%d.1", i)), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if forward >= 0 {
		info := fmt.Sprintf(miseqRunInfo, forward, reverse)
		if err := os.WriteFile(filepath.Join(run, "RunInfo.xml"), []byte(info), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return run
}

func TestParseRunInfo(t *testing.T) {
	run := makeRun(t, 1, 151, 151)

	forward, reverse := ParseRunInfo(run)
	if forward != 151 || reverse != 151 {
		t.Errorf("ParseRunInfo() = %v, %v; want 151, 151", forward, reverse)
	}
}

func TestParseRunInfoMissingOrMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed xml", "<RunInfo><Run><Reads>"},
		{"no reads", "<RunInfo><Run/></RunInfo>"},
		{"non numeric cycles", `<RunInfo><Run><Reads><Read Number="1" NumCycles="many"/></Reads></Run></RunInfo>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forward, reverse := parseRunInfo([]byte(tt.data))
			if forward != FullLength || reverse != FullLength {
				t.Errorf("expected full lengths, got %v, %v", forward, reverse)
			}
		})
	}

	forward, reverse := ParseRunInfo(t.TempDir())
	if forward != FullLength || reverse != FullLength {
		t.Errorf("missing file: expected full lengths, got %v, %v", forward, reverse)
	}
}

func TestReadLengthString(t *testing.T) {
	if got := FullLength.String(); got != "full" {
		t.Errorf("FullLength.String() = %q", got)
	}
	if got := ReadLength(70).String(); got != "70" {
		t.Errorf("ReadLength(70).String() = %q", got)
	}
}

func TestReadyGate(t *testing.T) {
	tests := []struct {
		cycles  int
		forward int
		want    bool
	}{
		{cycles: 0, forward: 0, want: false},
		{cycles: 16, forward: 0, want: true},
		{cycles: 85, forward: 70, want: false}, // F+15
		{cycles: 86, forward: 70, want: true},  // F+16
		{cycles: 166, forward: 151, want: false},
		{cycles: 167, forward: 151, want: true},
		{cycles: 318, forward: 151, want: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("C%d_F%d", tt.cycles, tt.forward), func(t *testing.T) {
			if got := Ready(tt.cycles, tt.forward); got != tt.want {
				t.Errorf("Ready(%d, %d) = %v, want %v", tt.cycles, tt.forward, got, tt.want)
			}
		})
	}
}

func TestEvaluateNoCycles(t *testing.T) {
	run := makeRun(t, 0, 70, 70)

	rf, err := Evaluate(run)
	if !errors.Is(err, ErrInvalidRunFolder) {
		t.Fatalf("Expected ErrInvalidRunFolder, got %v", err)
	}
	var invalid *InvalidRunFolderError
	if !errors.As(err, &invalid) || invalid.Path != rf.Path {
		t.Errorf("Expected InvalidRunFolderError for %s, got %v", rf.Path, err)
	}
	if rf.Valid || rf.Ready() {
		t.Error("Folder without cycles must be invalid and not ready")
	}
}

func TestEvaluateBoundaries(t *testing.T) {
	t.Run("F+15 not ready", func(t *testing.T) {
		run := makeRun(t, 85, 70, 70)
		rf, err := Evaluate(run)
		if !errors.Is(err, ErrNotReady) {
			t.Fatalf("Expected ErrNotReady, got %v", err)
		}
		var notReady *NotReadyError
		if !errors.As(err, &notReady) {
			t.Fatalf("Expected *NotReadyError, got %T", err)
		}
		if notReady.Cycles != 85 || notReady.Required != 86 {
			t.Errorf("Unexpected NotReadyError: %+v", notReady)
		}
		if !rf.Valid {
			t.Error("Folder with cycles should be valid")
		}
	})

	t.Run("F+16 ready", func(t *testing.T) {
		run := makeRun(t, 86, 70, 70)
		rf, err := Evaluate(run)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if rf.Name != "161104_M02466_0002_000000000-AV4G5" {
			t.Errorf("Name = %s", rf.Name)
		}
		if rf.BasePath != filepath.Dir(rf.Path) {
			t.Errorf("BasePath = %s, Path = %s", rf.BasePath, rf.Path)
		}
		if rf.Cycles != 86 || rf.Forward != 70 || rf.Reverse != 70 {
			t.Errorf("Unexpected folder: %+v", rf)
		}
		if rf.ReverseAvailable() {
			t.Error("Reverse read should not be available at F+16")
		}
	})
}

func TestEvaluateUnknownForwardIsReady(t *testing.T) {
	run := makeRun(t, 3, -1, 0)

	rf, err := Evaluate(run)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if rf.Forward != FullLength || rf.RequiredCycles() != 0 {
		t.Errorf("Expected unknown forward length, got %+v", rf)
	}
}

func TestReverseAvailable(t *testing.T) {
	run := makeRun(t, 156, 70, 70)
	rf, err := Evaluate(run)
	if err != nil {
		t.Fatal(err)
	}
	if !rf.ReverseAvailable() {
		t.Error("Expected reverse read available at F+16+R cycles")
	}
}

func TestCountCyclesIgnoresFiles(t *testing.T) {
	run := makeRun(t, 2, 70, 70)
	stray := filepath.Join(run, "Data", "Intensities", "BaseCalls", "L001", "C3.1.tmp")
	if err := os.WriteFile(stray, nil, 0644); err != nil {
		t.Fatal(err)
	}

	n, err := CountCycles(run)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountCycles() = %d, want 2", n)
	}
}
