package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

const genesipprCSV = `Strain,Genus,eae,O26,VT1,VT2,hlyA,IGS,inlJ,invA,stn
2016-SEQ-0001,Escherichia,100%,,95.5%,-,100%,,,,
2016-SEQ-0002,Listeria,,,,,,100%,100%,,
2016-SEQ-0003,Salmonella,,,,,,,,99.1%,100%
`

const sixteensCSV = `Strain,Gene,PercentIdentity,Genus,FoldCoverage
2016-SEQ-0001,16S,99.8%,Escherichia,42.1
2016-SEQ-0004,16S,100%,Bacillus,38.0
`

const gdcsCSV = `Strain,Genus,Matches,MeanCoverage,Pass/Fail
2016-SEQ-0002,Listeria,98,61.3,+
2016-SEQ-0003,Salmonella,NaN,55,-
2016-SEQ-0004,Bacillus,12,2.1,-
`

const sampleSheet = `[Header]
IEMFileVersion,4
Investigator Name,Lab

[Reads]
151
151

[Data]
Sample_ID,Sample_Name,Sample_Plate,Sample_Well,I7_Index_ID,index
2016-SEQ-0001,2016-SEQ-0001,,,N701,TAAGGCGA
2016-SEQ-0002,2016-SEQ-0002,,,N702,CGTACTAG

2016-SEQ-0003,2016-SEQ-0003,,,N703,AGGCAGAA
2016-SEQ-0004,2016-SEQ-0004,,,N704,TCCTGAGC
`

func writeFixtures(t *testing.T) (reportDir, sheet string) {
	t.Helper()
	dir := t.TempDir()
	reportDir = filepath.Join(dir, "run", "reports")
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(reportDir, "genesippr.csv"):     genesipprCSV,
		filepath.Join(reportDir, "sixteens_full.csv"): sixteensCSV,
		filepath.Join(reportDir, "GDCS.csv"):          gdcsCSV,
		filepath.Join(dir, "SampleSheet.csv"):         sampleSheet,
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return reportDir, filepath.Join(dir, "SampleSheet.csv")
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "-"},
		{"nan", "-"},
		{"NaN", "-"},
		{"  ", "-"},
		{"42.1", "-"},
		{"0", "-"},
		{"-3.5e2", "-"},
		{"Inf", "-"},
		{"-inf", "-"},
		{"+Infinity", "-"},
		{"0x1p4", "0x1p4"},
		{"-0X1.8p1", "-0X1.8p1"},
		{"1_000", "1_000"},
		{"100%", "+"},
		{"95.5%", "+"},
		{"Escherichia", "Escherichia"},
		{"ND", "ND"},
		{"-", "-"},
		{"+", "+"},
		{"O157:H7", "O157:H7"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Normalize(tt.in)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := Normalize(got); again != got {
				t.Errorf("Normalize not idempotent for %q: %q then %q", tt.in, got, again)
			}
			if got != "-" && got != "+" && got != tt.in {
				t.Errorf("Normalize(%q) = %q is neither a marker nor the input", tt.in, got)
			}
		})
	}
}

func TestReadSampleSheet(t *testing.T) {
	_, sheet := writeFixtures(t)

	samples, err := ReadSampleSheet(sheet)
	if err != nil {
		t.Fatalf("ReadSampleSheet() error = %v", err)
	}
	want := []string{"2016-SEQ-0001", "2016-SEQ-0002", "2016-SEQ-0003", "2016-SEQ-0004"}
	if strings.Join(samples, ",") != strings.Join(want, ",") {
		t.Errorf("samples = %v, want %v", samples, want)
	}

	if _, err := ReadSampleSheet(filepath.Join(t.TempDir(), "none.csv")); err == nil {
		t.Error("expected error for missing sample sheet")
	}
}

func TestLoadMissingReport(t *testing.T) {
	reportDir, _ := writeFixtures(t)
	if err := os.Remove(filepath.Join(reportDir, "GDCS.csv")); err != nil {
		t.Fatal(err)
	}

	_, err := NewAggregator(nil).Load(context.Background(), ReportPaths(reportDir))
	if !errors.Is(err, ErrMissingReport) {
		t.Fatalf("expected ErrMissingReport, got %v", err)
	}
	var missing *MissingReportError
	if !errors.As(err, &missing) || missing.Name != "GDCS" {
		t.Errorf("expected missing GDCS report, got %v", err)
	}
}

func TestLoadMissingStrainColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("Sample,Genus\nx,y\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := NewAggregator(nil).Load(context.Background(), map[string]string{"bad": path})
	if !errors.Is(err, ErrMissingKeyColumn) {
		t.Errorf("expected ErrMissingKeyColumn, got %v", err)
	}
}

func TestLoadTransposesAndNormalizes(t *testing.T) {
	reportDir, _ := writeFixtures(t)

	data, err := NewAggregator(nil).Load(context.Background(), ReportPaths(reportDir))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		report, sample, header string
		want                   string
		ok                     bool
	}{
		{"genesippr", "2016-SEQ-0001", "Genus", "Escherichia", true},
		{"genesippr", "2016-SEQ-0001", "eae", "+", true},
		{"genesippr", "2016-SEQ-0001", "O26", "-", true},
		{"genesippr", "2016-SEQ-0001", "VT2", "-", true},
		{"genesippr", "2016-SEQ-0004", "Genus", "", false},
		{"sixteens_full", "2016-SEQ-0001", "FoldCoverage", "-", true},
		{"sixteens_full", "2016-SEQ-0004", "PercentIdentity", "+", true},
		{"GDCS", "2016-SEQ-0003", "Matches", "-", true},
		{"GDCS", "2016-SEQ-0002", "Pass/Fail", "+", true},
		{"GDCS", "2016-SEQ-0001", "Genus", "", false},
	}
	for _, tt := range tests {
		got, ok := data.Value(tt.report, tt.sample, tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Value(%s, %s, %s) = %q, %v; want %q, %v",
				tt.report, tt.sample, tt.header, got, ok, tt.want, tt.ok)
		}
	}

	if h := data.Reports["GDCS"].Headers; strings.Join(h, ",") != "Genus,Matches,MeanCoverage,Pass/Fail" {
		t.Errorf("GDCS headers = %v", h)
	}
}

func TestTableFixedWidth(t *testing.T) {
	reportDir, sheet := writeFixtures(t)

	data, err := NewAggregator(nil).Load(context.Background(), ReportPaths(reportDir))
	if err != nil {
		t.Fatal(err)
	}
	samples, err := ReadSampleSheet(sheet)
	if err != nil {
		t.Fatal(err)
	}

	headers := []string{"Genus", "eae", "O157", "invA"}
	table, err := data.Table("genesippr", samples, headers)
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}

	if len(table.Rows) != len(samples) {
		t.Fatalf("expected one row per sample, got %d", len(table.Rows))
	}
	for _, row := range table.Rows {
		if len(row.Cells) != len(headers) {
			t.Errorf("row %s has %d cells, want %d", row.Sample, len(row.Cells), len(headers))
		}
	}

	// 0001 is in the report but has no O157 column
	r1 := table.Rows[0]
	if !r1.Cells[0].Present || r1.Cells[0].Value != "Escherichia" {
		t.Errorf("0001 Genus = %+v", r1.Cells[0])
	}
	if r1.Cells[2].Present {
		t.Errorf("0001 O157 should be absent, got %+v", r1.Cells[2])
	}
	if !r1.Cells[3].Present || r1.Cells[3].Value != "-" {
		t.Errorf("0001 invA = %+v", r1.Cells[3])
	}

	// 0004 is not in the genesippr report at all
	r4 := table.Rows[3]
	for i, c := range r4.Cells {
		if c.Present {
			t.Errorf("0004 cell %s should be absent", headers[i])
		}
	}

	records := table.Records("")
	if got := strings.Join(records[2], "|"); got != "2016-SEQ-0003|Salmonella|-||+" {
		t.Errorf("record for 0003 = %q", got)
	}
	if cols := table.Columns("Strain"); len(cols) != len(headers)+1 || cols[0] != "Strain" {
		t.Errorf("Columns() = %v", cols)
	}

	if _, err := data.Table("plasmids", samples, nil); !errors.Is(err, ErrUnknownReport) {
		t.Errorf("expected ErrUnknownReport, got %v", err)
	}
}

func TestBuildDocument(t *testing.T) {
	reportDir, sheet := writeFixtures(t)
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	doc, err := NewAggregator(nil).Build(context.Background(), Request{
		RunName:     "161104_M02466_0002_000000000-AV4G5",
		ReportDir:   reportDir,
		SampleSheet: sheet,
		Now:         func() time.Time { return issued },
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(doc.Tables) != 3 {
		t.Fatalf("expected 3 tables, got %d", len(doc.Tables))
	}
	if doc.Tables[0].Title != "GeneSeekr Analysis" || len(doc.Tables[0].Headers) != 18 {
		t.Errorf("genesippr table = %s with %d headers", doc.Tables[0].Title, len(doc.Tables[0].Headers))
	}
	if doc.Tables[1].Report != "sixteens_full" || len(doc.Tables[1].Headers) != 4 {
		t.Errorf("sixteens table = %+v", doc.Tables[1].Headers)
	}
	if len(doc.Footer) != 2 || !strings.Contains(doc.Footer[0], "RDIMS") {
		t.Errorf("footer = %v", doc.Footer)
	}
	if !doc.Issued.Equal(issued) {
		t.Errorf("Issued = %v", doc.Issued)
	}
}

func TestOutputPath(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	got := OutputPath("/out", "RUN1", "", "pdf", date)
	if got != filepath.Join("/out", "RUN1_gar_2024-03-01.pdf") {
		t.Errorf("OutputPath() = %s", got)
	}
}

func TestWriteYAML(t *testing.T) {
	doc := &Document{
		RunName: "RUN1",
		Issued:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Samples: []string{"S1"},
		Tables: []Table{{
			Report:  "genesippr",
			Headers: []string{"Genus", "eae"},
			Rows: []Row{{
				Sample: "S1",
				Cells:  []Cell{{Value: "Listeria", Present: true}, {}},
			}},
		}},
	}

	var buf bytes.Buffer
	if err := WriteYAML(&buf, doc); err != nil {
		t.Fatalf("WriteYAML() error = %v", err)
	}

	var decoded yamlDocument
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if decoded.Run != "RUN1" || decoded.Issued != "2024-03-01" {
		t.Errorf("decoded header = %+v", decoded)
	}
	row := decoded.Tables[0].Rows[0]
	if row.Values["Genus"] != "Listeria" {
		t.Errorf("Genus = %q", row.Values["Genus"])
	}
	if len(row.Absent) != 1 || row.Absent[0] != "eae" {
		t.Errorf("Absent = %v", row.Absent)
	}
}

func TestYAMLRendererCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "RUN1_gar.yaml")
	if err := (YAMLRenderer{}).Render(&Document{RunName: "RUN1"}, path); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected report file: %v", err)
	}
}
