// Package report turns the pipeline's CSV reports into the tables of the
// GeneSippr Analysis Report.
package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
	"github.com/olcbioinformatics/sippr-launcher/internal/logging"
)

// Report errors
var (
	ErrMissingReport    = errors.New("report file missing")
	ErrMissingKeyColumn = errors.New("report has no Strain column")
	ErrUnknownReport    = errors.New("unknown report")
)

// MissingReportError names a report whose CSV does not exist.
type MissingReportError struct {
	Name string
	Path string
}

func (e *MissingReportError) Error() string {
	return fmt.Sprintf("no %s report at %s", e.Name, e.Path)
}

func (e *MissingReportError) Unwrap() error {
	return ErrMissingReport
}

// Report is one loaded CSV, normalised.
type Report struct {
	Name string

	// Headers are the non-key columns in file order.
	Headers []string

	// Samples maps sample → header → normalised value.
	Samples map[string]map[string]string
}

// Data holds every loaded report keyed by name.
type Data struct {
	Reports map[string]*Report
}

// Value returns the normalised cell for report/sample/header.
func (d *Data) Value(report, sample, header string) (string, bool) {
	r, ok := d.Reports[report]
	if !ok {
		return "", false
	}
	row, ok := r.Samples[sample]
	if !ok {
		return "", false
	}
	v, ok := row[header]
	return v, ok
}

// ReportPaths returns the standard report files in reportDir.
func ReportPaths(reportDir string) map[string]string {
	paths := make(map[string]string, len(constants.ReportNames))
	for _, name := range constants.ReportNames {
		paths[name] = filepath.Join(reportDir, name+".csv")
	}
	return paths
}

// Aggregator loads report CSVs.
type Aggregator struct {
	logger *logging.Logger
}

// NewAggregator creates an aggregator. logger may be nil.
func NewAggregator(logger *logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Aggregator{logger: logger}
}

// Load reads every report in reports (name → path). All files must exist;
// the first missing one, in name order, aborts loading with a
// *MissingReportError.
func (a *Aggregator) Load(ctx context.Context, reports map[string]string) (*Data, error) {
	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		info, err := os.Stat(reports[name])
		if err != nil || info.IsDir() {
			return nil, &MissingReportError{Name: name, Path: reports[name]}
		}
	}

	data := &Data{Reports: make(map[string]*Report, len(reports))}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name, path := name, reports[name]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := readReport(name, path)
			if err != nil {
				return err
			}
			mu.Lock()
			data.Reports[name] = r
			mu.Unlock()
			a.logger.Debug().
				Str("report", name).
				Int("samples", len(r.Samples)).
				Int("headers", len(r.Headers)).
				Msg("Loaded report")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

func readReport(name, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s report: %w", name, err)
	}
	defer f.Close()

	return parseReport(name, f)
}

func parseReport(name string, r io.Reader) (*Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s report: %w", name, ErrMissingKeyColumn)
		}
		return nil, fmt.Errorf("failed to parse %s report header: %w", name, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	keyIdx := -1
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == constants.StrainColumn && keyIdx < 0 {
			keyIdx = i
		}
	}
	if keyIdx < 0 {
		return nil, fmt.Errorf("%s report: %w", name, ErrMissingKeyColumn)
	}

	rep := &Report{
		Name:    name,
		Samples: make(map[string]map[string]string),
	}
	for i, h := range header {
		if i != keyIdx && h != "" {
			rep.Headers = append(rep.Headers, h)
		}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s report: %w", name, err)
		}
		if keyIdx >= len(record) {
			continue
		}
		sample := strings.TrimSpace(record[keyIdx])
		if sample == "" {
			continue
		}

		row := make(map[string]string, len(rep.Headers))
		for i, h := range header {
			if i == keyIdx || h == "" {
				continue
			}
			raw := ""
			if i < len(record) {
				raw = record[i]
			}
			row[h] = Normalize(raw)
		}
		// A repeated strain replaces the earlier row.
		rep.Samples[sample] = row
	}
	return rep, nil
}
