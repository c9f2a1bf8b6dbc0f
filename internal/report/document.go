package report

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
	"github.com/olcbioinformatics/sippr-launcher/internal/version"
)

// Section places one report in the document.
type Section struct {
	Report string
	Title  string

	// Headers fixes the column order. nil uses the CSV order.
	Headers []string
}

// DefaultSections is the layout of the GeneSippr Analysis Report.
var DefaultSections = []Section{
	{Report: constants.ReportGeneSippr, Title: "GeneSeekr Analysis", Headers: constants.GeneSipprMarkers},
	{Report: constants.ReportSixteenSFull, Title: "16S Analysis"},
	{Report: constants.ReportGDCS, Title: "GDCS Analysis"},
}

// Document is everything a renderer needs. It is not modified after Build.
type Document struct {
	RunName string
	Issued  time.Time
	Title   string
	Caption string
	Footer  []string
	Logo    string
	Samples []string
	Tables  []Table
}

// Renderer writes a Document to path.
type Renderer interface {
	Render(doc *Document, path string) error
}

// Request describes one report generation.
type Request struct {
	RunName     string
	ReportDir   string
	SampleSheet string
	Footer      string
	Logo        string
	Sections    []Section
	Now         func() time.Time
}

// Build loads the reports and assembles the document.
func (a *Aggregator) Build(ctx context.Context, req Request) (*Document, error) {
	sections := req.Sections
	if sections == nil {
		sections = DefaultSections
	}
	now := time.Now
	if req.Now != nil {
		now = req.Now
	}

	paths := ReportPaths(req.ReportDir)
	wanted := make(map[string]string, len(sections))
	for _, s := range sections {
		p, ok := paths[s.Report]
		if !ok {
			p = filepath.Join(req.ReportDir, s.Report+".csv")
		}
		wanted[s.Report] = p
	}

	data, err := a.Load(ctx, wanted)
	if err != nil {
		return nil, err
	}

	samples, err := ReadSampleSheet(req.SampleSheet)
	if err != nil {
		return nil, err
	}

	footer := req.Footer
	if footer == "" {
		footer = constants.DefaultReportFooter
	}

	doc := &Document{
		RunName: req.RunName,
		Issued:  now(),
		Title:   "GeneSippr Analysis Report",
		Caption: constants.ReportCaption,
		Footer: []string{
			footer,
			fmt.Sprintf("This report was generated with %s %s", constants.AppName, version.Version),
		},
		Logo:    req.Logo,
		Samples: samples,
	}
	for _, s := range sections {
		t, err := data.Table(s.Report, samples, s.Headers)
		if err != nil {
			return nil, err
		}
		t.Title = s.Title
		doc.Tables = append(doc.Tables, t)
	}

	a.logger.Info().
		Str("run", req.RunName).
		Int("samples", len(samples)).
		Int("tables", len(doc.Tables)).
		Msg("Report assembled")
	return doc, nil
}

// OutputPath returns <outputDir>/<run>_<suffix>_<date>.<ext>.
func OutputPath(outputDir, runName, suffix, ext string, date time.Time) string {
	if suffix == "" {
		suffix = constants.DefaultReportSuffix
	}
	name := fmt.Sprintf("%s_%s_%s.%s", runName, suffix, date.Format(constants.ReportDateFormat), ext)
	return filepath.Join(outputDir, name)
}
