package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
)

type yamlDocument struct {
	Run     string      `yaml:"run"`
	Issued  string      `yaml:"issued"`
	Samples []string    `yaml:"samples"`
	Tables  []yamlTable `yaml:"tables"`
}

type yamlTable struct {
	Report  string    `yaml:"report"`
	Title   string    `yaml:"title,omitempty"`
	Headers []string  `yaml:"headers"`
	Rows    []yamlRow `yaml:"rows"`
}

type yamlRow struct {
	Sample string `yaml:"sample"`

	// Values holds the present cells only; absent headers are listed
	// separately so the column count can be recovered.
	Values map[string]string `yaml:"values,omitempty"`
	Absent []string          `yaml:"absent,omitempty"`
}

// YAMLRenderer writes the document as YAML for downstream tools.
type YAMLRenderer struct{}

// Render writes doc to path, creating the parent directory.
func (YAMLRenderer) Render(doc *Document, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := WriteYAML(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteYAML encodes doc to w.
func WriteYAML(w io.Writer, doc *Document) error {
	out := yamlDocument{
		Run:     doc.RunName,
		Issued:  doc.Issued.Format(constants.ReportDateFormat),
		Samples: doc.Samples,
	}
	for _, t := range doc.Tables {
		yt := yamlTable{Report: t.Report, Title: t.Title, Headers: t.Headers}
		for _, row := range t.Rows {
			yr := yamlRow{Sample: row.Sample}
			for i, c := range row.Cells {
				if !c.Present {
					yr.Absent = append(yr.Absent, t.Headers[i])
					continue
				}
				if yr.Values == nil {
					yr.Values = make(map[string]string)
				}
				yr.Values[t.Headers[i]] = c.Value
			}
			yt.Rows = append(yt.Rows, yr)
		}
		out.Tables = append(out.Tables, yt)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}
