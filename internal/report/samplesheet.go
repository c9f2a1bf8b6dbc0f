package report

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
)

// ReadSampleSheet returns the sample names listed in an Illumina sample
// sheet: the first field of every non-blank line after the Sample_ID line.
func ReadSampleSheet(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample sheet: %w", err)
	}
	defer f.Close()

	var samples []string
	inData := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !inData {
			inData = strings.Contains(line, constants.SampleIDMarker)
			continue
		}
		name, _, _ := strings.Cut(line, ",")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		samples = append(samples, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sample sheet: %w", err)
	}
	return samples, nil
}
