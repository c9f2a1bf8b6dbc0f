// Package runfolder inspects a sequencing-run folder: it counts completed
// cycles, parses RunInfo.xml and decides whether the run is ready for analysis.
package runfolder

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strconv"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
)

// ReadLength is a configured read length in cycles. FullLength means the
// length is unknown and the pipeline should use the full read.
type ReadLength int

// FullLength is the sentinel for an unknown read length.
const FullLength ReadLength = -1

// Known reports whether the length was parsed from run metadata.
func (r ReadLength) Known() bool {
	return r >= 0
}

func (r ReadLength) String() string {
	if !r.Known() {
		return "full"
	}
	return strconv.Itoa(int(r))
}

type runInfoDoc struct {
	Runs []struct {
		Reads []runInfoRead `xml:"Reads>Read"`
	} `xml:"Run"`
}

type runInfoRead struct {
	Number        string `xml:"Number,attr"`
	NumCycles     string `xml:"NumCycles,attr"`
	IsIndexedRead string `xml:"IsIndexedRead,attr"`
}

// ParseRunInfo reads RunInfo.xml in runPath and returns the forward (read 1)
// and reverse (read 4) lengths. A missing or malformed file is not an error:
// lengths that cannot be determined stay at FullLength.
func ParseRunInfo(runPath string) (forward, reverse ReadLength) {
	forward, reverse = FullLength, FullLength

	data, err := os.ReadFile(filepath.Join(runPath, constants.RunInfoFile))
	if err != nil {
		return forward, reverse
	}
	return parseRunInfo(data)
}

func parseRunInfo(data []byte) (forward, reverse ReadLength) {
	forward, reverse = FullLength, FullLength

	var doc runInfoDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return forward, reverse
	}

	for _, run := range doc.Runs {
		for _, read := range run.Reads {
			cycles, err := strconv.Atoi(read.NumCycles)
			if err != nil || cycles < 0 {
				continue
			}
			switch read.Number {
			case constants.ForwardReadNumber:
				forward = ReadLength(cycles)
			case constants.ReverseReadNumber:
				reverse = ReadLength(cycles)
			}
		}
	}
	return forward, reverse
}
