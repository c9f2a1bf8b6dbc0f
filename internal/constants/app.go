// Package constants holds the fixed values shared by the launcher packages:
// run-folder layout, report file names, marker headers and polling defaults.
package constants

import (
	"time"
)

// Application identity
const (
	// AppName is used for the window title, notifications and config dirs.
	AppName = "GeneSippr Launcher"

	// AppID is the fyne application identifier.
	AppID = "ca.gc.inspection.sippr-launcher"

	// EnvDebug turns on debug logging in both front ends when set.
	EnvDebug = "SIPPR_DEBUG"

	// ConfigDirName is the directory under the user config dir.
	ConfigDirName = "sippr-launcher"

	// ConfigFileName is the INI file inside ConfigDirName.
	ConfigFileName = "launcher.conf"

	// HistoryFileName is the SQLite run history inside ConfigDirName.
	HistoryFileName = "history.db"

	// LauncherLogFileName is the launcher's own log inside the log directory.
	LauncherLogFileName = "launcher.log"
)

// Run folder layout
const (
	// CycleGlob matches completed-cycle directories relative to a run folder.
	// The instrument writes one C<n>.1 directory per finished cycle.
	CycleGlob = "Data/Intensities/BaseCalls/L001/C*"

	// RunInfoFile is the run metadata descriptor at the run folder root.
	RunInfoFile = "RunInfo.xml"

	// DefaultSampleSheet is the sample sheet name at the run folder root.
	DefaultSampleSheet = "SampleSheet.csv"

	// IndexCycleMargin is the number of index-read cycles sequenced between
	// the forward and reverse reads. A run is ready once it has completed
	// forward + IndexCycleMargin cycles.
	IndexCycleMargin = 16

	// ForwardReadNumber and ReverseReadNumber are the Read@Number values in
	// RunInfo.xml for the forward and reverse reads (2 and 3 are indices).
	ForwardReadNumber = "1"
	ReverseReadNumber = "4"
)

// Pipeline defaults
const (
	DefaultImage            = "olcbioinformatics/sipprverse:latest"
	DefaultCondaEnv         = "genesippr"
	DefaultEntryScript      = "method.py"
	DefaultContainerWorkDir = "/home/ubuntu/Bioinformatics"
	DefaultNASMount         = "/mnt/nas"
	DefaultReferenceDB      = "/mnt/nas/assemblydatabases/0.2.3/databases"
	DefaultLogFileName      = "portal.log"

	// ContainerNamePrefix prefixes the docker --name of every run.
	ContainerNamePrefix = "sippr-"
)

// Log monitoring
const (
	// DefaultPollInterval is how often the pipeline log is re-read.
	DefaultPollInterval = 1 * time.Second

	// DefaultSampleSheetMarker precedes the sample sheet path in the log.
	DefaultSampleSheetMarker = "SampleSheet:"

	// DefaultCompletionMarker is written by the pipeline once all reports
	// are on disk.
	DefaultCompletionMarker = "Analyses complete"

	// DefaultCompletionGracePolls is the number of polls the controller
	// waits for the completion marker after the process exited cleanly.
	DefaultCompletionGracePolls = 5

	// StderrTailLines is how many trailing stderr lines a failed run keeps.
	StderrTailLines = 20
)

// Disk space
const (
	// DefaultMinFreeGB is the free space required on the output volume
	// before a run may be launched.
	DefaultMinFreeGB = 10

	// DiskSpaceSafetyMargin pads the required space (10%).
	DiskSpaceSafetyMargin = 1.1
)

// Reports
const (
	ReportGeneSippr    = "genesippr"
	ReportSixteenSFull = "sixteens_full"
	ReportGDCS         = "GDCS"

	// ReportsDirName is the subdirectory of <output>/<run> holding the CSVs.
	ReportsDirName = "reports"

	// StrainColumn is the row key of every report CSV.
	StrainColumn = "Strain"

	// SampleIDMarker introduces the sample rows of a sample sheet.
	SampleIDMarker = "Sample_ID"

	// DefaultReportSuffix is inserted between the run name and the date in
	// the generated PDF file name.
	DefaultReportSuffix = "gar"

	// ReportDateFormat is used in file names and the report header.
	ReportDateFormat = "2006-01-02"

	// ReportCaption explains the cell markers below each table.
	ReportCaption = "+ indicates marker presence : - indicates marker was not detected"

	// DefaultReportFooter is printed at the bottom of every page.
	DefaultReportFooter = "Data interpretation guidelines can be found in RDIMS document ID: 10401305"
)

// ReportNames lists the pipeline reports in presentation order.
var ReportNames = []string{ReportGeneSippr, ReportSixteenSFull, ReportGDCS}

// GeneSipprMarkers is the fixed column order of the GeneSippr table,
// excluding the Strain key column.
var GeneSipprMarkers = []string{
	"Genus",
	"eae",
	"O26",
	"O45",
	"O103",
	"O111",
	"O121",
	"O145",
	"O157",
	"VT1",
	"VT2",
	"VT2f",
	"uidA",
	"hlyA",
	"IGS",
	"inlJ",
	"invA",
	"stn",
}

// Event bus
const (
	// EventBusDefaultBuffer is the per-subscriber channel size.
	EventBusDefaultBuffer = 256

	// EventBusMaxBuffer caps caller supplied buffer sizes.
	EventBusMaxBuffer = 4096
)

// HTTP client tuning for archive uploads
const (
	HTTPIdleConnTimeout       = 90 * time.Second
	HTTPTLSHandshakeTimeout   = 30 * time.Second
	HTTPExpectContinueTimeout = 1 * time.Second
	HTTPRetryMax              = 5
	HTTPRetryWaitMin          = 1 * time.Second
	HTTPRetryWaitMax          = 30 * time.Second

	// DeliveryTimeout bounds the archive upload and mail of one report.
	DeliveryTimeout = 2 * time.Minute
)
