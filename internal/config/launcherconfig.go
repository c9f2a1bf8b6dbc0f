// Package config provides configuration management for the launcher.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
)

// Config enumerates every path and setting the launcher needs. Components
// receive the parts they use at construction; nothing reads globals.
//
// INI format:
//
//	[paths]
//	miseq_root = /mnt/nas/MiSeq_Backup
//	work_dir = /home/lab/Bioinformatics
//	output_dir = /home/lab/Bioinformatics/sippr/method
//	log_file =
//	sample_sheet =
//	reference_db = /mnt/nas/assemblydatabases/0.2.3/databases
//	sequence_dir = /home/lab/Bioinformatics/sippr/method/sequences
//
//	[pipeline]
//	image = olcbioinformatics/sipprverse:latest
//	conda_env = genesippr
//	entry_script = method.py
//	container_work_dir = /home/ubuntu/Bioinformatics
//	extra_mounts = /mnt/nas:/mnt/nas
//	sample_sheet_marker = SampleSheet:
//	completion_marker = Analyses complete
//	poll_interval_seconds = 1
//	completion_grace_polls = 5
//	min_free_gb = 10
//
//	[report]
//	suffix = gar
//	logo =
//	footer = Data interpretation guidelines can be found in RDIMS document ID: 10401305
//
//	[logging]
//	file =
//	level = info
//
//	[notifications]
//	enabled = true
//
//	[archive]
//	provider = none
//	bucket =
//	region =
//	prefix = gar/
//	azure_connection_string =
//	azure_container =
//
//	[mail]
//	enabled = false
//	from =
//	to =
//	region =
//
//	[history]
//	path =
type Config struct {
	Paths         PathsConfig
	Pipeline      PipelineConfig
	Report        ReportConfig
	Logging       LoggingConfig
	Notifications NotificationConfig
	Archive       ArchiveConfig
	Mail          MailConfig
	History       HistoryConfig
}

// PathsConfig holds host filesystem locations.
type PathsConfig struct {
	// MiseqRoot is the directory holding instrument run folders. It is the
	// start directory of the folder dialog.
	MiseqRoot string `ini:"miseq_root"`

	// WorkDir is the host directory mounted at Pipeline.ContainerWorkDir.
	WorkDir string `ini:"work_dir"`

	// OutputDir receives the pipeline outputs and the generated PDF.
	OutputDir string `ini:"output_dir"`

	// LogFile is the pipeline log. Default: <OutputDir>/portal.log
	LogFile string `ini:"log_file"`

	// SampleSheet overrides the sample sheet passed to the pipeline.
	// Default: <run folder>/SampleSheet.csv
	SampleSheet string `ini:"sample_sheet"`

	// ReferenceDB is the pipeline reference database directory.
	ReferenceDB string `ini:"reference_db"`

	// SequenceDir is the directory the pipeline writes extracted reads to.
	SequenceDir string `ini:"sequence_dir"`
}

// PipelineConfig holds the container invocation settings.
type PipelineConfig struct {
	Image            string `ini:"image"`
	CondaEnv         string `ini:"conda_env"`
	EntryScript      string `ini:"entry_script"`
	ContainerWorkDir string `ini:"container_work_dir"`

	// ExtraMounts is a comma-separated list of host:container pairs.
	ExtraMounts string `ini:"extra_mounts"`

	SampleSheetMarker string `ini:"sample_sheet_marker"`
	CompletionMarker  string `ini:"completion_marker"`

	// PollIntervalSeconds is the log poll period. Minimum 1, maximum 60.
	PollIntervalSeconds int `ini:"poll_interval_seconds"`

	// CompletionGracePolls is how many polls a cleanly exited process may
	// go without the completion marker before the run is marked failed.
	CompletionGracePolls int `ini:"completion_grace_polls"`

	// MinFreeGB is the free space required on the output volume. 0 disables.
	MinFreeGB int `ini:"min_free_gb"`
}

// ReportConfig holds PDF report settings.
type ReportConfig struct {
	Suffix string `ini:"suffix"`
	Logo   string `ini:"logo"`
	Footer string `ini:"footer"`

	// ExportYAML writes a YAML copy of the report next to the PDF.
	ExportYAML bool `ini:"export_yaml"`
}

// LoggingConfig holds launcher log settings.
type LoggingConfig struct {
	File  string `ini:"file"`
	Level string `ini:"level"`
}

// NotificationConfig holds desktop notification settings.
type NotificationConfig struct {
	Enabled bool `ini:"enabled"`
}

// ArchiveConfig selects where generated reports are copied.
type ArchiveConfig struct {
	// Provider is "none", "s3" or "azure".
	Provider string `ini:"provider"`

	Bucket string `ini:"bucket"`
	Region string `ini:"region"`
	Prefix string `ini:"prefix"`

	AzureConnectionString string `ini:"azure_connection_string"`
	AzureContainer        string `ini:"azure_container"`
}

// MailConfig holds the report-ready e-mail settings.
type MailConfig struct {
	Enabled bool   `ini:"enabled"`
	From    string `ini:"from"`
	To      string `ini:"to"`
	Region  string `ini:"region"`
}

// HistoryConfig holds the run history database location.
type HistoryConfig struct {
	// Path is the SQLite file. Default: <config dir>/history.db
	Path string `ini:"path"`
}

// Archive providers
const (
	ArchiveNone  = "none"
	ArchiveS3    = "s3"
	ArchiveAzure = "azure"
)

// Config validation errors
var (
	ErrMissingOutputDir       = errors.New("paths.output_dir is required")
	ErrMissingWorkDir         = errors.New("paths.work_dir is required")
	ErrMissingImage           = errors.New("pipeline.image is required")
	ErrInvalidPollInterval    = errors.New("pipeline.poll_interval_seconds must be between 1 and 60")
	ErrInvalidGracePolls      = errors.New("pipeline.completion_grace_polls must be between 0 and 3600")
	ErrInvalidMinFree         = errors.New("pipeline.min_free_gb must not be negative")
	ErrInvalidMount           = errors.New("pipeline.extra_mounts entries must be host:container")
	ErrInvalidArchiveProvider = errors.New("archive.provider must be none, s3 or azure")
	ErrMissingArchiveBucket   = errors.New("archive.bucket is required for the s3 provider")
	ErrMissingAzureSettings   = errors.New("archive.azure_connection_string and archive.azure_container are required for the azure provider")
	ErrMissingMailAddresses   = errors.New("mail.from and mail.to are required when mail is enabled")
)

// DefaultConfigDir returns the launcher config directory.
//   - Windows: %APPDATA%\sippr-launcher
//   - Unix: ~/.config/sippr-launcher
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		return filepath.Join(appData, constants.ConfigDirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", constants.ConfigDirName), nil
}

// DefaultConfigPath returns the default path of launcher.conf.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.ConfigFileName), nil
}

// defaultWorkDir mirrors the historical ~/Bioinformatics layout.
func defaultWorkDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "Bioinformatics")
	}
	return filepath.Join(home, "Bioinformatics")
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	workDir := defaultWorkDir()
	outputDir := filepath.Join(workDir, "sippr", "method")

	return &Config{
		Paths: PathsConfig{
			MiseqRoot:   filepath.Join(constants.DefaultNASMount, "MiSeq_Backup"),
			WorkDir:     workDir,
			OutputDir:   outputDir,
			ReferenceDB: constants.DefaultReferenceDB,
			SequenceDir: filepath.Join(outputDir, "sequences"),
		},
		Pipeline: PipelineConfig{
			Image:                constants.DefaultImage,
			CondaEnv:             constants.DefaultCondaEnv,
			EntryScript:          constants.DefaultEntryScript,
			ContainerWorkDir:     constants.DefaultContainerWorkDir,
			ExtraMounts:          constants.DefaultNASMount + ":" + constants.DefaultNASMount,
			SampleSheetMarker:    constants.DefaultSampleSheetMarker,
			CompletionMarker:     constants.DefaultCompletionMarker,
			PollIntervalSeconds:  int(constants.DefaultPollInterval / time.Second),
			CompletionGracePolls: constants.DefaultCompletionGracePolls,
			MinFreeGB:            constants.DefaultMinFreeGB,
		},
		Report: ReportConfig{
			Suffix: constants.DefaultReportSuffix,
			Footer: constants.DefaultReportFooter,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Notifications: NotificationConfig{
			Enabled: true,
		},
		Archive: ArchiveConfig{
			Provider: ArchiveNone,
			Prefix:   "gar/",
		},
	}
}

// Load loads configuration from an INI file.
// If path is empty, uses the default path.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}

	paths := iniFile.Section("paths")
	cfg.Paths.MiseqRoot = paths.Key("miseq_root").MustString(cfg.Paths.MiseqRoot)
	cfg.Paths.WorkDir = paths.Key("work_dir").MustString(cfg.Paths.WorkDir)
	cfg.Paths.OutputDir = paths.Key("output_dir").MustString(cfg.Paths.OutputDir)
	cfg.Paths.LogFile = paths.Key("log_file").String()
	cfg.Paths.SampleSheet = paths.Key("sample_sheet").String()
	cfg.Paths.ReferenceDB = paths.Key("reference_db").MustString(cfg.Paths.ReferenceDB)
	cfg.Paths.SequenceDir = paths.Key("sequence_dir").MustString(cfg.Paths.SequenceDir)

	pipe := iniFile.Section("pipeline")
	cfg.Pipeline.Image = pipe.Key("image").MustString(cfg.Pipeline.Image)
	cfg.Pipeline.CondaEnv = pipe.Key("conda_env").MustString(cfg.Pipeline.CondaEnv)
	cfg.Pipeline.EntryScript = pipe.Key("entry_script").MustString(cfg.Pipeline.EntryScript)
	cfg.Pipeline.ContainerWorkDir = pipe.Key("container_work_dir").MustString(cfg.Pipeline.ContainerWorkDir)
	if pipe.HasKey("extra_mounts") {
		cfg.Pipeline.ExtraMounts = pipe.Key("extra_mounts").String()
	}
	cfg.Pipeline.SampleSheetMarker = pipe.Key("sample_sheet_marker").MustString(cfg.Pipeline.SampleSheetMarker)
	cfg.Pipeline.CompletionMarker = pipe.Key("completion_marker").MustString(cfg.Pipeline.CompletionMarker)
	cfg.Pipeline.PollIntervalSeconds = pipe.Key("poll_interval_seconds").MustInt(cfg.Pipeline.PollIntervalSeconds)
	cfg.Pipeline.CompletionGracePolls = pipe.Key("completion_grace_polls").MustInt(cfg.Pipeline.CompletionGracePolls)
	cfg.Pipeline.MinFreeGB = pipe.Key("min_free_gb").MustInt(cfg.Pipeline.MinFreeGB)

	rep := iniFile.Section("report")
	cfg.Report.Suffix = rep.Key("suffix").MustString(cfg.Report.Suffix)
	cfg.Report.Logo = rep.Key("logo").String()
	cfg.Report.Footer = rep.Key("footer").MustString(cfg.Report.Footer)
	cfg.Report.ExportYAML = rep.Key("export_yaml").MustBool(false)

	logSection := iniFile.Section("logging")
	cfg.Logging.File = logSection.Key("file").String()
	cfg.Logging.Level = logSection.Key("level").MustString(cfg.Logging.Level)

	cfg.Notifications.Enabled = iniFile.Section("notifications").Key("enabled").MustBool(true)

	archive := iniFile.Section("archive")
	cfg.Archive.Provider = strings.ToLower(archive.Key("provider").MustString(ArchiveNone))
	cfg.Archive.Bucket = archive.Key("bucket").String()
	cfg.Archive.Region = archive.Key("region").String()
	cfg.Archive.Prefix = archive.Key("prefix").MustString(cfg.Archive.Prefix)
	cfg.Archive.AzureConnectionString = archive.Key("azure_connection_string").String()
	cfg.Archive.AzureContainer = archive.Key("azure_container").String()

	mail := iniFile.Section("mail")
	cfg.Mail.Enabled = mail.Key("enabled").MustBool(false)
	cfg.Mail.From = mail.Key("from").String()
	cfg.Mail.To = mail.Key("to").String()
	cfg.Mail.Region = mail.Key("region").String()

	cfg.History.Path = iniFile.Section("history").Key("path").String()

	return cfg, nil
}

// Save writes the configuration to an INI file.
// If path is empty, uses the default path.
// Creates parent directories if they don't exist.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	sections := []struct {
		name string
		src  interface{}
	}{
		{"paths", &cfg.Paths},
		{"pipeline", &cfg.Pipeline},
		{"report", &cfg.Report},
		{"logging", &cfg.Logging},
		{"notifications", &cfg.Notifications},
		{"archive", &cfg.Archive},
		{"mail", &cfg.Mail},
		{"history", &cfg.History},
	}
	for _, s := range sections {
		section, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		if err := section.ReflectFrom(s.src); err != nil {
			return fmt.Errorf("failed to write %s section: %w", s.name, err)
		}
	}

	// Temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks if the configuration is usable.
// Returns nil if valid, or an error describing what's wrong.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.Paths.OutputDir) == "" {
		return ErrMissingOutputDir
	}
	if strings.TrimSpace(cfg.Paths.WorkDir) == "" {
		return ErrMissingWorkDir
	}
	if strings.TrimSpace(cfg.Pipeline.Image) == "" {
		return ErrMissingImage
	}
	if cfg.Pipeline.PollIntervalSeconds < 1 || cfg.Pipeline.PollIntervalSeconds > 60 {
		return ErrInvalidPollInterval
	}
	if cfg.Pipeline.CompletionGracePolls < 0 || cfg.Pipeline.CompletionGracePolls > 3600 {
		return ErrInvalidGracePolls
	}
	if cfg.Pipeline.MinFreeGB < 0 {
		return ErrInvalidMinFree
	}
	if _, err := cfg.Mounts(); err != nil {
		return err
	}

	switch cfg.Archive.Provider {
	case "", ArchiveNone:
	case ArchiveS3:
		if cfg.Archive.Bucket == "" {
			return ErrMissingArchiveBucket
		}
	case ArchiveAzure:
		if cfg.Archive.AzureConnectionString == "" || cfg.Archive.AzureContainer == "" {
			return ErrMissingAzureSettings
		}
	default:
		return ErrInvalidArchiveProvider
	}

	if cfg.Mail.Enabled && (cfg.Mail.From == "" || len(cfg.MailRecipients()) == 0) {
		return ErrMissingMailAddresses
	}

	return nil
}

// Mount is a host:container bind mount pair.
type Mount struct {
	Host      string
	Container string
}

// Mounts returns the work-dir mount followed by the extra mounts.
func (cfg *Config) Mounts() ([]Mount, error) {
	mounts := []Mount{{Host: cfg.Paths.WorkDir, Container: cfg.Pipeline.ContainerWorkDir}}
	for _, entry := range splitList(cfg.Pipeline.ExtraMounts) {
		host, ctr, ok := strings.Cut(entry, ":")
		if !ok || host == "" || ctr == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMount, entry)
		}
		mounts = append(mounts, Mount{Host: host, Container: ctr})
	}
	return mounts, nil
}

// LogPath returns the pipeline log location.
func (cfg *Config) LogPath() string {
	if cfg.Paths.LogFile != "" {
		return cfg.Paths.LogFile
	}
	return filepath.Join(cfg.Paths.OutputDir, constants.DefaultLogFileName)
}

// PollInterval returns the log poll period.
func (cfg *Config) PollInterval() time.Duration {
	if cfg.Pipeline.PollIntervalSeconds <= 0 {
		return constants.DefaultPollInterval
	}
	return time.Duration(cfg.Pipeline.PollIntervalSeconds) * time.Second
}

// MinFreeBytes returns the free-space precondition in bytes.
func (cfg *Config) MinFreeBytes() int64 {
	return int64(cfg.Pipeline.MinFreeGB) * 1024 * 1024 * 1024
}

// MailRecipients returns the mail.to addresses as a slice.
func (cfg *Config) MailRecipients() []string {
	return splitList(cfg.Mail.To)
}

// HistoryPath returns the run history database path.
func (cfg *Config) HistoryPath() (string, error) {
	if cfg.History.Path != "" {
		return cfg.History.Path, nil
	}
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.HistoryFileName), nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
