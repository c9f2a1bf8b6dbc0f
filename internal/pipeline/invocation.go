// Package pipeline builds and runs the containerised GeneSippr invocation.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
	"github.com/olcbioinformatics/sippr-launcher/internal/runfolder"
)

// Errors returned by Builder.Build.
var (
	ErrNotReady   = errors.New("run folder is not ready for analysis")
	ErrNoImage    = errors.New("no pipeline image configured")
	ErrNoMounts   = errors.New("no mounts configured")
	ErrRelPathArg = errors.New("path must be absolute")
)

// Mount is a host:container bind mount.
type Mount struct {
	Host      string
	Container string
}

func (m Mount) String() string {
	return m.Host + ":" + m.Container
}

// Invocation describes one pipeline run. It is built once per launch by
// Builder.Build and never modified afterwards.
type Invocation struct {
	RunID         string
	RunName       string
	ContainerName string
	Image         string
	Mounts        []Mount

	// Shell and Script are executed inside the container as Shell -c Script.
	Shell  string
	Script string

	// LogPath is the host path of the log the pipeline writes.
	LogPath string

	// ReportDir is the host directory that will hold the report CSVs.
	ReportDir string

	// SampleSheet is the host path of the sample sheet handed to the pipeline.
	SampleSheet string
}

// Command returns the full argv, starting with "docker".
func (inv Invocation) Command() []string {
	args := []string{"docker", "run", "-i", "--rm"}
	if inv.ContainerName != "" {
		args = append(args, "--name", inv.ContainerName)
	}
	for _, m := range inv.Mounts {
		args = append(args, "-v", m.String())
	}
	args = append(args, inv.Image, inv.Shell, "-c", inv.Script)
	return args
}

// String renders the command line for logs and dry runs.
func (inv Invocation) String() string {
	argv := inv.Command()
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// Options is the static part of every invocation.
type Options struct {
	Image            string
	CondaEnv         string
	EntryScript      string
	Mounts           []Mount
	ReferenceDB      string
	SequenceDir      string
	OutputDir        string
	LogPath          string
	SampleSheet      string // empty: <run folder>/SampleSheet.csv
	ContainerWorkDir string
}

// Builder turns a ready run folder into an Invocation.
type Builder struct {
	opts Options
}

// NewBuilder creates a builder. Mounts are matched longest host prefix first.
func NewBuilder(opts Options) *Builder {
	opts.Mounts = append([]Mount(nil), opts.Mounts...)
	if opts.CondaEnv == "" {
		opts.CondaEnv = constants.DefaultCondaEnv
	}
	if opts.EntryScript == "" {
		opts.EntryScript = constants.DefaultEntryScript
	}
	return &Builder{opts: opts}
}

// Options returns a copy of the builder's options.
func (b *Builder) Options() Options {
	o := b.opts
	o.Mounts = append([]Mount(nil), b.opts.Mounts...)
	return o
}

// Build creates the invocation for rf. Folders failing the readiness gate
// are refused with ErrNotReady.
func (b *Builder) Build(rf *runfolder.RunFolder) (Invocation, error) {
	if rf == nil || !rf.Ready() {
		name := ""
		if rf != nil {
			name = rf.Name
		}
		return Invocation{}, fmt.Errorf("%w: %s", ErrNotReady, name)
	}
	if b.opts.Image == "" {
		return Invocation{}, ErrNoImage
	}
	if len(b.opts.Mounts) == 0 {
		return Invocation{}, ErrNoMounts
	}

	mounts := append([]Mount(nil), b.opts.Mounts...)
	toContainer := func(hostPath string, isFile bool) (string, error) {
		if !filepath.IsAbs(hostPath) {
			return "", fmt.Errorf("%w: %s", ErrRelPathArg, hostPath)
		}
		if p, ok := translate(mounts, hostPath); ok {
			return p, nil
		}
		// Unmapped directories are mounted at the same path.
		dir := hostPath
		if isFile {
			dir = filepath.Dir(hostPath)
		}
		dir = filepath.ToSlash(dir)
		mounts = append(mounts, Mount{Host: dir, Container: dir})
		return filepath.ToSlash(hostPath), nil
	}

	sampleSheet := b.opts.SampleSheet
	if sampleSheet == "" {
		sampleSheet = filepath.Join(rf.Path, constants.DefaultSampleSheet)
	}

	paths := []string{rf.BasePath, sampleSheet, b.opts.ReferenceDB, b.opts.SequenceDir, b.opts.OutputDir}
	ctr := make([]string, len(paths))
	for i, p := range paths {
		c, err := toContainer(p, i == 1)
		if err != nil {
			return Invocation{}, err
		}
		ctr[i] = c
	}

	reverse := "0"
	if rf.ReverseAvailable() {
		reverse = rf.Reverse.String()
	}

	script := fmt.Sprintf("source activate %s && python %s -m %s -f %s -r1 %s -r2 %s -c %s -r %s -d %s -o %s",
		b.opts.CondaEnv,
		b.opts.EntryScript,
		shellQuote(withTrailingSlash(ctr[0])),
		shellQuote(rf.Name),
		rf.Forward.String(),
		reverse,
		shellQuote(ctr[1]),
		shellQuote(ctr[2]),
		shellQuote(ctr[3]),
		shellQuote(ctr[4]),
	)
	if b.opts.ContainerWorkDir != "" {
		script = "cd " + shellQuote(b.opts.ContainerWorkDir) + " && " + script
	}

	runID := uuid.NewString()
	return Invocation{
		RunID:         runID,
		RunName:       rf.Name,
		ContainerName: constants.ContainerNamePrefix + runID,
		Image:         b.opts.Image,
		Mounts:        mounts,
		Shell:         "/bin/bash",
		Script:        script,
		LogPath:       b.opts.LogPath,
		ReportDir:     filepath.Join(b.opts.OutputDir, rf.Name, constants.ReportsDirName),
		SampleSheet:   sampleSheet,
	}, nil
}

// HostPath maps a path seen inside the container back to the host. ok is
// false when the path lies outside every mount.
func (b *Builder) HostPath(containerPath string) (string, bool) {
	reversed := make([]Mount, len(b.opts.Mounts))
	for i, m := range b.opts.Mounts {
		reversed[i] = Mount{Host: m.Container, Container: m.Host}
	}
	p, ok := translate(reversed, containerPath)
	if !ok {
		return "", false
	}
	return filepath.FromSlash(p), true
}

// translate rewrites path using the longest matching Host prefix.
func translate(mounts []Mount, path string) (string, bool) {
	p := filepath.ToSlash(path)
	best, bestLen := -1, -1
	for i, m := range mounts {
		prefix := strings.TrimSuffix(filepath.ToSlash(m.Host), "/")
		if p != prefix && !strings.HasPrefix(p, prefix+"/") {
			continue
		}
		if len(prefix) > bestLen {
			best, bestLen = i, len(prefix)
		}
	}
	if best < 0 {
		return "", false
	}
	prefix := strings.TrimSuffix(filepath.ToSlash(mounts[best].Host), "/")
	target := strings.TrimSuffix(filepath.ToSlash(mounts[best].Container), "/")
	return target + strings.TrimPrefix(p, prefix), true
}

func withTrailingSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// shellQuote single-quotes s if it contains characters the container shell
// would interpret.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`&|;<>()*?![]{}#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
