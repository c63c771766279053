// Package state holds the per-build data model: one BuildState per root
// document, one JobState per named output variant, and the process-wide cache
// mapping root paths to their most recent state.
package state

import (
	"path/filepath"
	"strings"
)

// Severity classifies a diagnostic message parsed from compiler output.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LogMessage is one structured diagnostic record attributed to a job.
type LogMessage struct {
	Severity Severity
	Text     string
	File     string
	Line     int
	EndLine  int
}

// JobState is a per-job view of a build: the job name (empty for the implicit
// unnamed job) plus the fields a builder fills in during and after a run.
type JobState struct {
	build *BuildState

	Name           string
	OutputFilePath string
	LogMessages    []LogMessage
}

// Build returns the owning BuildState.
func (j *JobState) Build() *BuildState { return j.build }

// EffectiveJobName returns the job name latexmk will use: the explicit name,
// or the document base name for the unnamed job.
func (j *JobState) EffectiveJobName() string {
	if j.Name != "" {
		return j.Name
	}
	base := filepath.Base(j.build.FilePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// AppendMessage records a diagnostic on the job.
func (j *JobState) AppendMessage(msg LogMessage) {
	j.LogMessages = append(j.LogMessages, msg)
}

// BuildState describes one build request for a resolved root document. All
// option fields are shared across the jobs of one state; only the per-job
// output path and messages vary.
type BuildState struct {
	FilePath    string
	ProjectPath string

	subfiles map[string]struct{}
	jobs     []*JobState

	Engine                      string
	OutputFormat                string
	Producer                    string
	OutputDirectory             string
	EnableShellEscape           bool
	EnableSynctex               bool
	EnableExtendedBuildMode     bool
	CleanPatterns               []string
	MoveResultToSourceDirectory bool
	ShouldRebuild               bool
}

// New constructs a BuildState for the given resolved root path with a single
// implicit unnamed job.
func New(filePath string) *BuildState {
	s := &BuildState{
		FilePath:    filePath,
		ProjectPath: filepath.Dir(filePath),
		subfiles:    make(map[string]struct{}),
	}
	s.SetJobNames(nil)
	return s
}

// SetJobNames regenerates the job list, one JobState per name. An empty or
// nil list produces the single implicit unnamed job. Prior per-job results
// are discarded.
func (s *BuildState) SetJobNames(names []string) {
	if len(names) == 0 {
		names = []string{""}
	}
	jobs := make([]*JobState, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		jobs = append(jobs, &JobState{build: s, Name: name})
	}
	s.jobs = jobs
}

// Jobs returns the ordered job list. At least one job is always present.
func (s *BuildState) Jobs() []*JobState { return s.jobs }

// JobNames returns the configured job names in order.
func (s *BuildState) JobNames() []string {
	names := make([]string, 0, len(s.jobs))
	for _, job := range s.jobs {
		names = append(names, job.Name)
	}
	return names
}

// AddSubfile records a path as known to be included by this root.
func (s *BuildState) AddSubfile(path string) {
	if path == "" || path == s.FilePath {
		return
	}
	s.subfiles[path] = struct{}{}
}

// HasSubfile reports whether path is the root itself or a known subfile.
func (s *BuildState) HasSubfile(path string) bool {
	if path == s.FilePath {
		return true
	}
	_, ok := s.subfiles[path]
	return ok
}

// Subfiles returns the known subfile set as a slice (unordered).
func (s *BuildState) Subfiles() []string {
	paths := make([]string, 0, len(s.subfiles))
	for path := range s.subfiles {
		paths = append(paths, path)
	}
	return paths
}

// SubfileCount returns the number of known subfiles.
func (s *BuildState) SubfileCount() int { return len(s.subfiles) }

// SameFileSet reports whether other tracks exactly the same root and subfiles.
func (s *BuildState) SameFileSet(other *BuildState) bool {
	if other == nil || s.FilePath != other.FilePath || len(s.subfiles) != len(other.subfiles) {
		return false
	}
	for path := range s.subfiles {
		if _, ok := other.subfiles[path]; !ok {
			return false
		}
	}
	return true
}

// EffectiveOutputDirectory resolves the configured output directory against
// the project path. Empty means the project directory itself.
func (s *BuildState) EffectiveOutputDirectory() string {
	dir := strings.TrimSpace(s.OutputDirectory)
	if dir == "" {
		return s.ProjectPath
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(s.ProjectPath, dir)
}
