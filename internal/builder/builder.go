// Package builder defines the build-tool adapter contract and the registry
// that selects an adapter for a resolved BuildState. One adapter ships today,
// the latexmk driver; additional drivers register without touching the
// composer.
package builder

import (
	"context"

	"texbuild/internal/state"
)

// RuntimeLevel classifies a runtime dependency probe outcome.
type RuntimeLevel string

const (
	RuntimeOK      RuntimeLevel = "info"
	RuntimeWarning RuntimeLevel = "warning"
	RuntimeError   RuntimeLevel = "error"
)

// RuntimeStatus reports the result of an adapter's version probe.
type RuntimeStatus struct {
	Level   RuntimeLevel
	Version string
	Detail  string
}

// Builder is the adapter contract for one external compiler driver.
type Builder interface {
	// Name identifies the adapter in logs and history records.
	Name() string
	// CanProcess reports whether this adapter can build the state's root.
	CanProcess(s *state.BuildState) bool
	// ConstructArgs produces the full argument list for one job. It is a
	// pure function of the job and its owning state.
	ConstructArgs(job *state.JobState) []string
	// Run executes the external tool for one job and returns its raw exit
	// code. A nonzero code is not an error; err is set only when the
	// process could not be run or was killed.
	Run(ctx context.Context, job *state.JobState) (int, error)
	// ParseLogAndFdbFiles reads the tool's log and dependency files,
	// populating the job's output path and diagnostics. It reports whether
	// an output path was discovered.
	ParseLogAndFdbFiles(job *state.JobState) bool
	// CheckRuntime probes the external tool's availability and version.
	CheckRuntime(ctx context.Context) RuntimeStatus
}

// Registry holds the known adapters in selection order.
type Registry struct {
	builders []Builder
}

// NewRegistry constructs a registry over the given adapters.
func NewRegistry(builders ...Builder) *Registry {
	return &Registry{builders: builders}
}

// Register appends another adapter.
func (r *Registry) Register(b Builder) {
	if b != nil {
		r.builders = append(r.builders, b)
	}
}

// BuilderFor returns the first adapter able to process the state, or nil when
// none matches. Nil distinguishes "unsupported file" from a build failure.
func (r *Registry) BuilderFor(s *state.BuildState) Builder {
	if s == nil {
		return nil
	}
	for _, b := range r.builders {
		if b.CanProcess(s) {
			return b
		}
	}
	return nil
}

// Builders returns the registered adapters in order.
func (r *Registry) Builders() []Builder {
	return r.builders
}
