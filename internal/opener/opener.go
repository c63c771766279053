// Package opener launches external viewers for finished build outputs. An
// Opener is a capability: the registry picks the first one whose CanOpen
// accepts the target path, unless configuration pins a specific opener.
package opener

import (
	"context"

	"texbuild/internal/config"
)

// Opener launches or raises a viewer for an output file.
type Opener interface {
	// Name identifies the opener for configuration pinning.
	Name() string
	// CanOpen reports whether this opener handles the given output path.
	CanOpen(path string) bool
	// HasSynctex reports whether the viewer supports source-sync jumps.
	HasSynctex() bool
	// CanOpenInBackground reports whether the viewer can open without
	// stealing focus.
	CanOpenInBackground() bool
	// Open shows outputPath; when the viewer supports SyncTeX it jumps to
	// lineNumber of sourcePath.
	Open(ctx context.Context, outputPath, sourcePath string, lineNumber int) error
}

// Registry selects openers.
type Registry struct {
	cfg     config.Viewer
	openers []Opener
}

// NewRegistry constructs a registry over the given openers.
func NewRegistry(cfg config.Viewer, openers ...Opener) *Registry {
	return &Registry{cfg: cfg, openers: openers}
}

// OpenerFor returns the opener for path: the pinned one when configured and
// able, otherwise the first whose CanOpen accepts the path. Nil when none.
func (r *Registry) OpenerFor(path string) Opener {
	if r.cfg.Name != "" {
		for _, o := range r.openers {
			if o.Name() == r.cfg.Name && o.CanOpen(path) {
				return o
			}
		}
		return nil
	}
	for _, o := range r.openers {
		if o.CanOpen(path) {
			return o
		}
	}
	return nil
}

// Openers returns the registered openers in order.
func (r *Registry) Openers() []Opener {
	return r.openers
}
