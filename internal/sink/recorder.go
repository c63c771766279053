package sink

import (
	"sync"

	"texbuild/internal/state"
)

// Recorder captures sink traffic for tests and for the watch status line.
type Recorder struct {
	mu       sync.Mutex
	Infos    []string
	Warnings []string
	Errors   []string
	Statuses []string
	Messages map[string][]state.LogMessage
}

// NewRecorder constructs an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{Messages: make(map[string][]state.LogMessage)}
}

func (r *Recorder) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Infos = append(r.Infos, msg)
}

func (r *Recorder) Warning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, msg)
}

func (r *Recorder) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, msg)
}

func (r *Recorder) ShowMessages(job string, messages []state.LogMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages[job] = append(r.Messages[job], messages...)
}

func (r *Recorder) ShowStatus(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Statuses = append(r.Statuses, status)
}

var _ Sink = (*Recorder)(nil)
