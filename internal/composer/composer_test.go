package composer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"texbuild/internal/builder"
	"texbuild/internal/config"
	"texbuild/internal/history"
	"texbuild/internal/logging"
	"texbuild/internal/opener"
	"texbuild/internal/sink"
	"texbuild/internal/state"
)

type fakeBuilder struct {
	exitCode   int
	parseOK    bool
	block      bool
	started    chan struct{}
	runs       []string
	parseCalls int
	lastState  *state.BuildState
}

func (f *fakeBuilder) Name() string { return "fake" }

func (f *fakeBuilder) CanProcess(s *state.BuildState) bool {
	return s != nil && strings.HasSuffix(strings.ToLower(s.FilePath), ".tex")
}

func (f *fakeBuilder) ConstructArgs(job *state.JobState) []string { return nil }

func (f *fakeBuilder) Run(ctx context.Context, job *state.JobState) (int, error) {
	f.lastState = job.Build()
	f.runs = append(f.runs, job.EffectiveJobName())
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.block {
		<-ctx.Done()
		return -1, builder.ErrKilled
	}
	return f.exitCode, nil
}

func (f *fakeBuilder) ParseLogAndFdbFiles(job *state.JobState) bool {
	f.parseCalls++
	if !f.parseOK {
		return false
	}
	if job.OutputFilePath == "" {
		s := job.Build()
		out := filepath.Join(s.EffectiveOutputDirectory(), job.EffectiveJobName()+"."+s.OutputFormat)
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return false
		}
		if err := os.WriteFile(out, []byte("%PDF-1.5"), 0o644); err != nil {
			return false
		}
		job.OutputFilePath = out
	}
	return true
}

func (f *fakeBuilder) CheckRuntime(ctx context.Context) builder.RuntimeStatus {
	return builder.RuntimeStatus{Level: builder.RuntimeOK, Version: "4.86"}
}

type openCall struct {
	output string
	source string
	line   int
}

type fakeOpener struct {
	mu    sync.Mutex
	calls []openCall
}

func (f *fakeOpener) Name() string { return "fake-viewer" }

func (f *fakeOpener) CanOpen(path string) bool {
	switch filepath.Ext(path) {
	case ".pdf", ".dvi", ".ps":
		return true
	}
	return false
}

func (f *fakeOpener) HasSynctex() bool          { return true }
func (f *fakeOpener) CanOpenInBackground() bool { return true }

func (f *fakeOpener) Open(ctx context.Context, outputPath, sourcePath string, line int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, openCall{output: outputPath, source: sourcePath, line: line})
	return nil
}

func newTestComposer(t *testing.T, store *history.Store) (*Composer, *fakeBuilder, *fakeOpener, *sink.Recorder) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	fb := &fakeBuilder{parseOK: true}
	fo := &fakeOpener{}
	rec := sink.NewRecorder()
	comp := New(&cfg, logging.NewNop(), builder.NewRegistry(fb), opener.NewRegistry(cfg.Viewer, fo), rec, store)
	return comp, fb, fo, rec
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestBuildSingleJobOpensResult(t *testing.T) {
	comp, fb, fo, rec := newTestComposer(t, nil)
	dir := t.TempDir()
	root := writeDoc(t, dir, "main.tex", "\\documentclass{article}\n")

	ok, err := comp.Build(context.Background(), root, BuildOptions{OpenResult: true, LineNumber: 7})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !ok {
		t.Fatal("Build() = false, want true")
	}
	if !reflect.DeepEqual(fb.runs, []string{"main"}) {
		t.Errorf("runs = %v, want [main]", fb.runs)
	}
	if len(fo.calls) != 1 {
		t.Fatalf("opener called %d times, want 1", len(fo.calls))
	}
	call := fo.calls[0]
	if filepath.Base(call.output) != "main.pdf" || call.source != root || call.line != 7 {
		t.Errorf("open call = %+v", call)
	}
	if len(rec.Statuses) == 0 || rec.Statuses[len(rec.Statuses)-1] != "success" {
		t.Errorf("statuses = %v, want trailing success", rec.Statuses)
	}
}

func TestBuildFansOutOverJobNames(t *testing.T) {
	comp, fb, fo, _ := newTestComposer(t, nil)
	dir := t.TempDir()
	root := writeDoc(t, dir, "main.tex", "% !TEX jobNames = foo, bar\n\\documentclass{article}\n")

	ok, err := comp.Build(context.Background(), root, BuildOptions{OpenResult: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !ok {
		t.Fatal("Build() = false, want true")
	}
	if !reflect.DeepEqual(fb.runs, []string{"foo", "bar"}) {
		t.Errorf("runs = %v, want [foo bar]", fb.runs)
	}
	var opened []string
	for _, call := range fo.calls {
		opened = append(opened, filepath.Base(call.output))
	}
	if !reflect.DeepEqual(opened, []string{"foo.pdf", "bar.pdf"}) {
		t.Errorf("opened = %v, want [foo.pdf bar.pdf]", opened)
	}
}

func TestBuildNoOpConditions(t *testing.T) {
	comp, fb, _, rec := newTestComposer(t, nil)
	dir := t.TempDir()
	notes := writeDoc(t, dir, "notes.md", "# notes\n")

	for _, path := range []string{"", "   ", notes} {
		ok, err := comp.Build(context.Background(), path, BuildOptions{})
		if err != nil {
			t.Fatalf("Build(%q) error = %v", path, err)
		}
		if ok {
			t.Errorf("Build(%q) = true, want false", path)
		}
	}
	if len(fb.runs) != 0 {
		t.Errorf("builder invoked for no-op conditions: %v", fb.runs)
	}
	if len(rec.Errors) != 0 {
		t.Errorf("no-op conditions logged errors: %v", rec.Errors)
	}
}

func TestBuildFailedJobContinuesToNext(t *testing.T) {
	comp, fb, _, rec := newTestComposer(t, nil)
	fb.exitCode = 12
	dir := t.TempDir()
	root := writeDoc(t, dir, "main.tex", "% !TEX jobNames = foo, bar\n\\documentclass{article}\n")

	ok, err := comp.Build(context.Background(), root, BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if ok {
		t.Fatal("Build() = true with failing jobs")
	}
	if len(fb.runs) != 2 {
		t.Errorf("runs = %v, want both jobs attempted", fb.runs)
	}
	if len(rec.Errors) != 2 {
		t.Errorf("errors = %v, want one per failed job", rec.Errors)
	}
	if rec.Statuses[len(rec.Statuses)-1] != "failed" {
		t.Errorf("statuses = %v, want trailing failed", rec.Statuses)
	}
}

func TestBuildUnparsableLogIsFailureDespiteExitZero(t *testing.T) {
	comp, fb, _, rec := newTestComposer(t, nil)
	fb.parseOK = false
	dir := t.TempDir()
	root := writeDoc(t, dir, "main.tex", "\\documentclass{article}\n")

	ok, err := comp.Build(context.Background(), root, BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if ok {
		t.Fatal("Build() = true without discoverable output")
	}
	if len(rec.Errors) == 0 {
		t.Error("expected an error message for unparsable log")
	}
}

func TestKillSurfacesKilledOutcome(t *testing.T) {
	comp, fb, _, rec := newTestComposer(t, nil)
	fb.block = true
	started := make(chan struct{})
	fb.started = started
	dir := t.TempDir()
	root := writeDoc(t, dir, "main.tex", "\\documentclass{article}\n")

	done := make(chan error, 1)
	go func() {
		_, err := comp.Build(context.Background(), root, BuildOptions{})
		done <- err
	}()

	// Wait until the job is actually running before killing it.
	<-started
	comp.Kill()

	err := <-done
	if !errors.Is(err, ErrKilled) {
		t.Fatalf("Build() error = %v, want ErrKilled", err)
	}
	found := false
	for _, status := range rec.Statuses {
		if status == "killed" {
			found = true
		}
	}
	if !found {
		t.Errorf("statuses = %v, want killed", rec.Statuses)
	}
}

func TestResolveOutputFilePathShortCircuits(t *testing.T) {
	comp, fb, _, _ := newTestComposer(t, nil)
	s := state.New(filepath.Join(t.TempDir(), "main.tex"))
	job := s.Jobs()[0]
	job.OutputFilePath = "/already/resolved/main.pdf"

	got := comp.ResolveOutputFilePath(fb, job)
	if got != "/already/resolved/main.pdf" {
		t.Errorf("ResolveOutputFilePath() = %q", got)
	}
	if fb.parseCalls != 0 {
		t.Errorf("parser invoked %d times for a pre-set path", fb.parseCalls)
	}
}

func TestResolveOutputFilePathRewritesForMove(t *testing.T) {
	comp, fb, _, _ := newTestComposer(t, nil)
	dir := t.TempDir()
	s := state.New(filepath.Join(dir, "main.tex"))
	s.OutputDirectory = "out"
	s.MoveResultToSourceDirectory = true
	job := s.Jobs()[0]
	job.OutputFilePath = filepath.Join(dir, "out", "main.pdf")

	got := comp.ResolveOutputFilePath(fb, job)
	want := filepath.Join(dir, "main.pdf")
	if got != want {
		t.Errorf("ResolveOutputFilePath() = %q, want %q", got, want)
	}
}

func TestMoveResultMovesOutputAndSynctex(t *testing.T) {
	comp, _, _, _ := newTestComposer(t, nil)
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeDoc(t, outDir, "main.pdf", "fresh")
	writeDoc(t, outDir, "main.synctex.gz", "sync")
	writeDoc(t, dir, "main.pdf", "stale")

	s := state.New(filepath.Join(dir, "main.tex"))
	s.OutputDirectory = "out"
	s.MoveResultToSourceDirectory = true
	job := s.Jobs()[0]
	job.OutputFilePath = filepath.Join(dir, "main.pdf")

	if err := comp.MoveResult(job); err != nil {
		t.Fatalf("MoveResult() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "main.pdf"))
	if err != nil {
		t.Fatalf("read moved output: %v", err)
	}
	if string(data) != "fresh" {
		t.Errorf("destination content = %q, want overwritten", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "main.synctex.gz")); err != nil {
		t.Errorf("synctex side-car not moved: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "main.pdf")); !os.IsNotExist(err) {
		t.Error("source output still present")
	}
}

func TestBuildDotOutputDirectoryKeepsResult(t *testing.T) {
	comp, _, _, rec := newTestComposer(t, nil)
	dir := t.TempDir()
	root := writeDoc(t, dir, "main.tex",
		"% !TEX outputDirectory = .\n% !TEX moveResultToSourceDirectory = true\n\\documentclass{article}\n")

	ok, err := comp.Build(context.Background(), root, BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !ok {
		t.Fatal("Build() = false, want true")
	}
	if _, err := os.Stat(filepath.Join(dir, "main.pdf")); err != nil {
		t.Fatalf("output missing after in-place move: %v", err)
	}
	if len(rec.Warnings) != 0 {
		t.Errorf("warnings = %v, want none for in-place move", rec.Warnings)
	}
}

func TestMoveResultSkipsMissingSynctex(t *testing.T) {
	comp, _, _, _ := newTestComposer(t, nil)
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeDoc(t, outDir, "main.pdf", "fresh")

	s := state.New(filepath.Join(dir, "main.tex"))
	s.OutputDirectory = "out"
	s.MoveResultToSourceDirectory = true
	job := s.Jobs()[0]
	job.OutputFilePath = filepath.Join(dir, "main.pdf")

	if err := comp.MoveResult(job); err != nil {
		t.Fatalf("MoveResult() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "main.synctex.gz")); !os.IsNotExist(err) {
		t.Error("unexpected synctex file at destination")
	}
}

func TestCleanRemovesPerJobArtifacts(t *testing.T) {
	comp, _, _, rec := newTestComposer(t, nil)
	comp.cfg.Build.CleanPatterns = []string{"{jobname}.aux", "{jobname}.log"}
	dir := t.TempDir()
	root := writeDoc(t, dir, "main.tex", "% !TEX jobNames = foo, bar\n\\documentclass{article}\n")
	writeDoc(t, dir, "foo.aux", "x")
	writeDoc(t, dir, "foo.log", "x")
	writeDoc(t, dir, "bar.aux", "x")
	writeDoc(t, dir, "keep.aux", "x")

	ok, err := comp.Clean(context.Background(), root)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if !ok {
		t.Fatal("Clean() = false, want true")
	}
	for _, gone := range []string{"foo.aux", "foo.log", "bar.aux"} {
		if _, err := os.Stat(filepath.Join(dir, gone)); !os.IsNotExist(err) {
			t.Errorf("%s not removed", gone)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.aux")); err != nil {
		t.Error("unrelated file removed")
	}
	if len(rec.Infos) == 0 {
		t.Error("expected a cleanup summary message")
	}
}

func TestCleanUnsupportedRootRemovesNothing(t *testing.T) {
	comp, _, _, _ := newTestComposer(t, nil)
	comp.cfg.Build.CleanPatterns = []string{"{jobname}.aux"}
	dir := t.TempDir()
	notes := writeDoc(t, dir, "notes.md", "# notes\n")
	writeDoc(t, dir, "notes.aux", "x")

	ok, err := comp.Clean(context.Background(), notes)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if ok {
		t.Fatal("Clean() = true for unsupported root")
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.aux")); err != nil {
		t.Error("file removed despite unsupported root")
	}
}

func TestRebuildPreservesSubfileKnowledge(t *testing.T) {
	comp, fb, _, _ := newTestComposer(t, nil)
	dir := t.TempDir()
	root := writeDoc(t, dir, "main.tex", "\\documentclass{article}\n")
	sub := writeDoc(t, dir, "chapter.tex", "% !TEX root = main.tex\n")

	if _, err := comp.Build(context.Background(), sub, BuildOptions{}); err != nil {
		t.Fatalf("first Build() error = %v", err)
	}
	if fb.lastState == nil || fb.lastState.FilePath != root {
		t.Fatalf("root resolution failed: %+v", fb.lastState)
	}

	if _, err := comp.Build(context.Background(), root, BuildOptions{Rebuild: true}); err != nil {
		t.Fatalf("rebuild Build() error = %v", err)
	}
	if !fb.lastState.ShouldRebuild {
		t.Error("ShouldRebuild not set on rebuild")
	}
	if !fb.lastState.HasSubfile(sub) {
		t.Error("subfile knowledge lost across rebuild")
	}
}

func TestSyncOpensEachJob(t *testing.T) {
	comp, _, fo, _ := newTestComposer(t, nil)
	dir := t.TempDir()
	root := writeDoc(t, dir, "main.tex", "% !TEX jobNames = foo, bar\n\\documentclass{article}\n")

	ok, err := comp.Sync(context.Background(), root, 42)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !ok {
		t.Fatal("Sync() = false, want true")
	}
	if len(fo.calls) != 2 {
		t.Fatalf("opener called %d times, want 2", len(fo.calls))
	}
	for _, call := range fo.calls {
		if call.line != 42 || call.source != root {
			t.Errorf("open call = %+v", call)
		}
	}
}

func TestBuildRecordsHistoryPerJob(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	store, err := history.Open(&cfg)
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	defer store.Close()

	comp, _, _, _ := newTestComposer(t, store)
	dir := t.TempDir()
	root := writeDoc(t, dir, "main.tex", "% !TEX jobNames = foo, bar\n\\documentclass{article}\n")

	if _, err := comp.Build(context.Background(), root, BuildOptions{}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	records, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("recorded %d rows, want 2", len(records))
	}
	for _, rec := range records {
		if rec.Outcome != history.OutcomeSucceeded || rec.OutputPath == "" {
			t.Errorf("unexpected record: %+v", rec)
		}
	}
}
