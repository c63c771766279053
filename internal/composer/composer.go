// Package composer orchestrates builds: it resolves the layered configuration
// for a document, fans out over job names, drives the selected builder, and
// handles the post-build steps (output resolution, artifact relocation,
// cleanup, viewer launch). Jobs run strictly sequentially so diagnostic order
// in the sink is deterministic.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"texbuild/internal/builder"
	"texbuild/internal/config"
	"texbuild/internal/dicy"
	"texbuild/internal/fileutil"
	"texbuild/internal/history"
	"texbuild/internal/logging"
	"texbuild/internal/opener"
	"texbuild/internal/resolver"
	"texbuild/internal/sink"
	"texbuild/internal/state"
)

// BuildOptions controls one Build invocation.
type BuildOptions struct {
	// Rebuild forces a full rebuild, discarding incremental tool caches.
	Rebuild bool
	// OpenResult launches the viewer on each successful job output.
	OpenResult bool
	// LineNumber is forwarded to SyncTeX-capable viewers.
	LineNumber int
}

// Composer is the orchestration entry point. At most one build is in flight
// per instance; concurrent calls serialize on an internal mutex.
type Composer struct {
	cfg      *config.Config
	logger   *slog.Logger
	resolver *resolver.Resolver
	registry *builder.Registry
	openers  *opener.Registry
	out      sink.Sink
	cache    *state.Cache
	store    *history.Store
	engine   *dicy.Engine

	mu sync.Mutex

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// New constructs a Composer. The history store may be nil, in which case no
// build records are persisted.
func New(cfg *config.Config, logger *slog.Logger, registry *builder.Registry, openers *opener.Registry, out sink.Sink, store *history.Store) *Composer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if out == nil {
		out = sink.NewLoggerSink(logger)
	}
	return &Composer{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "composer"),
		resolver: resolver.New(cfg, logger),
		registry: registry,
		openers:  openers,
		out:      out,
		cache:    state.NewCache(),
		store:    store,
	}
}

// Build compiles the document at path. The boolean is false for no-op
// conditions (empty path, no builder able to process the file) and for builds
// where any job failed; an error is returned only for unrecoverable conditions
// such as a kill or a process that could not be spawned.
func (c *Composer) Build(ctx context.Context, path string, opts BuildOptions) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(path) == "" {
		return false, nil
	}
	if c.cfg.Build.Backend == config.BackendDiCy {
		return c.buildWithEngine(ctx, path, opts)
	}

	s, err := c.initializeBuild(path, opts.Rebuild)
	if err != nil {
		return false, err
	}
	b := c.registry.BuilderFor(s)
	if b == nil {
		return false, nil
	}

	log := c.logger.With(logging.Args(
		logging.String(logging.FieldRequestID, uuid.NewString()),
		logging.String(logging.FieldRoot, s.FilePath))...)
	log.Info("starting build",
		logging.String("builder", b.Name()),
		logging.Int("jobs", len(s.Jobs())))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.setCancel(cancel)
	defer c.clearCancel()

	success := true
	for _, job := range s.Jobs() {
		ok, err := c.runJob(runCtx, log, b, job, opts)
		if err != nil {
			return false, err
		}
		if !ok {
			success = false
		}
	}

	if success {
		c.out.ShowStatus("success")
	} else {
		c.out.ShowStatus("failed")
	}
	return success, nil
}

// runJob drives one job through run, log parsing, output resolution,
// relocation, and viewer launch. A false return marks a per-job failure that
// does not stop later jobs; an error stops the build.
func (c *Composer) runJob(ctx context.Context, log *slog.Logger, b builder.Builder, job *state.JobState, opts BuildOptions) (bool, error) {
	s := job.Build()
	jobName := job.EffectiveJobName()
	start := time.Now()

	jobCtx := ctx
	if timeout := c.cfg.Latexmk.TimeoutSeconds; timeout > 0 {
		var cancelTimeout context.CancelFunc
		jobCtx, cancelTimeout = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancelTimeout()
	}

	code, err := b.Run(jobCtx, job)
	if err != nil {
		if errors.Is(err, builder.ErrKilled) {
			c.out.ShowStatus("killed")
			c.record(ctx, job, history.OutcomeKilled, start)
			return false, err
		}
		c.out.Error(fmt.Sprintf("job %q: %v", jobName, err))
		c.record(ctx, job, history.OutcomeFailed, start)
		return false, Wrap(ErrExternalTool, b.Name(), "run", "cannot start build tool", err)
	}

	parsed := b.ParseLogAndFdbFiles(job)
	if len(job.LogMessages) > 0 {
		c.out.ShowMessages(jobName, job.LogMessages)
	}

	if code != 0 {
		c.out.Error(fmt.Sprintf("build failed for job %q: %s", jobName, builder.StatusCodeMessage(code)))
		c.record(ctx, job, history.OutcomeFailed, start)
		return false, nil
	}
	if !parsed {
		c.out.Error(fmt.Sprintf("build produced no readable log for job %q", jobName))
		c.record(ctx, job, history.OutcomeFailed, start)
		return false, nil
	}

	outputPath := c.ResolveOutputFilePath(b, job)
	if outputPath == "" {
		// Exit code 0 with no discoverable artifact is still a failure to
		// the user.
		c.out.Error(fmt.Sprintf("no output file found for job %q", jobName))
		c.record(ctx, job, history.OutcomeFailed, start)
		return false, nil
	}

	if s.MoveResultToSourceDirectory && strings.TrimSpace(s.OutputDirectory) != "" {
		if err := c.MoveResult(job); err != nil {
			c.out.Warning(fmt.Sprintf("relocate result for job %q: %v", jobName, err))
		}
	}

	log.Info("job finished",
		logging.String(logging.FieldJob, jobName),
		logging.String("output", outputPath),
		logging.Duration("elapsed", time.Since(start)))
	c.out.Info(fmt.Sprintf("built %s", outputPath))
	c.record(ctx, job, history.OutcomeSucceeded, start)

	if opts.OpenResult {
		c.openOutput(ctx, outputPath, s.FilePath, opts.LineNumber)
	}
	return true, nil
}

// initializeBuild resolves the layered configuration for path and reconciles
// the result with the cache. Each call resolves all layers fresh so live edits
// to magic comments and sidecar files are honored; subfile knowledge
// accumulated under the same root carries over.
func (c *Composer) initializeBuild(path string, rebuild bool) (*state.BuildState, error) {
	resolved, err := c.resolver.Resolve(path)
	if err != nil {
		return nil, Wrap(ErrConfiguration, "resolver", "resolve", "layered configuration", err)
	}
	if cached := c.cache.Lookup(resolved.FilePath); cached != nil {
		for _, sub := range cached.Subfiles() {
			resolved.AddSubfile(sub)
		}
	}
	resolved.ShouldRebuild = rebuild
	c.cache.Store(resolved)
	return resolved, nil
}

// ResolveOutputFilePath returns the job's output path, parsing the tool's log
// and fdb files when it is not yet known. Empty means the path could not be
// determined; the caller treats that as a failure. When results are moved to
// the source directory the returned path is the post-move destination.
func (c *Composer) ResolveOutputFilePath(b builder.Builder, job *state.JobState) string {
	if job.OutputFilePath == "" {
		if !b.ParseLogAndFdbFiles(job) {
			return ""
		}
	}
	if job.OutputFilePath == "" {
		return ""
	}
	s := job.Build()
	if s.MoveResultToSourceDirectory && strings.TrimSpace(s.OutputDirectory) != "" {
		job.OutputFilePath = filepath.Join(s.ProjectPath, filepath.Base(job.OutputFilePath))
	}
	return job.OutputFilePath
}

// MoveResult relocates the job's output file from the output directory to the
// source directory, overwriting any existing destination. The SyncTeX
// side-car moves the same way; its absence is silently skipped.
func (c *Composer) MoveResult(job *state.JobState) error {
	s := job.Build()
	base := filepath.Base(job.OutputFilePath)
	src := filepath.Join(s.EffectiveOutputDirectory(), base)
	dst := filepath.Join(s.ProjectPath, base)
	if err := fileutil.MoveFile(src, dst); err != nil {
		return fmt.Errorf("move %s: %w", base, err)
	}

	syncName := strings.TrimSuffix(base, filepath.Ext(base)) + ".synctex.gz"
	syncSrc := filepath.Join(s.EffectiveOutputDirectory(), syncName)
	if !fileutil.Exists(syncSrc) {
		return nil
	}
	if err := fileutil.MoveFile(syncSrc, filepath.Join(s.ProjectPath, syncName)); err != nil {
		return fmt.Errorf("move %s: %w", syncName, err)
	}
	return nil
}

// Clean removes generated artifacts for the document at path without running
// a compile. Clean patterns are evaluated per job with {jobname} substituted,
// globbed relative to the project directory, and the union removed. Missing
// paths are silent no-ops; removal errors are reported but do not abort the
// remaining items. An unsupported root removes nothing.
func (c *Composer) Clean(ctx context.Context, path string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(path) == "" {
		return false, nil
	}
	s, err := c.initializeBuild(path, false)
	if err != nil {
		return false, err
	}
	if c.registry.BuilderFor(s) == nil {
		return false, nil
	}

	targets := make(map[string]struct{})
	projectFS := os.DirFS(s.ProjectPath)
	for _, job := range s.Jobs() {
		jobName := job.EffectiveJobName()
		for _, pattern := range s.CleanPatterns {
			glob := strings.ReplaceAll(pattern, "{jobname}", jobName)
			matches, err := doublestar.Glob(projectFS, filepath.ToSlash(glob))
			if err != nil {
				c.out.Warning(fmt.Sprintf("invalid clean pattern %q: %v", pattern, err))
				continue
			}
			for _, match := range matches {
				targets[filepath.Join(s.ProjectPath, filepath.FromSlash(match))] = struct{}{}
			}
		}
	}

	paths := make([]string, 0, len(targets))
	for target := range targets {
		paths = append(paths, target)
	}
	sort.Strings(paths)

	removed := 0
	for _, target := range paths {
		if err := fileutil.RemoveIfExists(target); err != nil {
			c.out.Error(fmt.Sprintf("remove %s: %v", target, err))
			continue
		}
		removed++
	}

	c.out.Info(fmt.Sprintf("cleaned %d generated files", removed))
	start := time.Now()
	for _, job := range s.Jobs() {
		c.record(ctx, job, history.OutcomeCleaned, start)
	}
	return true, nil
}

// Sync opens the viewer at the source position for every job whose output can
// be located. Unresolvable jobs log a warning and are skipped.
func (c *Composer) Sync(ctx context.Context, path string, line int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(path) == "" {
		return false, nil
	}
	s, err := c.initializeBuild(path, false)
	if err != nil {
		return false, err
	}
	b := c.registry.BuilderFor(s)
	if b == nil {
		return false, nil
	}

	opened := false
	for _, job := range s.Jobs() {
		outputPath := c.ResolveOutputFilePath(b, job)
		if outputPath == "" {
			c.out.Warning(fmt.Sprintf("cannot locate output for job %q", job.EffectiveJobName()))
			continue
		}
		c.openOutput(ctx, outputPath, s.FilePath, line)
		opened = true
	}
	return opened, nil
}

// Kill cancels the in-flight build, if any. The interrupted build reports
// ErrKilled rather than a tool failure.
func (c *Composer) Kill() {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	if c.cancel != nil {
		c.logger.Info("kill requested")
		c.cancel()
	}
}

// buildWithEngine runs the alternate monolithic backend. The engine reports a
// single boolean across all targets; on success every non-SyncTeX target is
// opened.
func (c *Composer) buildWithEngine(ctx context.Context, path string, opts BuildOptions) (bool, error) {
	if c.engine == nil {
		c.engine = dicy.New(c.cfg.DiCy, c.logger)
	}
	inv, err := c.engine.Initialize(path, opts.Rebuild, !opts.Rebuild)
	if err != nil {
		return false, Wrap(ErrConfiguration, "dicy", "initialize", "prepare engine run", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.setCancel(cancel)
	defer c.clearCancel()

	start := time.Now()
	ok, targets, err := c.engine.Run(runCtx, inv, c.cfg.Build.OutputFormat)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.out.ShowStatus("killed")
			c.recordEngine(ctx, inv.Root, history.OutcomeKilled, "", start)
			return false, Wrap(ErrKilled, "dicy", "run", "build killed", err)
		}
		return false, Wrap(ErrExternalTool, "dicy", "run", "engine run failed", err)
	}
	if !ok {
		c.out.ShowStatus("failed")
		c.recordEngine(ctx, inv.Root, history.OutcomeFailed, "", start)
		return false, nil
	}

	output := ""
	if len(targets) > 0 {
		output = targets[0]
	}
	c.out.ShowStatus("success")
	c.recordEngine(ctx, inv.Root, history.OutcomeSucceeded, output, start)

	if opts.OpenResult {
		for _, target := range targets {
			if strings.HasSuffix(target, ".synctex.gz") {
				continue
			}
			c.openOutput(ctx, target, inv.Root, opts.LineNumber)
		}
	}
	return true, nil
}

func (c *Composer) openOutput(ctx context.Context, outputPath, sourcePath string, line int) {
	o := c.openers.OpenerFor(outputPath)
	if o == nil {
		c.out.Warning(fmt.Sprintf("no viewer available for %s", filepath.Base(outputPath)))
		return
	}
	if err := o.Open(ctx, outputPath, sourcePath, line); err != nil {
		c.out.Warning(fmt.Sprintf("open %s: %v", filepath.Base(outputPath), err))
		return
	}
	c.logger.Debug("opened result",
		logging.String("viewer", o.Name()),
		logging.String("output", outputPath))
}

func (c *Composer) record(ctx context.Context, job *state.JobState, outcome string, start time.Time) {
	if c.store == nil {
		return
	}
	s := job.Build()
	rec := history.Record{
		Root:       s.FilePath,
		Job:        job.EffectiveJobName(),
		Engine:     s.Engine,
		Format:     s.OutputFormat,
		Outcome:    outcome,
		OutputPath: job.OutputFilePath,
		Duration:   time.Since(start),
	}
	if err := c.store.Append(ctx, rec); err != nil {
		c.logger.Warn("record build history", logging.Error(err))
	}
}

func (c *Composer) recordEngine(ctx context.Context, root, outcome, output string, start time.Time) {
	if c.store == nil {
		return
	}
	rec := history.Record{
		Root:       root,
		Engine:     "dicy",
		Format:     c.cfg.Build.OutputFormat,
		Outcome:    outcome,
		OutputPath: output,
		Duration:   time.Since(start),
	}
	if err := c.store.Append(ctx, rec); err != nil {
		c.logger.Warn("record build history", logging.Error(err))
	}
}

func (c *Composer) setCancel(cancel context.CancelFunc) {
	c.cancelMu.Lock()
	c.cancel = cancel
	c.cancelMu.Unlock()
}

func (c *Composer) clearCancel() {
	c.cancelMu.Lock()
	c.cancel = nil
	c.cancelMu.Unlock()
}
