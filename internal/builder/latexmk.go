package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"texbuild/internal/config"
	"texbuild/internal/logging"
	"texbuild/internal/state"
)

var commandContext = exec.CommandContext

// ErrKilled marks a run terminated by cancellation rather than tool failure.
var ErrKilled = errors.New("build killed")

var (
	plainFamilyPattern = regexp.MustCompile(`^u?platex$`)
	pdfCapablePattern  = regexp.MustCompile(`^(pdf|xe|lua)latex$`)
)

var processableExtensions = map[string]struct{}{
	".tex":   {},
	".ltx":   {},
	".latex": {},
}

// Latexmk drives builds through the latexmk wrapper program.
type Latexmk struct {
	cfg    config.Latexmk
	logger *slog.Logger
}

// NewLatexmk constructs the latexmk driver.
func NewLatexmk(cfg config.Latexmk, logger *slog.Logger) *Latexmk {
	return &Latexmk{cfg: cfg, logger: logging.NewComponentLogger(logger, "latexmk")}
}

func (l *Latexmk) Name() string { return "latexmk" }

// CanProcess accepts sources with a recognized TeX extension.
func (l *Latexmk) CanProcess(s *state.BuildState) bool {
	if s == nil || strings.TrimSpace(s.FilePath) == "" {
		return false
	}
	ext := strings.ToLower(filepath.Ext(s.FilePath))
	_, ok := processableExtensions[ext]
	return ok
}

// ConstructArgs builds the latexmk invocation for one job. Deterministic:
// structurally equal jobs produce identical argument lists.
func (l *Latexmk) ConstructArgs(job *state.JobState) []string {
	s := job.Build()
	args := []string{
		"-interaction=nonstopmode",
		"-f",
		"-cd",
		"-file-line-error",
	}

	if s.ShouldRebuild {
		args = append(args, "-gg")
	}
	if job.Name != "" {
		args = append(args, "-jobname="+job.Name)
	}
	if s.EnableShellEscape {
		args = append(args, "-shell-escape")
	}
	if s.EnableSynctex {
		args = append(args, "-synctex=1")
	}
	if s.EnableExtendedBuildMode && l.cfg.LatexmkrcPath != "" {
		args = append(args, "-r", l.cfg.LatexmkrcPath)
	}

	args = append(args, l.engineArgs(s)...)

	if strings.TrimSpace(s.OutputDirectory) != "" {
		args = append(args, "-outdir="+s.OutputDirectory)
	}

	return append(args, s.FilePath)
}

// engineArgs selects the engine and format flags. Three branches: plain TeX
// family engines need -latex= plus a producer or format flag; PDF-capable
// engines building PDF take their dedicated short flag; everything else gets
// an explicit -latex= (omitted for the conventional default) and a format flag.
func (l *Latexmk) engineArgs(s *state.BuildState) []string {
	engine := strings.TrimSpace(s.Engine)
	format := strings.TrimSpace(s.OutputFormat)

	switch {
	case plainFamilyPattern.MatchString(engine):
		args := []string{"-latex=" + engine}
		if format == "pdf" {
			return append(args, l.producerArgs(s)...)
		}
		return append(args, "-"+format)
	case pdfCapablePattern.MatchString(engine) && format == "pdf":
		if engine == "pdflatex" {
			return []string{"-pdf"}
		}
		return []string{"-" + engine}
	default:
		var args []string
		if engine != "" && engine != "latex" {
			args = append(args, "-latex="+engine)
		}
		return append(args, "-"+format)
	}
}

// producerArgs selects the DVI/PS-to-PDF conversion flags when the engine
// cannot emit PDF directly.
func (l *Latexmk) producerArgs(s *state.BuildState) []string {
	switch s.Producer {
	case "ps2pdf":
		return []string{"-pdfps"}
	case "dvipdf":
		return []string{"-pdfdvi", "-e", `$dvipdf = 'dvipdf %O %S %D';`}
	default:
		return []string{"-pdfdvi", "-e", fmt.Sprintf(`$dvipdf = '%s %%O -o %%D %%S';`, s.Producer)}
	}
}

// Run executes latexmk for one job and returns the raw exit code. Nonzero
// exit is reported through the logger but is not an error; the caller decides
// success. An error is returned only when the process cannot be started or
// the context was canceled.
func (l *Latexmk) Run(ctx context.Context, job *state.JobState) (int, error) {
	s := job.Build()
	args := l.ConstructArgs(job)
	code, output, err := l.execLatexmk(ctx, s.ProjectPath, args)
	if err != nil {
		if ctx.Err() != nil {
			return code, fmt.Errorf("%w: %s", ErrKilled, job.EffectiveJobName())
		}
		return code, fmt.Errorf("run latexmk: %w", err)
	}
	if code != 0 {
		l.logStatusCode(code, job, output)
	}
	return code, nil
}

// execLatexmk spawns the tool with a raised max_print_line so log lines are
// not wrapped at the TeX default width, which would corrupt log parsing.
// When use_relative_paths is set, the trailing source argument is rewritten
// relative to the working directory: latexmk has a known regression handling
// special characters in absolute paths.
func (l *Latexmk) execLatexmk(ctx context.Context, dir string, args []string) (int, string, error) {
	if l.cfg.UseRelativePaths && len(args) > 0 {
		last := args[len(args)-1]
		if rel, err := filepath.Rel(dir, last); err == nil {
			args = append(append([]string(nil), args[:len(args)-1]...), rel)
		}
	}

	cmd := commandContext(ctx, l.cfg.Path, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "max_print_line=1000")

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	l.logger.Debug("invoking latexmk",
		logging.String("dir", dir),
		logging.String("args", strings.Join(args, " ")))

	err := cmd.Run()
	if err == nil {
		return 0, output.String(), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return exitErr.ExitCode(), output.String(), nil
	}
	return -1, output.String(), err
}

func (l *Latexmk) logStatusCode(code int, job *state.JobState, output string) {
	attrs := []logging.Attr{
		logging.Int(logging.FieldExitCode, code),
		logging.String(logging.FieldJob, job.EffectiveJobName()),
	}
	if tail := lastLine(output); tail != "" {
		attrs = append(attrs, logging.String("tool_output", tail))
	}
	l.logger.Error(StatusCodeMessage(code), logging.Args(attrs...)...)
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

var _ Builder = (*Latexmk)(nil)
