package builder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"texbuild/internal/config"
	"texbuild/internal/logging"
	"texbuild/internal/state"
)

func newDriver() *Latexmk {
	return NewLatexmk(config.Latexmk{Path: "latexmk", MinVersion: "4.41"}, logging.NewNop())
}

func stubCommand(t *testing.T, capture *[][]string, env ...string) {
	t.Helper()
	// execLatexmk rebuilds cmd.Env from os.Environ(), so the helper-process
	// variables must live in the test process environment instead of on the
	// returned *exec.Cmd.
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	for _, kv := range env {
		key, value, _ := strings.Cut(kv, "=")
		t.Setenv(key, value)
	}
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if capture != nil {
			*capture = append(*capture, append([]string{name}, args...))
		}
		return exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Print(os.Getenv("LATEXMK_HELPER_STDOUT"))
	code, _ := strconv.Atoi(os.Getenv("LATEXMK_HELPER_EXIT"))
	os.Exit(code)
}

func TestCanProcess(t *testing.T) {
	driver := newDriver()
	cases := map[string]bool{
		"/work/main.tex":   true,
		"/work/main.ltx":   true,
		"/work/main.latex": true,
		"/work/main.TEX":   true,
		"/work/notes.md":   false,
		"/work/main":       false,
		"":                 false,
	}
	for path, want := range cases {
		var s *state.BuildState
		if path != "" {
			s = state.New(path)
		} else {
			s = &state.BuildState{}
		}
		if got := driver.CanProcess(s); got != want {
			t.Errorf("CanProcess(%q) = %v, want %v", path, got, want)
		}
	}
	if driver.CanProcess(nil) {
		t.Error("CanProcess(nil) = true")
	}
}

func TestConstructArgsDeterministic(t *testing.T) {
	driver := newDriver()
	s := state.New("/work/main.tex")
	s.EnableSynctex = true
	s.SetJobNames([]string{"draft"})

	first := driver.ConstructArgs(s.Jobs()[0])
	second := driver.ConstructArgs(s.Jobs()[0])
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("args differ between calls: %v vs %v", first, second)
	}
}

func TestConstructArgsBaseFlags(t *testing.T) {
	driver := newDriver()
	s := state.New("/work/main.tex")
	args := driver.ConstructArgs(s.Jobs()[0])

	for _, want := range []string{"-interaction=nonstopmode", "-f", "-cd", "-file-line-error"} {
		if !contains(args, want) {
			t.Errorf("args missing %q: %v", want, args)
		}
	}
	if args[len(args)-1] != "/work/main.tex" {
		t.Fatalf("source path must come last: %v", args)
	}
}

func TestConstructArgsEngineBranching(t *testing.T) {
	driver := newDriver()
	cases := []struct {
		engine, format string
		want           []string
		absent         []string
	}{
		{"pdflatex", "pdf", []string{"-pdf"}, []string{"-latex=pdflatex", "-pdflatex"}},
		{"xelatex", "pdf", []string{"-xelatex"}, []string{"-latex=xelatex", "-pdf"}},
		{"lualatex", "pdf", []string{"-lualatex"}, nil},
		{"platex", "dvi", []string{"-latex=platex", "-dvi"}, nil},
		{"uplatex", "dvi", []string{"-latex=uplatex", "-dvi"}, nil},
		{"latex", "dvi", []string{"-dvi"}, []string{"-latex=latex"}},
		{"xelatex", "dvi", []string{"-latex=xelatex", "-dvi"}, nil},
	}
	for _, tc := range cases {
		s := state.New("/work/main.tex")
		s.Engine = tc.engine
		s.OutputFormat = tc.format
		args := driver.ConstructArgs(s.Jobs()[0])
		for _, want := range tc.want {
			if !contains(args, want) {
				t.Errorf("%s/%s: missing %q in %v", tc.engine, tc.format, want, args)
			}
		}
		for _, forbidden := range tc.absent {
			if contains(args, forbidden) {
				t.Errorf("%s/%s: unexpected %q in %v", tc.engine, tc.format, forbidden, args)
			}
		}
	}
}

func TestConstructArgsProducer(t *testing.T) {
	driver := newDriver()

	s := state.New("/work/main.tex")
	s.Engine = "platex"
	s.OutputFormat = "pdf"
	s.Producer = "ps2pdf"
	if args := driver.ConstructArgs(s.Jobs()[0]); !contains(args, "-pdfps") {
		t.Errorf("ps2pdf producer: %v", args)
	}

	s.Producer = "dvipdf"
	s.SetJobNames(nil)
	args := driver.ConstructArgs(s.Jobs()[0])
	if !contains(args, "-pdfdvi") || !contains(args, `$dvipdf = 'dvipdf %O %S %D';`) {
		t.Errorf("dvipdf producer: %v", args)
	}

	s.Producer = "dvipdfmx"
	s.SetJobNames(nil)
	args = driver.ConstructArgs(s.Jobs()[0])
	if !contains(args, `$dvipdf = 'dvipdfmx %O -o %D %S';`) {
		t.Errorf("templated producer: %v", args)
	}
}

func TestConstructArgsConditionalFlags(t *testing.T) {
	driver := NewLatexmk(config.Latexmk{Path: "latexmk", LatexmkrcPath: "/opt/texbuild/latexmkrc"}, logging.NewNop())
	s := state.New("/work/main.tex")
	s.ShouldRebuild = true
	s.EnableShellEscape = true
	s.EnableSynctex = true
	s.EnableExtendedBuildMode = true
	s.OutputDirectory = "out"
	s.SetJobNames([]string{"draft"})

	args := driver.ConstructArgs(s.Jobs()[0])
	for _, want := range []string{"-gg", "-jobname=draft", "-shell-escape", "-synctex=1", "-outdir=out"} {
		if !contains(args, want) {
			t.Errorf("missing %q in %v", want, args)
		}
	}
	if !containsPair(args, "-r", "/opt/texbuild/latexmkrc") {
		t.Errorf("missing extended-mode rc args: %v", args)
	}
}

func TestRunReturnsRawExitCode(t *testing.T) {
	var captured [][]string
	stubCommand(t, &captured, "LATEXMK_HELPER_EXIT=12")

	driver := newDriver()
	s := state.New(filepath.Join(t.TempDir(), "main.tex"))
	code, err := driver.Run(context.Background(), s.Jobs()[0])
	if err != nil {
		t.Fatalf("Run returned error for nonzero exit: %v", err)
	}
	if code != 12 {
		t.Fatalf("exit code = %d, want 12", code)
	}
	if len(captured) != 1 {
		t.Fatalf("expected one invocation, got %d", len(captured))
	}
}

func TestRunKilledContext(t *testing.T) {
	stubCommand(t, nil, "LATEXMK_HELPER_EXIT=0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	driver := newDriver()
	s := state.New(filepath.Join(t.TempDir(), "main.tex"))
	_, err := driver.Run(ctx, s.Jobs()[0])
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestExecLatexmkRelativePathRewrite(t *testing.T) {
	var captured [][]string
	stubCommand(t, &captured, "LATEXMK_HELPER_EXIT=0")

	dir := t.TempDir()
	driver := NewLatexmk(config.Latexmk{Path: "latexmk", UseRelativePaths: true}, logging.NewNop())
	s := state.New(filepath.Join(dir, "main.tex"))
	if _, err := driver.Run(context.Background(), s.Jobs()[0]); err != nil {
		t.Fatalf("Run: %v", err)
	}

	args := captured[0]
	if got := args[len(args)-1]; got != "main.tex" {
		t.Fatalf("trailing source arg = %q, want relative main.tex", got)
	}
}

func TestCheckRuntimeClassification(t *testing.T) {
	cases := []struct {
		name   string
		env    []string
		want   RuntimeLevel
		broken bool
	}{
		{"ok", []string{"LATEXMK_HELPER_STDOUT=Latexmk, John Collins, 7 Apr. 2024. Version 4.83"}, RuntimeOK, false},
		{"old", []string{"LATEXMK_HELPER_STDOUT=Latexmk Version 4.30"}, RuntimeWarning, false},
		{"unparsable", []string{"LATEXMK_HELPER_STDOUT=no version here"}, RuntimeWarning, false},
		{"missing", []string{"LATEXMK_HELPER_EXIT=1"}, RuntimeError, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stubCommand(t, nil, tc.env...)
			status := newDriver().CheckRuntime(context.Background())
			if status.Level != tc.want {
				t.Fatalf("level = %q, want %q (detail: %s)", status.Level, tc.want, status.Detail)
			}
		})
	}
}

func TestRegistrySelection(t *testing.T) {
	registry := NewRegistry(newDriver())
	if b := registry.BuilderFor(state.New("/work/main.tex")); b == nil {
		t.Fatal("expected latexmk for .tex")
	}
	if b := registry.BuilderFor(state.New("/work/readme.md")); b != nil {
		t.Fatalf("expected nil for unsupported file, got %s", b.Name())
	}
	if b := registry.BuilderFor(nil); b != nil {
		t.Fatal("expected nil for nil state")
	}
}

func TestStatusCodeMessages(t *testing.T) {
	cases := map[int]string{
		10: "Bad command-line arguments",
		11: "File specified on command line not found",
		12: "Failure in some part of making files",
		13: "Error in initialization file",
		20: "Probable bug, or error propagated from a called program",
		99: "Unknown failure",
	}
	for code, want := range cases {
		if got := StatusCodeMessage(code); got != want {
			t.Errorf("StatusCodeMessage(%d) = %q, want %q", code, got, want)
		}
	}
}

func contains(args []string, want string) bool {
	for _, arg := range args {
		if arg == want {
			return true
		}
	}
	return false
}

func containsPair(args []string, first, second string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == first && args[i+1] == second {
			return true
		}
	}
	return false
}
