package builder

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"texbuild/internal/state"
)

var (
	outputWrittenPattern = regexp.MustCompile(`Output written on\s+"?(.+?)"?\s+\(\d+ page`)
	fileLinePattern      = regexp.MustCompile(`^(\./[^:]+|[^:\s][^:]*\.\w+):(\d+):\s*(.*)$`)
	latexWarningPattern  = regexp.MustCompile(`^(?:LaTeX|Package \S+) Warning:\s*(.*?)(?:\s+on input line (\d+)\.)?$`)
	bareErrorPattern     = regexp.MustCompile(`^!\s*(.*)$`)
	boxWarningPattern    = regexp.MustCompile(`^(Overfull|Underfull) \\[hv]box .* at lines (\d+)--(\d+)`)
)

// ParseLogAndFdbFiles reads the log and fdb_latexmk files a run left behind,
// populating the job's output path and diagnostics. Returns false when no
// output path could be determined, which the composer treats as a build
// failure even on exit code 0.
func (l *Latexmk) ParseLogAndFdbFiles(job *state.JobState) bool {
	s := job.Build()
	base := job.EffectiveJobName()
	outDir := s.EffectiveOutputDirectory()

	logPath := filepath.Join(outDir, base+".log")
	fdbPath := filepath.Join(outDir, base+".fdb_latexmk")

	outputPath := ""
	if raw, err := os.ReadFile(logPath); err == nil {
		outputPath = l.parseLog(decodeLog(raw), job)
	}
	if outputPath == "" {
		if raw, err := os.ReadFile(fdbPath); err == nil {
			outputPath = parseFdb(decodeLog(raw), s.OutputFormat)
		}
	}
	if outputPath == "" {
		return false
	}

	job.OutputFilePath = l.resolveArtifactPath(s, outputPath)
	return true
}

// parseLog extracts the written-output path and diagnostic messages.
func (l *Latexmk) parseLog(content string, job *state.JobState) string {
	outputPath := ""
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if match := outputWrittenPattern.FindStringSubmatch(line); match != nil {
			outputPath = match[1]
			continue
		}
		if match := fileLinePattern.FindStringSubmatch(line); match != nil {
			lineNo, _ := strconv.Atoi(match[2])
			job.AppendMessage(state.LogMessage{
				Severity: state.SeverityError,
				Text:     strings.TrimSpace(match[3]),
				File:     match[1],
				Line:     lineNo,
				EndLine:  lineNo,
			})
			continue
		}
		if match := bareErrorPattern.FindStringSubmatch(line); match != nil {
			text := strings.TrimSpace(match[1])
			if text == "" {
				continue
			}
			job.AppendMessage(state.LogMessage{Severity: state.SeverityError, Text: text})
			continue
		}
		if match := boxWarningPattern.FindStringSubmatch(line); match != nil {
			start, _ := strconv.Atoi(match[2])
			end, _ := strconv.Atoi(match[3])
			job.AppendMessage(state.LogMessage{
				Severity: state.SeverityWarning,
				Text:     strings.TrimSpace(line),
				Line:     start,
				EndLine:  end,
			})
			continue
		}
		if match := latexWarningPattern.FindStringSubmatch(line); match != nil {
			msg := state.LogMessage{Severity: state.SeverityWarning, Text: strings.TrimSpace(match[1])}
			if match[2] != "" {
				msg.Line, _ = strconv.Atoi(match[2])
				msg.EndLine = msg.Line
			}
			job.AppendMessage(msg)
		}
	}
	return outputPath
}

// parseFdb scans the fdb_latexmk dependency file's "(generated)" sections for
// a file matching the desired output format.
func parseFdb(content, format string) string {
	wantExt := "." + strings.ToLower(strings.TrimSpace(format))
	inGenerated := false
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "(generated)":
			inGenerated = true
		case strings.HasPrefix(line, "["), line == "":
			inGenerated = false
		case inGenerated:
			candidate := strings.Trim(line, `"`)
			if strings.EqualFold(filepath.Ext(candidate), wantExt) {
				return candidate
			}
		}
	}
	return ""
}

// resolveArtifactPath makes a log-reported path absolute. Relative paths are
// tried against the project directory first (latexmk runs with -cd), then
// against the effective output directory.
func (l *Latexmk) resolveArtifactPath(s *state.BuildState, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	inProject := filepath.Join(s.ProjectPath, path)
	if _, err := os.Stat(inProject); err == nil {
		return inProject
	}
	inOutput := filepath.Join(s.EffectiveOutputDirectory(), filepath.Base(path))
	if _, err := os.Stat(inOutput); err == nil {
		return inOutput
	}
	return inProject
}

// decodeLog interprets raw log bytes. TeX engines frequently emit Latin-1;
// invalid UTF-8 falls back to an ISO 8859-1 decode so no message text is lost
// to replacement runes.
func decodeLog(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(bytes.ToValidUTF8(raw, []byte("?")))
	}
	return string(decoded)
}
