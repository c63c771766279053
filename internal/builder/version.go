package builder

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
)

var versionPattern = regexp.MustCompile(`Version\s+(\S+)`)

// CheckRuntime probes latexmk availability. Outcomes: missing tool or
// nonzero exit is an error; an unparsable version string is a warning; a
// version below the configured minimum is a warning; otherwise ok.
//
// The comparison is a plain lexical string comparison against the minimum,
// which misorders versions like "4.9" vs "4.10".
func (l *Latexmk) CheckRuntime(ctx context.Context) RuntimeStatus {
	cmd := commandContext(ctx, l.cfg.Path, "-version")
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return RuntimeStatus{
			Level:  RuntimeError,
			Detail: fmt.Sprintf("%s not usable: %v", l.cfg.Path, err),
		}
	}

	match := versionPattern.FindSubmatch(output.Bytes())
	if match == nil {
		return RuntimeStatus{
			Level:  RuntimeWarning,
			Detail: fmt.Sprintf("%s present but version string not recognized", l.cfg.Path),
		}
	}

	version := string(match[1])
	if version < l.cfg.MinVersion {
		return RuntimeStatus{
			Level:   RuntimeWarning,
			Version: version,
			Detail:  fmt.Sprintf("%s version %s is older than required %s", l.cfg.Path, version, l.cfg.MinVersion),
		}
	}
	return RuntimeStatus{
		Level:   RuntimeOK,
		Version: version,
		Detail:  fmt.Sprintf("%s version %s", l.cfg.Path, version),
	}
}
