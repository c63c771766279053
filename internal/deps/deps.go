// Package deps evaluates the external programs and resources texbuild relies
// on: the latexmk driver, the configured engine and producer, the viewer, and
// free space on the output volume.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// Requirement defines an external dependency texbuild relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// minFreeBytes is the free-space floor below which builds are likely to fail
// while latexmk writes intermediate files.
const minFreeBytes = 64 << 20

// CheckFreeSpace reports whether the volume holding dir has enough room for
// build artifacts.
func CheckFreeSpace(dir string) Status {
	status := Status{Name: "Free space", Command: dir}
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		status.Detail = fmt.Sprintf("statfs %s: %v", dir, err)
		return status
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minFreeBytes {
		status.Detail = fmt.Sprintf("only %d MiB free on %s", free>>20, dir)
		return status
	}
	status.Available = true
	status.Detail = fmt.Sprintf("%d MiB free", free>>20)
	return status
}
