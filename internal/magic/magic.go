// Package magic scans TeX documents for magic comments: in-document build
// directives of the form
//
//	% !TEX key = value
//
// and resolves the effective root document by following "root" pointers
// transitively.
package magic

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var directivePattern = regexp.MustCompile(`^%\s*!(?i:tex)\s+([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*?)\s*$`)

// Result carries everything a scan discovers: the resolved root, every
// document visited on the root-pointer chain, and the merged directive set.
type Result struct {
	// RootPath is the effective root document, absolute.
	RootPath string
	// Visited lists every document scanned while chasing root pointers,
	// in walk order, ending with the root itself.
	Visited []string
	// Directives maps directive keys (as written) to raw string values.
	// When a key appears in several documents of the chain, the document
	// closest to the root wins: the build belongs to the root.
	Directives map[string]string
}

// Scan reads magic comments starting at path and follows root pointers until
// a document without one is reached. A cycle in the pointers stops the walk
// at the already-visited document. Unreadable documents end the walk at the
// last readable one; scanning never fails.
func Scan(path string) Result {
	result := Result{Directives: make(map[string]string)}
	visited := make(map[string]struct{})

	current := path
	for current != "" {
		if _, seen := visited[current]; seen {
			break
		}
		visited[current] = struct{}{}

		directives, ok := scanFile(current)
		if !ok {
			if len(result.Visited) == 0 {
				// Even an unreadable starting document is its own root.
				result.Visited = append(result.Visited, current)
				result.RootPath = current
			}
			break
		}
		result.Visited = append(result.Visited, current)
		result.RootPath = current

		// Later documents on the chain override earlier ones.
		for key, value := range directives {
			result.Directives[key] = value
		}

		next := ""
		if root, ok := lookupRoot(directives); ok {
			next = resolveAgainst(current, root)
		}
		current = next
	}
	return result
}

// scanFile extracts directives from a single document. The second result is
// false when the file cannot be read.
func scanFile(path string) (map[string]string, bool) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer file.Close()

	directives := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "%") {
			// Magic comments conventionally lead the document, but
			// some documents scatter them; keep scanning comments
			// only and skip source lines.
			continue
		}
		match := directivePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		key := match[1]
		value := strings.Trim(match[2], `"'`)
		if key == "" || value == "" {
			continue
		}
		directives[key] = value
	}
	return directives, true
}

func lookupRoot(directives map[string]string) (string, bool) {
	for key, value := range directives {
		if strings.EqualFold(key, "root") {
			return value, true
		}
	}
	return "", false
}

func resolveAgainst(current, target string) string {
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(filepath.Dir(current), target)
}
