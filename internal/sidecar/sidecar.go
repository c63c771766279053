// Package sidecar loads per-document settings files. A sidecar is a TOML
// property bag living next to the root document, either named after it
// (main.texbuild.toml for main.tex) or shared by the directory
// (.texbuild.toml). Values are treated as strings; structure beyond one
// level of keys is ignored.
package sidecar

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Settings is the parsed property bag. Keys keep their original spelling so
// resolver alias chains can distinguish jobNames from jobnames.
type Settings map[string]string

// Load reads the sidecar settings for the given root document. A missing file
// yields an empty bag and no error; absence simply means the layer is skipped.
// A malformed file is an error so the user learns their settings are ignored.
func Load(rootPath string) (Settings, string, error) {
	for _, candidate := range candidatePaths(rootPath) {
		raw, err := os.ReadFile(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, candidate, fmt.Errorf("read sidecar settings: %w", err)
		}
		settings, err := parse(raw)
		if err != nil {
			return nil, candidate, fmt.Errorf("parse sidecar settings %s: %w", candidate, err)
		}
		return settings, candidate, nil
	}
	return Settings{}, "", nil
}

func candidatePaths(rootPath string) []string {
	dir := filepath.Dir(rootPath)
	base := strings.TrimSuffix(filepath.Base(rootPath), filepath.Ext(rootPath))
	return []string{
		filepath.Join(dir, base+".texbuild.toml"),
		filepath.Join(dir, ".texbuild.toml"),
	}
}

func parse(raw []byte) (Settings, error) {
	var doc map[string]any
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	settings := make(Settings, len(doc))
	for key, value := range doc {
		str, ok := stringify(value)
		if !ok {
			continue
		}
		settings[key] = str
	}
	return settings, nil
}

// stringify flattens TOML scalars and scalar arrays into the string form the
// resolver consumes. Tables and nested arrays are dropped.
func stringify(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := stringify(item)
			if !ok {
				return "", false
			}
			parts = append(parts, str)
		}
		return strings.Join(parts, " "), true
	default:
		return "", false
	}
}

// Keys returns the sorted key set, used by diagnostics.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
