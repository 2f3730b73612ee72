package metadata

import (
	"path/filepath"
	"regexp"
)

// benchmarkDirPattern matches the run folder naming used by the harness,
// e.g. "Benchmark-42-7".
var benchmarkDirPattern = regexp.MustCompile(`Benchmark-\d+-\d+`)

// ResolveInstanceID picks the instance id in order: the value declared in
// metadata, the caller's fallback, then the name of the directory two
// levels above benchmarkDir when it looks like a harness run folder.
func ResolveInstanceID(declared, fallback, benchmarkDir string) string {
	if declared != "" {
		return declared
	}

	if fallback != "" {
		return fallback
	}

	return inferInstanceID(benchmarkDir)
}

func inferInstanceID(benchmarkDir string) string {
	if benchmarkDir == "" {
		return ""
	}

	grandparent, err := filepath.Abs(filepath.Join(benchmarkDir, "..", ".."))
	if err != nil {
		return ""
	}

	name := filepath.Base(grandparent)
	if !benchmarkDirPattern.MatchString(name) {
		return ""
	}

	return name
}
