// Package resulttree enumerates the per-test, per-client units of work in a
// benchmark run directory:
//
//	<benchmark_dir>/<test_name>/client-*/latency_csv.hgrm
//	<benchmark_dir>/<test_name>/client-*/*-yardstick-output/ThroughputLatencyProbe.csv
package resulttree

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"github.com/mattn/go-zglob"
)

const (
	// LatencyFileName is the histogram CSV inside every client directory.
	LatencyFileName = "latency_csv.hgrm"

	// ThroughputFileName is the time-series CSV inside a yardstick directory.
	ThroughputFileName = "ThroughputLatencyProbe.csv"

	clientPattern    = "client-*"
	yardstickPattern = "*-yardstick-output"
)

// Unit is one (test, client) pair and the source files to ingest for it.
type Unit struct {
	TestName  string
	ClientDir string
	// LatencyPath is always set. The file is not checked for existence.
	LatencyPath string
	// ThroughputPath is empty when the client has no yardstick output.
	ThroughputPath string
}

// Client returns the client directory name, e.g. "client-0".
func (u Unit) Client() string {
	return filepath.Base(u.ClientDir)
}

// Walk returns the units of a run, test by test in the given order and
// client by client in lexicographic order. Nothing is listed until the
// sequence is ranged over, and every range re-lists the tree. A listing
// error is yielded once and ends the sequence.
func Walk(benchmarkDir string, testNames []string) iter.Seq2[Unit, error] {
	return func(yield func(Unit, error) bool) {
		for _, testName := range testNames {
			clients, err := dirs(filepath.Join(benchmarkDir, testName), clientPattern)
			if err != nil {
				yield(Unit{}, fmt.Errorf("listing clients of test %s: %w", testName, err))

				return
			}

			for _, clientDir := range clients {
				unit, err := newUnit(testName, clientDir)
				if err != nil {
					yield(Unit{}, err)

					return
				}

				if !yield(unit, nil) {
					return
				}
			}
		}
	}
}

func newUnit(testName, clientDir string) (Unit, error) {
	unit := Unit{
		TestName:    testName,
		ClientDir:   clientDir,
		LatencyPath: filepath.Join(clientDir, LatencyFileName),
	}

	yardsticks, err := dirs(clientDir, yardstickPattern)
	if err != nil {
		return Unit{}, fmt.Errorf("listing yardstick output of %s: %w", clientDir, err)
	}

	// First in lexicographic order when a client has several.
	if len(yardsticks) > 0 {
		unit.ThroughputPath = filepath.Join(yardsticks[0], ThroughputFileName)
	}

	return unit, nil
}

// dirs returns the sorted directories directly under parent whose names
// match pattern. Only the entry names are matched, so glob metacharacters
// in parent are taken literally. A missing parent has no matches.
func dirs(parent, pattern string) ([]string, error) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	out := make([]string, 0, len(entries))

	for _, entry := range entries {
		ok, err := zglob.Match(pattern, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("matching %s: %w", pattern, err)
		}

		if !ok {
			continue
		}

		path := filepath.Join(parent, entry.Name())

		// Stat follows symlinked directories.
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		if info.IsDir() {
			out = append(out, path)
		}
	}

	slices.Sort(out)

	return out, nil
}
