package resulttree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdirs(t *testing.T, root string, paths ...string) {
	t.Helper()

	for _, p := range paths {
		require.NoError(t, os.MkdirAll(filepath.Join(root, p), 0o755))
	}
}

func touch(t *testing.T, root, path string) {
	t.Helper()

	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, nil, 0o644))
}

func collect(t *testing.T, benchmarkDir string, testNames []string) []Unit {
	t.Helper()

	var units []Unit

	for unit, err := range Walk(benchmarkDir, testNames) {
		require.NoError(t, err)

		units = append(units, unit)
	}

	return units
}

func TestWalk_Layout(t *testing.T) {
	root := t.TempDir()

	mkdirs(t, root,
		"testA/client-1",
		"testA/client-0/b-yardstick-output",
		"testA/client-0/a-yardstick-output",
		"testA/locator-0",
		"testB/client-0",
	)
	// A file named like a client is not a client.
	touch(t, root, "testA/client-2")

	units := collect(t, root, []string{"testB", "testA"})
	require.Len(t, units, 3)

	assert.Equal(t, Unit{
		TestName:    "testB",
		ClientDir:   filepath.Join(root, "testB", "client-0"),
		LatencyPath: filepath.Join(root, "testB", "client-0", LatencyFileName),
	}, units[0])

	assert.Equal(t, "testA", units[1].TestName)
	assert.Equal(t, "client-0", units[1].Client())
	assert.Equal(t,
		filepath.Join(root, "testA", "client-0", "a-yardstick-output", ThroughputFileName),
		units[1].ThroughputPath,
	)

	assert.Equal(t, "client-1", units[2].Client())
	assert.Empty(t, units[2].ThroughputPath)
}

func TestWalk_MissingTestDir(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "present/client-0")

	units := collect(t, root, []string{"absent", "present"})
	require.Len(t, units, 1)
	assert.Equal(t, "present", units[0].TestName)
}

func TestWalk_NoTests(t *testing.T) {
	assert.Empty(t, collect(t, t.TempDir(), nil))
}

func TestWalk_TestWithoutClients(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "testA/server-0")

	assert.Empty(t, collect(t, root, []string{"testA"}))
}

func TestWalk_Restartable(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "testA/client-0")

	seq := Walk(root, []string{"testA"})

	var first, second int
	for _, err := range seq {
		require.NoError(t, err)
		first++
	}

	// New clients show up on the next range.
	mkdirs(t, root, "testA/client-1")

	for _, err := range seq {
		require.NoError(t, err)
		second++
	}

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestWalk_StopsEarly(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "testA/client-0", "testA/client-1", "testA/client-2")

	var seen int
	for range Walk(root, []string{"testA"}) {
		seen++

		break
	}

	assert.Equal(t, 1, seen)
}

func TestWalk_GlobMetacharactersInPath(t *testing.T) {
	tests := []struct {
		name     string
		runDir   string
		testName string
	}{
		{name: "braces in run dir", runDir: "run{1}", testName: "testA"},
		{name: "brackets in run dir", runDir: "nightly[7]", testName: "testA"},
		{name: "star in run dir", runDir: "run*", testName: "testA"},
		{name: "braces in test name", runDir: "run", testName: "get{a,b}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), tt.runDir)
			mkdirs(t, root,
				filepath.Join(tt.testName, "client-0", "x-yardstick-output"),
				filepath.Join(tt.testName, "client-1"),
			)

			units := collect(t, root, []string{tt.testName})
			require.Len(t, units, 2)

			assert.Equal(t, filepath.Join(root, tt.testName, "client-0"), units[0].ClientDir)
			assert.Equal(t,
				filepath.Join(root, tt.testName, "client-0", "x-yardstick-output", ThroughputFileName),
				units[0].ThroughputPath,
			)
			assert.Equal(t, "client-1", units[1].Client())
		})
	}
}
