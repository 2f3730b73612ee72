package identity_test

import (
	"crypto/sha1" //nolint:gosec // mirrors the implementation
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/benchsubmit/pkg/identity"
)

func writeMetadata(t *testing.T, content string, mtime time.Time) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	return path
}

func TestResolve_Precedence(t *testing.T) {
	src := identity.Source{
		Raw:     []byte(`{"testNames":[]}`),
		ModTime: time.Unix(1700000000, 0),
	}

	tests := []struct {
		name       string
		override   string
		declared   string
		wantID     string
		wantOrigin identity.Origin
	}{
		{
			name:       "override wins over everything",
			override:   "cli-id",
			declared:   "meta-id",
			wantID:     "cli-id",
			wantOrigin: identity.OriginOverride,
		},
		{
			name:       "metadata used without override",
			declared:   "meta-id",
			wantID:     "meta-id",
			wantOrigin: identity.OriginMetadata,
		},
		{
			name:       "content hash as fallback",
			wantID:     identity.ContentHash(src),
			wantOrigin: identity.OriginContentHash,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, origin := identity.Resolve(tt.override, tt.declared, src)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantOrigin, origin)
		})
	}
}

func TestFormatModTime(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{
			name: "whole seconds",
			in:   time.Unix(1700000000, 0),
			want: "1700000000.000000000",
		},
		{
			name: "half second is exact in a double",
			in:   time.Unix(1700000000, 500000000),
			want: "1700000000.500000000",
		},
		{
			name: "zero epoch",
			in:   time.Unix(0, 0),
			want: "0.000000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, identity.FormatModTime(tt.in))
		})
	}
}

func TestContentHash_MatchesDigestOfContentAndMtime(t *testing.T) {
	raw := []byte(`{"testMetadata":{}}`)
	mtime := time.Unix(1700000000, 500000000)

	h := sha1.New() //nolint:gosec // mirrors the implementation
	h.Write(raw)
	h.Write([]byte("1700000000.500000000"))
	want := hex.EncodeToString(h.Sum(nil))

	got := identity.ContentHash(identity.Source{Raw: raw, ModTime: mtime})
	assert.Equal(t, want, got)
	assert.Len(t, got, 40)
}

func TestSourceFromFile_Stability(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	path := writeMetadata(t, `{"testNames":["a"]}`, mtime)

	first, err := identity.SourceFromFile(path)
	require.NoError(t, err)

	second, err := identity.SourceFromFile(path)
	require.NoError(t, err)

	// Unchanged file: same identifier.
	assert.Equal(t, identity.ContentHash(first), identity.ContentHash(second))

	// Touching the file changes the identifier even with identical bytes.
	touched := mtime.Add(3 * time.Second)
	require.NoError(t, os.Chtimes(path, touched, touched))

	third, err := identity.SourceFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, first.Raw, third.Raw)
	assert.NotEqual(t, identity.ContentHash(first), identity.ContentHash(third))
}

func TestSourceFromFile_Missing(t *testing.T) {
	_, err := identity.SourceFromFile(filepath.Join(t.TempDir(), "metadata.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
