// Package identity derives the stable build identifier of a benchmark run.
package identity

import (
	"crypto/sha1" //nolint:gosec // identifier compatibility, not security
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Origin records which rule produced a build identifier.
type Origin string

const (
	// OriginOverride means the caller supplied the identifier explicitly.
	OriginOverride Origin = "override"
	// OriginMetadata means the identifier came from testMetadata.
	OriginMetadata Origin = "metadata"
	// OriginContentHash means the identifier was derived from the
	// metadata file contents and modification time.
	OriginContentHash Origin = "content_hash"
)

// Source is the metadata document as read from disk.
type Source struct {
	Raw     []byte
	ModTime time.Time
}

// SourceFromFile reads a metadata file and its modification time.
func SourceFromFile(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, fmt.Errorf("stat %s: %w", path, err)
	}

	raw, err := os.ReadFile(path) //nolint:gosec // path supplied by operator
	if err != nil {
		return Source{}, fmt.Errorf("reading %s: %w", path, err)
	}

	return Source{Raw: raw, ModTime: info.ModTime()}, nil
}

// Resolve returns the build identifier using the first non-empty of
// override, declared, and the content hash of src.
func Resolve(override, declared string, src Source) (string, Origin) {
	if override != "" {
		return override, OriginOverride
	}

	if declared != "" {
		return declared, OriginMetadata
	}

	return ContentHash(src), OriginContentHash
}

// ContentHash is the hex SHA-1 of the raw document followed by its
// modification time in fractional seconds with nine decimals.
func ContentHash(src Source) string {
	h := sha1.New() //nolint:gosec // see import
	h.Write(src.Raw)
	h.Write([]byte(FormatModTime(src.ModTime)))

	return hex.EncodeToString(h.Sum(nil))
}

// FormatModTime renders t as float seconds (sec + nsec*1e-9) with nine
// decimals. The float rounding is intentional: identifiers already in the
// store were produced from a double, not from exact nanoseconds.
func FormatModTime(t time.Time) string {
	secs := float64(t.Unix()) + float64(t.Nanosecond())*1e-9

	return strconv.FormatFloat(secs, 'f', 9, 64)
}
