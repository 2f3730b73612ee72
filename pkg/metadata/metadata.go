// Package metadata maps a run's metadata.json onto the fixed shape of a
// benchmark_build row. Key names drifted across harness versions, so every
// target attribute is read through a priority-ordered alias list.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FileName is the run descriptor at the root of a benchmark directory.
const FileName = "metadata.json"

// Attribute names a parent-row attribute sourced from testMetadata.
type Attribute string

const (
	AttrBuildVersion    Attribute = "build_version"
	AttrBuildSHA        Attribute = "build_sha"
	AttrBenchmarkSHA    Attribute = "benchmark_sha"
	AttrBuildIdentifier Attribute = "build_identifier"
	AttrInstanceID      Attribute = "instance_id"
)

// aliases lists the recognized testMetadata keys per attribute, most
// preferred first.
var aliases = []struct {
	attr Attribute
	keys []string
}{
	{AttrBuildVersion, []string{"source_version", "geode version"}},
	{AttrBuildSHA, []string{"source_revision"}},
	{AttrBenchmarkSHA, []string{"benchmark_sha"}},
	{AttrBuildIdentifier, []string{"build_identifier"}},
	{AttrInstanceID, []string{"instance_id"}},
}

// legacyInstanceIDKey is the top-level instance id of older documents.
const legacyInstanceIDKey = "instanceId"

// Metadata is the extracted view of a metadata.json document. Missing
// attributes are empty strings.
type Metadata struct {
	BuildVersion    string
	BuildSHA        string
	BenchmarkSHA    string
	BuildIdentifier string
	InstanceID      string
	TestNames       []string
}

// Extract parses a metadata document. Only structural problems are
// errors: a non-object document, a non-object testMetadata, or a testNames
// value that is not a list of strings.
func Extract(raw []byte) (*Metadata, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}

	if doc == nil {
		return nil, fmt.Errorf("metadata document is null")
	}

	var testMetadata map[string]any

	switch v := doc["testMetadata"].(type) {
	case nil:
	case map[string]any:
		testMetadata = v
	default:
		return nil, fmt.Errorf("testMetadata must be an object, got %T", v)
	}

	values := make(map[Attribute]string, len(aliases))

	for _, a := range aliases {
		for _, key := range a.keys {
			if s := scalar(testMetadata[key]); s != "" {
				values[a.attr] = s

				break
			}
		}
	}

	md := &Metadata{
		BuildVersion:    values[AttrBuildVersion],
		BuildSHA:        values[AttrBuildSHA],
		BenchmarkSHA:    values[AttrBenchmarkSHA],
		BuildIdentifier: values[AttrBuildIdentifier],
		InstanceID:      values[AttrInstanceID],
	}

	if md.InstanceID == "" {
		md.InstanceID = scalar(doc[legacyInstanceIDKey])
	}

	names, err := testNames(doc["testNames"])
	if err != nil {
		return nil, err
	}

	md.TestNames = names

	return md, nil
}

func testNames(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}

	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("testNames must be a list, got %T", v)
	}

	names := make([]string, 0, len(list))

	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("testNames[%d] must be a string, got %T", i, item)
		}

		names = append(names, s)
	}

	return names, nil
}

// scalar renders a JSON scalar as text. Null, objects and lists yield "".
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
