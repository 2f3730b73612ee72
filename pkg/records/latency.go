// Package records decodes the two CSV dialects found in a benchmark run:
// the HdrHistogram percentile distribution (latency) and the yardstick
// ThroughputLatencyProbe time series (throughput).
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Latency histogram column names.
const (
	ColumnValue       = "Value"
	ColumnPercentile  = "Percentile"
	ColumnTotalCount  = "TotalCount"
	ColumnInverseTail = "1/(1-Percentile)"
)

// InfinitySentinel is the inverse-tail value emitted for the 100th
// percentile bucket.
const InfinitySentinel = "Infinity"

// LatencyRecord is one bucket of a percentile distribution.
type LatencyRecord struct {
	Value       decimal.Decimal
	Percentile  decimal.Decimal
	TotalCount  int64
	InverseTail decimal.Decimal
}

// ParseLatency reads a histogram CSV. Lines starting with '#' are
// comments; the first remaining line is the header. Rows whose inverse
// tail is Infinity are dropped. An input without a header has no records.
func ParseLatency(r io.Reader) ([]LatencyRecord, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols, err := latencyColumns(header)
	if err != nil {
		return nil, err
	}

	var out []LatencyRecord

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		line, _ := reader.FieldPos(0)

		rec, keep, err := cols.record(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if keep {
			out = append(out, rec)
		}
	}

	return out, nil
}

type latencyIndex struct {
	value, percentile, totalCount, inverseTail int
	width                                      int
}

func latencyColumns(header []string) (latencyIndex, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[strings.TrimSpace(name)] = i
	}

	idx := latencyIndex{}
	targets := []struct {
		name string
		dst  *int
	}{
		{ColumnValue, &idx.value},
		{ColumnPercentile, &idx.percentile},
		{ColumnTotalCount, &idx.totalCount},
		{ColumnInverseTail, &idx.inverseTail},
	}

	for _, t := range targets {
		i, ok := pos[t.name]
		if !ok {
			return latencyIndex{}, fmt.Errorf("header is missing column %q", t.name)
		}

		*t.dst = i
		idx.width = max(idx.width, i+1)
	}

	return idx, nil
}

func (idx latencyIndex) record(row []string) (LatencyRecord, bool, error) {
	if len(row) < idx.width {
		return LatencyRecord{}, false, fmt.Errorf("expected at least %d fields, got %d", idx.width, len(row))
	}

	inverseTail := strings.TrimSpace(row[idx.inverseTail])
	if inverseTail == InfinitySentinel {
		return LatencyRecord{}, false, nil
	}

	var (
		rec LatencyRecord
		err error
	)

	if rec.Value, err = decimal.NewFromString(strings.TrimSpace(row[idx.value])); err != nil {
		return LatencyRecord{}, false, fmt.Errorf("parsing %s: %w", ColumnValue, err)
	}

	if rec.Percentile, err = decimal.NewFromString(strings.TrimSpace(row[idx.percentile])); err != nil {
		return LatencyRecord{}, false, fmt.Errorf("parsing %s: %w", ColumnPercentile, err)
	}

	if rec.TotalCount, err = strconv.ParseInt(strings.TrimSpace(row[idx.totalCount]), 10, 64); err != nil {
		return LatencyRecord{}, false, fmt.Errorf("parsing %s: %w", ColumnTotalCount, err)
	}

	if rec.InverseTail, err = decimal.NewFromString(inverseTail); err != nil {
		return LatencyRecord{}, false, fmt.Errorf("parsing %s: %w", ColumnInverseTail, err)
	}

	return rec, true, nil
}
