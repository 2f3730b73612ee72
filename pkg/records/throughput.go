package records

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// throughputMarkers are the first characters of yardstick comment, run
// boundary and annotation lines.
const throughputMarkers = "#-@*"

// ThroughputRecord is one sample of the yardstick throughput time series.
type ThroughputRecord struct {
	Timestamp time.Time
	OpsPerSec int64
	// Latency is the average latency column, kept verbatim.
	Latency string
}

// ParseThroughput reads a headerless "time,operations,latency" series.
// Operations are truncated toward zero, never rounded.
func ParseThroughput(r io.Reader) ([]ThroughputRecord, error) {
	scanner := bufio.NewScanner(r)

	var (
		out  []ThroughputRecord
		line int
	)

	for scanner.Scan() {
		line++

		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.ContainsRune(throughputMarkers, rune(text[0])) {
			continue
		}

		rec, err := parseThroughputLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		out = append(out, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading throughput series: %w", err)
	}

	return out, nil
}

func parseThroughputLine(text string) (ThroughputRecord, error) {
	fields := strings.Split(text, ",")
	if len(fields) != 3 {
		return ThroughputRecord{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}

	secs, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return ThroughputRecord{}, fmt.Errorf("parsing time: %w", err)
	}

	ops, err := TruncateOps(strings.TrimSpace(fields[1]))
	if err != nil {
		return ThroughputRecord{}, err
	}

	return ThroughputRecord{
		Timestamp: time.Unix(secs, 0).UTC(),
		OpsPerSec: ops,
		Latency:   strings.TrimSpace(fields[2]),
	}, nil
}

// TruncateOps parses a floating-point operations count and drops the
// fraction, e.g. "1234.9" is 1234.
func TruncateOps(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing operations: %w", err)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("operations %q is not finite", s)
	}

	t := math.Trunc(f)
	if t >= math.MaxInt64 || t < math.MinInt64 {
		return 0, fmt.Errorf("operations %q out of range", s)
	}

	return int64(t), nil
}
