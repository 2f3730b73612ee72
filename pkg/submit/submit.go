// Package submit records a benchmark run directory in the result store.
package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/benchsubmit/pkg/identity"
	"github.com/ethpandaops/benchsubmit/pkg/metadata"
	"github.com/ethpandaops/benchsubmit/pkg/records"
	"github.com/ethpandaops/benchsubmit/pkg/resulttree"
	"github.com/ethpandaops/benchsubmit/pkg/store"
)

// Uploader archives a run directory and returns the URI it was stored at.
type Uploader interface {
	Upload(ctx context.Context, localDir, buildIdentifier string) (string, error)
}

// Request describes one submission.
type Request struct {
	// BenchmarkDir contains metadata.json and one directory per test.
	BenchmarkDir string
	// Identifier overrides the build identifier from metadata.
	Identifier string
	// InstanceID is used when metadata does not declare one.
	InstanceID    string
	CISHA         string
	RawResultsURI string
	Notes         string
}

// UnitResult counts the rows ingested for one test client.
type UnitResult struct {
	Test           string `json:"test" yaml:"test"`
	Client         string `json:"client" yaml:"client"`
	LatencyRows    int    `json:"latency_rows" yaml:"latency_rows"`
	ThroughputRows int    `json:"throughput_rows" yaml:"throughput_rows"`
}

// Result is the outcome of a submission.
type Result struct {
	State            State                                `json:"state" yaml:"state"`
	BuildIdentifier  string                               `json:"build_identifier" yaml:"build_identifier"`
	IdentifierOrigin identity.Origin                      `json:"identifier_origin" yaml:"identifier_origin"`
	InstanceID       string                               `json:"instance_id" yaml:"instance_id"`
	BuildID          int64                                `json:"build_id" yaml:"build_id"`
	RawResultsURI    string                               `json:"raw_results_uri,omitempty" yaml:"raw_results_uri,omitempty"`
	LatencyRows      int                                  `json:"latency_rows" yaml:"latency_rows"`
	ThroughputRows   int                                  `json:"throughput_rows" yaml:"throughput_rows"`
	Units            []UnitResult                         `json:"units,omitempty" yaml:"units,omitempty"`
	Throughput       map[string]records.ThroughputSummary `json:"throughput,omitempty" yaml:"throughput,omitempty"`
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithUploader archives every accepted run before its parent row is
// written and records the returned URI.
func WithUploader(u Uploader) Option {
	return func(s *Submitter) {
		s.uploader = u
	}
}

// Submitter drives a run through identity resolution, the duplicate check
// and the inserts. All writes of a run share one transaction.
type Submitter struct {
	log      logrus.FieldLogger
	store    store.Store
	uploader Uploader
}

// NewSubmitter creates a Submitter writing to st.
func NewSubmitter(log logrus.FieldLogger, st store.Store, opts ...Option) *Submitter {
	s := &Submitter{
		log:   log.WithField("component", "submit"),
		store: st,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Submit records the run in req.BenchmarkDir. A run whose identifier is
// already stored is not written again; the result is StateRejected with a
// nil error.
func (s *Submitter) Submit(ctx context.Context, req Request) (*Result, error) {
	m := newMachine()
	dir := req.BenchmarkDir

	metaPath := filepath.Join(dir, metadata.FileName)

	src, err := identity.SourceFromFile(metaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrInputNotFound, metaPath, err)
		}

		return nil, err
	}

	md, err := metadata.Extract(src.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedInput, metaPath, err)
	}

	id, origin := identity.Resolve(req.Identifier, md.BuildIdentifier, src)

	res := &Result{
		BuildIdentifier:  id,
		IdentifierOrigin: origin,
		InstanceID:       metadata.ResolveInstanceID(md.InstanceID, req.InstanceID, dir),
		RawResultsURI:    req.RawResultsURI,
	}

	log := s.log.WithField("build_identifier", id)
	log.WithField("origin", origin).Info("Resolved build identifier")
	log.WithField("instance_id", res.InstanceID).Info("Resolved instance id")

	if err := m.fire(ctx, eventResolve); err != nil {
		return nil, err
	}

	// The archive upload runs before the transaction is opened. Known
	// runs are skipped here so they are never uploaded again.
	if s.uploader != nil {
		existing, found, err := s.store.FindBuildID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStore, err)
		}

		if found {
			res.BuildID = existing

			if err := m.fire(ctx, eventCheckDuplicate); err != nil {
				return nil, err
			}

			return s.rejected(ctx, m, log, res)
		}

		uri, err := s.uploader.Upload(ctx, dir, id)
		if err != nil {
			return nil, fmt.Errorf("archiving %s: %w", dir, err)
		}

		res.RawResultsURI = uri
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		existing, found, err := tx.FindBuildID(id)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStore, err)
		}

		if err := m.fire(ctx, eventCheckDuplicate); err != nil {
			return err
		}

		if found {
			res.BuildID = existing

			return errRejected
		}

		build := &store.BenchmarkBuild{
			CISHA:                   req.CISHA,
			BenchmarkSHA:            md.BenchmarkSHA,
			BuildVersion:            md.BuildVersion,
			InstanceID:              res.InstanceID,
			BenchmarksRawResultsURI: res.RawResultsURI,
			Notes:                   req.Notes,
			BuildSHA:                md.BuildSHA,
			BuildIdentifier:         id,
		}

		if err := tx.CreateBuild(build); err != nil {
			return fmt.Errorf("%w: %w", ErrStore, err)
		}

		res.BuildID = build.BuildID

		if err := m.fire(ctx, eventInsertParent); err != nil {
			return err
		}

		if err := s.ingest(tx, log, dir, md.TestNames, res); err != nil {
			return err
		}

		return m.fire(ctx, eventIngestChildren)
	})

	switch {
	case errors.Is(err, errRejected):
		return s.rejected(ctx, m, log, res)
	case err != nil && m.Current() == StateChildrenIngested:
		return nil, fmt.Errorf("%w: committing build %s: %w", ErrStore, id, err)
	case err != nil:
		return nil, err
	}

	if err := m.fire(ctx, eventCommit); err != nil {
		return nil, err
	}

	res.State = m.Current()

	log.WithFields(logrus.Fields{
		"build_id":        res.BuildID,
		"latency_rows":    res.LatencyRows,
		"throughput_rows": res.ThroughputRows,
		"units":           len(res.Units),
	}).Info("Build submitted")

	return res, nil
}

// rejected finishes a submission whose identifier is already stored.
func (s *Submitter) rejected(
	ctx context.Context, m *machine, log logrus.FieldLogger, res *Result,
) (*Result, error) {
	if err := m.fire(ctx, eventReject); err != nil {
		return nil, err
	}

	log.WithField("build_id", res.BuildID).
		Warn("This build has already been submitted, skipping")

	res.State = m.Current()

	return res, nil
}

// ingest walks the run and inserts the child rows of every unit.
func (s *Submitter) ingest(
	tx store.Tx,
	log logrus.FieldLogger,
	dir string,
	testNames []string,
	res *Result,
) error {
	samples := make(map[string][]float64, len(testNames))

	for unit, err := range resulttree.Walk(dir, testNames) {
		if err != nil {
			return fmt.Errorf("walking %s: %w", dir, err)
		}

		ur, ops, err := s.ingestUnit(tx, res.BuildID, unit)
		if err != nil {
			return err
		}

		res.Units = append(res.Units, ur)
		res.LatencyRows += ur.LatencyRows
		res.ThroughputRows += ur.ThroughputRows

		if unit.ThroughputPath != "" {
			samples[unit.TestName] = append(samples[unit.TestName], ops...)
		}

		log.WithFields(logrus.Fields{
			"test":            ur.Test,
			"client":          ur.Client,
			"latency_rows":    ur.LatencyRows,
			"throughput_rows": ur.ThroughputRows,
		}).Info("Submitted test client data")
	}

	if len(samples) > 0 {
		res.Throughput = make(map[string]records.ThroughputSummary, len(samples))

		for test, ops := range samples {
			sum := records.SummarizeThroughput(ops)
			res.Throughput[test] = sum

			log.WithFields(logrus.Fields{
				"test":    test,
				"samples": sum.Samples,
				"mean":    sum.Mean,
				"stddev":  sum.StdDev,
				"stderr":  sum.StdErr,
			}).Debug("Throughput summary")
		}
	}

	return nil
}

// ingestUnit inserts the latency rows and, when the client has yardstick
// output, the throughput rows of one unit. It returns the throughput
// samples for the per-test summary.
func (s *Submitter) ingestUnit(
	tx store.Tx, buildID int64, unit resulttree.Unit,
) (UnitResult, []float64, error) {
	ur := UnitResult{Test: unit.TestName, Client: unit.Client()}

	latency, err := parseFile(unit.LatencyPath, records.ParseLatency)
	if err != nil {
		return ur, nil, err
	}

	rows := make([]store.LatencyResult, 0, len(latency))
	for _, rec := range latency {
		rows = append(rows, store.LatencyResult{
			BuildID:                 buildID,
			BenchmarkTest:           unit.TestName,
			Value:                   rec.Value,
			Percentile:              rec.Percentile,
			TotalCount:              rec.TotalCount,
			OneByOneMinusPercentile: rec.InverseTail,
		})
	}

	if err := tx.CreateLatencyResults(rows); err != nil {
		return ur, nil, fmt.Errorf("%w: %s: %w", ErrStore, unit.LatencyPath, err)
	}

	ur.LatencyRows = len(rows)

	if unit.ThroughputPath == "" {
		return ur, nil, nil
	}

	series, err := parseFile(unit.ThroughputPath, records.ParseThroughput)
	if err != nil {
		return ur, nil, err
	}

	trows := make([]store.ThroughputResult, 0, len(series))
	for _, rec := range series {
		trows = append(trows, store.ThroughputResult{
			BuildID:       buildID,
			BenchmarkTest: unit.TestName,
			Timestamp:     rec.Timestamp,
			OpsPerSec:     rec.OpsPerSec,
		})
	}

	if err := tx.CreateThroughputResults(trows); err != nil {
		return ur, nil, fmt.Errorf("%w: %s: %w", ErrStore, unit.ThroughputPath, err)
	}

	ur.ThroughputRows = len(trows)

	return ur, records.OpsSamples(series), nil
}

// parseFile opens path and decodes it with parse, classifying failures.
func parseFile[T any](path string, parse func(r io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the run directory listing
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}

		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	out, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedInput, path, err)
	}

	return out, nil
}
