package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/benchsubmit/pkg/store"
	"github.com/ethpandaops/benchsubmit/pkg/submit"
	"github.com/ethpandaops/benchsubmit/pkg/upload"
)

var (
	submitReq    submit.Request
	submitUpload bool
	reportFile   string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a benchmark run directory",
	Long: `Read metadata.json and every test client's latency and throughput files
from a run directory and insert them in a single transaction. A run whose
build identifier is already stored is skipped.`,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	f := submitCmd.Flags()
	f.StringVarP(&submitReq.BenchmarkDir, "benchmark-dir", "b", "",
		"Path to the benchmark run directory")
	f.StringVarP(&submitReq.Identifier, "identifier", "i", "",
		"Build identifier (default: metadata or content hash)")
	f.StringVarP(&submitReq.InstanceID, "instance-id", "I", "",
		"Instance id used when metadata does not declare one")
	f.StringVar(&submitReq.CISHA, "ci-sha", "", "CI commit SHA")
	f.StringVar(&submitReq.RawResultsURI, "raw-results-uri", "",
		"URI of the archived raw results")
	f.StringVar(&submitReq.Notes, "notes", "", "Free-form notes")
	f.BoolVar(&submitUpload, "upload", false,
		"Upload the run directory to S3 and record its URI")
	f.StringVar(&reportFile, "report", "",
		"Write the submission result to this file (.yaml, .yml or .json)")

	_ = submitCmd.MarkFlagRequired("benchmark-dir")
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	if reportFile != "" {
		if _, err := reportMarshaler(reportFile); err != nil {
			return err
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop store")
		}
	}()

	opts := make([]submit.Option, 0, 1)

	if submitUpload {
		if err := cfg.ValidateUpload(); err != nil {
			return fmt.Errorf("validating upload config: %w", err)
		}

		uploader, err := upload.NewS3Uploader(log, &cfg.Upload.S3)
		if err != nil {
			return fmt.Errorf("creating S3 uploader: %w", err)
		}

		if err := uploader.Preflight(ctx); err != nil {
			return fmt.Errorf("upload preflight: %w", err)
		}

		opts = append(opts, submit.WithUploader(uploader))
	}

	res, err := submit.NewSubmitter(log, st, opts...).Submit(ctx, submitReq)
	if err != nil {
		return fmt.Errorf("submitting %s: %w", submitReq.BenchmarkDir, err)
	}

	if res.State == submit.StateRejected {
		log.WithField("build_identifier", res.BuildIdentifier).
			Info("Run already submitted, nothing written")
	} else {
		log.WithField("build_identifier", res.BuildIdentifier).
			WithField("build_id", res.BuildID).
			WithField("latency_rows", res.LatencyRows).
			WithField("throughput_rows", res.ThroughputRows).
			Info("Run submitted")
	}

	if reportFile != "" {
		if err := writeReport(reportFile, res); err != nil {
			return err
		}

		log.WithField("path", reportFile).Info("Report written")
	}

	return nil
}

func reportMarshaler(path string) (func(any) ([]byte, error), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Marshal, nil
	case ".json":
		return func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}, nil
	default:
		return nil, fmt.Errorf("unsupported report format %q (use .yaml, .yml or .json)", path)
	}
}

func writeReport(path string, res *submit.Result) error {
	marshal, err := reportMarshaler(path)
	if err != nil {
		return err
	}

	data, err := marshal(res)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return nil
}
