package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// BenchmarkBuild is one submitted run. BuildIdentifier is the natural key;
// it is indexed but uniqueness is enforced by the submitter, not the schema.
type BenchmarkBuild struct {
	BuildID                 int64  `gorm:"column:build_id;primaryKey;autoIncrement" json:"build_id"`
	CISHA                   string `gorm:"column:ci_sha" json:"ci_sha"`
	BenchmarkSHA            string `gorm:"column:benchmark_sha" json:"benchmark_sha"`
	BuildVersion            string `gorm:"column:build_version" json:"build_version"`
	InstanceID              string `gorm:"column:instance_id" json:"instance_id"`
	BenchmarksRawResultsURI string `gorm:"column:benchmarks_raw_results_uri" json:"benchmarks_raw_results_uri"`
	Notes                   string `gorm:"column:notes" json:"notes"`
	BuildSHA                string `gorm:"column:build_sha" json:"build_sha"`
	BuildIdentifier         string `gorm:"column:build_identifier;index" json:"build_identifier"`

	// Associations exist for the foreign key constraints only.
	LatencyResults    []LatencyResult    `gorm:"foreignKey:BuildID;references:BuildID;constraint:OnDelete:CASCADE" json:"-"`
	ThroughputResults []ThroughputResult `gorm:"foreignKey:BuildID;references:BuildID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName pins the table name used by existing deployments.
func (BenchmarkBuild) TableName() string { return "benchmark_build" }

// LatencyResult is one percentile bucket of a test's latency histogram.
type LatencyResult struct {
	BuildID                 int64           `gorm:"column:build_id;not null;index:idx_latency_build_test" json:"build_id"`
	BenchmarkTest           string          `gorm:"column:benchmark_test;index:idx_latency_build_test" json:"benchmark_test"`
	Value                   decimal.Decimal `gorm:"column:value;type:numeric" json:"value"`
	Percentile              decimal.Decimal `gorm:"column:percentile;type:numeric" json:"percentile"`
	TotalCount              int64           `gorm:"column:total_count" json:"total_count"`
	OneByOneMinusPercentile decimal.Decimal `gorm:"column:one_by_one_minus_percentile;type:numeric" json:"one_by_one_minus_percentile"`
}

// TableName pins the table name used by existing deployments.
func (LatencyResult) TableName() string { return "latency_result" }

// ThroughputResult is one sample of a test's throughput time series.
type ThroughputResult struct {
	BuildID       int64     `gorm:"column:build_id;not null;index:idx_throughput_build_test" json:"build_id"`
	BenchmarkTest string    `gorm:"column:benchmark_test;index:idx_throughput_build_test" json:"benchmark_test"`
	Timestamp     time.Time `gorm:"column:timestamp" json:"timestamp"`
	OpsPerSec     int64     `gorm:"column:ops_per_sec" json:"ops_per_sec"`
}

// TableName pins the table name used by existing deployments.
func (ThroughputResult) TableName() string { return "throughput_result" }
