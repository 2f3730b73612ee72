// Package store persists benchmark runs in the benchmark_build,
// latency_result and throughput_result tables.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ethpandaops/benchsubmit/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a requested build does not exist.
var ErrNotFound = errors.New("not found")

// insertBatchSize bounds the rows per INSERT statement for child rows.
const insertBatchSize = 500

// Store provides persistence for benchmark runs.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Migrate creates or upgrades the three result tables.
	Migrate(ctx context.Context) error

	// FindBuildID looks up a build by its natural key.
	FindBuildID(ctx context.Context, identifier string) (int64, bool, error)

	// WithTx runs fn in a single transaction. The transaction commits when
	// fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	ListBuilds(ctx context.Context, limit int) ([]BenchmarkBuild, error)
	GetBuildByIdentifier(ctx context.Context, identifier string) (*BenchmarkBuild, error)
	ListBenchmarkTests(ctx context.Context, buildID int64) ([]string, error)
	ListLatencyResults(ctx context.Context, buildID int64, test string) ([]LatencyResult, error)
	ListThroughputResults(ctx context.Context, buildID int64, test string) ([]ThroughputResult, error)
}

// Tx is the write side of a run submission, bound to one transaction.
type Tx interface {
	FindBuildID(identifier string) (int64, bool, error)
	CreateBuild(build *BenchmarkBuild) error
	CreateLatencyResults(rows []LatencyResult) error
	CreateThroughputResults(rows []ThroughputResult) error
}

// Compile-time interface checks.
var (
	_ Store = (*store)(nil)
	_ Tx    = (*tx)(nil)
)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and, when auto_migrate is set,
// runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dialector = postgres.Open(s.cfg.Postgres.DSN())
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	if s.cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			return err
		}
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (s *store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&BenchmarkBuild{},
		&LatencyResult{},
		&ThroughputResult{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.Debug("Migrations applied")

	return nil
}

func (s *store) FindBuildID(
	ctx context.Context, identifier string,
) (int64, bool, error) {
	return findBuildID(s.db.WithContext(ctx), identifier)
}

func (s *store) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&tx{db: db})
	})
}

// ListBuilds returns the most recent builds first. A non-positive limit
// returns all builds.
func (s *store) ListBuilds(
	ctx context.Context, limit int,
) ([]BenchmarkBuild, error) {
	q := s.db.WithContext(ctx).Order("build_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var builds []BenchmarkBuild
	if err := q.Find(&builds).Error; err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}

	return builds, nil
}

func (s *store) GetBuildByIdentifier(
	ctx context.Context, identifier string,
) (*BenchmarkBuild, error) {
	var build BenchmarkBuild
	if err := s.db.WithContext(ctx).
		Where("build_identifier = ?", identifier).
		Order("build_id ASC").
		First(&build).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("build %q: %w", identifier, ErrNotFound)
		}

		return nil, fmt.Errorf("getting build by identifier: %w", err)
	}

	return &build, nil
}

// ListBenchmarkTests returns the sorted names of the tests that have
// latency or throughput rows for a build.
func (s *store) ListBenchmarkTests(
	ctx context.Context, buildID int64,
) ([]string, error) {
	var latency, throughput []string

	if err := s.db.WithContext(ctx).
		Model(&LatencyResult{}).
		Where("build_id = ?", buildID).
		Distinct().
		Pluck("benchmark_test", &latency).Error; err != nil {
		return nil, fmt.Errorf("listing latency tests: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&ThroughputResult{}).
		Where("build_id = ?", buildID).
		Distinct().
		Pluck("benchmark_test", &throughput).Error; err != nil {
		return nil, fmt.Errorf("listing throughput tests: %w", err)
	}

	tests := append(latency, throughput...)
	slices.Sort(tests)

	return slices.Compact(tests), nil
}

// ListLatencyResults returns a build's latency rows ordered by test and
// percentile. An empty test returns every test.
func (s *store) ListLatencyResults(
	ctx context.Context, buildID int64, test string,
) ([]LatencyResult, error) {
	q := s.db.WithContext(ctx).Where("build_id = ?", buildID)
	if test != "" {
		q = q.Where("benchmark_test = ?", test)
	}

	var rows []LatencyResult
	if err := q.Order("benchmark_test ASC").
		Order("percentile ASC").
		Order("total_count ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing latency results: %w", err)
	}

	return rows, nil
}

// ListThroughputResults returns a build's throughput rows ordered by test
// and timestamp. An empty test returns every test.
func (s *store) ListThroughputResults(
	ctx context.Context, buildID int64, test string,
) ([]ThroughputResult, error) {
	q := s.db.WithContext(ctx).Where("build_id = ?", buildID)
	if test != "" {
		q = q.Where("benchmark_test = ?", test)
	}

	var rows []ThroughputResult
	if err := q.Order("benchmark_test ASC").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing throughput results: %w", err)
	}

	return rows, nil
}

type tx struct {
	db *gorm.DB
}

func (t *tx) FindBuildID(identifier string) (int64, bool, error) {
	return findBuildID(t.db, identifier)
}

// CreateBuild inserts the parent row and sets build.BuildID.
func (t *tx) CreateBuild(build *BenchmarkBuild) error {
	if err := t.db.Omit(clause.Associations).Create(build).Error; err != nil {
		return fmt.Errorf("creating build: %w", err)
	}

	return nil
}

func (t *tx) CreateLatencyResults(rows []LatencyResult) error {
	if len(rows) == 0 {
		return nil
	}

	if err := t.db.CreateInBatches(rows, insertBatchSize).Error; err != nil {
		return fmt.Errorf("inserting latency results: %w", err)
	}

	return nil
}

func (t *tx) CreateThroughputResults(rows []ThroughputResult) error {
	if len(rows) == 0 {
		return nil
	}

	if err := t.db.CreateInBatches(rows, insertBatchSize).Error; err != nil {
		return fmt.Errorf("inserting throughput results: %w", err)
	}

	return nil
}

func findBuildID(db *gorm.DB, identifier string) (int64, bool, error) {
	var ids []int64
	if err := db.Model(&BenchmarkBuild{}).
		Where("build_identifier = ?", identifier).
		Limit(1).
		Pluck("build_id", &ids).Error; err != nil {
		return 0, false, fmt.Errorf("looking up build %q: %w", identifier, err)
	}

	if len(ids) == 0 {
		return 0, false, nil
	}

	return ids[0], true, nil
}
