// Package bigquery runs expert lookups on Google BigQuery.
//
// Every Run first issues a dry run to learn how many bytes the query would
// process and refuses to execute when that exceeds the ceiling. The real job
// also carries MaxBytesBilled so the service enforces the same ceiling if the
// estimate was stale.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/garnizeh/experts/pkg/warehouse"
)

// reasonBytesBilledLimit is the error reason BigQuery reports when a job
// would bill more than MaxBytesBilled.
const reasonBytesBilledLimit = "bytesBilledLimitExceeded"

const (
	jobIDPrefix   = "experts_"
	cancelTimeout = 10 * time.Second
)

// Config selects the billing project and job location.
type Config struct {
	ProjectID       string `yaml:"project_id"`
	Location        string `yaml:"location"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Dialect renders GoogleSQL.
type Dialect struct{}

func (Dialect) Name() string { return "bigquery" }

// QuoteTable wraps the whole project.dataset.table path in backticks.
func (Dialect) QuoteTable(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "") + "`"
}

func (Dialect) Contains(column, param string) string {
	return fmt.Sprintf("STRPOS(%s, @%s) > 0", column, param)
}

// Executor implements warehouse.Executor over a BigQuery client.
type Executor struct {
	client *bigquery.Client
	logger *slog.Logger
}

var _ warehouse.Executor = (*Executor)(nil)

// New creates a BigQuery client for cfg.ProjectID. Credentials come from
// cfg.CredentialsFile when set, otherwise from the environment.
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Executor, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("bigquery: project id is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: new client: %w", err)
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}

	logger.Info("bigquery: client created", slog.String("project", cfg.ProjectID), slog.String("location", cfg.Location))
	return &Executor{client: client, logger: logger}, nil
}

// Close releases the underlying client.
func (e *Executor) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.Close()
}

func (e *Executor) Dialect() warehouse.Dialect { return Dialect{} }

func (e *Executor) query(q warehouse.Query) *bigquery.Query {
	bq := e.client.Query(q.SQL)
	for _, p := range q.Params {
		bq.Parameters = append(bq.Parameters, bigquery.QueryParameter{Name: p.Name, Value: p.Value})
	}
	return bq
}

// Estimate dry-runs q and returns the bytes it would process.
func (e *Executor) Estimate(ctx context.Context, q warehouse.Query) (int64, error) {
	bq := e.query(q)
	bq.DryRun = true

	job, err := bq.Run(ctx)
	if err != nil {
		return 0, classify(ctx, "dry run", err)
	}
	status := job.LastStatus()
	if status == nil || status.Statistics == nil {
		return 0, fmt.Errorf("%w: dry run returned no statistics", warehouse.ErrExecution)
	}
	if err := status.Err(); err != nil {
		return 0, classify(ctx, "dry run", err)
	}

	return status.Statistics.TotalBytesProcessed, nil
}

// Run executes q when its dry-run estimate fits within maxBytesBilled. If ctx
// ends while the job is being inserted or is running, the job is cancelled on
// the server.
func (e *Executor) Run(ctx context.Context, q warehouse.Query, maxBytesBilled int64) (*warehouse.Table, error) {
	if maxBytesBilled <= 0 {
		return nil, warehouse.CheckCost(0, maxBytesBilled)
	}

	estimated, err := e.Estimate(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := warehouse.CheckCost(estimated, maxBytesBilled); err != nil {
		e.logger.Warn("bigquery: query rejected by cost ceiling",
			slog.Int64("estimated_bytes", estimated),
			slog.Int64("max_bytes_billed", maxBytesBilled),
		)
		return nil, err
	}

	bq := e.query(q)
	bq.MaxBytesBilled = maxBytesBilled
	bq.JobID = jobIDPrefix + uuid.NewString()

	start := time.Now()
	job, err := bq.Run(ctx)
	if err != nil {
		// The insert may have reached BigQuery before ctx ended.
		if ctx.Err() != nil {
			e.cancelByID(bq.JobID)
		}
		return nil, classifyWithLimit(ctx, "run", err, estimated, maxBytesBilled)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		e.cancel(job)
		return nil, classifyWithLimit(ctx, "wait", err, estimated, maxBytesBilled)
	}
	if err := status.Err(); err != nil {
		return nil, classifyWithLimit(ctx, "job", err, estimated, maxBytesBilled)
	}

	it, err := job.Read(ctx)
	if err != nil {
		return nil, classify(ctx, "read", err)
	}
	table, err := readTable(it)
	if err != nil {
		return nil, classify(ctx, "read", err)
	}

	var billed int64
	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			billed = qs.TotalBytesBilled
		}
	}
	e.logger.Info("bigquery: query executed",
		slog.String("job_id", job.ID()),
		slog.Int64("estimated_bytes", estimated),
		slog.Int64("billed_bytes", billed),
		slog.Int("rows", len(table.Rows)),
		slog.Duration("latency", time.Since(start)),
	)
	return table, nil
}

// cancel asks BigQuery to stop job. It uses a fresh context because the
// caller's is usually already done.
func (e *Executor) cancel(job *bigquery.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	if err := job.Cancel(ctx); err != nil {
		e.logger.Warn("bigquery: cancel job failed", slog.String("job_id", job.ID()), slog.Any("err", err))
		return
	}
	e.logger.Info("bigquery: job cancelled", slog.String("job_id", job.ID()))
}

// cancelByID cancels a job whose insert never returned. A job that BigQuery
// never created is only logged.
func (e *Executor) cancelByID(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	job, err := e.client.JobFromIDLocation(ctx, id, e.client.Location)
	if err != nil {
		e.logger.Warn("bigquery: job lookup for cancel failed", slog.String("job_id", id), slog.Any("err", err))
		return
	}
	e.cancel(job)
}

func readTable(it *bigquery.RowIterator) (*warehouse.Table, error) {
	t := &warehouse.Table{}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		if t.Columns == nil {
			t.Columns = schemaColumns(it.Schema)
		}
		vals := make([]any, len(row))
		for i, v := range row {
			vals[i] = v
		}
		t.Rows = append(t.Rows, vals)
	}
	if t.Columns == nil {
		t.Columns = schemaColumns(it.Schema)
	}
	return t, nil
}

func schemaColumns(s bigquery.Schema) []string {
	cols := make([]string, 0, len(s))
	for _, f := range s {
		cols = append(cols, f.Name)
	}
	return cols
}

func classifyWithLimit(ctx context.Context, op string, err error, estimated, limit int64) error {
	if isBytesBilledLimit(err) {
		return fmt.Errorf("%w: %w", &warehouse.CostError{Estimated: estimated, Limit: limit}, err)
	}
	return classify(ctx, op, err)
}

func classify(ctx context.Context, op string, err error) error {
	if isBytesBilledLimit(err) {
		return fmt.Errorf("%w: bigquery %s: %w", warehouse.ErrCostLimitExceeded, op, err)
	}
	return warehouse.Classify(ctx, "bigquery "+op, err)
}

// isBytesBilledLimit reports whether err is BigQuery refusing a job because
// it would bill more than MaxBytesBilled.
func isBytesBilledLimit(err error) bool {
	var bqErr *bigquery.Error
	if errors.As(err, &bqErr) && bqErr.Reason == reasonBytesBilledLimit {
		return true
	}
	var mErr bigquery.MultiError
	if errors.As(err, &mErr) {
		for _, e := range mErr {
			if isBytesBilledLimit(e) {
				return true
			}
		}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		for _, item := range apiErr.Errors {
			if item.Reason == reasonBytesBilledLimit {
				return true
			}
		}
	}
	return false
}
