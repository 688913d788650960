// Package experts finds the users who answered questions on a topic.
//
// A lookup joins answers to their parent questions, keeps questions whose
// free-text tags contain the topic as a literal, case-sensitive substring,
// and counts answers per owner. Substring matching is deliberately loose:
// "go" also matches "google-bigquery". Each lookup issues exactly one query,
// under a byte-scan ceiling that the executor enforces before running it.
package experts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/garnizeh/experts/pkg/models"
	"github.com/garnizeh/experts/pkg/warehouse"
)

// MaxTopicLength bounds the topic in bytes.
const MaxTopicLength = 256

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the experts package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Finder runs topic lookups against one executor. It holds no mutable state
// and is safe for concurrent use when its executor is.
type Finder struct {
	exec      warehouse.Executor
	relations Relations
}

func NewFinder(exec warehouse.Executor, rel Relations) (*Finder, error) {
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if err := rel.Validate(); err != nil {
		return nil, err
	}
	return &Finder{exec: exec, relations: rel}, nil
}

// FindExperts runs a single lookup over DefaultRelations.
func FindExperts(ctx context.Context, topic string, exec warehouse.Executor, costCeilingBytes int64) ([]models.ExpertRecord, error) {
	f, err := NewFinder(exec, DefaultRelations)
	if err != nil {
		return nil, err
	}
	return f.Find(ctx, topic, costCeilingBytes)
}

// Find returns one record per answer owner, ordered by answer count
// descending and then by user id. Topics that match nothing yield an empty,
// non-nil slice. Errors wrap one of the warehouse sentinels.
func (f *Finder) Find(ctx context.Context, topic string, costCeilingBytes int64) ([]models.ExpertRecord, error) {
	if costCeilingBytes <= 0 {
		return nil, fmt.Errorf("%w: cost ceiling must be positive, got %d", warehouse.ErrInvalidInput, costCeilingBytes)
	}

	q, err := BuildQuery(f.exec.Dialect(), f.relations, topic)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	table, err := f.exec.Run(ctx, q, costCeilingBytes)
	if err != nil {
		err = warehouse.Classify(ctx, "find experts", err)
		logFailure(topic, costCeilingBytes, err)
		return nil, err
	}

	records, err := toRecords(ctx, table)
	if err != nil {
		logger.Error("unexpected result shape", "topic", topic, "dialect", f.exec.Dialect().Name(), "err", err)
		return nil, err
	}
	sortRecords(records)

	logger.Info("experts found",
		"topic", topic,
		"dialect", f.exec.Dialect().Name(),
		"experts", len(records),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return records, nil
}

// ValidateTopic rejects topics that are blank, too long, not UTF-8 or that
// contain control characters.
func ValidateTopic(topic string) error {
	switch {
	case len(topic) == 0 || isBlank(topic):
		return fmt.Errorf("%w: topic is empty", warehouse.ErrInvalidInput)
	case len(topic) > MaxTopicLength:
		return fmt.Errorf("%w: topic longer than %d bytes", warehouse.ErrInvalidInput, MaxTopicLength)
	case !utf8.ValidString(topic):
		return fmt.Errorf("%w: topic is not valid UTF-8", warehouse.ErrInvalidInput)
	}
	for _, r := range topic {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: topic contains control character %U", warehouse.ErrInvalidInput, r)
		}
	}
	return nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// TotalAnswers sums the answer counts of records.
func TotalAnswers(records []models.ExpertRecord) int64 {
	var n int64
	for _, r := range records {
		n += r.NumberOfAnswers
	}
	return n
}

func sortRecords(rs []models.ExpertRecord) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].NumberOfAnswers != rs[j].NumberOfAnswers {
			return rs[i].NumberOfAnswers > rs[j].NumberOfAnswers
		}
		// anonymous group last among equal counts
		if rs[i].UserID == nil || rs[j].UserID == nil {
			return rs[j].UserID == nil && rs[i].UserID != nil
		}
		return *rs[i].UserID < *rs[j].UserID
	})
}

func logFailure(topic string, ceiling int64, err error) {
	var ce *warehouse.CostError
	switch {
	case errors.As(err, &ce):
		logger.Warn("lookup rejected by cost ceiling", "topic", topic, "estimated_bytes", ce.Estimated, "max_bytes_billed", ceiling)
	case errors.Is(err, warehouse.ErrCostLimitExceeded):
		logger.Warn("lookup rejected by cost ceiling", "topic", topic, "max_bytes_billed", ceiling)
	case errors.Is(err, warehouse.ErrCancelled):
		logger.Info("lookup cancelled", "topic", topic, "err", err)
	default:
		logger.Error("lookup failed", "topic", topic, "err", err)
	}
}
