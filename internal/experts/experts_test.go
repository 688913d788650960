package experts_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	dbfs "github.com/garnizeh/experts/db"
	dbpkg "github.com/garnizeh/experts/internal/db"
	"github.com/garnizeh/experts/internal/experts"
	sqlite "github.com/garnizeh/experts/internal/repository/sqlite"
	"github.com/garnizeh/experts/pkg/models"
	"github.com/garnizeh/experts/pkg/repository/mock"
	"github.com/garnizeh/experts/pkg/warehouse"
)

func ptr(v int64) *int64 { return &v }

var (
	scenarioQuestions = []models.Question{{ID: 1, Title: "q", Tags: "bigquery;sql"}}
	scenarioAnswers   = []models.Answer{
		{ID: 10, ParentID: 1, OwnerUserID: ptr(501)},
		{ID: 11, ParentID: 1, OwnerUserID: ptr(501)},
		{ID: 12, ParentID: 1, OwnerUserID: ptr(502)},
	}
)

func setupSQLite(t *testing.T, questions []models.Question, answers []models.Answer) *sqlite.SQLiteRepo {
	t.Helper()
	ctx := context.Background()
	d, err := dbpkg.New(ctx, "file:"+t.Name()+"?mode=memory&cache=shared", nil)
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := sqlite.New(d, nil)
	for _, q := range questions {
		if _, err := repo.CreateQuestion(ctx, &q); err != nil {
			t.Fatalf("CreateQuestion: %v", err)
		}
	}
	for _, a := range answers {
		if _, err := repo.CreateAnswer(ctx, &a); err != nil {
			t.Fatalf("CreateAnswer: %v", err)
		}
	}
	return repo
}

func newMockWarehouse(questions []models.Question, answers []models.Answer) *mock.Warehouse {
	w := mock.NewMocks().Warehouse
	w.Questions = questions
	w.Answers = answers
	w.EstimatedBytes = 100
	return w
}

func assertScenario(t *testing.T, got []models.ExpertRecord) {
	t.Helper()
	if len(got) != 2 {
		t.Fatalf("expected 2 experts, got %d: %+v", len(got), got)
	}
	if got[0].UserID == nil || *got[0].UserID != 501 || got[0].NumberOfAnswers != 2 {
		t.Fatalf("unexpected first record: %+v", got[0])
	}
	if got[1].UserID == nil || *got[1].UserID != 502 || got[1].NumberOfAnswers != 1 {
		t.Fatalf("unexpected second record: %+v", got[1])
	}
}

func TestFindExperts_Scenario(t *testing.T) {
	ctx := context.Background()
	executors := map[string]warehouse.Executor{
		"sqlite": setupSQLite(t, scenarioQuestions, scenarioAnswers),
		"memory": newMockWarehouse(scenarioQuestions, scenarioAnswers),
	}

	for name, exec := range executors {
		got, err := experts.FindExperts(ctx, "bigquery", exec, 1<<30)
		if err != nil {
			t.Fatalf("%s: FindExperts error: %v", name, err)
		}
		assertScenario(t, got)

		none, err := experts.FindExperts(ctx, "nonexistent-tag", exec, 1<<30)
		if err != nil {
			t.Fatalf("%s: expected no error for unmatched topic, got %v", name, err)
		}
		if none == nil || len(none) != 0 {
			t.Fatalf("%s: expected empty non-nil result, got %#v", name, none)
		}
	}
}

func TestFindExperts_CostCeiling(t *testing.T) {
	ctx := context.Background()

	repo := setupSQLite(t, scenarioQuestions, scenarioAnswers)
	_, err := experts.FindExperts(ctx, "bigquery", repo, 1)
	if !errors.Is(err, warehouse.ErrCostLimitExceeded) {
		t.Fatalf("expected ErrCostLimitExceeded, got %v", err)
	}
	var ce *warehouse.CostError
	if !errors.As(err, &ce) || ce.Limit != 1 || ce.Estimated <= 1 {
		t.Fatalf("expected *CostError with estimate, got %#v", err)
	}

	w := newMockWarehouse(scenarioQuestions, scenarioAnswers)
	w.EstimatedBytes = 2 << 20
	if _, err := experts.FindExperts(ctx, "bigquery", w, 1<<20); !errors.Is(err, warehouse.ErrCostLimitExceeded) {
		t.Fatalf("expected ErrCostLimitExceeded, got %v", err)
	}
	if n := w.Executions(); n != 0 {
		t.Fatalf("rejected query must not execute, executions=%d", n)
	}
}

func TestFindExperts_InvalidInput(t *testing.T) {
	ctx := context.Background()
	w := newMockWarehouse(scenarioQuestions, scenarioAnswers)

	topics := map[string]string{
		"empty":   "",
		"blank":   "   ",
		"long":    strings.Repeat("x", experts.MaxTopicLength+1),
		"nul":     "sql\x00",
		"newline": "sql\nDROP",
		"utf8":    "\xff\xfe",
	}
	for name, topic := range topics {
		if _, err := experts.FindExperts(ctx, topic, w, 1<<20); !errors.Is(err, warehouse.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}

	if _, err := experts.FindExperts(ctx, "sql", w, 0); !errors.Is(err, warehouse.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero ceiling, got %v", err)
	}
	if n := w.Executions(); n != 0 {
		t.Fatalf("invalid input must not execute, executions=%d", n)
	}

	if _, err := experts.FindExperts(ctx, "sql", nil, 1); err == nil {
		t.Fatalf("expected error for nil executor")
	}
}

func TestFindExperts_Properties(t *testing.T) {
	ctx := context.Background()
	questions := []models.Question{
		{ID: 1, Tags: "google-bigquery|sql"},
		{ID: 2, Tags: "sql|window-functions"},
		{ID: 3, Tags: "go|google-bigquery"},
		{ID: 4, Tags: "go|concurrency"},
		{ID: 5, Tags: "100%|_odd"},
	}
	answers := []models.Answer{
		{ID: 10, ParentID: 1, OwnerUserID: ptr(501)},
		{ID: 11, ParentID: 1, OwnerUserID: ptr(501)},
		{ID: 12, ParentID: 1, OwnerUserID: ptr(502)},
		{ID: 13, ParentID: 2, OwnerUserID: ptr(503)},
		{ID: 14, ParentID: 3, OwnerUserID: ptr(501)},
		{ID: 15, ParentID: 4, OwnerUserID: ptr(504)},
		{ID: 16, ParentID: 3},
		{ID: 17, ParentID: 5, OwnerUserID: ptr(505)},
	}

	// expected answer totals by topic, counted by hand from the data above
	want := map[string]int64{
		"google-bigquery": 5,
		"sql":             4,
		"go":              6,
		"concurrency":     1,
		"SQL":             0,
		"%":               1,
		"_":               1,
		"nothing-here":    0,
	}

	repo := setupSQLite(t, questions, answers)
	mem := newMockWarehouse(questions, answers)

	for name, exec := range map[string]warehouse.Executor{"sqlite": repo, "memory": mem} {
		for topic, total := range want {
			got, err := experts.FindExperts(ctx, topic, exec, 1<<30)
			if err != nil {
				t.Fatalf("%s/%s: %v", name, topic, err)
			}
			if sum := experts.TotalAnswers(got); sum != total {
				t.Fatalf("%s/%s: expected %d answers, got %d (%+v)", name, topic, total, sum, got)
			}
			seen := map[string]bool{}
			for _, r := range got {
				if r.NumberOfAnswers < 1 {
					t.Fatalf("%s/%s: zero-count group %+v", name, topic, r)
				}
				key := "null"
				if r.UserID != nil {
					key = strconv.FormatInt(*r.UserID, 10)
				}
				if seen[key] {
					t.Fatalf("%s/%s: duplicate user %+v", name, topic, r)
				}
				seen[key] = true
			}

			again, err := experts.FindExperts(ctx, topic, exec, 1<<30)
			if err != nil {
				t.Fatalf("%s/%s: second call: %v", name, topic, err)
			}
			if len(again) != len(got) {
				t.Fatalf("%s/%s: not idempotent: %+v vs %+v", name, topic, got, again)
			}
			for i := range got {
				if got[i].NumberOfAnswers != again[i].NumberOfAnswers || !sameUser(got[i].UserID, again[i].UserID) {
					t.Fatalf("%s/%s: not idempotent at %d: %+v vs %+v", name, topic, i, got[i], again[i])
				}
			}
		}
	}
}

func sameUser(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func TestFindExperts_AnonymousOwnersGroupedLast(t *testing.T) {
	ctx := context.Background()
	answers := append([]models.Answer{{ID: 20, ParentID: 1}}, scenarioAnswers...)
	repo := setupSQLite(t, scenarioQuestions, answers)

	got, err := experts.FindExperts(ctx, "sql", repo, 1<<30)
	if err != nil {
		t.Fatalf("FindExperts error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 groups, got %+v", got)
	}
	if got[2].UserID != nil || got[2].NumberOfAnswers != 1 {
		t.Fatalf("expected anonymous group last, got %+v", got[2])
	}
	if experts.TotalAnswers(got) != 4 {
		t.Fatalf("expected 4 answers in total, got %d", experts.TotalAnswers(got))
	}
}

func TestFindExperts_Cancelled(t *testing.T) {
	w := newMockWarehouse(scenarioQuestions, scenarioAnswers)
	w.Delay = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := experts.FindExperts(ctx, "bigquery", w, 1<<20)
	if !errors.Is(err, warehouse.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("cancellation did not abort the query")
	}
}

func TestFindExperts_ExecutionError(t *testing.T) {
	w := newMockWarehouse(scenarioQuestions, scenarioAnswers)
	w.Err = errors.New("permission denied")

	_, err := experts.FindExperts(context.Background(), "bigquery", w, 1<<20)
	if !errors.Is(err, warehouse.ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
	if !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected cause in message, got %v", err)
	}
	if n := w.Executions(); n != 1 {
		t.Fatalf("expected exactly one execution without retries, got %d", n)
	}
}

func TestFindExperts_RejectsBadShape(t *testing.T) {
	tables := map[string]*warehouse.Table{
		"columns":   {Columns: []string{"owner", "n"}, Rows: [][]any{{int64(1), int64(1)}}},
		"zero":      {Columns: []string{"user_id", "number_of_answers"}, Rows: [][]any{{int64(1), int64(0)}}},
		"duplicate": {Columns: []string{"user_id", "number_of_answers"}, Rows: [][]any{{int64(1), int64(1)}, {int64(1), int64(2)}}},
		"string":    {Columns: []string{"user_id", "number_of_answers"}, Rows: [][]any{{"abc", int64(1)}}},
		"short":     {Columns: []string{"user_id", "number_of_answers"}, Rows: [][]any{{int64(1)}}},
		"extra":     {Columns: []string{"user_id", "number_of_answers", "score"}, Rows: [][]any{{int64(1), int64(1), int64(9)}}},
		"missing":   {Columns: []string{"number_of_answers"}, Rows: [][]any{{int64(1)}}},
		"repeated":  {Columns: []string{"user_id", "user_id"}, Rows: [][]any{{int64(1), int64(1)}}},
		"empty":     {Columns: []string{"owner", "n"}},
	}

	for name, tbl := range tables {
		w := newMockWarehouse(nil, nil)
		w.Result = tbl
		if _, err := experts.FindExperts(context.Background(), "x", w, 1<<20); !errors.Is(err, warehouse.ErrExecution) {
			t.Fatalf("%s: expected ErrExecution, got %v", name, err)
		}
	}
}

func TestFindExperts_ColumnsMatchedByName(t *testing.T) {
	w := newMockWarehouse(nil, nil)
	w.Result = &warehouse.Table{
		Columns: []string{"number_of_answers", "user_id"},
		Rows:    [][]any{{int64(2), int64(501)}, {int64(1), nil}},
	}

	got, err := experts.FindExperts(context.Background(), "x", w, 1<<20)
	if err != nil {
		t.Fatalf("FindExperts: %v", err)
	}
	if len(got) != 2 || got[0].UserID == nil || *got[0].UserID != 501 || got[0].NumberOfAnswers != 2 {
		t.Fatalf("unexpected records: %+v", got)
	}
	if got[1].UserID != nil || got[1].NumberOfAnswers != 1 {
		t.Fatalf("expected anonymous group last, got %+v", got[1])
	}
}

func TestFinder_Concurrent(t *testing.T) {
	repo := setupSQLite(t, scenarioQuestions, scenarioAnswers)
	f, err := experts.NewFinder(repo, experts.DefaultRelations)
	if err != nil {
		t.Fatalf("NewFinder: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.Find(context.Background(), "bigquery", 1<<30)
			if err != nil {
				errs <- err
				return
			}
			if experts.TotalAnswers(got) != 3 {
				errs <- errors.New("unexpected total")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent find: %v", err)
	}
}

func TestBuildQuery(t *testing.T) {
	q, err := experts.BuildQuery(sqlite.Dialect{}, experts.DefaultRelations, "it's; DROP TABLE x")
	if err != nil {
		t.Fatalf("BuildQuery error: %v", err)
	}
	if strings.Contains(q.SQL, "DROP") {
		t.Fatalf("topic leaked into SQL text: %s", q.SQL)
	}
	if !strings.Contains(q.SQL, "@topic") || !strings.Contains(q.SQL, "a.parent_id = q.id") {
		t.Fatalf("unexpected SQL: %s", q.SQL)
	}
	if len(q.Params) != 1 || q.Params[0].Name != experts.TopicParam || q.Params[0].Value != "it's; DROP TABLE x" {
		t.Fatalf("unexpected params: %+v", q.Params)
	}
	if len(q.Scans) != 2 {
		t.Fatalf("expected scans for both relations, got %+v", q.Scans)
	}

	bad := experts.Relations{Questions: "posts_questions; --", Answers: "posts_answers"}
	if _, err := experts.BuildQuery(sqlite.Dialect{}, bad, "sql"); !errors.Is(err, warehouse.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad relation, got %v", err)
	}
	if _, err := experts.NewFinder(mock.NewMocks().Warehouse, bad); err == nil {
		t.Fatalf("expected NewFinder to reject bad relation")
	}
	if err := experts.PublicDatasetRelations.Validate(); err != nil {
		t.Fatalf("public dataset relations should be valid: %v", err)
	}
}
