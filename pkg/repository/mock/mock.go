package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/garnizeh/experts/pkg/models"
	"github.com/garnizeh/experts/pkg/warehouse"
)

// Test helpers and mocks
type Mocks struct {
	Clients   *ClientRepo
	Warehouse *Warehouse
}

func NewMocks() *Mocks {
	return &Mocks{
		Clients:   &ClientRepo{clients: map[string]models.APIClient{}},
		Warehouse: &Warehouse{},
	}
}

type ClientRepo struct {
	mu        sync.Mutex
	clients   map[string]models.APIClient
	CreateErr error
	GetErr    error
}

func (m *ClientRepo) CreateClient(ctx context.Context, c *models.APIClient) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clients == nil {
		m.clients = map[string]models.APIClient{}
	}
	m.clients[c.ClientID] = *c
	return nil
}

func (m *ClientRepo) GetClient(ctx context.Context, clientID string) (*models.APIClient, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[clientID]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *ClientRepo) DeleteClient(ctx context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, clientID)
	return nil
}

// Dialect is a neutral dialect for the in-memory warehouse.
type Dialect struct{}

func (Dialect) Name() string                 { return "memory" }
func (Dialect) QuoteTable(name string) string { return name }
func (Dialect) Contains(column, param string) string {
	return fmt.Sprintf("contains(%s, @%s)", column, param)
}

// Warehouse is an in-memory executor. It ignores the SQL text and evaluates
// the topic lookup directly over Questions and Answers, reading the topic
// from the "topic" parameter.
type Warehouse struct {
	mu sync.Mutex

	Questions []models.Question
	Answers   []models.Answer

	// EstimatedBytes is what Estimate reports and what Run checks against
	// the ceiling.
	EstimatedBytes int64
	// Err, when set, is returned by Run after the cost check passes.
	Err error
	// Delay makes Run block until it elapses or the context is done.
	Delay time.Duration
	// Result, when set, is returned verbatim instead of evaluating the lookup.
	Result *warehouse.Table

	executions int
	lastQuery  warehouse.Query
}

var _ warehouse.Executor = (*Warehouse)(nil)

func (w *Warehouse) Dialect() warehouse.Dialect { return Dialect{} }

func (w *Warehouse) Estimate(ctx context.Context, q warehouse.Query) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.EstimatedBytes, nil
}

func (w *Warehouse) Run(ctx context.Context, q warehouse.Query, maxBytesBilled int64) (*warehouse.Table, error) {
	w.mu.Lock()
	est, runErr, delay := w.EstimatedBytes, w.Err, w.Delay
	w.mu.Unlock()

	if err := warehouse.CheckCost(est, maxBytesBilled); err != nil {
		return nil, err
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, warehouse.Classify(ctx, "run", ctx.Err())
		case <-timer.C:
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.executions++
	w.lastQuery = q

	if runErr != nil {
		return nil, runErr
	}
	if w.Result != nil {
		return w.Result, nil
	}

	var topic string
	for _, p := range q.Params {
		if p.Name == "topic" {
			topic, _ = p.Value.(string)
		}
	}

	tags := make(map[int64]string, len(w.Questions))
	for _, qu := range w.Questions {
		tags[qu.ID] = qu.Tags
	}

	counts := make(map[int64]int64)
	var anonymous int64
	for _, a := range w.Answers {
		t, ok := tags[a.ParentID]
		if !ok || !strings.Contains(t, topic) {
			continue
		}
		if a.OwnerUserID == nil {
			anonymous++
			continue
		}
		counts[*a.OwnerUserID]++
	}

	table := &warehouse.Table{Columns: []string{"user_id", "number_of_answers"}}
	for id, n := range counts {
		table.Rows = append(table.Rows, []any{id, n})
	}
	if anonymous > 0 {
		table.Rows = append(table.Rows, []any{nil, anonymous})
	}

	return table, nil
}

// Executions returns how many queries passed the cost check and ran.
func (w *Warehouse) Executions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.executions
}

// LastQuery returns the most recent executed query.
func (w *Warehouse) LastQuery() warehouse.Query {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastQuery
}
