// Package warehouse defines the narrow contract between the expert finder and
// the data warehouse that holds the posts tables. Concrete executors live
// under internal/repository.
package warehouse

import "context"

// Param is a named query parameter. Query text refers to it as @Name.
type Param struct {
	Name  string
	Value any
}

// Scan names a table and the columns a query reads from it. Executors that
// cannot plan a query use scans to estimate how many bytes it will bill.
type Scan struct {
	Table   string
	Columns []string
}

// Query is a parameterized statement ready to run on a specific dialect.
type Query struct {
	SQL    string
	Params []Param
	Scans  []Scan
}

// Table is a tabular result set. Values in a row line up with Columns.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Dialect renders the backend-specific pieces of a query.
type Dialect interface {
	Name() string
	// QuoteTable quotes a (possibly qualified) relation name.
	QuoteTable(name string) string
	// Contains returns a boolean expression that is true when column holds
	// the value of the named parameter as a literal substring.
	Contains(column, param string) string
}

// Executor runs read-only queries under a byte-scan ceiling.
//
// Run must estimate the query and fail with a *CostError before executing it
// when the estimate exceeds maxBytesBilled. Implementations must be safe for
// concurrent use.
type Executor interface {
	Dialect() Dialect
	Estimate(ctx context.Context, q Query) (int64, error)
	Run(ctx context.Context, q Query, maxBytesBilled int64) (*Table, error)
}
