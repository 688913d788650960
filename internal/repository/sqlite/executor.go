package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/garnizeh/experts/pkg/warehouse"
)

// Dialect renders queries for SQLite. Named parameters use the @name form,
// which SQLite accepts alongside :name and $name.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) QuoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// Contains uses instr rather than LIKE so that % and _ in the topic stay
// literal and matching stays case-sensitive.
func (Dialect) Contains(column, param string) string {
	return fmt.Sprintf("instr(%s, @%s) > 0", column, param)
}

func (r *SQLiteRepo) Dialect() warehouse.Dialect { return Dialect{} }

// Estimate returns the logical bytes the query would bill if it ran on a
// columnar warehouse: every declared column is read in full, integers and
// floats cost 8 bytes per non-null value and text costs its UTF-8 length
// plus 2 bytes.
func (r *SQLiteRepo) Estimate(ctx context.Context, q warehouse.Query) (int64, error) {
	if len(q.Scans) == 0 {
		return 0, fmt.Errorf("%w: query declares no scans, cost cannot be estimated", warehouse.ErrExecution)
	}

	var total int64
	for _, s := range q.Scans {
		n, err := r.estimateScan(ctx, s)
		if err != nil {
			return 0, warehouse.Classify(ctx, "estimate "+s.Table, err)
		}
		total += n
	}

	return total, nil
}

func (r *SQLiteRepo) estimateScan(ctx context.Context, s warehouse.Scan) (int64, error) {
	if len(s.Columns) == 0 {
		return 0, nil
	}

	types, err := r.columnTypes(ctx, s.Table)
	if err != nil {
		return 0, err
	}

	exprs := make([]string, 0, len(s.Columns))
	for _, col := range s.Columns {
		typ, ok := types[strings.ToLower(col)]
		if !ok {
			return 0, fmt.Errorf("%w: no column %q in %s", warehouse.ErrExecution, col, s.Table)
		}
		exprs = append(exprs, columnBytesExpr(quoteIdent(col), typ))
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, " + "), Dialect{}.QuoteTable(s.Table))
	var n sql.NullInt64
	if err := r.conn.QueryRow(ctx, stmt).Scan(&n); err != nil {
		return 0, err
	}

	return n.Int64, nil
}

// columnTypes maps lower-cased column names of table to their declared type.
func (r *SQLiteRepo) columnTypes(ctx context.Context, table string) (map[string]string, error) {
	schema, name := "main", table
	if i := strings.LastIndex(table, "."); i >= 0 {
		schema, name = table[:i], table[i+1:]
	}

	rows, err := r.conn.QueryRows(ctx, `SELECT name, type FROM pragma_table_info(?, ?)`, name, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var col, typ string
		if err := rows.Scan(&col, &typ); err != nil {
			return nil, err
		}
		out[strings.ToLower(col)] = strings.ToUpper(typ)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no such table %s", warehouse.ErrExecution, table)
	}

	return out, nil
}

// columnBytesExpr follows SQLite type affinity rules to pick a byte cost.
func columnBytesExpr(col, declType string) string {
	switch {
	case strings.Contains(declType, "INT"):
		return fmt.Sprintf("COUNT(%s) * 8", col)
	case strings.Contains(declType, "CHAR"), strings.Contains(declType, "CLOB"), strings.Contains(declType, "TEXT"):
		return fmt.Sprintf("(COALESCE(SUM(LENGTH(CAST(%s AS BLOB))), 0) + 2 * COUNT(%s))", col, col)
	case declType == "", strings.Contains(declType, "BLOB"):
		return fmt.Sprintf("COALESCE(SUM(LENGTH(CAST(%s AS BLOB))), 0)", col)
	default:
		return fmt.Sprintf("COUNT(%s) * 8", col)
	}
}

// Run estimates q, rejects it when the estimate exceeds maxBytesBilled and
// otherwise executes it, returning every row.
func (r *SQLiteRepo) Run(ctx context.Context, q warehouse.Query, maxBytesBilled int64) (*warehouse.Table, error) {
	if maxBytesBilled <= 0 {
		return nil, warehouse.CheckCost(0, maxBytesBilled)
	}

	estimated, err := r.Estimate(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := warehouse.CheckCost(estimated, maxBytesBilled); err != nil {
		r.logger.Warn("query rejected by cost ceiling",
			slog.Int64("estimated_bytes", estimated),
			slog.Int64("max_bytes_billed", maxBytesBilled),
		)
		return nil, err
	}

	args := make([]any, 0, len(q.Params))
	for _, p := range q.Params {
		args = append(args, sql.Named(p.Name, p.Value))
	}

	start := time.Now()
	rows, err := r.conn.QueryRows(ctx, q.SQL, args...)
	if err != nil {
		return nil, warehouse.Classify(ctx, "run query", err)
	}
	defer rows.Close()

	table, err := readTable(rows)
	if err != nil {
		return nil, warehouse.Classify(ctx, "read rows", err)
	}

	r.logger.Info("query executed",
		slog.Int64("estimated_bytes", estimated),
		slog.Int("rows", len(table.Rows)),
		slog.Duration("latency", time.Since(start)),
	)
	return table, nil
}

func readTable(rows *sql.Rows) (*warehouse.Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	t := &warehouse.Table{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, vals)
	}

	return t, rows.Err()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
