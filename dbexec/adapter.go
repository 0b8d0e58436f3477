// ABOUTME: Read-only SQL execution adapter with statement timeout and row cap.
// ABOUTME: Also fetches small sample rows for value grounding and runs result sanity checks.
package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ExecutionError is a backend-reported SQL failure (unknown column, syntax
// error, timeout). The orchestrator feeds its message into the
// self-correction loop.
type ExecutionError struct {
	SQL   string
	Cause error
}

func (e *ExecutionError) Error() string {
	return "execution failed: " + e.Cause.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Result holds the rows returned by one approved query.
type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool // row cap reached; more rows existed
}

// RowCount returns the number of rows fetched.
func (r *Result) RowCount() int { return len(r.Rows) }

// Adapter runs approved SQL read-only against one database. The safety gate
// is the primary defense; the adapter adds a statement timeout and a hard
// row cap as the second layer.
type Adapter struct {
	db      *sql.DB
	timeout time.Duration
	rowCap  int
}

// New creates an Adapter. timeout <= 0 defaults to 30s; rowCap <= 0 defaults
// to 1000.
func New(db *sql.DB, timeout time.Duration, rowCap int) *Adapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if rowCap <= 0 {
		rowCap = 1000
	}
	return &Adapter{db: db, timeout: timeout, rowCap: rowCap}
}

// Query executes the SQL and scans up to rowCap+1 rows; the extra row only
// sets Truncated. All driver errors come back as *ExecutionError.
func (a *Adapter) Query(ctx context.Context, sqlText string) (*Result, error) {
	qctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	rows, err := a.db.QueryContext(qctx, sqlText)
	if err != nil {
		return nil, &ExecutionError{SQL: sqlText, Cause: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &ExecutionError{SQL: sqlText, Cause: err}
	}

	result := &Result{Columns: cols}
	for rows.Next() {
		if len(result.Rows) >= a.rowCap {
			result.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &ExecutionError{SQL: sqlText, Cause: err}
		}
		for i, v := range values {
			// Normalize byte slices so results serialize as text.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{SQL: sqlText, Cause: err}
	}

	return result, nil
}

// SampleRows fetches up to n rows from a table for ambiguous-value grounding.
// Callers must pass a canonical table name from the introspected schema; the
// name is quoted as an identifier, not interpolated as SQL.
func (a *Adapter) SampleRows(ctx context.Context, table string, n int) (*Result, error) {
	if n <= 0 {
		n = 3
	}
	return a.Query(ctx, fmt.Sprintf("SELECT * FROM %q LIMIT %d", table, n))
}

// CheckResult runs deterministic sanity checks over an execution result and
// returns human-readable warnings. An empty result is not a warning: "no
// rows found" is a valid answer.
func CheckResult(r *Result) []string {
	var warnings []string

	if r.Truncated {
		warnings = append(warnings, "result was truncated at the row cap; counts may be incomplete")
	}

	if len(r.Rows) > 0 {
		for ci, col := range r.Columns {
			allNull := true
			for _, row := range r.Rows {
				if row[ci] != nil {
					allNull = false
					break
				}
			}
			if allNull {
				warnings = append(warnings, fmt.Sprintf("column %q is NULL in every returned row", col))
			}
		}
	}

	return warnings
}
