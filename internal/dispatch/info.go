package dispatch

import (
	"context"
	"database/sql"
	"sync"

	"go.uber.org/zap"
)

// InfoQuery identifies one of the display-only informational commands:
// variables, users, databases, deadlock, memory, table sizes.
type InfoQuery string

const (
	InfoVariables  InfoQuery = "variables"
	InfoUsers      InfoQuery = "users"
	InfoDatabases  InfoQuery = "databases"
	InfoDeadlock   InfoQuery = "deadlock"
	InfoMemory     InfoQuery = "memory"
	InfoTableSizes InfoQuery = "table_sizes"
)

var infoStatements = map[InfoQuery]string{
	InfoVariables:  "SHOW GLOBAL VARIABLES",
	InfoUsers:      "SELECT user, host, account_locked, password_expired FROM mysql.user",
	InfoDatabases:  "SELECT schema_name, default_character_set_name, default_collation_name FROM information_schema.schemata",
	InfoDeadlock:   "SHOW ENGINE INNODB STATUS",
	InfoMemory:     "SELECT event_name, current_alloc, current_count FROM sys.memory_global_by_current_bytes",
	InfoTableSizes: "SELECT table_schema, table_name, data_length, index_length, table_rows FROM information_schema.tables WHERE table_schema NOT IN ('mysql','information_schema','performance_schema','sys')",
}

// InfoResult is a generic tabular result: column names plus rows of
// stringified cells, since each informational query has its own shape and
// the dispatcher has no business knowing them ahead of time.
type InfoResult struct {
	Columns []string
	Rows    [][]string
}

// InfoWorker runs informational commands against a tab's secondary
// connection, one at a time: the secondary handle is reserved for
// informational commands and some connection-status probes.
type InfoWorker struct {
	mu  sync.Mutex
	log *zap.Logger
}

// NewInfoWorker builds an InfoWorker.
func NewInfoWorker(log *zap.Logger) *InfoWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &InfoWorker{log: log}
}

// Run executes q against db, serialized against any other in-flight
// informational query on the same worker: the secondary connection may
// serve only one query at a time.
func (w *InfoWorker) Run(ctx context.Context, db *sql.DB, q InfoQuery) (*InfoResult, error) {
	stmt, ok := infoStatements[q]
	if !ok {
		return nil, &unknownInfoQueryError{q: q}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &InfoResult{Columns: cols}
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = v.String
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

type unknownInfoQueryError struct{ q InfoQuery }

func (e *unknownInfoQueryError) Error() string {
	return "dispatch: unknown informational query " + string(e.q)
}
