// Package source materializes the raw event tables from a SQLite database.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	sderrors "github.com/sitdown/sitdown/internal/errors"
	"github.com/sitdown/sitdown/internal/logging"
	"github.com/sitdown/sitdown/pkg/types"
)

// SQLiteLoader reads event tables from a SQLite database opened read-only.
type SQLiteLoader struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewSQLiteLoader opens the database at path. The file must exist.
func NewSQLiteLoader(path string, logger *zap.Logger) (*SQLiteLoader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, sderrors.NewStorageError(sderrors.CodeObjectNotFound,
			fmt.Sprintf("source database %s", path), err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, sderrors.NewStorageError(sderrors.CodeDownloadFailed, "open source database", err)
	}
	db.SetMaxOpenConns(4)

	return &SQLiteLoader{
		db:     db,
		path:   path,
		logger: logging.WithComponent(logging.OrNop(logger), "source"),
	}, nil
}

// Close closes the database.
func (l *SQLiteLoader) Close() error {
	return l.db.Close()
}

// Load materializes one table with every column, in rowid order.
func (l *SQLiteLoader) Load(ctx context.Context, table string) (*types.Table, error) {
	exists, err := l.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, sderrors.New(sderrors.ErrCategoryStorage, sderrors.CodeTableNotFound,
			fmt.Sprintf("table %q not found in %s", table, l.path)).
			WithDetails(map[string]interface{}{"table": table, "database": l.path})
	}

	rows, err := l.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", quoteIdent(table)))
	if err != nil {
		return nil, sderrors.NewStorageError(sderrors.CodeDownloadFailed, "query table "+table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, sderrors.NewStorageError(sderrors.CodeDownloadFailed, "read columns of "+table, err)
	}

	result := types.NewTable(table, columns...)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, sderrors.NewStorageError(sderrors.CodeDownloadFailed, "scan row of "+table, err)
		}
		result.Append(values...)
	}
	if err := rows.Err(); err != nil {
		return nil, sderrors.NewStorageError(sderrors.CodeDownloadFailed, "iterate "+table, err)
	}

	l.logger.Info("loaded table",
		zap.String("table", table),
		zap.Int("rows", result.Len()),
		zap.Int("columns", len(columns)))
	return result, nil
}

// LoadAll loads the table of every standard event type in canonical order.
// tables maps event type to table name; unmapped types use their own name.
// The returned slice is parallel to types.StandardEventTypes.
func (l *SQLiteLoader) LoadAll(ctx context.Context, tables map[string]string) ([]*types.Table, error) {
	out := make([]*types.Table, 0, len(types.StandardEventTypes))
	for _, et := range types.StandardEventTypes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := tables[et]
		if name == "" {
			name = et
		}
		t, err := l.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (l *SQLiteLoader) tableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?", table).Scan(&n)
	if err != nil {
		return false, sderrors.NewStorageError(sderrors.CodeDownloadFailed, "inspect source schema", err)
	}
	return n > 0, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
