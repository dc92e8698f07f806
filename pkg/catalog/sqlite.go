package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
)

// containsFunc is registered on every connection. It matches like Filter:
// Unicode case-insensitive substring, no wildcard characters.
const containsFunc = "catalog_contains"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(containsFunc, 2, sqlContains)
}

func sqlContains(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	text := func(v driver.Value) (string, bool) {
		switch v := v.(type) {
		case nil:
			return "", false
		case []byte:
			return string(v), true
		case string:
			return v, true
		default:
			return fmt.Sprint(v), true
		}
	}
	haystack, ok1 := text(args[0])
	needle, ok2 := text(args[1])
	if !ok1 || !ok2 {
		return int64(0), nil
	}
	if strings.Contains(strings.ToLower(haystack), strings.ToLower(needle)) {
		return int64(1), nil
	}
	return int64(0), nil
}

// DefaultTable is the table SQLiteSource reads when none is configured.
const DefaultTable = "catalog"

// SQLiteSource serves a catalog stored as rows of one SQLite table. Column
// order is preserved in the returned records; NULL columns are omitted.
type SQLiteSource struct {
	db    *sql.DB
	path  string
	table string
	limit int
}

// SQLiteOption configures a SQLiteSource.
type SQLiteOption func(*SQLiteSource)

// WithTable selects the catalog table.
func WithTable(name string) SQLiteOption {
	return func(s *SQLiteSource) {
		s.table = name
	}
}

// WithRowLimit caps the number of records returned per lookup.
func WithRowLimit(n int) SQLiteOption {
	return func(s *SQLiteSource) {
		s.limit = n
	}
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteSource{db: db, path: path, table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Name returns the source identifier.
func (s *SQLiteSource) Name() string {
	return "sqlite:" + filepath.Base(s.path)
}

// Import replaces the table contents with records. The table gets one
// untyped column per distinct field name, in first-seen order.
func (s *SQLiteSource) Import(ctx context.Context, records []Record) error {
	var columns []string
	seen := make(map[string]bool)
	for _, r := range records {
		for _, f := range r.fields {
			if !seen[f.Name] {
				seen[f.Name] = true
				columns = append(columns, f.Name)
			}
		}
	}
	if len(columns) == 0 {
		return fmt.Errorf("import: records have no fields")
	}

	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		marks[i] = "?"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	table := quoteIdent(s.table)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(quoted, ", "))); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		args := make([]any, len(columns))
		for j, c := range columns {
			v, ok := r.Get(c)
			if !ok {
				continue
			}
			arg, err := sqlValue(v)
			if err != nil {
				return fmt.Errorf("record %d field %s: %w", i, c, err)
			}
			args[j] = arg
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Lookup returns the rows whose columns contain every identified parameter,
// or every row when nothing is identified or nothing matches.
func (s *SQLiteSource) Lookup(ctx context.Context, params SearchParams) ([]Record, error) {
	columns, err := s.columns(ctx)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns", s.table)
	}

	if !params.Empty() {
		where, args, ok := s.where(columns, params)
		if ok {
			records, err := s.query(ctx, columns, where, args)
			if err != nil {
				return nil, err
			}
			if len(records) > 0 {
				return records, nil
			}
		}
	}
	return s.query(ctx, columns, "", nil)
}

func (s *SQLiteSource) where(columns []string, params SearchParams) (string, []any, bool) {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}

	values := params.Values()
	var clauses []string
	var args []any
	for _, key := range ParamKeys {
		want, ok := values[key]
		if !ok {
			continue
		}
		if !have[key] {
			return "", nil, false
		}
		col := quoteIdent(key)
		if key == ParamYear {
			clauses = append(clauses, fmt.Sprintf("TRIM(CAST(%s AS TEXT)) = ?", col))
			args = append(args, want)
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s(CAST(%s AS TEXT), ?)", containsFunc, col))
		args = append(args, want)
	}
	return strings.Join(clauses, " AND "), args, true
}

func (s *SQLiteSource) query(ctx context.Context, columns []string, where string, args []any) ([]Record, error) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(s.table))
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY rowid"
	if s.limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", s.limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		fields := make([]Field, 0, len(columns))
		for i, c := range columns {
			v := values[i]
			if v == nil {
				continue
			}
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			fields = append(fields, Field{Name: c, Value: v})
		}
		records = append(records, NewRecord(fields...))
	}
	return records, rows.Err()
}

func (s *SQLiteSource) columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(s.table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read table info: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

func sqlValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, int64, float64, bool:
		return x, nil
	case int:
		return int64(x), nil
	case []byte:
		return string(x), nil
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
