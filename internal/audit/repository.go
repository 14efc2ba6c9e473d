package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Result values stored with each entry.
const (
	ResultSent   = "sent"
	ResultFailed = "failed"
)

// timeFormat is fixed-width so created_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Paging bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// Entry is one audited message.
type Entry struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Result     string    `json:"result"`
	DeviceType string    `json:"device_type,omitempty"`
	State      string    `json:"state,omitempty"`
	Code       string    `json:"code,omitempty"`
	Value      *bool     `json:"value,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS float64   `json:"duration_ms,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter selects entries for List. Zero fields match everything.
type Filter struct {
	SessionID  string
	DeviceType string
	Result     string
	Limit      int // default 50, max 200
	Offset     int
}

// ListResult is a page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and queries audit entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository implements Repository on the dispatch_log table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e, filling ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "dsp-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var value any
	if e.Value != nil {
		value = boolToInt(*e.Value)
	}
	var duration any
	if e.Result == ResultSent || e.Result == ResultFailed {
		duration = e.DurationMS
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dispatch_log (id, session_id, result, device_type, state, code, value, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Result,
		nullableString(e.DeviceType), nullableString(e.State), nullableString(e.Code),
		value, nullableString(e.Error), duration,
		e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	for _, c := range []struct {
		column, value string
	}{
		{"session_id", filter.SessionID},
		{"device_type", filter.DeviceType},
		{"result", filter.Result},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM dispatch_log " + where //nolint:gosec // columns are constants, values are bound
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := "SELECT id, session_id, result, device_type, state, code, value, error, duration_ms, created_at " + //nolint:gosec // as above
		"FROM dispatch_log " + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                                Entry
		deviceType, state, code, errText sql.NullString
		value                            sql.NullInt64
		duration                         sql.NullFloat64
		createdAt                        string
	)
	if err := rows.Scan(&e.ID, &e.SessionID, &e.Result, &deviceType, &state, &code,
		&value, &errText, &duration, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scanning audit entry: %w", err)
	}

	e.DeviceType = deviceType.String
	e.State = state.String
	e.Code = code.String
	e.Error = errText.String
	e.DurationMS = duration.Float64
	if value.Valid {
		v := value.Int64 == 1
		e.Value = &v
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
