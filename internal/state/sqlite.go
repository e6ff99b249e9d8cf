package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// timeLayout is used for every stored timestamp so rows sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a launch does not exist.
var ErrNotFound = errors.New("launch not found")

// SQLiteStore persists launches in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger, now: time.Now}
}

// NewSQLiteStoreWithDB wraps an already opened database.
func NewSQLiteStoreWithDB(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	s := NewSQLiteStore(logger)
	s.db = db
	return s
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps in-memory databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("opened history store", slog.String("path", path))
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path passed to Open.
func (s *SQLiteStore) Path() string {
	return s.path
}

// CreateLaunch records a new running launch and assigns its ID.
func (s *SQLiteStore) CreateLaunch(ctx context.Context, l *Launch) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	l.ID = uuid.New().String()
	l.Status = LaunchStatusRunning
	l.StartedAt = s.now().UTC()

	s.logger.Debug("creating launch", slog.String("id", l.ID), slog.String("task", l.Task))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO launches (id, task, model, data, project, name, device, epochs, runner, kwargs, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Task, l.Model, l.Data, l.Project, l.Name, l.Device, l.Epochs, l.Runner, l.Kwargs,
		string(l.Status), l.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create launch: %w", err)
	}
	return nil
}

// CompleteLaunch marks a launch finished with the given status.
func (s *SQLiteStore) CompleteLaunch(ctx context.Context, id string, status LaunchStatus, exitCode int, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errVal sql.NullString
	if errMsg != "" {
		errVal = sql.NullString{String: errMsg, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE launches SET status = ?, exit_code = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), exitCode, errVal, s.now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete launch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const launchColumns = `id, task, model, data, project, name, device, epochs, runner, kwargs, status, exit_code, error, started_at, completed_at`

// GetLaunch retrieves a launch by ID or unique ID prefix.
func (s *SQLiteStore) GetLaunch(ctx context.Context, id string) (*Launch, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+launchColumns+` FROM launches WHERE id LIKE ? ORDER BY started_at DESC`,
		likePrefix(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get launch: %w", err)
	}
	launches, err := scanLaunches(rows)
	if err != nil {
		return nil, err
	}

	for _, l := range launches {
		if l.ID == id {
			return l, nil
		}
	}
	switch len(launches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return launches[0], nil
	default:
		return nil, fmt.Errorf("launch id prefix %q is ambiguous (%d matches)", id, len(launches))
	}
}

// ListLaunches returns the most recent launches, newest first. A limit of
// zero or less returns all of them.
func (s *SQLiteStore) ListLaunches(ctx context.Context, limit int) ([]*Launch, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+launchColumns+` FROM launches ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list launches: %w", err)
	}
	return scanLaunches(rows)
}

// PruneBefore deletes finished launches that started before cutoff and
// returns how many were removed.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM launches WHERE started_at < ? AND status != ?`,
		cutoff.UTC().Format(timeLayout), string(LaunchStatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune launches: %w", err)
	}
	return res.RowsAffected()
}

func scanLaunches(rows *sql.Rows) ([]*Launch, error) {
	defer rows.Close()

	var launches []*Launch
	for rows.Next() {
		var (
			l           Launch
			status      string
			exitCode    sql.NullInt64
			errMsg      sql.NullString
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.Task, &l.Model, &l.Data, &l.Project, &l.Name, &l.Device,
			&l.Epochs, &l.Runner, &l.Kwargs, &status, &exitCode, &errMsg, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan launch: %w", err)
		}

		l.Status = LaunchStatus(status)
		if exitCode.Valid {
			code := int(exitCode.Int64)
			l.ExitCode = &code
		}
		l.Error = errMsg.String

		t, err := time.Parse(timeLayout, startedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid started_at for launch %s: %w", l.ID, err)
		}
		l.StartedAt = t
		if completedAt.Valid {
			t, err := time.Parse(timeLayout, completedAt.String)
			if err != nil {
				return nil, fmt.Errorf("invalid completed_at for launch %s: %w", l.ID, err)
			}
			l.CompletedAt = &t
		}

		launches = append(launches, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read launches: %w", err)
	}
	return launches, nil
}

// likePrefix turns an ID prefix into a LIKE pattern. IDs never contain
// wildcard characters, so any in the input are dropped.
func likePrefix(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s) + "%"
}
