package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Store is the persistence contract the orchestrator depends on. Defined
// at the consumer per "accept interfaces, return structs"; SQLiteStore is
// the real implementation, tests supply fakes.
type Store interface {
	GetState(ctx context.Context, libraryID string) (*SyncState, error)
	SaveState(ctx context.Context, state *SyncState) error
	GetFile(ctx context.Context, libraryID, path string) (*SyncedFile, error)
	DeleteAll(ctx context.Context) error
	SaveError(ctx context.Context, rec SyncError) error
	RecentErrors(ctx context.Context, limit int) ([]SyncError, error)
}

// SQL statements for state operations.
const (
	sqlGetLastSync = `SELECT last_sync_time FROM sync_state WHERE library_id = ?`

	sqlUpsertLastSync = `INSERT INTO sync_state (library_id, last_sync_time)
		VALUES (?, ?)
		ON CONFLICT(library_id) DO UPDATE SET
		 last_sync_time = excluded.last_sync_time`

	sqlListFiles = `SELECT path, object_id, mtime, size, is_directory
		FROM synced_files WHERE library_id = ? ORDER BY path`

	sqlGetFile = `SELECT path, object_id, mtime, size, is_directory
		FROM synced_files WHERE library_id = ? AND path = ?`

	sqlDeleteFiles = `DELETE FROM synced_files WHERE library_id = ?`

	sqlInsertFile = `INSERT INTO synced_files
		(library_id, path, object_id, mtime, size, is_directory)
		VALUES (?, ?, ?, ?, ?, ?)`

	sqlInsertError = `INSERT INTO sync_errors
		(id, message, timestamp, library_name, path)
		VALUES (?, ?, ?, ?, ?)`

	sqlRecentErrors = `SELECT id, message, timestamp, library_name, path
		FROM sync_errors ORDER BY timestamp DESC LIMIT ?`
)

// SQLiteStore is the sole writer to the sync database. One instance is
// constructed at process start and passed by capability into the
// orchestrator.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	stmts stateStatements
}

type stateStatements struct {
	getLastSync, upsertLastSync, listFiles, getFile *sql.Stmt
	insertError, recentErrors                       *sql.Stmt
}

// NewSQLiteStore opens the database at dbPath, runs migrations, and
// prepares repeated statements. The database uses WAL mode with
// synchronous=FULL for crash-safe durability.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"+
			"&_pragma=journal_size_limit(67108864)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sync: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sync state database ready", slog.String("db_path", dbPath))

	return s, nil
}

// stmtDef maps a SQL string to the prepared statement pointer it should
// populate.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

func (s *SQLiteStore) prepareStatements(ctx context.Context) error {
	defs := []stmtDef{
		{&s.stmts.getLastSync, sqlGetLastSync, "getLastSync"},
		{&s.stmts.upsertLastSync, sqlUpsertLastSync, "upsertLastSync"},
		{&s.stmts.listFiles, sqlListFiles, "listFiles"},
		{&s.stmts.getFile, sqlGetFile, "getFile"},
		{&s.stmts.insertError, sqlInsertError, "insertError"},
		{&s.stmts.recentErrors, sqlRecentErrors, "recentErrors"},
	}

	for i := range defs {
		stmt, err := s.db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("sync: preparing %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

// GetState returns the last persisted state for a library, or nil if the
// library has never been synced successfully. Absence is defined by zero
// baseline rows; a timestamp without rows is still treated as absent.
func (s *SQLiteStore) GetState(ctx context.Context, libraryID string) (*SyncState, error) {
	rows, err := s.stmts.listFiles.QueryContext(ctx, libraryID)
	if err != nil {
		return nil, fmt.Errorf("sync: listing baseline for library %s: %w", libraryID, err)
	}
	defer rows.Close()

	var files []SyncedFile

	for rows.Next() {
		var (
			f     SyncedFile
			isDir int
		)

		if err := rows.Scan(&f.Path, &f.ObjectID, &f.Mtime, &f.Size, &isDir); err != nil {
			return nil, fmt.Errorf("sync: scanning baseline row: %w", err)
		}

		f.IsDir = isDir == 1
		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync: iterating baseline rows: %w", err)
	}

	if len(files) == 0 {
		return nil, nil //nolint:nilnil // nil state means "never synced"
	}

	state := &SyncState{LibraryID: libraryID, Files: files}

	err = s.stmts.getLastSync.QueryRowContext(ctx, libraryID).Scan(&state.LastSyncTime)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync: reading last sync time for library %s: %w", libraryID, err)
	}

	s.logger.Debug("baseline loaded",
		slog.String("library_id", libraryID),
		slog.Int("entries", len(files)),
	)

	return state, nil
}

// SaveState atomically replaces the per-library timestamp and the full
// baseline row set in a single transaction. Any failure leaves the
// previous baseline intact.
func (s *SQLiteStore) SaveState(ctx context.Context, state *SyncState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlUpsertLastSync, state.LibraryID, state.LastSyncTime); err != nil {
		return fmt.Errorf("sync: upserting last sync time for library %s: %w", state.LibraryID, err)
	}

	if _, err := tx.ExecContext(ctx, sqlDeleteFiles, state.LibraryID); err != nil {
		return fmt.Errorf("sync: clearing baseline for library %s: %w", state.LibraryID, err)
	}

	for i := range state.Files {
		f := &state.Files[i]

		isDir := 0
		if f.IsDir {
			isDir = 1
		}

		_, err := tx.ExecContext(ctx, sqlInsertFile,
			state.LibraryID, f.Path, f.ObjectID, f.Mtime, f.Size, isDir)
		if err != nil {
			return fmt.Errorf("sync: inserting baseline row %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: committing baseline for library %s: %w", state.LibraryID, err)
	}

	s.logger.Info("baseline saved",
		slog.String("library_id", state.LibraryID),
		slog.Int("entries", len(state.Files)),
	)

	return nil
}

// GetFile is a point lookup into the baseline. Returns (nil, nil) when no
// row exists for the path.
func (s *SQLiteStore) GetFile(ctx context.Context, libraryID, path string) (*SyncedFile, error) {
	var (
		f     SyncedFile
		isDir int
	)

	err := s.stmts.getFile.QueryRowContext(ctx, libraryID, path).
		Scan(&f.Path, &f.ObjectID, &f.Mtime, &f.Size, &isDir)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil file means "not in baseline"
	}

	if err != nil {
		return nil, fmt.Errorf("sync: getting baseline row %s/%s: %w", libraryID, path, err)
	}

	f.IsDir = isDir == 1

	return &f, nil
}

// DeleteAll wipes all persisted state. Used on logout.
func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: beginning wipe transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"synced_files", "sync_state", "sync_errors"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("sync: wiping %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: committing wipe: %w", err)
	}

	s.logger.Info("sync state wiped")

	return nil
}

// SaveError persists one error record for later display.
func (s *SQLiteStore) SaveError(ctx context.Context, rec SyncError) error {
	_, err := s.stmts.insertError.ExecContext(ctx,
		rec.ID, rec.Message, rec.Timestamp.Unix(), rec.LibraryName, rec.Path)
	if err != nil {
		return fmt.Errorf("sync: saving error record %s: %w", rec.ID, err)
	}

	return nil
}

// RecentErrors returns the most recent error records, newest first.
func (s *SQLiteStore) RecentErrors(ctx context.Context, limit int) ([]SyncError, error) {
	rows, err := s.stmts.recentErrors.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("sync: listing error records: %w", err)
	}
	defer rows.Close()

	var recs []SyncError

	for rows.Next() {
		var (
			rec SyncError
			ts  int64
		)

		if err := rows.Scan(&rec.ID, &rec.Message, &ts, &rec.LibraryName, &rec.Path); err != nil {
			return nil, fmt.Errorf("sync: scanning error record: %w", err)
		}

		rec.Timestamp = time.Unix(ts, 0)
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync: iterating error records: %w", err)
	}

	return recs, nil
}

// Close closes prepared statements and the database connection.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.stmts.getLastSync, s.stmts.upsertLastSync, s.stmts.listFiles,
		s.stmts.getFile, s.stmts.insertError, s.stmts.recentErrors,
	}

	for _, stmt := range stmts {
		if stmt != nil {
			_ = stmt.Close()
		}
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sync: closing database: %w", err)
	}

	return nil
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)
