package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
	sqlite3 "modernc.org/sqlite/lib"

	ixerrors "github.com/Aman-CERP/lockerindex/internal/errors"
)

// sqliteFileName is the database created under the index path.
const sqliteFileName = "index.db"

// SQLiteEngine indexes documents in a SQLite FTS5 table. doc_id and doc_type
// are stored but not tokenized; content is tokenized with unicode61. The
// doc_rows table maps ids to FTS rowids so replacing a document does not
// scan the FTS table. Writes are buffered and committed in one transaction
// on flush.
type SQLiteEngine struct {
	mu        sync.Mutex
	db        *sql.DB
	path      string
	pending   []pendingOp
	batchSize int
	opts      Options
	closed    bool
}

type pendingOp struct {
	del bool
	doc Document
}

// NewSQLiteEngine opens or creates the FTS5 index under opts.Path.
// If opts.Path is empty, creates an in-memory index.
func NewSQLiteEngine(opts Options) (*SQLiteEngine, error) {
	opts = opts.withDefaults()

	var path, dsn string
	if opts.Path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(opts.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", opts.Path, err)
		}
		path = filepath.Join(opts.Path, sqliteFileName)
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: one writer, and :memory: databases are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if path != "" {
		// DSN params may be ignored by modernc.org/sqlite, so set them explicitly.
		pragmas := []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA synchronous = NORMAL",
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to set pragma: %w", err)
			}
		}
	}

	e := &SQLiteEngine{
		db:        db,
		path:      path,
		batchSize: opts.BatchSize,
		opts:      opts,
	}
	if err := e.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return e, nil
}

func (s *SQLiteEngine) initSchema() error {
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS documents USING fts5(
		doc_id UNINDEXED,
		doc_type UNINDEXED,
		content,
		tokenize='unicode61'
	);
	CREATE TABLE IF NOT EXISTS doc_rows (
		doc_id   TEXT PRIMARY KEY,
		doc_type TEXT NOT NULL,
		row      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_doc_rows_type ON doc_rows(doc_type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Name implements Engine.
func (s *SQLiteEngine) Name() string { return "sqlite" }

// IndexType implements Engine.
func (s *SQLiteEngine) IndexType(ctx context.Context, docType string, id any, value any) (time.Duration, error) {
	doc, err := BuildDocument(s.opts.Mappings, docType, id, value)
	if err != nil {
		return 0, err
	}
	if doc.Empty() {
		slog.Debug("sqlite_index_skipped_empty", slog.String("id", doc.ID), slog.String("type", docType))
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ixerrors.IndexIO("index document", errIndexClosed)
	}

	start := time.Now()
	s.pending = append(s.pending, pendingOp{doc: doc})
	if len(s.pending) >= s.batchSize {
		if err := s.flushLocked(ctx); err != nil {
			return 0, err
		}
	}
	return time.Since(start), nil
}

// DeleteDocument implements Engine.
func (s *SQLiteEngine) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ixerrors.IndexIO("delete document", errIndexClosed)
	}

	s.pending = append(s.pending, pendingOp{del: true, doc: Document{ID: id}})
	return s.flushLocked(ctx)
}

// DeleteDocumentsByType implements Engine.
func (s *SQLiteEngine) DeleteDocumentsByType(ctx context.Context, docType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ixerrors.IndexIO("delete by type", errIndexClosed)
	}
	if err := s.flushLocked(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ixerrors.IndexIO("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE rowid IN (SELECT row FROM doc_rows WHERE doc_type = ?)`, docType); err != nil {
		return ixerrors.IndexIO("delete by type "+docType, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_rows WHERE doc_type = ?`, docType); err != nil {
		return ixerrors.IndexIO("delete by type "+docType, err)
	}
	if err := tx.Commit(); err != nil {
		return ixerrors.IndexIO("commit", err)
	}
	return nil
}

// QueryType implements Engine.
func (s *SQLiteEngine) QueryType(ctx context.Context, docType, queryStr string, params QueryParams) ([]Hit, error) {
	q := `
		SELECT doc_id, doc_type, bm25(documents) AS score
		FROM documents
		WHERE documents MATCH ? AND doc_type = ?
		ORDER BY score
		LIMIT ? OFFSET ?
	`
	return s.search(ctx, q, queryStr, docType, params.limit(), params.offset())
}

// QueryAll implements Engine.
func (s *SQLiteEngine) QueryAll(ctx context.Context, queryStr string, params QueryParams) ([]Hit, error) {
	q := `
		SELECT doc_id, doc_type, bm25(documents) AS score
		FROM documents
		WHERE documents MATCH ?
		ORDER BY score
		LIMIT ? OFFSET ?
	`
	return s.search(ctx, q, queryStr, params.limit(), params.offset())
}

func (s *SQLiteEngine) search(ctx context.Context, q, queryStr string, args ...any) ([]Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ixerrors.IndexIO("search", errIndexClosed)
	}
	if err := s.flushLocked(ctx); err != nil {
		return nil, err
	}

	if strings.TrimSpace(queryStr) == "" {
		return []Hit{}, nil
	}

	rows, err := s.db.QueryContext(ctx, q, append([]any{queryStr}, args...)...)
	if err != nil {
		return nil, searchError(queryStr, err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		var score float64
		if err := rows.Scan(&h.ID, &h.Type, &score); err != nil {
			return nil, ixerrors.IndexIO("scan result", err)
		}
		// bm25() is negative, lower is better; flip so higher is better.
		h.Score = -score
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, searchError(queryStr, err)
	}
	return hits, nil
}

// searchError classifies a failed MATCH statement. The SQL text is fixed,
// so a generic SQLITE_ERROR can only come from the caller's query string
// (FTS5 syntax, unknown column filter); anything else is an index failure.
func searchError(queryStr string, err error) error {
	var serr *sqlite.Error
	if errors.As(err, &serr) && serr.Code()&0xff == sqlite3.SQLITE_ERROR {
		return ixerrors.New(ixerrors.ErrCodeInvalidQuery, fmt.Sprintf("invalid query %q: %v", queryStr, err), err).
			WithDetail("query", queryStr)
	}
	return ixerrors.IndexIO("search", err)
}

// FlushWriter implements Engine.
func (s *SQLiteEngine) FlushWriter() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	return s.flushLocked(context.Background())
}

// flushLocked commits pending operations in order within one transaction.
// On failure the whole batch is dropped, the dropped ids are logged and the
// error is returned to the caller that triggered the flush.
func (s *SQLiteEngine) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	ops := s.pending
	s.pending = nil

	if err := s.commit(ctx, ops); err != nil {
		ids := make([]string, 0, len(ops))
		for _, op := range ops {
			ids = append(ids, op.doc.ID)
		}
		logDroppedBatch("sqlite", ids, err)
		return err
	}
	return nil
}

// commit applies ops in one transaction. FTS5 tables have no REPLACE, so an
// index is a delete by rowid followed by an insert.
func (s *SQLiteEngine) commit(ctx context.Context, ops []pendingOp) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ixerrors.IndexIO("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleteDoc, err := tx.PrepareContext(ctx,
		`DELETE FROM documents WHERE rowid = (SELECT row FROM doc_rows WHERE doc_id = ?)`)
	if err != nil {
		return ixerrors.IndexIO("prepare delete", err)
	}
	defer deleteDoc.Close()

	deleteRow, err := tx.PrepareContext(ctx, `DELETE FROM doc_rows WHERE doc_id = ?`)
	if err != nil {
		return ixerrors.IndexIO("prepare delete", err)
	}
	defer deleteRow.Close()

	insertDoc, err := tx.PrepareContext(ctx,
		`INSERT INTO documents(doc_id, doc_type, content) VALUES (?, ?, ?)`)
	if err != nil {
		return ixerrors.IndexIO("prepare insert", err)
	}
	defer insertDoc.Close()

	insertRow, err := tx.PrepareContext(ctx,
		`INSERT INTO doc_rows(doc_id, doc_type, row) VALUES (?, ?, ?)`)
	if err != nil {
		return ixerrors.IndexIO("prepare insert", err)
	}
	defer insertRow.Close()

	for _, op := range ops {
		if _, err := deleteDoc.ExecContext(ctx, op.doc.ID); err != nil {
			return ixerrors.IndexIO("delete document "+op.doc.ID, err)
		}
		if _, err := deleteRow.ExecContext(ctx, op.doc.ID); err != nil {
			return ixerrors.IndexIO("delete document "+op.doc.ID, err)
		}
		if op.del {
			continue
		}
		res, err := insertDoc.ExecContext(ctx, op.doc.ID, op.doc.Type, op.doc.Content)
		if err != nil {
			return ixerrors.IndexIO("index document "+op.doc.ID, err)
		}
		row, err := res.LastInsertId()
		if err != nil {
			return ixerrors.IndexIO("index document "+op.doc.ID, err)
		}
		if _, err := insertRow.ExecContext(ctx, op.doc.ID, op.doc.Type, row); err != nil {
			return ixerrors.IndexIO("index document "+op.doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ixerrors.IndexIO("commit", err)
	}
	return nil
}

// Close implements Engine. Pending writes are committed and the WAL is
// checkpointed before the database is closed.
func (s *SQLiteEngine) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	flushErr := s.flushLocked(context.Background())
	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	return flushErr
}

var _ Engine = (*SQLiteEngine)(nil)
