package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

const (
	// DefaultChunkSize matches the GridFS default of 255 KiB.
	DefaultChunkSize = 255 * 1024

	sqliteBusyTimeoutMS = 5000
)

const sqliteBlobSchema = `
CREATE TABLE IF NOT EXISTS blob_files (
  id TEXT PRIMARY KEY,
  filename TEXT NOT NULL DEFAULT '',
  length INTEGER NOT NULL DEFAULT 0,
  chunk_size INTEGER NOT NULL,
  upload_date TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS blob_chunks (
  file_id TEXT NOT NULL,
  n INTEGER NOT NULL,
  data BLOB NOT NULL,
  PRIMARY KEY (file_id, n),
  FOREIGN KEY (file_id) REFERENCES blob_files(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_blob_files_upload_date ON blob_files(upload_date);
`

// SQLiteBlobs is the database backend. Blobs are split into fixed-size chunks
// in their own SQLite file, laid out the way GridFS lays out files/chunks.
type SQLiteBlobs struct {
	db        *sql.DB
	chunkSize int
	ready     atomic.Bool
}

// OpenSQLiteBlobs opens the blob database at path and creates its tables.
func OpenSQLiteBlobs(path string, chunkSize int) (*SQLiteBlobs, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	dsn, err := sqliteBlobDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(sqliteBlobSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init blob schema: %w", err)
	}

	b := &SQLiteBlobs{db: db, chunkSize: chunkSize}
	b.ready.Store(true)
	return b, nil
}

func (b *SQLiteBlobs) Kind() models.StorageBackend {
	return models.StorageDatabase
}

func (b *SQLiteBlobs) Available() bool {
	return b != nil && b.ready.Load()
}

// Write stores content in one transaction; a failed write leaves nothing behind.
func (b *SQLiteBlobs) Write(ctx context.Context, content io.Reader, suggestedName string) (WriteResult, error) {
	var zero WriteResult
	if !b.Available() {
		return zero, ErrUnavailable
	}
	if content == nil {
		return zero, fmt.Errorf("reader is required")
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return zero, storageFailure(b.Kind(), "write", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO blob_files(id, filename, length, chunk_size, upload_date) VALUES (?, ?, 0, ?, ?)",
		id, suggestedName, b.chunkSize, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return zero, storageFailure(b.Kind(), "write", err)
	}

	buf := make([]byte, b.chunkSize)
	var total int64
	for n := 0; ; n++ {
		read, readErr := io.ReadFull(content, buf)
		if read > 0 {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO blob_chunks(file_id, n, data) VALUES (?, ?, ?)",
				id, n, buf[:read],
			); err != nil {
				return zero, storageFailure(b.Kind(), "write", err)
			}
			total += int64(read)
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return zero, storageFailure(b.Kind(), "write", readErr)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE blob_files SET length = ? WHERE id = ?", total, id); err != nil {
		return zero, storageFailure(b.Kind(), "write", err)
	}
	if err := tx.Commit(); err != nil {
		return zero, storageFailure(b.Kind(), "write", err)
	}
	return WriteResult{Ref: id, Size: total}, nil
}

func (b *SQLiteBlobs) ReadAll(ctx context.Context, ref string) ([]byte, error) {
	rc, err := b.OpenStream(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, storageFailure(b.Kind(), "read", err)
	}
	return data, nil
}

// OpenStream returns a reader that loads one chunk at a time.
func (b *SQLiteBlobs) OpenStream(ctx context.Context, ref string) (io.ReadCloser, error) {
	if !b.Available() {
		return nil, ErrUnavailable
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("blob ref is required")
	}

	var length int64
	var chunkSize int
	err := b.db.QueryRowContext(ctx, "SELECT length, chunk_size FROM blob_files WHERE id = ?", ref).Scan(&length, &chunkSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageFailure(b.Kind(), "open", err)
	}

	chunks := 0
	if chunkSize > 0 {
		chunks = int((length + int64(chunkSize) - 1) / int64(chunkSize))
	}
	return &sqliteChunkReader{ctx: ctx, db: b.db, id: ref, chunks: chunks}, nil
}

// Delete removes the file row and its chunks.
func (b *SQLiteBlobs) Delete(ctx context.Context, ref string) (bool, error) {
	if !b.Available() {
		return false, ErrUnavailable
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storageFailure(b.Kind(), "delete", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM blob_chunks WHERE file_id = ?", ref); err != nil {
		return false, storageFailure(b.Kind(), "delete", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM blob_files WHERE id = ?", ref)
	if err != nil {
		return false, storageFailure(b.Kind(), "delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageFailure(b.Kind(), "delete", err)
	}
	if err := tx.Commit(); err != nil {
		return false, storageFailure(b.Kind(), "delete", err)
	}
	return affected > 0, nil
}

func (b *SQLiteBlobs) Exists(ctx context.Context, ref string) (bool, error) {
	if !b.Available() {
		return false, ErrUnavailable
	}
	var one int
	err := b.db.QueryRowContext(ctx, "SELECT 1 FROM blob_files WHERE id = ? LIMIT 1", ref).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageFailure(b.Kind(), "stat", err)
	}
	return true, nil
}

func (b *SQLiteBlobs) List(ctx context.Context, fn func(BlobInfo) error) error {
	if !b.Available() {
		return ErrUnavailable
	}
	rows, err := b.db.QueryContext(ctx, "SELECT id, length, upload_date FROM blob_files ORDER BY upload_date, id")
	if err != nil {
		return storageFailure(b.Kind(), "list", err)
	}
	// Collect first: fn may call back into the single connection.
	var infos []BlobInfo
	for rows.Next() {
		var info BlobInfo
		var uploaded string
		if err := rows.Scan(&info.Ref, &info.Size, &uploaded); err != nil {
			_ = rows.Close()
			return storageFailure(b.Kind(), "list", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, uploaded); err == nil {
			info.CreatedAt = parsed
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return storageFailure(b.Kind(), "list", err)
	}
	_ = rows.Close()

	for _, info := range infos {
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

func (b *SQLiteBlobs) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	b.ready.Store(false)
	return b.db.Close()
}

type sqliteChunkReader struct {
	ctx    context.Context
	db     *sql.DB
	id     string
	next   int
	chunks int
	buf    []byte
	closed bool
}

func (r *sqliteChunkReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, fmt.Errorf("read on closed blob stream")
	}
	for len(r.buf) == 0 {
		if r.next >= r.chunks {
			return 0, io.EOF
		}
		var data []byte
		err := r.db.QueryRowContext(r.ctx, "SELECT data FROM blob_chunks WHERE file_id = ? AND n = ?", r.id, r.next).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storageFailure(models.StorageDatabase, "read", fmt.Errorf("chunk %d of %s missing", r.next, r.id))
		}
		if err != nil {
			return 0, storageFailure(models.StorageDatabase, "read", err)
		}
		r.buf = data
		r.next++
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *sqliteChunkReader) Close() error {
	r.closed = true
	r.buf = nil
	return nil
}

func sqliteBlobDSN(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("blob db path is required")
	}
	query := url.Values{}
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", sqliteBusyTimeoutMS))
	u := url.URL{Scheme: "file", Path: path, RawQuery: query.Encode()}
	return u.String(), nil
}
