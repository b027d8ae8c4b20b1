// Package scan reads the records table through Postgres server-side
// cursors, so that exports of arbitrary size hold only one row batch in
// memory at a time.
package scan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/exportd/exportd/go/records"
)

const (
	// MaxConns bounds the process-wide connection pool.
	MaxConns = 10
	// ConnIdleTimeout releases pooled connections which sat idle.
	ConnIdleTimeout = 30 * time.Second
	// ConnectTimeout bounds the dial of a new connection.
	ConnectTimeout = 2 * time.Second
	// releaseTimeout bounds the cursor release steps, which must run even
	// when the caller's context is already done.
	releaseTimeout = 5 * time.Second
)

const (
	// TextBatchSize is the FETCH size of row-at-a-time text formats.
	TextBatchSize = 10000
	// ColumnarBatchSize is the FETCH size of columnar formats, where one
	// batch becomes one row group.
	ColumnarBatchSize = 50000
)

// CursorError wraps a database failure of the cursor-backed row source.
type CursorError struct{ Cause error }

func (e *CursorError) Error() string { return "cursor failed: " + e.Cause.Error() }
func (e *CursorError) Unwrap() error { return e.Cause }

// Pool is the bounded process-wide connection pool over the export
// database.
type Pool struct {
	pool *pgxpool.Pool
}

// OpenPool parses |databaseURL| and builds the pool. Connections are
// established lazily, so OpenPool succeeds even while the database is
// still unreachable.
func OpenPool(ctx context.Context, databaseURL string) (*Pool, error) {
	var cfg, err = pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	cfg.MaxConns = MaxConns
	cfg.MaxConnIdleTime = ConnIdleTimeout
	cfg.ConnConfig.ConnectTimeout = ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("building connection pool: %w", err)
	}
	return &Pool{pool: pool}, nil
}

// Close tears down the pool and its connections.
func (p *Pool) Close() { p.pool.Close() }

// Ping verifies database connectivity.
func (p *Pool) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Count returns the current row count of the records table.
func (p *Pool) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+records.Table).Scan(&n); err != nil {
		return 0, &CursorError{Cause: fmt.Errorf("counting rows: %w", err)}
	}
	return n, nil
}

// Cursor is a server-side NO SCROLL cursor over one projected SELECT. It
// owns a pooled connection and a read-only transaction for its whole
// lifetime. Close releases both and is idempotent. A Cursor is used by a
// single goroutine.
type Cursor struct {
	name     string
	fetchSQL string
	newRow   func() []any
	conn     *pgxpool.Conn
	tx       pgx.Tx
	closed   bool
}

// OpenCursor declares a uniquely named server-side cursor for |selectSQL|,
// fetching |batchSize| rows at a time into destinations built by |newRow|.
func (p *Pool) OpenCursor(ctx context.Context, selectSQL string, batchSize int, newRow func() []any) (*Cursor, error) {
	var conn, err = p.pool.Acquire(ctx)
	if err != nil {
		return nil, &CursorError{Cause: fmt.Errorf("acquiring connection: %w", err)}
	}

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		conn.Release()
		return nil, &CursorError{Cause: fmt.Errorf("beginning transaction: %w", err)}
	}

	var name = cursorName()
	if _, err = tx.Exec(ctx, fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", name, selectSQL)); err != nil {
		_ = tx.Rollback(ctx)
		conn.Release()
		return nil, &CursorError{Cause: fmt.Errorf("declaring cursor: %w", err)}
	}

	log.WithFields(log.Fields{
		"cursor":    name,
		"batchSize": batchSize,
	}).Debug("declared server-side cursor")

	return &Cursor{
		name:     name,
		fetchSQL: fmt.Sprintf("FETCH FORWARD %d FROM %s", batchSize, name),
		newRow:   newRow,
		conn:     conn,
		tx:       tx,
	}, nil
}

// cursorName derives a unique cursor identifier needing no quoting.
func cursorName() string {
	return "c_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Next fetches the next batch of scanned rows. A nil batch without error
// means the scan completed and the cursor already released its connection.
func (c *Cursor) Next(ctx context.Context) ([][]any, error) {
	if c.closed {
		return nil, nil
	}

	var rows, err = c.tx.Query(ctx, c.fetchSQL)
	if err != nil {
		c.abort(ctx)
		return nil, &CursorError{Cause: fmt.Errorf("fetching batch: %w", err)}
	}

	var batch [][]any
	for rows.Next() {
		var dest = c.newRow()
		if err = rows.Scan(dest...); err != nil {
			rows.Close()
			c.abort(ctx)
			return nil, &CursorError{Cause: fmt.Errorf("scanning row: %w", err)}
		}
		batch = append(batch, dest)
	}
	rows.Close()

	if err = rows.Err(); err != nil {
		c.abort(ctx)
		return nil, &CursorError{Cause: fmt.Errorf("fetching batch: %w", err)}
	}

	if len(batch) == 0 {
		// End of scan. Release eagerly so the connection is back in the
		// pool before the caller finalizes its output.
		if err = c.Close(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return batch, nil
}

// Close closes the cursor, commits its transaction, and returns the
// connection to the pool. It runs detached from |ctx|'s cancellation so
// that a client disconnect still releases server resources promptly. If
// the transaction already failed, the commit degrades to a rollback.
func (c *Cursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true

	var releaseCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	defer c.conn.Release()

	if _, err := c.tx.Exec(releaseCtx, "CLOSE "+c.name); err != nil {
		_ = c.tx.Rollback(releaseCtx)
		return &CursorError{Cause: fmt.Errorf("closing cursor: %w", err)}
	}
	if err := c.tx.Commit(releaseCtx); err != nil {
		return &CursorError{Cause: fmt.Errorf("committing cursor transaction: %w", err)}
	}

	log.WithField("cursor", c.name).Debug("released server-side cursor")
	return nil
}

// abort rolls back and releases after a failure.
func (c *Cursor) abort(ctx context.Context) {
	if c.closed {
		return
	}
	c.closed = true

	var releaseCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	_ = c.tx.Rollback(releaseCtx)
	c.conn.Release()
}
