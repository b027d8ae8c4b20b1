package exports

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/exportd/exportd/go/encode"
	"github.com/exportd/exportd/go/scan"
)

// RowSource yields batches of scanned rows. Next returns a nil batch once
// the scan completes, after releasing the source's resources; Close is
// idempotent and covers early exits.
type RowSource interface {
	Next(ctx context.Context) ([][]any, error)
	Close(ctx context.Context) error
}

// Opener opens cursor-backed row sources over the records table.
type Opener interface {
	OpenCursor(ctx context.Context, selectSQL string, batchSize int, newRow func() []any) (RowSource, error)
	Count(ctx context.Context) (int64, error)
}

// PoolOpener adapts a scan.Pool to the Opener capability.
type PoolOpener struct{ Pool *scan.Pool }

func (o PoolOpener) OpenCursor(ctx context.Context, selectSQL string, batchSize int, newRow func() []any) (RowSource, error) {
	var cur, err = o.Pool.OpenCursor(ctx, selectSQL, batchSize, newRow)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (o PoolOpener) Count(ctx context.Context) (int64, error) {
	return o.Pool.Count(ctx)
}

// yieldEvery is how many rows stream between cooperative yields, so a
// large export cannot starve other goroutines of the scheduler.
const yieldEvery = 10000

// Driver streams export requests: cursor to projection to encoder to
// optional gzip to sink, holding one row batch at a time.
type Driver struct {
	// Source provides cursor-backed reads of the records table.
	Source Opener
	// RowLimit caps scanned rows per export when greater than zero.
	RowLimit int64
}

// Result counts what reached the sink.
type Result struct {
	Rows  int64
	Bytes int64
}

// Run streams |req| to |sink| until the scan completes, the context ends,
// or a stage fails. On error the Result still reports rows and bytes
// already emitted, letting the caller distinguish a clean error response
// from a truncated stream. Returned errors are typed: scan.CursorError
// for database failures, CoerceError for rows which fail projection,
// SinkError for client write failures, and EncoderError otherwise.
func (d *Driver) Run(ctx context.Context, req Request, sink io.Writer) (Result, error) {
	var proj = req.Projection()
	var out = &countingWriter{w: sink}
	var body = encode.NewSink(out, req.Compression == CompressionGzip)

	var enc, err = encode.New(string(req.Format), body)
	if err != nil {
		return Result{}, &EncoderError{Cause: err}
	}

	cur, err := d.Source.OpenCursor(ctx, proj.SelectSQL(d.RowLimit), req.Format.BatchSize(), proj.NewScanRow)
	if err != nil {
		return Result{}, err
	}
	defer cur.Close(ctx)

	if err = enc.WriteHeader(proj); err != nil {
		return out.result(), out.classify("writing header", err)
	}

	for {
		batch, err := cur.Next(ctx)
		if err != nil {
			return out.result(), err
		}
		if batch == nil {
			break
		}
		for _, scanned := range batch {
			values, err := proj.CoerceRow(scanned)
			if err != nil {
				return out.result(), &CoerceError{Cause: err}
			}
			if err = enc.WriteRow(values); err != nil {
				return out.result(), out.classify("writing row", err)
			}
			out.rows++
			if out.rows%yieldEvery == 0 {
				runtime.Gosched()
			}
		}
	}

	// The cursor released its connection on the empty fetch above. Only
	// now may the encoder finalize, so a pooled connection is never held
	// across footer or compressor flushes.
	if err = enc.WriteFooter(); err != nil {
		return out.result(), out.classify("writing footer", err)
	}
	if err = body.Close(); err != nil {
		return out.result(), out.classify("flushing compressed stream", err)
	}
	return out.result(), nil
}

// countingWriter tracks encoded rows, bytes written through to the sink,
// and the first write error, which distinguishes sink failures from
// encoder ones.
type countingWriter struct {
	w    io.Writer
	n    int64
	rows int64
	err  error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	var n, err = c.w.Write(p)
	c.n += int64(n)
	if err != nil && c.err == nil {
		c.err = err
	}
	return n, err
}

func (c *countingWriter) result() Result {
	return Result{Rows: c.rows, Bytes: c.n}
}

// classify types an error surfaced by an encoder stage: if the underlying
// sink failed first, the failure is the sink's.
func (c *countingWriter) classify(op string, err error) error {
	if c.err != nil {
		return &SinkError{Cause: c.err}
	}
	return &EncoderError{Cause: fmt.Errorf("%s: %w", op, err)}
}
