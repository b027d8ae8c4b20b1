// Package exportstest provides an in-memory stand-in for the cursor-backed
// row source, for exercising the export pipeline without Postgres.
package exportstest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/exportd/exportd/go/exports"
	"github.com/exportd/exportd/go/scan"
)

// Record is one row of the fake records table. An empty Value or Metadata
// scans as SQL NULL.
type Record struct {
	ID        int64
	CreatedAt time.Time
	Name      string
	Value     string
	Metadata  string
}

// Seed returns |n| deterministic records shaped like the benchmark
// dataset.
func Seed(n int) []Record {
	var base = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	var out = make([]Record, n)
	for i := range out {
		out[i] = Record{
			ID:        int64(i + 1),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			Name:      fmt.Sprintf("Record_%d", i+1),
			Value:     fmt.Sprintf("%d.5000", 45123+i),
			Metadata:  fmt.Sprintf(`{"category":"A","index":%d}`, i),
		}
	}
	return out
}

// Opener serves canned rows through the exports.Opener capability and
// records how it was used.
type Opener struct {
	Records []Record

	// OpenErr, when set, fails OpenCursor calls: every call when
	// OpenErrBatchSize is zero, otherwise only those opened with that
	// batch size.
	OpenErr          error
	OpenErrBatchSize int
	// CountErr, when set, fails every Count call.
	CountErr error
	// FetchErr, when set, fails the fetch after FailAfterBatches
	// successful batches.
	FetchErr         error
	FailAfterBatches int

	mu        sync.Mutex
	lastSQL   string
	lastBatch int
	opens     int
	closes    int
}

// LastSQL returns the SELECT of the most recent OpenCursor.
func (o *Opener) LastSQL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSQL
}

// LastBatchSize returns the batch size of the most recent OpenCursor.
func (o *Opener) LastBatchSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastBatch
}

// Opens returns how many cursors were opened.
func (o *Opener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// Closes returns how many cursors were released.
func (o *Opener) Closes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closes
}

func (o *Opener) OpenCursor(ctx context.Context, selectSQL string, batchSize int, newRow func() []any) (exports.RowSource, error) {
	o.mu.Lock()
	o.lastSQL = selectSQL
	o.lastBatch = batchSize
	o.opens++
	o.mu.Unlock()

	if o.OpenErr != nil && (o.OpenErrBatchSize == 0 || o.OpenErrBatchSize == batchSize) {
		return nil, &scan.CursorError{Cause: o.OpenErr}
	}

	var cols, limit, err = parseSelect(selectSQL)
	if err != nil {
		return nil, err
	}
	var recs = o.Records
	if limit > 0 && int64(len(recs)) > limit {
		recs = recs[:limit]
	}
	return &source{
		opener:  o,
		pending: recs,
		cols:    cols,
		batch:   batchSize,
		newRow:  newRow,
	}, nil
}

func (o *Opener) Count(ctx context.Context) (int64, error) {
	if o.CountErr != nil {
		return 0, &scan.CursorError{Cause: o.CountErr}
	}
	return int64(len(o.Records)), nil
}

type source struct {
	opener  *Opener
	pending []Record
	cols    []string
	batch   int
	newRow  func() []any
	fetches int
	closed  bool
}

func (s *source) Next(ctx context.Context) ([][]any, error) {
	if s.closed {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		s.release()
		return nil, &scan.CursorError{Cause: err}
	}
	if s.opener.FetchErr != nil && s.fetches >= s.opener.FailAfterBatches {
		s.release()
		return nil, &scan.CursorError{Cause: s.opener.FetchErr}
	}
	if len(s.pending) == 0 {
		s.release()
		return nil, nil
	}

	var n = s.batch
	if n > len(s.pending) {
		n = len(s.pending)
	}
	var batch = make([][]any, n)
	for i := 0; i != n; i++ {
		var dest = s.newRow()
		if err := fillRow(dest, s.cols, s.pending[i]); err != nil {
			s.release()
			return nil, err
		}
		batch[i] = dest
	}
	s.pending = s.pending[n:]
	s.fetches++
	return batch, nil
}

func (s *source) Close(ctx context.Context) error {
	s.release()
	return nil
}

func (s *source) release() {
	if s.closed {
		return
	}
	s.closed = true
	s.opener.mu.Lock()
	s.opener.closes++
	s.opener.mu.Unlock()
}

// fillRow populates scan destinations the way a FETCH would.
func fillRow(dest []any, cols []string, rec Record) error {
	if len(dest) != len(cols) {
		return fmt.Errorf("row has %d destinations but query selects %d columns", len(dest), len(cols))
	}
	for i, col := range cols {
		switch col {
		case "id":
			*dest[i].(*pgtype.Int8) = pgtype.Int8{Int64: rec.ID, Valid: true}
		case "created_at":
			*dest[i].(*pgtype.Timestamptz) = pgtype.Timestamptz{Time: rec.CreatedAt, Valid: true}
		case "name":
			*dest[i].(*pgtype.Text) = pgtype.Text{String: rec.Name, Valid: true}
		case "value":
			if rec.Value == "" {
				continue
			}
			var d, err = decimal.NewFromString(rec.Value)
			if err != nil {
				return fmt.Errorf("record %d has bad value %q: %w", rec.ID, rec.Value, err)
			}
			*dest[i].(*pgtype.Numeric) = pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
		case "metadata":
			if rec.Metadata == "" {
				continue
			}
			*dest[i].(*[]byte) = []byte(rec.Metadata)
		default:
			return fmt.Errorf("unexpected column %q", col)
		}
	}
	return nil
}

// parseSelect pulls the column list and row limit back out of a composed
// SELECT, asserting its shape along the way.
func parseSelect(sql string) (cols []string, limit int64, err error) {
	var rest, ok = strings.CutPrefix(sql, "SELECT ")
	if !ok {
		return nil, 0, fmt.Errorf("unexpected query %q", sql)
	}
	colText, rest, ok := strings.Cut(rest, " FROM ")
	if !ok {
		return nil, 0, fmt.Errorf("unexpected query %q", sql)
	}
	table, limText, hasLimit := strings.Cut(rest, " LIMIT ")
	if table != "records" {
		return nil, 0, fmt.Errorf("unexpected table %q", table)
	}
	if hasLimit {
		if limit, err = strconv.ParseInt(limText, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("unexpected limit %q", limText)
		}
	}
	return strings.Split(colText, ", "), limit, nil
}
