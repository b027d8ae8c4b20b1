package exports_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/exportd/exportd/go/exports"
	"github.com/exportd/exportd/go/exports/exportstest"
	"github.com/exportd/exportd/go/scan"
)

func csvRequest() exports.Request {
	return exports.Request{
		Format: exports.FormatCSV,
		Columns: []exports.Column{
			{Source: "id", Target: "ID"},
			{Source: "name", Target: "Name"},
		},
	}
}

func TestDriverStreamsCSV(t *testing.T) {
	var opener = &exportstest.Opener{Records: exportstest.Seed(3)}
	var driver = &exports.Driver{Source: opener}

	var buf bytes.Buffer
	var res, err = driver.Run(context.Background(), csvRequest(), &buf)
	require.NoError(t, err)

	require.Equal(t, "ID,Name\n1,Record_1\n2,Record_2\n3,Record_3\n", buf.String())
	require.Equal(t, int64(3), res.Rows)
	require.Equal(t, int64(buf.Len()), res.Bytes)

	require.Equal(t, "SELECT id, name FROM records", opener.LastSQL())
	require.Equal(t, scan.TextBatchSize, opener.LastBatchSize())
	require.Equal(t, 1, opener.Opens())
	require.Equal(t, 1, opener.Closes())
}

func TestDriverEmptyTable(t *testing.T) {
	var opener = &exportstest.Opener{}
	var driver = &exports.Driver{Source: opener}

	var buf bytes.Buffer
	var res, err = driver.Run(context.Background(), csvRequest(), &buf)
	require.NoError(t, err)
	require.Equal(t, "ID,Name\n", buf.String())
	require.Equal(t, int64(0), res.Rows)
	require.Equal(t, 1, opener.Closes())
}

func TestDriverAppliesRowLimit(t *testing.T) {
	var opener = &exportstest.Opener{Records: exportstest.Seed(10)}
	var driver = &exports.Driver{Source: opener, RowLimit: 4}

	var buf bytes.Buffer
	var res, err = driver.Run(context.Background(), csvRequest(), &buf)
	require.NoError(t, err)
	require.Equal(t, int64(4), res.Rows)
	require.Equal(t, "SELECT id, name FROM records LIMIT 4", opener.LastSQL())
}

func TestDriverParquetUsesColumnarBatches(t *testing.T) {
	var opener = &exportstest.Opener{Records: exportstest.Seed(2)}
	var driver = &exports.Driver{Source: opener}

	var req = exports.Request{
		Format:  exports.FormatParquet,
		Columns: []exports.Column{{Source: "id", Target: "id"}},
	}
	var buf bytes.Buffer
	var _, err = driver.Run(context.Background(), req, &buf)
	require.NoError(t, err)
	require.Equal(t, scan.ColumnarBatchSize, opener.LastBatchSize())
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PAR1")))
	require.True(t, bytes.HasSuffix(buf.Bytes(), []byte("PAR1")))
}

func TestDriverGzip(t *testing.T) {
	var opener = &exportstest.Opener{Records: exportstest.Seed(3)}
	var driver = &exports.Driver{Source: opener}

	var req = csvRequest()
	req.Compression = exports.CompressionGzip

	var buf bytes.Buffer
	var res, err = driver.Run(context.Background(), req, &buf)
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Rows)
	require.Equal(t, []byte{0x1f, 0x8b}, buf.Bytes()[:2])

	r, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	plain, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "ID,Name\n1,Record_1\n2,Record_2\n3,Record_3\n", string(plain))
}

func TestDriverCursorOpenFailure(t *testing.T) {
	var opener = &exportstest.Opener{OpenErr: errors.New("connection refused")}
	var driver = &exports.Driver{Source: opener}

	var buf bytes.Buffer
	var res, err = driver.Run(context.Background(), csvRequest(), &buf)
	require.Error(t, err)

	var cursorErr *scan.CursorError
	require.ErrorAs(t, err, &cursorErr)
	require.Equal(t, int64(0), res.Bytes)
	require.Zero(t, buf.Len())
}

func TestDriverFetchFailureMidStream(t *testing.T) {
	var opener = &exportstest.Opener{
		Records:          exportstest.Seed(5),
		FetchErr:         errors.New("connection reset"),
		FailAfterBatches: 1,
	}
	var driver = &exports.Driver{Source: opener}

	var buf bytes.Buffer
	var res, err = driver.Run(context.Background(), csvRequest(), &buf)
	require.Error(t, err)

	var cursorErr *scan.CursorError
	require.ErrorAs(t, err, &cursorErr)
	require.Equal(t, int64(5), res.Rows)
	require.Equal(t, 1, opener.Closes())
}

func TestDriverUnknownFormat(t *testing.T) {
	var opener = &exportstest.Opener{}
	var driver = &exports.Driver{Source: opener}

	var req = csvRequest()
	req.Format = "yaml"

	var buf bytes.Buffer
	var _, err = driver.Run(context.Background(), req, &buf)
	var encErr *exports.EncoderError
	require.ErrorAs(t, err, &encErr)
	require.Equal(t, 0, opener.Opens())
}

func TestDriverContextCancellation(t *testing.T) {
	var ctx, cancel = context.WithCancel(context.Background())
	cancel()

	var opener = &exportstest.Opener{Records: exportstest.Seed(3)}
	var driver = &exports.Driver{Source: opener}

	var buf bytes.Buffer
	var _, err = driver.Run(ctx, csvRequest(), &buf)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, opener.Closes())

	// A disconnecting client cancels the request context, and the fetch
	// notices before any sink write fails. The recorded cause must match
	// a sink-observed disconnect.
	require.Equal(t, exports.ClientDisconnected, exports.CauseOf(err))
}

func TestDriverCoercionFailure(t *testing.T) {
	var recs = exportstest.Seed(2)
	recs[1].Metadata = `{"category":`

	var opener = &exportstest.Opener{Records: recs}
	var driver = &exports.Driver{Source: opener}

	var req = exports.Request{
		Format: exports.FormatCSV,
		Columns: []exports.Column{
			{Source: "id", Target: "ID"},
			{Source: "metadata", Target: "Meta"},
		},
	}
	var buf bytes.Buffer
	var res, err = driver.Run(context.Background(), req, &buf)
	require.Error(t, err)

	// A malformed row is the projector's failure, not the database's.
	var coerceErr *exports.CoerceError
	require.ErrorAs(t, err, &coerceErr)
	var cursorErr *scan.CursorError
	require.False(t, errors.As(err, &cursorErr))

	require.Equal(t, int64(1), res.Rows)
	require.Equal(t, 1, opener.Closes())
}

// brokenSink accepts nothing, as a closed client socket would.
type brokenSink struct{ err error }

func (s *brokenSink) Write(p []byte) (int, error) { return 0, s.err }

func TestDriverSinkFailure(t *testing.T) {
	// Enough rows that the encoder's write buffer flushes mid-stream and
	// observes the dead sink.
	var opener = &exportstest.Opener{Records: exportstest.Seed(8000)}
	var driver = &exports.Driver{Source: opener}

	var sink = &brokenSink{err: errors.New("broken pipe")}
	var _, err = driver.Run(context.Background(), csvRequest(), sink)
	require.Error(t, err)

	var sinkErr *exports.SinkError
	require.ErrorAs(t, err, &sinkErr)
	require.Equal(t, exports.ClientDisconnected, exports.CauseOf(err))
	require.Equal(t, 1, opener.Closes())
}
