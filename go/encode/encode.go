// Package encode implements the streaming export output formats over a
// common row-writer capability, plus the optional gzip sink adapter. An
// encoder never buffers more than a bounded window of its stream: text
// formats hold one write buffer, and the columnar format holds one open
// row group.
package encode

import (
	"fmt"
	"io"

	"github.com/exportd/exportd/go/records"
)

// bufSize is the write buffer of the text encoders. The buffer flushes to
// the sink as it fills, which is where client backpressure is felt.
const bufSize = 64 * 1024

// Encoder writes one export stream: a header, any number of rows, and a
// footer. Implementations own framing only; rows arrive coerced and in
// final order.
type Encoder interface {
	// WriteHeader begins the stream for the given projection.
	WriteHeader(proj records.Projection) error
	// WriteRow appends one record, with values in projection order.
	WriteRow(values []records.Value) error
	// WriteFooter completes the stream and flushes buffered bytes.
	WriteFooter() error
}

// New returns the encoder of |format| writing to |w|. This is the single
// point which dispatches on the format tag; all later work flows through
// the Encoder capability.
func New(format string, w io.Writer) (Encoder, error) {
	switch format {
	case "csv":
		return NewCSV(w), nil
	case "json":
		return NewJSONArray(w), nil
	case "xml":
		return NewXML(w), nil
	case "parquet":
		return NewParquet(w), nil
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}
