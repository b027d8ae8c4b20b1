package encode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/exportd/exportd/go/records"
)

// CSV streams the delimited-text format: one header line of target names,
// then one line per record. Fields containing a comma, double quote, or
// newline are wrapped in double quotes with interior quotes doubled; all
// other fields are written bare.
type CSV struct {
	w       *bufio.Writer
	columns int
	scratch []byte
}

// NewCSV returns a CSV encoder writing to |w|.
func NewCSV(w io.Writer) *CSV {
	return &CSV{w: bufio.NewWriterSize(w, bufSize)}
}

func (e *CSV) WriteHeader(proj records.Projection) error {
	for i, target := range proj.Targets() {
		if i > 0 {
			_ = e.w.WriteByte(',')
		}
		e.writeField([]byte(target))
	}
	e.columns = len(proj)
	return e.w.WriteByte('\n')
}

func (e *CSV) WriteRow(values []records.Value) error {
	if len(values) != e.columns {
		return fmt.Errorf("row has %d values but header has %d columns", len(values), e.columns)
	}
	for i := range values {
		if i > 0 {
			_ = e.w.WriteByte(',')
		}
		e.scratch = values[i].AppendText(e.scratch[:0])
		e.writeField(e.scratch)
	}
	return e.w.WriteByte('\n')
}

func (e *CSV) WriteFooter() error {
	return e.w.Flush()
}

func (e *CSV) writeField(field []byte) {
	if !bytes.ContainsAny(field, ",\"\n") {
		_, _ = e.w.Write(field)
		return
	}
	_ = e.w.WriteByte('"')
	for _, c := range field {
		if c == '"' {
			_ = e.w.WriteByte('"')
		}
		_ = e.w.WriteByte(c)
	}
	_ = e.w.WriteByte('"')
}
