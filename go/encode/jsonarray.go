package encode

import (
	"bufio"
	"fmt"
	"io"

	"github.com/exportd/exportd/go/records"
)

// JSONArray streams the JSON format: an opening bracket, one compact
// object per record separated by comma-newline, and a closing bracket.
// Object keys follow the projection order, not a sort.
type JSONArray struct {
	w        *bufio.Writer
	prefixes [][]byte
	rows     int64
	scratch  []byte
}

// NewJSONArray returns a JSON encoder writing to |w|.
func NewJSONArray(w io.Writer) *JSONArray {
	return &JSONArray{w: bufio.NewWriterSize(w, bufSize)}
}

func (e *JSONArray) WriteHeader(proj records.Projection) error {
	// Pre-render each column's `{"key":` or `,"key":` prefix once.
	e.prefixes = make([][]byte, len(proj))
	for i, target := range proj.Targets() {
		var p []byte
		if i == 0 {
			p = append(p, '{')
		} else {
			p = append(p, ',')
		}
		p = records.AppendJSONString(p, target)
		p = append(p, ':')
		e.prefixes[i] = p
	}
	var _, err = e.w.WriteString("[\n")
	return err
}

func (e *JSONArray) WriteRow(values []records.Value) error {
	if len(values) != len(e.prefixes) {
		return fmt.Errorf("row has %d values but header has %d columns", len(values), len(e.prefixes))
	}
	if e.rows > 0 {
		_, _ = e.w.WriteString(",\n")
	}
	for i := range values {
		_, _ = e.w.Write(e.prefixes[i])
		e.scratch = values[i].AppendJSON(e.scratch[:0])
		_, _ = e.w.Write(e.scratch)
	}
	e.rows++
	return e.w.WriteByte('}')
}

func (e *JSONArray) WriteFooter() error {
	if _, err := e.w.WriteString("\n]"); err != nil {
		return err
	}
	return e.w.Flush()
}
