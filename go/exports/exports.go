// Package exports defines export requests and jobs, the in-process job
// registry, and the streaming pipeline driver which moves rows from a
// database cursor through an encoder to a client.
package exports

import (
	"errors"
	"fmt"

	"github.com/exportd/exportd/go/records"
	"github.com/exportd/exportd/go/scan"
)

// Format tags one of the supported output formats.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatXML     Format = "xml"
	FormatParquet Format = "parquet"
)

// Formats enumerates the supported formats.
var Formats = []Format{FormatCSV, FormatJSON, FormatXML, FormatParquet}

func (f Format) valid() bool {
	switch f {
	case FormatCSV, FormatJSON, FormatXML, FormatParquet:
		return true
	}
	return false
}

// Ext returns the download filename extension.
func (f Format) Ext() string { return string(f) }

// ContentType returns the response content type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	case FormatXML:
		return "application/xml"
	}
	return "application/octet-stream"
}

// BatchSize returns the cursor fetch size of the format. Columnar output
// reads larger batches so a full batch becomes one row group.
func (f Format) BatchSize() int {
	if f == FormatParquet {
		return scan.ColumnarBatchSize
	}
	return scan.TextBatchSize
}

// CompressionGzip is the only recognized compression tag.
const CompressionGzip = "gzip"

// ErrInvalidRequest tags request validation failures.
var ErrInvalidRequest = errors.New("invalid export request")

// Column maps a source attribute of the records table onto an emitted
// column name.
type Column struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Request is the body of an export creation call. It's immutable once
// validated and attached to a job.
type Request struct {
	Format      Format   `json:"format"`
	Columns     []Column `json:"columns"`
	Compression string   `json:"compression,omitempty"`
}

// Validate checks the request against the closed attribute set and the
// supported format and compression tags. Column sources outside the
// records schema fail here, which is what keeps request strings out of
// composed SQL.
func (r *Request) Validate() error {
	if !r.Format.valid() {
		return fmt.Errorf("%w: unknown format %q", ErrInvalidRequest, r.Format)
	}
	if len(r.Columns) == 0 {
		return fmt.Errorf("%w: at least one column is required", ErrInvalidRequest)
	}

	var targets = make(map[string]bool, len(r.Columns))
	for i, c := range r.Columns {
		if c.Source == "" || c.Target == "" {
			return fmt.Errorf("%w: column %d requires source and target", ErrInvalidRequest, i)
		}
		if _, err := records.ParseAttribute(c.Source); err != nil {
			return fmt.Errorf("%w: column %d: %s", ErrInvalidRequest, i, err)
		}
		if targets[c.Target] {
			return fmt.Errorf("%w: duplicate target column %q", ErrInvalidRequest, c.Target)
		}
		targets[c.Target] = true
	}

	switch r.Compression {
	case "", CompressionGzip:
		// Pass.
	default:
		return fmt.Errorf("%w: unknown compression %q", ErrInvalidRequest, r.Compression)
	}
	return nil
}

// Projection converts the validated columns into a records projection.
func (r *Request) Projection() records.Projection {
	var p = make(records.Projection, len(r.Columns))
	for i, c := range r.Columns {
		p[i] = records.Column{
			Source: records.Attribute(c.Source),
			Target: c.Target,
		}
	}
	return p
}
