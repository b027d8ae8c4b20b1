package encode

import (
	"fmt"
	"io"
	"reflect"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/exportd/exportd/go/records"
)

// ParquetRowGroupRows is the row group size of the columnar encoder. Each
// full group flushes to the sink, bounding memory to one open group.
const ParquetRowGroupRows = 50000

// Parquet streams a genuine Parquet file: PAR1 magic, snappy-compressed
// row groups of ParquetRowGroupRows rows, and a Thrift-encoded footer.
// Physical types follow the source attribute: INT64 for id, INT64
// TIMESTAMP(micros) for created_at, INT64 DECIMAL(18,4) for value, and
// UTF8 BYTE_ARRAY for name and serialized metadata. Column order follows
// the projection rather than the library's name-sorted default.
type Parquet struct {
	out    io.Writer
	writer *parquet.Writer
	proj   records.Projection
	row    parquet.Row
	rows   int
}

// NewParquet returns a Parquet encoder writing to |w|.
func NewParquet(w io.Writer) *Parquet {
	return &Parquet{out: w}
}

func (e *Parquet) WriteHeader(proj records.Projection) error {
	var group = make(parquet.Group, len(proj))
	var order = make([]string, len(proj))
	for i := range proj {
		group[proj[i].Target] = parquetNode(proj[i].Source)
		order[i] = proj[i].Target
	}
	var schema = parquet.NewSchema("records", orderedGroup{Group: group, order: order})

	e.writer = parquet.NewWriter(e.out, schema, parquet.Compression(&parquet.Snappy))
	e.proj = proj
	e.row = make(parquet.Row, 0, len(proj))
	return nil
}

func (e *Parquet) WriteRow(values []records.Value) error {
	if len(values) != len(e.proj) {
		return fmt.Errorf("row has %d values but header has %d columns", len(values), len(e.proj))
	}

	e.row = e.row[:0]
	for i := range values {
		var cell parquet.Value
		var err error
		switch e.proj[i].Source {
		case records.AttrID:
			cell, err = int64Cell(values[i])
		case records.AttrCreatedAt:
			cell, err = timestampCell(values[i])
		case records.AttrValue:
			cell, err = decimalCell(values[i])
		case records.AttrMetadata:
			cell, err = jsonCell(values[i])
		default:
			cell, err = textCell(values[i])
		}
		if err != nil {
			return fmt.Errorf("column %q: %w", e.proj[i].Target, err)
		}

		// All columns are optional with definition level one when present.
		if cell.IsNull() {
			cell = cell.Level(0, 0, i)
		} else {
			cell = cell.Level(0, 1, i)
		}
		e.row = append(e.row, cell)
	}

	if _, err := e.writer.WriteRows([]parquet.Row{e.row}); err != nil {
		return fmt.Errorf("writing parquet row: %w", err)
	}

	e.rows++
	if e.rows%ParquetRowGroupRows == 0 {
		if err := e.writer.Flush(); err != nil {
			return fmt.Errorf("flushing parquet row group: %w", err)
		}
	}
	return nil
}

func (e *Parquet) WriteFooter() error {
	if e.writer == nil {
		return fmt.Errorf("parquet footer written before header")
	}
	// Close flushes the open row group and writes the file footer. The
	// sink itself stays open.
	if err := e.writer.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	return nil
}

// parquetNode maps a source attribute onto its Parquet schema node.
func parquetNode(a records.Attribute) parquet.Node {
	switch a {
	case records.AttrID:
		return parquet.Optional(parquet.Int(64))
	case records.AttrCreatedAt:
		return parquet.Optional(parquet.Timestamp(parquet.Microsecond))
	case records.AttrValue:
		return parquet.Optional(parquet.Decimal(records.ValueScale, 18, parquet.Int64Type))
	default:
		// Text columns dictionary-encode, which collapses repeated names
		// and serialized metadata shapes.
		return parquet.Optional(parquet.Encoded(parquet.String(), &parquet.RLEDictionary))
	}
}

func int64Cell(v records.Value) (parquet.Value, error) {
	switch v.Kind() {
	case records.KindNull:
		return parquet.Value{}, nil
	case records.KindInt:
		return parquet.Int64Value(v.Int()), nil
	}
	return parquet.Value{}, fmt.Errorf("cannot store %s in an INT64 column", v.Kind())
}

func timestampCell(v records.Value) (parquet.Value, error) {
	switch v.Kind() {
	case records.KindNull:
		return parquet.Value{}, nil
	case records.KindTime:
		return parquet.Int64Value(v.Time().UnixMicro()), nil
	}
	return parquet.Value{}, fmt.Errorf("cannot store %s in a timestamp column", v.Kind())
}

func decimalCell(v records.Value) (parquet.Value, error) {
	switch v.Kind() {
	case records.KindNull:
		return parquet.Value{}, nil
	case records.KindDecimal:
		var unscaled, err = decimalUnscaled(v.Text())
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.Int64Value(unscaled), nil
	}
	return parquet.Value{}, fmt.Errorf("cannot store %s in a decimal column", v.Kind())
}

func textCell(v records.Value) (parquet.Value, error) {
	switch v.Kind() {
	case records.KindNull:
		return parquet.Value{}, nil
	case records.KindString:
		return parquet.ByteArrayValue([]byte(v.Text())), nil
	}
	return parquet.Value{}, fmt.Errorf("cannot store %s in a string column", v.Kind())
}

// jsonCell serializes any metadata value, scalar or structured, as its
// compact JSON text.
func jsonCell(v records.Value) (parquet.Value, error) {
	if v.IsNull() {
		return parquet.Value{}, nil
	}
	return parquet.ByteArrayValue(v.AppendJSON(nil)), nil
}

// decimalUnscaled converts canonical scale-four decimal text into the
// unscaled integer backing DECIMAL(18,4).
func decimalUnscaled(text string) (int64, error) {
	var d, err = decimal.NewFromString(text)
	if err != nil {
		return 0, fmt.Errorf("parsing decimal %q: %w", text, err)
	}
	return d.Shift(records.ValueScale).IntPart(), nil
}

// orderedGroup is a parquet.Group whose field order follows the
// projection. The library's Group sorts fields by name, which would
// reorder the emitted columns.
type orderedGroup struct {
	parquet.Group
	order []string
}

func (g orderedGroup) Fields() []parquet.Field {
	var fields = make([]parquet.Field, len(g.order))
	for i, name := range g.order {
		fields[i] = schemaField{Node: g.Group[name], name: name}
	}
	return fields
}

type schemaField struct {
	parquet.Node
	name string
}

func (f schemaField) Name() string { return f.name }

func (f schemaField) Value(base reflect.Value) reflect.Value {
	return base.MapIndex(reflect.ValueOf(f.name))
}
