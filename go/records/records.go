// Package records models rows of the exported `records` table: the closed
// attribute set, the tagged value model which format encoders consume, and
// the projection which maps source attributes onto emitted columns.
package records

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// Table is the source relation scanned by every export.
const Table = "records"

// Attribute is a column of the records table which may serve as the source
// of an export column. The set is closed: SQL text is composed only from
// Attribute constants validated against this set, never from raw request
// strings.
type Attribute string

const (
	AttrID        Attribute = "id"
	AttrCreatedAt Attribute = "created_at"
	AttrName      Attribute = "name"
	AttrValue     Attribute = "value"
	AttrMetadata  Attribute = "metadata"
)

// Attributes enumerates the allowed source attributes in schema order.
var Attributes = []Attribute{AttrID, AttrCreatedAt, AttrName, AttrValue, AttrMetadata}

// ParseAttribute maps |s| onto the closed attribute set, or fails.
func ParseAttribute(s string) (Attribute, error) {
	for _, a := range Attributes {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown source column %q", s)
}

// Column pairs a source attribute with the name under which it is emitted.
type Column struct {
	Source Attribute
	Target string
}

// Projection is an ordered sequence of columns. Its order fixes the
// emission order of every output format.
type Projection []Column

// Targets returns the emitted column names, in order.
func (p Projection) Targets() []string {
	var out = make([]string, len(p))
	for i := range p {
		out[i] = p[i].Target
	}
	return out
}

// SelectSQL composes the projected SELECT backing an export cursor.
// A |limit| > 0 caps the scanned row count. Only Attribute constants are
// interpolated as identifiers.
func (p Projection) SelectSQL(limit int64) string {
	var cols = make([]string, len(p))
	for i := range p {
		cols[i] = string(p[i].Source)
	}
	var sql = fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), Table)
	if limit > 0 {
		sql = fmt.Sprintf("%s LIMIT %d", sql, limit)
	}
	return sql
}

// NewScanRow allocates scan destinations for one row of the projection,
// suitable for pgx Rows.Scan. Destinations carry validity so that SQL NULL
// coerces to a null Value instead of failing the scan.
func (p Projection) NewScanRow() []any {
	var dests = make([]any, len(p))
	for i := range p {
		switch p[i].Source {
		case AttrID:
			dests[i] = new(pgtype.Int8)
		case AttrCreatedAt:
			dests[i] = new(pgtype.Timestamptz)
		case AttrValue:
			dests[i] = new(pgtype.Numeric)
		case AttrMetadata:
			dests[i] = new([]byte)
		default:
			dests[i] = new(pgtype.Text)
		}
	}
	return dests
}
