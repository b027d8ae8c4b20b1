package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ValueScale is the fixed fractional scale of the `value` attribute.
// DECIMAL(18,4) values always render with exactly four fractional digits.
const ValueScale = 4

// CoerceRow maps scan destinations produced by NewScanRow into tagged
// values, in projection order. It's the single place which interprets
// database driver types.
func (p Projection) CoerceRow(scanned []any) ([]Value, error) {
	if len(scanned) != len(p) {
		return nil, fmt.Errorf("row has %d columns but projection has %d", len(scanned), len(p))
	}
	var out = make([]Value, len(p))
	for i := range p {
		var v, err = coerceScanned(scanned[i])
		if err != nil {
			return nil, fmt.Errorf("coercing column %q: %w", p[i].Target, err)
		}
		out[i] = v
	}
	return out, nil
}

func coerceScanned(dest any) (Value, error) {
	switch d := dest.(type) {
	case *pgtype.Int8:
		if !d.Valid {
			return Null, nil
		}
		return Int(d.Int64), nil
	case *pgtype.Timestamptz:
		if !d.Valid {
			return Null, nil
		}
		return Timestamp(d.Time), nil
	case *pgtype.Text:
		if !d.Valid {
			return Null, nil
		}
		return String(d.String), nil
	case *pgtype.Numeric:
		if !d.Valid {
			return Null, nil
		}
		return coerceNumeric(d)
	case *[]byte:
		if *d == nil {
			return Null, nil
		}
		return CoerceJSON(*d)
	}
	return Null, fmt.Errorf("unsupported scan destination %T", dest)
}

// coerceNumeric renders a Postgres numeric as canonical scale-four decimal
// text. Trailing zeros are preserved, so 45123.5 scans as "45123.5000".
func coerceNumeric(n *pgtype.Numeric) (Value, error) {
	if n.NaN {
		return Null, fmt.Errorf("numeric NaN cannot be exported")
	}
	if n.InfinityModifier != pgtype.Finite {
		return Null, fmt.Errorf("numeric infinity cannot be exported")
	}
	var d = decimal.NewFromBigInt(n.Int, n.Exp)
	return Decimal(d.StringFixed(ValueScale)), nil
}

// CoerceJSON converts a raw JSON document, as stored in the jsonb metadata
// attribute, into the tagged model. Numeric literals keep their exact text
// and document keys are sorted.
func CoerceJSON(raw []byte) (Value, error) {
	var dec = json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return Null, fmt.Errorf("decoding metadata JSON: %w", err)
	}
	return coerceTree(tree)
}

func coerceTree(node any) (Value, error) {
	switch n := node.(type) {
	case nil:
		return Null, nil
	case bool:
		return Bool(n), nil
	case string:
		return String(n), nil
	case json.Number:
		if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
			return Int(i), nil
		}
		return Number(string(n)), nil
	case []any:
		var items = make([]Value, len(n))
		for i := range n {
			var v, err = coerceTree(n[i])
			if err != nil {
				return Null, err
			}
			items[i] = v
		}
		return List(items), nil
	case map[string]any:
		var fields = make([]Field, 0, len(n))
		for key, child := range n {
			var v, err = coerceTree(child)
			if err != nil {
				return Null, err
			}
			fields = append(fields, Field{Key: key, Value: v})
		}
		return Document(fields), nil
	}
	return Null, fmt.Errorf("unsupported JSON node %T", node)
}
