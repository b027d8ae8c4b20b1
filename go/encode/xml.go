package encode

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/exportd/exportd/go/records"
)

// XML streams the hierarchical format: an XML declaration, a <records>
// root, and one <record> element per row. Column targets and metadata
// document keys become element names after sanitization; list items
// become <item_N> elements.
type XML struct {
	w       *bufio.Writer
	tags    []string
	scratch []byte
}

// NewXML returns an XML encoder writing to |w|.
func NewXML(w io.Writer) *XML {
	return &XML{w: bufio.NewWriterSize(w, bufSize)}
}

func (e *XML) WriteHeader(proj records.Projection) error {
	e.tags = make([]string, len(proj))
	for i, target := range proj.Targets() {
		e.tags[i] = SanitizeTag(target)
	}
	var _, err = e.w.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<records>\n")
	return err
}

func (e *XML) WriteRow(values []records.Value) error {
	if len(values) != len(e.tags) {
		return fmt.Errorf("row has %d values but header has %d columns", len(values), len(e.tags))
	}
	_, _ = e.w.WriteString("<record>")
	for i := range values {
		e.writeElement(e.tags[i], values[i])
	}
	var _, err = e.w.WriteString("</record>\n")
	return err
}

func (e *XML) WriteFooter() error {
	if _, err := e.w.WriteString("</records>\n"); err != nil {
		return err
	}
	return e.w.Flush()
}

func (e *XML) writeElement(tag string, v records.Value) {
	_ = e.w.WriteByte('<')
	_, _ = e.w.WriteString(tag)
	_ = e.w.WriteByte('>')

	switch v.Kind() {
	case records.KindDocument:
		for _, f := range v.Fields() {
			e.writeElement(SanitizeTag(f.Key), f.Value)
		}
	case records.KindList:
		for i, item := range v.Items() {
			e.writeElement("item_"+strconv.Itoa(i), item)
		}
	default:
		e.scratch = v.AppendText(e.scratch[:0])
		e.writeEscaped(e.scratch)
	}

	_, _ = e.w.WriteString("</")
	_, _ = e.w.WriteString(tag)
	_ = e.w.WriteByte('>')
}

func (e *XML) writeEscaped(text []byte) {
	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case '&':
			_, _ = e.w.WriteString("&amp;")
		case '<':
			_, _ = e.w.WriteString("&lt;")
		case '>':
			_, _ = e.w.WriteString("&gt;")
		case '"':
			_, _ = e.w.WriteString("&quot;")
		case '\'':
			_, _ = e.w.WriteString("&apos;")
		default:
			_ = e.w.WriteByte(c)
		}
	}
}

// SanitizeTag rewrites |name| into a valid XML element name. Runes outside
// [A-Za-z0-9_-] become underscores, a leading digit gains an underscore
// prefix, and an empty name becomes a bare underscore.
func SanitizeTag(name string) string {
	var b = make([]byte, 0, len(name)+1)
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b = append(b, byte(r))
		default:
			b = append(b, '_')
		}
	}
	if len(b) == 0 {
		return "_"
	}
	if b[0] >= '0' && b[0] <= '9' {
		b = append(b, 0)
		copy(b[1:], b)
		b[0] = '_'
	}
	return string(b)
}
