package encode

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exportd/exportd/go/records"
)

const xmlPreamble = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<records>\n"

func TestXMLNestedMetadata(t *testing.T) {
	var buf bytes.Buffer
	var enc = NewXML(&buf)

	require.NoError(t, enc.WriteHeader(fullProjection()))
	require.NoError(t, enc.WriteRow(sampleRow()))
	require.NoError(t, enc.WriteFooter())

	require.Contains(t, buf.String(),
		"<metadata><category>A</category><tags><item_0>x</item_0><item_1>y</item_1></tags></metadata>")
	require.True(t, strings.HasPrefix(buf.String(), xmlPreamble))
	require.True(t, strings.HasSuffix(buf.String(), "</records>\n"))
}

func TestXMLTagSanitization(t *testing.T) {
	var buf bytes.Buffer
	var enc = NewXML(&buf)

	var proj = records.Projection{{Source: records.AttrValue, Target: "1st value"}}
	require.NoError(t, enc.WriteHeader(proj))
	require.NoError(t, enc.WriteRow([]records.Value{records.Decimal("2.5000")}))
	require.NoError(t, enc.WriteFooter())

	require.Contains(t, buf.String(), "<_1st_value>2.5000</_1st_value>")
}

func TestXMLMetadataKeySanitization(t *testing.T) {
	var buf bytes.Buffer
	var enc = NewXML(&buf)

	var proj = records.Projection{{Source: records.AttrMetadata, Target: "metadata"}}
	require.NoError(t, enc.WriteHeader(proj))
	require.NoError(t, enc.WriteRow([]records.Value{
		records.Document([]records.Field{
			{Key: "1st value", Value: records.Int(7)},
		}),
	}))
	require.NoError(t, enc.WriteFooter())

	require.Contains(t, buf.String(), "<metadata><_1st_value>7</_1st_value></metadata>")
}

func TestXMLEmptyStream(t *testing.T) {
	var buf bytes.Buffer
	var enc = NewXML(&buf)

	require.NoError(t, enc.WriteHeader(idNameProjection()))
	require.NoError(t, enc.WriteFooter())

	require.Equal(t, xmlPreamble+"</records>\n", buf.String())
}

func TestXMLEscaping(t *testing.T) {
	var buf bytes.Buffer
	var enc = NewXML(&buf)

	require.NoError(t, enc.WriteHeader(idNameProjection()))
	require.NoError(t, enc.WriteRow([]records.Value{
		records.Int(1),
		records.String(`<b>&"quote"&'tick'</b>`),
	}))
	require.NoError(t, enc.WriteFooter())

	require.Contains(t, buf.String(),
		"<Name>&lt;b&gt;&amp;&quot;quote&quot;&amp;&apos;tick&apos;&lt;/b&gt;</Name>")
}

func TestXMLNullIsEmptyElement(t *testing.T) {
	var buf bytes.Buffer
	var enc = NewXML(&buf)

	require.NoError(t, enc.WriteHeader(idNameProjection()))
	require.NoError(t, enc.WriteRow([]records.Value{records.Int(1), records.Null}))
	require.NoError(t, enc.WriteFooter())

	require.Contains(t, buf.String(), "<record><ID>1</ID><Name></Name></record>")
}

func TestXMLIsWellFormed(t *testing.T) {
	var buf bytes.Buffer
	var enc = NewXML(&buf)

	require.NoError(t, enc.WriteHeader(fullProjection()))
	for i := 0; i != 5; i++ {
		require.NoError(t, enc.WriteRow(sampleRow()))
	}
	require.NoError(t, enc.WriteFooter())

	var dec = xml.NewDecoder(bytes.NewReader(buf.Bytes()))
	var seen int
	for {
		var tok, err = dec.Token()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "record" {
			seen++
		}
	}
	require.Equal(t, 5, seen)
}

func TestSanitizeTag(t *testing.T) {
	var cases = []struct{ in, out string }{
		{"name", "name"},
		{"Name-2", "Name-2"},
		{"snake_case", "snake_case"},
		{"1st value", "_1st_value"},
		{"9", "_9"},
		{"spaced out", "spaced_out"},
		{"tag/slash", "tag_slash"},
		{"é", "_"},
		{"", "_"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.out, SanitizeTag(tc.in), "input %q", tc.in)
	}
}
