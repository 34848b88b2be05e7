package feeds

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var sampleRows = []Row{
	{"sku": "BRK-1001", "title": "Ceramic Brake Pad Set", "msrp": "89.99"},
	{"sku": "BRK-1002", "title": "Drilled Rotor", "msrp": "129.99"},
}

func TestRenderCSV(t *testing.T) {
	feed := DataFeed{
		Format:         FormatCSV,
		IncludedFields: []string{"sku", "title"},
	}

	var buf bytes.Buffer
	count, err := Render(&buf, feed, sampleRows)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "sku,title", lines[0])
	require.Equal(t, "BRK-1001,Ceramic Brake Pad Set", lines[1])
}

func TestRenderCSVFieldMapping(t *testing.T) {
	feed := DataFeed{
		Format:         FormatCSV,
		IncludedFields: []string{"sku", "msrp"},
		FieldMapping:   map[string]string{"sku": "Part Number", "msrp": "List Price"},
	}

	var buf bytes.Buffer
	_, err := Render(&buf, feed, sampleRows)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(buf.String(), "Part Number,List Price\n"))
}

func TestRenderCSVDefaultFieldsSorted(t *testing.T) {
	feed := DataFeed{Format: FormatCSV}

	var buf bytes.Buffer
	_, err := Render(&buf, feed, sampleRows)
	require.NoError(t, err)

	lines := strings.Split(buf.String(), "\n")
	require.Equal(t, "msrp,sku,title", lines[0])
}

func TestRenderJSON(t *testing.T) {
	feed := DataFeed{
		Format:       FormatJSON,
		FieldMapping: map[string]string{"msrp": "list_price"},
	}

	var buf bytes.Buffer
	count, err := Render(&buf, feed, sampleRows)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	var decoded []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "BRK-1001", decoded[0]["sku"])
	require.Equal(t, "89.99", decoded[0]["list_price"])
	require.NotContains(t, decoded[0], "msrp")
}

func TestRenderJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	count, err := Render(&buf, DataFeed{Format: FormatJSON}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, count)
	require.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestRenderXML(t *testing.T) {
	feed := DataFeed{
		Format:         FormatXML,
		IncludedFields: []string{"sku", "title"},
	}

	var buf bytes.Buffer
	count, err := Render(&buf, feed, sampleRows)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	out := buf.String()
	require.Contains(t, out, `<?xml version="1.0" encoding="UTF-8"?>`)
	require.Contains(t, out, "<feed>")
	require.Contains(t, out, "<item>")
	require.Contains(t, out, "<sku>BRK-1001</sku>")
	require.Contains(t, out, "<title>Ceramic Brake Pad Set</title>")
	require.Contains(t, out, "</feed>")
}

func TestRenderXMLEscapesContent(t *testing.T) {
	feed := DataFeed{Format: FormatXML, IncludedFields: []string{"title"}}
	rows := []Row{{"title": "Pads <front> & rear"}}

	var buf bytes.Buffer
	_, err := Render(&buf, feed, rows)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "Pads &lt;front&gt; &amp; rear")
}

func TestRenderXMLMappedFieldNamesSanitized(t *testing.T) {
	feed := DataFeed{
		Format:         FormatXML,
		IncludedFields: []string{"msrp"},
		FieldMapping:   map[string]string{"msrp": "List Price"},
	}

	var buf bytes.Buffer
	_, err := Render(&buf, feed, sampleRows)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "<List_Price>89.99</List_Price>")
}

func TestRenderUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	_, err := Render(&buf, DataFeed{Format: "yaml"}, sampleRows)
	require.Error(t, err)
}

func TestSlugify(t *testing.T) {
	require.Equal(t, "acme-full-catalog", Slugify("ACME Full Catalog"))
	require.Equal(t, "q3-pricing-2026", Slugify("  Q3 Pricing (2026)  "))
	require.Equal(t, "", Slugify("***"))
}
