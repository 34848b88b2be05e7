package feeds

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
)

// fieldOrder resolves which columns to emit and in what order. Included
// fields win; otherwise the union of row keys, sorted for stable output.
func fieldOrder(feed DataFeed, rows []Row) []string {
	if len(feed.IncludedFields) > 0 {
		return feed.IncludedFields
	}
	seen := map[string]bool{}
	var fields []string
	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				fields = append(fields, key)
			}
		}
	}
	sort.Strings(fields)
	return fields
}

// outputName maps an internal field name through the feed's custom mapping.
func outputName(feed DataFeed, field string) string {
	if mapped, ok := feed.FieldMapping[field]; ok && mapped != "" {
		return mapped
	}
	return field
}

// Render writes rows to w in the feed's format and returns the row count.
func Render(w io.Writer, feed DataFeed, rows []Row) (int, error) {
	switch feed.Format {
	case FormatCSV:
		return renderCSV(w, feed, rows)
	case FormatJSON:
		return renderJSON(w, feed, rows)
	case FormatXML:
		return renderXML(w, feed, rows)
	default:
		return 0, fmt.Errorf("unknown feed format %q", feed.Format)
	}
}

func renderCSV(w io.Writer, feed DataFeed, rows []Row) (int, error) {
	fields := fieldOrder(feed, rows)
	writer := csv.NewWriter(w)

	header := make([]string, len(fields))
	for i, field := range fields {
		header[i] = outputName(feed, field)
	}
	if err := writer.Write(header); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(fields))
	for _, row := range rows {
		for i, field := range fields {
			record[i] = row[field]
		}
		if err := writer.Write(record); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(rows), nil
}

func renderJSON(w io.Writer, feed DataFeed, rows []Row) (int, error) {
	fields := fieldOrder(feed, rows)
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		item := make(map[string]string, len(fields))
		for _, field := range fields {
			item[outputName(feed, field)] = row[field]
		}
		out = append(out, item)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return 0, fmt.Errorf("encode json: %w", err)
	}
	return len(rows), nil
}

func renderXML(w io.Writer, feed DataFeed, rows []Row) (int, error) {
	fields := fieldOrder(feed, rows)

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return 0, fmt.Errorf("write xml header: %w", err)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: "feed"}}
	if err := encoder.EncodeToken(root); err != nil {
		return 0, fmt.Errorf("encode xml root: %w", err)
	}

	for _, row := range rows {
		item := xml.StartElement{Name: xml.Name{Local: "item"}}
		if err := encoder.EncodeToken(item); err != nil {
			return 0, fmt.Errorf("encode xml item: %w", err)
		}
		for _, field := range fields {
			name := xmlElementName(outputName(feed, field))
			el := xml.StartElement{Name: xml.Name{Local: name}}
			if err := encoder.EncodeElement(row[field], el); err != nil {
				return 0, fmt.Errorf("encode xml field %s: %w", name, err)
			}
		}
		if err := encoder.EncodeToken(item.End()); err != nil {
			return 0, fmt.Errorf("encode xml item end: %w", err)
		}
	}

	if err := encoder.EncodeToken(root.End()); err != nil {
		return 0, fmt.Errorf("encode xml root end: %w", err)
	}
	if err := encoder.Flush(); err != nil {
		return 0, fmt.Errorf("flush xml: %w", err)
	}
	return len(rows), nil
}

// xmlElementName makes a field safe as an XML element name.
func xmlElementName(name string) string {
	out := make([]rune, 0, len(name))
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			out = append(out, r)
		case r >= '0' && r <= '9' && i > 0:
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "field"
	}
	return string(out)
}
