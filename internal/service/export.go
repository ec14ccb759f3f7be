package service

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cxr-assist-server/internal/domain"
)

// ExportFormat selects the export serialization.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// IsValid reports whether the format has a dedicated encoder.
func (f ExportFormat) IsValid() bool {
	return f == ExportJSON || f == ExportCSV
}

// Export is a rendered download.
type Export struct {
	Format      ExportFormat
	ContentType string
	Extension   string
	Data        []byte
}

// listSeparator joins sequence values inside one CSV cell.
const listSeparator = ", "

// ExportRecords renders a case, a list of cases, or any JSON-compatible record.
//
// JSON output is indented and lossless: parsing it back yields the same record,
// with timestamps as strings. CSV output is lossy: nested objects
// are flattened into parent_child columns and lists are joined into one cell.
// Any other format tag falls back to a plain string rendering.
func ExportRecords(v interface{}, format ExportFormat) (*Export, error) {
	data, err := recordJSON(v)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return nil, fmt.Errorf("indenting export: %w", err)
		}
		return &Export{Format: format, ContentType: "application/json", Extension: "json", Data: buf.Bytes()}, nil

	case ExportCSV:
		out, err := flattenCSV(data)
		if err != nil {
			return nil, err
		}
		return &Export{Format: format, ContentType: "text/csv", Extension: "csv", Data: out}, nil

	default:
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		return &Export{Format: format, ContentType: "text/plain", Extension: "txt", Data: []byte(fmt.Sprint(generic))}, nil
	}
}

func recordJSON(v interface{}) ([]byte, error) {
	switch raw := v.(type) {
	case json.RawMessage:
		if !json.Valid(raw) {
			return nil, domain.NewValidationError("record", "not valid JSON", nil)
		}
		return raw, nil
	case []byte:
		if !json.Valid(raw) {
			return nil, domain.NewValidationError("record", "not valid JSON", nil)
		}
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return data, nil
}

// orderedField and orderedObject hold a decoded JSON object without losing
// member order, so CSV columns follow the record layout.
type orderedField struct {
	key   string
	value interface{}
}

type orderedObject []orderedField

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func decodeOrdered(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return decodeValue(dec)
}

func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := orderedObject{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			value, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			obj = append(obj, orderedField{key: keyTok.(string), value: value})
		}
		_, err = dec.Token()
		return obj, err
	case '[':
		list := []interface{}{}
		for dec.More() {
			value, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, value)
		}
		_, err = dec.Token()
		return list, err
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

// flatRow is one CSV row keyed by column.
type flatRow map[string]string

func flattenCSV(data []byte) ([]byte, error) {
	tree, err := decodeOrdered(data)
	if err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}

	records, isList := tree.([]interface{})
	if !isList {
		records = []interface{}{tree}
	}

	var columns []string
	seen := map[string]bool{}
	rows := make([]flatRow, 0, len(records))
	for _, rec := range records {
		row := flatRow{}
		order := []string{}
		if obj, ok := rec.(orderedObject); ok {
			flattenInto(row, &order, "", obj)
		} else {
			flattenInto(row, &order, "value", rec)
		}
		for _, col := range order {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
		rows = append(rows, row)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}
	for _, row := range rows {
		line := make([]string, len(columns))
		for i, col := range columns {
			line[i] = row[col]
		}
		if err := w.Write(line); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("writing csv: %w", err)
	}
	return buf.Bytes(), nil
}

func flattenInto(row flatRow, order *[]string, prefix string, v interface{}) {
	set := func(col, value string) {
		if _, exists := row[col]; !exists {
			*order = append(*order, col)
		}
		row[col] = value
	}

	switch val := v.(type) {
	case orderedObject:
		if len(val) == 0 && prefix != "" {
			set(prefix, "")
			return
		}
		for _, f := range val {
			key := f.key
			if prefix != "" {
				key = prefix + "_" + f.key
			}
			flattenInto(row, order, key, f.value)
		}
	case []interface{}:
		items := make([]string, 0, len(val))
		for _, item := range val {
			items = append(items, cellString(item))
		}
		set(prefix, strings.Join(items, listSeparator))
	default:
		set(prefix, cellString(val))
	}
}

func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		out, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(out)
	}
}
