package schema

import (
	"bytes"
	"sort"
	"strings"
	"unicode/utf8"
)

// Fields is a decoded element: field name to value. The concrete value
// type per field depends on its schema Type and ByRef modifier:
//
//	Binary, not ByRef: []byte
//	Binary, ByRef:      an io.ReadCloser (see the queue package's Get)
//	String, not ByRef:  string
//	String, ByRef:       an io.ReadCloser, raw UTF-8 bytes, unvalidated
//	Table:               map[string]string
//
// Optional fields absent on disk are simply absent from the map.
type Fields map[string]interface{}

// Encode validates value against f and returns its on-disk
// representation. It is used for Binary and String fields; Table fields
// are encoded with EncodeTable.
func Encode(name string, f Field, value interface{}) ([]byte, error) {
	switch f.Type {
	case Binary:
		b, ok := value.([]byte)
		if !ok {
			return nil, &InvalidFieldError{Field: name, Reason: "binary field requires a []byte value"}
		}
		return b, nil
	case String:
		switch v := value.(type) {
		case string:
			if !utf8.ValidString(v) {
				return nil, &InvalidEncodingError{Field: name}
			}
			return []byte(v), nil
		case []byte:
			if !utf8.Valid(v) {
				return nil, &InvalidEncodingError{Field: name}
			}
			return v, nil
		default:
			return nil, &InvalidFieldError{Field: name, Reason: "string field requires a string or []byte value"}
		}
	case Table:
		m, ok := value.(map[string]string)
		if !ok {
			return nil, &InvalidFieldError{Field: name, Reason: "table field requires a map[string]string value"}
		}
		return EncodeTable(m), nil
	default:
		return nil, &InvalidFieldError{Field: name, Reason: "unknown field type"}
	}
}

// Decode parses the on-disk bytes of a Binary or String field. Table
// fields are decoded with DecodeTable.
func Decode(name string, f Field, data []byte) (interface{}, error) {
	switch f.Type {
	case Binary:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case String:
		if !utf8.Valid(data) {
			return nil, &InvalidEncodingError{Field: name}
		}
		return string(data), nil
	case Table:
		return DecodeTable(name, data)
	default:
		return nil, &InvalidFieldError{Field: name, Reason: "unknown field type"}
	}
}

// EncodeTable serializes m as sorted "key\tvalue\n" lines, with
// backslash, tab and newline escaped to \\, \t and \n in both key and
// value.
func EncodeTable(m map[string]string) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(escapeTableString(k))
		buf.WriteByte('\t')
		buf.WriteString(escapeTableString(m[k]))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// DecodeTable parses the "key\tvalue\n" lines produced by EncodeTable.
// A line not matching ^[^\t\n]*\t[^\t\n]*$ fails with
// *MalformedTableError. Duplicate keys are tolerated; the last one wins.
func DecodeTable(name string, data []byte) (map[string]string, error) {
	out := make(map[string]string)
	text := string(data)
	if text == "" {
		return out, nil
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for _, line := range lines {
		tabs := 0
		idx := -1
		for i, r := range line {
			if r == '\n' {
				return nil, &MalformedTableError{Field: name, Line: line}
			}
			if r == '\t' {
				tabs++
				if idx == -1 {
					idx = i
				}
			}
		}
		if tabs != 1 {
			return nil, &MalformedTableError{Field: name, Line: line}
		}
		key := unescapeTableString(line[:idx])
		value := unescapeTableString(line[idx+1:])
		out[key] = value
	}
	return out, nil
}

func escapeTableString(s string) string {
	var buf strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			buf.WriteString(`\\`)
		case '\t':
			buf.WriteString(`\t`)
		case '\n':
			buf.WriteString(`\n`)
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}

func unescapeTableString(s string) string {
	var buf strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '\\' && i+1 < len(runes) {
			switch runes[i+1] {
			case '\\':
				buf.WriteRune('\\')
				i++
				continue
			case 't':
				buf.WriteRune('\t')
				i++
				continue
			case 'n':
				buf.WriteRune('\n')
				i++
				continue
			}
		}
		buf.WriteRune(runes[i])
	}
	return buf.String()
}
