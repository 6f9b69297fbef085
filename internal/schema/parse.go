package schema

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSON Lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// member is one key/value pair of a decoded object.
type member struct {
	Key   string
	Value any
}

// object is a decoded JSON object that keeps document key order.
// First-seen column order depends on it, so records are never decoded into maps.
type object []member

func (o object) get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// MarshalJSON encodes the object with its original key order.
func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeValue reads one JSON value. Objects decode to object, arrays to []any,
// numbers to json.Number; everything else as encoding/json would.
func decodeValue(dec *json.Decoder) (any, error) {
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
		obj := object{}
		index := make(map[string]int)
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("expected object key, got %v", kt)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			// Duplicate keys: last value wins, first position is kept
			if i, dup := index[key]; dup {
				obj[i].Value = val
				continue
			}
			index[key] = len(obj)
			obj = append(obj, member{Key: key, Value: val})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil

	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil

	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

// decodeDocument decodes exactly one JSON value from r and rejects trailing data.
func decodeDocument(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, err
		}
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

// recordsOf splits a document root into records.
// An array root yields one record per element; an object root is a single record.
// Non-object array elements are wrapped as {"value": elem}.
func recordsOf(root any) ([]object, error) {
	switch v := root.(type) {
	case object:
		return []object{v}, nil
	case []any:
		records := make([]object, 0, len(v))
		for _, elem := range v {
			if obj, ok := elem.(object); ok {
				records = append(records, obj)
			} else {
				records = append(records, object{{Key: "value", Value: elem}})
			}
		}
		return records, nil
	default:
		return nil, fmt.Errorf("top-level value must be an object or an array, got %s", kindName(root))
	}
}

// readRecords parses every record in a source file.
func readRecords(f SourceFile) ([]object, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer fh.Close()

	if !f.Lines {
		root, err := decodeDocument(bufio.NewReader(fh))
		if err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
		return recordsOf(root)
	}

	var records []object
	scanner := bufio.NewScanner(fh)

	// Increase buffer size for long lines
	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		root, err := decodeDocument(bytes.NewReader(line))
		if err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		recs, err := recordsOf(root)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		records = append(records, recs...)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	return records, nil
}

func kindName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	default:
		return fmt.Sprintf("%T", v)
	}
}
