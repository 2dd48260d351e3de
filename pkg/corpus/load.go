package corpus

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"strings"
)

// DefaultCaller is used for records without a caller.
const DefaultCaller = "unknown_caller"

// FieldNames maps record fields to the JSON keys that hold them.
type FieldNames struct {
	Unit     string `koanf:"unit_field"`
	Caller   string `koanf:"caller_field"`
	Function string `koanf:"function_field"`
	SQL      string `koanf:"sql_field"`
}

// DefaultFieldNames returns the keys used by generated ORM datasets.
func DefaultFieldNames() FieldNames {
	return FieldNames{
		Unit:     "orm_code",
		Caller:   "caller",
		Function: "function_name",
		SQL:      "sql_statement_list",
	}
}

func (f FieldNames) withDefaults() FieldNames {
	d := DefaultFieldNames()
	if f.Unit == "" {
		f.Unit = d.Unit
	}
	if f.Caller == "" {
		f.Caller = d.Caller
	}
	if f.Function == "" {
		f.Function = d.Function
	}
	if f.SQL == "" {
		f.SQL = d.SQL
	}
	return f
}

// Record is one dataset entry.
type Record struct {
	// ID is the position of the record in the input array.
	ID       int
	Unit     string
	Caller   string
	Function string
	Tree     VariantTree
	// Payload is the original object. It is never modified.
	Payload map[string]any

	hasSQL bool
}

// RecordError reports a record that could not be decoded.
type RecordError struct {
	ID  int
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.ID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Load reads a JSON array of record objects. Every element yields a record
// so that the dataset can be written back whole; records without a unit keep
// their payload but carry no tree and are never indexed.
func Load(r io.Reader, fields FieldNames) ([]Record, error) {
	var raw []map[string]any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode corpus: %w", err)
	}

	fields = fields.withDefaults()
	records := make([]Record, 0, len(raw))
	for i, obj := range raw {
		rec, err := decodeRecord(i, obj, fields)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRecord(id int, obj map[string]any, fields FieldNames) (Record, error) {
	rec := Record{ID: id, Payload: obj, Tree: List{}}

	unit, _ := obj[fields.Unit].(string)
	if strings.TrimSpace(unit) == "" {
		return rec, nil
	}
	rec.Unit = unit

	rec.Caller, _ = obj[fields.Caller].(string)
	if rec.Caller == "" {
		rec.Caller = DefaultCaller
	}
	rec.Function, _ = obj[fields.Function].(string)

	rawSQL, hasSQL := obj[fields.SQL]
	tree, err := DecodeTree(rawSQL)
	if err != nil {
		return Record{}, &RecordError{ID: id, Err: err}
	}
	rec.Tree = tree
	rec.hasSQL = hasSQL
	return rec, nil
}

// Indexable reports whether the record belongs to a unit.
func (r Record) Indexable() bool {
	return strings.TrimSpace(r.Unit) != ""
}

// SQL returns the flattened SQL texts of the record.
func (r Record) SQL() []string {
	return Flatten(r.Tree)
}

// WithTree returns a copy of r holding tree.
func (r Record) WithTree(tree VariantTree) Record {
	r.Tree = tree
	return r
}

// Encode returns a copy of the original object with the SQL field replaced by
// the current tree. A record whose object had no SQL field gets none.
func (r Record) Encode(fields FieldNames) map[string]any {
	if r.Payload == nil && !r.hasSQL {
		return nil
	}
	fields = fields.withDefaults()
	out := maps.Clone(r.Payload)
	if out == nil {
		out = map[string]any{}
	}
	if r.hasSQL {
		out[fields.SQL] = EncodeTree(r.Tree)
	}
	return out
}
