// Package mapping holds the per-type field-mapping table and the flattener
// that turns nested JSON records into the ordered token list a search
// engine indexes.
//
// A Template mirrors the shape of the records it selects from:
//
//	Leaf("title")                     take record["title"] (under the parent key)
//	Mapping(Field{"user", ...})       recurse into record["user"]
//	Sequence(Mapping(...))            for each element of an array, use the element template
//
// Extraction is allow-listed: record fields without a template entry are ignored.
package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Kind identifies the shape of a Template node.
type Kind int

const (
	// KindLeaf names the record key to extract.
	KindLeaf Kind = iota
	// KindSequence applies one element template to every array element.
	KindSequence
	// KindMapping recurses into named sub-fields, in declaration order.
	KindMapping
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// ReservedKey is never traversed when it appears in a mapping template.
const ReservedKey = "_id"

// Template is one node of a field-mapping template.
type Template struct {
	kind   Kind
	key    string
	elem   *Template
	fields []Field
}

// Field is a named entry of a mapping template.
type Field struct {
	Name     string
	Template Template
}

// Leaf returns a template that extracts the record value stored under key.
func Leaf(key string) Template {
	return Template{kind: KindLeaf, key: key}
}

// Sequence returns a template applied to each element of a record array.
func Sequence(elem Template) Template {
	return Template{kind: KindSequence, elem: &elem}
}

// EmptySequence returns a sequence template with no element template.
// Scalar array elements are still emitted; nested elements are skipped.
func EmptySequence() Template {
	return Template{kind: KindSequence}
}

// Mapping returns a template that recurses into the given fields in order.
func Mapping(fields ...Field) Template {
	return Template{kind: KindMapping, fields: fields}
}

// Kind returns the node kind.
func (t Template) Kind() Kind { return t.kind }

// Key returns the record key a leaf extracts.
func (t Template) Key() string { return t.key }

// Elem returns the element template of a sequence, if any.
func (t Template) Elem() (Template, bool) {
	if t.kind != KindSequence || t.elem == nil {
		return Template{}, false
	}
	return *t.elem, true
}

// Fields returns the fields of a mapping template in declaration order.
func (t Template) Fields() []Field { return t.fields }

// lookupKey returns the record key a field reads from. Nested templates read
// the field's own name; leaves read the key they name.
func (f Field) lookupKey() string {
	if f.Template.kind == KindLeaf {
		return f.Template.key
	}
	return f.Name
}

// ParseTemplate builds a Template from its JSON declaration, keeping object
// key order. Strings become leaves, objects mappings and arrays sequences
// (an array holds at most one element template).
func ParseTemplate(data []byte) (Template, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	t, err := parseValue(dec)
	if err != nil {
		return Template{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Template{}, fmt.Errorf("unexpected data after template")
	}
	return t, nil
}

func parseValue(dec *json.Decoder) (Template, error) {
	tok, err := dec.Token()
	if err != nil {
		return Template{}, fmt.Errorf("failed to read template: %w", err)
	}

	switch v := tok.(type) {
	case string:
		return Leaf(v), nil
	case json.Delim:
		switch v {
		case '{':
			return parseObject(dec)
		case '[':
			return parseArray(dec)
		}
	}
	return Template{}, fmt.Errorf("invalid template token %v", tok)
}

func parseObject(dec *json.Decoder) (Template, error) {
	var fields []Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Template{}, fmt.Errorf("failed to read template key: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return Template{}, fmt.Errorf("invalid template key %v", tok)
		}
		sub, err := parseValue(dec)
		if err != nil {
			return Template{}, fmt.Errorf("field %q: %w", name, err)
		}
		fields = append(fields, Field{Name: name, Template: sub})
	}
	if _, err := dec.Token(); err != nil {
		return Template{}, fmt.Errorf("unterminated template object: %w", err)
	}
	return Mapping(fields...), nil
}

func parseArray(dec *json.Decoder) (Template, error) {
	t := EmptySequence()
	if dec.More() {
		elem, err := parseValue(dec)
		if err != nil {
			return Template{}, fmt.Errorf("sequence element: %w", err)
		}
		t = Sequence(elem)
		if dec.More() {
			return Template{}, fmt.Errorf("sequence template takes a single element template")
		}
	}
	if _, err := dec.Token(); err != nil {
		return Template{}, fmt.Errorf("unterminated template array: %w", err)
	}
	return t, nil
}
