package entities

import (
	"fmt"
	"strconv"
	"strings"
)

// DocumentFormat tags the wire format a RawDocument was decoded from
type DocumentFormat string

// Supported vendor document formats
const (
	FormatJSON DocumentFormat = "json"
	FormatXML  DocumentFormat = "xml"
)

// TextKey holds the character data of an XML element that also carries attributes
const TextKey = "#text"

// AttrPrefix marks an XML attribute that shares its name with a child element
const AttrPrefix = "@"

// RawDocument is a decoded vendor payload. Root is a tree of map[string]any,
// []any and scalar values regardless of Format, so the pipeline never
// branches on the wire format.
type RawDocument struct {
	Format DocumentFormat
	Root   any
}

// NewJSONDocument tags root as decoded from JSON
func NewJSONDocument(root any) *RawDocument {
	return &RawDocument{Format: FormatJSON, Root: root}
}

// NewXMLDocument tags root as decoded from XML
func NewXMLDocument(root any) *RawDocument {
	return &RawDocument{Format: FormatXML, Root: root}
}

// Lookup resolves path from the document root
func (d *RawDocument) Lookup(path ...string) (any, bool) {
	return Lookup(d.Root, path...)
}

// Rows returns the collection found at path as a list
func (d *RawDocument) Rows(path ...string) []any {
	node, ok := Lookup(d.Root, path...)
	if !ok {
		return nil
	}
	return List(node)
}

// Text returns the scalar found at path
func (d *RawDocument) Text(path ...string) Optional[string] {
	return TextAt(d.Root, path...)
}

// Lookup walks path through nested maps. A list met on the way resolves to
// its first element, mirroring how a single XML child and a repeated one
// decode to different shapes.
func Lookup(node any, path ...string) (any, bool) {
	cur := node
	for _, key := range path {
		if list, ok := cur.([]any); ok {
			if len(list) == 0 {
				return nil, false
			}
			cur = list[0]
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// List normalizes node to a slice: nil is empty, a single value is a one-element list
func List(node any) []any {
	switch v := node.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// Text converts a scalar node to a string. Blank strings, maps without
// character data, and lists are absent.
func Text(node any) Optional[string] {
	var s string
	switch v := node.(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case bool:
		s = strconv.FormatBool(v)
	case map[string]any:
		return Text(v[TextKey])
	case fmt.Stringer:
		s = v.String()
	default:
		return None[string]()
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return None[string]()
	}
	return Some(s)
}

// TextAt combines Lookup and Text
func TextAt(node any, path ...string) Optional[string] {
	v, ok := Lookup(node, path...)
	if !ok {
		return None[string]()
	}
	return Text(v)
}
