// Package xml decodes vendor XML payloads into generic document trees.
package xml

import (
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/ochairo/kdibridge/internal/domain/entities"
)

// Decode parses an XML payload into a RawDocument.
//
// The root element becomes the single key of the document root. Inside an
// element, attributes and child elements become map keys, repeated children
// become a list, and character data is stored under entities.TextKey. An
// element holding only text decodes to a plain string; an empty element
// decodes to nil. An attribute named like a child element is kept under
// entities.AttrPrefix + name.
func Decode(r io.Reader) (*entities.RawDocument, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid XML: %v", entities.ErrParseFailure, err)
	}

	root := firstElement(doc)
	if root == nil {
		return nil, fmt.Errorf("%w: XML document has no root element", entities.ErrParseFailure)
	}

	return entities.NewXMLDocument(map[string]any{root.Data: convert(root)}), nil
}

// Query returns the decoded trees of every element matching an XPath expression
func Query(r io.Reader, expr string) ([]any, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid XML: %v", entities.ErrParseFailure, err)
	}

	nodes, err := xmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid XPath %q: %w", expr, err)
	}

	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, convert(n))
	}
	return out, nil
}

func firstElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

func convert(n *xmlquery.Node) any {
	fields := make(map[string]any, len(n.Attr))
	for _, attr := range n.Attr {
		fields[attr.Name.Local] = attr.Value
	}

	children := make(map[string]bool)
	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.ElementNode:
			value := convert(c)
			if !children[c.Data] {
				children[c.Data] = true
				if attr, ok := fields[c.Data]; ok {
					fields[entities.AttrPrefix+c.Data] = attr
				}
				fields[c.Data] = value
				continue
			}
			switch existing := fields[c.Data].(type) {
			case []any:
				fields[c.Data] = append(existing, value)
			default:
				fields[c.Data] = []any{existing, value}
			}
		case xmlquery.TextNode, xmlquery.CharDataNode:
			text.WriteString(c.Data)
		}
	}

	content := strings.TrimSpace(text.String())
	if len(fields) == 0 {
		if content == "" {
			return nil
		}
		return content
	}
	if content != "" {
		fields[entities.TextKey] = content
	}
	return fields
}
