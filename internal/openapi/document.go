// Package openapi holds a read-only view of an OpenAPI 3.x document.
//
// The document is kept as a yaml.v3 node graph so that both JSON and YAML
// sources are accepted and mapping order (property order) is preserved.
package openapi

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Document is a parsed OpenAPI document. It is safe for concurrent reads.
type Document struct {
	root    *yaml.Node
	schemas sync.Map // *yaml.Node -> *Schema
}

// Parse parses a JSON or YAML OpenAPI document.
func Parse(data []byte) (*Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 {
		return nil, errors.New("failed to parse document: empty document")
	}
	root := deref(node.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("failed to parse document: root is not an object")
	}
	return &Document{root: root}, nil
}

// Root returns the root mapping node
func (d *Document) Root() *yaml.Node {
	return d.root
}

// Lookup follows a local JSON pointer reference such as
// "#/components/schemas/User" from the document root.
func (d *Document) Lookup(ref string) (*yaml.Node, bool) {
	if d == nil || d.root == nil {
		return nil, false
	}
	if !strings.HasPrefix(ref, "#") {
		// external references are not followed
		return nil, false
	}

	pointer := strings.TrimPrefix(strings.TrimPrefix(ref, "#"), "/")
	cur := d.root
	if pointer == "" {
		return cur, true
	}

	for _, raw := range strings.Split(pointer, "/") {
		seg := unescapePointer(raw)
		cur = deref(cur)
		switch cur.Kind {
		case yaml.MappingNode:
			next := mapGet(cur, seg)
			if next == nil {
				return nil, false
			}
			cur = next
		case yaml.SequenceNode:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.Content) {
				return nil, false
			}
			cur = cur.Content[idx]
		default:
			return nil, false
		}
	}
	return deref(cur), true
}

// Value decodes the node found at ref into plain Go values.
func (d *Document) Value(ref string) (any, bool) {
	node, ok := d.Lookup(ref)
	if !ok {
		return nil, false
	}
	return nodeValue(node), true
}

func unescapePointer(seg string) string {
	if decoded, err := url.PathUnescape(seg); err == nil {
		seg = decoded
	}
	seg = strings.ReplaceAll(seg, "~1", "/")
	return strings.ReplaceAll(seg, "~0", "~")
}

// deref follows YAML aliases
func deref(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

// mapGet returns the value for key in a mapping node, or nil
func mapGet(n *yaml.Node, key string) *yaml.Node {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return deref(n.Content[i+1])
		}
	}
	return nil
}

// mapEach calls fn for every key/value pair in declaration order
func mapEach(n *yaml.Node, fn func(key string, value *yaml.Node)) {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		fn(n.Content[i].Value, deref(n.Content[i+1]))
	}
}

func hasKey(n *yaml.Node, key string) bool {
	return mapGet(n, key) != nil
}

func scalarString(n *yaml.Node) string {
	n = deref(n)
	if n == nil || n.Kind != yaml.ScalarNode {
		return ""
	}
	return n.Value
}

func scalarBool(n *yaml.Node) bool {
	n = deref(n)
	if n == nil || n.Kind != yaml.ScalarNode {
		return false
	}
	b, err := strconv.ParseBool(n.Value)
	return err == nil && b
}

func scalarInt(n *yaml.Node) (int, bool) {
	n = deref(n)
	if n == nil || n.Kind != yaml.ScalarNode {
		return 0, false
	}
	if i, err := strconv.Atoi(n.Value); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
		return int(f), true
	}
	return 0, false
}

// nodeValue converts a node into JSON compatible Go values:
// map[string]any, []any, string, float64/int, bool or nil.
func nodeValue(n *yaml.Node) any {
	n = deref(n)
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			m[n.Content[i].Value] = nodeValue(n.Content[i+1])
		}
		return m
	case yaml.SequenceNode:
		s := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			s = append(s, nodeValue(c))
		}
		return s
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return n.Value
		}
		return v
	}
	return nil
}
