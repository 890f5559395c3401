// Package synth produces response values from OpenAPI schemas.
//
// ToExample is deterministic and meant for documentation previews.
// Mocker injects randomness and is used for served mock bodies.
package synth

import (
	"errors"

	"github.com/prasenjit/go-mockserver/internal/openapi"
)

// UnresolvedMarker is the error text placed in examples for broken references
const UnresolvedMarker = "Unresolved ref"

// ToExample builds one deterministic example value for s.
func ToExample(s *openapi.Schema, doc *openapi.Document) any {
	return toExample(s, doc, 0)
}

func toExample(s *openapi.Schema, doc *openapi.Document, depth int) any {
	if s == nil {
		return nil
	}
	resolved, err := openapi.Resolve(s, doc, depth)
	if err != nil {
		var refErr *openapi.RefError
		if errors.As(err, &refErr) {
			return map[string]any{"$ref": refErr.Ref, "error": UnresolvedMarker}
		}
		return nil
	}
	if resolved == nil {
		return nil
	}
	s = resolved

	switch s.Kind() {
	case openapi.KindObject:
		if len(s.Properties) > 0 {
			obj := make(map[string]any, len(s.Properties))
			for _, p := range s.Properties {
				obj[p.Name] = toExample(p.Schema, doc, depth+1)
			}
			return obj
		}
	case openapi.KindArray:
		return []any{toExample(s.Items, doc, depth+1)}
	case openapi.KindComposite:
		if s.HasExample {
			return s.Example
		}
		return compositeExample(s, doc, depth)
	}

	if s.HasExample {
		return s.Example
	}
	if len(s.Enum) > 0 {
		return s.Enum[0]
	}
	switch s.PrimaryType() {
	case "string":
		return "string"
	case "number", "integer":
		return 0
	case "boolean":
		return true
	}
	return nil
}

// compositeExample merges allOf branches with the node's own properties and
// takes the first oneOf/anyOf branch
func compositeExample(s *openapi.Schema, doc *openapi.Document, depth int) any {
	if len(s.AllOf) > 0 {
		merged := make(map[string]any)
		for _, sub := range s.AllOf {
			if obj, ok := toExample(sub, doc, depth+1).(map[string]any); ok {
				for k, v := range obj {
					merged[k] = v
				}
			}
		}
		for _, p := range s.Properties {
			merged[p.Name] = toExample(p.Schema, doc, depth+1)
		}
		return merged
	}
	if len(s.OneOf) > 0 {
		return toExample(s.OneOf[0], doc, depth+1)
	}
	if len(s.AnyOf) > 0 {
		return toExample(s.AnyOf[0], doc, depth+1)
	}
	return nil
}

// ResponsePreview documents one declared response
type ResponsePreview struct {
	Status      string         `json:"status"`
	Description string         `json:"description,omitempty"`
	ContentType string         `json:"contentType,omitempty"`
	Schema      any            `json:"schema,omitempty"`
	Example     any            `json:"example,omitempty"`
	Examples    map[string]any `json:"examples,omitempty"`
}

// PreviewResponses renders every declared response of op for documentation.
func PreviewResponses(op *openapi.Operation, doc *openapi.Document) []ResponsePreview {
	previews := make([]ResponsePreview, 0, len(op.Responses))
	for _, r := range op.Responses {
		p := ResponsePreview{
			Status:      r.Status,
			Description: r.Description,
		}
		if r.Schema != nil {
			p.ContentType = r.ContentType
			p.Schema = ToExample(r.Schema, doc)
		}
		if len(r.Examples) > 0 {
			p.Examples = make(map[string]any, len(r.Examples))
			for _, ex := range r.Examples {
				p.Examples[ex.Name] = ex.Value
			}
		} else if r.HasExample {
			p.Example = r.Example
		}
		previews = append(previews, p)
	}
	return previews
}
