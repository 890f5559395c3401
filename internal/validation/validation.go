// Package validation reports required request fields that are absent.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/prasenjit/go-mockserver/internal/models"
	"github.com/prasenjit/go-mockserver/internal/openapi"
)

// TypeInvalidJSON labels a request body that could not be decoded
const TypeInvalidJSON = "object (invalid JSON)"

// TypeNonEmptyArray labels an array that must hold at least one item
const TypeNonEmptyArray = "array (minItems > 0)"

// RequestView is the part of an incoming request that parameters are read from
type RequestView struct {
	Headers      http.Header
	Query        url.Values
	PathSegments []string
	// PathParams holds values captured from a templated path key
	PathParams map[string]string
	Cookies    []*http.Cookie
}

// Check validates the parameters and the JSON body of op against req.
// The decoded body is returned even when fields are missing.
func Check(op *openapi.Operation, req *RequestView, body []byte, doc *openapi.Document) (any, []models.MissingField) {
	missing := CheckParameters(op.Parameters, req, doc)
	payload, bodyMissing := CheckBody(op, body, doc)
	return payload, append(missing, bodyMissing...)
}

// CheckParameters reports every required parameter without a value.
func CheckParameters(params []openapi.Parameter, req *RequestView, doc *openapi.Document) []models.MissingField {
	if req == nil {
		req = &RequestView{}
	}

	var missing []models.MissingField
	for _, p := range params {
		if !p.Required {
			continue
		}
		if value, ok := req.lookup(p); ok && value != "" {
			continue
		}
		missing = append(missing, models.MissingField{
			Field: p.In + ": " + p.Name,
			Type:  typeLabel(p.Schema, doc),
		})
	}
	return missing
}

func (r *RequestView) lookup(p openapi.Parameter) (string, bool) {
	switch p.In {
	case "header":
		values := r.Headers.Values(p.Name)
		if len(values) == 0 {
			return "", false
		}
		return values[0], true
	case "query":
		return queryValue(r.Query, p.Name)
	case "path":
		if v, ok := r.PathParams[p.Name]; ok {
			return v, true
		}
		// exact key matches carry no captures, so only the literal name is checked
		if strings.Contains(strings.Join(r.PathSegments, "/"), p.Name) {
			return p.Name, true
		}
		return "", false
	case "cookie":
		for _, c := range r.Cookies {
			if c.Name == p.Name {
				return c.Value, true
			}
		}
	}
	return "", false
}

// queryValue looks a key up directly, then among URL-decoded keys
func queryValue(q url.Values, name string) (string, bool) {
	if values, ok := q[name]; ok && len(values) > 0 {
		return values[0], true
	}
	for key, values := range q {
		decoded, err := url.QueryUnescape(key)
		if err == nil && decoded == name && len(values) > 0 {
			return values[0], true
		}
	}
	return "", false
}

// CheckBody decodes the request body and walks it against the JSON request schema.
// An empty body is treated as an empty object.
func CheckBody(op *openapi.Operation, body []byte, doc *openapi.Document) (any, []models.MissingField) {
	var payload any
	var missing []models.MissingField

	body = bytes.TrimSpace(body)
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			payload = nil
			if op.RequestBody != nil {
				missing = append(missing, models.MissingField{Field: "Body", Type: TypeInvalidJSON})
			}
		}
	}

	if op.RequestBody == nil {
		return payload, missing
	}

	target := payload
	if target == nil {
		target = map[string]any{}
	}
	return payload, append(missing, FindMissing(op.RequestBody, target, "", doc)...)
}

// FindMissing walks schema and payload together and reports required fields
// that are absent or empty strings, at any depth. prefix is the dotted path
// of payload inside the request body.
func FindMissing(s *openapi.Schema, payload any, prefix string, doc *openapi.Document) []models.MissingField {
	var missing []models.MissingField
	walk(s, payload, prefix, doc, 0, &missing)
	return missing
}

func walk(s *openapi.Schema, payload any, path string, doc *openapi.Document, depth int, out *[]models.MissingField) {
	resolved, err := openapi.Resolve(s, doc, depth)
	if err != nil || resolved == nil {
		return
	}
	s = resolved

	for _, sub := range s.AllOf {
		walk(sub, payload, path, doc, depth+1, out)
	}

	kind := s.Kind()
	if kind == openapi.KindComposite && (len(s.Properties) > 0 || len(s.Required) > 0) {
		kind = openapi.KindObject
	}

	switch kind {
	case openapi.KindObject:
		obj, _ := payload.(map[string]any)
		for _, name := range s.Required {
			if value, ok := obj[name]; ok && value != "" {
				continue
			}
			*out = append(*out, models.MissingField{
				Field: bodyLabel(joinPath(path, name)),
				Type:  typeLabel(s.Property(name), doc),
			})
		}
		// optional properties are not descended into
		for _, name := range s.Required {
			value, ok := obj[name]
			if !ok || value == "" {
				continue
			}
			walk(s.Property(name), value, joinPath(path, name), doc, depth+1, out)
		}

	case openapi.KindArray:
		items, _ := payload.([]any)
		if s.MinItems != nil && *s.MinItems > 0 && len(items) == 0 {
			*out = append(*out, models.MissingField{Field: bodyLabel(path), Type: TypeNonEmptyArray})
			return
		}
		for i, item := range items {
			walk(s.Items, item, fmt.Sprintf("%s[%d]", path, i), doc, depth+1, out)
		}
	}
}

// Summary renders missing fields as the human readable diagnostic of a 400 response.
func Summary(missing []models.MissingField) string {
	if len(missing) == 0 {
		return "Validation error"
	}
	parts := make([]string, len(missing))
	for i, m := range missing {
		parts[i] = fmt.Sprintf("%s (%s)", m.Field, m.Type)
	}
	return "Validation error. Missing: " + strings.Join(parts, "; ")
}

func typeLabel(s *openapi.Schema, doc *openapi.Document) string {
	if resolved, err := openapi.Resolve(s, doc, 0); err == nil && resolved != nil {
		s = resolved
	}
	if s == nil {
		return models.NormalizeType(nil)
	}
	return models.NormalizeType(s.Types)
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func bodyLabel(path string) string {
	if path == "" {
		return "Body"
	}
	return "Body: " + path
}
