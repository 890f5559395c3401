package openapi

import (
	"errors"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoPaths          = errors.New("no paths found in OpenAPI")
	ErrPathNotFound     = errors.New("endpoint not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// JSONContentType is the media type request and response schemas are read from
const JSONContentType = "application/json"

var httpMethods = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

// Parameter is a resolved operation parameter
type Parameter struct {
	Name     string
	In       string // header, query, path, cookie
	Required bool
	Schema   *Schema
}

// NamedExample is an entry of a media type's "examples" map
type NamedExample struct {
	Name  string
	Value any
}

// Response is one declared response of an operation
type Response struct {
	Status      string
	Description string
	ContentType string
	Schema      *Schema
	Example     any
	HasExample  bool
	Examples    []NamedExample
}

// StatusCode converts the declared key to an HTTP status.
// Range keys such as "4XX" map to the first code of the range, "default" to 200.
func (r *Response) StatusCode() int {
	if code, err := strconv.Atoi(r.Status); err == nil {
		return code
	}
	if len(r.Status) == 3 && r.Status[0] >= '1' && r.Status[0] <= '5' {
		return int(r.Status[0]-'0') * 100
	}
	return 200
}

// LiteralExample returns the literal example declared on the media type.
// "example" wins; otherwise the named example is used, or the first one.
func (r *Response) LiteralExample(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	if name != "" {
		for _, ex := range r.Examples {
			if ex.Name == name {
				return ex.Value, true
			}
		}
	}
	if r.HasExample {
		return r.Example, true
	}
	if len(r.Examples) > 0 {
		return r.Examples[0].Value, true
	}
	return nil, false
}

// Operation is one (path, method) entry of the document
type Operation struct {
	Path         string
	Method       string
	OperationID  string
	Summary      string
	Parameters   []Parameter
	RequestBody  *Schema
	BodyRequired bool
	Responses    []Response
}

// Response returns the response declared for status, or nil
func (o *Operation) Response(status string) *Response {
	for i := range o.Responses {
		if o.Responses[i].Status == status {
			return &o.Responses[i]
		}
	}
	return nil
}

// SuccessResponse picks the response used for a successful mock.
// A declared override wins, then the first of 200/201/202, then the first declared.
func (o *Operation) SuccessResponse(override string) *Response {
	if override != "" {
		if r := o.Response(override); r != nil {
			return r
		}
	}
	for _, status := range []string{"200", "201", "202"} {
		if r := o.Response(status); r != nil {
			return r
		}
	}
	if len(o.Responses) > 0 {
		return &o.Responses[0]
	}
	return nil
}

// Paths lists the declared path keys in document order
func (d *Document) Paths() []string {
	var out []string
	mapEach(mapGet(d.root, "paths"), func(key string, _ *yaml.Node) {
		out = append(out, key)
	})
	return out
}

// Methods lists the HTTP methods declared for path
func (d *Document) Methods(path string) []string {
	item := d.follow(mapGet(mapGet(d.root, "paths"), path))
	var out []string
	for _, m := range httpMethods {
		if hasKey(item, m) {
			out = append(out, m)
		}
	}
	return out
}

// Operation finds the operation for an exact path key and method.
func (d *Document) Operation(path, method string) (*Operation, error) {
	paths := mapGet(d.root, "paths")
	if paths == nil || paths.Kind != yaml.MappingNode {
		return nil, ErrNoPaths
	}
	item := d.follow(mapGet(paths, path))
	if item == nil {
		return nil, ErrPathNotFound
	}

	method = strings.ToLower(method)
	opNode := mapGet(item, method)
	if opNode == nil || !isHTTPMethod(method) {
		return nil, ErrMethodNotAllowed
	}

	op := &Operation{
		Path:        path,
		Method:      method,
		OperationID: scalarString(mapGet(opNode, "operationId")),
		Summary:     scalarString(mapGet(opNode, "summary")),
	}
	op.Parameters = d.parameters(mapGet(item, "parameters"), mapGet(opNode, "parameters"))

	if body := d.follow(mapGet(opNode, "requestBody")); body != nil {
		op.BodyRequired = scalarBool(mapGet(body, "required"))
		if media := mapGet(mapGet(body, "content"), JSONContentType); media != nil {
			op.RequestBody = d.schema(mapGet(media, "schema"))
		}
	}

	mapEach(mapGet(opNode, "responses"), func(status string, value *yaml.Node) {
		op.Responses = append(op.Responses, d.response(status, d.follow(value)))
	})

	return op, nil
}

// parameters merges path-level and operation-level parameters.
// Operation parameters override path parameters with the same name and location.
func (d *Document) parameters(pathLevel, opLevel *yaml.Node) []Parameter {
	var out []Parameter
	add := func(list *yaml.Node) {
		if list == nil || list.Kind != yaml.SequenceNode {
			return
		}
		for _, raw := range list.Content {
			n := d.follow(raw)
			if n == nil {
				continue
			}
			p := Parameter{
				Name:     scalarString(mapGet(n, "name")),
				In:       scalarString(mapGet(n, "in")),
				Required: scalarBool(mapGet(n, "required")),
				Schema:   d.schema(mapGet(n, "schema")),
			}
			replaced := false
			for i := range out {
				if out[i].Name == p.Name && out[i].In == p.In {
					out[i] = p
					replaced = true
				}
			}
			if !replaced {
				out = append(out, p)
			}
		}
	}
	add(pathLevel)
	add(opLevel)
	return out
}

func (d *Document) response(status string, n *yaml.Node) Response {
	r := Response{
		Status:      status,
		Description: scalarString(mapGet(n, "description")),
	}

	content := mapGet(n, "content")
	media := mapGet(content, JSONContentType)
	r.ContentType = JSONContentType
	if media == nil {
		// fall back to the first declared media type
		mapEach(content, func(key string, value *yaml.Node) {
			if media == nil {
				media = value
				r.ContentType = key
			}
		})
	}
	if media == nil {
		return r
	}

	r.Schema = d.schema(mapGet(media, "schema"))
	if ex := mapGet(media, "example"); ex != nil {
		r.Example = nodeValue(ex)
		r.HasExample = true
	}
	mapEach(mapGet(media, "examples"), func(name string, value *yaml.Node) {
		ex := d.follow(value)
		if v := mapGet(ex, "value"); v != nil {
			r.Examples = append(r.Examples, NamedExample{Name: name, Value: nodeValue(v)})
		}
	})
	return r
}

// follow resolves a "$ref" object (parameter, response, body, example) to its target
func (d *Document) follow(n *yaml.Node) *yaml.Node {
	for i := 0; n != nil && i <= MaxDepth; i++ {
		ref := mapGet(n, "$ref")
		if ref == nil {
			return n
		}
		target, ok := d.Lookup(scalarString(ref))
		if !ok {
			return nil
		}
		n = target
	}
	return nil
}

func isHTTPMethod(m string) bool {
	for _, candidate := range httpMethods {
		if candidate == m {
			return true
		}
	}
	return false
}
