package openapi

import (
	"gopkg.in/yaml.v3"
)

// Kind tags the shape of a Schema
type Kind int

const (
	KindScalar Kind = iota
	KindRef
	KindObject
	KindArray
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindRef:
		return "ref"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindComposite:
		return "composite"
	default:
		return "scalar"
	}
}

// Property is a named object member, kept in declaration order
type Property struct {
	Name   string
	Schema *Schema
}

// Schema is a single schema node. Which fields are meaningful depends on Kind.
type Schema struct {
	Ref string

	Types    []string // "type" as a list; OpenAPI 3.1 allows several
	Format   string
	Nullable bool

	Properties           []Property
	Required             []string
	AdditionalProperties *Schema
	AdditionalAllowed    *bool // boolean form of additionalProperties

	Items    *Schema
	MinItems *int
	MaxItems *int

	Enum  []any
	OneOf []*Schema
	AnyOf []*Schema
	AllOf []*Schema

	Example    any
	HasExample bool
	Default    any
	HasDefault bool
}

// Kind reports the schema shape. References take precedence over everything.
func (s *Schema) Kind() Kind {
	switch {
	case s == nil:
		return KindScalar
	case s.Ref != "":
		return KindRef
	case len(s.OneOf) > 0 || len(s.AnyOf) > 0 || len(s.AllOf) > 0:
		return KindComposite
	case s.HasType("array"):
		return KindArray
	case s.HasType("object"):
		return KindObject
	case len(s.Properties) > 0 && len(s.Types) == 0:
		return KindObject
	case s.Items != nil && len(s.Types) == 0:
		return KindArray
	default:
		return KindScalar
	}
}

// HasType reports whether t is among the declared types
func (s *Schema) HasType(t string) bool {
	if s == nil {
		return false
	}
	for _, typ := range s.Types {
		if typ == t {
			return true
		}
	}
	return false
}

// PrimaryType returns the first declared type other than "null"
func (s *Schema) PrimaryType() string {
	if s == nil {
		return ""
	}
	for _, typ := range s.Types {
		if typ != "null" {
			return typ
		}
	}
	if len(s.Types) > 0 {
		return s.Types[0]
	}
	return ""
}

// IsNullable is true for "nullable: true" and for type lists containing "null"
func (s *Schema) IsNullable() bool {
	return s != nil && (s.Nullable || s.HasType("null"))
}

// Property returns the declared property schema or nil
func (s *Schema) Property(name string) *Schema {
	if s == nil {
		return nil
	}
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema
		}
	}
	return nil
}

// IsRequired reports whether name is listed in required
func (s *Schema) IsRequired(name string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

const maxNodeDepth = 64

// SchemaFromNode converts a schema node. The conversion never follows $ref;
// use Resolve for that.
func SchemaFromNode(n *yaml.Node) *Schema {
	return schemaFromNode(n, 0)
}

// schema returns the cached conversion of a node owned by d
func (d *Document) schema(n *yaml.Node) *Schema {
	if n == nil {
		return nil
	}
	if d == nil {
		return SchemaFromNode(n)
	}
	if cached, ok := d.schemas.Load(n); ok {
		return cached.(*Schema)
	}
	s := SchemaFromNode(n)
	actual, _ := d.schemas.LoadOrStore(n, s)
	return actual.(*Schema)
}

func schemaFromNode(n *yaml.Node, depth int) *Schema {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode || depth > maxNodeDepth {
		return nil
	}

	s := &Schema{}
	if ref := mapGet(n, "$ref"); ref != nil {
		s.Ref = scalarString(ref)
		return s
	}

	if t := mapGet(n, "type"); t != nil {
		switch t.Kind {
		case yaml.ScalarNode:
			s.Types = []string{t.Value}
		case yaml.SequenceNode:
			for _, c := range t.Content {
				s.Types = append(s.Types, scalarString(c))
			}
		}
	}
	s.Format = scalarString(mapGet(n, "format"))
	s.Nullable = scalarBool(mapGet(n, "nullable"))

	mapEach(mapGet(n, "properties"), func(key string, value *yaml.Node) {
		s.Properties = append(s.Properties, Property{Name: key, Schema: schemaFromNode(value, depth+1)})
	})
	if req := mapGet(n, "required"); req != nil && req.Kind == yaml.SequenceNode {
		for _, c := range req.Content {
			s.Required = append(s.Required, scalarString(c))
		}
	}
	if ap := mapGet(n, "additionalProperties"); ap != nil {
		switch ap.Kind {
		case yaml.MappingNode:
			s.AdditionalProperties = schemaFromNode(ap, depth+1)
		case yaml.ScalarNode:
			allowed := scalarBool(ap)
			s.AdditionalAllowed = &allowed
		}
	}

	if items := mapGet(n, "items"); items != nil {
		s.Items = schemaFromNode(items, depth+1)
	}
	if v, ok := scalarInt(mapGet(n, "minItems")); ok {
		s.MinItems = &v
	}
	if v, ok := scalarInt(mapGet(n, "maxItems")); ok {
		s.MaxItems = &v
	}

	if enum := mapGet(n, "enum"); enum != nil && enum.Kind == yaml.SequenceNode {
		for _, c := range enum.Content {
			s.Enum = append(s.Enum, nodeValue(c))
		}
	}
	s.OneOf = schemaList(mapGet(n, "oneOf"), depth)
	s.AnyOf = schemaList(mapGet(n, "anyOf"), depth)
	s.AllOf = schemaList(mapGet(n, "allOf"), depth)

	if ex := mapGet(n, "example"); ex != nil {
		s.Example = nodeValue(ex)
		s.HasExample = true
	}
	if def := mapGet(n, "default"); def != nil {
		s.Default = nodeValue(def)
		s.HasDefault = true
	}

	return s
}

func schemaList(n *yaml.Node, depth int) []*Schema {
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]*Schema, 0, len(n.Content))
	for _, c := range n.Content {
		if sub := schemaFromNode(c, depth+1); sub != nil {
			out = append(out, sub)
		}
	}
	return out
}
