package synth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasenjit/go-mockserver/internal/openapi"
)

const schemas = `
openapi: 3.0.3
paths: {}
components:
  schemas:
    User:
      type: object
      properties:
        id:
          type: integer
        name:
          type: string
        email:
          type: string
          format: email
        role:
          type: string
          enum: [admin, user]
        tags:
          type: array
          items:
            type: string
    Node:
      type: object
      properties:
        value:
          type: integer
        next:
          $ref: '#/components/schemas/Node'
    Broken:
      type: object
      properties:
        link:
          $ref: '#/components/schemas/DoesNotExist'
    Nullable:
      type: string
      nullable: true
    Pet:
      allOf:
        - type: object
          properties:
            name:
              type: string
        - type: object
          properties:
            age:
              type: integer
`

func doc(t *testing.T) *openapi.Document {
	t.Helper()
	d, err := openapi.Parse([]byte(schemas))
	require.NoError(t, err)
	return d
}

func ref(name string) *openapi.Schema {
	return &openapi.Schema{Ref: "#/components/schemas/" + name}
}

func intp(v int) *int { return &v }

// fixedRand always returns the lower bound, or the upper bound when high is set
type fixedRand struct{ high bool }

func (f fixedRand) IntN(min, max int) int {
	if f.high {
		return max
	}
	return min
}

func depthOf(v any) int {
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return 0
	}
	return 1 + depthOf(obj["next"])
}

func TestToExample(t *testing.T) {
	d := doc(t)

	got := ToExample(ref("User"), d)
	assert.Equal(t, map[string]any{
		"id":    0,
		"name":  "string",
		"email": "string",
		"role":  "admin",
		"tags":  []any{"string"},
	}, got)
}

func TestToExample_Idempotent(t *testing.T) {
	d := doc(t)
	for _, name := range []string{"User", "Node", "Broken", "Pet"} {
		assert.Equal(t, ToExample(ref(name), d), ToExample(ref(name), d), name)
	}
}

func TestToExample_ExplicitExampleAndScalars(t *testing.T) {
	tests := []struct {
		name   string
		schema *openapi.Schema
		want   any
	}{
		{"example wins over enum", &openapi.Schema{Types: []string{"string"}, Example: "hello", HasExample: true, Enum: []any{"x"}}, "hello"},
		{"enum first", &openapi.Schema{Types: []string{"string"}, Enum: []any{"b", "a"}}, "b"},
		{"number", &openapi.Schema{Types: []string{"number"}}, 0},
		{"boolean", &openapi.Schema{Types: []string{"boolean"}}, true},
		{"untyped", &openapi.Schema{}, nil},
		{"object without properties", &openapi.Schema{Types: []string{"object"}}, nil},
		{"nil schema", nil, nil},
		{"array of nothing", &openapi.Schema{Types: []string{"array"}}, []any{nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToExample(tt.schema, nil))
		})
	}
}

func TestToExample_UnresolvedRef(t *testing.T) {
	got := ToExample(ref("Broken"), doc(t))
	assert.Equal(t, map[string]any{
		"link": map[string]any{
			"$ref":  "#/components/schemas/DoesNotExist",
			"error": "Unresolved ref",
		},
	}, got)
}

func TestToExample_CycleIsBounded(t *testing.T) {
	got := ToExample(ref("Node"), doc(t))
	assert.LessOrEqual(t, depthOf(got), openapi.MaxDepth+1)
}

func TestToExample_AllOf(t *testing.T) {
	got := ToExample(ref("Pet"), doc(t))
	assert.Equal(t, map[string]any{"name": "string", "age": 0}, got)
}

func TestToExample_AllOfKeepsOwnProperties(t *testing.T) {
	s := &openapi.Schema{
		Properties: []openapi.Property{{Name: "id", Schema: &openapi.Schema{Types: []string{"integer"}}}},
		AllOf: []*openapi.Schema{{
			Types:      []string{"object"},
			Properties: []openapi.Property{{Name: "name", Schema: &openapi.Schema{Types: []string{"string"}}}},
		}},
	}
	assert.Equal(t, map[string]any{"id": 0, "name": "string"}, ToExample(s, nil))
}

func TestMock_AllOfKeepsOwnProperties(t *testing.T) {
	opts := DefaultMockOptions()
	opts.NullProbability = 0
	m := NewMocker(opts)

	s := &openapi.Schema{
		Properties: []openapi.Property{{Name: "id", Schema: &openapi.Schema{Types: []string{"integer"}}}},
		AllOf: []*openapi.Schema{{
			Types:      []string{"object"},
			Properties: []openapi.Property{{Name: "name", Schema: &openapi.Schema{Types: []string{"string"}}}},
		}},
	}
	got, ok := m.Mock(s, nil).(map[string]any)
	require.True(t, ok)
	assert.Contains(t, got, "id")
	assert.Contains(t, got, "name")
}

func TestMock_ObjectShape(t *testing.T) {
	m := NewMocker(DefaultMockOptions())
	d := doc(t)

	for i := 0; i < 50; i++ {
		got, ok := m.Mock(ref("User"), d).(map[string]any)
		require.True(t, ok)
		assert.IsType(t, 0, got["id"])
		assert.IsType(t, "", got["name"])
		assert.Equal(t, "user@example.com", got["email"])
		assert.Contains(t, []any{"admin", "user"}, got["role"])
		tags, ok := got["tags"].([]any)
		require.True(t, ok)
		assert.LessOrEqual(t, len(tags), 3)
	}
}

func TestMock_ArrayCardinality(t *testing.T) {
	tests := []struct {
		name     string
		min, max *int
		low      int
		high     int
	}{
		{"declared bounds", intp(2), intp(5), 2, 5},
		{"equal bounds", intp(4), intp(4), 4, 4},
		{"defaults", nil, nil, 0, 3},
		{"negative min clamped", intp(-3), intp(1), 0, 1},
	}

	m := NewMocker(DefaultMockOptions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &openapi.Schema{
				Types:    []string{"array"},
				Items:    &openapi.Schema{Types: []string{"integer"}},
				MinItems: tt.min,
				MaxItems: tt.max,
			}
			for i := 0; i < 1000; i++ {
				arr, ok := m.Mock(s, nil).([]any)
				require.True(t, ok)
				assert.GreaterOrEqual(t, len(arr), tt.low)
				assert.LessOrEqual(t, len(arr), tt.high)
			}
		})
	}
}

func TestMock_DepthGuard(t *testing.T) {
	opts := DefaultMockOptions()
	opts.NullProbability = 0
	m := NewMocker(opts)
	d := doc(t)

	done := make(chan any, 1)
	go func() { done <- m.Mock(ref("Node"), d) }()

	select {
	case got := <-done:
		assert.LessOrEqual(t, depthOf(got), openapi.MaxDepth+1)
		assert.Greater(t, depthOf(got), 1)
	case <-time.After(5 * time.Second):
		t.Fatal("mock synthesis did not terminate")
	}
}

func TestNewMocker_DepthCappedAtResolverCeiling(t *testing.T) {
	assert.Equal(t, openapi.MaxDepth, NewMocker(MockOptions{MaxDepth: 20}).opts.MaxDepth)
	assert.Equal(t, 4, NewMocker(MockOptions{MaxDepth: 4}).opts.MaxDepth)
}

func TestMock_PriorityOrder(t *testing.T) {
	m := NewMocker(MockOptions{NullProbability: 0.3, ArrayMax: 3, Rand: fixedRand{}})

	withExample := &openapi.Schema{Types: []string{"integer"}, Example: 42, HasExample: true, Default: 1, HasDefault: true}
	assert.Equal(t, 42, m.Mock(withExample, nil))

	withDefault := &openapi.Schema{Types: []string{"integer"}, Default: 1, HasDefault: true, Enum: []any{9}}
	assert.Equal(t, 1, m.Mock(withDefault, nil))

	withEnum := &openapi.Schema{Types: []string{"string"}, Enum: []any{"a", "b"}}
	assert.Equal(t, "a", m.Mock(withEnum, nil))
	assert.Equal(t, "b", NewMocker(MockOptions{Rand: fixedRand{high: true}}).Mock(withEnum, nil))
}

func TestMock_NullProbability(t *testing.T) {
	nullable := &openapi.Schema{Types: []string{"string"}, Nullable: true}

	never := NewMocker(MockOptions{NullProbability: 0})
	for i := 0; i < 200; i++ {
		assert.NotNil(t, never.Mock(nullable, nil))
	}

	always := NewMocker(MockOptions{NullProbability: 1})
	for i := 0; i < 200; i++ {
		assert.Nil(t, always.Mock(nullable, nil))
	}

	// type list containing "null" counts as nullable
	typeList := &openapi.Schema{Types: []string{"null", "integer"}}
	assert.Nil(t, always.Mock(typeList, nil))
	assert.IsType(t, 0, never.Mock(typeList, nil))
}

func TestMock_NullableItems(t *testing.T) {
	always := NewMocker(MockOptions{NullProbability: 1, Rand: fixedRand{high: true}})
	s := &openapi.Schema{
		Types:    []string{"array"},
		MinItems: intp(2),
		MaxItems: intp(2),
		Items:    &openapi.Schema{Types: []string{"string"}, Nullable: true},
	}
	assert.Equal(t, []any{nil, nil}, always.Mock(s, nil))
}

func TestMock_Composites(t *testing.T) {
	never := NewMocker(MockOptions{NullProbability: 0})

	got := never.Mock(ref("Pet"), doc(t))
	obj, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, obj, "name")
	assert.Contains(t, obj, "age")

	oneOf := &openapi.Schema{OneOf: []*openapi.Schema{
		{Types: []string{"integer"}},
		{Types: []string{"boolean"}},
	}}
	for i := 0; i < 50; i++ {
		v := never.Mock(oneOf, nil)
		switch v.(type) {
		case int, bool:
		default:
			t.Fatalf("unexpected oneOf value %#v", v)
		}
	}

	// a null branch makes the composite nullable
	always := NewMocker(MockOptions{NullProbability: 1})
	anyOf := &openapi.Schema{AnyOf: []*openapi.Schema{{Types: []string{"null"}}, {Types: []string{"string"}}}}
	assert.Nil(t, always.Mock(anyOf, nil))
}

func TestMock_AdditionalProperties(t *testing.T) {
	m := NewMocker(MockOptions{NullProbability: 0})
	s := &openapi.Schema{
		Types:                []string{"object"},
		Properties:           []openapi.Property{{Name: "a", Schema: &openapi.Schema{Types: []string{"boolean"}}}},
		AdditionalProperties: &openapi.Schema{Types: []string{"string"}, Format: "ipv4"},
	}

	obj, ok := m.Mock(s, nil).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "192.168.1.100", obj["extraKey"])
	assert.IsType(t, true, obj["a"])
}

func TestMock_Formats(t *testing.T) {
	now := time.Date(2024, 3, 9, 10, 11, 12, 0, time.UTC)
	m := NewMocker(MockOptions{Now: func() time.Time { return now }, Rand: fixedRand{}})

	str := func(format string) any {
		return m.Mock(&openapi.Schema{Types: []string{"string"}, Format: format}, nil)
	}

	assert.Equal(t, "2024-03-09", str("date"))
	assert.Equal(t, "2024-03-09T10:11:12.000Z", str("date-time"))
	assert.Equal(t, "https://example.com", str("uri"))
	assert.Equal(t, "https://example.com", str("url"))
	assert.Equal(t, "2001:0db8:85a3:0000:0000:8a2e:0370:7334", str("ipv6"))
	_, err := uuid.Parse(str("uuid").(string))
	assert.NoError(t, err)
	assert.Equal(t, "lorem lorem lorem", str("whatever"))
}

func TestMock_NeverPanics(t *testing.T) {
	m := NewMocker(DefaultMockOptions())
	d := doc(t)

	assert.NotPanics(t, func() {
		m.Mock(nil, d)
		m.Mock(ref("Missing"), d)
		m.Mock(ref("Broken"), d)
		m.Mock(&openapi.Schema{Types: []string{"array"}}, d)
		m.Mock(&openapi.Schema{AllOf: []*openapi.Schema{nil, {Types: []string{"string"}}}}, d)
	})
	assert.Nil(t, m.Mock(ref("Missing"), d))
}

func TestCryptoRand_Bounds(t *testing.T) {
	r := CryptoRand{}
	for i := 0; i < 500; i++ {
		v := r.IntN(3, 7)
		assert.GreaterOrEqual(t, v, 3)
		assert.LessOrEqual(t, v, 7)
	}
	// swapped bounds
	v := r.IntN(5, 1)
	assert.GreaterOrEqual(t, v, 1)
	assert.LessOrEqual(t, v, 5)
}

func TestPreviewResponses(t *testing.T) {
	d, err := openapi.Parse([]byte(`
openapi: 3.0.3
paths:
  /users:
    get:
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: object
                properties:
                  id: {type: integer}
              example:
                id: 5
        "404":
          description: missing
`))
	require.NoError(t, err)
	op, err := d.Operation("/users", "get")
	require.NoError(t, err)

	previews := PreviewResponses(op, d)
	require.Len(t, previews, 2)
	assert.Equal(t, "200", previews[0].Status)
	assert.Equal(t, map[string]any{"id": 0}, previews[0].Schema)
	assert.Equal(t, map[string]any{"id": 5}, previews[0].Example)
	assert.Equal(t, "404", previews[1].Status)
	assert.Nil(t, previews[1].Schema)
}
