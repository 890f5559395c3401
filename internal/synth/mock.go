package synth

import (
	"crypto/rand"
	"math/big"
	mathrand "math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prasenjit/go-mockserver/internal/openapi"
)

// Rand supplies uniform integers in [min, max]
type Rand interface {
	IntN(min, max int) int
}

// CryptoRand draws from crypto/rand and falls back to math/rand on read failure
type CryptoRand struct{}

// IntN implements Rand
func (CryptoRand) IntN(min, max int) int {
	if max < min {
		min, max = max, min
	}
	span := int64(max) - int64(min) + 1
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return min + int(mathrand.Int64N(span))
	}
	return min + int(n.Int64())
}

// MockOptions holds the tunables of the mock synthesizer
type MockOptions struct {
	NullProbability float64
	ArrayMin        int
	ArrayMax        int
	MaxDepth        int
	Rand            Rand
	Now             func() time.Time
}

// DefaultMockOptions returns the stock tunables
func DefaultMockOptions() MockOptions {
	return MockOptions{
		NullProbability: 0.3,
		ArrayMin:        0,
		ArrayMax:        3,
		MaxDepth:        openapi.MaxDepth,
		Rand:            CryptoRand{},
		Now:             time.Now,
	}
}

// Mocker generates randomised values that follow a schema
type Mocker struct {
	opts MockOptions
}

// NewMocker creates a mocker. Missing Rand, Now or MaxDepth take their defaults;
// MaxDepth is also capped at openapi.MaxDepth.
func NewMocker(opts MockOptions) *Mocker {
	defaults := DefaultMockOptions()
	if opts.Rand == nil {
		opts.Rand = defaults.Rand
	}
	if opts.Now == nil {
		opts.Now = defaults.Now
	}
	if opts.MaxDepth <= 0 || opts.MaxDepth > openapi.MaxDepth {
		opts.MaxDepth = defaults.MaxDepth
	}
	return &Mocker{opts: opts}
}

// Mock produces one value for s. It never panics on malformed schemas;
// anything it cannot interpret becomes nil.
func (m *Mocker) Mock(s *openapi.Schema, doc *openapi.Document) any {
	return m.mock(s, doc, 0, false)
}

func (m *Mocker) mock(s *openapi.Schema, doc *openapi.Document, depth int, nullChecked bool) any {
	if s == nil || depth > m.opts.MaxDepth {
		return nil
	}
	resolved, err := openapi.Resolve(s, doc, depth)
	if err != nil || resolved == nil {
		return nil
	}
	s = resolved

	if s.HasExample {
		return s.Example
	}
	if s.HasDefault {
		return s.Default
	}
	if len(s.Enum) > 0 {
		return s.Enum[m.opts.Rand.IntN(0, len(s.Enum)-1)]
	}

	if branches := firstNonEmpty(s.OneOf, s.AnyOf); len(branches) > 0 {
		if (s.IsNullable() || m.branchHasNull(branches, doc, depth)) && m.chance() {
			return nil
		}
		pick := branches[m.opts.Rand.IntN(0, len(branches)-1)]
		return m.mock(pick, doc, depth+1, false)
	}

	if len(s.AllOf) > 0 {
		if s.IsNullable() && m.chance() {
			return nil
		}
		merged := make(map[string]any)
		for _, sub := range s.AllOf {
			switch v := m.mock(sub, doc, depth+1, false).(type) {
			case map[string]any:
				for k, val := range v {
					merged[k] = val
				}
			case nil:
			default:
				merged["$value"] = v
			}
		}
		for _, p := range s.Properties {
			merged[p.Name] = m.mock(p.Schema, doc, depth+1, false)
		}
		return merged
	}

	if !nullChecked && s.IsNullable() && m.chance() {
		return nil
	}

	switch s.Kind() {
	case openapi.KindObject:
		return m.object(s, doc, depth)
	case openapi.KindArray:
		return m.array(s, doc, depth)
	}
	return m.scalar(s)
}

func (m *Mocker) object(s *openapi.Schema, doc *openapi.Document, depth int) map[string]any {
	obj := make(map[string]any, len(s.Properties)+1)
	for _, p := range s.Properties {
		obj[p.Name] = m.mock(p.Schema, doc, depth+1, false)
	}
	if s.AdditionalProperties != nil {
		obj["extraKey"] = m.mock(s.AdditionalProperties, doc, depth+1, false)
	}
	return obj
}

func (m *Mocker) array(s *openapi.Schema, doc *openapi.Document, depth int) []any {
	lo, hi := m.opts.ArrayMin, m.opts.ArrayMax
	if s.MinItems != nil {
		lo = *s.MinItems
	}
	if s.MaxItems != nil {
		hi = *s.MaxItems
	}
	low := max(0, min(lo, hi))
	high := max(low, max(lo, hi))
	count := m.opts.Rand.IntN(low, high)

	var itemNullable bool
	if item, err := openapi.Resolve(s.Items, doc, depth+1); err == nil && item != nil {
		itemNullable = item.IsNullable()
	}

	arr := make([]any, 0, count)
	for i := 0; i < count; i++ {
		if itemNullable && m.chance() {
			arr = append(arr, nil)
			continue
		}
		arr = append(arr, m.mock(s.Items, doc, depth+1, itemNullable))
	}
	return arr
}

func (m *Mocker) scalar(s *openapi.Schema) any {
	switch s.PrimaryType() {
	case "string":
		return m.fakeByFormat(s.Format)
	case "integer":
		return m.opts.Rand.IntN(0, 1000)
	case "number":
		return float64(m.opts.Rand.IntN(0, 100000)) / 100
	case "boolean":
		return m.opts.Rand.IntN(0, 1) == 1
	case "null":
		return nil
	}
	if s.Format != "" {
		return m.fakeByFormat(s.Format)
	}
	return nil
}

var loremWords = []string{
	"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing", "elit",
	"sed", "do", "eiusmod", "tempor", "incididunt", "labore", "magna", "aliqua",
}

func (m *Mocker) fakeByFormat(format string) string {
	now := m.opts.Now().UTC()
	switch format {
	case "date":
		return now.Format("2006-01-02")
	case "date-time":
		return now.Format("2006-01-02T15:04:05.000Z07:00")
	case "email":
		return "user@example.com"
	case "uuid":
		return uuid.NewString()
	case "uri", "url":
		return "https://example.com"
	case "ipv4":
		return "192.168.1.100"
	case "ipv6":
		return "2001:0db8:85a3:0000:0000:8a2e:0370:7334"
	}
	words := make([]string, 3)
	for i := range words {
		words[i] = loremWords[m.opts.Rand.IntN(0, len(loremWords)-1)]
	}
	return strings.Join(words, " ")
}

// chance is true with probability NullProbability
func (m *Mocker) chance() bool {
	threshold := int(m.opts.NullProbability * 10000)
	if threshold <= 0 {
		return false
	}
	return m.opts.Rand.IntN(1, 10000) <= threshold
}

func (m *Mocker) branchHasNull(branches []*openapi.Schema, doc *openapi.Document, depth int) bool {
	for _, b := range branches {
		resolved, err := openapi.Resolve(b, doc, depth+1)
		if err != nil || resolved == nil {
			continue
		}
		if resolved.IsNullable() || resolved.PrimaryType() == "null" {
			return true
		}
	}
	return false
}

func firstNonEmpty(lists ...[]*openapi.Schema) []*openapi.Schema {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}
