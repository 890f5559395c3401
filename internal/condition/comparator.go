package condition

import (
	"strings"

	"github.com/prasenjit/go-mockserver/internal/models"
)

// comparatorPatterns is matched in order against the compacted comparator text.
// Negated and compound phrases must come before the shorter phrases they contain.
var comparatorPatterns = []struct {
	pattern string
	kind    models.Comparator
}{
	{"notequal", models.CompNotEquals},
	{"notcontain", models.CompNotContains},
	{"notinclude", models.CompNotContains},
	{"notexist", models.CompNotExists},
	{"greaterthanorequal", models.CompGTE},
	{"lessthanorequal", models.CompLTE},
	{"greaterthan", models.CompGreaterThan},
	{"lessthan", models.CompLessThan},
	{"equal", models.CompEquals},
	{"contain", models.CompContains},
	{"include", models.CompContains},
	{"exist", models.CompExists},
	{"!=", models.CompNotEquals},
	{">=", models.CompGTE},
	{"<=", models.CompLTE},
	{"==", models.CompEquals},
	{">", models.CompGreaterThan},
	{"<", models.CompLessThan},
	{"=", models.CompEquals},
}

// NormalizeComparator maps free-form comparator text to its canonical kind.
// Unrecognised text compares for equality.
func NormalizeComparator(text string) models.Comparator {
	compact := strings.Join(strings.Fields(strings.ToLower(text)), "")
	compact = strings.NewReplacer("_", "", "-", "").Replace(compact)

	for _, c := range models.ValidComparators() {
		if compact == string(c) {
			return c
		}
	}
	for _, p := range comparatorPatterns {
		if strings.Contains(compact, p.pattern) {
			return p.kind
		}
	}
	return models.CompEquals
}
