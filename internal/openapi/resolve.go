package openapi

import (
	"errors"
	"fmt"
)

// MaxDepth is the recursion ceiling shared by resolution and the synthesizers
const MaxDepth = 10

var (
	// ErrUnresolvedRef is wrapped by *RefError
	ErrUnresolvedRef = errors.New("unresolved ref")
	// ErrDepthExceeded is returned once the depth ceiling is passed
	ErrDepthExceeded = errors.New("schema depth limit exceeded")
)

// RefError carries the reference that could not be followed
type RefError struct {
	Ref string
}

func (e *RefError) Error() string {
	return fmt.Sprintf("unresolved ref %q", e.Ref)
}

func (e *RefError) Unwrap() error {
	return ErrUnresolvedRef
}

// Resolve follows s while it is a reference. Each hop counts toward depth, so
// reference cycles end with ErrDepthExceeded instead of looping. A nil schema
// resolves to nil without error.
func Resolve(s *Schema, doc *Document, depth int) (*Schema, error) {
	if depth > MaxDepth {
		return nil, ErrDepthExceeded
	}
	for s != nil && s.Ref != "" {
		node, ok := doc.Lookup(s.Ref)
		if !ok {
			return nil, &RefError{Ref: s.Ref}
		}
		target := doc.schema(node)
		if target == nil {
			return nil, &RefError{Ref: s.Ref}
		}
		depth++
		if depth > MaxDepth {
			return nil, ErrDepthExceeded
		}
		s = target
	}
	return s, nil
}
