package proxy

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/prasenjit/go-mockserver/internal/openapi"
)

var paramPattern = regexp.MustCompile(`\\\{([^}]+)\\\}`)

// route is a templated path key of the document
type route struct {
	key       string
	pattern   *regexp.Regexp
	paramKeys []string
}

// buildPathPattern converts an OpenAPI path template to an anchored regex
func buildPathPattern(pathKey string) (*regexp.Regexp, []string) {
	var paramKeys []string

	escaped := regexp.QuoteMeta(pathKey)
	result := paramPattern.ReplaceAllStringFunc(escaped, func(match string) string {
		paramKeys = append(paramKeys, match[2:len(match)-2])
		return `([^/]+)`
	})

	pattern, err := regexp.Compile("^" + result + "$")
	if err != nil {
		return nil, nil
	}
	return pattern, paramKeys
}

// sortRoutes puts routes with fewer parameters first, then longer keys
func sortRoutes(routes []route) {
	sort.SliceStable(routes, func(i, j int) bool {
		if len(routes[i].paramKeys) != len(routes[j].paramKeys) {
			return len(routes[i].paramKeys) < len(routes[j].paramKeys)
		}
		return len(routes[i].key) > len(routes[j].key)
	})
}

// findOperation resolves the request path to a path key of doc. An exact key
// match wins; otherwise templated keys such as /users/{id} are tried and the
// captured parameter values are returned.
func findOperation(doc *openapi.Document, path, method string) (string, *openapi.Operation, map[string]string, error) {
	op, err := doc.Operation(path, method)
	if err == nil {
		return path, op, nil, nil
	}
	if !errors.Is(err, openapi.ErrPathNotFound) {
		return path, nil, nil, err
	}

	var routes []route
	for _, key := range doc.Paths() {
		if !strings.Contains(key, "{") {
			continue
		}
		pattern, params := buildPathPattern(key)
		if pattern == nil {
			continue
		}
		routes = append(routes, route{key: key, pattern: pattern, paramKeys: params})
	}
	sortRoutes(routes)

	for _, r := range routes {
		matches := r.pattern.FindStringSubmatch(path)
		if matches == nil {
			continue
		}

		params := make(map[string]string, len(r.paramKeys))
		for i, key := range r.paramKeys {
			if i+1 < len(matches) {
				params[key] = matches[i+1]
			}
		}

		op, err := doc.Operation(r.key, method)
		return r.key, op, params, err
	}
	return path, nil, nil, openapi.ErrPathNotFound
}
