package parser

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Parser validates OpenAPI 3 documents before they are attached to a project
type Parser struct{}

// NewParser creates a new OpenAPI parser
func NewParser() *Parser {
	return &Parser{}
}

// Summary describes a validated document
type Summary struct {
	Title       string          `json:"title"`
	Version     string          `json:"version"`
	Description string          `json:"description,omitempty"`
	Operations  []OperationInfo `json:"operations"`
}

// OperationInfo lists one (path, method) pair of a document
type OperationInfo struct {
	Path        string   `json:"path"`
	Method      string   `json:"method"`
	OperationID string   `json:"operationId"`
	Summary     string   `json:"summary,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Responses   []string `json:"responses"`
}

// Parse loads and validates an OpenAPI 3 document
func (p *Parser) Parse(content []byte) (*Summary, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	summary := &Summary{Operations: extractOperations(doc)}
	if doc.Info != nil {
		summary.Title = doc.Info.Title
		summary.Version = doc.Info.Version
		summary.Description = doc.Info.Description
	}
	return summary, nil
}

// extractOperations lists operations sorted by path then method
func extractOperations(doc *openapi3.T) []OperationInfo {
	operations := make([]OperationInfo, 0)
	if doc.Paths == nil {
		return operations
	}

	for pathPattern, pathItem := range doc.Paths.Map() {
		if pathItem == nil {
			continue
		}

		for method, op := range pathItem.Operations() {
			if op == nil {
				continue
			}

			operationID := op.OperationID
			if operationID == "" {
				operationID = fmt.Sprintf("%s_%s", strings.ToLower(method), sanitizePath(pathPattern))
			}

			info := OperationInfo{
				Path:        pathPattern,
				Method:      strings.ToLower(method),
				OperationID: operationID,
				Summary:     op.Summary,
				Tags:        op.Tags,
				Responses:   make([]string, 0),
			}
			if op.Responses != nil {
				for status := range op.Responses.Map() {
					info.Responses = append(info.Responses, status)
				}
				sort.Strings(info.Responses)
			}

			operations = append(operations, info)
		}
	}

	sort.Slice(operations, func(i, j int) bool {
		if operations[i].Path != operations[j].Path {
			return operations[i].Path < operations[j].Path
		}
		return operations[i].Method < operations[j].Method
	})
	return operations
}

// sanitizePath converts a path pattern to a valid identifier
func sanitizePath(pathPattern string) string {
	s := strings.ReplaceAll(pathPattern, "/", "_")
	s = strings.ReplaceAll(s, "{", "")
	s = strings.ReplaceAll(s, "}", "")
	return strings.Trim(s, "_")
}
