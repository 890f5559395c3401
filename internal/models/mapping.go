package models

import "time"

// SQLMapping splices the rows of a query into the mock body at JSONPath
type SQLMapping struct {
	Project   string    `json:"project"`
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	SQL       string    `json:"sql"`
	JSONPath  string    `json:"jsonPath"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SQLMappingInput represents input for saving a mapping
type SQLMappingInput struct {
	Project  string `json:"project" binding:"required"`
	Endpoint string `json:"endpoint" binding:"required"`
	Method   string `json:"method" binding:"required"`
	SQL      string `json:"sql" binding:"required"`
	JSONPath string `json:"jsonPath"`
}
