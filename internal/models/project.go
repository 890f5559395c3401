package models

import (
	"time"
)

// Project binds a name to an OpenAPI document and an optional data store
type Project struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OpenAPIFile string    `json:"openApiFile"` // file path, http(s) URL or s3://bucket/key
	UseDB       bool      `json:"useDb"`       // DB mode: splice SQL mapping results into mocks
	DBRef       string    `json:"dbRef,omitempty"`
	Tracing     bool      `json:"tracing"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProjectInput represents input for creating a project.
// Either Content (an inline document) or OpenAPIFile must be set.
type ProjectInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Content     string `json:"content"`
	OpenAPIFile string `json:"openApiFile"`
	UseDB       bool   `json:"useDb"`
	DBRef       string `json:"dbRef"`
	Tracing     bool   `json:"tracing"`
}

// ProjectUpdate represents input for updating project settings
type ProjectUpdate struct {
	Description *string `json:"description,omitempty"`
	OpenAPIFile *string `json:"openApiFile,omitempty"`
	UseDB       *bool   `json:"useDb,omitempty"`
	DBRef       *string `json:"dbRef,omitempty"`
	Tracing     *bool   `json:"tracing,omitempty"`
}
