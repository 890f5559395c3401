package storage

import (
	"errors"

	"github.com/prasenjit/go-mockserver/internal/models"
)

// Errors returned by every Storage implementation
var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// ProcessorFilter selects processors. Empty fields match everything.
type ProcessorFilter struct {
	Project  string
	Endpoint string
	Method   string
	Type     models.ProcessorType
}

// Storage defines the interface for data persistence
type Storage interface {
	// Project operations
	CreateProject(p *models.Project) error
	GetProject(name string) (*models.Project, error)
	GetAllProjects() ([]*models.Project, error)
	UpdateProject(p *models.Project) error
	// DeleteProject also removes the project's processors and mappings
	DeleteProject(name string) error

	// Stored OpenAPI documents, addressed by file name
	SaveDocument(name string, data []byte) error
	ReadDocument(name string) ([]byte, error)
	DeleteDocument(name string) error

	// Processor operations.
	// An enabled expectation and enabled pre/post scripts never coexist for the
	// same (project, endpoint, method): enabling one kind disables the other.
	CreateProcessor(p *models.Processor) error
	GetProcessor(id int64) (*models.Processor, error)
	ListProcessors(filter ProcessorFilter) ([]*models.Processor, error)
	ListEnabledProcessors(project, endpoint, method string) ([]*models.Processor, error)
	UpdateProcessor(p *models.Processor) error
	DeleteProcessor(id int64) error
	// SetExpectModeEnabled enables every expectation and disables every
	// pre/post script for the endpoint, or the reverse. It returns the ids
	// whose enabled flag changed.
	SetExpectModeEnabled(project, endpoint, method string, enabled bool) ([]int64, error)

	// SQL mapping operations
	SaveMapping(m *models.SQLMapping) error
	GetMapping(project, endpoint, method string) (*models.SQLMapping, error)
	GetMappingsByProject(project string) ([]*models.SQLMapping, error)
	DeleteMapping(project, endpoint, method string) error

	// Utility
	Close() error
}
