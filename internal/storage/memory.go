package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prasenjit/go-mockserver/internal/models"
)

// MemoryStorage implements Storage interface with in-memory storage.
// Processors are copied on the way in and out so callers can hold a
// snapshot while the store changes underneath them.
type MemoryStorage struct {
	mu         sync.RWMutex
	projects   map[string]*models.Project
	documents  map[string][]byte
	processors map[int64]*models.Processor
	mappings   map[string]*models.SQLMapping
	nextID     int64
}

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		projects:   make(map[string]*models.Project),
		documents:  make(map[string][]byte),
		processors: make(map[int64]*models.Processor),
		mappings:   make(map[string]*models.SQLMapping),
		nextID:     1,
	}
}

func mappingKey(project, endpoint, method string) string {
	return project + "\x00" + endpoint + "\x00" + models.NormalizeMethod(method)
}

func sameEndpoint(p *models.Processor, project, endpoint, method string) bool {
	return p.Project == project && p.Endpoint == endpoint &&
		models.NormalizeMethod(p.Method) == models.NormalizeMethod(method)
}

func clone(p *models.Processor) *models.Processor {
	c := *p
	return &c
}

// CreateProject creates a new project
func (m *MemoryStorage) CreateProject(p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.projects[p.Name]; exists {
		return fmt.Errorf("project %s: %w", p.Name, ErrExists)
	}

	m.projects[p.Name] = p
	return nil
}

// GetProject retrieves a project by name
func (m *MemoryStorage) GetProject(name string) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.projects[name]
	if !exists {
		return nil, fmt.Errorf("project %s: %w", name, ErrNotFound)
	}

	return p, nil
}

// GetAllProjects retrieves all projects sorted by name
func (m *MemoryStorage) GetAllProjects() ([]*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	projects := make([]*models.Project, 0, len(m.projects))
	for _, p := range m.projects {
		projects = append(projects, p)
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Name < projects[j].Name
	})

	return projects, nil
}

// UpdateProject updates a project
func (m *MemoryStorage) UpdateProject(p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.projects[p.Name]; !exists {
		return fmt.Errorf("project %s: %w", p.Name, ErrNotFound)
	}

	m.projects[p.Name] = p
	return nil
}

// DeleteProject deletes a project with its processors and mappings
func (m *MemoryStorage) DeleteProject(name string) error {
	_, _, err := m.deleteProject(name)
	return err
}

// deleteProject returns the processor ids and mapping keys it removed
func (m *MemoryStorage) deleteProject(name string) ([]int64, []*models.SQLMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.projects[name]; !exists {
		return nil, nil, fmt.Errorf("project %s: %w", name, ErrNotFound)
	}
	delete(m.projects, name)

	var ids []int64
	for id, p := range m.processors {
		if p.Project == name {
			ids = append(ids, id)
			delete(m.processors, id)
		}
	}

	var mappings []*models.SQLMapping
	for key, mp := range m.mappings {
		if mp.Project == name {
			mappings = append(mappings, mp)
			delete(m.mappings, key)
		}
	}

	return ids, mappings, nil
}

// SaveDocument stores a document, replacing any previous content
func (m *MemoryStorage) SaveDocument(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.documents[name] = append([]byte(nil), data...)
	return nil
}

// ReadDocument returns a stored document
func (m *MemoryStorage) ReadDocument(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.documents[name]
	if !exists {
		return nil, fmt.Errorf("document %s: %w", name, ErrNotFound)
	}

	return data, nil
}

// DeleteDocument removes a stored document
func (m *MemoryStorage) DeleteDocument(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.documents[name]; !exists {
		return fmt.Errorf("document %s: %w", name, ErrNotFound)
	}

	delete(m.documents, name)
	return nil
}

// CreateProcessor assigns an id and stores the processor
func (m *MemoryStorage) CreateProcessor(p *models.Processor) error {
	_, err := m.createProcessor(p)
	return err
}

func (m *MemoryStorage) createProcessor(p *models.Processor) ([]int64, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("invalid processor type %q", p.Type)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.nextID
	m.nextID++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	m.processors[p.ID] = clone(p)
	return m.enforceExclusive(p), nil
}

// enforceExclusive disables the opposite kind of processor when p is enabled.
// The caller holds the write lock.
func (m *MemoryStorage) enforceExclusive(p *models.Processor) []int64 {
	if !p.Enabled {
		return nil
	}

	var changed []int64
	for id, other := range m.processors {
		if id == p.ID || !other.Enabled || !sameEndpoint(other, p.Project, p.Endpoint, p.Method) {
			continue
		}
		if (other.Type == models.ProcessorExpectation) != (p.Type == models.ProcessorExpectation) {
			other.Enabled = false
			changed = append(changed, id)
		}
	}

	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed
}

// GetProcessor retrieves a processor by id
func (m *MemoryStorage) GetProcessor(id int64) (*models.Processor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.processors[id]
	if !exists {
		return nil, fmt.Errorf("processor %d: %w", id, ErrNotFound)
	}

	return clone(p), nil
}

// ListProcessors returns matching processors ordered by id
func (m *MemoryStorage) ListProcessors(filter ProcessorFilter) ([]*models.Processor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	method := models.NormalizeMethod(filter.Method)
	out := make([]*models.Processor, 0)
	for _, p := range m.processors {
		if filter.Project != "" && p.Project != filter.Project {
			continue
		}
		if filter.Endpoint != "" && p.Endpoint != filter.Endpoint {
			continue
		}
		if method != "" && models.NormalizeMethod(p.Method) != method {
			continue
		}
		if filter.Type != "" && p.Type != filter.Type {
			continue
		}
		out = append(out, clone(p))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListEnabledProcessors returns the enabled processors of one endpoint ordered by id
func (m *MemoryStorage) ListEnabledProcessors(project, endpoint, method string) ([]*models.Processor, error) {
	all, err := m.ListProcessors(ProcessorFilter{Project: project, Endpoint: endpoint, Method: method})
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, p := range all {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

// UpdateProcessor replaces the code and enabled flag of a processor
func (m *MemoryStorage) UpdateProcessor(p *models.Processor) error {
	_, err := m.updateProcessor(p)
	return err
}

func (m *MemoryStorage) updateProcessor(p *models.Processor) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.processors[p.ID]
	if !exists {
		return nil, fmt.Errorf("processor %d: %w", p.ID, ErrNotFound)
	}

	existing.Code = p.Code
	existing.Enabled = p.Enabled
	return m.enforceExclusive(existing), nil
}

// DeleteProcessor deletes a processor
func (m *MemoryStorage) DeleteProcessor(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.processors[id]; !exists {
		return fmt.Errorf("processor %d: %w", id, ErrNotFound)
	}

	delete(m.processors, id)
	return nil
}

// SetExpectModeEnabled switches an endpoint between expectations and scripts
// under a single lock, so readers see either the old or the new set.
func (m *MemoryStorage) SetExpectModeEnabled(project, endpoint, method string, enabled bool) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := make([]int64, 0)
	for id, p := range m.processors {
		if !sameEndpoint(p, project, endpoint, method) {
			continue
		}
		want := (p.Type == models.ProcessorExpectation) == enabled
		if p.Enabled != want {
			p.Enabled = want
			changed = append(changed, id)
		}
	}

	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed, nil
}

// SaveMapping creates or replaces the mapping of an endpoint
func (m *MemoryStorage) SaveMapping(mp *models.SQLMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mp.Method = models.NormalizeMethod(mp.Method)
	if mp.UpdatedAt.IsZero() {
		mp.UpdatedAt = time.Now()
	}

	m.mappings[mappingKey(mp.Project, mp.Endpoint, mp.Method)] = mp
	return nil
}

// GetMapping retrieves the mapping of an endpoint
func (m *MemoryStorage) GetMapping(project, endpoint, method string) (*models.SQLMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mp, exists := m.mappings[mappingKey(project, endpoint, method)]
	if !exists {
		return nil, fmt.Errorf("mapping %s %s %s: %w", project, method, endpoint, ErrNotFound)
	}

	return mp, nil
}

// GetMappingsByProject returns the mappings of a project sorted by endpoint and method
func (m *MemoryStorage) GetMappingsByProject(project string) ([]*models.SQLMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.SQLMapping, 0)
	for _, mp := range m.mappings {
		if mp.Project == project {
			out = append(out, mp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Endpoint != out[j].Endpoint {
			return out[i].Endpoint < out[j].Endpoint
		}
		return out[i].Method < out[j].Method
	})
	return out, nil
}

// DeleteMapping deletes the mapping of an endpoint
func (m *MemoryStorage) DeleteMapping(project, endpoint, method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := mappingKey(project, endpoint, method)
	if _, exists := m.mappings[key]; !exists {
		return fmt.Errorf("mapping %s %s %s: %w", project, method, endpoint, ErrNotFound)
	}

	delete(m.mappings, key)
	return nil
}

// Close closes the storage
func (m *MemoryStorage) Close() error {
	return nil
}
