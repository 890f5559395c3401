package storage

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/prasenjit/go-mockserver/internal/models"
)

// FileStorage implements Storage interface with file-based persistence.
// Every record is a JSON file; documents are stored verbatim under specs/.
type FileStorage struct {
	mu       sync.RWMutex
	basePath string
	memory   *MemoryStorage
	logger   zerolog.Logger
}

// NewFileStorage creates a new file-based storage. Records that fail to load
// are skipped and logged.
func NewFileStorage(basePath string, logger zerolog.Logger) (*FileStorage, error) {
	dirs := []string{
		basePath,
		filepath.Join(basePath, "projects"),
		filepath.Join(basePath, "processors"),
		filepath.Join(basePath, "mappings"),
		filepath.Join(basePath, "specs"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fs := &FileStorage{
		basePath: basePath,
		memory:   NewMemoryStorage(),
		logger:   logger,
	}

	if err := fs.loadAll(); err != nil {
		return nil, err
	}

	return fs, nil
}

// readJSONDir decodes every *.json file of dir with fn. Unreadable or
// undecodable files are logged and skipped.
func (f *FileStorage) readJSONDir(dir string, fn func(data []byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err == nil {
			err = fn(data)
		}
		if err != nil {
			f.logger.Warn().Err(err).Str("file", path).Msg("Skipping unreadable record")
		}
	}
	return nil
}

// loadAll loads all data from disk
func (f *FileStorage) loadAll() error {
	m := f.memory

	err := f.readJSONDir(filepath.Join(f.basePath, "projects"), func(data []byte) error {
		var p models.Project
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		m.projects[p.Name] = &p
		return nil
	})
	if err != nil {
		return err
	}

	err = f.readJSONDir(filepath.Join(f.basePath, "processors"), func(data []byte) error {
		var p models.Processor
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		m.processors[p.ID] = &p
		if p.ID >= m.nextID {
			m.nextID = p.ID + 1
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = f.readJSONDir(filepath.Join(f.basePath, "mappings"), func(data []byte) error {
		var mp models.SQLMapping
		if err := json.Unmarshal(data, &mp); err != nil {
			return err
		}
		m.mappings[mappingKey(mp.Project, mp.Endpoint, mp.Method)] = &mp
		return nil
	})
	if err != nil {
		return err
	}

	specsDir := filepath.Join(f.basePath, "specs")
	entries, err := os.ReadDir(specsDir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(specsDir, entry.Name()))
		if err != nil {
			f.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping unreadable document")
			continue
		}
		m.documents[entry.Name()] = data
	}

	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FileStorage) projectPath(name string) string {
	return filepath.Join(f.basePath, "projects", url.PathEscape(name)+".json")
}

func (f *FileStorage) processorPath(id int64) string {
	return filepath.Join(f.basePath, "processors", strconv.FormatInt(id, 10)+".json")
}

func (f *FileStorage) mappingPath(project, endpoint, method string) string {
	name := project + "__" + models.NormalizeMethod(method) + "__" + endpoint
	return filepath.Join(f.basePath, "mappings", url.PathEscape(name)+".json")
}

func (f *FileStorage) documentPath(name string) (string, error) {
	base := filepath.Base(name)
	if base != name || base == "." || base == ".." {
		return "", fmt.Errorf("invalid document name %q", name)
	}
	return filepath.Join(f.basePath, "specs", base), nil
}

// saveProcessors writes the current state of each processor id
func (f *FileStorage) saveProcessors(ids ...int64) error {
	for _, id := range ids {
		p, err := f.memory.GetProcessor(id)
		if err != nil {
			return err
		}
		if err := writeJSON(f.processorPath(id), p); err != nil {
			return err
		}
	}
	return nil
}

// CreateProject creates a new project
func (f *FileStorage) CreateProject(p *models.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.CreateProject(p); err != nil {
		return err
	}

	return writeJSON(f.projectPath(p.Name), p)
}

// GetProject retrieves a project by name
func (f *FileStorage) GetProject(name string) (*models.Project, error) {
	return f.memory.GetProject(name)
}

// GetAllProjects retrieves all projects
func (f *FileStorage) GetAllProjects() ([]*models.Project, error) {
	return f.memory.GetAllProjects()
}

// UpdateProject updates a project
func (f *FileStorage) UpdateProject(p *models.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.UpdateProject(p); err != nil {
		return err
	}

	return writeJSON(f.projectPath(p.Name), p)
}

// DeleteProject deletes a project with its processors and mappings
func (f *FileStorage) DeleteProject(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids, mappings, err := f.memory.deleteProject(name)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := removeFile(f.processorPath(id)); err != nil {
			return err
		}
	}
	for _, mp := range mappings {
		if err := removeFile(f.mappingPath(mp.Project, mp.Endpoint, mp.Method)); err != nil {
			return err
		}
	}

	return removeFile(f.projectPath(name))
}

// SaveDocument stores a document under specs/
func (f *FileStorage) SaveDocument(name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path, err := f.documentPath(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}

	return f.memory.SaveDocument(name, data)
}

// ReadDocument returns a stored document
func (f *FileStorage) ReadDocument(name string) ([]byte, error) {
	return f.memory.ReadDocument(name)
}

// DeleteDocument removes a stored document
func (f *FileStorage) DeleteDocument(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.DeleteDocument(name); err != nil {
		return err
	}

	path, err := f.documentPath(name)
	if err != nil {
		return err
	}
	return removeFile(path)
}

// CreateProcessor stores a processor and persists any it disabled
func (f *FileStorage) CreateProcessor(p *models.Processor) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	changed, err := f.memory.createProcessor(p)
	if err != nil {
		return err
	}

	return f.saveProcessors(append([]int64{p.ID}, changed...)...)
}

// GetProcessor retrieves a processor by id
func (f *FileStorage) GetProcessor(id int64) (*models.Processor, error) {
	return f.memory.GetProcessor(id)
}

// ListProcessors returns matching processors ordered by id
func (f *FileStorage) ListProcessors(filter ProcessorFilter) ([]*models.Processor, error) {
	return f.memory.ListProcessors(filter)
}

// ListEnabledProcessors returns the enabled processors of one endpoint
func (f *FileStorage) ListEnabledProcessors(project, endpoint, method string) ([]*models.Processor, error) {
	return f.memory.ListEnabledProcessors(project, endpoint, method)
}

// UpdateProcessor updates a processor and persists any it disabled
func (f *FileStorage) UpdateProcessor(p *models.Processor) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	changed, err := f.memory.updateProcessor(p)
	if err != nil {
		return err
	}

	return f.saveProcessors(append([]int64{p.ID}, changed...)...)
}

// DeleteProcessor deletes a processor
func (f *FileStorage) DeleteProcessor(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.DeleteProcessor(id); err != nil {
		return err
	}

	return removeFile(f.processorPath(id))
}

// SetExpectModeEnabled switches an endpoint between expectations and scripts
func (f *FileStorage) SetExpectModeEnabled(project, endpoint, method string, enabled bool) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	changed, err := f.memory.SetExpectModeEnabled(project, endpoint, method, enabled)
	if err != nil {
		return nil, err
	}

	return changed, f.saveProcessors(changed...)
}

// SaveMapping creates or replaces the mapping of an endpoint
func (f *FileStorage) SaveMapping(mp *models.SQLMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.SaveMapping(mp); err != nil {
		return err
	}

	return writeJSON(f.mappingPath(mp.Project, mp.Endpoint, mp.Method), mp)
}

// GetMapping retrieves the mapping of an endpoint
func (f *FileStorage) GetMapping(project, endpoint, method string) (*models.SQLMapping, error) {
	return f.memory.GetMapping(project, endpoint, method)
}

// GetMappingsByProject returns the mappings of a project
func (f *FileStorage) GetMappingsByProject(project string) ([]*models.SQLMapping, error) {
	return f.memory.GetMappingsByProject(project)
}

// DeleteMapping deletes the mapping of an endpoint
func (f *FileStorage) DeleteMapping(project, endpoint, method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.DeleteMapping(project, endpoint, method); err != nil {
		return err
	}

	return removeFile(f.mappingPath(project, endpoint, method))
}

// Close closes the storage
func (f *FileStorage) Close() error {
	return nil
}
