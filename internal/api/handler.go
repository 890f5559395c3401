package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/prasenjit/go-mockserver/internal/datastore"
	"github.com/prasenjit/go-mockserver/internal/models"
	"github.com/prasenjit/go-mockserver/internal/parser"
	"github.com/prasenjit/go-mockserver/internal/stats"
	"github.com/prasenjit/go-mockserver/internal/storage"
	"github.com/prasenjit/go-mockserver/internal/synth"
	"github.com/prasenjit/go-mockserver/internal/tracing"
)

// Handler handles admin API requests
type Handler struct {
	store          storage.Storage
	loader         *parser.Loader
	parser         *parser.Parser
	statsCollector *stats.Collector
	tracingService *tracing.Service
	queryTimeout   time.Duration
	logger         zerolog.Logger
}

// NewHandler creates a new API handler
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		store:          deps.Store,
		loader:         deps.Loader,
		parser:         parser.NewParser(),
		statsCollector: deps.Stats,
		tracingService: deps.Tracing,
		queryTimeout:   deps.QueryTimeout,
		logger:         deps.Logger,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// ListProjects returns all projects
func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.store.GetAllProjects()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, projects)
}

// documentName is the stored file name of an inline project document
func documentName(project string) string {
	return project + ".yaml"
}

// CreateProject registers a project. An inline document is validated and
// stored; a referenced one must be readable and valid.
func (h *Handler) CreateProject(c *gin.Context) {
	var input models.ProjectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.ContainsAny(input.Name, `/\`) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Project name must not contain a path"})
		return
	}

	content := []byte(input.Content)
	ref := input.OpenAPIFile
	switch {
	case input.Content != "":
		ref = documentName(input.Name)
	case ref != "":
		data, err := h.loader.Read(c.Request.Context(), ref)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read OpenAPI document: " + err.Error()})
			return
		}
		content = data
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "content or openApiFile is required"})
		return
	}

	summary, err := h.parser.Parse(content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OpenAPI document: " + err.Error()})
		return
	}

	if _, err := h.store.GetProject(input.Name); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Project already exists"})
		return
	}

	if input.Content != "" {
		if err := h.store.SaveDocument(ref, content); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	now := time.Now()
	project := &models.Project{
		Name:        input.Name,
		Description: input.Description,
		OpenAPIFile: ref,
		UseDB:       input.UseDB,
		DBRef:       input.DBRef,
		Tracing:     input.Tracing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if project.Description == "" {
		project.Description = summary.Description
	}

	if err := h.store.CreateProject(project); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	h.logger.Info().Str("project", project.Name).Int("operations", len(summary.Operations)).Msg("Project created")

	c.JSON(http.StatusCreated, gin.H{
		"project":        project,
		"title":          summary.Title,
		"version":        summary.Version,
		"operationCount": len(summary.Operations),
	})
}

// GetProject returns a single project
func (h *Handler) GetProject(c *gin.Context) {
	project, err := h.store.GetProject(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	c.JSON(http.StatusOK, project)
}

// UpdateProject updates project settings
func (h *Handler) UpdateProject(c *gin.Context) {
	project, err := h.store.GetProject(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	var update models.ProjectUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if update.Description != nil {
		project.Description = *update.Description
	}
	if update.OpenAPIFile != nil {
		project.OpenAPIFile = *update.OpenAPIFile
	}
	if update.UseDB != nil {
		project.UseDB = *update.UseDB
	}
	if update.DBRef != nil {
		project.DBRef = *update.DBRef
	}
	if update.Tracing != nil {
		project.Tracing = *update.Tracing
	}
	project.UpdatedAt = time.Now()

	if err := h.store.UpdateProject(project); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, project)
}

// DeleteProject deletes a project with its processors, mappings, stored document and traces
func (h *Handler) DeleteProject(c *gin.Context) {
	name := c.Param("name")

	project, err := h.store.GetProject(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	if err := h.store.DeleteProject(name); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	if project.OpenAPIFile == documentName(name) {
		if err := h.store.DeleteDocument(project.OpenAPIFile); err != nil && !errors.Is(err, storage.ErrNotFound) {
			h.logger.Warn().Err(err).Str("project", name).Msg("Failed to delete stored document")
		}
	}
	h.tracingService.ClearTracesByProject(name)

	c.JSON(http.StatusOK, gin.H{"message": "Project deleted"})
}

// ListOperations lists the operations declared by the project's document
func (h *Handler) ListOperations(c *gin.Context) {
	project, err := h.store.GetProject(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	data, err := h.loader.Read(c.Request.Context(), project.OpenAPIFile)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "OpenAPI document not found"})
		return
	}

	summary, err := h.parser.Parse(data)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// PreviewOperation renders the declared responses of one operation
func (h *Handler) PreviewOperation(c *gin.Context) {
	path := c.Query("path")
	method := c.DefaultQuery("method", "get")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	project, err := h.store.GetProject(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	doc, err := h.loader.Load(c.Request.Context(), project.OpenAPIFile)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "OpenAPI document not found"})
		return
	}

	op, err := doc.Operation(path, method)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"path":      path,
		"method":    models.NormalizeMethod(method),
		"responses": synth.PreviewResponses(op, doc),
	})
}

// ListTables lists the tables of the project's data store
func (h *Handler) ListTables(c *gin.Context) {
	project, err := h.store.GetProject(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	db, err := datastore.Open(project.DBRef, h.queryTimeout)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tables, err := db.Tables(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"driver": db.Driver(), "tables": tables})
}

// ListProcessors returns processors matching the query filter
func (h *Handler) ListProcessors(c *gin.Context) {
	procs, err := h.store.ListProcessors(storage.ProcessorFilter{
		Project:  c.Query("project"),
		Endpoint: c.Query("endpoint"),
		Method:   c.Query("method"),
		Type:     models.ProcessorType(c.Query("type")),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, procs)
}

func checkCode(typ models.ProcessorType, code string) error {
	if typ != models.ProcessorExpectation {
		return nil
	}
	_, err := models.ParseExpectation(code)
	return err
}

// CreateProcessor stores a script or expectation for an endpoint
func (h *Handler) CreateProcessor(c *gin.Context) {
	var input models.ProcessorInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !input.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown processor type: " + string(input.Type)})
		return
	}
	if err := checkCode(input.Type, input.Code); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expectation: " + err.Error()})
		return
	}
	if _, err := h.store.GetProject(input.Project); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	p := &models.Processor{
		Project:   input.Project,
		Endpoint:  input.Endpoint,
		Method:    models.NormalizeMethod(input.Method),
		Type:      input.Type,
		Code:      input.Code,
		Enabled:   enabled,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateProcessor(p); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, p)
}

func processorID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid processor id"})
		return 0, false
	}
	return id, true
}

// GetProcessor returns a single processor
func (h *Handler) GetProcessor(c *gin.Context) {
	id, ok := processorID(c)
	if !ok {
		return
	}
	p, err := h.store.GetProcessor(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Processor not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateProcessor updates code or enablement of a processor
func (h *Handler) UpdateProcessor(c *gin.Context) {
	id, ok := processorID(c)
	if !ok {
		return
	}
	p, err := h.store.GetProcessor(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Processor not found"})
		return
	}

	var update models.ProcessorUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if update.Code != nil {
		if err := checkCode(p.Type, *update.Code); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expectation: " + err.Error()})
			return
		}
		p.Code = *update.Code
	}
	if update.Enabled != nil {
		p.Enabled = *update.Enabled
	}

	if err := h.store.UpdateProcessor(p); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, p)
}

// DeleteProcessor deletes a processor
func (h *Handler) DeleteProcessor(c *gin.Context) {
	id, ok := processorID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteProcessor(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Processor not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Processor deleted"})
}

// SetExpectMode switches an endpoint between expectations and pre/post scripts
func (h *Handler) SetExpectMode(c *gin.Context) {
	var input models.ExpectModeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	changed, err := h.store.SetExpectModeEnabled(input.Project, input.Endpoint, input.Method, input.Enabled)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if changed == nil {
		changed = []int64{}
	}

	c.JSON(http.StatusOK, gin.H{"enabled": input.Enabled, "changed": changed})
}

// SaveMapping creates or replaces the SQL mapping of an endpoint
func (h *Handler) SaveMapping(c *gin.Context) {
	var input models.SQLMappingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.store.GetProject(input.Project); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	m := &models.SQLMapping{
		Project:   input.Project,
		Endpoint:  input.Endpoint,
		Method:    models.NormalizeMethod(input.Method),
		SQL:       input.SQL,
		JSONPath:  input.JSONPath,
		UpdatedAt: time.Now(),
	}
	if err := h.store.SaveMapping(m); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, m)
}

// GetMappings returns one mapping when endpoint and method are given,
// otherwise every mapping of the project
func (h *Handler) GetMappings(c *gin.Context) {
	project := c.Query("project")
	if project == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project is required"})
		return
	}

	endpoint, method := c.Query("endpoint"), c.Query("method")
	if endpoint != "" && method != "" {
		m, err := h.store.GetMapping(project, endpoint, method)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Mapping not found"})
			return
		}
		c.JSON(http.StatusOK, m)
		return
	}

	mappings, err := h.store.GetMappingsByProject(project)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, mappings)
}

// DeleteMapping removes the SQL mapping of an endpoint
func (h *Handler) DeleteMapping(c *gin.Context) {
	if err := h.store.DeleteMapping(c.Query("project"), c.Query("endpoint"), c.Query("method")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Mapping not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Mapping deleted"})
}

// GetGlobalStats returns global statistics
func (h *Handler) GetGlobalStats(c *gin.Context) {
	projects, _ := h.store.GetAllProjects()
	c.JSON(http.StatusOK, h.statsCollector.GetGlobalStats(len(projects)))
}

// GetProjectStats returns statistics for a project
func (h *Handler) GetProjectStats(c *gin.Context) {
	name := c.Param("name")
	if _, err := h.store.GetProject(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	c.JSON(http.StatusOK, h.statsCollector.GetProjectStats(name))
}

// ResetStats resets all statistics
func (h *Handler) ResetStats(c *gin.Context) {
	h.statsCollector.Reset()
	c.JSON(http.StatusOK, gin.H{"message": "Statistics reset"})
}

// ListTraces returns traces, newest first
func (h *Handler) ListTraces(c *gin.Context) {
	filter := &models.TraceFilter{
		Project:  c.Query("project"),
		Endpoint: c.Query("endpoint"),
		Method:   c.Query("method"),
		Stage:    c.Query("stage"),
		Limit:    100,
	}
	if v, err := strconv.Atoi(c.Query("status")); err == nil {
		filter.StatusCode = v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		filter.Limit = v
	}

	c.JSON(http.StatusOK, h.tracingService.GetTraces(filter))
}

// GetTrace returns a single trace
func (h *Handler) GetTrace(c *gin.Context) {
	trace := h.tracingService.GetTrace(c.Param("id"))
	if trace == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trace not found"})
		return
	}
	c.JSON(http.StatusOK, trace)
}

// ClearTraces clears all traces, or those of one project
func (h *Handler) ClearTraces(c *gin.Context) {
	if project := c.Query("project"); project != "" {
		h.tracingService.ClearTracesByProject(project)
	} else {
		h.tracingService.ClearTraces()
	}
	c.JSON(http.StatusOK, gin.H{"message": "Traces cleared"})
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"tracing":   h.tracingService.GetStats(),
	})
}
