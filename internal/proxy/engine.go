// Package proxy resolves mock requests: it sequences validation, expectations,
// processors and response synthesis for one project endpoint.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prasenjit/go-mockserver/internal/condition"
	"github.com/prasenjit/go-mockserver/internal/datastore"
	"github.com/prasenjit/go-mockserver/internal/models"
	"github.com/prasenjit/go-mockserver/internal/openapi"
	"github.com/prasenjit/go-mockserver/internal/processor"
	"github.com/prasenjit/go-mockserver/internal/stats"
	"github.com/prasenjit/go-mockserver/internal/storage"
	"github.com/prasenjit/go-mockserver/internal/synth"
	"github.com/prasenjit/go-mockserver/internal/template"
	"github.com/prasenjit/go-mockserver/internal/tracing"
	"github.com/prasenjit/go-mockserver/internal/validation"
)

// Stage names the pipeline step that produced a response
type Stage string

const (
	StageNotFound         Stage = "not-found"
	StageMethodNotAllowed Stage = "method-not-allowed"
	StageValidation       Stage = "validation"
	StageExpectation      Stage = "expectation"
	StagePreProcessor     Stage = "pre-processor"
	StageExample          Stage = "example"
	StageMock             Stage = "mock"
	StageError            Stage = "error"
)

// Override headers and query parameters
const (
	HeaderStatus  = "x-mock-status"
	HeaderExample = "x-mock-example"
	QueryStatus   = "__status"
	QueryExample  = "__example"
)

// SystemLogField carries the validation summary in 400 bodies
const SystemLogField = "systemLogMock"

// DocumentLoader loads the OpenAPI document of a project
type DocumentLoader interface {
	Load(ctx context.Context, ref string) (*openapi.Document, error)
}

// Request is an incoming mock request
type Request struct {
	Project string
	// Path is the request path below the project, starting with "/"
	Path    string
	Method  string
	URL     string
	Headers http.Header
	Query   url.Values
	Cookies []*http.Cookie
	Body    []byte
}

// Result is the outcome of the pipeline
type Result struct {
	Status      int
	ContentType string
	Body        any
	// Raw, when set, is written verbatim instead of encoding Body
	Raw      string
	Stage    Stage
	Endpoint string
	Logs     []string
	Error    string
}

// Options tunes the engine
type Options struct {
	Mock             synth.MockOptions
	ProcessorEngine  string
	ProcessorTimeout time.Duration
	QueryTimeout     time.Duration
}

// Engine runs the request-resolution pipeline
type Engine struct {
	store          storage.Storage
	loader         DocumentLoader
	mocker         *synth.Mocker
	expectations   *condition.Engine
	runner         *processor.Runner
	queryTimeout   time.Duration
	statsCollector *stats.Collector
	tracingService *tracing.Service
	logger         zerolog.Logger
}

// NewEngine creates a new pipeline engine. statsCollector and tracingService may be nil.
func NewEngine(store storage.Storage, loader DocumentLoader, opts Options, statsCollector *stats.Collector, tracingService *tracing.Service, logger zerolog.Logger) (*Engine, error) {
	executor, err := processor.NewExecutor(opts.ProcessorEngine, opts.ProcessorTimeout)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:          store,
		loader:         loader,
		mocker:         synth.NewMocker(opts.Mock),
		expectations:   condition.NewEngine(template.NewEngine(), logger),
		runner:         processor.NewRunner(executor, logger),
		queryTimeout:   opts.QueryTimeout,
		statsCollector: statsCollector,
		tracingService: tracingService,
		logger:         logger,
	}, nil
}

// pipeline holds the per-request state
type pipeline struct {
	req      *Request
	project  *models.Project
	doc      *openapi.Document
	op       *openapi.Operation
	endpoint string
	params   map[string]string
	payload  any
	records  []*models.Processor
	db       processor.DB
	console  *processor.Console
	evalLogs []condition.EvalLog
	matched  string
	logger   zerolog.Logger
}

func errorResult(status int, stage Stage, msg string) *Result {
	return &Result{
		Status:      status,
		ContentType: models.DefaultContentType,
		Body:        map[string]any{"error": msg},
		Stage:       stage,
		Error:       msg,
	}
}

// Resolve runs the pipeline for req. It never fails: every error becomes a Result.
func (e *Engine) Resolve(ctx context.Context, req *Request) (res *Result) {
	start := time.Now()
	if req.Path == "" {
		req.Path = "/"
	}

	p := &pipeline{
		req:      req,
		endpoint: req.Path,
		console:  &processor.Console{},
		logger: e.logger.With().
			Str("project", req.Project).
			Str("method", models.NormalizeMethod(req.Method)).
			Str("path", req.Path).
			Logger(),
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("Pipeline panicked")
			res = errorResult(http.StatusInternalServerError, StageError, fmt.Sprint(r))
		}
		res.Endpoint = p.endpoint
		res.Logs = append(p.console.Lines(), evalLogLines(p.evalLogs)...)
		e.record(p, res, time.Since(start))
	}()

	return e.run(ctx, p)
}

func (e *Engine) run(ctx context.Context, p *pipeline) *Result {
	if res := e.resolveOperation(ctx, p); res != nil {
		return res
	}
	if res := e.validate(p); res != nil {
		return res
	}

	records, err := e.store.ListEnabledProcessors(p.project.Name, p.endpoint, p.op.Method)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to load processors")
		return errorResult(http.StatusInternalServerError, StageError, err.Error())
	}
	p.records = records

	if res := e.matchExpectation(p); res != nil {
		return res
	}

	p.db = e.openStore(p)
	reqView := processor.NewRequestView(p.payload, p.req.Headers, p.req.Query)

	if res := e.runPre(ctx, p, reqView); res != nil {
		return res
	}

	res := e.exampleOrMock(ctx, p)
	if res.Stage == StageExample {
		return res
	}

	res.Body = e.runner.RunPost(ctx, p.records, reqView, res.Body, p.db, p.console)
	return res
}

// resolveOperation finds the project, its document and the operation
func (e *Engine) resolveOperation(ctx context.Context, p *pipeline) *Result {
	project, err := e.store.GetProject(p.req.Project)
	if err != nil {
		return errorResult(http.StatusNotFound, StageNotFound, "Project not found")
	}
	p.project = project

	doc, err := e.loader.Load(ctx, project.OpenAPIFile)
	if err != nil {
		p.logger.Warn().Err(err).Str("ref", project.OpenAPIFile).Msg("Failed to load OpenAPI document")
		return errorResult(http.StatusNotFound, StageNotFound, "OpenAPI document not found")
	}
	p.doc = doc

	endpoint, op, params, err := findOperation(doc, p.req.Path, p.req.Method)
	p.endpoint = endpoint
	p.params = params
	switch {
	case errors.Is(err, openapi.ErrNoPaths):
		return errorResult(http.StatusInternalServerError, StageError, "No paths found in OpenAPI")
	case errors.Is(err, openapi.ErrPathNotFound):
		return errorResult(http.StatusNotFound, StageNotFound, "Endpoint not found")
	case errors.Is(err, openapi.ErrMethodNotAllowed):
		return errorResult(http.StatusMethodNotAllowed, StageMethodNotAllowed, "Method not allowed")
	case err != nil:
		return errorResult(http.StatusInternalServerError, StageError, err.Error())
	}
	p.op = op
	return nil
}

// validate checks required parameters and the body, and builds the 400 response
func (e *Engine) validate(p *pipeline) *Result {
	view := &validation.RequestView{
		Headers:      p.req.Headers,
		Query:        p.req.Query,
		PathSegments: strings.Split(strings.Trim(p.req.Path, "/"), "/"),
		PathParams:   p.params,
		Cookies:      p.req.Cookies,
	}

	payload, missing := validation.Check(p.op, view, p.req.Body, p.doc)
	p.payload = payload
	if len(missing) == 0 {
		return nil
	}

	summary := validation.Summary(missing)
	p.logger.Debug().Str("missing", summary).Msg("Validation failed")

	declared := p.op.Response("400")
	if example, ok := declared.LiteralExample(""); ok {
		return e.validationResult(declared, withSystemLog(example, summary), summary)
	}

	source := declared
	if source == nil || source.Schema == nil {
		source = p.op.Response("200")
	}
	var body any
	if source != nil && source.Schema != nil {
		body = e.mocker.Mock(source.Schema, p.doc)
	}
	return e.validationResult(declared, withSystemLog(body, summary), summary)
}

func (e *Engine) validationResult(declared *openapi.Response, body any, summary string) *Result {
	contentType := models.DefaultContentType
	if declared != nil && declared.ContentType != "" {
		contentType = declared.ContentType
	}
	return &Result{
		Status:      http.StatusBadRequest,
		ContentType: contentType,
		Body:        body,
		Stage:       StageValidation,
		Error:       summary,
	}
}

// withSystemLog attaches the summary to an object body. Other values are wrapped.
func withSystemLog(body any, summary string) map[string]any {
	out := map[string]any{}
	switch v := body.(type) {
	case map[string]any:
		for k, val := range v {
			out[k] = val
		}
	case nil:
	default:
		out["data"] = v
	}
	out[SystemLogField] = summary
	return out
}

// matchExpectation returns the response of the first matching expectation
func (e *Engine) matchExpectation(p *pipeline) *Result {
	data := &condition.RequestData{
		Method:  p.req.Method,
		Path:    p.req.Path,
		Query:   p.req.Query,
		Headers: p.req.Headers,
		Body:    string(p.req.Body),
	}

	match, logs := e.expectations.Match(p.records, data)
	p.evalLogs = logs
	if match == nil {
		return nil
	}

	p.matched = match.Spec.Name
	if p.matched == "" {
		p.matched = fmt.Sprintf("#%d", match.Record.ID)
	}
	p.logger.Debug().Str("expectation", p.matched).Msg("Expectation matched")
	return &Result{
		Status:      match.Status,
		ContentType: match.ContentType,
		Body:        match.Body,
		Raw:         match.Raw,
		Stage:       StageExpectation,
	}
}

// openStore returns the project data store in DB mode
func (e *Engine) openStore(p *pipeline) processor.DB {
	if !p.project.UseDB || strings.TrimSpace(p.project.DBRef) == "" {
		return nil
	}
	store, err := datastore.Open(p.project.DBRef, e.queryTimeout)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to open data store")
		return nil
	}
	return store
}

func (e *Engine) runPre(ctx context.Context, p *pipeline, reqView processor.RequestView) *Result {
	out := e.runner.RunPre(ctx, p.records, reqView, p.db, p.console)
	if out.Err != nil {
		msg := "Pre processor error: " + out.Err.Error()
		return &Result{
			Status:      http.StatusInternalServerError,
			ContentType: models.DefaultContentType,
			Body:        map[string]any{"error": msg, "logs": p.console.Lines()},
			Stage:       StagePreProcessor,
			Error:       msg,
		}
	}
	if out.Terminated {
		return &Result{
			Status:      http.StatusOK,
			ContentType: models.DefaultContentType,
			Body:        out.Body,
			Stage:       StagePreProcessor,
		}
	}
	return nil
}

// override reads a header first, then the query parameter
func (p *pipeline) override(header, query string) string {
	if v := strings.TrimSpace(p.req.Headers.Get(header)); v != "" {
		return v
	}
	return strings.TrimSpace(p.req.Query.Get(query))
}

// exampleOrMock returns the literal example of the success response, or a
// synthesized body spliced with mapped SQL rows in DB mode
func (e *Engine) exampleOrMock(ctx context.Context, p *pipeline) *Result {
	resp := p.op.SuccessResponse(p.override(HeaderStatus, QueryStatus))

	res := &Result{Status: http.StatusOK, ContentType: models.DefaultContentType, Stage: StageMock}
	if resp == nil {
		return res
	}
	res.Status = resp.StatusCode()
	if resp.ContentType != "" {
		res.ContentType = resp.ContentType
	}

	if example, ok := resp.LiteralExample(p.override(HeaderExample, QueryExample)); ok {
		res.Body = example
		res.Stage = StageExample
		return res
	}

	if resp.Schema != nil {
		res.Body = e.mocker.Mock(resp.Schema, p.doc)
	}

	if p.db != nil {
		res.Body = e.spliceMapping(ctx, p, res.Body)
	}
	return res
}

func (e *Engine) spliceMapping(ctx context.Context, p *pipeline, body any) any {
	mapping, err := e.store.GetMapping(p.project.Name, p.endpoint, p.op.Method)
	if err != nil || strings.TrimSpace(mapping.SQL) == "" {
		return body
	}

	rows, err := p.db.Query(ctx, mapping.SQL, nil)
	if err != nil {
		p.logger.Warn().Err(err).Msg("SQL mapping query failed")
		p.console.Log("SQL mapping error: " + err.Error())
		return body
	}

	spliced, err := datastore.Splice(body, mapping.JSONPath, rows)
	if err != nil {
		p.logger.Warn().Err(err).Str("jsonPath", mapping.JSONPath).Msg("SQL mapping splice failed")
		return body
	}
	return spliced
}

// record feeds stats and, when the project traces, the trace buffer
func (e *Engine) record(p *pipeline, res *Result, d time.Duration) {
	method := models.NormalizeMethod(p.req.Method)

	if e.statsCollector != nil {
		e.statsCollector.Record(stats.Sample{
			Project:  p.req.Project,
			Endpoint: p.endpoint,
			Method:   method,
			Stage:    string(res.Stage),
			Status:   res.Status,
			Duration: d,
			Error:    res.Error,
		})
	}

	if res.Status >= 500 {
		p.logger.Error().Int("status", res.Status).Str("stage", string(res.Stage)).Msg(res.Error)
	} else {
		p.logger.Debug().Int("status", res.Status).Str("stage", string(res.Stage)).Dur("duration", d).Msg("Resolved mock request")
	}

	if e.tracingService == nil || p.project == nil || !p.project.Tracing {
		return
	}

	trace := &models.Trace{
		Project:   p.req.Project,
		Endpoint:  p.endpoint,
		Method:    method,
		Stage:     string(res.Stage),
		Timestamp: time.Now().Add(-d),
		Duration:  d.Nanoseconds(),
		Request: models.TraceRequest{
			Method:  p.req.Method,
			URL:     p.req.URL,
			Path:    p.req.Path,
			Query:   p.req.Query,
			Headers: p.req.Headers,
			Body:    string(p.req.Body),
		},
		Response: models.TraceResponse{
			StatusCode:  res.Status,
			ContentType: res.ContentType,
			Body:        string(res.Bytes()),
		},
		Expectation: p.matched,
		Logs:        res.Logs,
	}
	e.tracingService.RecordTrace(trace)
}

func evalLogLines(logs []condition.EvalLog) []string {
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.String())
	}
	return out
}

// Bytes returns the encoded response body
func (r *Result) Bytes() []byte {
	if r.Raw != "" {
		return []byte(r.Raw)
	}
	if s, ok := r.Body.(string); ok && !isJSONContentType(r.ContentType) {
		return []byte(s)
	}
	data, err := json.Marshal(r.Body)
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return data
}

func isJSONContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return ct == "" || strings.Contains(ct, "json")
}
