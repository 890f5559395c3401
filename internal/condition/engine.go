// Package condition matches stored expectations against live requests.
package condition

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prasenjit/go-mockserver/internal/models"
	"github.com/prasenjit/go-mockserver/internal/template"
)

// EvalLog records how one condition or record was evaluated
type EvalLog struct {
	Expectation string `json:"expectation"`
	Location    string `json:"location,omitempty"`
	Field       string `json:"field,omitempty"`
	Comparison  string `json:"comparison,omitempty"`
	Expected    string `json:"expected,omitempty"`
	Actual      any    `json:"actual,omitempty"`
	Pass        bool   `json:"pass"`
	Error       string `json:"error,omitempty"`
}

func (l EvalLog) String() string {
	if l.Error != "" {
		return fmt.Sprintf("expectation %s: %s", l.Expectation, l.Error)
	}
	return fmt.Sprintf("expectation %s: %s.%s %s %q (actual %v) pass=%t",
		l.Expectation, l.Location, l.Field, l.Comparison, l.Expected, l.Actual, l.Pass)
}

// Match is the response selected by a matching expectation
type Match struct {
	Record      *models.Processor
	Spec        *models.ExpectationSpec
	Status      int
	ContentType string
	// Body is the decoded JSON response, or the raw text when it is not JSON
	Body   any
	IsJSON bool
	Raw    string
}

// Engine evaluates expectation records in order and returns the first match
type Engine struct {
	evaluator *Evaluator
	templates *template.Engine
	logger    zerolog.Logger
}

// NewEngine creates a new expectation engine
func NewEngine(templates *template.Engine, logger zerolog.Logger) *Engine {
	if templates == nil {
		templates = template.NewEngine()
	}
	return &Engine{
		evaluator: NewEvaluator(),
		templates: templates,
		logger:    logger,
	}
}

// Match evaluates the enabled expectation records in the given order.
// A record whose code cannot be parsed is logged and skipped.
func (e *Engine) Match(records []*models.Processor, data *RequestData) (*Match, []EvalLog) {
	if data == nil {
		data = &RequestData{}
	}

	var logs []EvalLog
	for _, record := range records {
		if record == nil || record.Type != models.ProcessorExpectation || !record.Enabled {
			continue
		}

		spec, err := models.ParseExpectation(record.Code)
		if err != nil {
			e.logger.Warn().Err(err).Int64("id", record.ID).Msg("Skipping expectation")
			logs = append(logs, EvalLog{
				Expectation: fmt.Sprintf("#%d", record.ID),
				Error:       "Parse expectation error: " + err.Error(),
			})
			continue
		}
		if len(spec.Conditions) == 0 {
			continue
		}

		matched, condLogs := e.fold(spec, data)
		logs = append(logs, condLogs...)
		if matched {
			return e.respond(record, spec, data), logs
		}
	}
	return nil, logs
}

// fold combines enabled conditions strictly left to right. The first one seeds
// the result, later ones join it with their LogicBefore (or ExpectationSpec.Logic).
func (e *Engine) fold(spec *models.ExpectationSpec, data *RequestData) (bool, []EvalLog) {
	name := spec.Name
	var logs []EvalLog
	seeded, result := false, false

	for _, cond := range spec.Conditions {
		if !cond.Enabled {
			continue
		}
		outcome := e.evaluator.Evaluate(cond, data)

		label := name
		if label == "" {
			label = cond.Location + ":" + cond.Field
		}
		logs = append(logs, EvalLog{
			Expectation: label,
			Location:    cond.Location,
			Field:       cond.Field,
			Comparison:  string(outcome.Comparator),
			Expected:    cond.ExpectedValue,
			Actual:      outcome.Actual,
			Pass:        outcome.Passed,
		})

		if !seeded {
			result, seeded = outcome.Passed, true
			continue
		}
		logic := cond.LogicBefore
		if logic == "" {
			logic = spec.Logic
		}
		if strings.EqualFold(logic, models.LogicOr) {
			result = result || outcome.Passed
		} else {
			result = result && outcome.Passed
		}
	}
	return seeded && result, logs
}

func (e *Engine) respond(record *models.Processor, spec *models.ExpectationSpec, data *RequestData) *Match {
	ctx := &template.Context{
		Method:  data.Method,
		Path:    data.Path,
		Query:   data.Query,
		Headers: data.Headers,
		Body:    data.Body,
	}

	text := string(spec.MockResponse)
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		text = e.templates.ProcessJSON(text, ctx)
	} else {
		text = e.templates.Process(text, ctx)
	}

	m := &Match{
		Record:      record,
		Spec:        spec,
		Status:      int(spec.MockResponseStatus),
		ContentType: spec.ContentType,
		Body:        text,
		Raw:         text,
	}
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err == nil {
		m.Body = decoded
		m.IsJSON = true
	}
	return m
}
