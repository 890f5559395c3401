// Package processor runs user scripts before and after mock synthesis.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prasenjit/go-mockserver/internal/datastore"
)

// ErrTimeout is returned when a script exceeds its execution budget
var ErrTimeout = errors.New("processor execution timed out")

// ErrNoDatastore is raised inside scripts that use db without a project store
var ErrNoDatastore = errors.New("no data store configured for this project")

// Engine names accepted by NewExecutor
const (
	EngineJS  = "js"
	EngineCEL = "cel"
)

// DB is the data store surface exposed to scripts as "db"
type DB interface {
	Query(ctx context.Context, query string, params []any) ([]map[string]any, error)
	Exec(ctx context.Context, query string, params []any) (datastore.ExecResult, error)
}

// RequestView is the read-only request exposed to scripts as "req"
type RequestView struct {
	Body    any            `json:"body"`
	Headers map[string]any `json:"headers"`
	Query   map[string]any `json:"query"`
}

// NewRequestView flattens headers and query values the way scripts expect them:
// lower-case header names with repeated values joined by ", ", and query keys
// holding a string or, when repeated, a list of strings.
func NewRequestView(body any, headers http.Header, query url.Values) RequestView {
	v := RequestView{
		Body:    body,
		Headers: make(map[string]any, len(headers)),
		Query:   make(map[string]any, len(query)),
	}
	for k, vals := range headers {
		v.Headers[strings.ToLower(k)] = strings.Join(vals, ", ")
	}
	for k, vals := range query {
		if len(vals) == 1 {
			v.Query[k] = vals[0]
			continue
		}
		list := make([]any, len(vals))
		for i, s := range vals {
			list[i] = s
		}
		v.Query[k] = list
	}
	return v
}

func (r RequestView) toMap() map[string]any {
	return map[string]any{"body": r.Body, "headers": r.Headers, "query": r.Query}
}

// Console collects script log output instead of printing it
type Console struct {
	mu    sync.Mutex
	lines []string
}

// Log appends one line
func (c *Console) Log(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

// Lines returns a copy of the collected lines
func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Bindings are the values a script can reach
type Bindings struct {
	Request  RequestView
	Response any
	Console  *Console
	DB       DB
}

// Result is what a script produced: its return value and the final state of "res"
type Result struct {
	Value    any
	Response any
}

// Executor runs one script to completion
type Executor interface {
	Execute(ctx context.Context, source string, b Bindings) (Result, error)
}

// NewExecutor returns the executor for a configured engine name
func NewExecutor(engine string, timeout time.Duration) (Executor, error) {
	switch strings.ToLower(engine) {
	case "", EngineJS:
		return NewJSExecutor(timeout), nil
	case EngineCEL:
		return NewCELExecutor(timeout), nil
	}
	return nil, fmt.Errorf("unknown processor engine %q", engine)
}

// Truthy follows JavaScript truthiness for exported script values
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0 && !math.IsNaN(val)
	}
	return true
}

// stringifyArg renders one console argument: objects as JSON, the rest as text
func stringifyArg(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case map[string]any, []any:
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

func withBudget(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
