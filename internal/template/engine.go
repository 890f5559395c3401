// Package template renders {{source.key}} variables inside expectation responses.
package template

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Engine substitutes request data and generated values into response templates
type Engine struct {
	now func() time.Time
}

// NewEngine creates a new template engine. It is safe for concurrent use.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Context is the request data a template can read
type Context struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    string
}

var templateVarPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Process replaces every variable in tpl
func (e *Engine) Process(tpl string, ctx *Context) string {
	return e.render(tpl, ctx, false)
}

// ProcessJSON is Process with substituted values escaped for use inside JSON strings.
func (e *Engine) ProcessJSON(tpl string, ctx *Context) string {
	return e.render(tpl, ctx, true)
}

func (e *Engine) render(tpl string, ctx *Context, escape bool) string {
	if !strings.Contains(tpl, "{{") {
		return tpl
	}
	if ctx == nil {
		ctx = &Context{}
	}
	return templateVarPattern.ReplaceAllStringFunc(tpl, func(match string) string {
		value := e.resolveVariable(strings.TrimSpace(match[2:len(match)-2]), ctx)
		if escape {
			return escapeJSON(value)
		}
		return value
	})
}

// resolveVariable resolves a single variable to its value
func (e *Engine) resolveVariable(varName string, ctx *Context) string {
	varName = strings.TrimPrefix(varName, ".")

	source, key, _ := strings.Cut(varName, ".")

	switch source {
	case "request":
		switch key {
		case "method":
			return strings.ToUpper(ctx.Method)
		case "path":
			return ctx.Path
		}
	case "path":
		// path.N is the N-th segment after the project name
		segments := strings.Split(strings.Trim(ctx.Path, "/"), "/")
		if i, err := strconv.Atoi(key); err == nil && i >= 0 && i < len(segments) {
			return segments[i]
		}
	case "query":
		if key != "" {
			return ctx.Query.Get(key)
		}
	case "header":
		if key != "" {
			return ctx.Headers.Get(key)
		}
	case "body":
		if ctx.Body == "" {
			return ""
		}
		if key == "" {
			return ctx.Body
		}
		if result := gjson.Get(ctx.Body, key); result.Exists() {
			return result.String()
		}
	case "random":
		return e.resolveRandom(key)
	case "timestamp":
		return e.resolveTimestamp(key)
	}

	return ""
}

// resolveRandom resolves random value generators
func (e *Engine) resolveRandom(key string) string {
	switch {
	case key == "uuid":
		return uuid.NewString()
	case key == "int":
		return strconv.Itoa(rand.IntN(1000000))
	case strings.HasPrefix(key, "int("):
		params := parseParams(key, "int")
		if len(params) == 2 {
			lo, _ := strconv.Atoi(strings.TrimSpace(params[0]))
			hi, _ := strconv.Atoi(strings.TrimSpace(params[1]))
			if hi > lo {
				return strconv.Itoa(lo + rand.IntN(hi-lo+1))
			}
		}
		return strconv.Itoa(rand.IntN(1000000))
	case key == "float":
		return fmt.Sprintf("%.2f", rand.Float64()*1000)
	case strings.HasPrefix(key, "float("):
		params := parseParams(key, "float")
		if len(params) == 2 {
			lo, _ := strconv.ParseFloat(strings.TrimSpace(params[0]), 64)
			hi, _ := strconv.ParseFloat(strings.TrimSpace(params[1]), 64)
			if hi > lo {
				return fmt.Sprintf("%.2f", lo+rand.Float64()*(hi-lo))
			}
		}
		return fmt.Sprintf("%.2f", rand.Float64()*1000)
	case key == "string":
		return e.randomString(10)
	case strings.HasPrefix(key, "string("):
		params := parseParams(key, "string")
		if len(params) == 1 {
			if length, _ := strconv.Atoi(params[0]); length > 0 {
				return e.randomString(length)
			}
		}
		return e.randomString(10)
	case key == "bool":
		return strconv.FormatBool(rand.IntN(2) == 1)
	case key == "email":
		return e.randomString(8) + "@example.com"
	case key == "name":
		names := []string{"John", "Jane", "Bob", "Alice", "Charlie", "Diana", "Eve", "Frank"}
		return names[rand.IntN(len(names))]
	}

	return ""
}

// resolveTimestamp resolves timestamp generators
func (e *Engine) resolveTimestamp(key string) string {
	now := e.now()

	switch {
	case key == "unixMilli":
		return strconv.FormatInt(now.UnixMilli(), 10)
	case key == "iso":
		return now.Format(time.RFC3339)
	case key == "date":
		return now.Format("2006-01-02")
	case key == "time":
		return now.Format("15:04:05")
	case strings.HasPrefix(key, "format("):
		if params := parseParams(key, "format"); len(params) == 1 {
			return now.Format(params[0])
		}
	case strings.HasPrefix(key, "add("):
		if params := parseParams(key, "add"); len(params) == 1 {
			if d, err := time.ParseDuration(params[0]); err == nil {
				return now.Add(d).Format(time.RFC3339)
			}
		}
	}

	return strconv.FormatInt(now.Unix(), 10)
}

// parseParams extracts parameters from a call like "int(1,10)"
func parseParams(key, funcName string) []string {
	params, ok := strings.CutPrefix(key, funcName+"(")
	if !ok {
		return nil
	}
	params = strings.TrimSuffix(params, ")")
	if params == "" {
		return nil
	}
	return strings.Split(params, ",")
}

func (e *Engine) randomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.IntN(len(charset))]
	}
	return string(b)
}

// escapeJSON returns s encoded as a JSON string body, without the quotes
func escapeJSON(s string) string {
	b, err := json.Marshal(s)
	if err != nil || len(b) < 2 {
		return s
	}
	return string(b[1 : len(b)-1])
}
