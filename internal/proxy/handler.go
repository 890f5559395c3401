package proxy

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handle serves ANY /mock/:project/*path
func (e *Engine) Handle(c *gin.Context) {
	var body []byte
	if c.Request.Body != nil {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		body = data
	}

	res := e.Resolve(c.Request.Context(), &Request{
		Project: c.Param("project"),
		Path:    c.Param("path"),
		Method:  c.Request.Method,
		URL:     c.Request.URL.String(),
		Headers: c.Request.Header,
		Query:   c.Request.URL.Query(),
		Cookies: c.Request.Cookies(),
		Body:    body,
	})

	status := res.Status
	// net/http rejects codes outside 1xx-9xx
	if status < 100 || status > 999 {
		e.logger.Warn().Int("status", status).Str("project", c.Param("project")).Msg("Invalid mock status, answering 500")
		status = http.StatusInternalServerError
	}

	c.Header("X-Mock-Stage", string(res.Stage))
	c.Data(status, res.ContentType, res.Bytes())
}
