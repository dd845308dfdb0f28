package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/calmisko/gatepipe/internal/core"
)

// handleProxy translates the wire request into a descriptor, runs it
// through the pipeline and writes the terminal response back.
func (s *Server) handleProxy(c *gin.Context) {
	req, errResp := s.buildRequest(c)
	if errResp != nil {
		writeResponse(c, "", errResp)
		return
	}

	resp := s.pipeline.Load().Process(c.Request.Context(), req)
	writeResponse(c, req.RequestID, resp)
}

// buildRequest maps the inbound HTTP request onto the transport-neutral
// descriptor the pipeline consumes.
func (s *Server) buildRequest(c *gin.Context) (*core.Request, *core.Response) {
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, core.ErrorResponse(http.StatusRequestEntityTooLarge,
					core.StatusValidationFailed, "body_too_large", "request body exceeds the configured limit")
			}
			return nil, core.ErrorResponse(http.StatusBadRequest,
				core.StatusValidationFailed, "body_read_failed", "request body could not be read")
		}
	}

	headers := make(map[string][]string, len(c.Request.Header))
	for key, values := range c.Request.Header {
		headers[key] = append([]string(nil), values...)
	}

	req := &core.Request{
		Method:     core.NormalizeMethod(c.Request.Method),
		Path:       c.Request.URL.Path,
		Headers:    headers,
		Query:      c.Request.URL.Query(),
		Body:       body,
		ClientIP:   c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		RequestID:  c.GetHeader(RequestIDHeader),
		ReceivedAt: time.Now(),
	}
	req.TenantID = req.Header(s.tenantHeader)
	return req, nil
}

// writeResponse copies the terminal response onto the wire. The
// request id is always echoed so callers can correlate.
func writeResponse(c *gin.Context, requestID string, resp *core.Response) {
	header := c.Writer.Header()
	for key, values := range resp.Headers {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	if requestID != "" {
		header.Set(RequestIDHeader, requestID)
	}

	c.Status(resp.StatusCode)
	if len(resp.Body) > 0 {
		_, _ = c.Writer.Write(resp.Body)
	}
}
