package api

import (
	"context"
	"strings"
	"time"
)

// Request is the transport-neutral request handlers receive. Header names
// are lowercase.
type Request struct {
	Method  string
	Path    string
	Query   map[string][]string
	Headers map[string][]string
	Body    []byte
}

// Context is passed to handlers.
type Context struct {
	ctx       context.Context
	Request   Request
	Params    map[string]string
	RequestID string
	now       func() time.Time
}

func (c *Context) Context() context.Context {
	if c == nil || c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *Context) Now() time.Time {
	if c == nil || c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c *Context) Param(name string) string {
	if c == nil {
		return ""
	}
	return c.Params[name]
}

// Query returns the first value of a query parameter.
func (c *Context) Query(name string) string {
	if c == nil || len(c.Request.Query[name]) == 0 {
		return ""
	}
	return strings.TrimSpace(c.Request.Query[name][0])
}

// Header returns the first value of a header.
func (c *Context) Header(name string) string {
	if c == nil {
		return ""
	}
	values := c.Request.Headers[strings.ToLower(name)]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
