package peel

import (
	"io"

	"github.com/valyala/fasthttp"
)

// Context is the per-request aggregate unifying the request and response
// facades with a free-form state bag. One Context is built per request,
// mutated throughout the pipeline and discarded afterwards; it is confined
// to its request goroutine and carries no internal locking.
//
// The delegated surface is fixed: Method, Path, URL, Query, Header, Headers,
// SetHeaders and ContentType forward to the request facade; Status,
// SetStatus, Type, SetType, the body setters and ClearBody forward to the
// response facade. Reading or writing a delegated property is always
// equivalent to the same operation on the designated facade.
type Context struct {
	request  *Request
	response *Response
	state    map[string]interface{}
	app      *Application
	raw      *fasthttp.RequestCtx
}

// NewContext wraps a raw transport request/response pair. The app reference
// may be nil when the pipeline is driven outside an Application.
func NewContext(app *Application, raw *fasthttp.RequestCtx) *Context {
	return &Context{
		request:  NewRequest(&raw.Request),
		response: NewResponse(&raw.Response),
		app:      app,
		raw:      raw,
	}
}

func (c *Context) Request() *Request   { return c.request }
func (c *Context) Response() *Response { return c.response }
func (c *Context) App() *Application   { return c.app }

// RawCtx exposes the raw transport object for collaborators that need it.
func (c *Context) RawCtx() *fasthttp.RequestCtx { return c.raw }

// Get reads a value from the cross-middleware state bag.
func (c *Context) Get(key string) (interface{}, bool) {
	if c.state == nil {
		return nil, false
	}
	value, ok := c.state[key]
	return value, ok
}

// Set stores a value in the cross-middleware state bag.
func (c *Context) Set(key string, value interface{}) {
	if c.state == nil {
		c.state = make(map[string]interface{}, 4)
	}
	c.state[key] = value
}

// Request-delegated accessors.

func (c *Context) Method() string { return c.request.Method() }

func (c *Context) Path() string { return c.request.Path() }

func (c *Context) URL() string { return c.request.URL() }

func (c *Context) Query(key string) string { return c.request.Query(key) }

func (c *Context) Header(key string) string { return c.request.Header(key) }

func (c *Context) Headers() map[string]string { return c.request.Headers() }

func (c *Context) SetHeaders(headers map[string]string) { c.request.SetHeaders(headers) }

// ContentType returns the request's normalized media type.
func (c *Context) ContentType() string { return c.request.ContentType() }

// Response-delegated accessors.

func (c *Context) Status() int { return c.response.Status() }

func (c *Context) SetStatus(code int) error { return c.response.SetStatus(code) }

// Type returns the response's media type.
func (c *Context) Type() string { return c.response.Type() }

func (c *Context) SetType(contentType string) { c.response.SetContentType(contentType) }

func (c *Context) SetBodyString(body string) { c.response.SetBodyString(body) }

func (c *Context) SetBodyBytes(body []byte) { c.response.SetBodyBytes(body) }

func (c *Context) SetBodyStream(reader io.Reader, size int) { c.response.SetBodyStream(reader, size) }

func (c *Context) SetBodyJSON(v interface{}) error { return c.response.SetBodyJSON(v) }

func (c *Context) ClearBody() { c.response.ClearBody() }
