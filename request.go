package peel

import (
	"io"
	"strings"

	"github.com/valyala/fasthttp"
)

// Request is the facade over the raw inbound transport request. All writes
// go through to the underlying fasthttp.Request immediately.
type Request struct {
	raw *fasthttp.Request
}

func NewRequest(raw *fasthttp.Request) *Request {
	return &Request{raw: raw}
}

// Raw exposes the underlying transport request.
func (r *Request) Raw() *fasthttp.Request { return r.raw }

func (r *Request) Method() string { return string(r.raw.Header.Method()) }

func (r *Request) SetMethod(method string) { r.raw.Header.SetMethod(method) }

// Path returns the decoded request path.
func (r *Request) Path() string { return string(r.raw.URI().Path()) }

// URL returns the full request URI as sent on the wire.
func (r *Request) URL() string { return string(r.raw.Header.RequestURI()) }

func (r *Request) Host() string { return string(r.raw.URI().Host()) }

func (r *Request) QueryString() string { return string(r.raw.URI().QueryArgs().QueryString()) }

func (r *Request) Query(key string) string { return string(r.raw.URI().QueryArgs().Peek(key)) }

// Header returns the value of a single header; lookup is case-insensitive.
func (r *Request) Header(key string) string { return string(r.raw.Header.Peek(key)) }

func (r *Request) SetHeader(key, value string) { r.raw.Header.Set(key, value) }

// Headers materializes the transport's current header mapping.
func (r *Request) Headers() map[string]string {
	headers := make(map[string]string, r.raw.Header.Len())
	r.raw.Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})
	return headers
}

// SetHeaders replaces the transport's header mapping wholesale. Headers not
// present in the supplied mapping are removed, not merged.
func (r *Request) SetHeaders(headers map[string]string) {
	existing := make([]string, 0, r.raw.Header.Len())
	r.raw.Header.VisitAll(func(key, _ []byte) {
		existing = append(existing, string(key))
	})
	for _, key := range existing {
		r.raw.Header.Del(key)
	}
	for key, value := range headers {
		r.raw.Header.Set(key, value)
	}
}

// ContentType returns the media-type token of the Content-Type header,
// lower-cased and trimmed, with parameters stripped. Returns "" when the
// header is absent.
func (r *Request) ContentType() string {
	return mediaType(r.raw.Header.ContentType())
}

func (r *Request) ContentLength() int { return r.raw.Header.ContentLength() }

func (r *Request) Body() []byte { return r.raw.Body() }

func (r *Request) BodyStream() io.Reader { return r.raw.BodyStream() }

func mediaType(contentType []byte) string {
	value := string(contentType)
	if value == "" {
		return ""
	}
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = value[:i]
	}
	return strings.ToLower(strings.TrimSpace(value))
}
