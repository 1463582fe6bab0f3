package peel

import (
	"io"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/peelkit/peel/types"
	"github.com/peelkit/peel/utils"
)

// BodyKind identifies the variant currently assigned to the response body.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyText
	BodyBinary
	BodyStream
	BodyJSON
)

const (
	contentTypeText   = "text/plain; charset=utf-8"
	contentTypeHTML   = "text/html; charset=utf-8"
	contentTypeBinary = "application/octet-stream"
	contentTypeJSON   = "application/json; charset=utf-8"
)

// Response is the facade over the raw outbound transport response. Every
// setter writes through to the underlying fasthttp.Response, so raw reads
// observe facade writes immediately.
type Response struct {
	raw       *fasthttp.Response
	kind      BodyKind
	statusSet bool
	typeSet   bool
	committed bool
}

func NewResponse(raw *fasthttp.Response) *Response {
	return &Response{raw: raw}
}

// Raw exposes the underlying transport response.
func (r *Response) Raw() *fasthttp.Response { return r.raw }

func (r *Response) Status() int { return r.raw.StatusCode() }

// StatusSet reports whether any middleware assigned a status explicitly.
func (r *Response) StatusSet() bool { return r.statusSet }

// SetStatus assigns the response status. Values outside 100..599 fail with
// ErrStatusInvalid. Assigning a no-body code clears any assigned body.
func (r *Response) SetStatus(code int) error {
	if code < 100 || code > 599 {
		return types.Errorf(types.ErrStatusInvalid, "%d", code)
	}

	r.raw.SetStatusCode(code)
	r.statusSet = true

	if statusOmitsBody(code) {
		r.clearBodyState()
	}
	return nil
}

// BodyKind returns the variant of the currently assigned body.
func (r *Response) BodyKind() BodyKind { return r.kind }

func (r *Response) Body() []byte { return r.raw.Body() }

// SetBodyString assigns a text body. Markup-looking strings default to
// text/html, anything else to text/plain; an explicitly set content type
// always wins.
func (r *Response) SetBodyString(body string) {
	r.raw.SetBodyString(body)
	r.kind = BodyText
	if !r.typeSet {
		if looksLikeMarkup(body) {
			r.raw.Header.SetContentType(contentTypeHTML)
		} else {
			r.raw.Header.SetContentType(contentTypeText)
		}
	}
}

// SetBodyBytes assigns a binary body, defaulting to application/octet-stream.
func (r *Response) SetBodyBytes(body []byte) {
	r.raw.SetBody(body)
	r.kind = BodyBinary
	if !r.typeSet {
		r.raw.Header.SetContentType(contentTypeBinary)
	}
}

// SetBodyStream assigns a streaming body. A negative size means the length
// is indeterminate and the transport switches to chunked encoding unless a
// length was set explicitly beforehand.
func (r *Response) SetBodyStream(reader io.Reader, size int) {
	r.raw.SetBodyStream(reader, size)
	r.kind = BodyStream
	if !r.typeSet {
		r.raw.Header.SetContentType(contentTypeBinary)
	}
}

// SetBodyJSON encodes v immediately so encoding failures surface inside the
// middleware that produced the value. The content type is fixed to JSON.
func (r *Response) SetBodyJSON(v interface{}) error {
	encoded, err := utils.Marshal(v)
	if err != nil {
		return types.WrapError(err, types.ErrBodyEncodingFailed.Error())
	}

	r.raw.SetBody(encoded)
	r.kind = BodyJSON
	r.raw.Header.SetContentType(contentTypeJSON)
	return nil
}

// ClearBody removes any assigned body. Combined with a 2xx/204/304-class
// status it also clears a previously set content length.
func (r *Response) ClearBody() {
	r.clearBodyState()

	code := r.raw.StatusCode()
	if (code >= 200 && code < 300) || code == fasthttp.StatusNotModified {
		r.raw.Header.Del(fasthttp.HeaderContentLength)
	}
}

func (r *Response) clearBodyState() {
	r.raw.ResetBody()
	r.kind = BodyNone
	if !r.typeSet {
		r.raw.Header.Del(fasthttp.HeaderContentType)
	}
}

// ContentType returns the assigned content type, or "" when neither a type
// nor a body has been set.
func (r *Response) ContentType() string {
	if !r.typeSet && r.kind == BodyNone {
		return ""
	}
	return string(r.raw.Header.ContentType())
}

func (r *Response) SetContentType(contentType string) {
	r.raw.Header.SetContentType(contentType)
	r.typeSet = true
}

// Type returns the media-type token of the assigned content type.
func (r *Response) Type() string {
	return mediaType([]byte(r.ContentType()))
}

func (r *Response) ContentLength() int { return r.raw.Header.ContentLength() }

func (r *Response) SetContentLength(length int) {
	r.raw.Header.SetContentLength(length)
}

func (r *Response) Header(key string) string { return string(r.raw.Header.Peek(key)) }

func (r *Response) SetHeader(key, value string) { r.raw.Header.Set(key, value) }

func (r *Response) DelHeader(key string) { r.raw.Header.Del(key) }

func (r *Response) Headers() map[string]string {
	headers := make(map[string]string, r.raw.Header.Len())
	r.raw.Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})
	return headers
}

// Committed reports whether the response has been handed to the transport;
// once set, no further response mutation is attempted by the dispatcher.
func (r *Response) Committed() bool { return r.committed }

func (r *Response) setCommitted() { r.committed = true }

func statusOmitsBody(code int) bool {
	switch code {
	case fasthttp.StatusNoContent, fasthttp.StatusResetContent, fasthttp.StatusNotModified:
		return true
	}
	return code >= 100 && code < 200
}

func looksLikeMarkup(s string) bool {
	return strings.HasPrefix(strings.TrimLeft(s, " \t\r\n"), "<")
}
