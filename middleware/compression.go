package middleware

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"

	"github.com/peelkit/peel"
)

type CompressionConfig struct {
	MinSize int `json:"min_size"`
	Level   int `json:"level"`
}

// NewCompression compresses buffered response bodies (text, binary and JSON
// variants) after the downstream pipeline completes, negotiating brotli,
// gzip or deflate from Accept-Encoding. Streams are passed through
// untouched; their length is already indeterminate.
func NewCompression(cfg *CompressionConfig) peel.Middleware {
	if cfg == nil {
		cfg = &CompressionConfig{}
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = 1024
	}
	if cfg.Level == 0 {
		cfg.Level = 6
	}

	gzipPool := sync.Pool{
		New: func() interface{} {
			w, _ := gzip.NewWriterLevel(nil, cfg.Level)
			return w
		},
	}
	flatePool := sync.Pool{
		New: func() interface{} {
			w, _ := flate.NewWriter(nil, cfg.Level)
			return w
		},
	}
	brotliPool := sync.Pool{
		New: func() interface{} {
			return brotli.NewWriterLevel(nil, brotli.DefaultCompression)
		},
	}

	return func(ctx *peel.Context, next peel.Next) error {
		if err := next(); err != nil {
			return err
		}

		response := ctx.Response()
		switch response.BodyKind() {
		case peel.BodyText, peel.BodyBinary, peel.BodyJSON:
		default:
			return nil
		}

		body := response.Body()
		if len(body) < cfg.MinSize {
			return nil
		}
		if response.Header(fasthttp.HeaderContentEncoding) != "" {
			return nil
		}

		encoding := negotiateEncoding(ctx.Header(fasthttp.HeaderAcceptEncoding))
		if encoding == "" {
			return nil
		}

		var buf bytes.Buffer

		switch encoding {
		case "br":
			w := brotliPool.Get().(*brotli.Writer)
			w.Reset(&buf)
			if _, err := w.Write(body); err != nil {
				brotliPool.Put(w)
				return nil
			}
			if err := w.Close(); err != nil {
				brotliPool.Put(w)
				return nil
			}
			brotliPool.Put(w)
		case "gzip":
			w := gzipPool.Get().(*gzip.Writer)
			w.Reset(&buf)
			if _, err := w.Write(body); err != nil {
				gzipPool.Put(w)
				return nil
			}
			if err := w.Close(); err != nil {
				gzipPool.Put(w)
				return nil
			}
			gzipPool.Put(w)
		case "deflate":
			w := flatePool.Get().(*flate.Writer)
			w.Reset(&buf)
			if _, err := w.Write(body); err != nil {
				flatePool.Put(w)
				return nil
			}
			if err := w.Close(); err != nil {
				flatePool.Put(w)
				return nil
			}
			flatePool.Put(w)
		}

		if buf.Len() >= len(body) {
			return nil
		}

		response.Raw().SetBody(buf.Bytes())
		response.SetHeader(fasthttp.HeaderContentEncoding, encoding)
		appendVary(response, fasthttp.HeaderAcceptEncoding)
		response.SetContentLength(buf.Len())

		return nil
	}
}

// negotiateEncoding picks the preferred supported encoding from an
// Accept-Encoding header. Tokens are parsed individually so an encoding
// disabled with q=0 is never selected.
func negotiateEncoding(acceptEncoding string) string {
	if acceptEncoding == "" {
		return ""
	}

	accepted := make(map[string]bool, 3)
	for _, part := range strings.Split(acceptEncoding, ",") {
		fields := strings.Split(part, ";")
		name := strings.ToLower(strings.TrimSpace(fields[0]))
		if name == "" {
			continue
		}

		refused := false
		for _, param := range fields[1:] {
			param = strings.TrimSpace(param)
			if !strings.HasPrefix(param, "q=") {
				continue
			}
			if q, err := strconv.ParseFloat(param[2:], 64); err == nil && q == 0 {
				refused = true
			}
		}
		if !refused {
			accepted[name] = true
		}
	}

	for _, candidate := range []string{"br", "gzip", "deflate"} {
		if accepted[candidate] {
			return candidate
		}
	}
	return ""
}

// appendVary adds value to the response's Vary header, preserving entries
// written by earlier middleware.
func appendVary(response *peel.Response, value string) {
	existing := response.Header(fasthttp.HeaderVary)
	if existing == "" {
		response.SetHeader(fasthttp.HeaderVary, value)
		return
	}
	for _, entry := range strings.Split(existing, ",") {
		if strings.EqualFold(strings.TrimSpace(entry), value) {
			return
		}
	}
	response.SetHeader(fasthttp.HeaderVary, existing+", "+value)
}
