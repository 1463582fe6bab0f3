package middleware

import (
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/peelkit/peel"
)

type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// NewCORS answers preflight requests itself and decorates everything else.
// Origins match exactly or against a leading "*." wildcard.
func NewCORS(cfg *CORSConfig) peel.Middleware {
	if cfg == nil {
		cfg = &CORSConfig{}
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 86400
	}

	allowsAll := false
	allowedOrigins := make(map[string]bool, len(cfg.AllowedOrigins))
	var wildcardDomains []string

	for _, origin := range cfg.AllowedOrigins {
		switch {
		case origin == "*":
			allowsAll = true
		case strings.HasPrefix(origin, "*."):
			wildcardDomains = append(wildcardDomains, origin[1:])
		default:
			allowedOrigins[origin] = true
		}
	}

	allowedMethods := strings.Join(cfg.AllowedMethods, ", ")
	allowedHeaders := strings.Join(cfg.AllowedHeaders, ", ")
	exposedHeaders := strings.Join(cfg.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	originAllowed := func(origin string) bool {
		if allowsAll || allowedOrigins[origin] {
			return true
		}
		for _, domain := range wildcardDomains {
			if strings.HasSuffix(origin, domain) {
				return true
			}
		}
		return false
	}

	return func(ctx *peel.Context, next peel.Next) error {
		origin := ctx.Header(fasthttp.HeaderOrigin)
		if origin == "" {
			return next()
		}

		response := ctx.Response()

		if !originAllowed(origin) {
			if ctx.Method() == fasthttp.MethodOptions {
				return ctx.SetStatus(fasthttp.StatusForbidden)
			}
			return next()
		}

		allowOrigin := origin
		if allowsAll && !cfg.AllowCredentials {
			allowOrigin = "*"
		}
		response.SetHeader(fasthttp.HeaderAccessControlAllowOrigin, allowOrigin)
		if cfg.AllowCredentials {
			response.SetHeader(fasthttp.HeaderAccessControlAllowCredentials, "true")
		}

		if ctx.Method() == fasthttp.MethodOptions {
			response.SetHeader(fasthttp.HeaderAccessControlAllowMethods, allowedMethods)
			response.SetHeader(fasthttp.HeaderAccessControlAllowHeaders, allowedHeaders)
			response.SetHeader(fasthttp.HeaderAccessControlMaxAge, maxAge)
			appendVary(response, fasthttp.HeaderOrigin)
			appendVary(response, fasthttp.HeaderAccessControlRequestMethod)
			appendVary(response, fasthttp.HeaderAccessControlRequestHeaders)
			return ctx.SetStatus(fasthttp.StatusNoContent)
		}

		if exposedHeaders != "" {
			response.SetHeader(fasthttp.HeaderAccessControlExposeHeaders, exposedHeaders)
		}
		appendVary(response, fasthttp.HeaderOrigin)

		return next()
	}
}
