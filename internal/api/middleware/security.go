package middleware

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode"
)

// securityHeaders are set on every response. The API serves JSON and
// websockets only, so the CSP allows nothing to load.
var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cache-Control", "no-store"},
}

// SecurityHeaders adds security headers to all responses. HSTS is only
// sent over HTTPS, directly or behind a TLS-terminating proxy.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBodySize limits request body size.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				jsonError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// markup is rejected in query values. Message content travels in JSON
// bodies, so nothing legitimate puts markup in a query string.
var markup = []string{"<script", "javascript:", "vbscript:", "onload=", "onerror="}

// ValidateRequest rejects requests no chatline client sends: non-JSON
// bodies, unclean paths, and query values carrying markup or control
// characters.
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.ContentLength != 0 && !isJSON(r.Header.Get("Content-Type")) {
			jsonError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
			return
		}
		if !cleanPath(r.URL.Path) || !cleanQuery(r.URL.Query()) {
			jsonError(w, http.StatusBadRequest, "invalid request")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

// cleanPath reports whether p is already in canonical form, which rules
// out "..", "." and repeated slashes.
func cleanPath(p string) bool {
	return p == "" || path.Clean(p) == p || path.Clean(p)+"/" == p
}

func cleanQuery(q url.Values) bool {
	for _, values := range q {
		for _, v := range values {
			if strings.ContainsFunc(v, unicode.IsControl) {
				return false
			}
			lower := strings.ToLower(v)
			for _, m := range markup {
				if strings.Contains(lower, m) {
					return false
				}
			}
		}
	}
	return true
}
