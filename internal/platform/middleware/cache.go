package middleware

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CacheConfig holds HTTP cache and ETag configuration.
type CacheConfig struct {
	MaxAge             int      // Cache max-age in seconds
	Private            bool     // Cache-Control: private instead of public
	NoStore            bool     // Cache-Control: no-store for sensitive endpoints
	VaryHeaders        []string // Headers to include in Vary
	ETagEnabled        bool
	ConditionalEnabled bool     // Support If-None-Match
	ExcludePaths       []string // Path prefixes to skip
}

// DefaultCacheConfig returns the defaults used for the template catalog
// endpoints, whose responses only change on registry reload.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxAge:             300,
		Private:            true,
		VaryHeaders:        []string{"Accept", "Authorization"},
		ETagEnabled:        true,
		ConditionalEnabled: true,
	}
}

// bufferedResponseWriter captures the response body so the middleware can
// compute an ETag before flushing to the real writer.
type bufferedResponseWriter struct {
	writer     http.ResponseWriter
	buf        *bytes.Buffer
	statusCode int
}

func newBufferedResponseWriter(w http.ResponseWriter) *bufferedResponseWriter {
	return &bufferedResponseWriter{
		writer:     w,
		buf:        &bytes.Buffer{},
		statusCode: http.StatusOK,
	}
}

// Header returns the underlying writer's header map so headers set by
// handlers survive the final flush.
func (w *bufferedResponseWriter) Header() http.Header {
	return w.writer.Header()
}

func (w *bufferedResponseWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

func (w *bufferedResponseWriter) WriteHeader(code int) {
	w.statusCode = code
}

// Flush implements http.Flusher (no-op for buffer).
func (w *bufferedResponseWriter) Flush() {}

func (w *bufferedResponseWriter) flushTo() error {
	w.writer.WriteHeader(w.statusCode)
	if w.buf.Len() > 0 {
		_, err := w.writer.Write(w.buf.Bytes())
		return err
	}
	return nil
}

// ETagMiddleware computes and sets ETag, Cache-Control, and Vary headers on
// GET/HEAD responses. When ConditionalEnabled is set, If-None-Match requests
// that match answer 304 Not Modified.
func ETagMiddleware(config CacheConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}
			if shouldSkip(req.URL.Path, config.ExcludePaths) {
				return next(c)
			}

			res := c.Response()
			origWriter := res.Writer
			buf := newBufferedResponseWriter(origWriter)
			res.Writer = buf

			if err := next(c); err != nil {
				res.Writer = origWriter
				return err
			}

			res.Writer = origWriter

			// Error responses get no cache headers.
			if buf.statusCode >= 400 {
				return buf.flushTo()
			}

			res.Header().Set("Cache-Control", buildCacheControl(config))
			if len(config.VaryHeaders) > 0 {
				res.Header().Set("Vary", strings.Join(config.VaryHeaders, ", "))
			}

			if config.ETagEnabled {
				etag := computeETag(buf.buf.Bytes())
				res.Header().Set("ETag", etag)

				if config.ConditionalEnabled {
					ifNoneMatch := req.Header.Get("If-None-Match")
					if ifNoneMatch != "" && etagMatch(ifNoneMatch, etag) {
						origWriter.WriteHeader(http.StatusNotModified)
						return nil
					}
				}
			}

			return buf.flushTo()
		}
	}
}

// computeETag returns a weak ETag based on the MD5 hash of the body.
func computeETag(body []byte) string {
	hash := md5.Sum(body)
	return fmt.Sprintf(`W/"%x"`, hash)
}

func shouldSkip(path string, excludes []string) bool {
	for _, ex := range excludes {
		if strings.HasPrefix(path, ex) {
			return true
		}
	}
	return false
}

func buildCacheControl(config CacheConfig) string {
	var parts []string
	if config.NoStore {
		parts = append(parts, "no-store")
	}
	if config.Private {
		parts = append(parts, "private")
	} else {
		parts = append(parts, "public")
	}
	parts = append(parts, fmt.Sprintf("max-age=%d", config.MaxAge))
	return strings.Join(parts, ", ")
}

// etagMatch checks an If-None-Match header value against the given ETag.
// Supports comma-separated lists and the wildcard "*", with weak comparison.
func etagMatch(headerVal, etag string) bool {
	headerVal = strings.TrimSpace(headerVal)
	if headerVal == "*" {
		return true
	}
	for _, candidate := range strings.Split(headerVal, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == etag {
			return true
		}
		if stripWeakPrefix(candidate) == stripWeakPrefix(etag) {
			return true
		}
	}
	return false
}

func stripWeakPrefix(etag string) string {
	if strings.HasPrefix(etag, `W/`) {
		return etag[2:]
	}
	return etag
}
