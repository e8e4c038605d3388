package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mssola/useragent"

	"github.com/reelroll/reelroll/internal/geoip"
	"github.com/reelroll/reelroll/internal/ratelimit"
)

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// requestLogger logs one line per request with the viewer's browser, OS and,
// when resolver has a database, country.
func requestLogger(resolver *geoip.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/health" {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(recorder, r)

			clientIP := ratelimit.ClientIP(r)
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", clientIP,
			}
			attrs = append(attrs, viewerAttrs(r.UserAgent())...)
			if country := resolver.Country(clientIP); country != "" {
				attrs = append(attrs, "country", country)
			}

			slog.Info("http request", attrs...)
		})
	}
}

func viewerAttrs(userAgent string) []any {
	if userAgent == "" {
		return nil
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return []any{"bot", name}
	}
	browser, _ := ua.Browser()
	attrs := []any{"browser", browser, "os", ua.OS()}
	if ua.Mobile() {
		attrs = append(attrs, "mobile", true)
	}
	return attrs
}
