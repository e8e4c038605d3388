package server

import (
	"context"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/reelroll/reelroll/internal/geoip"
	"github.com/reelroll/reelroll/internal/loader"
	"github.com/reelroll/reelroll/internal/ratelimit"
	"github.com/reelroll/reelroll/internal/video"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Source  video.Source
	Pinger  Pinger
	WebFS   fs.FS
	BaseURL string
	// MediaOrigins are the hosts video_url values point at, allowed in the
	// CSP media-src and img-src directives.
	MediaOrigins []string
	// Policy drives the /player load sequence. The zero value fetches once.
	Policy       loader.Policy
	RateLimit    float64
	RateBurst    int
	GeoIP        *geoip.Resolver
}

type Server struct {
	router  chi.Router
	source  video.Source
	pinger  Pinger
	webFS   fs.FS
	policy  loader.Policy
	limiter *ratelimit.Limiter
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(cfg.GeoIP))
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:      cfg.BaseURL,
		MediaOrigins: cfg.MediaOrigins,
	}))

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}

	s := &Server{
		router: r,
		source: cfg.Source,
		pinger: cfg.Pinger,
		webFS:  cfg.WebFS,
		policy: cfg.Policy,
	}
	if s.source != nil {
		s.limiter = ratelimit.NewLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	if s.source != nil {
		s.router.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Get(loader.RandomPath, s.handleRandom)
			r.Get("/player", s.handlePlayer)
		})
	}

	if s.webFS != nil {
		spa := newSPAFileServer(s.webFS)
		s.router.NotFound(spa.ServeHTTP)
	}
}
