package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"envelopes/internal/cache"
	"envelopes/internal/core"
	"envelopes/internal/events"
	"envelopes/internal/log"
	"envelopes/internal/middleware/ratelimit"
	"envelopes/internal/middleware/security"
	"envelopes/internal/middleware/trace"
	appweb "envelopes/web"
)

// LedgerService is the set of ledger operations the API exposes.
type LedgerService interface {
	List(ctx context.Context) core.Snapshot
	Get(ctx context.Context, id int64) (core.Envelope, error)
	Create(ctx context.Context, title string, budget *float64) (core.Envelope, error)
	Update(ctx context.Context, id int64, title *string, budget *float64) (core.Envelope, error)
	Subtract(ctx context.Context, id int64, amount *float64) (core.Envelope, error)
	Delete(ctx context.Context, id int64) (core.Envelope, error)
	Transfer(ctx context.Context, from, to int64, amount *float64) (core.Transfer, error)
	Distribute(ctx context.Context, amount *float64, ds []core.Distribution) (core.DistributionResult, error)
	Activity(ctx context.Context, limit int) ([]events.Event, error)
}

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Options configures NewServer. Zero values fall back to defaults.
type Options struct {
	Logger                *log.Logger
	Currency              string
	RateLimitPerMinute    int
	IdempotencyTTL        time.Duration
	IdempotencyMaxEntries int
	ReadinessChecks       map[string]ReadinessCheck
}

const (
	defaultCurrency              = "USD"
	defaultIdempotencyTTL        = 10 * time.Minute
	defaultIdempotencyMaxEntries = 1000
	cacheCleanupInterval         = time.Minute
)

type Server struct {
	http.Server
	svc       LedgerService
	logger    *log.Logger
	templates *template.Template
	currency  string
	startedAt time.Time

	tracer      *trace.Middleware
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	idempotency *cache.IdempotencyStore
	caches      *cache.Manager
	readiness   map[string]ReadinessCheck

	replays      int64
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc LedgerService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	if opts.Currency == "" {
		opts.Currency = defaultCurrency
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}
	if opts.IdempotencyMaxEntries <= 0 {
		opts.IdempotencyMaxEntries = defaultIdempotencyMaxEntries
	}

	s := &Server{
		svc:         svc,
		logger:      logger,
		currency:    opts.Currency,
		startedAt:   time.Now(),
		detector:    security.NewDetector(),
		idempotency: cache.NewIdempotencyStore(opts.IdempotencyMaxEntries, opts.IdempotencyTTL),
		caches:      cache.NewManager(logger.Logger),
		readiness:   opts.ReadinessChecks,
	}
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: opts.RateLimitPerMinute,
		Methods:           ratelimit.MutatingMethods,
	})
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	s.caches.Register(s.idempotency)
	s.caches.StartCleanup(cacheCleanupInterval)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /envelopes", s.handleListEnvelopes)
	mux.HandleFunc("POST /envelopes", s.handleCreateEnvelope)
	mux.HandleFunc("GET /envelopes/{id}", s.handleGetEnvelope)
	mux.HandleFunc("PUT /envelopes/{id}", s.handleUpdateEnvelope)
	mux.HandleFunc("DELETE /envelopes/{id}", s.handleDeleteEnvelope)
	mux.HandleFunc("POST /envelopes/{id}/subtract", s.handleSubtract)
	mux.HandleFunc("POST /envelopes/transfer/{from}/{to}", s.handleTransfer)
	mux.HandleFunc("POST /envelopes/distribute", s.handleDistribute)
	mux.HandleFunc("GET /activity", s.handleActivity)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.buildMiddlewareChain(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// buildMiddlewareChain wraps h so that tracing runs first and idempotency
// replay runs last, right before routing.
func (s *Server) buildMiddlewareChain(h http.Handler) http.Handler {
	h = s.idempotencyMiddleware(h)
	h = s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(h)
	h = s.detector.Middleware(s.logger)(h)
	h = security.CORSMiddleware(security.DefaultCORSConfig())(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return s.tracer.Middleware(h)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		s.caches.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
