package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	nativecommon "floorbank/native/common"
	"floorbank/native/presale"
	"floorbank/native/vault"
	"floorbank/observability"
	"floorbank/observability/logging"
	"floorbank/services/vault/audit"
)

const moduleName = "vault"

// Config captures the dependencies required to construct the server.
type Config struct {
	ListenAddress string
	Engine        *vault.Engine
	Pool          *presale.Pool
	Audit         *audit.Sink
	// Stream, when set, backs the websocket event feed. The caller adds it to
	// the engine emitter.
	Stream        *Broadcaster
	StreamOrigins []string
	Pauses        *nativecommon.Pauses
	Auth          *Authenticator
	RateLimit     RateLimit
	Logger        *slog.Logger
	Now           func() time.Time
}

// Server exposes the vault engine over HTTP. Engine calls are serialised:
// mutations take the write lock, reads the read lock.
type Server struct {
	cfg     Config
	engine  *vault.Engine
	pool    *presale.Pool
	audit   *audit.Sink
	stream  *Broadcaster
	pauses  *nativecommon.Pauses
	auth    *Authenticator
	limiter *rateLimiter
	logger  *slog.Logger
	now     func() time.Time

	tracer     trace.Tracer
	operations metric.Int64Counter

	mu     sync.RWMutex
	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if cfg.Auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	srv := &Server{
		cfg:     cfg,
		engine:  cfg.Engine,
		pool:    cfg.Pool,
		audit:   cfg.Audit,
		stream:  cfg.Stream,
		pauses:  cfg.Pauses,
		auth:    cfg.Auth,
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  cfg.Logger,
		now:     cfg.Now,
		tracer:  otel.Tracer("floorbank/vault"),
	}
	operations, err := otel.Meter("floorbank/vault").Int64Counter("floorbank.vault.operations",
		metric.WithDescription("Vault operations executed through the API."))
	if err != nil {
		return nil, fmt.Errorf("operation counter: %w", err)
	}
	srv.operations = operations
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "vaultd")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("vaultd: http server listening", slog.String("address", s.cfg.ListenAddress))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.middleware)
		api.Use(s.auth.Middleware)

		api.Get("/protocol", s.handleProtocol)
		api.Get("/price", s.handlePrice)
		api.Get("/loans/{account}", s.handleLoan)
		api.Get("/buckets", s.handleBuckets)
		api.Get("/balances/{account}", s.handleBalance)
		api.Get("/quotes/{kind}", s.handleQuote)
		api.Get("/events", s.handleEvents)
		api.Get("/events/verify", s.handleEventsVerify)
		api.Get("/events/export", s.handleEventsExport)
		api.Get("/events/stream", s.handleEventStream)

		api.Post("/buy", s.handleBuy)
		api.Post("/sell", s.handleSell)
		api.Post("/transfer", s.handleTransfer)
		api.Post("/borrow", s.handleBorrow)
		api.Post("/borrow-more", s.handleBorrowMore)
		api.Post("/remove-collateral", s.handleRemoveCollateral)
		api.Post("/repay", s.handleRepay)
		api.Post("/close", s.handleClose)
		api.Post("/flash-close", s.handleFlashClose)
		api.Post("/extend", s.handleExtend)
		api.Post("/leverage", s.handleLeverage)
		api.Post("/sweep", s.handleSweep)

		api.Route("/presale", func(p chi.Router) {
			p.Get("/", s.handlePresaleStatus)
			p.Post("/contribute", s.handlePresaleContribute)
			p.Post("/finalize", s.handlePresaleFinalize)
			p.Post("/claim", s.handlePresaleClaim)
		})

		api.Route("/admin", func(a chi.Router) {
			a.Post("/start", s.handleStart)
			a.Post("/fees/{kind}", s.handleSetFee)
			a.Post("/treasury", s.handleSetTreasury)
			a.Post("/master-minter", s.handleSetMasterMinter)
			a.Post("/mint-cap", s.handleRaiseMintCap)
			a.Post("/owner", s.handleTransferOwnership)
			a.Post("/pause", s.handlePause)
		})
	})
	return r
}

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// requestID echoes a caller supplied X-Request-ID or mints a uuid.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.ModuleMetrics().Observe(moduleName, route, status, time.Since(start))
		s.logger.Debug("vaultd request",
			slog.String("method", r.Method),
			slog.String("path", route),
			slog.Int("status", status),
			slog.String("request_id", requestIDFrom(r.Context())),
			logging.MaskField("authorization", r.Header.Get("Authorization")))
	})
}

// mutate runs fn under the write lock inside an operation span and records
// the outcome.
func (s *Server) mutate(ctx context.Context, op string, fn func() error) error {
	_, span := s.tracer.Start(ctx, "vault."+op, trace.WithAttributes(attribute.String("vault.operation", op)))
	defer span.End()

	var err error
	func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		err = fn()
	}()

	observability.Vault().RecordOperation(op, err)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if vault.IsInvariantBreach(err) {
			s.logger.Error("vaultd invariant breach", slog.String("op", op), slog.Any("error", err))
		}
	}
	s.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
	return err
}

func (s *Server) read(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}
