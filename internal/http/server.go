package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
	"zetafin/internal/log"
	"zetafin/internal/middleware/auth"
	"zetafin/internal/middleware/ratelimit"
	"zetafin/internal/middleware/security"
	"zetafin/internal/middleware/trace"
	"zetafin/internal/services"
)

// Ledger records, reads, edits and removes entries.
type Ledger interface {
	Create(ctx context.Context, in services.CreateTransactionInput) (core.Transaction, error)
	Get(ctx context.Context, id, userID uuid.UUID) (core.Transaction, error)
	Update(ctx context.Context, in services.UpdateTransactionInput) (core.Transaction, error)
	Delete(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

// Queries answers listings and summaries.
type Queries interface {
	List(ctx context.Context, q services.ListQuery) (core.TransactionPage, error)
	Summary(ctx context.Context, userID uuid.UUID, start, end *time.Time) (core.DetailedSummary, error)
}

// Receipts ingests and manages receipt files.
type Receipts interface {
	Upload(ctx context.Context, in services.UploadInput) (core.Receipt, error)
	ProcessOCR(ctx context.Context, receiptID, userID uuid.UUID) (core.Receipt, error)
	GetReceipt(ctx context.Context, receiptID, userID uuid.UUID) (core.Receipt, error)
	ListReceipts(ctx context.Context, userID uuid.UUID) ([]core.Receipt, error)
	DeleteReceipt(ctx context.Context, receiptID, userID uuid.UUID) (bool, error)
}

// Promoter turns an OCR-processed receipt into an expense.
type Promoter interface {
	Promote(ctx context.Context, in services.PromoteInput) (services.PromoteResult, error)
}

// Goals manages shared savings goals.
type Goals interface {
	Create(ctx context.Context, in services.CreateGoalInput) (core.GoalStatus, error)
	Get(ctx context.Context, goalID, userID uuid.UUID) (core.GoalStatus, error)
	List(ctx context.Context, userID uuid.UUID) ([]core.GoalStatus, error)
	Deposit(ctx context.Context, in services.DepositInput) (services.DepositResult, error)
	Deposits(ctx context.Context, goalID, userID uuid.UUID) ([]core.Deposit, error)
	Share(ctx context.Context, goalID, actorID, userID uuid.UUID, monthly *core.Money) (core.GoalMember, error)
	SetMonthlyTarget(ctx context.Context, goalID, actorID, userID uuid.UUID, monthly *core.Money) (core.GoalMember, error)
	Members(ctx context.Context, goalID, userID uuid.UUID) ([]core.GoalMember, error)
}

// Services bundles the handlers' collaborators.
type Services struct {
	Ledger   Ledger
	Queries  Queries
	Receipts Receipts
	Promoter Promoter
	Goals    Goals
	// Ready reports whether dependencies can serve traffic. Nil means always.
	Ready func(ctx context.Context) error
}

// ServerConfig configures the HTTP shell.
type ServerConfig struct {
	Addr               string
	RateLimitPerMinute int
	// JWTSecret enables bearer tokens. Empty falls back to the X-User-ID header.
	JWTSecret string
	JWTIssuer string
	// FilesDir and FilesPath expose locally stored receipt files. Both empty
	// disables the file route.
	FilesDir  string
	FilesPath string
	// BlockSuspicious rejects requests the detector flags instead of only logging them.
	BlockSuspicious bool
}

type Server struct {
	http.Server
	svc      Services
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	auth     *auth.Authenticator
	logger   *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg ServerConfig, svc Services) *Server {
	logger := log.Default(log.ComponentHTTP)
	detector := security.NewDetector()

	s := &Server{
		svc:      svc,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		detector: detector,
		tracer:   trace.NewMiddleware(logger, detector.ExtractClientIP),
		auth:     auth.New(cfg.JWTSecret, cfg.JWTIssuer),
		logger:   logger,
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	api.HandleFunc("GET /api/transactions", s.handleListTransactions)
	api.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	api.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	api.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	api.HandleFunc("GET /api/summary", s.handleSummary)
	api.HandleFunc("POST /api/receipts", s.handleUploadReceipt)
	api.HandleFunc("GET /api/receipts", s.handleListReceipts)
	api.HandleFunc("GET /api/receipts/{id}", s.handleGetReceipt)
	api.HandleFunc("DELETE /api/receipts/{id}", s.handleDeleteReceipt)
	api.HandleFunc("POST /api/receipts/{id}/ocr", s.handleProcessOCR)
	api.HandleFunc("POST /api/receipts/{id}/transaction", s.handlePromoteReceipt)
	api.HandleFunc("POST /api/goals", s.handleCreateGoal)
	api.HandleFunc("GET /api/goals", s.handleListGoals)
	api.HandleFunc("GET /api/goals/{id}", s.handleGetGoal)
	api.HandleFunc("POST /api/goals/{id}/deposits", s.handleDeposit)
	api.HandleFunc("GET /api/goals/{id}/deposits", s.handleListDeposits)
	api.HandleFunc("POST /api/goals/{id}/members", s.handleShareGoal)
	api.HandleFunc("GET /api/goals/{id}/members", s.handleListMembers)
	api.HandleFunc("PUT /api/goals/{id}/members/{userId}", s.handleSetMonthlyTarget)
	api.HandleFunc("/api/", handleNotFound)

	var protected http.Handler = api
	protected = s.auth.Middleware(handleAuthFailure)(protected)
	protected = s.limiter.Middleware(detector.ExtractClientIP, handleRateLimited)(protected)

	mux := http.NewServeMux()
	mux.Handle("/api/", protected)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if cfg.FilesDir != "" && cfg.FilesPath != "" {
		prefix := "/" + strings.Trim(cfg.FilesPath, "/") + "/"
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.FilesDir))))
	}
	mux.HandleFunc("/", handleNotFound)

	var handler http.Handler = mux
	handler = detector.Middleware(cfg.BlockSuspicious)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and the limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// TraceMetrics exposes request counters for diagnostics.
func (s *Server) TraceMetrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.svc.Ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			NewJSONResponse().
				Status(http.StatusServiceUnavailable).
				Data(map[string]string{"status": "unavailable"}).
				Write(w)
			return
		}
	}
	NewJSONResponse().Data(map[string]string{"status": "ready"}).Write(w)
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	NotFoundError("no route for " + r.Method + " " + r.URL.Path).Write(w)
}

func handleAuthFailure(w http.ResponseWriter, r *http.Request, err error) {
	UnauthorizedError(err.Error()).Write(w)
}

func handleRateLimited(w http.ResponseWriter, r *http.Request) {
	TooManyRequestsError().Write(w)
}
