package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/internal/types"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/repositories/catalog"
	"github.com/fadedpez/spinz/pkg/services/achievement"
	"github.com/fadedpez/spinz/pkg/services/settlement"
	"github.com/fadedpez/spinz/pkg/services/statistics"
	"github.com/fadedpez/spinz/pkg/services/wallet"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	accountHeader     = "X-Account-ID"
	idempotencyHeader = "Idempotency-Key"
	operatorHeader    = "X-Operator-Token"
	maxBodyBytes      = 64 << 10
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spinz_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spinz_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Settler places bets and reads back settled results
type Settler interface {
	PlaceBet(ctx context.Context, req *entities.BetRequest) (*entities.Receipt, error)
	GetResult(ctx context.Context, resultID string) (*entities.GameResult, error)
	Reconcile(ctx context.Context, compensate bool) (*settlement.ReconcileReport, error)
}

// Wallets is the wallet ledger surface the API exposes
type Wallets interface {
	OpenWallet(ctx context.Context, accountID, currency string) (*entities.Wallet, error)
	GetWallet(ctx context.Context, walletID string) (*entities.Wallet, error)
	ListWallets(ctx context.Context, accountID string) ([]*entities.Wallet, error)
	CloseWallet(ctx context.Context, walletID string) (*entities.Wallet, error)
	Deposit(ctx context.Context, req *wallet.TransferRequest) (*entities.Transaction, bool, error)
	Withdraw(ctx context.Context, req *wallet.TransferRequest) (*entities.Transaction, bool, error)
	GetRecentTransactions(ctx context.Context, walletID string, limit int) ([]*entities.Transaction, error)
	GetTransactionsByResult(ctx context.Context, resultID string) ([]*entities.Transaction, error)
	GetAccountResults(ctx context.Context, accountID string, limit int) ([]*entities.GameResult, error)
	GetFailedResults(ctx context.Context, limit int) ([]*entities.GameResult, error)
	Compensate(ctx context.Context, resultID, reason string) (*entities.Transaction, error)
	Reconcile(ctx context.Context, walletID string) (*wallet.ReconcileReport, error)
}

// Handler serves the HTTP API
type Handler struct {
	settler      Settler
	wallets      Wallets
	games        catalog.Catalog
	stats        *statistics.Service
	achievements *achievement.Evaluator
	logger       *logging.Logger

	operatorToken string
}

// Option configures optional parts of the handler
type Option func(*Handler)

// WithOperatorToken enables the operator routes, guarded by the given token
func WithOperatorToken(token string) Option {
	return func(h *Handler) { h.operatorToken = token }
}

// NewHandler creates a handler. stats and achievements may be nil, which disables their routes.
func NewHandler(settler Settler, wallets Wallets, games catalog.Catalog, stats *statistics.Service,
	achievements *achievement.Evaluator, logger *logging.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = logging.Default
	}
	h := &Handler{
		settler:      settler,
		wallets:      wallets,
		games:        games,
		stats:        stats,
		achievements: achievements,
		logger:       logger.With("component", "api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the route table
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/bets", h.PlaceBet).Methods("POST")

	v1.HandleFunc("/wallets", h.OpenWallet).Methods("POST")
	v1.HandleFunc("/wallets/{id}", h.GetWallet).Methods("GET")
	v1.HandleFunc("/wallets/{id}", h.CloseWallet).Methods("DELETE")
	v1.HandleFunc("/wallets/{id}/deposits", h.Deposit).Methods("POST")
	v1.HandleFunc("/wallets/{id}/withdrawals", h.Withdraw).Methods("POST")
	v1.HandleFunc("/wallets/{id}/transactions", h.GetTransactions).Methods("GET")
	v1.HandleFunc("/wallets/{id}/reconcile", h.ReconcileWallet).Methods("GET")
	v1.HandleFunc("/deposits", h.Deposit).Methods("POST")

	v1.HandleFunc("/results/{id}", h.GetResult).Methods("GET")

	v1.HandleFunc("/accounts/{id}/wallets", h.ListWallets).Methods("GET")
	v1.HandleFunc("/accounts/{id}/results", h.GetAccountResults).Methods("GET")
	v1.HandleFunc("/accounts/{id}/achievements", h.GetAchievements).Methods("GET")
	v1.HandleFunc("/accounts/{id}/statistics", h.GetStatistics).Methods("GET")

	v1.HandleFunc("/games", h.ListGames).Methods("GET")
	v1.HandleFunc("/games/{id}", h.GetGame).Methods("GET")
	v1.HandleFunc("/games/{id}/rtp", h.GetRTP).Methods("GET")
	v1.HandleFunc("/games/{id}/leaderboard", h.GetLeaderboard).Methods("GET")

	if h.operatorToken != "" {
		op := v1.PathPrefix("/operator").Subrouter()
		op.Use(h.requireOperator)
		op.HandleFunc("/results/failed", h.ListFailedResults).Methods("GET")
		op.HandleFunc("/results/{id}/compensate", h.CompensateResult).Methods("POST")
		op.HandleFunc("/reconcile", h.ReconcileBets).Methods("POST")
	}

	return r
}

// HealthCheck reports liveness
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency labeled by route template
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}
		if endpoint == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		httpLatency.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpReqTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

// accountID returns the caller's account id, answering 401 when it is missing
func accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(accountHeader)
	if id == "" {
		respondError(w, http.StatusUnauthorized, "Missing "+accountHeader+" header")
		return "", false
	}
	return id, true
}

// idempotencyKey returns the request's idempotency key, answering 400 when it is missing
func idempotencyKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.Header.Get(idempotencyHeader)
	if key == "" {
		respondError(w, http.StatusBadRequest, "Missing "+idempotencyHeader+" header")
		return "", false
	}
	if err := wallet.ValidateClientKey(key); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid "+idempotencyHeader+" header")
		return "", false
	}
	return key, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}

// statusFor maps a service error code to an HTTP status
func statusFor(err error) int {
	switch types.CodeOf(err) {
	case types.ErrValidation, types.ErrIdempotencyMismatch, types.ErrInsufficientFunds:
		return http.StatusUnprocessableEntity
	case types.ErrGameNotFound, types.ErrWalletNotFound, types.ErrResultNotFound, types.ErrTxNotFound:
		return http.StatusNotFound
	case types.ErrBetInProgress, types.ErrBusy, types.ErrWalletClosed, types.ErrDuplicateIdempotency,
		types.ErrLedgerWriteConflict, types.ErrCompensationNotNeeded, types.ErrLedgerMismatch:
		return http.StatusConflict
	case types.ErrEntropyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	ResultID string `json:"result_id,omitempty"`
}

// respondServiceError writes a typed service error. Internal details stay in the log.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: "Internal Server Error", Code: string(types.ErrInternalError)}

	var typed *types.Error
	if errors.As(err, &typed) {
		resp.Code = string(typed.Code)
		resp.ResultID = typed.ResultID
		if status != http.StatusInternalServerError {
			resp.Error = typed.Message
		}
	}
	if status == http.StatusInternalServerError {
		h.logger.LogError(err)
	}
	respondJSON(w, status, resp)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, errorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
