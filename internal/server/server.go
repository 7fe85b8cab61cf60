package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"monsearch/internal/config"
	"monsearch/internal/history"
	"monsearch/internal/hmacauth"
	"monsearch/internal/logger"
	"monsearch/internal/metrics"
	"monsearch/internal/notify"
	"monsearch/internal/payment"
	"monsearch/internal/search"
	"monsearch/internal/wallet"
)

// Searcher is the orchestrator as the server sees it.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, lang string) (*search.Response, error)
}

type Server struct {
	cfg        *config.AppConfig
	session    *wallet.Session
	searcher   Searcher
	hist       *history.History
	notifier   *notify.Notifier
	hmac       *hmacauth.Verifier
	httpServer *http.Server
	metrics    *metrics.Registry
	validate   *validator.Validate
	log        logger.Logger

	// searchMu serializes paid searches: the orchestrator treats overlapping
	// invocations as undefined behaviour, so the caller guards.
	searchMu sync.Mutex

	rpcHealthFn   func(context.Context) error
	storeHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, session *wallet.Session, searcher Searcher, hist *history.History, notifier *notify.Notifier, reg *metrics.Registry, log logger.Logger) *Server {
	if log == nil {
		log = logger.Noop{}
	}

	s := &Server{
		cfg:      cfg,
		session:  session,
		searcher: searcher,
		hist:     hist,
		notifier: notifier,
		metrics:  reg,
		validate: validator.New(),
		log:      log,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.Service.HMACSecret,
			MaxSkew: cfg.Service.HMACClockSkew,
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/wallet/connect", s.handleConnect)
		r.Get("/wallet/balance", s.handleBalance)
		r.With(s.hmac.Middleware).Post("/search", s.handleSearch)
		r.Get("/history/requests", s.handleRequestHistory)
		r.Get("/history/payments", s.handlePaymentHistory)
		r.Put("/notifications", s.handleNotifications)
		r.Get("/health", s.handleHealth)
		if reg != nil {
			r.Method(http.MethodGet, "/metrics", reg.Handler())
		}
	})

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// SetRPCHealth registers the chain connectivity probe for /health.
func (s *Server) SetRPCHealth(fn func(context.Context) error) { s.rpcHealthFn = fn }

// SetStoreHealth registers the store connectivity probe for /health.
func (s *Server) SetStoreHealth(fn func(context.Context) error) { s.storeHealthFn = fn }

func (s *Server) Start() error {
	s.log.Info("API listening", map[string]any{"addr": s.httpServer.Addr})
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type connectResponse struct {
	Address    string `json:"address"`
	Balance    string `json:"balance"`
	Unverified bool   `json:"unverified,omitempty"`
	Chain      string `json:"chain"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	address, err := s.session.Connect(ctx)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrProviderUnavailable):
			writeError(w, http.StatusServiceUnavailable, err)
		case errors.Is(err, wallet.ErrConnectionRejected),
			errors.Is(err, wallet.ErrNetworkSwitchFailed):
			writeError(w, http.StatusBadGateway, err)
		default:
			writeError(w, http.StatusBadGateway, err)
		}
		return
	}

	balance, unverified := s.session.CachedBalance()
	if s.metrics != nil {
		s.metrics.SetWalletBalance(balance.InexactFloat64())
	}

	s.notifier.Notify(ctx, notify.Event{
		Type:        "connection",
		Message:     "Wallet connected: " + address,
		UserAddress: address,
	})

	writeJSON(w, http.StatusOK, connectResponse{
		Address:    address,
		Balance:    balance.String(),
		Unverified: unverified,
		Chain:      s.cfg.Chain.Name,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if !s.session.Connected() {
		writeError(w, http.StatusConflict, search.ErrWalletNotConnected)
		return
	}
	balance, unverified := s.session.CachedBalance()
	writeJSON(w, http.StatusOK, connectResponse{
		Address:    s.session.Address(),
		Balance:    balance.String(),
		Unverified: unverified,
		Chain:      s.cfg.Chain.Name,
	})
}

type searchRequest struct {
	Query string `json:"request" validate:"required"`
	Limit int    `json:"limit" validate:"omitempty,min=1,max=10000"`
	Lang  string `json:"lang" validate:"omitempty,alpha"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.searchMu.TryLock() {
		writeError(w, http.StatusConflict, errors.New("a search is already in flight"))
		return
	}
	defer s.searchMu.Unlock()

	var payload searchRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json payload"))
		return
	}
	if err := s.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := s.searcher.Search(r.Context(), payload.Query, payload.Limit, payload.Lang)
	if err != nil {
		writeError(w, searchStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// searchStatus maps the error taxonomy onto HTTP statuses: validation 400,
// payment failures 402, endpoint trouble 502.
func searchStatus(err error) int {
	switch {
	case errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, search.ErrWalletNotConnected):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrInsufficientFunds),
		errors.Is(err, payment.ErrOnChainRevert),
		errors.Is(err, payment.ErrConfirmationTimeout),
		errors.Is(err, payment.ErrNotConnected),
		errors.Is(err, wallet.ErrTransferRejected),
		errors.Is(err, search.ErrPaymentFailed):
		return http.StatusPaymentRequired
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleRequestHistory(w http.ResponseWriter, _ *http.Request) {
	records := s.hist.Requests()
	reverseRequests(records)
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handlePaymentHistory(w http.ResponseWriter, _ *http.Request) {
	records := s.hist.Payments()
	reversePayments(records)
	writeJSON(w, http.StatusOK, records)
}

type notificationsRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	var payload notificationsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json payload"))
		return
	}
	if err := s.hist.SetNotificationsEnabled(r.Context(), payload.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{Connected: true}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}

	storeInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.storeHealthFn != nil {
		storeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.storeHealthFn(storeCtx); err != nil {
			storeInfo.Connected = false
			storeInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, struct {
		Status string `json:"status"`
		RPC    any    `json:"rpc"`
		Store  any    `json:"store"`
	}{
		Status: status,
		RPC:    rpcInfo,
		Store:  storeInfo,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func reverseRequests(records []history.RequestRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}

func reversePayments(records []history.PaymentRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
