package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/openalpha/sharepool/api/handlers"
	"github.com/openalpha/sharepool/api/middleware"
	"github.com/openalpha/sharepool/api/websocket"
	"github.com/openalpha/sharepool/indexer"
	"github.com/openalpha/sharepool/metrics"
)

// Server is the HTTP and WebSocket front of the ledger service
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *Config

	service *LedgerService
	index   indexer.Store
	hub     *websocket.Hub

	poolHandler    *handlers.PoolHandler
	accountHandler *handlers.AccountHandler
	indexHandler   *handlers.IndexHandler

	rateLimiter *middleware.RateLimiter
	metrics     *metrics.Collector
	logger      log.Logger
	startedAt   time.Time
}

// NewServer wires handlers for service. index serves the event log and
// aggregates; hub serves /ws. collector may be nil.
func NewServer(config *Config, service *LedgerService, index indexer.Store, hub *websocket.Hub, logger log.Logger, collector *metrics.Collector) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	faucetMax := math.Int{}
	if config.Ledger.FaucetEnabled {
		var err error
		if faucetMax, err = config.FaucetMaxAmount(); err != nil {
			return nil, err
		}
	}

	s := &Server{
		config:         config,
		service:        service,
		index:          index,
		hub:            hub,
		poolHandler:    handlers.NewPoolHandler(service, service.Denom()),
		accountHandler: handlers.NewAccountHandler(service, service, config.Ledger.FaucetEnabled, faucetMax),
		indexHandler:   handlers.NewIndexHandler(index),
		metrics:        collector,
		logger:         logger.With("module", "api"),
		startedAt:      time.Now(),
	}
	if !config.RateLimit.Disabled {
		s.rateLimiter = middleware.NewRateLimiter(config.RateLimiterConfig())
		if collector != nil {
			s.rateLimiter.OnReject = collector.RecordRateLimitHit
		}
	}
	s.router = s.routes()
	return s, nil
}

// HubConfig converts the WebSocket section to the hub configuration
func (c *Config) HubConfig() *websocket.HubConfig {
	hc := websocket.DefaultHubConfig()
	hc.MaxClientsPerIP = c.WebSocket.MaxClientsPerIP
	hc.MaxSubscriptions = c.WebSocket.MaxSubscriptions
	hc.MessageRateLimit = c.WebSocket.MessageRateLimit
	hc.AllowedOrigins = c.Server.CORSOrigins
	return hc
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowed)
	r.Use(s.instrument)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/health", s.handleHealth).Methods(http.MethodGet)
	if s.config.Metrics.Enabled && s.metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	if s.hub != nil {
		r.HandleFunc("/ws", s.hub.ServeWS).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()

	// Views
	v1.HandleFunc("/pools", s.poolHandler.ListPools).Methods(http.MethodGet)
	v1.HandleFunc("/pools/next-id", s.poolHandler.NextPoolID).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{id:[0-9]+}", s.poolHandler.GetPool).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{id:[0-9]+}/members", s.poolHandler.GetMembers).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{id:[0-9]+}/balance", s.poolHandler.GetBalance).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{id:[0-9]+}/available/{address}", s.poolHandler.GetAvailable).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{address}/balance", s.accountHandler.GetBalance).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{address}/pools", s.accountHandler.GetPools).Methods(http.MethodGet)
	v1.HandleFunc("/custody", s.poolHandler.Custody).Methods(http.MethodGet)

	// Event log and aggregates
	v1.HandleFunc("/events", s.indexHandler.Events).Methods(http.MethodGet)
	v1.HandleFunc("/index/pools", s.indexHandler.Pools).Methods(http.MethodGet)
	v1.HandleFunc("/index/pools/{id:[0-9]+}", s.indexHandler.Pool).Methods(http.MethodGet)
	v1.HandleFunc("/index/donors/{address}", s.indexHandler.Donor).Methods(http.MethodGet)
	v1.HandleFunc("/index/leaderboard", s.indexHandler.Leaderboard).Methods(http.MethodGet)

	// Mutations
	m := v1.NewRoute().Subrouter()
	if s.rateLimiter != nil {
		m.Use(middleware.MutationRateLimitMiddleware(s.rateLimiter))
	}
	m.HandleFunc("/pools", s.poolHandler.CreatePool).Methods(http.MethodPost)
	m.HandleFunc("/pools/{id:[0-9]+}/donate", s.poolHandler.Donate).Methods(http.MethodPost)
	m.HandleFunc("/pools/{id:[0-9]+}/withdraw", s.poolHandler.Withdraw).Methods(http.MethodPost)
	m.HandleFunc("/pools/{id:[0-9]+}/deactivate", s.poolHandler.Deactivate).Methods(http.MethodPost)
	m.HandleFunc("/faucet", s.accountHandler.Faucet).Methods(http.MethodPost)

	return r
}

// Handler returns the full middleware chain: CORS -> account -> rate limit -> router
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if s.rateLimiter != nil {
		h = middleware.RateLimitMiddleware(s.rateLimiter)(h)
	}
	h = middleware.AccountMiddleware(h)
	return middleware.CORSMiddleware(s.config.Server.CORSOrigins)(h)
}

// Start serves until Stop is called. The hub runs until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.Server.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}
	if s.hub != nil {
		go s.hub.Run(ctx)
	}

	s.logger.Info("API server starting",
		"listen", s.config.Server.Listen,
		"denom", s.service.Denom(),
		"faucet", s.config.Ledger.FaucetEnabled,
		"rate_limit", s.rateLimiter != nil,
		"metrics", s.config.Metrics.Enabled,
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth reports ledger height, event sequence and custody balance
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"height":    s.service.Height(),
		"event_seq": s.service.Seq(),
		"denom":     s.service.Denom(),
	}
	if report, err := s.service.Custody(r.Context()); err == nil {
		health["custody_balanced"] = report.Balanced
		if !report.Balanced {
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	if s.index != nil {
		if last, err := s.index.LastSeq(r.Context()); err == nil {
			health["indexed_seq"] = last
		}
	}
	if s.hub != nil {
		health["ws_clients"] = s.hub.GetClientCount()
	}
	writeJSON(w, status, health)
}

// statusRecorder captures the response status for instrumentation
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps WebSocket upgrades working through the recorder
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if s.metrics != nil {
			s.metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(rec.status), timer.ElapsedMs())
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Error("request failed", "method", r.Method, "route", route, "status", rec.status)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
