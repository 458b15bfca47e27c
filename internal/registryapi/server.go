// Copyright 2024 The go-probe Authors
// This file is part of the go-probe library.
//
// The go-probe library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probe library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probe library. If not, see <http://www.gnu.org/licenses/>.

// Package registryapi exposes the agent registry over HTTP and WebSocket.
package registryapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru"
	"github.com/julienschmidt/httprouter"
	"github.com/probechain/go-agentreg/core/registry"
	"github.com/probechain/go-agentreg/core/vault"
	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

const (
	maxRequestSize = 64 * 1024

	// Number of client rate limiters kept.
	limiterCacheSize = 4096

	shutdownTimeout = 5 * time.Second
)

var errRateLimited = errors.New("rate limit exceeded")

// Config holds the settings of the HTTP endpoint.
type Config struct {
	Host        string
	Port        int
	CorsOrigins []string `toml:",omitempty"`

	// Per client request rate; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// DefaultConfig contains reasonable default settings.
var DefaultConfig = Config{
	Host:      "127.0.0.1",
	Port:      8645,
	RateLimit: 20,
	RateBurst: 40,
}

// Endpoint returns the listening address.
func (c *Config) Endpoint() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server serves the registry API.
type Server struct {
	api    *PublicRegistryAPI
	config Config

	handler  http.Handler
	limiters *lru.Cache // client host -> *rate.Limiter
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewServer creates the HTTP front end of api.
func NewServer(api *PublicRegistryAPI, config Config) (*Server, error) {
	limiters, err := lru.New(limiterCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Server{
		api:      api,
		config:   config,
		limiters: limiters,
		now:      time.Now,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	router := httprouter.New()
	router.GET("/agents/:id", s.getAgent)
	router.GET("/agents/:id/capabilities", s.getCapabilities)
	router.GET("/owners/:addr/agent", s.getAgentByOwner)
	router.GET("/owners/:addr/registered", s.isRegistered)
	router.GET("/capabilities/:cap/agents", s.agentsByCapability)
	router.GET("/registry", s.getRegistry)
	router.GET("/events", s.getEvents)
	router.GET("/events/ws", s.streamEvents)
	router.GET("/balances/:addr", s.getBalance)
	router.GET("/metrics", s.getMetrics)
	router.POST("/tx", s.sendTransaction)

	var h http.Handler = router
	h = newCorsHandler(h, config.CorsOrigins)
	h = s.rateLimit(h)
	s.handler = logRequests(h)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves HTTP until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Endpoint(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	log.Info("HTTP server started", "endpoint", listener.Addr(), "cors", s.config.CorsOrigins)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(listener) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		log.Info("HTTP server stopped", "endpoint", listener.Addr())
		return err
	}
}

func newCorsHandler(srv http.Handler, allowedOrigins []string) http.Handler {
	// disable CORS support if user has not specified a custom CORS configuration
	if len(allowedOrigins) == 0 {
		return srv
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", SignatureHeader, "X-Request-Id"},
		MaxAge:         600,
	})
	return c.Handler(srv)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.CorsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.config.RateLimit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		limiter := rate.NewLimiter(rate.Limit(s.config.RateLimit), s.config.RateBurst)
		if prev, ok, _ := s.limiters.PeekOrAdd(host, limiter); ok {
			limiter = prev.(*rate.Limiter)
		}
		if !limiter.Allow() {
			writeError(w, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusWriter records the response status for request logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", reqID)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.Debug("Served HTTP request", "reqid", reqID, "method", r.Method, "path", r.URL.Path,
			"status", sw.status, "remote", r.RemoteAddr, "elapsed", common.PrettyDuration(time.Since(start)))
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errorStatus maps an error onto its HTTP status and a stable error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, registry.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, registry.ErrAlreadyRegistered):
		return http.StatusConflict, "already_registered"
	case errors.Is(err, registry.ErrInactiveAgent):
		return http.StatusConflict, "inactive_agent"
	case errors.Is(err, registry.ErrAlreadyInactive):
		return http.StatusConflict, "already_inactive"
	case errors.Is(err, registry.ErrAlreadyActive):
		return http.StatusConflict, "already_active"
	case errors.Is(err, registry.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid_amount"
	case errors.Is(err, vault.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, registry.ErrTransferFailed):
		return http.StatusBadGateway, "transfer_failed"
	case errors.Is(err, registry.ErrClosed):
		return http.StatusServiceUnavailable, "closed"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errExpired):
		return http.StatusBadRequest, "expired"
	case errors.Is(err, errBadSignature):
		return http.StatusUnauthorized, "bad_signature"
	case errors.Is(err, vault.ErrNonceTooLow):
		return http.StatusConflict, "nonce_too_low"
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	writeJSON(w, status, &errorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to write response", "err", err)
	}
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: invalid agent id %q", errBadRequest, s)
	}
	return common.BytesToHash(b), nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", errBadRequest, s)
	}
	return common.HexToAddress(s), nil
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseHash(ps.ByName("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	agent, err := s.api.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) getCapabilities(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseHash(ps.ByName("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	caps, err := s.api.GetCapabilities(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

func (s *Server) getAgentByOwner(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	owner, err := parseAddress(ps.ByName("addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	agent, err := s.api.GetAgentByOwner(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) isRegistered(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	owner, err := parseAddress(ps.ByName("addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.api.IsRegistered(r.Context(), owner))
}

func (s *Server) agentsByCapability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	writeJSON(w, http.StatusOK, s.api.AgentsByCapability(r.Context(), ps.ByName("cap")))
}

func (s *Server) getRegistry(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.api.GetRegistry(r.Context()))
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var (
		query = r.URL.Query()
		from  uint64
		limit int
		err   error
	)
	if v := query.Get("from"); v != "" {
		if from, err = strconv.ParseUint(v, 10, 64); err != nil {
			writeError(w, fmt.Errorf("%w: invalid from %q", errBadRequest, v))
			return
		}
	}
	if v := query.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			writeError(w, fmt.Errorf("%w: invalid limit %q", errBadRequest, v))
			return
		}
	}
	writeJSON(w, http.StatusOK, s.api.GetEvents(r.Context(), from, limit))
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	account, err := parseAddress(ps.ByName("addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.api.GetBalance(r.Context(), account))
}

// getMetrics dumps the process metrics. Meters only record when metrics were
// enabled at startup with --metrics.
func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	metrics.WriteJSONOnce(metrics.DefaultRegistry, w)
}

func (s *Server) sendTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestSize))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	sig, err := hexutil.Decode(r.Header.Get(SignatureHeader))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %s header: %v", errBadSignature, SignatureHeader, err))
		return
	}
	from, err := Sender(body, sig)
	if err != nil {
		writeError(w, err)
		return
	}
	var args TransactionArgs
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := args.checkExpiry(s.now()); err != nil {
		writeError(w, err)
		return
	}
	hash := crypto.Keccak256Hash(from.Bytes(), body)
	res, err := s.api.SendTransaction(r.Context(), from, args)
	if err != nil {
		log.Debug("Rejected registry transaction", "hash", hash, "from", from, "op", args.Op, "err", err)
		writeError(w, err)
		return
	}
	res.Hash = hash
	writeJSON(w, http.StatusOK, res)
}
