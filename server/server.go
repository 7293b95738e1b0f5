// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package server provides the fhevm gateway service.
//
// It holds the network key pair and exposes:
// - the public key, for clients that encrypt locally
// - encryption of typed values through a shared fhevm client
// - signature-checked decryption over HTTP and websocket sessions
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/internal/storage"
	"github.com/luxfi/fhevm/ratelimit"
)

// DefaultMaxBodyBytes bounds request bodies. Bit-encrypted ciphertexts are
// large: an eaddress under PN10QP27 is a few megabytes of hex.
const DefaultMaxBodyBytes = 16 << 20

// Config holds server configuration
type Config struct {
	// Network is the configuration the shared client encrypts for. Its
	// Contracts, when non-empty, is the allow-list of contracts whose
	// ciphertexts may be decrypted.
	Network        fhevm.Config
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithStorage sets the ciphertext store.
func WithStorage(st storage.Storage) Option {
	return func(s *Server) { s.store = st }
}

// WithLimiter sets the rate limiter for encrypt and decrypt.
func WithLimiter(l ratelimit.Allower) Option {
	return func(s *Server) { s.limiter = l }
}

// WithRegistry sets the client registry. The default registry dials the
// server's own engine.
func WithRegistry(r *fhevm.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// WithPrometheus registers metrics with reg and serves them from gatherer.
func WithPrometheus(reg prometheus.Registerer, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.registerer = reg
		s.gatherer = gatherer
	}
}

// Server is the fhevm gateway server
type Server struct {
	cfg      Config
	engine   fhevm.Engine
	log      *zap.Logger
	registry *fhevm.Registry
	store    storage.Storage
	limiter  ratelimit.Allower

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	metrics    *Metrics

	upgrader websocket.Upgrader
	allowed  map[string]bool
}

// New creates a server around engine, which must hold the secret key for
// decryption to work.
func New(cfg Config, engine fhevm.Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, errors.New("server requires an engine")
	}
	if err := cfg.Network.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		cfg:    cfg,
		engine: engine,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = fhevm.NewRegistry(
			fhevm.WithDialer(fhevm.DialerFunc(func(context.Context, fhevm.Config) (fhevm.Engine, error) {
				return engine, nil
			})),
			fhevm.WithLogger(s.log),
		)
	}
	if s.store == nil {
		s.store = storage.NewMemoryStorage(256)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(ratelimit.DefaultMaxRequests, ratelimit.DefaultWindow)
	}
	if s.registerer == nil {
		reg := prometheus.NewRegistry()
		s.registerer, s.gatherer = reg, reg
	}
	s.metrics = NewMetrics(s.registerer)

	s.allowed = make(map[string]bool, len(cfg.Network.Contracts))
	for _, addr := range cfg.Network.Contracts {
		s.allowed[normalizeAddress(addr)] = true
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	router := httprouter.New()

	// Health check
	router.Handler(http.MethodGet, "/health", s.instrument("/health", s.healthHandler()))
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Key endpoints
	s.route(router, http.MethodGet, "/publickey", s.handlePublicKey)
	s.route(router, http.MethodGet, "/api/keys", s.handleKeys)
	s.route(router, http.MethodGet, "/api/bounds", s.handleBounds)

	// FHE operations
	s.route(router, http.MethodPost, "/api/fhe/encrypt", s.handleEncrypt)
	s.route(router, http.MethodPost, "/api/fhe/decrypt", s.handleDecrypt)
	s.route(router, http.MethodPost, "/decrypt", s.handleDecrypt)
	s.route(router, http.MethodPost, "/api/ciphertexts", s.handleRegister)
	s.route(router, http.MethodGet, "/api/ciphertexts/:handle", s.handleCiphertext)

	// Gateway sessions
	s.route(router, http.MethodGet, "/ws", s.handleWebsocket)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(router)
}

func (s *Server) route(router *httprouter.Router, method, path string, h httprouter.Handle) {
	router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.instrument(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h(w, r, ps)
		})).ServeHTTP(w, r)
	})
}

// instrument assigns a request id, records metrics and logs the request.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.metrics.requestLatency.WithLabelValues(route).Observe(elapsed.Seconds())
		s.log.Debug("request",
			zap.String("id", id),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) healthHandler() http.Handler {
	checker := health.NewChecker(
		health.WithCheck(health.Check{
			Name: "fhevm-engine",
			Check: func(ctx context.Context) error {
				_, err := s.registry.PublicKey(ctx, s.cfg.Network)
				return err
			},
		}),
		health.WithCheck(health.Check{
			Name: "ciphertext-storage",
			Check: func(ctx context.Context) error {
				_, err := s.store.Exists(ctx, storage.ComputeHandle(fhevm.TypeBool, nil))
				return err
			},
		}),
	)
	return health.NewHandler(checker)
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pkBytes, err := hexutil.Decode(s.engine.PublicKey())
	if err != nil {
		writeError(s.log, w, http.StatusInternalServerError, "INTERNAL_ERROR", "invalid public key encoding")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(pkBytes)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Close releases the ciphertext store.
func (s *Server) Close() error {
	return s.store.Close()
}
