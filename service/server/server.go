package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solapi/service/db"
	"github.com/brojonat/solapi/service/metrics"
	natspkg "github.com/brojonat/solapi/service/nats"
	"github.com/brojonat/solapi/service/solana"
	"github.com/brojonat/solapi/service/temporal"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ledger is the subset of the Solana client the HTTP handlers use.
type Ledger interface {
	GetBalance(ctx context.Context, account solanago.PublicKey) (uint64, error)
	GetAccount(ctx context.Context, account solanago.PublicKey) (*solana.Account, error)
	Transfer(ctx context.Context, params solana.TransferParams) (*solana.TransferResult, error)
	GetTransaction(ctx context.Context, signature solanago.Signature) (*solana.TransactionInfo, error)
}

// TransferStore persists the audit log of submitted transfers.
type TransferStore interface {
	CreateTransfer(ctx context.Context, params db.CreateTransferParams) (*db.Transfer, error)
	ListTransfers(ctx context.Context, params db.ListTransfersParams) ([]*db.Transfer, error)
}

// TransferSubscriber streams transfer events.
type TransferSubscriber interface {
	SubscribeTransfers(ctx context.Context, address string, handle func(*natspkg.TransferEvent) error) error
}

// Server represents the HTTP gateway.
type Server struct {
	addr        string
	ledger      Ledger
	store       TransferStore
	publisher   natspkg.Publisher
	subscriber  TransferSubscriber
	tracker     temporal.Tracker
	trackFor    time.Duration
	confirmWait time.Duration
	cluster     string
	gatherer    prometheus.Gatherer
	metrics     *metrics.Metrics
	logger      *slog.Logger
	server      *http.Server
}

// Option configures optional collaborators of the Server.
type Option func(*Server)

// WithStore records submitted transfers and enables GET /transfers.
func WithStore(store TransferStore) Option {
	return func(s *Server) { s.store = store }
}

// WithPublisher announces submitted transfers on NATS.
func WithPublisher(p natspkg.Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// WithSubscriber enables the server-sent event stream of transfer events.
func WithSubscriber(sub TransferSubscriber) Option {
	return func(s *Server) { s.subscriber = sub }
}

// WithTracker starts a tracking workflow for every submitted transfer.
func WithTracker(t temporal.Tracker) Option {
	return func(s *Server) { s.tracker = t }
}

// WithTrackTimeout bounds how long each tracking workflow polls. Zero uses
// the workflow default.
func WithTrackTimeout(d time.Duration) Option {
	return func(s *Server) { s.trackFor = d }
}

// WithConfirmTimeout tells the server how long POST /transfer may wait for
// confirmation so responses are not cut off by the write timeout.
func WithConfirmTimeout(d time.Duration) Option {
	return func(s *Server) { s.confirmWait = d }
}

// WithExplorerCluster sets the cluster used in explorer links of transfer logs.
func WithExplorerCluster(cluster string) Option {
	return func(s *Server) { s.cluster = cluster }
}

// WithGatherer exposes the given registry on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a new HTTP server. The ledger is required; every Option is optional.
// If metrics is nil, no metrics will be recorded.
func New(addr string, ledger Ledger, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		ledger:  ledger,
		metrics: m,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route table wrapped in the CORS and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	hooks := &transferHooks{
		store:        s.store,
		publisher:    s.publisher,
		tracker:      s.tracker,
		trackTimeout: s.trackFor,
		cluster:      s.cluster,
		logger:       s.logger,
	}

	mux.Handle("GET /{$}", handleRoot())
	mux.Handle("GET /health", handleHealth())
	mux.Handle("GET /balance/{address}", handleGetBalance(s.ledger, s.metrics, s.logger))
	mux.Handle("GET /account/{address}", handleGetAccount(s.ledger, s.metrics, s.logger))
	mux.Handle("POST /transfer", handleTransfer(s.ledger, hooks, s.metrics, s.logger))
	mux.Handle("GET /transaction/{signature}", handleGetTransaction(s.ledger, s.metrics, s.logger))

	if s.store != nil {
		mux.Handle("GET /transfers", handleListTransfers(s.store, s.metrics, s.logger))
		s.logger.Info("transfer audit endpoint enabled")
	}

	if s.subscriber != nil {
		mux.Handle("GET /stream/transfers/{address}", handleStreamTransfers(s.subscriber, s.logger))
		mux.Handle("GET /stream/transfers", handleStreamTransfers(s.subscriber, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	}

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(metrics.HTTPMetricsMiddleware(s.metrics, "")(mux))
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.writeTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

const (
	defaultWriteTimeout = 90 * time.Second
	// Room for signing, submission and the response itself.
	writeTimeoutMargin  = 30 * time.Second
)

// writeTimeout must outlast a transfer's confirmation wait. SSE streams are
// long lived, so the write timeout is disabled when streaming is enabled.
func (s *Server) writeTimeout() time.Duration {
	if s.subscriber != nil {
		return 0
	}
	if wait := s.confirmWait + writeTimeoutMargin; wait > defaultWriteTimeout {
		return wait
	}
	return defaultWriteTimeout
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
