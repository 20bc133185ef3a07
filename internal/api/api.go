// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api implements the Query API (C10, §6): a read-mostly HTTP
// surface over the relational store plus two derived views (TVL,
// indexer status) backed by internal/valuation and internal/scheduler,
// and a bearer-token-gated admin surface for indexer lifecycle control.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/metrics"
	"github.com/hedgeledger/chainindexer/internal/scheduler"
	"github.com/hedgeledger/chainindexer/internal/store"
	"github.com/hedgeledger/chainindexer/internal/valuation"
)

// Persister is the narrow slice of *store.Store the Query API reads
// from, continuing this repo's DB-mocking-gap pattern so handler tests
// substitute an in-memory fake instead of a live Postgres pool.
type Persister interface {
	OpenAlerts(ctx context.Context) ([]store.OperatorAlert, error)
	StakesForWallet(ctx context.Context, wallet common.Address) ([]store.Stake, error)
	RawEventsByHeroID(ctx context.Context, heroID string) ([]store.RawEvent, error)
	GetPaymentRequest(ctx context.Context, id int64) (*store.PaymentRequest, error)
}

// Scheduler is the narrow slice of *scheduler.Scheduler the status and
// admin endpoints need.
type Scheduler interface {
	IndexerStatus() []scheduler.IndexerStatus
	StartIndexer(ctx context.Context, name string) error
	StopIndexer(name string) error
	ResetIndexer(ctx context.Context, name string) error
}

// ValuationEngine is the narrow slice of *valuation.Engine the pool
// TVL endpoint needs.
type ValuationEngine interface {
	TVL(ctx context.Context, chainID uint64, poolID uint32) (valuation.TVLResult, error)
}

// Server wires every §6 endpoint onto a gorilla/mux router.
type Server struct {
	router     *mux.Router
	store      Persister
	scheduler  Scheduler
	valuer     ValuationEngine
	adminToken string
	log        logging.Logger
}

// New constructs a Server. adminToken gates the /admin subrouter; an
// empty adminToken disables every admin endpoint rather than accepting
// any bearer value, since an unset token is a misconfiguration, not an
// open door.
func New(st Persister, sched Scheduler, valuer ValuationEngine, adminToken string, log logging.Logger) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		store:      st,
		scheduler:  sched,
		valuer:     valuer,
		adminToken: adminToken,
		log:        log,
	}
	s.routes()
	return s
}

// ServeHTTP satisfies http.Handler, so a Server can be passed straight
// to http.ListenAndServe.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.router.HandleFunc("/status/indexers", s.handleStatusIndexers).Methods(http.MethodGet)
	s.router.HandleFunc("/pools/{chainId}/{poolId}/tvl", s.handlePoolTVL).Methods(http.MethodGet)
	s.router.HandleFunc("/wallets/{addr}/stakes", s.handleWalletStakes).Methods(http.MethodGet)
	s.router.HandleFunc("/rewards/hero/{heroId}", s.handleHeroRewards).Methods(http.MethodGet)
	s.router.HandleFunc("/payments/requests/{id}", s.handlePaymentRequest).Methods(http.MethodGet)

	admin := s.router.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdminToken)
	admin.HandleFunc("/indexers/{name}/start", s.handleAdminStart).Methods(http.MethodPost)
	admin.HandleFunc("/indexers/{name}/stop", s.handleAdminStop).Methods(http.MethodPost)
	admin.HandleFunc("/indexers/{name}/reset", s.handleAdminReset).Methods(http.MethodPost)

	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
