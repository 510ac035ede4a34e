// Package api exposes the faucet's HTTP front-end: a single intake
// endpoint plus the health and version endpoints supervision relies on.
// It never talks to the chain itself; every request is translated into a
// submission against the scheduler's intake channel.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
)

// Scheduler is the subset of *scheduler.Scheduler the HTTP surface needs.
// Declared locally so this package does not import scheduler's
// implementation types, only the capability it actually uses.
type Scheduler interface {
	Submit(address common.Address) bool
	ObserverReady() bool
	Counts() (poolLen, inflightLen, fundingLen, queueLen int)
}

// Server is the faucet's HTTP front-end.
type Server struct {
	scheduler Scheduler
	version   string
}

// NewServer builds a Server bound to scheduler. version is reported by the
// /version endpoint for deploy verification.
func NewServer(scheduler Scheduler, version string) *Server {
	return &Server{scheduler: scheduler, version: version}
}

// Router builds the gorilla/mux router for this server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/faucet/request/{address}", s.handleFaucetRequest).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	return r
}

// handleFaucetRequest parses a hex Ethereum address and pushes it into the
// scheduler's intake channel. It performs no validation beyond address
// parsing: everything downstream of intake trusts this boundary check.
func (s *Server) handleFaucetRequest(w http.ResponseWriter, r *http.Request) {
	addressHex := mux.Vars(r)["address"]
	if !common.IsHexAddress(addressHex) {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	address := common.HexToAddress(addressHex)

	if !s.scheduler.Submit(address) {
		log.Error("intake channel full, dropping request", "address", address)
		http.Error(w, "faucet is busy, try again later", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// healthResponse reports enough for a supervisor to distinguish "starting
// up" from "stuck": observer readiness gates dispatch, so a faucet that
// never reports ready after bootstrap is not actually serving requests.
type healthResponse struct {
	ObserverReady bool `json:"observer_ready"`
	PoolSize      int  `json:"pool_size"`
	InflightSize  int  `json:"inflight_size"`
	FundingSize   int  `json:"funding_in_progress_size"`
	QueueSize     int  `json:"queue_size"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	poolLen, inflightLen, fundingLen, queueLen := s.scheduler.Counts()
	resp := healthResponse{
		ObserverReady: s.scheduler.ObserverReady(),
		PoolSize:      poolLen,
		InflightSize:  inflightLen,
		FundingSize:   fundingLen,
		QueueSize:     queueLen,
	}

	status := http.StatusOK
	if !resp.ObserverReady {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("failed to encode health response", "err", err)
	}
}

type versionResponse struct {
	Version string `json:"version"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(versionResponse{Version: s.version})
}
