package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/spacedata/sdchain/block"
	"github.com/spacedata/sdchain/chain"
	"github.com/spacedata/sdchain/exception"
	"github.com/spacedata/sdchain/jsonx"
	"github.com/spacedata/sdchain/logx"
	"github.com/spacedata/sdchain/mempool"
	"github.com/spacedata/sdchain/monitoring"
	"github.com/spacedata/sdchain/ratelimit"
	"github.com/spacedata/sdchain/types"
)

const maxEntryBodySize = 1 << 20

type statusResponse struct {
	Length     int    `json:"length"`
	LastIndex  uint64 `json:"last_index"`
	LastHash   string `json:"last_hash"`
	Pending    int    `json:"pending"`
	Difficulty int    `json:"difficulty"`
	Work       string `json:"work"`
	Timestamp  int64  `json:"timestamp"`
}

type submitResponse struct {
	Pending   int    `json:"pending"`
	NextIndex uint64 `json:"next_index"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// APIServer serves a read-mostly REST view of the chain next to /metrics.
type APIServer struct {
	Chain      *chain.Chain
	ListenAddr string
	// Limiter, when set, caps POST /v1/entries per client IP.
	Limiter *ratelimit.RateLimiter

	srv *http.Server
}

func NewAPIServer(c *chain.Chain, addr string) *APIServer {
	return &APIServer{Chain: c, ListenAddr: addr}
}

// Router builds the route table.
func (s *APIServer) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(requestLogger)

	router.Methods(http.MethodGet).Path("/health").HandlerFunc(s.handleHealth)
	router.Methods(http.MethodGet).Path("/metrics").Handler(monitoring.Handler())

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Methods(http.MethodGet).Path("/status").HandlerFunc(s.handleStatus)
	v1.Methods(http.MethodGet).Path("/entries").HandlerFunc(s.handlePending)
	v1.Methods(http.MethodPost).Path("/entries").Handler(s.limit(http.HandlerFunc(s.handleSubmit)))
	v1.Methods(http.MethodGet).Path("/blocks").HandlerFunc(s.handleBlocks)
	v1.Methods(http.MethodGet).Path("/blocks/{index:[0-9]+}").HandlerFunc(s.handleBlock)
	return router
}

func (s *APIServer) Start() {
	s.srv = &http.Server{
		Addr:         s.ListenAddr,
		Handler:      s.Router(),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	exception.SafeGo("apiServer", func() {
		logx.Info("API", "API listen on ", s.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error("API", "API server stopped: ", err)
		}
	})
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	last, err := s.Chain.LastBlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	lastHash, err := s.Chain.Hash(last)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Length:     s.Chain.Len(),
		LastIndex:  last.Index,
		LastHash:   lastHash,
		Pending:    s.Chain.PendingLen(),
		Difficulty: s.Chain.Difficulty(),
		Work:       s.Chain.Work().Dec(),
		Timestamp:  time.Now().Unix(),
	})
}

func (s *APIServer) handlePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Chain.Pending())
}

// handleSubmit stages the request body, any JSON value, as one entry.
func (s *APIServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEntryBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	e, err := types.CanonicalEntry(body)
	if err != nil {
		monitoring.RecordRejectedEntry(monitoring.EntryInvalid)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Chain.AddEntry(e); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, mempool.ErrMempoolFull):
			status = http.StatusServiceUnavailable
		case errors.Is(err, chain.ErrInvalidEntry):
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{
		Pending:   s.Chain.PendingLen(),
		NextIndex: uint64(s.Chain.Len()) + 1,
	})
}

func (s *APIServer) handleBlocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Chain.Blocks())
}

func (s *APIServer) handleBlock(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	blk, err := s.Chain.Block(index)
	if err != nil {
		if errors.Is(err, chain.ErrBlockNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	hash, err := s.Chain.Hash(blk)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*block.Block
		Hash string `json:"hash"`
	}{blk, hash})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsonx.NewEncoder(w).Encode(v); err != nil {
		logx.Error("API", "Failed to encode response: ", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
