package jsonrpc

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/spacedata/sdchain/block"
	"github.com/spacedata/sdchain/chain"
	"github.com/spacedata/sdchain/errors"
	"github.com/spacedata/sdchain/exception"
	"github.com/spacedata/sdchain/logx"
	"github.com/spacedata/sdchain/mempool"
	"github.com/spacedata/sdchain/pow"
	"github.com/spacedata/sdchain/ratelimit"
	"github.com/spacedata/sdchain/types"
	"github.com/spacedata/sdchain/validator"
)

// codeServerError is the JSON-RPC code for chain-level failures; the data
// field carries the ChainError.
const codeServerError = jrpc2.Code(-32000)

// --- Params/Results ---

type addEntryParams struct {
	Data types.Entry `json:"data"`
}

type addEntryResponse struct {
	Ok         bool   `json:"ok"`
	NextIndex  uint64 `json:"next_index"`
	PendingLen int    `json:"pending"`
}

type getPendingResponse struct {
	TotalCount int           `json:"total_count"`
	Entries    []types.Entry `json:"entries"`
}

type getBlockParams struct {
	Index uint64 `json:"index"`
}

type blockResponse struct {
	Block *block.Block `json:"block"`
	Hash  string       `json:"hash"`
}

type getChainResponse struct {
	Length int            `json:"length"`
	Chain  []*block.Block `json:"chain"`
}

type getInfoResponse struct {
	Length     int    `json:"length"`
	LastIndex  uint64 `json:"last_index"`
	LastHash   string `json:"last_hash"`
	LastProof  uint64 `json:"last_proof"`
	Pending    int    `json:"pending"`
	Difficulty int    `json:"difficulty"`
	Work       string `json:"work"`
}

type validateResponse struct {
	Valid        bool   `json:"valid"`
	InvalidIndex uint64 `json:"invalid_index,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// --- Server ---

type Server struct {
	addr       string
	chain      *chain.Chain
	checker    *validator.Checker
	corsConfig CORSConfig
	limiter    *ratelimit.RateLimiter

	bridge  interface{ Close() error }
	httpSrv *http.Server
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

func NewServer(addr string, c *chain.Chain, checker *validator.Checker) *Server {
	if checker == nil {
		checker = validator.NewChecker(c.Difficulty(), nil)
	}
	return &Server{
		addr:    addr,
		chain:   c,
		checker: checker,
	}
}

// SetCORSConfig allows configuring CORS settings
func (s *Server) SetCORSConfig(config CORSConfig) {
	s.corsConfig = config
}

// SetRateLimiter limits chain.addentry and chain.mine per client IP.
func (s *Server) SetRateLimiter(rl *ratelimit.RateLimiter) {
	s.limiter = rl
}

// Handler returns the HTTP handler serving the JSON-RPC methods.
func (s *Server) Handler() http.Handler {
	jh := jhttp.NewBridge(s.buildMethodMap(), &jhttp.BridgeOptions{Server: &jrpc2.ServerOptions{}})
	s.bridge = jh

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		ip := extractClientIPFromRequest(r)
		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
			req, err := peekRequest(r)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if stderrors.As(err, &tooLarge) {
					http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			// Batches and unparsable bodies count against the limit.
			if s.limiter != nil && (req == nil || rateLimitedMethods[req.Method]) && !s.limiter.Allow(ip) {
				logx.Warn("RPC", "Rate limited ", ip)
				writeRateLimited(w, req)
				return
			}
		}
		logx.Debug("RPC", "Request from ", ip)
		jh.ServeHTTP(w, r)
	})
}

func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	exception.SafeGo("jsonrpcServer", func() {
		logx.Info("RPC", "JSON-RPC listening on ", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Error("RPC", "JSON-RPC server stopped: ", err)
		}
	})
}

func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	if s.bridge != nil {
		s.bridge.Close()
	}
	return err
}

// Build jrpc2 method map
func (s *Server) buildMethodMap() handler.Map {
	return handler.Map{
		MethodChainAddEntry: handler.New(func(ctx context.Context, p addEntryParams) (*addEntryResponse, error) {
			return s.rpcAddEntry(p)
		}),
		MethodChainPending: handler.New(func(ctx context.Context) (*getPendingResponse, error) {
			pending := s.chain.Pending()
			return &getPendingResponse{TotalCount: len(pending), Entries: pending}, nil
		}),
		MethodChainMine: handler.New(func(ctx context.Context) (*blockResponse, error) {
			return s.rpcMine(ctx)
		}),
		MethodChainGetBlock: handler.New(func(ctx context.Context, p getBlockParams) (*blockResponse, error) {
			return s.rpcGetBlock(p)
		}),
		MethodChainGetChain: handler.New(func(ctx context.Context) (*getChainResponse, error) {
			blocks := s.chain.Blocks()
			return &getChainResponse{Length: len(blocks), Chain: blocks}, nil
		}),
		MethodChainGetInfo: handler.New(func(ctx context.Context) (*getInfoResponse, error) {
			return s.rpcGetInfo()
		}),
		MethodChainValidate: handler.New(func(ctx context.Context) (*validateResponse, error) {
			return s.rpcValidate(), nil
		}),
	}
}

// --- Implementations ---

func (s *Server) rpcAddEntry(p addEntryParams) (*addEntryResponse, error) {
	if len(p.Data) == 0 {
		return nil, rpcError(errors.ErrCodeInvalidRequest, errors.ErrMsgInvalidRequest)
	}
	e, err := types.CanonicalEntry(p.Data)
	if err != nil {
		return nil, rpcError(errors.ErrCodeInvalidEntry, errors.ErrMsgInvalidEntry)
	}
	if err := s.chain.AddEntry(e); err != nil {
		return nil, toRPCError(err)
	}
	return &addEntryResponse{
		Ok:         true,
		NextIndex:  uint64(s.chain.Len()) + 1,
		PendingLen: s.chain.PendingLen(),
	}, nil
}

func (s *Server) rpcMine(ctx context.Context) (*blockResponse, error) {
	blk, err := s.chain.Mine(ctx)
	if err != nil {
		return nil, toRPCError(err)
	}
	return s.blockResponse(blk)
}

func (s *Server) rpcGetBlock(p getBlockParams) (*blockResponse, error) {
	blk, err := s.chain.Block(p.Index)
	if err != nil {
		return nil, toRPCError(err)
	}
	return s.blockResponse(blk)
}

func (s *Server) blockResponse(blk *block.Block) (*blockResponse, error) {
	h, err := s.chain.Hash(blk)
	if err != nil {
		return nil, toRPCError(err)
	}
	return &blockResponse{Block: blk, Hash: h}, nil
}

func (s *Server) rpcGetInfo() (*getInfoResponse, error) {
	last, err := s.chain.LastBlock()
	if err != nil {
		return nil, toRPCError(err)
	}
	lastHash, err := s.chain.Hash(last)
	if err != nil {
		return nil, toRPCError(err)
	}
	return &getInfoResponse{
		Length:     s.chain.Len(),
		LastIndex:  last.Index,
		LastHash:   lastHash,
		LastProof:  last.Proof,
		Pending:    s.chain.PendingLen(),
		Difficulty: s.chain.Difficulty(),
		Work:       s.chain.Work().Dec(),
	}, nil
}

func (s *Server) rpcValidate() *validateResponse {
	err := s.checker.Check(s.chain.Blocks())
	if err == nil {
		return &validateResponse{Valid: true}
	}
	resp := &validateResponse{Reason: err.Error()}
	var invalid *validator.InvalidBlockError
	if stderrors.As(err, &invalid) {
		resp.InvalidIndex = invalid.Index
		resp.Reason = invalid.Reason
	}
	return resp
}

// --- Helpers ---

func rpcError(code errors.ChainErrorCode, message string) error {
	jcode := codeServerError
	if code == errors.ErrCodeInvalidRequest || code == errors.ErrCodeInvalidEntry {
		jcode = jrpc2.InvalidParams
	}
	return jrpc2.Errorf(jcode, "%s", message).WithData(errors.ChainError{Code: code, Message: message})
}

func toRPCError(err error) error {
	var searchErr *pow.SearchError
	var invalid *validator.InvalidBlockError
	switch {
	case stderrors.Is(err, mempool.ErrMempoolFull):
		return rpcError(errors.ErrCodeMempoolFull, errors.ErrMsgMempoolFull)
	case stderrors.Is(err, chain.ErrInvalidEntry):
		return rpcError(errors.ErrCodeInvalidEntry, errors.ErrMsgInvalidEntry)
	case stderrors.Is(err, chain.ErrBlockNotFound):
		return rpcError(errors.ErrCodeBlockNotFound, errors.ErrMsgBlockNotFound)
	case stderrors.Is(err, chain.ErrInvalidProof):
		return rpcError(errors.ErrCodeInvalidProof, errors.ErrMsgInvalidProof)
	case stderrors.Is(err, chain.ErrPrevHashMismatch):
		return rpcError(errors.ErrCodePrevHashMismatch, errors.ErrMsgPrevHashMismatch)
	case stderrors.As(err, &invalid):
		return rpcError(errors.ErrCodeChainInvalid, fmt.Sprintf(errors.ErrMsgChainInvalid, invalid.Index, invalid.Reason))
	case stderrors.As(err, &searchErr):
		if stderrors.Is(err, pow.ErrMaxAttempts) || stderrors.Is(err, pow.ErrExhausted) {
			return rpcError(errors.ErrCodeMiningExhausted, fmt.Sprintf(errors.ErrMsgMiningExhausted, searchErr.Attempts))
		}
		return rpcError(errors.ErrCodeMiningCancelled, errors.ErrMsgMiningCancelled)
	}
	logx.Error("RPC", "Unhandled error: ", err)
	return rpcError(errors.ErrCodeInternal, errors.ErrMsgInternal)
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsConfig.AllowedOrigins) > 0 {
		if s.corsConfig.AllowedOrigins[0] == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			origin := r.Header.Get("Origin")
			for _, allowedOrigin := range s.corsConfig.AllowedOrigins {
				if origin == allowedOrigin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
	}
	if len(s.corsConfig.AllowedMethods) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(s.corsConfig.AllowedMethods, ", "))
	}
	if len(s.corsConfig.AllowedHeaders) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(s.corsConfig.AllowedHeaders, ", "))
	}
	if s.corsConfig.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(s.corsConfig.MaxAge))
	}
}

// --- Env helpers ---

// CORSFromEnv reads environment variables and constructs a CORSConfig.
// Returns (cfg, true) if any CORS-related env var is set; otherwise (zero, false).
//
// Env vars:
// - CORS_ALLOWED_ORIGINS: comma-separated list
// - CORS_ALLOWED_METHODS: comma-separated list
// - CORS_ALLOWED_HEADERS: comma-separated list
// - CORS_MAX_AGE: integer seconds
func CORSFromEnv() (CORSConfig, bool) {
	var maxAge int
	if v, err := strconv.Atoi(os.Getenv("CORS_MAX_AGE")); err == nil {
		maxAge = v
	}
	cfg := CORSConfig{
		AllowedOrigins: splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),
		AllowedMethods: splitAndTrim(os.Getenv("CORS_ALLOWED_METHODS")),
		AllowedHeaders: splitAndTrim(os.Getenv("CORS_ALLOWED_HEADERS")),
		MaxAge:         maxAge,
	}
	provided := len(cfg.AllowedOrigins) > 0 || len(cfg.AllowedMethods) > 0 || len(cfg.AllowedHeaders) > 0 || maxAge > 0
	if !provided {
		return CORSConfig{}, false
	}
	return cfg, true
}

func splitAndTrim(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
