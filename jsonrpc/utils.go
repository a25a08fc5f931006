package jsonrpc

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/spacedata/sdchain/errors"
	"github.com/spacedata/sdchain/jsonx"
	"github.com/spacedata/sdchain/logx"
)

// maxRequestBodySize bounds a JSON-RPC request body; larger bodies get 413.
const maxRequestBodySize = 1 << 20

// JSON-RPC Method name constants
const (
	MethodChainAddEntry = "chain.addentry"
	MethodChainPending  = "chain.pending"
	MethodChainMine     = "chain.mine"
	MethodChainGetBlock = "chain.getblock"
	MethodChainGetChain = "chain.getchain"
	MethodChainGetInfo  = "chain.getinfo"
	MethodChainValidate = "chain.validate"
)

// rateLimitedMethods cost a proof search or grow the pending buffer.
var rateLimitedMethods = map[string]bool{
	MethodChainAddEntry: true,
	MethodChainMine:     true,
}

type jsonRPCRequest struct {
	ID     jsonx.RawMessage `json:"id"`
	Method string           `json:"method"`
}

func parseJSONRPCRequest(body []byte) *jsonRPCRequest {
	var req jsonRPCRequest
	if err := jsonx.Unmarshal(body, &req); err != nil {
		return nil
	}
	return &req
}

// peekRequest reads the body and puts it back for the JSON-RPC bridge.
func peekRequest(r *http.Request) (*jsonRPCRequest, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return parseJSONRPCRequest(body), nil
}

func writeRateLimited(w http.ResponseWriter, req *jsonRPCRequest) {
	id := jsonx.RawMessage("null")
	if req != nil && len(req.ID) > 0 {
		id = req.ID
	}
	body, _ := jsonx.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]interface{}{
			"code":    int(codeServerError),
			"message": errors.ErrMsgRateLimited,
			"data":    errors.ChainError{Code: errors.ErrCodeRateLimited, Message: errors.ErrMsgRateLimited},
		},
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write(body)
}

func extractClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		logx.Debug("RPC", "X-Forwarded-For:", xff)
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && net.ParseIP(host) != nil {
		return host
	}
	return "unknown"
}
