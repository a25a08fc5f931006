package errors

import (
	"github.com/spacedata/sdchain/jsonx"
)

// ChainErrorCode represents standardized error codes returned to RPC clients
type ChainErrorCode string

const (
	// General errors
	ErrCodeInternal ChainErrorCode = "internal_error"

	// Validation errors
	ErrCodeInvalidRequest ChainErrorCode = "invalid_request"
	ErrCodeInvalidEntry   ChainErrorCode = "invalid_entry"
	ErrCodeInvalidProof   ChainErrorCode = "invalid_proof"

	// Chain state errors
	ErrCodeBlockNotFound    ChainErrorCode = "block_not_found"
	ErrCodeChainInvalid     ChainErrorCode = "chain_invalid"
	ErrCodeMiningCancelled  ChainErrorCode = "mining_cancelled"
	ErrCodeMiningExhausted  ChainErrorCode = "mining_exhausted"
	ErrCodePrevHashMismatch ChainErrorCode = "previous_hash_mismatch"

	// System errors
	ErrCodeMempoolFull ChainErrorCode = "mempool_full"
	ErrCodeRateLimited ChainErrorCode = "rate_limited"
)

// ChainError is the error payload carried in a JSON-RPC error's data field
type ChainError struct {
	Code    ChainErrorCode `json:"code"`
	Message string         `json:"message"`
}

func (e *ChainError) Error() string {
	b, _ := jsonx.Marshal(ChainError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(b)
}

// Error message constants
const (
	ErrMsgInvalidRequest   = "Request format is invalid"
	ErrMsgInvalidEntry     = "Entry must be a JSON value"
	ErrMsgInvalidProof     = "Proof does not satisfy the difficulty"
	ErrMsgBlockNotFound    = "Block could not be found"
	ErrMsgChainInvalid     = "Chain failed validation at block %d: %s"
	ErrMsgMiningCancelled  = "Mining was cancelled before a proof was found"
	ErrMsgMiningExhausted  = "Mining gave up after %d attempts"
	ErrMsgPrevHashMismatch = "Previous hash does not match the last block"
	ErrMsgMempoolFull      = "Pending buffer is full, please try again"
	ErrMsgInternal         = "Server error, please try again"
	ErrMsgRateLimited      = "Too many requests, please slow down"
)

// NewError creates a new ChainError and returns it as error interface
func NewError(code ChainErrorCode, message string) error {
	return &ChainError{
		Code:    code,
		Message: message,
	}
}
