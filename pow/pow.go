package pow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/spacedata/sdchain/logx"
	"github.com/spacedata/sdchain/monitoring"
)

const (
	DefaultDifficulty = 4
	MaxDifficulty     = 64

	DefaultBatchSize uint64 = 4096

	// context is polled once per checkInterval candidates
	checkInterval = 1024
	// a search running past livenessFactor * 16^difficulty attempts is logged
	livenessFactor = 8
)

var (
	ErrMaxAttempts       = errors.New("proof search reached max attempts")
	ErrExhausted         = errors.New("proof search exhausted the candidate space")
	ErrInvalidDifficulty = fmt.Errorf("difficulty must be between 1 and %d", MaxDifficulty)
)

// SearchError reports a search that stopped without a proof. Passing Next to
// SolveFrom resumes it without skipping any candidate.
type SearchError struct {
	Next     uint64
	Attempts uint64
	Err      error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("proof search stopped at candidate %d after %d attempts: %v", e.Next, e.Attempts, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// Digest is the hex SHA-256 of the decimal concatenation of both proofs.
func Digest(lastProof, candidate uint64) string {
	sum := digest(lastProof, candidate)
	return hex.EncodeToString(sum[:])
}

func digest(lastProof, candidate uint64) [32]byte {
	var buf [40]byte
	guess := strconv.AppendUint(buf[:0], lastProof, 10)
	guess = strconv.AppendUint(guess, candidate, 10)
	return sha256.Sum256(guess)
}

// Valid reports whether Digest(lastProof, candidate) starts with difficulty
// '0' characters.
func Valid(lastProof, candidate uint64, difficulty int) bool {
	if difficulty > MaxDifficulty {
		return false
	}
	sum := digest(lastProof, candidate)
	return hasZeroNibbles(sum, difficulty)
}

func hasZeroNibbles(sum [32]byte, n int) bool {
	full := n / 2
	for i := 0; i < full; i++ {
		if sum[i] != 0 {
			return false
		}
	}
	if n%2 == 1 && sum[full]>>4 != 0 {
		return false
	}
	return true
}

// Work is the expected number of attempts for one proof, 16^difficulty,
// saturating at the largest 256-bit value.
func Work(difficulty int) *uint256.Int {
	if difficulty <= 0 {
		return uint256.NewInt(1)
	}
	if difficulty >= MaxDifficulty {
		return new(uint256.Int).SetAllOne()
	}
	return new(uint256.Int).Lsh(uint256.NewInt(1), uint(4*difficulty))
}

type Config struct {
	Difficulty int
	// MaxAttempts caps the candidates hashed by one call; zero means no cap.
	MaxAttempts uint64
	// Workers above one split each round across a worker pool.
	Workers int
	// BatchSize is the number of candidates one worker scans per round.
	BatchSize uint64
}

func DefaultConfig() Config {
	return Config{
		Difficulty: DefaultDifficulty,
		Workers:    1,
		BatchSize:  DefaultBatchSize,
	}
}

type Engine struct {
	cfg       Config
	warnAfter uint64
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Difficulty < 1 || cfg.Difficulty > MaxDifficulty {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDifficulty, cfg.Difficulty)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Engine{
		cfg:       cfg,
		warnAfter: warnThreshold(cfg.Difficulty),
	}, nil
}

func warnThreshold(difficulty int) uint64 {
	expected := Work(difficulty)
	if !expected.IsUint64() || expected.Uint64() > math.MaxUint64/livenessFactor {
		return math.MaxUint64
	}
	return expected.Uint64() * livenessFactor
}

func (e *Engine) Difficulty() int {
	return e.cfg.Difficulty
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Valid checks a candidate against the engine's difficulty.
func (e *Engine) Valid(lastProof, candidate uint64) bool {
	return Valid(lastProof, candidate, e.cfg.Difficulty)
}

// Solve returns the smallest non-negative valid candidate for lastProof.
func (e *Engine) Solve(ctx context.Context, lastProof uint64) (uint64, error) {
	return e.SolveFrom(ctx, lastProof, 0)
}

// SolveFrom returns the smallest valid candidate >= start. It stops with a
// *SearchError when ctx is done or MaxAttempts candidates were hashed.
func (e *Engine) SolveFrom(ctx context.Context, lastProof, start uint64) (uint64, error) {
	began := time.Now()

	var (
		proof    uint64
		attempts uint64
		err      error
	)
	if e.cfg.Workers > 1 {
		proof, attempts, err = e.searchParallel(ctx, lastProof, start)
	} else {
		proof, attempts, err = e.searchSequential(ctx, lastProof, start)
	}

	elapsed := time.Since(began)
	monitoring.AddProofAttempts(attempts)
	switch {
	case err == nil:
		monitoring.RecordProofSearch(monitoring.SearchSolved, elapsed)
		logx.Debug("POW", fmt.Sprintf("solved last_proof=%d proof=%d attempts=%d elapsed=%s", lastProof, proof, attempts, elapsed))
	case errors.Is(err, ErrMaxAttempts) || errors.Is(err, ErrExhausted):
		monitoring.RecordProofSearch(monitoring.SearchExhausted, elapsed)
		logx.Warn("POW", err.Error())
	default:
		monitoring.RecordProofSearch(monitoring.SearchCancelled, elapsed)
		logx.Info("POW", err.Error())
	}
	return proof, err
}

func (e *Engine) searchSequential(ctx context.Context, lastProof, start uint64) (uint64, uint64, error) {
	var attempts uint64
	warned := false
	candidate := start
	for {
		if e.cfg.MaxAttempts > 0 && attempts >= e.cfg.MaxAttempts {
			return 0, attempts, &SearchError{Next: candidate, Attempts: attempts, Err: ErrMaxAttempts}
		}
		if attempts%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, attempts, &SearchError{Next: candidate, Attempts: attempts, Err: err}
			}
			if !warned && attempts >= e.warnAfter {
				warned = true
				e.warnSlow(lastProof, attempts)
			}
		}

		attempts++
		if e.Valid(lastProof, candidate) {
			return candidate, attempts, nil
		}
		if candidate == math.MaxUint64 {
			return 0, attempts, &SearchError{Next: candidate, Attempts: attempts, Err: ErrExhausted}
		}
		candidate++
	}
}

func (e *Engine) warnSlow(lastProof, attempts uint64) {
	logx.Warn("POW", fmt.Sprintf("proof search for last_proof=%d still running after %d attempts (expected about %s)",
		lastProof, attempts, Work(e.cfg.Difficulty).Dec()))
}
