package pow

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gammazero/workerpool"
)

// searchParallel scans contiguous rounds of Workers*BatchSize candidates. A
// round only yields a proof once every segment below the best hit has been
// fully scanned, so the result is the same smallest candidate the sequential
// search would find.
func (e *Engine) searchParallel(ctx context.Context, lastProof, start uint64) (uint64, uint64, error) {
	wp := workerpool.New(e.cfg.Workers)
	defer wp.Stop()

	var attempts uint64
	warned := false
	base := start
	for {
		if err := ctx.Err(); err != nil {
			return 0, attempts, &SearchError{Next: base, Attempts: attempts, Err: err}
		}
		size := uint64(e.cfg.Workers) * e.cfg.BatchSize
		if e.cfg.MaxAttempts > 0 {
			remaining := e.cfg.MaxAttempts - attempts
			if remaining == 0 {
				return 0, attempts, &SearchError{Next: base, Attempts: attempts, Err: ErrMaxAttempts}
			}
			if size > remaining {
				size = remaining
			}
		}
		if size-1 > math.MaxUint64-base {
			size = math.MaxUint64 - base + 1
		}

		r := e.runRound(ctx, wp, lastProof, base, size)
		attempts += r.scanned
		if !warned && attempts >= e.warnAfter {
			warned = true
			e.warnSlow(lastProof, attempts)
		}

		if r.complete && r.found {
			return r.best, attempts, nil
		}
		if !r.complete {
			// cancelled mid-round: resume from the start of the round
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			return 0, attempts, &SearchError{Next: base, Attempts: attempts, Err: err}
		}
		if base+(size-1) == math.MaxUint64 {
			return 0, attempts, &SearchError{Next: math.MaxUint64, Attempts: attempts, Err: ErrExhausted}
		}
		base += size
	}
}

type roundResult struct {
	best     uint64
	found    bool
	complete bool
	scanned  uint64
}

type segment struct {
	lo    uint64
	count uint64
	// done is set when no candidate of this segment below the best hit is
	// left unscanned.
	done bool
}

func (e *Engine) runRound(ctx context.Context, wp *workerpool.WorkerPool, lastProof, base, size uint64) roundResult {
	workers := uint64(e.cfg.Workers)
	segSize := (size + workers - 1) / workers

	segments := make([]*segment, 0, workers)
	for off := uint64(0); off < size; off += segSize {
		count := segSize
		if size-off < count {
			count = size - off
		}
		segments = append(segments, &segment{lo: base + off, count: count})
	}

	var (
		best    atomic.Uint64
		found   atomic.Bool
		scanned atomic.Uint64
		wg      sync.WaitGroup
	)
	best.Store(math.MaxUint64)

	for _, seg := range segments {
		seg := seg
		wg.Add(1)
		wp.Submit(func() {
			defer wg.Done()
			var n uint64
			defer func() { scanned.Add(n) }()
			for k := uint64(0); k < seg.count; k++ {
				candidate := seg.lo + k
				if found.Load() && candidate > best.Load() {
					seg.done = true
					return
				}
				if k%checkInterval == 0 && ctx.Err() != nil {
					return
				}
				n++
				if Valid(lastProof, candidate, e.cfg.Difficulty) {
					storeMin(&best, candidate)
					found.Store(true)
					seg.done = true
					return
				}
			}
			seg.done = true
		})
	}
	wg.Wait()

	res := roundResult{best: best.Load(), found: found.Load(), scanned: scanned.Load(), complete: true}
	for _, seg := range segments {
		if seg.done {
			continue
		}
		if !res.found || seg.lo < res.best {
			res.complete = false
			break
		}
	}
	return res
}

func storeMin(v *atomic.Uint64, candidate uint64) {
	for {
		cur := v.Load()
		if candidate >= cur || v.CompareAndSwap(cur, candidate) {
			return
		}
	}
}
