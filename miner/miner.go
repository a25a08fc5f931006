package miner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spacedata/sdchain/block"
	"github.com/spacedata/sdchain/chain"
	"github.com/spacedata/sdchain/exception"
	"github.com/spacedata/sdchain/logx"
)

// Service mines a block on every tick once enough entries are pending.
type Service struct {
	Chain      *chain.Chain
	Interval   time.Duration
	MinPending int
	OnBlock    func(blk *block.Block)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func NewService(c *chain.Chain, interval time.Duration, minPending int) *Service {
	return &Service{
		Chain:      c,
		Interval:   interval,
		MinPending: minPending,
	}
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil || s.stopped {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	exception.SafeGoWithPanic("minerLoop", func() {
		defer close(s.done)
		s.mineLoop(ctx)
	})
}

// Stop cancels an in-flight proof search and waits for the loop to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	done := s.done
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (s *Service) mineLoop(ctx context.Context) {
	logx.Info("MINER", fmt.Sprintf("Miner started interval=%s min_pending=%d", s.Interval, s.MinPending))
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.Chain.PendingLen() < s.MinPending {
				continue
			}
			blk, err := s.Chain.Mine(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logx.Info("MINER", "Miner stopped during proof search")
					return
				}
				logx.Error("MINER", "Mining failed: ", err)
				continue
			}
			if s.OnBlock != nil {
				s.OnBlock(blk)
			}
		case <-ctx.Done():
			logx.Info("MINER", "Miner stopped")
			return
		}
	}
}
