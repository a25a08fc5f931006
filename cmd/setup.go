package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spacedata/sdchain/chain"
	"github.com/spacedata/sdchain/config"
	"github.com/spacedata/sdchain/events"
	"github.com/spacedata/sdchain/logx"
	"github.com/spacedata/sdchain/mempool"
	"github.com/spacedata/sdchain/pow"
	"github.com/spacedata/sdchain/store"
)

type nodeSetup struct {
	node    *config.NodeConfig
	pow     *config.PowConfig
	mempool *config.MempoolConfig
	miner   *config.MinerConfig
}

// loadSetup reads both configuration files. A missing file means defaults.
func loadSetup() (*nodeSetup, error) {
	nodeCfg, err := config.LoadNodeConfig(nodeConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		logx.Warn("CONFIG", "No node config at ", nodeConfigPath, ", using defaults")
		nodeCfg, err = config.DefaultNodeConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load node config: %w", err)
	}
	if dataDir != "" {
		nodeCfg.Store.Directory = dataDir
	}

	path := tuningPath
	if _, err := os.Stat(path); err != nil {
		logx.Warn("CONFIG", "No tuning file at ", path, ", using defaults")
		path = os.DevNull
	}
	setup := &nodeSetup{node: nodeCfg}
	if setup.pow, err = config.LoadPowConfig(path); err != nil {
		return nil, fmt.Errorf("load pow config: %w", err)
	}
	if setup.mempool, err = config.LoadMempoolConfig(path); err != nil {
		return nil, fmt.Errorf("load mempool config: %w", err)
	}
	if setup.miner, err = config.LoadMinerConfig(path); err != nil {
		return nil, fmt.Errorf("load miner config: %w", err)
	}
	return setup, nil
}

func (s *nodeSetup) openStore() (store.BlockStore, error) {
	bs, err := store.CreateStore(&s.node.Store)
	if err != nil {
		return nil, err
	}
	logx.Info("STORE", fmt.Sprintf("Opened %s store", s.node.Store.Type))
	return bs, nil
}

// openChain opens the store and loads the chain from it. The caller closes
// the returned store.
func (s *nodeSetup) openChain(bus *events.EventBus) (*chain.Chain, store.BlockStore, error) {
	engine, err := pow.NewEngine(s.pow.Engine())
	if err != nil {
		return nil, nil, err
	}
	bs, err := s.openStore()
	if err != nil {
		return nil, nil, err
	}
	c, err := chain.New(
		chain.WithStore(bs),
		chain.WithEngine(engine),
		chain.WithMempool(mempool.NewMempool(s.mempool.MaxEntries)),
		chain.WithEventBus(bus),
	)
	if err != nil {
		bs.MustClose()
		return nil, nil, err
	}
	return c, bs, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
