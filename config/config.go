package config

import (
	"fmt"
	"os"

	"github.com/spacedata/sdchain/pow"
	"github.com/spacedata/sdchain/store"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRPCAddr         = ":8545"
	DefaultHTTPAddr        = ":9100"
	DefaultStoreDirectory  = "./data/chain"
	DefaultMinerIntervalMs = 1000
)

// DefaultNodeConfig runs a LevelDB-backed node on the default ports.
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		Store: store.StoreConfig{
			Type:      store.LevelDBStoreType,
			Directory: DefaultStoreDirectory,
		},
		RPCAddr:  DefaultRPCAddr,
		HTTPAddr: DefaultHTTPAddr,
	}
}

// LoadNodeConfig reads node.yml. Fields missing from the file keep their defaults.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfgFile := ConfigFile{Node: *DefaultNodeConfig()}
	if err := yaml.NewDecoder(file).Decode(&cfgFile); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfgFile.Node.Validate(); err != nil {
		return nil, err
	}
	return &cfgFile.Node, nil
}

func (nc *NodeConfig) Validate() error {
	if nc.RPCAddr == "" {
		return fmt.Errorf("rpc_addr is required")
	}
	if nc.RateLimit.MaxRequests < 0 || nc.RateLimit.WindowMs < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	return nc.Store.Validate()
}

func loadSection(path, name string, v interface{}) error {
	cfg, err := ini.Load(path)
	if err != nil {
		return err
	}
	return cfg.Section(name).MapTo(v)
}

// LoadPowConfig reads the [pow] section of an .ini file
func LoadPowConfig(path string) (*PowConfig, error) {
	def := pow.DefaultConfig()
	powCfg := &PowConfig{
		Difficulty: def.Difficulty,
		Workers:    def.Workers,
		BatchSize:  def.BatchSize,
	}
	if err := loadSection(path, "pow", powCfg); err != nil {
		return nil, err
	}
	if powCfg.Difficulty < 1 || powCfg.Difficulty > pow.MaxDifficulty {
		return nil, fmt.Errorf("pow.difficulty must be in [1, %d], got %d", pow.MaxDifficulty, powCfg.Difficulty)
	}
	if powCfg.Workers < 1 {
		return nil, fmt.Errorf("pow.workers must be positive, got %d", powCfg.Workers)
	}
	return powCfg, nil
}

// Engine converts the section to a proof-of-work engine config.
func (pc *PowConfig) Engine() pow.Config {
	return pow.Config{
		Difficulty:  pc.Difficulty,
		MaxAttempts: pc.MaxAttempts,
		Workers:     pc.Workers,
		BatchSize:   pc.BatchSize,
	}
}

func LoadMempoolConfig(path string) (*MempoolConfig, error) {
	mempoolCfg := &MempoolConfig{}
	if err := loadSection(path, "mempool", mempoolCfg); err != nil {
		return nil, err
	}
	if mempoolCfg.MaxEntries < 0 {
		return nil, fmt.Errorf("mempool.max_entries must not be negative, got %d", mempoolCfg.MaxEntries)
	}
	return mempoolCfg, nil
}

func LoadMinerConfig(path string) (*MinerConfig, error) {
	minerCfg := &MinerConfig{IntervalMs: DefaultMinerIntervalMs, MinPending: 1}
	if err := loadSection(path, "miner", minerCfg); err != nil {
		return nil, err
	}
	if minerCfg.IntervalMs <= 0 {
		return nil, fmt.Errorf("miner.interval_ms must be positive, got %d", minerCfg.IntervalMs)
	}
	if minerCfg.MinPending < 0 {
		return nil, fmt.Errorf("miner.min_pending must not be negative, got %d", minerCfg.MinPending)
	}
	return minerCfg, nil
}
