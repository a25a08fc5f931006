package config

import "github.com/spacedata/sdchain/store"

// NodeConfig is the node section of node.yml
type NodeConfig struct {
	Store    store.StoreConfig `yaml:"store"`
	RPCAddr  string            `yaml:"rpc_addr"`
	HTTPAddr string            `yaml:"http_addr"`

	// CORSOrigins lists origins allowed to call the JSON-RPC endpoint; "*" allows any.
	CORSOrigins []string        `yaml:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig caps chain.addentry and chain.mine calls per client IP.
// Zero MaxRequests disables the limit.
type RateLimitConfig struct {
	MaxRequests int `yaml:"max_requests"`
	WindowMs    int `yaml:"window_ms"`
}

// ConfigFile is the top-level structure for node.yml
type ConfigFile struct {
	Node NodeConfig `yaml:"node"`
}

type PowConfig struct {
	Difficulty  int    `ini:"difficulty"`
	MaxAttempts uint64 `ini:"max_attempts"`
	Workers     int    `ini:"workers"`
	BatchSize   uint64 `ini:"batch_size"`
}

type MempoolConfig struct {
	MaxEntries int `ini:"max_entries"`
}

type MinerConfig struct {
	IntervalMs int `ini:"interval_ms"`
	MinPending int `ini:"min_pending"`
}
