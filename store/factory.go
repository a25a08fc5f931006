package store

import (
	"fmt"

	"github.com/spacedata/sdchain/db"
)

// StoreType represents the type of store implementation
type StoreType string

const (
	// LevelDBStoreType uses LevelDB files under Directory
	LevelDBStoreType StoreType = "leveldb"

	// MemoryStoreType keeps everything in memory, for tests and dry runs
	MemoryStoreType StoreType = "memory"

	// RedisStoreType uses a Redis server
	RedisStoreType StoreType = "redis"
)

// StoreConfig holds configuration for creating store instances
type StoreConfig struct {
	Type      StoreType `yaml:"type"`
	Directory string    `yaml:"directory"`
	CacheSize int       `yaml:"cache_size"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// Validate validates the store configuration
func (sc *StoreConfig) Validate() error {
	switch sc.Type {
	case LevelDBStoreType:
		if sc.Directory == "" {
			return fmt.Errorf("directory cannot be empty")
		}
	case RedisStoreType:
		if sc.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
	case MemoryStoreType:
	case "":
		return fmt.Errorf("store type cannot be empty")
	default:
		return fmt.Errorf("unsupported store type: %s", sc.Type)
	}
	return nil
}

// CreateProvider creates a database provider based on the configuration
func CreateProvider(config *StoreConfig) (db.DatabaseProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	switch config.Type {
	case LevelDBStoreType:
		return db.NewLevelDBProvider(config.Directory)
	case MemoryStoreType:
		return db.NewMemLevelDBProvider()
	case RedisStoreType:
		return db.NewRedisProvider(db.RedisOptions{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// CreateStore opens the provider described by config and wraps it in a
// block store
func CreateStore(config *StoreConfig) (BlockStore, error) {
	provider, err := CreateProvider(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	bs, err := NewGenericBlockStore(provider, config.CacheSize)
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("failed to create block store: %w", err)
	}
	return bs, nil
}
