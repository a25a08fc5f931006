package db

// DatabaseProvider abstracts the low-level key/value operations so that the
// block store can sit on LevelDB, an in-memory LevelDB or Redis without
// knowing which.
type DatabaseProvider interface {
	// Get retrieves a value by key, returning nil without error when absent
	Get(key []byte) ([]byte, error)

	// Put stores a key-value pair
	Put(key, value []byte) error

	// Delete removes a key-value pair
	Delete(key []byte) error

	// Has checks if a key exists
	Has(key []byte) (bool, error)

	// IteratePrefix visits every key-value pair with the given prefix until
	// the callback returns false. Visiting order is backend specific.
	IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error

	// Close closes the database connection
	Close() error

	// Batch returns a new batch for atomic operations
	Batch() DatabaseBatch
}

// DatabaseBatch provides atomic batch operations
type DatabaseBatch interface {
	// Put adds a key-value pair to the batch
	Put(key, value []byte)

	// Delete adds a deletion to the batch
	Delete(key []byte)

	// Write commits all operations in the batch
	Write() error

	// Reset clears the batch
	Reset()

	// Close releases batch resources
	Close() error
}
