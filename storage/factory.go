package storage

import "fmt"

// NewStore builds an uninitialized store, target is the sqlite file or the redis address
func NewStore(kind, target string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if target == "" {
			target = "checkpoints.db"
		}
		return NewSQLiteStore(target), nil
	case "redis":
		return NewRedisStore(target), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
