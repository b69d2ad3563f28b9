// Package kvstore provides the durable key-value storage that backs the
// offline cache and the outbound mutation queue. All subsystem state is
// serialized under owned key namespaces; callers never share keys with
// other components.
package kvstore

import (
	"context"
	"fmt"
)

// Store is the persistence contract. Get reports presence explicitly so an
// absent key is distinguishable from an empty value.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Open constructs a Store for the configured driver.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return OpenSQLite(path)
	case "bolt":
		return OpenBolt(path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}
