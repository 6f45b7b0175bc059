package storage

import (
	"fmt"
	"os"
)

// EnsureDir ensures a directory exists with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// OrderKey is the key of an order within its owner's keyspace. The zero
// padding keeps lexical order equal to sequence order.
func OrderKey(owner string, sequenceID uint64) string {
	return fmt.Sprintf("%s/%020d", owner, sequenceID)
}

// OrderPrefix is the common prefix of every OrderKey for owner.
func OrderPrefix(owner string) string {
	return owner + "/"
}
