package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Open returns the backend named kind rooted at dir. Supported kinds are
// "leveldb", "bolt" and "memory".
func Open(kind, dir string) (Database, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "memory" {
		return NewMemDB(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	switch kind {
	case "", "leveldb":
		return NewLevelDB(filepath.Join(dir, "state"))
	case "bolt":
		return NewBoltDB(filepath.Join(dir, "state.db"), nil)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", kind)
	}
}
