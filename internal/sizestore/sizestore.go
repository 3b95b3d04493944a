// Package sizestore persists the reserved size of every .ind.<lib>
// indirection section across rewriter runs, the Go analogue of the
// original ASLR rewriter's JSON_MAPS_FILE.
package sizestore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/Manu343726/spacer/pkg/utils"
)

// ErrSizeStore wraps read/write failures against the backing JSON file.
var ErrSizeStore = fmt.Errorf("sizestore: failed to access size map")

// Store is a ".text.<lib>" -> reserved byte size map, serialized as a JSON
// object of hex strings (e.g. "0x1a40"), matching the format the original
// rewriter reads and writes.
type Store struct {
	path  string
	sizes map[string]uint64
}

// Load reads path's JSON size map. A missing file is treated as an empty
// store with a warning, matching the original's "No json file found.
// Continue with empty map size." fallback rather than a fatal error.
func Load(path string, logger *slog.Logger) (*Store, error) {
	store := &Store{path: path, sizes: make(map[string]uint64)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("no indirection size map found, continuing with an empty one", "path", path)
			return store, nil
		}
		return nil, utils.MakeError(ErrSizeStore, "reading %s: %s", path, err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, utils.MakeError(ErrSizeStore, "parsing %s: %s", path, err)
	}

	for key, hexValue := range raw {
		var size uint64
		if _, err := fmt.Sscanf(hexValue, "0x%x", &size); err != nil {
			return nil, utils.MakeError(ErrSizeStore, "parsing size %q for %q in %s: %s", hexValue, key, path, err)
		}
		store.sizes[key] = size
	}

	return store, nil
}

// Get returns the recorded size for a ".text.<lib>" key, or ok=false if
// the key has never been recorded.
func (s *Store) Get(key string) (uint64, bool) {
	size, ok := s.sizes[key]
	return size, ok
}

// Set records size for key, overwriting any previous value.
func (s *Store) Set(key string, size uint64) {
	s.sizes[key] = size
}

// AsMap returns a copy of every key and its previously recorded size,
// suitable for feeding planner.Options.IndirectionSizes.
func (s *Store) AsMap() map[string]uint64 {
	out := make(map[string]uint64, len(s.sizes))
	for k, v := range s.sizes {
		out[k] = v
	}
	return out
}

// Save atomically writes the store back to disk as pretty-printed JSON
// with hex-string values, via a temp-file-plus-rename so a crash mid-write
// never corrupts the previous map.
func (s *Store) Save() error {
	raw := make(map[string]string, len(s.sizes))
	keys := make([]string, 0, len(s.sizes))
	for key := range s.sizes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		raw[key] = fmt.Sprintf("0x%x", s.sizes[key])
	}

	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return utils.MakeError(ErrSizeStore, "encoding %s: %s", s.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return utils.MakeError(ErrSizeStore, "creating directory for %s: %s", s.path, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return utils.MakeError(ErrSizeStore, "writing %s: %s", s.path, err)
	}

	return os.Rename(tmp, s.path)
}
