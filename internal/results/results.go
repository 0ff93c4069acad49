// Package results records the compatibility matrix: for every producer
// version, the consumer versions its questions were replayed under and
// whether the replay succeeded.
//
// The matrix lives in a single JSON object file that is rewritten whole on
// every verdict. Entries that are absent have not been tested yet.
package results

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/qcompat/internal/version"
)

// Matrix maps producer version -> consumer version -> compatible.
type Matrix map[string]map[string]bool

// Set upserts a verdict, leaving every other entry untouched.
func (m Matrix) Set(producer, consumer string, compatible bool) {
	row := m[producer]
	if row == nil {
		row = map[string]bool{}
		m[producer] = row
	}
	row[consumer] = compatible
}

// Get returns the verdict for a pair and whether it has been tested.
func (m Matrix) Get(producer, consumer string) (compatible, tested bool) {
	row, ok := m[producer]
	if !ok {
		return false, false
	}
	compatible, tested = row[consumer]
	return compatible, tested
}

// Producers returns the producer versions, newest first.
func (m Matrix) Producers() []string {
	keys := make([]string, 0, len(m))
	for p := range m {
		keys = append(keys, p)
	}
	sortNewestFirst(keys)
	return keys
}

// Consumers returns every consumer version seen in any row, newest first.
func (m Matrix) Consumers() []string {
	seen := map[string]bool{}
	for _, row := range m {
		for c := range row {
			seen[c] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for c := range seen {
		keys = append(keys, c)
	}
	sortNewestFirst(keys)
	return keys
}

// Load reads the matrix at path. A missing file is an empty matrix.
func Load(path string) (Matrix, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Matrix{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}

	m := Matrix{}
	if len(bytes.TrimSpace(data)) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse results %s: %w", path, err)
	}
	// A file holding null decodes to a nil map.
	if m == nil {
		m = Matrix{}
	}
	return m, nil
}

// Save writes the whole matrix to path. The new content goes to a temporary
// file in the same directory which is synced and renamed over path, so a
// concurrent reader sees either the old or the new matrix.
func Save(path string, m Matrix) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write results: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace results: %w", err)
	}
	return nil
}

// RecordVerdict loads the matrix at path, upserts one verdict and writes the
// matrix back before returning.
func RecordVerdict(path, producer, consumer string, compatible bool) error {
	m, err := Load(path)
	if err != nil {
		return err
	}
	m.Set(producer, consumer, compatible)
	return Save(path, m)
}

// sortNewestFirst orders semantic versions descending; anything that does not
// parse sorts after them, alphabetically.
func sortNewestFirst(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		a, b := versions[i], versions[j]
		c, err := version.Compare(a, b)
		if err == nil {
			if c == 0 {
				return a < b
			}
			return c > 0
		}
		av, bv := version.IsValid(a), version.IsValid(b)
		if av != bv {
			return av
		}
		return a < b
	})
}
