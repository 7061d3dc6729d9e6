// Package recordstore implements the archive's concurrent-safe JSON record
// store: a single JSON array on disk, read-modify-write under an exclusive
// advisory file lock, atomically rewritten on every mutation.
//
// Grounded on the teacher's catalog.Save/Load (temp-file-then-rename atomic
// JSON persistence, internal/catalog/catalog.go) generalized from a single
// in-process writer to multiple cooperating processes by adding an advisory
// lock (github.com/gofrs/flock) around the patch path, per spec §4.1.
package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/gofrs/flock"
)

// Record is one JSON object in the store. Values should be JSON-marshalable
// (string, float64, bool, nil, []any, map[string]any, or an already-decoded
// json.RawMessage-compatible value).
type Record = map[string]any

// Store is a (path, key_field) pair over a JSON array of Records.
type Store struct {
	path     string
	keyField string
	lockPath string
	lockWait time.Duration
}

// New returns a Store over path, keyed by keyField (e.g. "id").
func New(path, keyField string) *Store {
	return &Store{
		path:     path,
		keyField: keyField,
		lockPath: path + ".lock",
		lockWait: 30 * time.Second,
	}
}

// Read returns the current contents of the store. An absent or blank file
// yields an empty list, never an error.
func (s *Store) Read() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("recordstore: read %s: %w", s.path, err)
	}
	return decode(data)
}

// decode parses a JSON array, falling back to UTF-8-lossy repair of the raw
// bytes if the file contains invalid UTF-8 (spec §4.1 "lossy fallback").
func decode(data []byte) ([]Record, error) {
	trimmed := trimSpaceBytes(data)
	if len(trimmed) == 0 {
		return []Record{}, nil
	}
	var items []Record
	if err := json.Unmarshal(trimmed, &items); err != nil {
		if !utf8.Valid(trimmed) {
			repaired := sanitizeUTF8(string(trimmed))
			var retryItems []Record
			if err2 := json.Unmarshal([]byte(repaired), &retryItems); err2 == nil {
				return retryItems, nil
			}
		}
		return nil, fmt.Errorf("recordstore: decode: %w", err)
	}
	if items == nil {
		items = []Record{}
	}
	return items, nil
}

func trimSpaceBytes(b []byte) []byte {
	start, end := 0, len(b)
	isSpace := func(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

// Write atomically replaces the file contents with items, sanitized for
// valid UTF-8 (invariant: "All JSON strings are valid UTF-8; lone surrogates
// are replaced with U+FFFD on write"). Uses a sibling temp file plus rename,
// per the teacher's catalog.Save.
func (s *Store) Write(items []Record) error {
	sanitized := make([]Record, len(items))
	for i, item := range items {
		sanitized[i] = sanitizeRecord(item).(Record)
	}
	data, err := json.MarshalIndent(sanitized, "", "  ")
	if err != nil {
		return fmt.Errorf("recordstore: marshal: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(filepath.Clean(s.path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("recordstore: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".recordstore-*.json.tmp")
	if err != nil {
		return fmt.Errorf("recordstore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("recordstore: write temp: %w", writeErr)
		}
		return fmt.Errorf("recordstore: close temp: %w", closeErr)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("recordstore: rename: %w", err)
	}
	return nil
}

// MergeFunc resolves a key collision during Append: given the existing
// record and the incoming one, it returns the record to keep.
type MergeFunc func(existing, incoming Record) Record

// Append reads the store, then for each incoming item either merges it with
// an existing record of the same key (if mergeFn is non-nil), skips it
// silently (if the key exists and mergeFn is nil), or appends it as new.
// Returns the count of genuinely new records. Not safe against concurrent
// PatchItems callers — reserved for single-writer entry points.
func (s *Store) Append(newItems []Record, mergeFn MergeFunc) (int, error) {
	items, err := s.Read()
	if err != nil {
		return 0, err
	}
	index := make(map[string]int, len(items))
	for i, it := range items {
		if k, ok := keyOf(it, s.keyField); ok {
			index[k] = i
		}
	}

	added := 0
	for _, incoming := range newItems {
		k, ok := keyOf(incoming, s.keyField)
		if !ok {
			continue
		}
		if idx, exists := index[k]; exists {
			if mergeFn != nil {
				items[idx] = mergeFn(items[idx], incoming)
			}
			continue
		}
		index[k] = len(items)
		items = append(items, incoming)
		added++
	}

	if err := s.Write(items); err != nil {
		return 0, err
	}
	return added, nil
}

// PatchItems applies patches — a map from key to a set of field->value
// updates — to the matching records, under an exclusive advisory lock on
// <path>.lock. This is the only mutation primitive safe for simultaneous use
// by independent Enricher/Extractor processes: patch sets on disjoint fields
// compose regardless of interleaving.
func (s *Store) PatchItems(patches map[string]Record) (int, error) {
	if len(patches) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.lockWait)
	defer cancel()
	fl := flock.New(s.lockPath)
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return 0, fmt.Errorf("recordstore: acquire lock: %w", err)
	}
	if !locked {
		return 0, fmt.Errorf("recordstore: could not acquire lock on %s within %s", s.lockPath, s.lockWait)
	}
	defer fl.Unlock()

	items, err := s.Read()
	if err != nil {
		return 0, err
	}

	patched := 0
	for i, it := range items {
		k, ok := keyOf(it, s.keyField)
		if !ok {
			continue
		}
		fields, ok := patches[k]
		if !ok {
			continue
		}
		for field, value := range fields {
			it[field] = value
		}
		items[i] = it
		patched++
	}

	if err := s.Write(items); err != nil {
		return 0, err
	}
	return patched, nil
}

// Find returns all records whose fields match every key/value in match.
func (s *Store) Find(match Record) ([]Record, error) {
	items, err := s.Read()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, it := range items {
		if matches(it, match) {
			out = append(out, it)
		}
	}
	return out, nil
}

// Count returns the number of records currently in the store.
func (s *Store) Count() (int, error) {
	items, err := s.Read()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Delete removes the record with the given key. Reserved for external,
// single-writer use — never called by the core Enricher/Extractor loops.
func (s *Store) Delete(key string) error {
	items, err := s.Read()
	if err != nil {
		return err
	}
	out := items[:0]
	for _, it := range items {
		if k, ok := keyOf(it, s.keyField); ok && k == key {
			continue
		}
		out = append(out, it)
	}
	return s.Write(out)
}

func keyOf(r Record, field string) (string, bool) {
	v, ok := r[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func matches(item, match Record) bool {
	for k, v := range match {
		if item[k] != v {
			return false
		}
	}
	return true
}
