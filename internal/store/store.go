// Package store implements the hierarchical key/value composition data
// store (spec.md §6 "Data key surface"): typed JSON leaves addressed by
// keys of the form `<entity>_<index>/<subpath>/<leaf>.<ext>`, with
// index-range validation per entity and gzip+JSON persistence in the
// teacher's own storage.go style.
package store

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"regexp"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/kagu/kunquat/internal/kerr"
	"github.com/kagu/kunquat/internal/tstamp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Range is an entity's valid index span, inclusive.
type Range struct{ Min, Max int }

// entityRanges enumerates every indexed entity's valid range (spec.md
// §6 "Index ranges (each validated at load)").
var entityRanges = map[string]Range{
	"song":        {0, 255},
	"pattern":     {0, 1023},
	"pat_inst":    {0, 15},
	"au":          {0, 255},
	"proc":        {0, 31},
	"effect":      {0, 7},
	"channel":     {0, 63},
	"column":      {0, 63},
	"scale":       {0, 15},
}

var keyEntityRe = regexp.MustCompile(`^([a-z_]+)_(\d+)/`)

// ValidateKey checks a hierarchical key's leading `<entity>_<index>/`
// segment against entityRanges, if the entity is one of the fixed-range
// kinds. Keys with no recognized entity prefix (e.g. global leaves) pass
// through unchecked.
func ValidateKey(key string) error {
	m := keyEntityRe.FindStringSubmatch(key)
	if m == nil {
		return nil
	}
	entity, idxStr := m[1], m[2]
	rng, ok := entityRanges[entity]
	if !ok {
		return nil
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return kerr.New(kerr.Argument, "key %q: invalid index %q", key, idxStr)
	}
	if idx < rng.Min || idx > rng.Max {
		return kerr.New(kerr.Argument, "key %q: index %d out of range [%d,%d]", key, idx, rng.Min, rng.Max)
	}
	return nil
}

// Store is the in-memory key/value table set_data populates; leaves are
// kept as raw bytes and decoded on read per their suffix's type.
type Store struct {
	data map[string][]byte
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Set installs key's raw bytes, validating the key's entity index range
// first (spec.md §6 "set_data(handle, key, bytes) — installs a named
// resource"). An invalid key is rejected with a kerr.Argument error and
// the store is left unchanged.
func (s *Store) Set(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Has reports whether key has been set.
func (s *Store) Has(key string) bool {
	_, ok := s.data[key]
	return ok
}

// Keys returns every installed key, for iteration at validate() time.
func (s *Store) Keys() []string {
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	return out
}

// Raw returns key's raw bytes, or ok=false if unset.
func (s *Store) Raw(key string) ([]byte, bool) {
	v, ok := s.data[key]
	return v, ok
}

// GetBool decodes a `.jsonb` leaf.
func (s *Store) GetBool(key string) (bool, error) {
	v, ok := s.data[key]
	if !ok {
		return false, kerr.New(kerr.Argument, "no such key %q", key)
	}
	var out bool
	if err := json.Unmarshal(v, &out); err != nil {
		return false, kerr.New(kerr.Format, "key %q: %v", key, err)
	}
	return out, nil
}

// GetInt decodes a `.jsoni` leaf.
func (s *Store) GetInt(key string) (int64, error) {
	v, ok := s.data[key]
	if !ok {
		return 0, kerr.New(kerr.Argument, "no such key %q", key)
	}
	var out int64
	if err := json.Unmarshal(v, &out); err != nil {
		return 0, kerr.New(kerr.Format, "key %q: %v", key, err)
	}
	return out, nil
}

// GetFloat decodes a `.jsonf` leaf.
func (s *Store) GetFloat(key string) (float64, error) {
	v, ok := s.data[key]
	if !ok {
		return 0, kerr.New(kerr.Argument, "no such key %q", key)
	}
	var out float64
	if err := json.Unmarshal(v, &out); err != nil {
		return 0, kerr.New(kerr.Format, "key %q: %v", key, err)
	}
	return out, nil
}

// GetTstamp decodes a `.jsont` leaf, a 2-element [beats, rem] array
// (spec.md §6 "`.jsont` Tstamp (`[beats, rem]`)").
func (s *Store) GetTstamp(key string) (tstamp.Tstamp, error) {
	v, ok := s.data[key]
	if !ok {
		return tstamp.Tstamp{}, kerr.New(kerr.Argument, "no such key %q", key)
	}
	var pair [2]int64
	if err := json.Unmarshal(v, &pair); err != nil {
		return tstamp.Tstamp{}, kerr.New(kerr.Format, "key %q: %v", key, err)
	}
	return tstamp.New(pair[0], pair[1]), nil
}

// GetJSON decodes a `.json` structured leaf into out.
func (s *Store) GetJSON(key string, out interface{}) error {
	v, ok := s.data[key]
	if !ok {
		return kerr.New(kerr.Argument, "no such key %q", key)
	}
	if err := json.Unmarshal(v, out); err != nil {
		return kerr.New(kerr.Format, "key %q: %v", key, err)
	}
	return nil
}

// PutJSON encodes v into a `.json`-style leaf and Sets it, validating the
// key's index range the same way Set does.
func (s *Store) PutJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return kerr.New(kerr.Format, "key %q: %v", key, err)
	}
	return s.Set(key, data)
}

// Dump serializes the whole store (as a key -> raw bytes map, each value
// base64-encoded by the JSON encoder) for
// gzip+JSON persistence, matching the teacher's DoSave/LoadState
// gzip-wrapped jsoniter round trip in internal/storage/storage.go.
func (s *Store) Dump(w io.Writer) error {
	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)
	if err := enc.Encode(s.data); err != nil {
		gz.Close()
		return fmt.Errorf("encode store: %w", err)
	}
	return gz.Close()
}

// Load replaces the store's contents by decoding a Dump-produced stream.
func (s *Store) Load(r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return fmt.Errorf("read store stream: %w", err)
	}
	data := make(map[string][]byte)
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode store: %w", err)
	}
	s.data = data
	return nil
}

// Clone returns a deep copy of s, so a caller can keep a pre-call state to
// roll back to (spec.md §7 point 3 "Memory ... rolled back to its
// pre-call state"). Handle.Validate does not use it.
func (s *Store) Clone() *Store {
	out := New()
	for k, v := range s.data {
		out.data[k] = append([]byte(nil), v...)
	}
	return out
}

// Bytes is a convenience equality helper for tests.
func Bytes(a, b []byte) bool { return bytes.Equal(a, b) }
