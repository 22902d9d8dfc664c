package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/printloom/go-services/pkg/metrics"
)

var (
	ErrNotFound = errors.New("store: document not found")
	ErrConflict = errors.New("store: version conflict")
)

// CorruptError reports an unreadable collection file. The file has already
// been quarantined (renamed aside) when this error is returned; the operator
// must restore from backup or start the collection empty.
type CorruptError struct {
	Path       string
	Quarantine string
	Err        error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("store: corrupt collection %s (quarantined as %s): %v", e.Path, e.Quarantine, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Document is one versioned entry in a collection. Payload is opaque to the
// store; Version strictly increases on every successful mutation of Key.
type Document struct {
	Key       string          `json:"key"`
	Version   int64           `json:"version"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Mutate produces the next payload for a key. cur is nil when the key does
// not exist yet. Returning an error aborts the upsert without writing.
type Mutate func(cur *Document) (json.RawMessage, error)

// Collection is a file-backed key→Document map. Every mutation rewrites the
// whole file through a temp-file + atomic rename, so readers never observe a
// partial write and a crash mid-write leaves the previous version intact.
// A per-collection mutex serializes mutations in-process; a flock-based
// advisory lock provides the same exclusion across processes.
type Collection struct {
	name string
	path string

	mu  sync.Mutex
	flk *flock.Flock
}

// Open prepares the collection file <dir>/<name>.json, creating dir as needed.
func Open(dir, name string) (*Collection, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	path := filepath.Join(dir, name+".json")
	return &Collection{
		name: name,
		path: path,
		flk:  flock.New(path + ".lock"),
	}, nil
}

// Get returns the current document for key, or ErrNotFound.
func (c *Collection) Get(key string) (Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := c.locked(func() (map[string]Document, error) { return c.load() })
	if err != nil {
		return Document{}, err
	}
	d, ok := data[key]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d, nil
}

// List returns a consistent snapshot of every document at call time.
func (c *Collection) List() ([]Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := c.locked(func() (map[string]Document, error) { return c.load() })
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(data))
	for _, d := range data {
		out = append(out, d)
	}
	return out, nil
}

// Upsert runs one optimistic read-mutate-write cycle for key. The mutate
// callback runs outside the collection lock; before committing, the stored
// version is compared against the version read; if any other upsert won the
// race in between, ErrConflict is returned and nothing is written. On success
// the committed document's version is exactly read-version + 1.
func (c *Collection) Upsert(key string, fn Mutate) (Document, error) {
	cur, base, err := c.snapshot(key)
	if err != nil {
		return Document{}, err
	}
	payload, err := fn(cur)
	if err != nil {
		return Document{}, err
	}
	return c.commit(key, base, payload)
}

// UpsertRetry re-runs the full read-mutate-write cycle once when the first
// attempt loses a version race. A second ErrConflict is surfaced to the
// caller.
func (c *Collection) UpsertRetry(key string, fn Mutate) (Document, error) {
	d, err := c.Upsert(key, fn)
	if errors.Is(err, ErrConflict) {
		return c.Upsert(key, fn)
	}
	return d, err
}

// Delete removes key from the collection, or returns ErrNotFound.
func (c *Collection) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.locked(func() (map[string]Document, error) {
		data, err := c.load()
		if err != nil {
			return nil, err
		}
		if _, ok := data[key]; !ok {
			return nil, ErrNotFound
		}
		delete(data, key)
		return nil, c.save(data)
	})
	return err
}

// snapshot reads the current document (nil when absent) and its version.
func (c *Collection) snapshot(key string) (*Document, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := c.locked(func() (map[string]Document, error) { return c.load() })
	if err != nil {
		return nil, 0, err
	}
	if d, ok := data[key]; ok {
		cp := d
		return &cp, d.Version, nil
	}
	return nil, 0, nil
}

// commit writes the new payload iff the stored version still equals base.
func (c *Collection) commit(key string, base int64, payload json.RawMessage) (Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var next Document
	_, err := c.locked(func() (map[string]Document, error) {
		data, err := c.load()
		if err != nil {
			return nil, err
		}
		var stored int64
		if d, ok := data[key]; ok {
			stored = d.Version
		}
		if stored != base {
			metrics.StoreConflicts.WithLabelValues(c.name).Inc()
			return nil, ErrConflict
		}
		next = Document{
			Key:       key,
			Version:   base + 1,
			Payload:   payload,
			UpdatedAt: time.Now().UTC(),
		}
		data[key] = next
		if err := c.save(data); err != nil {
			return nil, err
		}
		metrics.StoreCommits.WithLabelValues(c.name).Inc()
		return nil, nil
	})
	if err != nil {
		return Document{}, err
	}
	return next, nil
}

// locked runs fn under the cross-process advisory lock.
func (c *Collection) locked(fn func() (map[string]Document, error)) (map[string]Document, error) {
	if err := c.flk.Lock(); err != nil {
		return nil, fmt.Errorf("store: acquire file lock: %w", err)
	}
	defer func() { _ = c.flk.Unlock() }()
	return fn()
}

func (c *Collection) load() (map[string]Document, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Document{}, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", c.path, err)
	}
	data := map[string]Document{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		quarantine := fmt.Sprintf("%s.corrupt-%s", c.path, uuid.NewString())
		if rerr := os.Rename(c.path, quarantine); rerr != nil {
			quarantine = "(rename failed: " + rerr.Error() + ")"
		}
		return nil, &CorruptError{Path: c.path, Quarantine: quarantine, Err: err}
	}
	return data, nil
}

// save writes the whole collection to a temp file in the same directory,
// fsyncs it, then renames it over the collection file.
func (c *Collection) save(data map[string]Document) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", c.name, err)
	}
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, c.name+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("store: rename into place: %w", err)
	}
	return nil
}
