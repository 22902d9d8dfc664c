package design

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/printloom/go-services/internal/gateway"
	"github.com/printloom/go-services/internal/store"
)

var (
	ErrExists   = errors.New("design: slug already registered")
	ErrNotFound = errors.New("design: not found")
)

// Service is the registry surface for designs: CRUD plus metadata and mockup
// bookkeeping. Publishing transitions go through the orchestrator, never here.
type Service struct {
	col *store.Collection
}

func NewService(col *store.Collection) *Service {
	return &Service{col: col}
}

// Register creates a new Draft record. The slug must be unused.
func (s *Service) Register(slug, title, sourceImageRef string, tags []string) (*Record, error) {
	rec := NewRecord(slug, title, sourceImageRef, tags)
	doc, err := s.col.Upsert(slug, func(cur *store.Document) (json.RawMessage, error) {
		if cur != nil {
			return nil, ErrExists
		}
		return rec.Encode()
	})
	if err != nil {
		return nil, err
	}
	rec.UpdatedAt = doc.UpdatedAt
	rec.UpdatedVersion = doc.Version
	return rec, nil
}

func (s *Service) Get(slug string) (*Record, error) {
	doc, err := s.col.Get(slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeDoc(doc)
}

// List returns every design, ordered by slug for stable output.
func (s *Service) List() ([]*Record, error) {
	docs, err := s.col.List()
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := decodeDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// Delete removes a design regardless of its publishing state. External
// catalog entries are not touched.
func (s *Service) Delete(slug string) error {
	if err := s.col.Delete(slug); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ApplyMetadata overwrites the listing copy with an advisor suggestion.
func (s *Service) ApplyMetadata(slug string, md gateway.Metadata) (*Record, error) {
	return s.update(slug, func(r *Record) {
		if md.Title != "" {
			r.Title = md.Title
		}
		if md.Description != "" {
			r.Description = md.Description
		}
		if len(md.Tags) > 0 {
			r.Tags = md.Tags
		}
	})
}

// AttachMockups appends rendered mockup refs, skipping duplicates.
func (s *Service) AttachMockups(slug string, refs []string) (*Record, error) {
	return s.update(slug, func(r *Record) {
		for _, ref := range refs {
			seen := false
			for _, m := range r.Mockups {
				if m == ref {
					seen = true
					break
				}
			}
			if !seen {
				r.Mockups = append(r.Mockups, ref)
			}
		}
	})
}

// update runs a read-mutate-write cycle, retrying once on a version race.
func (s *Service) update(slug string, mutate func(*Record)) (*Record, error) {
	var out *Record
	doc, err := s.col.UpsertRetry(slug, func(cur *store.Document) (json.RawMessage, error) {
		if cur == nil {
			return nil, ErrNotFound
		}
		rec, err := Decode(cur.Payload)
		if err != nil {
			return nil, err
		}
		mutate(rec)
		out = rec
		return rec.Encode()
	})
	if err != nil {
		return nil, err
	}
	out.UpdatedAt = doc.UpdatedAt
	out.UpdatedVersion = doc.Version
	return out, nil
}

func decodeDoc(doc store.Document) (*Record, error) {
	rec, err := Decode(doc.Payload)
	if err != nil {
		return nil, err
	}
	rec.UpdatedAt = doc.UpdatedAt
	rec.UpdatedVersion = doc.Version
	return rec, nil
}
