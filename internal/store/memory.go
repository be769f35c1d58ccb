package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	apperr "engagehub/internal/errors"
)

// MemoryStore is a mutex-guarded in-memory DocumentStore. It backs unit
// tests and local development; conditional semantics match the Postgres
// implementation.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memDoc
}

type memDoc struct {
	id        string
	data      []byte
	fields    map[string]any
	createdAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]*memDoc)}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &Document{ID: doc.id, Data: cloneBytes(doc.data)}, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filters []Filter, orderBy Order, page Page) ([]Document, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.match(collection, filters)
	sortDocs(matched, orderBy)

	start := page.Offset
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}

	out := make([]Document, 0, end-start)
	for _, d := range matched[start:end] {
		out = append(out, Document{ID: d.id, Data: cloneBytes(d.data)})
	}
	return out, nil
}

func (s *MemoryStore) QueryIn(ctx context.Context, collection, field string, values []string) ([]Document, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*memDoc
	for _, d := range s.collections[collection] {
		if want[fieldText(d.fields[field])] {
			matched = append(matched, d)
		}
	}
	sortDocs(matched, Order{Field: "created_at"})

	out := make([]Document, 0, len(matched))
	for _, d := range matched {
		out = append(out, Document{ID: d.id, Data: cloneBytes(d.data)})
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string, filters []Filter) (int64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.match(collection, filters))), nil
}

func (s *MemoryStore) Insert(ctx context.Context, collection, id string, data []byte) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	doc, err := decode(id, data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]*memDoc)
		s.collections[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return apperr.ErrConflict
	}
	coll[id] = doc
	return nil
}

func (s *MemoryStore) UpdateFields(ctx context.Context, collection, id string, partial map[string]any) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return apperr.ErrNotFound
	}
	// round-trip the patch through JSON so stored field types match what a
	// real store would hold
	patch, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(patch, &decoded); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	for k, v := range decoded {
		doc.fields[k] = v
	}
	return doc.reencode()
}

func (s *MemoryStore) AtomicIncrement(ctx context.Context, collection, id, field string, delta int64) (int64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return 0, apperr.ErrNotFound
	}
	current := int64(0)
	if v, ok := doc.fields[field].(float64); ok {
		current = int64(v)
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	doc.fields[field] = float64(next)
	if err := doc.reencode(); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collections[collection]
	if _, ok := coll[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(coll, id)
	return nil
}

func (s *MemoryStore) match(collection string, filters []Filter) []*memDoc {
	var matched []*memDoc
	for _, d := range s.collections[collection] {
		ok := true
		for _, f := range filters {
			if fieldText(d.fields[f.Field]) != fieldText(f.Value) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, d)
		}
	}
	return matched
}

func (d *memDoc) reencode() error {
	data, err := json.Marshal(d.fields)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	d.data = data
	return nil
}

func decode(id string, data []byte) (*memDoc, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	created := time.Now().UTC()
	if raw, ok := fields["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			created = t
		}
	}
	return &memDoc{id: id, data: cloneBytes(data), fields: fields, createdAt: created}, nil
}

func sortDocs(docs []*memDoc, orderBy Order) {
	field := orderBy.Field
	if field == "" {
		field = "created_at"
	}
	sort.SliceStable(docs, func(i, j int) bool {
		var less bool
		if field == "created_at" {
			if docs[i].createdAt.Equal(docs[j].createdAt) {
				less = docs[i].id < docs[j].id
			} else {
				less = docs[i].createdAt.Before(docs[j].createdAt)
			}
		} else {
			a, b := fieldText(docs[i].fields[field]), fieldText(docs[j].fields[field])
			if a == b {
				less = docs[i].id < docs[j].id
			} else {
				less = a < b
			}
		}
		if orderBy.Desc {
			return !less
		}
		return less
	})
}

// fieldText normalizes JSON field values and filter literals into one
// comparable text form, mirroring Postgres ->> semantics.
func fieldText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperr.ErrStoreTimeout
	}
	return nil
}
