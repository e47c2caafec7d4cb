package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// memoryStore 是进程内的文档存储，用于本地开发和测试。
type memoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

// NewMemoryStore 创建一个空的内存文档存储。
func NewMemoryStore() Store {
	return &memoryStore{docs: make(map[string]map[string][]byte)}
}

func (s *memoryStore) Get(_ context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	raw, ok := s.docs[collection][id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	data, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}
	return &Document{ID: id, Data: data}, nil
}

func (s *memoryStore) Set(_ context.Context, collection, id string, data interface{}) error {
	m, err := ToMap(data)
	if err != nil {
		return err
	}
	return s.put(collection, id, m)
}

func (s *memoryStore) Merge(ctx context.Context, collection, id string, data interface{}) error {
	m, err := ToMap(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := map[string]interface{}{}
	if raw, ok := s.docs[collection][id]; ok {
		if existing, err = decodeFields(raw); err != nil {
			return err
		}
	}
	return s.putLocked(collection, id, mergeFields(existing, m))
}

func (s *memoryStore) Update(_ context.Context, collection, id string, fields map[string]interface{}) error {
	m, err := ToMap(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[collection][id]
	if !ok {
		return ErrNotFound
	}
	existing, err := decodeFields(raw)
	if err != nil {
		return err
	}
	return s.putLocked(collection, id, mergeFields(existing, m))
}

func (s *memoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs[collection], id)
	return nil
}

func (s *memoryStore) List(_ context.Context, collection string, filters ...Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.docs[collection]))
	for id := range s.docs[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		data, err := decodeFields(s.docs[collection][id])
		if err != nil {
			return nil, err
		}
		if matches(data, filters) {
			docs = append(docs, Document{ID: id, Data: data})
		}
	}
	return docs, nil
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) put(collection, id string, m map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(collection, id, m)
}

func (s *memoryStore) putLocked(collection, id string, m map[string]interface{}) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string][]byte)
	}
	s.docs[collection][id] = raw
	return nil
}
