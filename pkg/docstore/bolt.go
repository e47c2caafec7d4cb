package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// boltStore 把每个集合保存为 BoltDB 中的一个 bucket，key 为文档 ID，value 为 JSON。
// 适合单实例部署，Update 与 Merge 在同一个读写事务内完成。
type boltStore struct {
	db *bolt.DB
}

// NewBoltStore 打开（必要时创建）path 处的 BoltDB 文件。
func NewBoltStore(path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt file %s: %w", path, err)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Get(_ context.Context, collection, id string) (*Document, error) {
	var doc *Document
	err := s.db.View(func(tx *bolt.Tx) error {
		data, err := readDoc(tx.Bucket([]byte(collection)), id)
		if err != nil {
			return err
		}
		doc = &Document{ID: id, Data: data}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *boltStore) Set(_ context.Context, collection, id string, data interface{}) error {
	m, err := ToMap(data)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return writeDoc(tx, collection, id, m)
	})
}

func (s *boltStore) Merge(_ context.Context, collection, id string, data interface{}) error {
	m, err := ToMap(data)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		existing, err := readDoc(tx.Bucket([]byte(collection)), id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return writeDoc(tx, collection, id, mergeFields(existing, m))
	})
}

func (s *boltStore) Update(_ context.Context, collection, id string, fields map[string]interface{}) error {
	m, err := ToMap(fields)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		existing, err := readDoc(tx.Bucket([]byte(collection)), id)
		if err != nil {
			return err
		}
		return writeDoc(tx, collection, id, mergeFields(existing, m))
	})
}

func (s *boltStore) Delete(_ context.Context, collection, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
}

func (s *boltStore) List(_ context.Context, collection string, filters ...Filter) ([]Document, error) {
	docs := []Document{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			data, err := decodeFields(v)
			if err != nil {
				return fmt.Errorf("failed to decode document %s/%s: %w", collection, k, err)
			}
			if matches(data, filters) {
				docs = append(docs, Document{ID: string(k), Data: data})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}

func readDoc(b *bolt.Bucket, id string) (map[string]interface{}, error) {
	if b == nil {
		return nil, ErrNotFound
	}
	raw := b.Get([]byte(id))
	if raw == nil {
		return nil, ErrNotFound
	}
	// bolt 返回的切片只在事务内有效，decodeFields 会复制出新的 map
	return decodeFields(raw)
}

func writeDoc(tx *bolt.Tx, collection, id string, m map[string]interface{}) error {
	b, err := tx.CreateBucketIfNotExists([]byte(collection))
	if err != nil {
		return err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return b.Put([]byte(id), raw)
}
