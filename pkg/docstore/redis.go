package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
)

// redisStore 用 Redis 保存文档：doc:{collection}:{id} 存 JSON，docs:{collection} 集合记录文档 ID。
type redisStore struct {
	client *redis.Client
}

// NewRedisStore 创建基于 Redis 的文档存储。
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func docKey(collection, id string) string {
	return fmt.Sprintf("doc:%s:%s", collection, id)
}

func indexKey(collection string) string {
	return fmt.Sprintf("docs:%s", collection)
}

func (s *redisStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	raw, err := s.client.Get(ctx, docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	data, err := decodeFields(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, id, err)
	}
	return &Document{ID: id, Data: data}, nil
}

func (s *redisStore) Set(ctx context.Context, collection, id string, data interface{}) error {
	m, err := ToMap(data)
	if err != nil {
		return err
	}
	return s.write(ctx, collection, id, m)
}

func (s *redisStore) Merge(ctx context.Context, collection, id string, data interface{}) error {
	m, err := ToMap(data)
	if err != nil {
		return err
	}
	existing := map[string]interface{}{}
	doc, err := s.Get(ctx, collection, id)
	switch {
	case err == nil:
		existing = doc.Data
	case !errors.Is(err, ErrNotFound):
		return err
	}
	return s.write(ctx, collection, id, mergeFields(existing, m))
}

func (s *redisStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	m, err := ToMap(fields)
	if err != nil {
		return err
	}
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	return s.write(ctx, collection, id, mergeFields(doc.Data, m))
}

func (s *redisStore) Delete(ctx context.Context, collection, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, docKey(collection, id))
	pipe.SRem(ctx, indexKey(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *redisStore) List(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	ids, err := s.client.SMembers(ctx, indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return []Document{}, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(collection, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(ids))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// 索引残留但文档已过期或被删除
			continue
		}
		data, err := decodeFields([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, ids[i], err)
		}
		if matches(data, filters) {
			docs = append(docs, Document{ID: ids[i], Data: data})
		}
	}
	return docs, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

func (s *redisStore) write(ctx context.Context, collection, id string, m map[string]interface{}) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, docKey(collection, id), raw, 0)
	pipe.SAdd(ctx, indexKey(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write document %s/%s: %w", collection, id, err)
	}
	return nil
}
