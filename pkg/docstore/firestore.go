package docstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// firestoreStore 是生产环境使用的 Firestore 文档存储。
type firestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore 用已建立的 Firestore 客户端创建文档存储。
func NewFirestoreStore(client *firestore.Client) Store {
	return &firestoreStore{client: client}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *firestoreStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	return &Document{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

func (s *firestoreStore) Set(ctx context.Context, collection, id string, data interface{}) error {
	m, err := ToMap(data)
	if err != nil {
		return err
	}
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, m); err != nil {
		return fmt.Errorf("failed to set document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *firestoreStore) Merge(ctx context.Context, collection, id string, data interface{}) error {
	m, err := ToMap(data)
	if err != nil {
		return err
	}
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, m, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to merge document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *firestoreStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	m, err := ToMap(fields)
	if err != nil {
		return err
	}
	updates := make([]firestore.Update, 0, len(m))
	for k, v := range m {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	_, err = s.client.Collection(collection).Doc(id).Update(ctx, updates)
	if isNotFound(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *firestoreStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *firestoreStore) List(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		q = q.Where(f.Field, "==", f.Value)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	docs := make([]Document, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list collection %s: %w", collection, err)
		}
		docs = append(docs, Document{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return docs, nil
}

func (s *firestoreStore) Close() error {
	return s.client.Close()
}
