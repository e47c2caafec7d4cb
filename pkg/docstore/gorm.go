package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// documentRecord 是 MySQL 中保存文档的表结构。
type documentRecord struct {
	Collection string    `gorm:"primaryKey;type:varchar(255)"`
	DocID      string    `gorm:"primaryKey;type:varchar(191)"`
	Data       string    `gorm:"type:longtext;not null"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (documentRecord) TableName() string {
	return "documents"
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore 创建基于 GORM (MySQL) 的文档存储，并自动迁移 documents 表。
func NewGormStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&documentRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var rec documentRecord
	err := s.db.WithContext(ctx).Where("collection = ? AND doc_id = ?", collection, id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	data, err := decodeFields([]byte(rec.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, id, err)
	}
	return &Document{ID: id, Data: data}, nil
}

func (s *gormStore) Set(ctx context.Context, collection, id string, data interface{}) error {
	m, err := ToMap(data)
	if err != nil {
		return err
	}
	return s.write(s.db.WithContext(ctx), collection, id, m)
}

func (s *gormStore) Merge(ctx context.Context, collection, id string, data interface{}) error {
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
	return s.write(s.db.WithContext(ctx), collection, id, mergeFields(existing, m))
}

func (s *gormStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	m, err := ToMap(fields)
	if err != nil {
		return err
	}
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	return s.write(s.db.WithContext(ctx), collection, id, mergeFields(doc.Data, m))
}

func (s *gormStore) Delete(ctx context.Context, collection, id string) error {
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Delete(&documentRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *gormStore) List(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	var recs []documentRecord
	err := s.db.WithContext(ctx).Where("collection = ?", collection).Order("doc_id").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", collection, err)
	}
	docs := make([]Document, 0, len(recs))
	for _, rec := range recs {
		data, err := decodeFields([]byte(rec.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, rec.DocID, err)
		}
		if matches(data, filters) {
			docs = append(docs, Document{ID: rec.DocID, Data: data})
		}
	}
	return docs, nil
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *gormStore) write(db *gorm.DB, collection, id string, m map[string]interface{}) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	rec := documentRecord{Collection: collection, DocID: id, Data: string(raw)}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to write document %s/%s: %w", collection, id, err)
	}
	return nil
}
