package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kart-io/ragserver/internal/model"
)

// ErrDocumentNotFound 文档不存在。
var ErrDocumentNotFound = errors.New("document not found")

// GormDocumentStore 实现基于 gorm 的文档元数据存储。
type GormDocumentStore struct {
	db *gorm.DB
}

// NewGormDocumentStore 创建文档元数据存储实例。
func NewGormDocumentStore(db *gorm.DB) *GormDocumentStore {
	return &GormDocumentStore{db: db}
}

// Create 创建 pending 状态的文档记录。
func (s *GormDocumentStore) Create(ctx context.Context, doc *model.Document) error {
	if doc.Status == "" {
		doc.Status = model.StatusPending
	}
	return s.db.WithContext(ctx).Create(doc).Error
}

// Finalize 将文档标记为 completed 并记录块数量。
func (s *GormDocumentStore) Finalize(ctx context.Context, id string, chunkCount int) error {
	result := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      model.StatusCompleted,
			"chunk_count": chunkCount,
			"fail_reason": "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// MarkFailed 将文档标记为 failed 并记录原因。
func (s *GormDocumentStore) MarkFailed(ctx context.Context, id string, reason string) error {
	result := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      model.StatusFailed,
			"fail_reason": reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// Get 按 ID 获取文档。
func (s *GormDocumentStore) Get(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByHash 按内容哈希查找已完成的文档，用于重复上传检测。
func (s *GormDocumentStore) GetByHash(ctx context.Context, hash string) (*model.Document, error) {
	var doc model.Document
	err := s.db.WithContext(ctx).
		Where("hash = ? AND status = ?", hash, model.StatusCompleted).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// List 列出可见文档（不含 failed），按创建时间倒序。
func (s *GormDocumentStore) List(ctx context.Context) ([]*model.Document, error) {
	var docs []*model.Document
	err := s.db.WithContext(ctx).
		Where("status <> ?", model.StatusFailed).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete 删除文档记录。
func (s *GormDocumentStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// CountCompleted 返回 completed 状态的文档数量。
func (s *GormDocumentStore) CountCompleted(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("status = ?", model.StatusCompleted).
		Count(&count).Error
	return count, err
}

var _ DocumentStore = (*GormDocumentStore)(nil)
