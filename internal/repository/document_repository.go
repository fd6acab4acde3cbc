package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docqa-service/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) GetByURLHash(urlHash string) (*model.StoredDocument, error) {
	var doc model.StoredDocument
	if err := r.db.Where("url_hash = ?", urlHash).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stored document failed: %w", err)
	}
	return &doc, nil
}

// CreateWithChunks writes the document row and its chunks in one transaction,
// inserting chunks batchSize rows at a time. A failed batch rolls back
// everything, so a document row always means a complete ingestion.
func (r *DocumentRepository) CreateWithChunks(doc *model.StoredDocument, chunks []model.StoredChunk, batchSize int) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("create stored document failed: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&chunks, batchSize).Error; err != nil {
			return fmt.Errorf("create stored chunks failed: %w", err)
		}
		return nil
	})
	return err
}

// DeleteByURLHash removes the document row and every chunk row.
func (r *DocumentRepository) DeleteByURLHash(urlHash string) (int64, error) {
	var removed int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("url_hash = ?", urlHash).Delete(&model.StoredChunk{})
		if res.Error != nil {
			return fmt.Errorf("delete stored chunks failed: %w", res.Error)
		}
		removed = res.RowsAffected
		if err := tx.Where("url_hash = ?", urlHash).Delete(&model.StoredDocument{}).Error; err != nil {
			return fmt.Errorf("delete stored document failed: %w", err)
		}
		return nil
	})
	return removed, err
}
