package repository

import (
	"fmt"

	"gorm.io/gorm"

	"docqa-service/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ListByURLHash returns the document's chunks in chunk order.
func (r *ChunkRepository) ListByURLHash(urlHash string) ([]model.StoredChunk, error) {
	var chunks []model.StoredChunk
	if err := r.db.Where("url_hash = ?", urlHash).Order("chunk_index ASC").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list stored chunks failed: %w", err)
	}
	return chunks, nil
}
