package repository

import (
	"fmt"

	"gorm.io/gorm"

	"askcorpus/internal/model"
)

type TurnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) Create(turn *model.Turn) error {
	if err := r.db.Create(turn).Error; err != nil {
		return fmt.Errorf("create turn failed: %w", err)
	}
	return nil
}

func (r *TurnRepository) CountBySessionID(sessionID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&model.Turn{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count turns failed: %w", err)
	}
	return count, nil
}

// ListRecentBySessionID returns the most recent limit turns in
// chronological order (oldest first). limit <= 0 returns full history.
func (r *TurnRepository) ListRecentBySessionID(sessionID uint, limit int) ([]model.Turn, error) {
	q := r.db.Where("session_id = ?", sessionID).Order("ordinal DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var turns []model.Turn
	if err := q.Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list turns failed: %w", err)
	}
	// Flip newest-first into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (r *TurnRepository) DeleteBySessionID(sessionID uint) error {
	if err := r.db.Where("session_id = ?", sessionID).Delete(&model.Turn{}).Error; err != nil {
		return fmt.Errorf("delete turns by session failed: %w", err)
	}
	return nil
}
