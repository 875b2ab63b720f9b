package db

import (
	"context"
	"errors"

	"fedhub/internal/domain"

	"gorm.io/gorm"
)

// TrustAnchorRepository persists registry mutations. It backs the in-memory
// registry as its write-through store.
type TrustAnchorRepository struct {
	db *gorm.DB
}

func NewTrustAnchorRepository(db *gorm.DB) *TrustAnchorRepository {
	return &TrustAnchorRepository{db: db}
}

func (r *TrustAnchorRepository) SaveAnchor(ctx context.Context, rec domain.TrustAnchorRecord) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := TrustAnchorModel{
		EntityID:   rec.EntityID,
		EntityType: string(rec.EntityType),
		AddedAt:    rec.AddedAt,
	}
	err := r.db.WithContext(ctx).Create(&model).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *TrustAnchorRepository) DeleteAnchor(ctx context.Context, entityID string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).Delete(&TrustAnchorModel{}, "entity_id = ?", entityID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TrustAnchorRepository) ListAnchors(ctx context.Context) ([]domain.TrustAnchorRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []TrustAnchorModel
	if err := r.db.WithContext(ctx).Order("added_at asc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.TrustAnchorRecord, 0, len(models))
	for _, m := range models {
		out = append(out, domain.TrustAnchorRecord{
			EntityID:   m.EntityID,
			EntityType: domain.EntityType(m.EntityType),
			AddedAt:    m.AddedAt,
		})
	}
	return out, nil
}
