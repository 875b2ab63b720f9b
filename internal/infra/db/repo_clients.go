package db

import (
	"context"
	"encoding/json"
	"errors"

	"fedhub/internal/domain"

	"gorm.io/gorm"
)

// ClientRepository keeps a local record of clients the hub has accepted and
// forwarded to the IdP core.
type ClientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Save(ctx context.Context, rec domain.ClientRecord) error {
	if r.db == nil {
		return errDBUnavailable
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	model := ClientModel{
		ClientID:     rec.ClientID,
		Metadata:     metadata,
		TrustAnchor:  rec.TrustAnchor,
		RegisteredAt: rec.RegisteredAt,
	}
	return r.db.WithContext(ctx).Save(&model).Error
}

func (r *ClientRepository) Get(ctx context.Context, clientID string) (*domain.ClientRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model ClientModel
	err := r.db.WithContext(ctx).First(&model, "client_id = ?", clientID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var metadata domain.Metadata
	if err := json.Unmarshal(model.Metadata, &metadata); err != nil {
		return nil, err
	}
	return &domain.ClientRecord{
		ClientID:     model.ClientID,
		Metadata:     metadata,
		TrustAnchor:  model.TrustAnchor,
		RegisteredAt: model.RegisteredAt,
	}, nil
}
