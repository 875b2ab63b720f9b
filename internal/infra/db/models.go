package db

import "time"

type TrustAnchorModel struct {
	EntityID   string    `gorm:"primaryKey"`
	EntityType string    `gorm:"not null"`
	AddedAt    time.Time `gorm:"not null"`
}

func (TrustAnchorModel) TableName() string { return "trust_anchors" }

type ClientModel struct {
	ClientID     string    `gorm:"primaryKey"`
	Metadata     []byte    `gorm:"type:jsonb;not null"`
	TrustAnchor  string    `gorm:"index;not null"`
	RegisteredAt time.Time `gorm:"not null"`
}

func (ClientModel) TableName() string { return "federation_clients" }
