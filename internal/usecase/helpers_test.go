package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fedhub/internal/domain"
)

func cfg(entityID string, hints ...string) *domain.EntityStatement {
	now := time.Now()
	return &domain.EntityStatement{
		Issuer:         entityID,
		Subject:        entityID,
		IssuedAt:       now.Add(-time.Minute),
		ExpiresAt:      now.Add(time.Hour),
		JWTID:          "cfg-" + entityID,
		Keys:           json.RawMessage(`{"keys":[]}`),
		AuthorityHints: hints,
		Metadata: map[domain.EntityType]domain.Metadata{
			domain.EntityTypeFederation: {
				"federation_fetch_endpoint": entityID + "/fetch",
			},
		},
		Raw: "cfg." + entityID + ".sig",
	}
}

func subordinate(iss, sub string) *domain.EntityStatement {
	now := time.Now()
	return &domain.EntityStatement{
		Issuer:    iss,
		Subject:   sub,
		IssuedAt:  now.Add(-time.Minute),
		ExpiresAt: now.Add(time.Hour),
		JWTID:     "sub-" + iss + "-" + sub,
		Keys:      json.RawMessage(`{"keys":[]}`),
		Raw:       "sub." + sub + ".sig",
	}
}

type fakeDiscovery struct {
	configs      map[string]*domain.EntityStatement
	subordinates map[string]*domain.EntityStatement
}

func subKey(iss, sub string) string { return iss + "|" + sub }

func (d *fakeDiscovery) FetchEntityConfiguration(_ context.Context, entityID string) (*domain.EntityStatement, error) {
	stmt, ok := d.configs[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: no configuration for %s", domain.ErrDiscoveryFailed, entityID)
	}
	return stmt, nil
}

func (d *fakeDiscovery) FetchSubordinateStatement(_ context.Context, superior *domain.EntityStatement, subordinateID string) (*domain.EntityStatement, error) {
	stmt, ok := d.subordinates[subKey(superior.Subject, subordinateID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no statement about %s", domain.ErrDiscoveryFailed, superior.Subject, subordinateID)
	}
	return stmt, nil
}

type fakeRegistry struct {
	anchors map[string]bool
}

func newFakeRegistry(ids ...string) *fakeRegistry {
	anchors := make(map[string]bool, len(ids))
	for _, id := range ids {
		anchors[id] = true
	}
	return &fakeRegistry{anchors: anchors}
}

func (r *fakeRegistry) Add(_ context.Context, entityID string, entityType domain.EntityType) (domain.TrustAnchorRecord, error) {
	r.anchors[entityID] = true
	return domain.TrustAnchorRecord{EntityID: entityID, EntityType: entityType}, nil
}

func (r *fakeRegistry) Remove(_ context.Context, entityID string) error {
	delete(r.anchors, entityID)
	return nil
}

func (r *fakeRegistry) List(context.Context) ([]domain.TrustAnchorRecord, error) {
	return nil, nil
}

func (r *fakeRegistry) IsTrustAnchor(_ context.Context, entityID string) bool {
	return r.anchors[entityID]
}

// okVerifier accepts every statement; failFor rejects those about one
// subject.
type okVerifier struct {
	failFor string
	err     error
}

func (v *okVerifier) Verify(stmt *domain.EntityStatement, _ json.RawMessage) error {
	if v.failFor != "" && stmt.Subject == v.failFor {
		return v.err
	}
	return nil
}

func (v *okVerifier) VerifyToken(string, json.RawMessage) error {
	return nil
}
