package usecase

import (
	"context"
	"fmt"
	"time"

	"fedhub/internal/domain"
)

// ResolveEntity composes chain building and validation: candidates are
// tried in builder order and the first accepted chain wins. When every
// candidate fails, the most specific failure across building and
// validation is surfaced.
type ResolveEntity struct {
	Builder   *BuildTrustChains
	Validator *ValidateTrustChain
}

// Resolution is the answer the resolve surface returns for one entity.
type Resolution struct {
	EntityID  string
	AnchorID  string
	Metadata  domain.EffectiveMetadata
	Chain     domain.TrustChain
	ExpiresAt time.Time
}

func (uc *ResolveEntity) Execute(ctx context.Context, entityID string) (*Resolution, error) {
	outcome, err := uc.Builder.Execute(ctx, entityID)
	if err != nil {
		return nil, err
	}

	failures := append([]error(nil), outcome.BranchErrors...)
	for _, chain := range outcome.Chains {
		validated, err := uc.Validator.Execute(ctx, chain)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		return &Resolution{
			EntityID:  entityID,
			AnchorID:  validated.AnchorID,
			Metadata:  validated.Metadata,
			Chain:     validated.Chain,
			ExpiresAt: validated.ExpiresAt,
		}, nil
	}

	if best := mostSevere(failures); best != nil {
		return nil, best
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrNoChainFound, entityID)
}
