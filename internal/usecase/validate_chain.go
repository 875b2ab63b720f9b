package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fedhub/internal/domain"
)

// ValidateTrustChain runs the ordered acceptance checks over one candidate
// chain: shape, temporal validity, hop-by-hop signatures, anchor
// membership, then the top-down metadata policy merge. The first failing
// check decides the error.
type ValidateTrustChain struct {
	Registry domain.AnchorRegistry
	Verifier domain.StatementVerifier
	Now      func() time.Time
}

// ValidatedChain is the product of a successful validation: the chain, the
// anchor that vouched for it, and the leaf metadata after every policy
// layer was applied.
type ValidatedChain struct {
	Chain     domain.TrustChain
	AnchorID  string
	Metadata  domain.EffectiveMetadata
	ExpiresAt time.Time
}

func (uc *ValidateTrustChain) Execute(ctx context.Context, chain domain.TrustChain) (*ValidatedChain, error) {
	if err := uc.checkShape(chain); err != nil {
		return nil, err
	}

	now := time.Now()
	if uc.Now != nil {
		now = uc.Now()
	}
	expiresAt := chain[0].ExpiresAt
	for _, stmt := range chain {
		if err := stmt.TemporallyValid(now); err != nil {
			return nil, err
		}
		if stmt.ExpiresAt.Before(expiresAt) {
			expiresAt = stmt.ExpiresAt
		}
	}

	if err := uc.checkSignatures(chain); err != nil {
		return nil, err
	}

	anchor := chain.Anchor()
	if !uc.Registry.IsTrustAnchor(ctx, anchor.Issuer) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUntrustedAnchor, anchor.Issuer)
	}

	metadata, err := mergeMetadata(chain)
	if err != nil {
		return nil, err
	}

	return &ValidatedChain{
		Chain:     chain,
		AnchorID:  anchor.Issuer,
		Metadata:  metadata,
		ExpiresAt: expiresAt,
	}, nil
}

func (uc *ValidateTrustChain) checkShape(chain domain.TrustChain) error {
	if len(chain) < 2 {
		return fmt.Errorf("%w: %d statements", domain.ErrChainInvalid, len(chain))
	}
	leaf, anchor := chain.Leaf(), chain.Anchor()
	if leaf == nil || !leaf.SelfIssued() {
		return fmt.Errorf("%w: first statement is not a self-issued configuration", domain.ErrChainInvalid)
	}
	if !anchor.SelfIssued() {
		return fmt.Errorf("%w: final statement is not a self-issued configuration", domain.ErrChainInvalid)
	}
	if len(chain) == 2 {
		// A chain with no subordinate statement is acceptable only when
		// the anchor's own configuration unambiguously lists the leaf.
		if !anchor.ListsSubordinate(leaf.Subject) {
			return fmt.Errorf("%w: %s does not list %s as a subordinate", domain.ErrChainInvalid, anchor.Issuer, leaf.Subject)
		}
		return nil
	}
	for i := 1; i < len(chain)-1; i++ {
		if chain[i].Subject != chain[i-1].Issuer {
			return fmt.Errorf("%w: statement %d is about %s, expected %s", domain.ErrChainInvalid, i, chain[i].Subject, chain[i-1].Issuer)
		}
		if chain[i].SelfIssued() {
			return fmt.Errorf("%w: statement %d is self-issued", domain.ErrChainInvalid, i)
		}
	}
	if anchor.Subject != chain[len(chain)-2].Issuer {
		return fmt.Errorf("%w: final configuration is for %s, expected %s", domain.ErrChainInvalid, anchor.Subject, chain[len(chain)-2].Issuer)
	}
	return nil
}

// checkSignatures verifies each statement against the keys its superior
// vouched for it, and the anchor configuration against its own declared
// keys. The two-element form has no vouched keys for the leaf, so its
// configuration is checked against its own.
func (uc *ValidateTrustChain) checkSignatures(chain domain.TrustChain) error {
	for i := 0; i < len(chain)-1; i++ {
		keys := chain[i+1].Keys
		if len(chain) == 2 {
			keys = chain[0].Keys
		}
		if err := uc.Verifier.Verify(chain[i], keys); err != nil {
			return err
		}
	}
	anchor := chain.Anchor()
	return uc.Verifier.Verify(anchor, anchor.Keys)
}

// mergeMetadata applies each policy layer from the anchor end downward to
// the leaf's declared metadata, per entity type.
func mergeMetadata(chain domain.TrustChain) (domain.EffectiveMetadata, error) {
	leaf := chain.Leaf()
	out := make(domain.EffectiveMetadata, len(leaf.Metadata))
	for entityType, md := range leaf.Metadata {
		merged := make(domain.Metadata, len(md))
		for k, v := range md {
			merged[k] = v
		}
		for i := len(chain) - 1; i >= 1; i-- {
			policy, ok := chain[i].MetadataPolicy[entityType]
			if !ok {
				continue
			}
			next, err := domain.ApplyPolicy(merged, policy)
			if err != nil {
				return nil, err
			}
			merged = next
		}
		out[entityType] = merged
	}
	return out, nil
}

// errSeverity ranks failure causes so multi-chain resolution can keep the
// most specific one when every candidate fails.
func errSeverity(err error) int {
	switch {
	case errors.Is(err, domain.ErrPolicyViolation):
		return 7
	case errors.Is(err, domain.ErrSignatureInvalid),
		errors.Is(err, domain.ErrKeyNotFound),
		errors.Is(err, domain.ErrAlgorithmUnsupported):
		return 6
	case errors.Is(err, domain.ErrExpired), errors.Is(err, domain.ErrNotYetValid):
		return 5
	case errors.Is(err, domain.ErrUntrustedAnchor):
		return 4
	case errors.Is(err, domain.ErrChainInvalid), errors.Is(err, domain.ErrInvalidStatement):
		return 3
	case errors.Is(err, domain.ErrChainTooDeep):
		return 2
	case errors.Is(err, domain.ErrDiscoveryFailed):
		return 1
	default:
		return 0
	}
}

// mostSevere picks the error to surface when no chain validated.
func mostSevere(errs []error) error {
	var best error
	bestRank := -1
	for _, err := range errs {
		if err == nil {
			continue
		}
		if rank := errSeverity(err); rank > bestRank {
			best, bestRank = err, rank
		}
	}
	return best
}
