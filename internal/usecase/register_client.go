package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fedhub/internal/domain"
)

// RequestObjectParser decodes a compact Request Object without verifying
// it; verification happens against the keys the trust chain validated.
type RequestObjectParser interface {
	ParseRequestObject(token string) (*domain.RequestObjectClaims, error)
}

// ClientStore keeps the hub's own record of accepted registrations. The
// IdP core stays authoritative; this is the local ledger.
type ClientStore interface {
	Save(ctx context.Context, rec domain.ClientRecord) error
}

// RegisterClient runs one federation registration attempt: parse the
// Request Object, resolve and validate the RP's trust chain, verify the
// object's signature against the validated keys, check the requested
// parameters against the effective metadata, consult the operator policy,
// then hand the accepted record to the IdP core.
//
// Chain and signature failures are errors; a well-formed request that
// fails an acceptance rule produces a rejected decision instead.
type RegisterClient struct {
	Parser   RequestObjectParser
	Resolver *ResolveEntity
	Verifier domain.TokenVerifier
	Policy   domain.RegistrationPolicyEngine
	IdP      domain.IdPCore
	Clients  ClientStore
	Now      func() time.Time
}

func (uc *RegisterClient) Execute(ctx context.Context, requestObject string) (*domain.RegistrationDecision, error) {
	claims, err := uc.Parser.ParseRequestObject(requestObject)
	if err != nil {
		return nil, err
	}
	if claims.Issuer == "" || claims.ClientID == "" || claims.Issuer != claims.ClientID {
		return &domain.RegistrationDecision{
			EntityID:        claims.ClientID,
			RejectionReason: domain.RejectionEntityMismatch,
		}, nil
	}
	entityID := claims.ClientID

	resolution, err := uc.Resolver.Execute(ctx, entityID)
	if err != nil {
		return nil, err
	}

	if err := uc.Verifier.VerifyToken(requestObject, resolution.Chain.Leaf().Keys); err != nil {
		return nil, err
	}

	effective := resolution.Metadata[domain.EntityTypeRelyingParty]
	if effective == nil {
		return &domain.RegistrationDecision{
			EntityID:        entityID,
			RejectionReason: domain.RejectionEntityMismatch,
		}, nil
	}
	if reason := checkRequestAgainstMetadata(claims, effective); reason != "" {
		return &domain.RegistrationDecision{
			EntityID:        entityID,
			RejectionReason: reason,
		}, nil
	}

	if uc.Policy != nil {
		result, err := uc.Policy.Evaluate(ctx, domain.RegistrationPolicyInput{
			EntityID:       entityID,
			TrustAnchor:    resolution.AnchorID,
			ClientMetadata: effective,
		})
		if err != nil {
			return nil, fmt.Errorf("registration policy: %w", err)
		}
		if !result.Allow {
			return &domain.RegistrationDecision{
				EntityID:        entityID,
				RejectionReason: domain.RejectionPolicyDenied,
			}, nil
		}
	}

	now := time.Now
	if uc.Now != nil {
		now = uc.Now
	}
	record := domain.ClientRecord{
		ClientID:     entityID,
		Metadata:     effective,
		TrustAnchor:  resolution.AnchorID,
		RegisteredAt: now().UTC(),
	}
	if uc.IdP != nil {
		if err := uc.IdP.PersistClient(ctx, record); err != nil {
			return nil, err
		}
	}
	if uc.Clients != nil {
		if err := uc.Clients.Save(ctx, record); err != nil {
			return nil, err
		}
	}

	return &domain.RegistrationDecision{
		Accepted:       true,
		EntityID:       entityID,
		ClientMetadata: effective,
	}, nil
}

// checkRequestAgainstMetadata enforces that the request asks for nothing
// the effective metadata does not grant. Redirect URIs and scopes the
// metadata never declared are rejected outright; response and grant types
// are constrained only when the metadata declares them.
func checkRequestAgainstMetadata(claims *domain.RequestObjectClaims, effective domain.Metadata) string {
	if allowed, ok := stringList(effective["redirect_uris"]); ok {
		for _, uri := range claims.RedirectURIs {
			if !containsString(allowed, uri) {
				return domain.RejectionMetadataMismatch
			}
		}
	} else if len(claims.RedirectURIs) > 0 {
		return domain.RejectionMetadataMismatch
	}

	if claims.Scope != "" {
		declared, ok := effective["scope"].(string)
		if !ok {
			return domain.RejectionMetadataMismatch
		}
		allowed := strings.Fields(declared)
		for _, scope := range strings.Fields(claims.Scope) {
			if !containsString(allowed, scope) {
				return domain.RejectionMetadataMismatch
			}
		}
	}

	if allowed, ok := stringList(effective["response_types"]); ok {
		for _, rt := range claims.ResponseTypes {
			if !containsString(allowed, rt) {
				return domain.RejectionMetadataMismatch
			}
		}
	}
	if allowed, ok := stringList(effective["grant_types"]); ok {
		for _, gt := range claims.GrantTypes {
			if !containsString(allowed, gt) {
				return domain.RejectionMetadataMismatch
			}
		}
	}
	return ""
}

func stringList(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
