package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

type EntityType string

const (
	EntityTypeRelyingParty EntityType = "openid_relying_party"
	EntityTypeProvider     EntityType = "openid_provider"

	// EntityTypeFederation names the federation_entity metadata section
	// (fetch endpoint, subordinate listing). It is carried on statements but
	// is not a registrable anchor type.
	EntityTypeFederation EntityType = "federation_entity"
)

func ParseEntityType(raw string) (EntityType, error) {
	switch EntityType(raw) {
	case EntityTypeRelyingParty, EntityTypeProvider:
		return EntityType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntityType, raw)
}

// ValidateEntityID checks that id is a non-empty absolute HTTPS URL.
// allowInsecure relaxes the scheme for localhost test federations.
func ValidateEntityID(id string, allowInsecure bool) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEntityID)
	}
	u, err := url.Parse(id)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute URL", ErrInvalidEntityID, id)
	}
	if u.Scheme == "https" {
		return nil
	}
	if allowInsecure && u.Scheme == "http" {
		return nil
	}
	return fmt.Errorf("%w: %q must use https", ErrInvalidEntityID, id)
}

// Metadata is one entity type's metadata object as carried in a statement.
type Metadata map[string]any

// EffectiveMetadata is the per-type metadata that survives the policy merge
// of a validated trust chain. Immutable once produced.
type EffectiveMetadata map[EntityType]Metadata

type TrustMark struct {
	ID        string `json:"id"`
	TrustMark string `json:"trust_mark"`
}

// EntityStatement is one decoded entity statement. Raw keeps the compact
// token exactly as fetched so signatures can be checked over the original
// byte sequence; it is empty for JSON-mode statements.
type EntityStatement struct {
	Issuer         string
	Subject        string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	JWTID          string
	Keys           json.RawMessage
	Metadata       map[EntityType]Metadata
	AuthorityHints []string
	MetadataPolicy map[EntityType]MetadataPolicy
	TrustMarks     []TrustMark
	Algorithm      string
	KeyID          string
	Raw            string
}

// SelfIssued reports whether the statement is an entity configuration.
func (s *EntityStatement) SelfIssued() bool {
	return s.Issuer != "" && s.Issuer == s.Subject
}

// TemporallyValid checks iat <= now < exp.
func (s *EntityStatement) TemporallyValid(now time.Time) error {
	if !s.ExpiresAt.After(now) {
		return fmt.Errorf("%w: %s expired at %s", ErrExpired, s.Subject, s.ExpiresAt.Format(time.RFC3339))
	}
	if s.IssuedAt.After(now) {
		return fmt.Errorf("%w: %s issued at %s", ErrNotYetValid, s.Subject, s.IssuedAt.Format(time.RFC3339))
	}
	return nil
}

// FetchEndpoint returns the federation fetch endpoint this entity exposes
// for subordinate statements, or "".
func (s *EntityStatement) FetchEndpoint() string {
	fed, ok := s.Metadata[EntityTypeFederation]
	if !ok {
		return ""
	}
	endpoint, _ := fed["federation_fetch_endpoint"].(string)
	return endpoint
}

// ListsSubordinate reports whether this entity's own configuration names
// entityID among its declared subordinates. Matching is exact; anything
// ambiguous is treated as not listed.
func (s *EntityStatement) ListsSubordinate(entityID string) bool {
	fed, ok := s.Metadata[EntityTypeFederation]
	if !ok {
		return false
	}
	raw, ok := fed["subordinate_ids"]
	if !ok {
		return false
	}
	ids, ok := raw.([]any)
	if !ok {
		return false
	}
	for _, id := range ids {
		if str, ok := id.(string); ok && str == entityID {
			return true
		}
	}
	return false
}

// TrustChain is an ordered statement sequence: index 0 is the leaf's own
// configuration, the final element the anchor's configuration. Between them
// sit the subordinate statements, each issued about the previous element's
// issuer.
type TrustChain []*EntityStatement

func (c TrustChain) Leaf() *EntityStatement {
	if len(c) == 0 {
		return nil
	}
	return c[0]
}

func (c TrustChain) Anchor() *EntityStatement {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// AnchorID is the entity identifier of the issuer at the anchor end.
func (c TrustChain) AnchorID() string {
	last := c.Anchor()
	if last == nil {
		return ""
	}
	return last.Issuer
}

type TrustAnchorRecord struct {
	EntityID   string     `json:"entity_id"`
	EntityType EntityType `json:"entity_type"`
	AddedAt    time.Time  `json:"added_at"`
}

// AnchorRegistry is the authoritative set of trusted roots. Mutations are
// linearizable with respect to reads used during chain validation.
type AnchorRegistry interface {
	Add(ctx context.Context, entityID string, entityType EntityType) (TrustAnchorRecord, error)
	Remove(ctx context.Context, entityID string) error
	List(ctx context.Context) ([]TrustAnchorRecord, error)
	IsTrustAnchor(ctx context.Context, entityID string) bool
}

// DiscoveryClient fetches statements from remote federation endpoints.
// Fetch failures are reported as ErrDiscoveryFailed; retrying is the
// caller's concern.
type DiscoveryClient interface {
	FetchEntityConfiguration(ctx context.Context, entityID string) (*EntityStatement, error)
	// FetchSubordinateStatement retrieves the statement the superior (whose
	// own configuration is given) issued about subordinateID, via the
	// superior's fetch endpoint.
	FetchSubordinateStatement(ctx context.Context, superior *EntityStatement, subordinateID string) (*EntityStatement, error)
}

// StatementVerifier checks a statement's signature against a JWK set.
type StatementVerifier interface {
	Verify(stmt *EntityStatement, keys json.RawMessage) error
}

// TokenVerifier checks a bare compact token (e.g. a Request Object) against
// a JWK set.
type TokenVerifier interface {
	VerifyToken(raw string, keys json.RawMessage) error
}
