package domain

import (
	"context"
	"time"
)

// RequestObjectClaims carries the authorization parameters and client
// metadata an RP submits for federation registration.
type RequestObjectClaims struct {
	Issuer         string   `json:"iss"`
	ClientID       string   `json:"client_id"`
	RedirectURIs   []string `json:"redirect_uris"`
	Scope          string   `json:"scope"`
	ResponseTypes  []string `json:"response_types"`
	GrantTypes     []string `json:"grant_types"`
	ClientMetadata Metadata `json:"client_metadata"`
}

const (
	RejectionEntityMismatch   = "ENTITY_MISMATCH"
	RejectionMetadataMismatch = "METADATA_MISMATCH"
	RejectionPolicyDenied     = "POLICY_DENIED"
)

// RegistrationDecision is the terminal outcome of one registration attempt.
// Nothing here is persisted; the accepted client record belongs to the IdP
// core.
type RegistrationDecision struct {
	Accepted        bool     `json:"accepted"`
	EntityID        string   `json:"entity_id"`
	ClientMetadata  Metadata `json:"client_metadata,omitempty"`
	RejectionReason string   `json:"rejection_reason,omitempty"`
}

// ClientRecord is what the IdP core is asked to persist for an accepted
// registration.
type ClientRecord struct {
	ClientID     string    `json:"client_id"`
	Metadata     Metadata  `json:"metadata"`
	TrustAnchor  string    `json:"trust_anchor"`
	RegisteredAt time.Time `json:"registered_at"`
}

// IdPCore is the external authorization engine. Its client implementation
// owns the retry/backoff contract for transient failures.
type IdPCore interface {
	PersistClient(ctx context.Context, record ClientRecord) error
}

// RegistrationPolicyDeny is one reason an operator policy vetoed a
// registration.
type RegistrationPolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type RegistrationPolicyResult struct {
	Allow bool                     `json:"allow"`
	Deny  []RegistrationPolicyDeny `json:"deny,omitempty"`
}

// RegistrationPolicyInput is the document handed to the operator policy
// after the built-in registration checks pass.
type RegistrationPolicyInput struct {
	EntityID       string   `json:"entity_id"`
	TrustAnchor    string   `json:"trust_anchor"`
	ClientMetadata Metadata `json:"client_metadata"`
}

type RegistrationPolicyEngine interface {
	Evaluate(ctx context.Context, input RegistrationPolicyInput) (RegistrationPolicyResult, error)
}
