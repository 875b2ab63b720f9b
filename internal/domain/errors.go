package domain

import "errors"

var (
	ErrInvalidStatement     = errors.New("invalid entity statement")
	ErrDiscoveryFailed      = errors.New("discovery failed")
	ErrSignatureInvalid     = errors.New("signature invalid")
	ErrKeyNotFound          = errors.New("key not found")
	ErrAlgorithmUnsupported = errors.New("algorithm unsupported")
	ErrExpired              = errors.New("statement expired")
	ErrNotYetValid          = errors.New("statement not yet valid")
	ErrUntrustedAnchor      = errors.New("untrusted anchor")
	ErrPolicyViolation      = errors.New("metadata policy violation")
	ErrChainTooDeep         = errors.New("chain too deep")
	ErrNoChainFound         = errors.New("no trust chain found")
	ErrChainInvalid         = errors.New("chain invalid")
	ErrEntityMismatch       = errors.New("entity mismatch")
	ErrMetadataMismatch     = errors.New("metadata mismatch")
	ErrInvalidEntityID      = errors.New("invalid entity id")
	ErrInvalidEntityType    = errors.New("invalid entity type")
	ErrAlreadyExists        = errors.New("already exists")
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
)
