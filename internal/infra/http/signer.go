package http

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"fedhub/internal/config"
	"fedhub/internal/domain"
	"fedhub/internal/infra/statement"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const configurationLifetime = 24 * time.Hour

// entitySigner publishes the hub's own entity configuration so the hub can
// participate in the federation as an entity itself.
type entitySigner struct {
	codec    *statement.Codec
	entityID string
	org      string
	alg      string
	kid      string
	key      crypto.Signer
	jwks     map[string]any
}

// newEntitySignerFromConfig returns nil when no entity identity or signing
// key is configured; the well-known route is then not served.
func newEntitySignerFromConfig(cfg config.Config, codec *statement.Codec) (*entitySigner, error) {
	if cfg.EntityID == "" || cfg.SigningKeyPEM == "" {
		return nil, nil
	}
	key, err := parseSigningKey([]byte(cfg.SigningKeyPEM))
	if err != nil {
		return nil, err
	}
	alg, err := signingAlg(key)
	if err != nil {
		return nil, err
	}

	public, err := jwk.Import(key.Public())
	if err != nil {
		return nil, fmt.Errorf("import public key: %w", err)
	}
	if err := public.Set(jwk.KeyIDKey, cfg.SigningKeyID); err != nil {
		return nil, err
	}
	set := jwk.NewSet()
	if err := set.AddKey(public); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(set)
	if err != nil {
		return nil, err
	}
	var jwks map[string]any
	if err := json.Unmarshal(encoded, &jwks); err != nil {
		return nil, err
	}

	return &entitySigner{
		codec:    codec,
		entityID: cfg.EntityID,
		org:      cfg.OrganizationName,
		alg:      alg,
		kid:      cfg.SigningKeyID,
		key:      key,
		jwks:     jwks,
	}, nil
}

// SignedConfiguration mints the hub's self-issued entity configuration.
func (s *entitySigner) SignedConfiguration(now time.Time) (string, error) {
	claims := map[string]any{
		"iss":  s.entityID,
		"sub":  s.entityID,
		"iat":  now.Unix(),
		"exp":  now.Add(configurationLifetime).Unix(),
		"jti":  uuid.NewString(),
		"jwks": s.jwks,
		"metadata": map[string]any{
			string(domain.EntityTypeFederation): map[string]any{
				"organization_name": s.org,
			},
		},
	}
	return s.codec.Sign(claims, s.alg, s.kid, s.key)
}

func parseSigningKey(pemBytes []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("signing key is not PEM")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, errors.New("signing key type is not usable")
		}
		return signer, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported signing key encoding")
}

func signingAlg(key crypto.Signer) (string, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return "RS256", nil
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			return "ES256", nil
		case elliptic.P384():
			return "ES384", nil
		case elliptic.P521():
			return "ES512", nil
		}
		return "", errors.New("unsupported curve")
	case ed25519.PrivateKey:
		return "EdDSA", nil
	default:
		return "", errors.New("unsupported signing key type")
	}
}
