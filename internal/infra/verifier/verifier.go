package verifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fedhub/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

var allowedAlgs = map[string]struct{}{
	"RS256": {}, "RS384": {}, "RS512": {},
	"PS256": {}, "PS384": {}, "PS512": {},
	"ES256": {}, "ES384": {}, "ES512": {},
	"EdDSA": {},
}

func allowedAlgNames() []string {
	names := make([]string, 0, len(allowedAlgs))
	for name := range allowedAlgs {
		names = append(names, name)
	}
	return names
}

// Verifier validates compact token signatures against a supplied JWK set.
type Verifier struct{}

func New() *Verifier {
	return &Verifier{}
}

func (v *Verifier) Verify(stmt *domain.EntityStatement, keys json.RawMessage) error {
	if stmt == nil {
		return domain.ErrInvalidStatement
	}
	if stmt.Raw == "" {
		return fmt.Errorf("%w: statement carries no signed token", domain.ErrSignatureInvalid)
	}
	return v.VerifyToken(stmt.Raw, keys)
}

func (v *Verifier) VerifyToken(raw string, keys json.RawMessage) error {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: token is not three dot-separated segments", domain.ErrInvalidStatement)
	}
	if parts[2] == "" {
		return fmt.Errorf("%w: empty signature", domain.ErrSignatureInvalid)
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidStatement, err)
	}
	alg, _ := unverified.Header["alg"].(string)
	if _, ok := allowedAlgs[alg]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrAlgorithmUnsupported, alg)
	}

	if len(keys) == 0 {
		return fmt.Errorf("%w: no key set supplied", domain.ErrKeyNotFound)
	}
	set, err := jwk.Parse(keys)
	if err != nil {
		return fmt.Errorf("%w: unusable jwks: %v", domain.ErrKeyNotFound, err)
	}

	parser := jwt.NewParser(jwt.WithValidMethods(allowedAlgNames()), jwt.WithoutClaimsValidation())
	_, err = parser.Parse(raw, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token header has no kid", domain.ErrKeyNotFound)
		}
		key, found := set.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("%w: kid %q", domain.ErrKeyNotFound, kid)
		}
		var rawKey any
		if err := jwk.Export(key, &rawKey); err != nil {
			return nil, fmt.Errorf("%w: kid %q: %v", domain.ErrKeyNotFound, kid, err)
		}
		return rawKey, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	return nil
}

// Insecure accepts any structurally sound token without checking its
// signature. It exists only for test federations behind VERIFY_MODE=insecure
// and is never a fallback for failed verification.
type Insecure struct{}

func NewInsecure() *Insecure {
	return &Insecure{}
}

func (v *Insecure) Verify(stmt *domain.EntityStatement, _ json.RawMessage) error {
	if stmt == nil {
		return domain.ErrInvalidStatement
	}
	return nil
}

func (v *Insecure) VerifyToken(raw string, _ json.RawMessage) error {
	if raw != "" && strings.Count(raw, ".") != 2 {
		return fmt.Errorf("%w: token is not three dot-separated segments", domain.ErrInvalidStatement)
	}
	return nil
}
