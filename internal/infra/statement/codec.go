package statement

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fedhub/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// EntityStatementType is the JOSE typ for federation entity statements.
const EntityStatementType = "entity-statement+jwt"

// Codec turns compact entity-statement tokens into domain statements and
// back. Pure data transformation; signature checking lives in the verifier.
type Codec struct {
	// AllowJSON accepts raw JSON statement bodies in place of signed
	// tokens. Test federations only; a JSON statement carries no Raw token
	// and can never pass the strict verifier.
	AllowJSON bool
}

// Parse decodes a compact header.payload.signature token without verifying
// its signature.
func (c *Codec) Parse(token string) (*domain.EntityStatement, error) {
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: token is not three dot-separated segments", domain.ErrInvalidStatement)
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidStatement, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: payload is not a JSON object", domain.ErrInvalidStatement)
	}
	stmt, err := fromClaims(map[string]any(claims), token)
	if err != nil {
		return nil, err
	}
	stmt.Algorithm, _ = parsed.Header["alg"].(string)
	stmt.KeyID, _ = parsed.Header["kid"].(string)
	return stmt, nil
}

// Decode reads a raw JSON statement body. Only available when AllowJSON is
// set.
func (c *Codec) Decode(body []byte) (*domain.EntityStatement, error) {
	if !c.AllowJSON {
		return nil, fmt.Errorf("%w: JSON statements are disabled", domain.ErrInvalidStatement)
	}
	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidStatement, err)
	}
	return fromClaims(claims, "")
}

// Sign mints a compact entity-statement token over the given claims.
func (c *Codec) Sign(claims map[string]any, alg, kid string, key any) (string, error) {
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return "", fmt.Errorf("%w: %q", domain.ErrAlgorithmUnsupported, alg)
	}
	token := jwt.NewWithClaims(method, jwt.MapClaims(claims))
	token.Header["typ"] = EntityStatementType
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign entity statement: %w", err)
	}
	return signed, nil
}

// ParseRequestObject decodes a compact Request Object token without
// verification; the caller verifies it against the RP's validated keys.
func (c *Codec) ParseRequestObject(token string) (*domain.RequestObjectClaims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: request object is not three dot-separated segments", domain.ErrInvalidStatement)
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidStatement, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: request object payload is not a JSON object", domain.ErrInvalidStatement)
	}
	payload, err := json.Marshal(map[string]any(claims))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidStatement, err)
	}
	var out domain.RequestObjectClaims
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidStatement, err)
	}
	return &out, nil
}

func fromClaims(claims map[string]any, raw string) (*domain.EntityStatement, error) {
	iss, _ := claims["iss"].(string)
	sub, _ := claims["sub"].(string)
	if iss == "" || sub == "" {
		return nil, fmt.Errorf("%w: iss and sub are required", domain.ErrInvalidStatement)
	}
	iat, err := claimTime(claims, "iat")
	if err != nil {
		return nil, err
	}
	exp, err := claimTime(claims, "exp")
	if err != nil {
		return nil, err
	}

	stmt := &domain.EntityStatement{
		Issuer:    iss,
		Subject:   sub,
		IssuedAt:  iat,
		ExpiresAt: exp,
		Raw:       raw,
	}
	stmt.JWTID, _ = claims["jti"].(string)

	if jwks, ok := claims["jwks"]; ok {
		keys, err := json.Marshal(jwks)
		if err != nil {
			return nil, fmt.Errorf("%w: jwks: %v", domain.ErrInvalidStatement, err)
		}
		stmt.Keys = keys
	}
	if hints, ok := claims["authority_hints"].([]any); ok {
		for _, hint := range hints {
			str, ok := hint.(string)
			if !ok {
				return nil, fmt.Errorf("%w: authority_hints entries must be strings", domain.ErrInvalidStatement)
			}
			stmt.AuthorityHints = append(stmt.AuthorityHints, str)
		}
	}
	if md, ok := claims["metadata"]; ok {
		if err := reencode(md, &stmt.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", domain.ErrInvalidStatement, err)
		}
	}
	if mp, ok := claims["metadata_policy"]; ok {
		if err := reencode(mp, &stmt.MetadataPolicy); err != nil {
			return nil, fmt.Errorf("%w: metadata_policy: %v", domain.ErrInvalidStatement, err)
		}
	}
	if tm, ok := claims["trust_marks"]; ok {
		if err := reencode(tm, &stmt.TrustMarks); err != nil {
			return nil, fmt.Errorf("%w: trust_marks: %v", domain.ErrInvalidStatement, err)
		}
	}
	return stmt, nil
}

func claimTime(claims map[string]any, name string) (time.Time, error) {
	raw, ok := claims[name]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s is required", domain.ErrInvalidStatement, name)
	}
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	case json.Number:
		secs, err := v.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s: %v", domain.ErrInvalidStatement, name, err)
		}
		return time.Unix(secs, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s must be a numeric date", domain.ErrInvalidStatement, name)
	}
}

func reencode(in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, out)
}
