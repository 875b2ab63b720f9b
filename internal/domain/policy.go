package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// MetadataPolicy constrains one entity type's metadata: claim name to the
// operators a superior imposes on it.
type MetadataPolicy map[string]PolicyOperators

// PolicyOperators is the closed set of supported policy operators for a
// single metadata claim. Unknown operators are rejected at decode time
// rather than interpreted loosely.
type PolicyOperators struct {
	Value     *any
	Add       []any
	Default   *any
	SubsetOf  []any
	OneOf     []any
	Essential *bool
}

func (p *PolicyOperators) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := PolicyOperators{}
	for op, body := range raw {
		switch op {
		case "value":
			var v any
			if err := json.Unmarshal(body, &v); err != nil {
				return err
			}
			out.Value = &v
		case "add":
			if err := json.Unmarshal(body, &out.Add); err != nil {
				return err
			}
		case "default":
			var v any
			if err := json.Unmarshal(body, &v); err != nil {
				return err
			}
			out.Default = &v
		case "subset_of":
			if err := json.Unmarshal(body, &out.SubsetOf); err != nil {
				return err
			}
		case "one_of":
			if err := json.Unmarshal(body, &out.OneOf); err != nil {
				return err
			}
		case "essential":
			var v bool
			if err := json.Unmarshal(body, &v); err != nil {
				return err
			}
			out.Essential = &v
		default:
			return fmt.Errorf("%w: unknown policy operator %q", ErrPolicyViolation, op)
		}
	}
	*p = out
	return nil
}

func (p PolicyOperators) MarshalJSON() ([]byte, error) {
	raw := map[string]any{}
	if p.Value != nil {
		raw["value"] = *p.Value
	}
	if p.Add != nil {
		raw["add"] = p.Add
	}
	if p.Default != nil {
		raw["default"] = *p.Default
	}
	if p.SubsetOf != nil {
		raw["subset_of"] = p.SubsetOf
	}
	if p.OneOf != nil {
		raw["one_of"] = p.OneOf
	}
	if p.Essential != nil {
		raw["essential"] = *p.Essential
	}
	return json.Marshal(raw)
}

// Apply enforces the operators on one claim. current/present describe the
// claim in the metadata being reconciled; the returned pair is the claim
// after application.
func (p PolicyOperators) Apply(claim string, current any, present bool) (any, bool, error) {
	if p.Value != nil {
		current, present = *p.Value, true
	}
	if p.Add != nil {
		list, err := toList(claim, current, present)
		if err != nil {
			return nil, false, err
		}
		for _, v := range p.Add {
			if !containsValue(list, v) {
				list = append(list, v)
			}
		}
		current, present = list, true
	}
	if p.Default != nil && !present {
		current, present = *p.Default, true
	}
	if p.OneOf != nil && present {
		if !containsValue(p.OneOf, current) {
			return nil, false, fmt.Errorf("%w: claim %q value %v not in one_of %v", ErrPolicyViolation, claim, current, p.OneOf)
		}
	}
	if p.SubsetOf != nil && present {
		list, err := toList(claim, current, present)
		if err != nil {
			return nil, false, err
		}
		for _, v := range list {
			if !containsValue(p.SubsetOf, v) {
				return nil, false, fmt.Errorf("%w: claim %q value %v outside subset_of %v", ErrPolicyViolation, claim, v, p.SubsetOf)
			}
		}
	}
	if p.Essential != nil && *p.Essential && !present {
		return nil, false, fmt.Errorf("%w: essential claim %q is absent", ErrPolicyViolation, claim)
	}
	return current, present, nil
}

// ApplyPolicy reconciles one policy layer into metadata, returning a new
// metadata object. The input is not mutated.
func ApplyPolicy(md Metadata, policy MetadataPolicy) (Metadata, error) {
	out := make(Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	for claim, ops := range policy {
		current, present := out[claim]
		next, nextPresent, err := ops.Apply(claim, current, present)
		if err != nil {
			return nil, err
		}
		if nextPresent {
			out[claim] = next
		} else {
			delete(out, claim)
		}
	}
	return out, nil
}

func toList(claim string, current any, present bool) ([]any, error) {
	if !present || current == nil {
		return nil, nil
	}
	list, ok := current.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: claim %q is not an array", ErrPolicyViolation, claim)
	}
	out := make([]any, len(list))
	copy(out, list)
	return out, nil
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}
