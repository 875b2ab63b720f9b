package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"fedhub/internal/domain"
)

func TestBuildChainThroughIntermediate(t *testing.T) {
	rp, inter, ta := "https://rp.example", "https://inter.example", "https://ta.example"
	discovery := &fakeDiscovery{
		configs: map[string]*domain.EntityStatement{
			rp:    cfg(rp, inter),
			inter: cfg(inter, ta),
			ta:    cfg(ta),
		},
		subordinates: map[string]*domain.EntityStatement{
			subKey(inter, rp): subordinate(inter, rp),
			subKey(ta, inter): subordinate(ta, inter),
		},
	}
	uc := &BuildTrustChains{Discovery: discovery, Registry: newFakeRegistry(ta)}

	out, err := uc.Execute(context.Background(), rp)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Chains) != 1 {
		t.Fatalf("chains = %d, branch errors = %v", len(out.Chains), out.BranchErrors)
	}
	chain := out.Chains[0]
	if len(chain) != 4 {
		t.Fatalf("chain length = %d", len(chain))
	}
	if chain.Leaf().Subject != rp || chain.AnchorID() != ta {
		t.Fatalf("chain = %s .. %s", chain.Leaf().Subject, chain.AnchorID())
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].Subject != chain[i-1].Issuer {
			t.Fatalf("hop %d: subject %s, want %s", i, chain[i].Subject, chain[i-1].Issuer)
		}
	}
}

func TestBuildStopsAtRegisteredAnchor(t *testing.T) {
	rp, ta, above := "https://rp.example", "https://ta.example", "https://root.example"
	discovery := &fakeDiscovery{
		configs: map[string]*domain.EntityStatement{
			rp: cfg(rp, ta),
			ta: cfg(ta, above),
		},
		subordinates: map[string]*domain.EntityStatement{
			subKey(ta, rp): subordinate(ta, rp),
		},
	}
	uc := &BuildTrustChains{Discovery: discovery, Registry: newFakeRegistry(ta)}

	out, err := uc.Execute(context.Background(), rp)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Chains) != 1 || len(out.Chains[0]) != 3 {
		t.Fatalf("chains = %+v", out.Chains)
	}
	if len(out.BranchErrors) != 0 {
		t.Fatalf("branch errors = %v", out.BranchErrors)
	}
}

func TestBuildBranchFailureIsolation(t *testing.T) {
	rp, dead, ta := "https://rp.example", "https://dead.example", "https://ta.example"
	discovery := &fakeDiscovery{
		configs: map[string]*domain.EntityStatement{
			rp: cfg(rp, dead, ta),
			ta: cfg(ta),
		},
		subordinates: map[string]*domain.EntityStatement{
			subKey(ta, rp): subordinate(ta, rp),
		},
	}
	uc := &BuildTrustChains{Discovery: discovery, Registry: newFakeRegistry(ta)}

	out, err := uc.Execute(context.Background(), rp)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Chains) != 1 {
		t.Fatalf("chains = %d", len(out.Chains))
	}
	if len(out.BranchErrors) != 1 || !errors.Is(out.BranchErrors[0], domain.ErrDiscoveryFailed) {
		t.Fatalf("branch errors = %v", out.BranchErrors)
	}
}

func TestBuildCutsCycles(t *testing.T) {
	a, b := "https://a.example", "https://b.example"
	discovery := &fakeDiscovery{
		configs: map[string]*domain.EntityStatement{
			a: cfg(a, b),
			b: cfg(b, a),
		},
		subordinates: map[string]*domain.EntityStatement{
			subKey(b, a): subordinate(b, a),
			subKey(a, b): subordinate(a, b),
		},
	}
	uc := &BuildTrustChains{Discovery: discovery, Registry: newFakeRegistry()}

	out, err := uc.Execute(context.Background(), a)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Chains) != 0 {
		t.Fatalf("chains = %+v", out.Chains)
	}
}

func TestBuildDepthLimit(t *testing.T) {
	const hops = 7
	configs := map[string]*domain.EntityStatement{}
	subordinates := map[string]*domain.EntityStatement{}
	id := func(i int) string { return fmt.Sprintf("https://e%d.example", i) }
	for i := 0; i < hops; i++ {
		configs[id(i)] = cfg(id(i), id(i+1))
		subordinates[subKey(id(i+1), id(i))] = subordinate(id(i+1), id(i))
	}
	configs[id(hops)] = cfg(id(hops))

	uc := &BuildTrustChains{Discovery: &fakeDiscovery{configs: configs, subordinates: subordinates}, Registry: newFakeRegistry(id(hops)), MaxDepth: 5}
	out, err := uc.Execute(context.Background(), id(0))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Chains) != 0 {
		t.Fatalf("chains = %+v", out.Chains)
	}
	found := false
	for _, berr := range out.BranchErrors {
		if errors.Is(berr, domain.ErrChainTooDeep) {
			found = true
		}
	}
	if !found {
		t.Fatalf("branch errors = %v", out.BranchErrors)
	}
}

func TestBuildDegenerateChainForListedSubordinate(t *testing.T) {
	rp, ta := "https://rp.example", "https://ta.example"
	taCfg := cfg(ta)
	taCfg.Metadata[domain.EntityTypeFederation]["subordinate_ids"] = []any{rp}
	discovery := &fakeDiscovery{
		configs: map[string]*domain.EntityStatement{
			rp: cfg(rp, ta),
			ta: taCfg,
		},
		// No subordinate statement published.
		subordinates: map[string]*domain.EntityStatement{},
	}
	uc := &BuildTrustChains{Discovery: discovery, Registry: newFakeRegistry(ta)}

	out, err := uc.Execute(context.Background(), rp)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Chains) != 1 || len(out.Chains[0]) != 2 {
		t.Fatalf("chains = %+v, errors = %v", out.Chains, out.BranchErrors)
	}
}

func TestBuildUnlistedSubordinateFailsBranch(t *testing.T) {
	rp, ta := "https://rp.example", "https://ta.example"
	discovery := &fakeDiscovery{
		configs: map[string]*domain.EntityStatement{
			rp: cfg(rp, ta),
			ta: cfg(ta),
		},
		subordinates: map[string]*domain.EntityStatement{},
	}
	uc := &BuildTrustChains{Discovery: discovery, Registry: newFakeRegistry(ta)}

	out, err := uc.Execute(context.Background(), rp)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Chains) != 0 {
		t.Fatalf("chains = %+v", out.Chains)
	}
	if len(out.BranchErrors) != 1 || !errors.Is(out.BranchErrors[0], domain.ErrDiscoveryFailed) {
		t.Fatalf("branch errors = %v", out.BranchErrors)
	}
}

func TestBuildFailsWithoutAuthorityHints(t *testing.T) {
	rp := "https://rp.example"
	discovery := &fakeDiscovery{configs: map[string]*domain.EntityStatement{rp: cfg(rp)}}
	uc := &BuildTrustChains{Discovery: discovery, Registry: newFakeRegistry()}

	_, err := uc.Execute(context.Background(), rp)
	if !errors.Is(err, domain.ErrNoChainFound) {
		t.Fatalf("err = %v", err)
	}
}
