package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"fedhub/internal/domain"

	"golang.org/x/sync/errgroup"
)

const defaultMaxDepth = 5

// BuildTrustChains walks authority_hints upward from a leaf entity and
// completes a chain whenever it reaches a registered trust anchor.
// Branches explore concurrently and fail independently; one unreachable
// authority never poisons the rest.
type BuildTrustChains struct {
	Discovery   domain.DiscoveryClient
	Registry    domain.AnchorRegistry
	MaxDepth    int
	Concurrency int
}

// BuildOutcome carries every completed chain plus the failures of branches
// that did not complete, for diagnostics and failure ranking.
type BuildOutcome struct {
	Chains       []domain.TrustChain
	BranchErrors []error
}

func (uc *BuildTrustChains) Execute(ctx context.Context, entityID string) (*BuildOutcome, error) {
	leaf, err := uc.Discovery.FetchEntityConfiguration(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return uc.ExecuteFromLeaf(ctx, leaf)
}

// ExecuteFromLeaf builds chains starting from an already fetched leaf
// configuration.
func (uc *BuildTrustChains) ExecuteFromLeaf(ctx context.Context, leaf *domain.EntityStatement) (*BuildOutcome, error) {
	if leaf == nil || !leaf.SelfIssued() {
		return nil, fmt.Errorf("%w: leaf configuration is not self-issued", domain.ErrInvalidStatement)
	}
	entityID := leaf.Subject
	if len(leaf.AuthorityHints) == 0 {
		return nil, fmt.Errorf("%w: %s declares no authority hints", domain.ErrNoChainFound, entityID)
	}

	maxDepth := uc.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	concurrency := uc.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	build := &chainBuild{
		uc:       uc,
		ctx:      ctx,
		entityID: entityID,
		maxDepth: maxDepth,
	}
	build.group.SetLimit(concurrency)

	build.explore(leaf, []*domain.EntityStatement{leaf}, map[string]bool{entityID: true}, 0)
	build.group.Wait()

	out := &build.out
	sort.Slice(out.Chains, func(i, j int) bool {
		a, b := out.Chains[i], out.Chains[j]
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a.AnchorID() < b.AnchorID()
	})
	return out, nil
}

// chainBuild is the shared state of one exploration.
type chainBuild struct {
	uc       *BuildTrustChains
	ctx      context.Context
	entityID string
	maxDepth int

	group errgroup.Group
	mu    sync.Mutex
	out   BuildOutcome
}

// explore fans out over the authority hints of the entity whose
// configuration is cfg. prefix holds the leaf configuration followed by
// the subordinate statements down to cfg's subject; it is copied before
// every descent.
func (b *chainBuild) explore(cfg *domain.EntityStatement, prefix []*domain.EntityStatement, visited map[string]bool, depth int) {
	for _, hint := range cfg.AuthorityHints {
		if visited[hint] {
			continue
		}
		if depth >= b.maxDepth {
			b.fail(fmt.Errorf("%w: %s is more than %d hops above %s", domain.ErrChainTooDeep, hint, b.maxDepth, b.entityID))
			continue
		}

		branchPrefix := append([]*domain.EntityStatement(nil), prefix...)
		branchVisited := make(map[string]bool, len(visited)+1)
		for id := range visited {
			branchVisited[id] = true
		}
		branchVisited[hint] = true

		subject, authority := cfg.Subject, hint
		step := func() error {
			b.climb(authority, subject, branchPrefix, branchVisited, depth)
			return nil
		}
		// TryGo keeps recursion deadlock-free: when every worker slot is
		// busy the branch runs inline instead of queueing.
		if !b.group.TryGo(step) {
			step()
		}
	}
}

// climb fetches one authority's configuration and its statement about
// subject. A registered anchor completes the chain; anything else keeps
// climbing.
func (b *chainBuild) climb(authority, subject string, prefix []*domain.EntityStatement, visited map[string]bool, depth int) {
	authorityCfg, err := b.uc.Discovery.FetchEntityConfiguration(b.ctx, authority)
	if err != nil {
		b.fail(err)
		return
	}
	if !authorityCfg.SelfIssued() {
		b.fail(fmt.Errorf("%w: %s configuration is not self-issued", domain.ErrInvalidStatement, authority))
		return
	}
	isAnchor := b.uc.Registry.IsTrustAnchor(b.ctx, authority)

	subordinate, err := b.uc.Discovery.FetchSubordinateStatement(b.ctx, authorityCfg, subject)
	if err != nil {
		// An anchor that names the leaf among its declared subordinates
		// still completes a two-element chain without a fetchable
		// subordinate statement.
		if isAnchor && errors.Is(err, domain.ErrDiscoveryFailed) &&
			subject == b.entityID && authorityCfg.ListsSubordinate(b.entityID) {
			b.complete(append(append(domain.TrustChain(nil), prefix...), authorityCfg))
			return
		}
		b.fail(err)
		return
	}

	withStatement := append(append([]*domain.EntityStatement(nil), prefix...), subordinate)
	if isAnchor {
		b.complete(append(append(domain.TrustChain(nil), withStatement...), authorityCfg))
		return
	}
	b.explore(authorityCfg, withStatement, visited, depth+1)
}

func (b *chainBuild) complete(chain domain.TrustChain) {
	b.mu.Lock()
	b.out.Chains = append(b.out.Chains, chain)
	b.mu.Unlock()
}

func (b *chainBuild) fail(err error) {
	b.mu.Lock()
	b.out.BranchErrors = append(b.out.BranchErrors, err)
	b.mu.Unlock()
}
