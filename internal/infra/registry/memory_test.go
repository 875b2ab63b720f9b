package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"fedhub/internal/domain"
)

func TestAddListRemove(t *testing.T) {
	ctx := context.Background()
	reg := New()

	rec, err := reg.Add(ctx, "https://ta.example", domain.EntityTypeProvider)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if rec.EntityID != "https://ta.example" || rec.AddedAt.IsZero() {
		t.Fatalf("record = %+v", rec)
	}
	if !reg.IsTrustAnchor(ctx, "https://ta.example") {
		t.Fatalf("expected membership")
	}

	if err := reg.Remove(ctx, "https://ta.example"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if reg.IsTrustAnchor(ctx, "https://ta.example") {
		t.Fatalf("membership after remove")
	}
	if err := reg.Remove(ctx, "https://ta.example"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second remove err = %v", err)
	}
}

func TestDuplicateAddLeavesOneRecord(t *testing.T) {
	ctx := context.Background()
	reg := New()
	if _, err := reg.Add(ctx, "https://ta.example", domain.EntityTypeProvider); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := reg.Add(ctx, "https://ta.example", domain.EntityTypeProvider); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate err = %v", err)
	}
	list, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list = %+v", list)
	}
}

func TestDuplicateAddKeepsOriginalRecord(t *testing.T) {
	ctx := context.Background()
	tick := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	reg := New(WithClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}))

	first, err := reg.Add(ctx, "https://ta.example", domain.EntityTypeProvider)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := reg.Add(ctx, "https://ta.example", domain.EntityTypeRelyingParty); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("re-add err = %v", err)
	}
	list, _ := reg.List(ctx)
	if len(list) != 1 || list[0].EntityType != domain.EntityTypeProvider || !list[0].AddedAt.Equal(first.AddedAt) {
		t.Fatalf("record after duplicate add = %+v", list)
	}
}

func TestReAddAfterRemoveReplacesRecord(t *testing.T) {
	ctx := context.Background()
	tick := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	reg := New(WithClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}))

	first, err := reg.Add(ctx, "https://ta.example", domain.EntityTypeProvider)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.Remove(ctx, "https://ta.example"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	second, err := reg.Add(ctx, "https://ta.example", domain.EntityTypeRelyingParty)
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	list, _ := reg.List(ctx)
	if len(list) != 1 || list[0].EntityType != domain.EntityTypeRelyingParty {
		t.Fatalf("record after re-add = %+v", list)
	}
	if !second.AddedAt.After(first.AddedAt) {
		t.Fatalf("AddedAt not refreshed: first=%v second=%v", first.AddedAt, second.AddedAt)
	}
}

func TestAddValidatesBeforeMutating(t *testing.T) {
	ctx := context.Background()
	reg := New()

	if _, err := reg.Add(ctx, "", domain.EntityTypeProvider); !errors.Is(err, domain.ErrInvalidEntityID) {
		t.Fatalf("empty id err = %v", err)
	}
	if _, err := reg.Add(ctx, "http://ta.example", domain.EntityTypeProvider); !errors.Is(err, domain.ErrInvalidEntityID) {
		t.Fatalf("http id err = %v", err)
	}
	if _, err := reg.Add(ctx, "https://ta.example", domain.EntityType("saml_sp")); !errors.Is(err, domain.ErrInvalidEntityType) {
		t.Fatalf("bad type err = %v", err)
	}
	list, _ := reg.List(ctx)
	if len(list) != 0 {
		t.Fatalf("registry mutated by failed adds: %+v", list)
	}
}

func TestInsecureIDsAllowedOutsideProduction(t *testing.T) {
	reg := New(WithInsecureIDs())
	if _, err := reg.Add(context.Background(), "http://localhost:8080", domain.EntityTypeProvider); err != nil {
		t.Fatalf("add: %v", err)
	}
}

func TestListPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	reg := New()
	ids := []string{"https://c.example", "https://a.example", "https://b.example"}
	for _, id := range ids {
		if _, err := reg.Add(ctx, id, domain.EntityTypeProvider); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	list, _ := reg.List(ctx)
	for i, rec := range list {
		if rec.EntityID != ids[i] {
			t.Fatalf("order = %+v", list)
		}
	}
}

type fakeStore struct {
	saved   []domain.TrustAnchorRecord
	deleted []string
	failing bool
}

func (s *fakeStore) SaveAnchor(_ context.Context, rec domain.TrustAnchorRecord) error {
	if s.failing {
		return errors.New("store down")
	}
	s.saved = append(s.saved, rec)
	return nil
}

func (s *fakeStore) DeleteAnchor(_ context.Context, entityID string) error {
	if s.failing {
		return errors.New("store down")
	}
	s.deleted = append(s.deleted, entityID)
	return nil
}

func (s *fakeStore) ListAnchors(context.Context) ([]domain.TrustAnchorRecord, error) {
	return s.saved, nil
}

func TestWriteThroughStore(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	reg := New(WithStore(store))

	if _, err := reg.Add(ctx, "https://ta.example", domain.EntityTypeProvider); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("saved = %+v", store.saved)
	}
	if err := reg.Remove(ctx, "https://ta.example"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(store.deleted) != 1 {
		t.Fatalf("deleted = %+v", store.deleted)
	}
}

func TestStoreFailureLeavesMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	reg := New(WithStore(&fakeStore{failing: true}))
	if _, err := reg.Add(ctx, "https://ta.example", domain.EntityTypeProvider); err == nil {
		t.Fatalf("expected error")
	}
	if reg.IsTrustAnchor(ctx, "https://ta.example") {
		t.Fatalf("membership after failed persist")
	}
}

func TestLoadReplaysPersistedAnchors(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{saved: []domain.TrustAnchorRecord{
		{EntityID: "https://ta.example", EntityType: domain.EntityTypeProvider},
	}}
	reg := New(WithStore(store))
	if err := reg.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reg.IsTrustAnchor(ctx, "https://ta.example") {
		t.Fatalf("expected membership after load")
	}
}
