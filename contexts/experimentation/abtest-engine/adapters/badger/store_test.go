package badgeradapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	domainerrors "newsfinder/contexts/experimentation/abtest-engine/domain/errors"
	"newsfinder/contexts/experimentation/abtest-engine/ports"

	"github.com/dgraph-io/badger/v4"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBadgerAssignmentsAreInsertIfAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	if inserted, err := store.CreateAssignment(ctx, entities.Assignment{CampaignID: "home_layout", UserID: "u1", VariantID: "a", AssignedAt: base}); err != nil || !inserted {
		t.Fatalf("create: inserted=%v err=%v", inserted, err)
	}
	if inserted, err := store.CreateAssignment(ctx, entities.Assignment{CampaignID: "home_layout", UserID: "u1", VariantID: "a"}); err != nil || inserted {
		t.Fatalf("same-variant create must be a no-op: inserted=%v err=%v", inserted, err)
	}
	if _, err := store.CreateAssignment(ctx, entities.Assignment{CampaignID: "home_layout", UserID: "u1", VariantID: "b"}); !errors.Is(err, domainerrors.ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned, got %v", err)
	}
	if _, err := store.CreateAssignment(ctx, entities.Assignment{CampaignID: "home_layout", UserID: "u0", VariantID: "b", AssignedAt: base.Add(-time.Minute)}); err != nil {
		t.Fatalf("create u0: %v", err)
	}
	if _, err := store.CreateAssignment(ctx, entities.Assignment{CampaignID: "home_layout_v2", UserID: "u9", VariantID: "a"}); err != nil {
		t.Fatalf("create other campaign: %v", err)
	}

	variantID, found, err := store.LookupAssignment(ctx, "home_layout", "u1")
	if err != nil || !found || variantID != "a" {
		t.Fatalf("lookup returned %q %v %v", variantID, found, err)
	}
	if _, found, err := store.LookupAssignment(ctx, "home_layout", "nobody"); err != nil || found {
		t.Fatalf("unexpected lookup hit: %v %v", found, err)
	}
	items, err := store.ListAssignments(ctx, "home_layout")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].UserID != "u0" || items[1].UserID != "u1" {
		t.Fatalf("unexpected assignments %+v", items)
	}
}

func TestBadgerConcurrentCreatesKeepOneWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	var inserts atomic.Int32
	for _, variantID := range []string{"a", "b", "a", "b"} {
		wg.Add(1)
		go func(variantID string) {
			defer wg.Done()
			inserted, err := store.CreateAssignment(ctx, entities.Assignment{CampaignID: "home_layout", UserID: "racer", VariantID: variantID})
			if err != nil && !errors.Is(err, domainerrors.ErrAlreadyAssigned) {
				t.Errorf("create %s: %v", variantID, err)
			}
			if inserted {
				inserts.Add(1)
			}
		}(variantID)
	}
	wg.Wait()
	if _, found, err := store.LookupAssignment(ctx, "home_layout", "racer"); err != nil || !found {
		t.Fatalf("winner missing: %v", err)
	}
	if inserts.Load() != 1 {
		t.Fatalf("expected exactly one inserting create, got %d", inserts.Load())
	}
}

func TestBadgerApplyOutcomeCountsEachOutcomeOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.SeedModel(ctx, "home_layout", "a", entities.UniformPrior); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				if _, _, err := store.ApplyOutcome(ctx, ports.OutcomeUpdate{
					CampaignID: "home_layout",
					VariantID:  "a",
					Success:    true,
					Initial:    entities.UniformPrior,
				}); err != nil {
					t.Errorf("apply: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	model, found, err := store.GetModel(ctx, "home_layout", "a")
	if err != nil || !found {
		t.Fatalf("get model: %v", err)
	}
	if model.Alpha != 21 || model.Beta != 1 {
		t.Fatalf("expected Beta(21, 1), got %+v", model)
	}

	update := ports.OutcomeUpdate{CampaignID: "home_layout", VariantID: "a", Success: false, EventID: "evt-1", Initial: entities.UniformPrior}
	first, replayed, err := store.ApplyOutcome(ctx, update)
	if err != nil || replayed || first.Beta != 2 {
		t.Fatalf("first identified apply: %+v %v %v", first, replayed, err)
	}
	second, replayed, err := store.ApplyOutcome(ctx, update)
	if err != nil || !replayed || second != first {
		t.Fatalf("replay: %+v %v %v", second, replayed, err)
	}
	update.VariantID = "b"
	if _, _, err := store.ApplyOutcome(ctx, update); !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestBadgerSeedModelNeverOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, found, err := store.GetModel(ctx, "home_layout", "b"); err != nil || found {
		t.Fatalf("unexpected model: %v %v", found, err)
	}
	if err := store.SeedModel(ctx, "home_layout", "b", entities.BetaModel{Alpha: 3, Beta: 4}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.SeedModel(ctx, "home_layout", "b", entities.UniformPrior); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	model, found, err := store.GetModel(ctx, "home_layout", "b")
	if err != nil || !found || model.Alpha != 3 || model.Beta != 4 {
		t.Fatalf("unexpected model %+v %v %v", model, found, err)
	}
}

func TestBadgerOutboxLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, eventID := range []string{"evt-b", "evt-a"} {
		if err := store.AppendOutbox(ctx, ports.EventEnvelope{
			EventID:      eventID,
			EventType:    "abtest.assignment.created",
			OccurredAt:   base.Add(time.Duration(-i) * time.Second),
			PartitionKey: "home_layout",
			Data:         []byte(`{}`),
		}); err != nil {
			t.Fatalf("append %s: %v", eventID, err)
		}
	}
	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 2 || pending[0].OutboxID != "evt-a" || pending[1].OutboxID != "evt-b" {
		t.Fatalf("unexpected pending order %+v", pending)
	}
	if err := store.MarkOutboxPublished(ctx, "evt-a", base); err != nil {
		t.Fatalf("mark: %v", err)
	}
	pending, err = store.ListPendingOutbox(ctx, 10)
	if err != nil || len(pending) != 1 || pending[0].OutboxID != "evt-b" {
		t.Fatalf("unexpected pending after mark %+v %v", pending, err)
	}
	if err := store.MarkOutboxPublished(ctx, "evt-missing", base); !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
