package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newsfinder/contexts/experimentation/abtest-engine/application/commands"
	"newsfinder/internal/platform/config"
	"newsfinder/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig(t *testing.T, store string) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "campaigns.yaml")
	content := "campaigns:\n  - campaign_id: home_layout\n    variants:\n      - variant_id: a\n      - variant_id: b\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write campaigns: %v", err)
	}
	return config.Config{
		Store:                     store,
		CampaignsFile:             path,
		DefaultPolicy:             "ucb1",
		PriorAlpha:                1,
		PriorBeta:                 1,
		EGreedyEpsilon:            0.1,
		FailSafe:                  true,
		StoreRetryMaxTries:        2,
		StoreRetryInitialInterval: time.Millisecond,
	}
}

func TestBuildRuntimeWiresEmbeddedStores(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, store := range []string{config.StoreMemory, config.StoreBadger} {
		runtime, err := BuildRuntime(context.Background(), testConfig(t, store), nil, logger)
		if err != nil {
			t.Fatalf("%s: build runtime: %v", store, err)
		}
		ctx := context.Background()
		first, err := runtime.Module.Engine.Assign(ctx, commands.AssignCommand{CampaignID: "home_layout", UserID: "u1"})
		if err != nil {
			t.Fatalf("%s: assign: %v", store, err)
		}
		if first.Policy != "ucb1" || first.VariantID != "a" {
			t.Fatalf("%s: expected ucb1 to pick a on equal priors, got %+v", store, first)
		}
		if _, err := runtime.Module.Engine.RecordOutcome(ctx, commands.RecordOutcomeCommand{CampaignID: "home_layout", UserID: "u1", Success: true, EventID: "evt-1"}); err != nil {
			t.Fatalf("%s: record outcome: %v", store, err)
		}
		pending, err := runtime.Module.Relay.Outbox.ListPendingOutbox(ctx, 10)
		if err != nil || len(pending) != 2 {
			t.Fatalf("%s: expected 2 pending events, got %d %v", store, len(pending), err)
		}
		if err := runtime.Close(); err != nil {
			t.Fatalf("%s: close: %v", store, err)
		}
	}
}

func TestBuildRuntimeRejectsUnknownStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := BuildRuntime(context.Background(), testConfig(t, "etcd"), nil, logger); err == nil {
		t.Fatalf("expected unknown store to fail")
	}
}

func TestNormalizeAddr(t *testing.T) {
	for input, want := range map[string]string{"": ":8080", "9090": ":9090", ":7070": ":7070", " 81 ": ":81"} {
		if got := normalizeAddr(input); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestEventPipelineDeliversOutboxToAuditor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()
	observer := metrics.NewExperimentMetrics(registry)
	cfg := testConfig(t, config.StoreMemory)
	runtime, err := BuildRuntime(context.Background(), cfg, observer, logger)
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer runtime.Close()

	pipeline := buildEventPipeline(runtime, cfg, observer, logger)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- pipeline.run(ctx, 5*time.Millisecond) }()

	if _, err := runtime.Module.Engine.Assign(ctx, commands.AssignCommand{CampaignID: "home_layout", UserID: "u1"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := runtime.Module.Engine.RecordOutcome(ctx, commands.RecordOutcomeCommand{CampaignID: "home_layout", UserID: "u1", Success: true}); err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	want := `
# HELP newsfinder_abtest_events_delivered_total Outbox events consumed from the bus by event type and campaign.
# TYPE newsfinder_abtest_events_delivered_total counter
newsfinder_abtest_events_delivered_total{campaign_id="home_layout",event_type="abtest.assignment.created"} 1
newsfinder_abtest_events_delivered_total{campaign_id="home_layout",event_type="abtest.outcome.recorded"} 1
`
	deadline := time.Now().Add(2 * time.Second)
	for {
		compareErr := testutil.GatherAndCompare(registry, strings.NewReader(want), "newsfinder_abtest_events_delivered_total")
		pending, listErr := runtime.Module.Relay.Outbox.ListPendingOutbox(context.Background(), 10)
		if listErr != nil {
			t.Fatalf("list outbox: %v", listErr)
		}
		if compareErr == nil && len(pending) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("outbox not relayed to the auditor: %d pending, metrics: %v", len(pending), compareErr)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("pipeline stopped with error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("pipeline did not stop after cancel")
	}
}
