package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/services"
	"github.com/poyrazK/keypanel/internal/testutil"
)

func TestRunBenchmark_AtomicAdmitsMaxDevices(t *testing.T) {
	store := testutil.NewMemoryStore()
	ctx := context.Background()
	key, err := seedPanel(ctx, store, "bench", 3)
	if err != nil {
		t.Fatalf("seedPanel failed: %v", err)
	}

	srv, audit := newPanelServer(store, services.CounterAtomic, nil)
	defer srv.Close()

	stats := runBenchmark(benchConfig{
		Server: srv.URL, Endpoint: "bench", Key: key,
		APIKey: benchCredentials.APIKey, Secret: benchCredentials.SecretKey,
		Count: 20, Concurrency: 5,
	})
	audit.Wait()

	if stats.Total != 20 || stats.Errors != 0 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.Success != 3 || stats.Rejected != 17 {
		t.Errorf("expected 3 admitted and 17 rejected, got %d/%d", stats.Success, stats.Rejected)
	}
	if stats.MaxDevicesSeen < 1 || stats.MaxDevicesSeen > 3 {
		t.Errorf("peak devices out of range: %d", stats.MaxDevicesSeen)
	}
	if stored, _ := store.Key(key); stored.CurrentDevices != 3 {
		t.Errorf("expected stored counter 3, got %d", stored.CurrentDevices)
	}
	if n := store.BindingCount(key); n != 3 {
		t.Errorf("expected 3 bindings, got %d", n)
	}
	if stats.reasons[domain.ReasonDeviceLimit] != 17 {
		t.Errorf("unexpected reasons %v", stats.reasons)
	}
}

func TestSeedPanel_ReusesAccount(t *testing.T) {
	store := testutil.NewMemoryStore()
	ctx := context.Background()
	k1, err := seedPanel(ctx, store, "bench", 1)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := seedPanel(ctx, store, "bench", 1)
	if err != nil {
		t.Fatalf("second seed should reuse the account: %v", err)
	}
	if k1 == k2 {
		t.Errorf("expected distinct keys")
	}
}

func TestPrintReport(t *testing.T) {
	stats := newStats(4)
	stats.Total, stats.Success = 4, 1
	stats.reject(domain.ReasonDeviceLimit)
	stats.Latencies <- 10 * time.Millisecond
	stats.Latencies <- 20 * time.Millisecond
	close(stats.Latencies)

	out := &bytes.Buffer{}
	printReport(out, time.Second, stats, 2)
	if !strings.Contains(out.String(), "Admitted:         1") || !strings.Contains(out.String(), domain.ReasonDeviceLimit) {
		t.Errorf("unexpected report:\n%s", out.String())
	}
}
