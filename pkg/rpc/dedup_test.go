package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/samfms/scf/internal/cache"
)

func TestContentHashIsStableAcrossKeyOrder(t *testing.T) {
	a := json.RawMessage(`{"b":2,"a":1}`)
	b := json.RawMessage(`{"a":1,"b":2}`)

	if ContentHash("trip.create", "/trips", a) != ContentHash("trip.create", "/trips", b) {
		t.Error("ContentHash should be stable regardless of JSON key order")
	}
}

func TestContentHashDiffersOnEndpoint(t *testing.T) {
	data := json.RawMessage(`{"a":1}`)
	h1 := ContentHash("trip.create", "/trips", data)
	h2 := ContentHash("trip.create", "/vehicles", data)
	if h1 == h2 {
		t.Error("ContentHash should differ when the endpoint differs")
	}
}

func TestDedupCheckCorrelationMissReturnsFalse(t *testing.T) {
	d := NewDedup(cache.NewMemory())
	_, seen, err := d.CheckCorrelation(context.Background(), "unseen-id")
	if err != nil {
		t.Fatalf("CheckCorrelation() error = %v", err)
	}
	if seen {
		t.Error("expected seen=false for an unknown correlation id")
	}
}

func TestDedupCompleteThenCheckCorrelationReplaysCachedResponse(t *testing.T) {
	d := NewDedup(cache.NewMemory())
	ctx := context.Background()

	resp := Success("corr-1", map[string]string{"status": "ok"})
	if err := d.Complete(ctx, "corr-1", "hash-1", resp); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	got, seen, err := d.CheckCorrelation(ctx, "corr-1")
	if err != nil {
		t.Fatalf("CheckCorrelation() error = %v", err)
	}
	if !seen {
		t.Fatal("expected seen=true after Complete")
	}
	if got.CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %q, want corr-1", got.CorrelationID)
	}
}

func TestDedupSharesFirstResponseWithInFlightDuplicate(t *testing.T) {
	d := NewDedup(cache.NewMemory())

	wait, isFirst := d.BeginContentHash("shared-hash")
	if !isFirst {
		t.Fatal("first BeginContentHash call should report isFirst=true")
	}
	if wait != nil {
		t.Error("first caller should not receive a wait channel")
	}

	dupWait, isFirstDup := d.BeginContentHash("shared-hash")
	if isFirstDup {
		t.Fatal("second BeginContentHash call for the same hash should report isFirst=false")
	}
	if dupWait == nil {
		t.Fatal("duplicate caller should receive a wait channel")
	}

	go func() {
		_ = d.Complete(context.Background(), "corr-original", "shared-hash", Success("corr-original", "done"))
	}()

	select {
	case resp := <-dupWait:
		if resp.Status != StatusSuccess {
			t.Errorf("shared response status = %v, want success", resp.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shared response")
	}
}
