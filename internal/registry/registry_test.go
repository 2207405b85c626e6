package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/contentmesh/internal/events"
)

func testRegistry(t *testing.T) (*Registry, *events.Bus) {
	t.Helper()
	bus := events.NewBus(events.Options{})
	t.Cleanup(bus.Close)
	return New(bus, nil), bus
}

func caps(names ...string) []Capability {
	out := make([]Capability, len(names))
	for i, n := range names {
		out[i] = Capability{Name: n}
	}
	return out
}

func TestRegisterAndGet(t *testing.T) {
	r, bus := testRegistry(t)

	announced := make(chan events.Message, 1)
	bus.Subscribe("test", events.TopicAgentRegistered, func(msg events.Message) { announced <- msg })

	rec, err := r.Register("w1", "normalizer", caps("normalize"), map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if rec.Status != StatusInitializing {
		t.Errorf("expected INITIALIZING, got %s", rec.Status)
	}

	got, ok := r.Get("w1")
	if !ok {
		t.Fatal("expected worker to be found")
	}
	if got.Metadata["k"] != "v" {
		t.Errorf("expected metadata to be kept, got %v", got.Metadata)
	}

	select {
	case msg := <-announced:
		payload := msg.Payload.(events.AgentRegistered)
		if payload.AgentID != "w1" || len(payload.Capabilities) != 1 || payload.Capabilities[0] != "normalize" {
			t.Errorf("unexpected announcement %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no agent.registered announcement")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r, _ := testRegistry(t)

	if _, err := r.Register("w1", "x", nil, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := r.Register("w1", "x", nil, nil); !errors.Is(err, ErrAgentExists) {
		t.Errorf("expected ErrAgentExists, got %v", err)
	}
}

func TestUnknownAgent(t *testing.T) {
	r, _ := testRegistry(t)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"UpdateStatus", func() error { return r.UpdateStatus("ghost", StatusReady) }},
		{"Heartbeat", func() error { return r.Heartbeat("ghost") }},
		{"Acquire", func() error { return r.Acquire("ghost") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrAgentNotFound) {
				t.Errorf("expected ErrAgentNotFound, got %v", err)
			}
		})
	}
	if r.Unregister("ghost") {
		t.Error("Unregister of unknown id returned true")
	}
}

func TestReadyPublishesEvent(t *testing.T) {
	r, bus := testRegistry(t)

	ready := make(chan events.Message, 4)
	bus.Subscribe("test", events.TopicAgentReady, func(msg events.Message) { ready <- msg })

	r.Register("w1", "x", nil, nil)
	if err := r.UpdateStatus("w1", StatusError); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := r.UpdateStatus("w1", StatusReady); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	select {
	case msg := <-ready:
		if msg.Payload.(events.AgentReady).AgentID != "w1" {
			t.Errorf("wrong agent in ready event")
		}
	case <-time.After(time.Second):
		t.Fatal("no agent.ready event")
	}
	select {
	case <-ready:
		t.Error("ERROR transition should not publish agent.ready")
	case <-time.After(20 * time.Millisecond):
	}
}

// TestCapabilityIndexConsistency verifies unregistered workers vanish from every
// capability they advertised.
func TestCapabilityIndexConsistency(t *testing.T) {
	r, _ := testRegistry(t)

	r.Register("w1", "x", caps("a", "b"), nil)
	r.Register("w2", "x", caps("b"), nil)

	if n := len(r.FindByCapability("b")); n != 2 {
		t.Fatalf("expected 2 workers for b, got %d", n)
	}

	if !r.Unregister("w1") {
		t.Fatal("Unregister returned false")
	}

	for _, capability := range []string{"a", "b"} {
		for _, rec := range r.FindByCapability(capability) {
			if rec.ID == "w1" {
				t.Errorf("w1 still indexed under %s", capability)
			}
		}
	}
	if n := len(r.FindByCapability("a")); n != 0 {
		t.Errorf("expected no workers for a, got %d", n)
	}
	if _, ok := r.Stats().Capabilities["a"]; ok {
		t.Error("empty capability left in index")
	}
}

func TestFindReadyByCapabilityOrder(t *testing.T) {
	r, _ := testRegistry(t)

	for _, id := range []string{"w1", "w2", "w3"} {
		r.Register(id, "x", caps("c"), nil)
	}
	r.UpdateStatus("w3", StatusReady)
	r.UpdateStatus("w2", StatusReady)

	ready := r.FindReadyByCapability("c")
	if len(ready) != 2 {
		t.Fatalf("expected 2 ready workers, got %d", len(ready))
	}
	if ready[0].ID != "w2" || ready[1].ID != "w3" {
		t.Errorf("expected registration order [w2 w3], got [%s %s]", ready[0].ID, ready[1].ID)
	}
}

func TestAcquire(t *testing.T) {
	r, _ := testRegistry(t)

	r.Register("w1", "x", caps("c"), nil)
	if err := r.Acquire("w1"); !errors.Is(err, ErrAgentNotReady) {
		t.Errorf("expected ErrAgentNotReady for initializing worker, got %v", err)
	}

	r.UpdateStatus("w1", StatusReady)
	if err := r.Acquire("w1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if rec, _ := r.Get("w1"); rec.Status != StatusBusy {
		t.Errorf("expected BUSY, got %s", rec.Status)
	}
	if err := r.Acquire("w1"); !errors.Is(err, ErrAgentNotReady) {
		t.Errorf("expected second Acquire to fail, got %v", err)
	}
}

func TestAcquireFirstReady(t *testing.T) {
	r, _ := testRegistry(t)

	r.Register("w1", "x", caps("c"), nil)
	r.Register("w2", "x", caps("c"), nil)
	r.UpdateStatus("w1", StatusReady)
	r.UpdateStatus("w2", StatusReady)

	first, ok := r.AcquireFirstReady("c")
	if !ok || first.ID != "w1" {
		t.Fatalf("expected w1, got %q (ok=%v)", first.ID, ok)
	}
	second, ok := r.AcquireFirstReady("c")
	if !ok || second.ID != "w2" {
		t.Fatalf("expected w2, got %q (ok=%v)", second.ID, ok)
	}
	if _, ok := r.AcquireFirstReady("c"); ok {
		t.Error("expected no ready worker left")
	}
	if _, ok := r.AcquireFirstReady("missing"); ok {
		t.Error("expected no worker for unknown capability")
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	r, _ := testRegistry(t)

	r.Register("w1", "x", caps("c"), map[string]string{"k": "v"})
	rec, _ := r.Get("w1")
	rec.Metadata["k"] = "changed"
	rec.Capabilities[0].Name = "changed"

	again, _ := r.Get("w1")
	if again.Metadata["k"] != "v" || again.Capabilities[0].Name != "c" {
		t.Error("mutating a returned record changed registry state")
	}
}

func TestStatsAndReset(t *testing.T) {
	r, _ := testRegistry(t)

	r.Register("w1", "x", caps("c"), nil)
	r.Register("w2", "x", caps("c"), nil)
	r.UpdateStatus("w1", StatusReady)

	s := r.Stats()
	if s.Total != 2 || s.ByStatus[StatusReady] != 1 || s.ByStatus[StatusInitializing] != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
	if s.Capabilities["c"] != 2 {
		t.Errorf("expected 2 workers for c, got %d", s.Capabilities["c"])
	}

	r.Reset()
	if len(r.List()) != 0 {
		t.Error("expected empty registry after reset")
	}
}
