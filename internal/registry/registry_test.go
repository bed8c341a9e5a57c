package registry

import (
	"testing"

	"github.com/nsdbroker/nsdbroker/internal/connector"
)

func TestRegistry_RegisterGetRemove(t *testing.T) {
	r := New()
	conn := connector.NewLoopback()

	client := r.Register(conn, conn)
	if client == nil {
		t.Fatal("Register returned nil client")
	}

	got, ok := r.Get(conn)
	if !ok || got != client {
		t.Fatalf("Get(conn) = %v, %v, want %v, true", got, ok, client)
	}

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}

	removed, ok := r.Remove(conn)
	if !ok || removed != client {
		t.Fatalf("Remove(conn) = %v, %v, want %v, true", removed, ok, client)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() after Remove = %d, want 0", r.Len())
	}

	if _, ok := r.Get(conn); ok {
		t.Fatal("Get(conn) after Remove returned ok=true")
	}
}

func TestRegistry_LegacyClientCount(t *testing.T) {
	r := New()
	legacy := connector.NewLoopback()
	managed := connector.NewLoopback()

	r.Register(legacy, legacy)
	r.Register(managed, managed)

	legacyClient, _ := r.Get(legacy)
	legacyClient.IsLegacyClient = true

	if got := r.LegacyClientCount(); got != 1 {
		t.Fatalf("LegacyClientCount() = %d, want 1", got)
	}
}

func TestRegistry_Range(t *testing.T) {
	r := New()
	a := connector.NewLoopback()
	b := connector.NewLoopback()
	r.Register(a, a)
	r.Register(b, b)

	seen := map[connector.Connector]bool{}
	r.Range(func(c connector.Connector, client *Client) {
		seen[c] = true
	})
	if len(seen) != 2 {
		t.Fatalf("Range visited %d clients, want 2", len(seen))
	}
}

func TestRegistry_RangeAllowsRemoveDuringIteration(t *testing.T) {
	r := New()
	a := connector.NewLoopback()
	b := connector.NewLoopback()
	r.Register(a, a)
	r.Register(b, b)

	r.Range(func(c connector.Connector, client *Client) {
		r.Remove(c)
	})

	if r.Len() != 0 {
		t.Fatalf("Len() after Range-with-Remove = %d, want 0", r.Len())
	}
}

func TestClient_FindByGlobalID(t *testing.T) {
	conn := connector.NewLoopback()
	client := NewClient(conn)
	client.Requests[5] = &Request{GlobalID: 42, Kind: LegacyDiscover}

	key, req, ok := client.FindByGlobalID(42)
	if !ok || key != 5 || req.Kind != LegacyDiscover {
		t.Fatalf("FindByGlobalID(42) = %d, %v, %v, want 5, LegacyDiscover, true", key, req, ok)
	}

	if _, _, ok := client.FindByGlobalID(99); ok {
		t.Fatal("FindByGlobalID(99) = ok=true for an id that was never registered")
	}
}

func TestTransactions_PutLookupRemove(t *testing.T) {
	tx := NewTransactions()
	conn := connector.NewLoopback()

	tx.Put(7, conn)
	got, ok := tx.Lookup(7)
	if !ok || got != conn {
		t.Fatalf("Lookup(7) = %v, %v, want %v, true", got, ok, conn)
	}
	if tx.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tx.Len())
	}

	tx.Remove(7)
	if _, ok := tx.Lookup(7); ok {
		t.Fatal("Lookup(7) after Remove returned ok=true")
	}
	if tx.Len() != 0 {
		t.Fatalf("Len() after Remove = %d, want 0", tx.Len())
	}
}
