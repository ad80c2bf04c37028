package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRegistry_CreateGet(t *testing.T) {
	f := newFixture(t, twoLineStations())
	r := NewRegistry(f.core, 2, time.Hour)

	s := r.Create()
	if _, err := uuid.Parse(s.ID()); err != nil {
		t.Fatalf("id %q is not a uuid: %v", s.ID(), err)
	}
	got, ok := r.Get(s.ID())
	if !ok || got != s {
		t.Fatalf("Get(%q) = %v, %v", s.ID(), got, ok)
	}
	if _, ok := r.Get("not-a-uuid"); ok {
		t.Fatalf("malformed id must miss")
	}
	if _, ok := r.Get(uuid.NewString()); ok {
		t.Fatalf("unknown id must miss")
	}
	if !r.Delete(s.ID()) || r.Len() != 0 {
		t.Fatalf("Delete failed, len=%d", r.Len())
	}
}

func TestRegistry_BoundedAndExpiring(t *testing.T) {
	f := newFixture(t, twoLineStations())
	r := NewRegistry(f.core, 2, time.Hour)
	first := r.Create()
	r.Create()
	r.Create()
	if r.Len() != 2 {
		t.Fatalf("len=%d want 2", r.Len())
	}
	if _, ok := r.Get(first.ID()); ok {
		t.Fatalf("oldest session should be evicted")
	}

	short := NewRegistry(f.core, 4, 20*time.Millisecond)
	s := short.Create()
	time.Sleep(80 * time.Millisecond)
	if _, ok := short.Get(s.ID()); ok {
		t.Fatalf("session should have expired")
	}
}
