package twait

import (
	"testing"

	"github.com/haproxy-core/mincore/internal/tick"
)

func TestInsertSkipsLaterMinorant(t *testing.T) {
	q := New[int](8)
	if !q.Insert(1, tick.Tick(100)) {
		t.Fatal("first insert should modify the tree")
	}
	if q.Insert(1, tick.Tick(200)) {
		t.Fatal("inserting a later expire must keep the earlier minorant")
	}
	if q.Peek() != tick.Tick(100) {
		t.Fatalf("expected key 100, got %d", q.Peek())
	}
}

func TestInsertTightensEarlier(t *testing.T) {
	q := New[int](8)
	q.Insert(1, tick.Tick(200))
	if !q.Insert(1, tick.Tick(50)) {
		t.Fatal("inserting an earlier expire must tighten the stored key")
	}
	if q.Peek() != tick.Tick(50) {
		t.Fatalf("expected key 50, got %d", q.Peek())
	}
}

func TestExpiredOrderAndStop(t *testing.T) {
	q := New[int](8)
	q.Insert(1, tick.Tick(10))
	q.Insert(2, tick.Tick(20))
	q.Insert(3, tick.Tick(30))

	got := q.Expired(tick.Tick(20))
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2], got %v", got)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", q.Len())
	}
	if q.Contains(3) == false {
		t.Fatal("entry 3 should still be linked")
	}
}

func TestRemove(t *testing.T) {
	q := New[int](8)
	q.Insert(1, tick.Tick(10))
	q.Remove(1)
	if q.Contains(1) {
		t.Fatal("removed entry must not be linked")
	}
	if q.Peek() != tick.Eternity {
		t.Fatal("empty queue must peek Eternity")
	}
}

func TestInsertIgnoresUnsetExpire(t *testing.T) {
	q := New[int](8)
	if q.Insert(1, tick.Eternity) {
		t.Fatal("inserting Eternity must be a no-op")
	}
	if q.Len() != 0 {
		t.Fatal("queue must remain empty")
	}
}
