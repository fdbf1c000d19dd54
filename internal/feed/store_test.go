package feed

import (
	"testing"

	"github.com/eldtechnologies/chatline/internal/models"
)

type countingObserver struct{ admitted, duplicates int }

func (c *countingObserver) Admitted()  { c.admitted++ }
func (c *countingObserver) Duplicate() { c.duplicates++ }

func collect(s *Store) []models.Message {
	var out []models.Message
	for m := range s.All() {
		out = append(out, m)
	}
	return out
}

func TestAdmitIdempotent(t *testing.T) {
	obs := &countingObserver{}
	s := NewStore(obs)
	m := models.Message{ID: "m1", Author: "a", Body: "hi", SentAt: 1}

	if !s.Admit(m) {
		t.Fatal("first admit should insert")
	}
	if s.Admit(m) {
		t.Fatal("second admit should be a no-op")
	}

	got := collect(s)
	if len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("expected exactly one m1, got %+v", got)
	}
	if obs.admitted != 1 || obs.duplicates != 1 {
		t.Fatalf("unexpected observer counts: %+v", obs)
	}
}

func TestDuplicateNotRepublished(t *testing.T) {
	s := NewStore(nil)
	events := 0
	s.Subscribe(func(models.Message) { events++ })

	m := models.Message{ID: "m1", Body: "hi"}
	s.Admit(m)
	s.Admit(models.Message{ID: "m1", Body: "edited"})

	if events != 1 {
		t.Fatalf("expected 1 event, got %d", events)
	}
	got := collect(s)
	if got[0].Body != "hi" {
		t.Fatalf("first admitted copy must win, got %q", got[0].Body)
	}
}

func TestBulkAdmitChronological(t *testing.T) {
	s := NewStore(nil)
	n := s.BulkAdmit([]models.Message{
		{ID: "c", SentAt: 300},
		{ID: "a", SentAt: 100},
		{ID: "b", SentAt: 200},
	})
	if n != 3 {
		t.Fatalf("expected 3 admitted, got %d", n)
	}

	got := collect(s)
	want := []int64{100, 200, 300}
	for i, m := range got {
		if m.SentAt != want[i] {
			t.Fatalf("position %d: expected %d, got %d", i, want[i], m.SentAt)
		}
	}
}

func TestBulkAdmitStableTies(t *testing.T) {
	s := NewStore(nil)
	s.BulkAdmit([]models.Message{
		{ID: "x", SentAt: 5},
		{ID: "y", SentAt: 1},
		{ID: "z", SentAt: 5},
	})

	got := collect(s)
	if got[0].ID != "y" || got[1].ID != "x" || got[2].ID != "z" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestBulkAdmitDoesNotMutateInput(t *testing.T) {
	s := NewStore(nil)
	in := []models.Message{{ID: "b", SentAt: 2}, {ID: "a", SentAt: 1}}
	s.BulkAdmit(in)
	if in[0].ID != "b" {
		t.Fatal("input slice was reordered")
	}
}

func TestLiveArrivalsKeepAppendOrder(t *testing.T) {
	s := NewStore(nil)
	s.BulkAdmit([]models.Message{{ID: "h1", SentAt: 100}})
	s.Admit(models.Message{ID: "l1", SentAt: 50})
	s.Admit(models.Message{ID: "h1", SentAt: 100})

	got := collect(s)
	if len(got) != 2 || got[0].ID != "h1" || got[1].ID != "l1" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestAllIsRestartable(t *testing.T) {
	s := NewStore(nil)
	s.Admit(models.Message{ID: "1"})
	s.Admit(models.Message{ID: "2"})

	if len(collect(s)) != 2 || len(collect(s)) != 2 {
		t.Fatal("iteration should not consume the store")
	}

	count := 0
	for range s.All() {
		count++
		break
	}
	if count != 1 {
		t.Fatalf("early break should stop iteration, got %d", count)
	}
}

func TestAdmitDuringIteration(t *testing.T) {
	s := NewStore(nil)
	s.Admit(models.Message{ID: "1"})

	seen := 0
	for range s.All() {
		seen++
		s.Admit(models.Message{ID: "2"})
	}
	if seen != 1 {
		t.Fatalf("expected snapshot iteration, saw %d", seen)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 stored, got %d", s.Len())
	}
}

func TestReset(t *testing.T) {
	s := NewStore(nil)
	events := 0
	s.Subscribe(func(models.Message) { events++ })
	s.Admit(models.Message{ID: "1"})

	s.Reset()
	if s.Len() != 0 || s.Has("1") {
		t.Fatal("reset should clear messages")
	}

	s.Admit(models.Message{ID: "1"})
	if events != 2 {
		t.Fatalf("subscribers should survive reset, got %d events", events)
	}
}
