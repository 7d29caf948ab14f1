package challenge

import (
	"testing"

	"chess-crowd/internal/events"
)

func TestBeginRecordsOutbound(t *testing.T) {
	m := New("our-bot")
	q := events.NewQueue()
	m.Begin(q.Sender(), "chal1", "opponent")
	defer m.CancelOutbound()

	out, ok := m.Outstanding()
	if !ok || out.ID != "chal1" || out.Opponent != "opponent" {
		t.Fatalf("got %+v, ok=%v", out, ok)
	}
}

func TestNullifyOnlyMatchesCurrentOutbound(t *testing.T) {
	m := New("our-bot")
	q := events.NewQueue()
	m.Begin(q.Sender(), "chal1", "opponent")
	defer m.CancelOutbound()

	if m.Nullify("other") {
		t.Fatalf("expected Nullify to reject a non-matching id")
	}
	if !m.Nullify("chal1") {
		t.Fatalf("expected Nullify to accept the matching id")
	}
	if _, ok := m.Outstanding(); ok {
		t.Fatalf("expected no outbound challenge after Nullify")
	}
}

func TestCancelOutboundClearsState(t *testing.T) {
	m := New("our-bot")
	q := events.NewQueue()
	m.Begin(q.Sender(), "chal1", "opponent")
	m.CancelOutbound()

	if _, ok := m.Outstanding(); ok {
		t.Fatalf("expected no outbound challenge after CancelOutbound")
	}
}
