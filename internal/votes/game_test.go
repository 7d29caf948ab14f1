package votes

import (
	"testing"

	"chess-crowd/internal/speed"
)

func TestAddVoteIgnoredWhileDisabled(t *testing.T) {
	tr := NewGameTracker(speed.Blitz)
	if tr.AddVote("alice", Vote{Kind: VoteResign}) {
		t.Fatalf("expected AddVote to be rejected while disabled")
	}
}

func TestTopVotePicksHighestCount(t *testing.T) {
	tr := NewGameTracker(speed.Blitz)
	tr.Enable()
	tr.AddVote("alice", Vote{Kind: VoteMove, UCI: "e2e4"})
	tr.AddVote("bob", Vote{Kind: VoteMove, UCI: "e2e4"})
	tr.AddVote("carol", Vote{Kind: VoteResign})

	top, ok := tr.TopVote()
	if !ok {
		t.Fatalf("expected a top vote")
	}
	if top.Kind != VoteMove || top.UCI != "e2e4" {
		t.Fatalf("got %+v, want e2e4 move", top)
	}
}

func TestTopVoteEmptyWhenNoVotes(t *testing.T) {
	tr := NewGameTracker(speed.Blitz)
	tr.Enable()
	if _, ok := tr.TopVote(); ok {
		t.Fatalf("expected no top vote with zero votes cast")
	}
}

func TestDelayCapRejectsExcessDelays(t *testing.T) {
	tr := NewGameTracker(speed.UltraBullet) // maxDelays = 3
	tr.Enable()
	for i := 0; i < 3; i++ {
		if !tr.AddVote("alice", Vote{Kind: VoteDelay}) {
			t.Fatalf("delay %d should be accepted", i)
		}
		tr.AddDelay()
	}
	if tr.CanDelay() {
		t.Fatalf("expected delay cap reached")
	}
	if tr.AddVote("bob", Vote{Kind: VoteDelay}) {
		t.Fatalf("expected delay vote beyond cap to be rejected")
	}
}

func TestResetClearsDelaysAndVotes(t *testing.T) {
	tr := NewGameTracker(speed.Blitz)
	tr.Enable()
	tr.AddVote("alice", Vote{Kind: VoteResign})
	tr.AddDelay()
	tr.Reset()

	if tr.delaysCurrent != 0 {
		t.Fatalf("expected delays reset to 0, got %d", tr.delaysCurrent)
	}
	if _, ok := tr.TopVote(); ok {
		t.Fatalf("expected votes cleared after Reset")
	}
}

func TestModelReportsVoteChangesDelta(t *testing.T) {
	tr := NewGameTracker(speed.Blitz)
	tr.Enable()
	tr.AddVote("alice", Vote{Kind: VoteResign})
	first := tr.Model()
	if first.Votes["resign"].TotalVotes != 1 || first.Votes["resign"].VoteChanges != 1 {
		t.Fatalf("got %+v, want total=1 delta=1", first.Votes["resign"])
	}

	tr.AddVote("bob", Vote{Kind: VoteResign})
	second := tr.Model()
	if second.Votes["resign"].TotalVotes != 2 || second.Votes["resign"].VoteChanges != 1 {
		t.Fatalf("got %+v, want total=2 delta=1", second.Votes["resign"])
	}
}
