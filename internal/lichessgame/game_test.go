package lichessgame

import (
	"testing"

	"chess-crowd/internal/chessboard"
	"chess-crowd/internal/events"
)

func fullPayload() events.GameFullPayload {
	return events.GameFullPayload{
		WhiteID:          "us",
		BlackID:          "opponent",
		WhiteRatingKnown: true,
		WhiteRating:      1500,
		BlackRatingKnown: true,
		BlackRating:      1480,
		InitialFEN:       "startpos",
		ClockInitialMs:   300000,
		ClockIncrementMs: 2000,
	}
}

func TestFromGameFullDeducesOurColor(t *testing.T) {
	g := FromGameFull("game1", "us", fullPayload())
	if g.Us != chessboard.White {
		t.Fatalf("expected us=white when WhiteID matches ourID")
	}
	if g.OpponentID != "opponent" {
		t.Fatalf("OpponentID = %q, want opponent", g.OpponentID)
	}
}

func TestFromGameFullDeducesBlackWhenWeAreBlack(t *testing.T) {
	payload := fullPayload()
	g := FromGameFull("game1", "opponent", payload)
	if g.Us != chessboard.Black {
		t.Fatalf("expected us=black")
	}
	if g.OpponentID != "us" {
		t.Fatalf("OpponentID = %q, want us", g.OpponentID)
	}
}

func TestApplyStateReplaysMoves(t *testing.T) {
	g := FromGameFull("game1", "us", fullPayload())
	finished := g.ApplyState(events.GameStatePayload{
		Moves:       "e2e4 e7e5",
		WhiteTimeMs: 298000,
		BlackTimeMs: 299000,
		Status:      "started",
	})
	if finished {
		t.Fatalf("expected game not finished")
	}
	if len(g.Moves) != 2 {
		t.Fatalf("Moves = %v, want 2 entries", g.Moves)
	}
	if g.Board.ToFEN() == chessboard.StartFEN {
		t.Fatalf("expected board to advance past the starting position")
	}
}

func TestApplyStateIgnoresIllegalReplay(t *testing.T) {
	g := FromGameFull("game1", "us", fullPayload())
	before := g.Board.ToFEN()
	g.ApplyState(events.GameStatePayload{Moves: "e2e5", Status: "started"})
	if g.Board.ToFEN() != before {
		t.Fatalf("expected board to stay intact after an illegal replay")
	}
}

func TestApplyStateDetectsFinish(t *testing.T) {
	g := FromGameFull("game1", "us", fullPayload())
	finished := g.ApplyState(events.GameStatePayload{Status: "resign", Winner: "black"})
	if !finished {
		t.Fatalf("expected finished=true on status=resign")
	}
	if g.Winner != "them" {
		t.Fatalf("Winner = %q, want them", g.Winner)
	}
}

func TestManagerFinishRetainsLastGameViaLazyCleanup(t *testing.T) {
	m := NewManager()
	g := FromGameFull("game1", "us", fullPayload())
	m.Add(g)
	if !m.SwitchGame("game1") {
		t.Fatalf("expected switch to game1 to succeed")
	}
	m.Finish("game1")

	// Finish marks the game finished but does not remove it (spec.md §4.2).
	if got, ok := m.Get("game1"); !ok || !got.Finished {
		t.Fatalf("expected game1 to still be tracked and marked finished right after Finish")
	}

	// Removal happens lazily, the next time a caller touches Current().
	if _, ok := m.Current(); ok {
		t.Fatalf("expected no current game once Current() notices it finished")
	}
	last, ok := m.LastFinished()
	if !ok || last.ID != "game1" {
		t.Fatalf("expected last finished game to be retained")
	}
}

func TestManagerOldestGameIDSkipsCurrentAndFinished(t *testing.T) {
	m := NewManager()
	m.Add(FromGameFull("a", "us", fullPayload()))
	m.Add(FromGameFull("b", "us", fullPayload()))
	m.Add(FromGameFull("c", "us", fullPayload()))
	m.SwitchGame("a")
	m.Finish("b")

	oldest, ok := m.OldestGameID()
	if !ok || oldest != "c" {
		t.Fatalf("OldestGameID() = %q, want c (a is current, b is finished)", oldest)
	}
}

func TestManagerOldestGameIDOrdersByCreationNotID(t *testing.T) {
	m := NewManager()
	m.Add(FromGameFull("zzz", "us", fullPayload())) // created first
	m.Add(FromGameFull("aaa", "us", fullPayload())) // created second

	oldest, ok := m.OldestGameID()
	if !ok || oldest != "zzz" {
		t.Fatalf("OldestGameID() = %q, want zzz (created first, despite sorting after aaa lexically)", oldest)
	}
}

func TestManagerSwitchGameRefusesToPreemptLiveCurrent(t *testing.T) {
	m := NewManager()
	m.Add(FromGameFull("a", "us", fullPayload()))
	m.Add(FromGameFull("b", "us", fullPayload()))
	m.SwitchGame("a")

	if m.SwitchGame("b") {
		t.Fatalf("expected SwitchGame to refuse to preempt a live current game")
	}
	if m.CurrentID() != "a" {
		t.Fatalf("expected a to remain current, got %q", m.CurrentID())
	}
}

func TestManagerSwitchGameToFinishedTargetCleansUpAndFails(t *testing.T) {
	m := NewManager()
	m.Add(FromGameFull("a", "us", fullPayload()))
	m.Finish("a")

	if m.SwitchGame("a") {
		t.Fatalf("expected SwitchGame to refuse a finished target")
	}
	if _, ok := m.Get("a"); ok {
		t.Fatalf("expected the finished target to be forgotten")
	}
	last, ok := m.LastFinished()
	if !ok || last.ID != "a" {
		t.Fatalf("expected the finished target to be retained as last finished")
	}
}

func TestManagerClearCurrentDetachesWithoutRemoving(t *testing.T) {
	m := NewManager()
	m.Add(FromGameFull("a", "us", fullPayload()))
	m.SwitchGame("a")
	m.ClearCurrent()

	if m.CurrentID() != "" {
		t.Fatalf("expected no current game after ClearCurrent")
	}
	if _, ok := m.Get("a"); !ok {
		t.Fatalf("expected ClearCurrent to leave the game in the map")
	}
}
