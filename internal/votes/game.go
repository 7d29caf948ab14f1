// Package votes implements the two vote tallies the engine owns: per-game
// move votes (this file) and cross-game settings votes (settings.go).
// Both are grounded on the original's engine/votes/game.rs and
// engine/votes/settings.rs.
package votes

import (
	"math/rand"
	"time"

	"chess-crowd/internal/events"
	"chess-crowd/internal/model"
	"chess-crowd/internal/speed"
)

// VoteKind discriminates a single chat vote (original's votes::game::Vote).
type VoteKind string

const (
	VoteDelay  VoteKind = "delay"
	VoteDraw   VoteKind = "draw"
	VoteResign VoteKind = "resign"
	VoteMove   VoteKind = "move"
)

// Vote is one user's chat vote for the current turn.
type Vote struct {
	Kind VoteKind
	UCI  string // set only when Kind == VoteMove
}

// String renders the vote the way it is tallied and displayed — the UCI
// string for moves, the bare keyword otherwise.
func (v Vote) String() string {
	if v.Kind == VoteMove {
		return v.UCI
	}
	return string(v.Kind)
}

// GameTracker tallies votes for the current turn of a single game. It is
// owned exclusively by the engine loop: the only concurrent access is the
// scheduled window goroutine below, which never touches GameTracker's
// fields directly — it only ever writes to the shared notification queue,
// preserving the "no locks" invariant (spec.md §5).
type GameTracker struct {
	enabled       bool
	maxDelays     int
	delaysCurrent int
	voteDuration  time.Duration
	deadline      time.Time
	votes         map[string]Vote
	prevTotals    map[string]int
	cancel        chan struct{}
}

// NewGameTracker creates a tracker tuned for the game's speed class
// (spec.md §3's per-speed table).
func NewGameTracker(s speed.Speed) *GameTracker {
	return &GameTracker{
		maxDelays:    speed.MaxDelays(s),
		voteDuration: speed.VoteDuration(s),
		votes:        map[string]Vote{},
		prevTotals:   map[string]int{},
	}
}

// Enable turns on vote acceptance (it starts disabled until the engine
// decides it's this game's turn to vote).
func (t *GameTracker) Enable() { t.enabled = true }

// Disable turns off vote acceptance without clearing existing tallies.
func (t *GameTracker) Disable() { t.enabled = false }

// Enabled reports whether the tracker currently accepts votes.
func (t *GameTracker) Enabled() bool { return t.enabled }

// CanDelay reports whether another delay vote would still be under cap.
func (t *GameTracker) CanDelay() bool {
	return t.delaysCurrent < t.maxDelays
}

// AddDelay records one more delay, capped at maxDelays.
func (t *GameTracker) AddDelay() {
	if t.CanDelay() {
		t.delaysCurrent++
	}
}

// AddVote records user's vote for this turn, replacing any prior vote from
// the same user. Ignored while disabled, and ignored for delay votes once
// the delay cap is reached (spec.md §4.3).
func (t *GameTracker) AddVote(user string, v Vote) bool {
	if !t.enabled {
		return false
	}
	if v.Kind == VoteDelay && !t.CanDelay() {
		return false
	}
	t.votes[user] = v
	return true
}

// TopVote returns the vote with the most votes. Ties are broken arbitrarily
// — Go's map iteration order is randomized per run, which gives the same
// "arbitrary but not attacker-chosen" tie-break the original's
// HashMap::iter().max_by_key() has.
func (t *GameTracker) TopVote() (Vote, bool) {
	counts := map[string]int{}
	reps := map[string]Vote{}
	for _, v := range t.votes {
		key := v.String()
		counts[key]++
		reps[key] = v
	}
	best := ""
	bestCount := -1
	for key, count := range counts {
		if count > bestCount {
			bestCount = count
			best = key
		}
	}
	if bestCount < 0 {
		return Vote{}, false
	}
	return reps[best], true
}

// RandomLegalFallback is used when no votes were cast for a turn (spec.md
// §9: "if nobody voted, play a uniformly random legal move").
func RandomLegalFallback(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// ResetVoting clears this turn's tallies and timer state without touching
// the delay count — mirrors the original's reset_voting (used after a
// delay vote wins, since delays don't end the voting round).
func (t *GameTracker) ResetVoting() {
	t.votes = map[string]Vote{}
	t.prevTotals = map[string]int{}
	t.deadline = time.Time{}
}

// Reset clears tallies, delay count and timer state — a brand new voting
// round for a brand new turn (mirrors the original's full reset()).
func (t *GameTracker) Reset() {
	t.delaysCurrent = 0
	t.ResetVoting()
}

// Model computes the presentation snapshot for this turn's votes: totals
// per distinct vote, the delta since the last snapshot, the delay counter
// and seconds remaining in the window. Deltas are a deliberate enrichment
// over the original (whose vote_changes field was always zero) since
// nothing stops us from actually tracking it and it was always in the
// presentation shape.
func (t *GameTracker) Model() model.GameVotes {
	totals := map[string]int{}
	for _, v := range t.votes {
		totals[v.String()]++
	}

	stats := make(map[string]model.VoteStats, len(totals))
	for key, total := range totals {
		stats[key] = model.VoteStats{
			TotalVotes:  total,
			VoteChanges: total - t.prevTotals[key],
		}
	}
	t.prevTotals = totals

	var secondsRemaining uint64
	if remaining := time.Until(t.deadline); remaining > 0 {
		secondsRemaining = uint64(remaining / time.Second)
	}

	return model.GameVotes{
		SecondsRemaining: secondsRemaining,
		Votes:            stats,
		Delays: model.Delays{
			Current: t.delaysCurrent,
			Max:     t.maxDelays,
		},
	}
}

// ScheduleWindow starts (or restarts) this turn's voting window: it aborts
// any window already running, then spawns a goroutine that emits
// GameVotesChanged once a second and, once voteDuration elapses, emits
// VotingFinished plus a Lichess move action for gameID. The goroutine never
// touches GameTracker state directly — only the engine, draining the
// notification it raises, does — so no mutex is needed (spec.md §5).
func (t *GameTracker) ScheduleWindow(sender events.Sender, gameID string) {
	t.CancelWindow()

	t.deadline = time.Now().Add(t.voteDuration)
	cancel := make(chan struct{})
	t.cancel = cancel

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		deadline := time.Now().Add(t.voteDuration)

		for {
			select {
			case <-cancel:
				return
			case now := <-ticker.C:
				if now.Before(deadline) {
					sender.PushNotification(events.Notification{Kind: events.NotifyGameVotesChanged})
					continue
				}
				sender.PushNotification(events.Notification{Kind: events.NotifyVotingFinished})
				sender.PushAction(events.Action{Lichess: &events.LichessAction{
					GameID:     gameID,
					GameAction: events.GameActionMove,
				}})
				return
			}
		}
	}()
}

// CancelWindow aborts any voting-window goroutine started by ScheduleWindow,
// matching the original's timer_handle.abort() done before scheduling a new
// window or when the game ends mid-vote.
func (t *GameTracker) CancelWindow() {
	if t.cancel != nil {
		close(t.cancel)
		t.cancel = nil
	}
}
