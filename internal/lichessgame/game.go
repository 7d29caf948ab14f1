// Package lichessgame tracks the set of games the engine is currently
// playing on the remote chess service, grounded on the original's
// lichess/game.rs (per-game state) and lichess/manager.rs (the game map and
// "which game is current" bookkeeping).
package lichessgame

import (
	"fmt"
	"strings"

	"chess-crowd/internal/chessboard"
	"chess-crowd/internal/clock"
	"chess-crowd/internal/events"
	"chess-crowd/internal/speed"
)

// Game is one in-progress (or just-finished) game against the remote
// service.
type Game struct {
	ID         string
	Us         chessboard.Color
	OpponentID string
	OurRating  *int
	OppRating  *int
	Speed      speed.Speed
	Clock      clock.Settings
	OurTimer   clock.Timer
	OppTimer   clock.Timer
	InitialFEN string
	Moves      []string
	Board      *chessboard.Board
	Finished   bool
	Winner     string // "us", "them", "" (draw or unfinished)

	// CreatedSeq is a monotonic creation order assigned by Manager.Add, used
	// by OldestGameID to find the minimum-creation-timestamp game (spec.md
	// §3, §4.2). A sequence counter rather than a wall-clock timestamp, for
	// deterministic tests — the spec only requires monotonicity.
	CreatedSeq int64
}

// colorFromAPIColor maps Lichess's "white"/"black" string to Color —
// mirrors the original's color_from_api_color.
func colorFromAPIColor(s string) chessboard.Color {
	return chessboard.Color(strings.EqualFold(s, "white"))
}

// FromGameFull builds a Game from a gameFull stream payload, deducing our
// color by matching ourID against white/black ids (mirrors the original's
// from_game_full).
func FromGameFull(gameID, ourID string, full events.GameFullPayload) *Game {
	us := chessboard.White
	opponentID := full.BlackID
	var ourRating, oppRating *int
	if full.WhiteRatingKnown {
		r := full.WhiteRating
		ourRating = &r
	}
	if full.BlackRatingKnown {
		r := full.BlackRating
		oppRating = &r
	}

	if full.WhiteID != ourID {
		us = chessboard.Black
		opponentID = full.WhiteID
		ourRating, oppRating = oppRating, ourRating
	}

	clockSettings := clock.SettingsFromMillis(full.ClockInitialMs, full.ClockIncrementMs)
	gameSpeed := speed.FromClock(int(full.ClockInitialMs/1000), int(full.ClockIncrementMs/1000))

	board, ok := chessboard.ReplayMoves(full.InitialFEN, splitMoves(full.State.Moves))
	if !ok {
		board = chessboard.NewBoard()
	}

	g := &Game{
		ID:         gameID,
		Us:         us,
		OpponentID: opponentID,
		OurRating:  ourRating,
		OppRating:  oppRating,
		Speed:      gameSpeed,
		Clock:      clockSettings,
		OurTimer:   clock.NewTimer(full.ClockInitialMs),
		OppTimer:   clock.NewTimer(full.ClockInitialMs),
		InitialFEN: full.InitialFEN,
		Board:      board,
	}
	g.ApplyState(full.State)
	return g
}

func splitMoves(moves string) []string {
	moves = strings.TrimSpace(moves)
	if moves == "" {
		return nil
	}
	return strings.Fields(moves)
}

// ApplyState updates clocks, move history and board from a gameState
// payload, replaying the full move list from scratch each time (spec.md
// §9: the board is authoritative-replay, not incrementally patched, so a
// missed or reordered stream message can never desync it). Returns whether
// the game is now finished.
func (g *Game) ApplyState(state events.GameStatePayload) bool {
	moves := splitMoves(state.Moves)
	if board, ok := chessboard.ReplayMoves(g.InitialFEN, moves); ok {
		g.Board = board
		g.Moves = moves
	}
	// If replay fails the previous board is left intact (spec.md §7).

	g.OurTimer = clock.NewTimer(timeForColor(state, g.Us))
	g.OppTimer = clock.NewTimer(timeForColor(state, g.Us.Other()))

	g.Finished = state.Status != "" && state.Status != "started" && state.Status != "created"
	if g.Finished {
		g.Winner = winnerFor(state.Winner, g.Us)
	}
	return g.Finished
}

func timeForColor(state events.GameStatePayload, c chessboard.Color) int64 {
	if c == chessboard.White {
		return state.WhiteTimeMs
	}
	return state.BlackTimeMs
}

func winnerFor(winner string, us chessboard.Color) string {
	switch winner {
	case "":
		return ""
	case us.String():
		return "us"
	default:
		return "them"
	}
}

// ElapseTurn ticks the clock belonging to whichever side is to move,
// mirroring the original's elapse_time routing elapse to us or the
// opponent based on whose turn the board says it is.
func (g *Game) ElapseTurn(ms int64) {
	if g.Board.Side() == g.Us {
		g.OurTimer.Elapse(ms)
	} else {
		g.OppTimer.Elapse(ms)
	}
}

// OurTurn reports whether it is our side's move.
func (g *Game) OurTurn() bool {
	return g.Board.Side() == g.Us
}

// ConvertMove validates a UCI string against the current board and returns
// the move if legal — mirrors the original's process_game_vote move
// matching path, which must reject illegal moves before ever reaching the
// remote API.
func ConvertMove(board *chessboard.Board, uci string) (chessboard.Move, bool) {
	return chessboard.LegalUCIMove(board, uci)
}

// Manager owns the set of games the engine is tracking and which one is
// "current" — mirrors lichess/manager.rs's game map plus last-game
// retention (a supplemented feature carried over from the older
// single-game variant of the manager, where std::mem::swap kept the
// previous game around after it finished).
type Manager struct {
	games      map[string]*Game
	currentID  string
	lastGameID string
	lastGame   *Game
	nextSeq    int64
}

// NewManager creates an empty game manager.
func NewManager() *Manager {
	return &Manager{games: map[string]*Game{}}
}

// Add registers a new game and stamps it with the next creation sequence.
// It deliberately does not touch currentID — process_game_start is a
// distinct operation from "become current" (spec.md §4.2); callers decide
// separately whether and when to switch to it.
func (m *Manager) Add(g *Game) {
	g.CreatedSeq = m.nextSeq
	m.nextSeq++
	m.games[g.ID] = g
}

// Get returns the game by id.
func (m *Manager) Get(id string) (*Game, bool) {
	g, ok := m.games[id]
	return g, ok
}

// Current returns the current game, lazily forgetting it first if it has
// already finished — "process_game_finish... does not remove; removal
// happens when some caller touches current_game() on a finished entry"
// (spec.md §4.2).
func (m *Manager) Current() (*Game, bool) {
	if m.currentID == "" {
		return nil, false
	}
	g, ok := m.games[m.currentID]
	if !ok {
		m.currentID = ""
		return nil, false
	}
	if g.Finished {
		m.forget(m.currentID, g)
		return nil, false
	}
	return g, true
}

func (m *Manager) forget(id string, g *Game) {
	delete(m.games, id)
	m.lastGameID = id
	m.lastGame = g
	if m.currentID == id {
		m.currentID = ""
	}
}

// CurrentID returns the current game's id, or "".
func (m *Manager) CurrentID() string { return m.currentID }

// SwitchGame makes id the current game. It refuses to pre-empt an
// already-current, unfinished game (spec.md §9: switch_game must not steal
// focus from a live game — that's a no-op unless current is none or
// finished). Switching to an already-finished target instead forgets it
// lazily and reports failure, so the caller can search again (spec.md
// §4.2).
func (m *Manager) SwitchGame(id string) bool {
	g, ok := m.games[id]
	if !ok {
		return false
	}
	if g.Finished {
		m.forget(id, g)
		return false
	}
	if cur, ok := m.games[m.currentID]; ok && !cur.Finished && m.currentID != id {
		return false
	}
	m.currentID = id
	return true
}

// ClearCurrent detaches the current game pointer without touching the
// games map — for a caller that already knows the just-finished game was
// current and wants find-new-game to proceed immediately, rather than
// waiting for a later Current()/SwitchGame() touch to notice (spec.md
// §4.2).
func (m *Manager) ClearCurrent() {
	m.currentID = ""
}

// OldestGameID returns the id of the longest-tracked, unfinished,
// non-current game — the minimum of creation timestamps (spec.md §3,
// §4.2), ordered by CreatedSeq rather than game id so ties resolve by
// actual insertion order instead of incidental string comparison.
func (m *Manager) OldestGameID() (string, bool) {
	best := ""
	var bestSeq int64
	for id, g := range m.games {
		if id == m.currentID || g.Finished {
			continue
		}
		if best == "" || g.CreatedSeq < bestSeq {
			best = id
			bestSeq = g.CreatedSeq
		}
	}
	return best, best != ""
}

// AdvanceClocks ticks every tracked, unfinished game's clock by ms —
// mirrors the original's advance_clocks, driven once per second from the
// engine's main cycle (spec.md §4.1 step 1, §4.2).
func (m *Manager) AdvanceClocks(ms int64) {
	for _, g := range m.games {
		if !g.Finished {
			g.ElapseTurn(ms)
		}
	}
}

// Finish marks a game finished in place. It deliberately does not remove
// it from the map or clear currentID — "process_game_finish... does not
// remove; removal happens when some caller touches current_game() on a
// finished entry" (spec.md §4.2). A caller that knows the game was current
// can follow up with Current(), which forgets it and retains it as
// LastFinished, or with ClearCurrent, which only detaches it.
func (m *Manager) Finish(id string) {
	if g, ok := m.games[id]; ok {
		g.Finished = true
	}
}

// LastFinished returns the most recently finished game retained for
// presentation, if any.
func (m *Manager) LastFinished() (*Game, bool) {
	return m.lastGame, m.lastGame != nil
}

// Count returns the number of games currently tracked.
func (m *Manager) Count() int { return len(m.games) }

// String implements a short debug description, matching the teacher's
// preference for Stringer over ad-hoc formatting helpers.
func (g *Game) String() string {
	return fmt.Sprintf("game %s (us=%s vs %s)", g.ID, g.Us, g.OpponentID)
}
