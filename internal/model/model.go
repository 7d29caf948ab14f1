// Package model holds the presentation snapshot (spec.md §3's "Model") that
// the engine pushes, one-way, to the rendering pipeline. The rendering
// pipeline itself (image compositing, fonts, PNG encoding, FIFO writing) is
// out of scope (spec.md §1); this package only defines the data it would
// consume, mirroring the teacher's models/game.go: plain structs with JSON
// tags, no behavior beyond small derived fields.
package model

import (
	"chess-crowd/internal/chessboard"
	"chess-crowd/internal/clock"
)

// Player mirrors spec.md §3's Player record.
type Player struct {
	Name   string        `json:"name"`
	Color  chessboard.Color `json:"color"`
	Rating *int          `json:"rating,omitempty"`
	Timer  clock.Timer   `json:"timer"`
}

// Title is the game-identifying banner line of the presentation Model.
type Title struct {
	URL   string       `json:"url"`
	Speed string       `json:"speed"`
	Clock clock.Settings `json:"clock"`
}

// Command is one entry in the rolling chat-command list.
type Command struct {
	User    string `json:"user"`
	Command string `json:"command"`
}

// MaxCommandHistory bounds the rolling chat-command list shown on stream.
const MaxCommandHistory = 20

// VoteStats is the tally for a single vote value.
type VoteStats struct {
	TotalVotes  int `json:"totalVotes"`
	VoteChanges int `json:"voteChanges"` // delta since the previous tick
}

// Delays mirrors spec.md §3's Delays{current, max}.
type Delays struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// GameVotes is the per-turn vote tally snapshot (spec.md §3).
type GameVotes struct {
	SecondsRemaining uint64               `json:"secondsRemaining"`
	Votes            map[string]VoteStats `json:"votes"`
	Delays           Delays               `json:"delays"`
}

// GameModes is the derived on/off decision per voted mode. Blitz is not
// voted on — it is always on (spec.md §3) — so it has no field here.
type GameModes struct {
	Bullet    bool `json:"bullet"`
	Rapid     bool `json:"rapid"`
	Classical bool `json:"classical"`
}

// Settings is the derived settings snapshot (spec.md §3/§4.5).
type Settings struct {
	GameModes GameModes `json:"gameModes"`
	Bullet    int       `json:"bullet"`
	Rapid     int       `json:"rapid"`
	Classical int       `json:"classical"`
	Total     int       `json:"total"`
}

// StateKind discriminates the State enum (spec.md §3).
type StateKind string

const (
	StateChallengingUser StateKind = "challengingUser"
	StateOurTurn         StateKind = "ourTurn"
	StateTheirTurn       StateKind = "theirTurn"
	StateGameFinished    StateKind = "gameFinished"
	StateUnknown         StateKind = "unknown"
)

// State is the tagged "what's the engine doing" enum from spec.md §3.
type State struct {
	Kind              StateKind `json:"kind"`
	ChallengedUserID  string    `json:"challengedUserId,omitempty"`
	ChallengedRating  int       `json:"challengedRating,omitempty"`
}

// Model is the full presentation snapshot.
type Model struct {
	Title       Title             `json:"title"`
	Notices     []string          `json:"notices"`
	Commands    []Command         `json:"commands"`
	MoveHistory []string          `json:"moveHistory"`
	Us          Player            `json:"us"`
	Opponent    Player            `json:"opponent"`
	Board       *chessboard.Board `json:"board,omitempty"`
	Settings    Settings          `json:"settings"`
	Votes       GameVotes         `json:"votes"`
	State       State             `json:"state"`
}

// New returns an empty Model in the Unknown state.
func New() *Model {
	return &Model{
		Notices:  []string{},
		Commands: []Command{},
		State:    State{Kind: StateUnknown},
		Votes:    GameVotes{Votes: map[string]VoteStats{}},
	}
}

// PushCommand appends a chat command, trimming the rolling history to
// MaxCommandHistory entries (oldest first dropped).
func (m *Model) PushCommand(c Command) {
	m.Commands = append(m.Commands, c)
	if len(m.Commands) > MaxCommandHistory {
		m.Commands = m.Commands[len(m.Commands)-MaxCommandHistory:]
	}
}

// PushNotice appends a notice line, matching the teacher's append-only log
// style (audit.go, eventbus.go) rather than a ring buffer — notices are
// never trimmed or cleared by this package.
func (m *Model) PushNotice(line string) {
	m.Notices = append(m.Notices, line)
}
