// Package events defines the two event vocabularies that flow through the
// engine's single-threaded loop (spec.md §4.1, §4.6): ExternalEvent arrives
// from the outside world (Lichess streams, chat), while Action/Notification
// are generated internally and queued for the same loop to drain. The split
// mirrors the original's engine/events/external.rs and engine/events/internal.rs
// (themselves modeled on a crossbeam_channel setup); here it is plain
// buffered Go channels, since the engine owns exactly one goroutine reading
// them (spec.md §5).
package events

// ExternalSource is implemented once per outside feed (Lichess, chat) and
// fans its events into one shared channel that the engine polls non-
// blockingly, matching the teacher's eventbus.go reconnect-loop idiom and
// the original's EventManager.next_event (poll lichess, then chat, else
// nothing this tick).
type ExternalSource interface {
	// Events returns the channel this source publishes to. The engine
	// never blocks reading it — it only drains whatever is already
	// buffered on a given loop iteration (spec.md §4.1 step 1).
	Events() <-chan ExternalEvent
}

// ExternalEvent is anything that originates outside the engine.
type ExternalEvent struct {
	Lichess *LichessEvent
	Chat    *ChatEvent
}

// LichessAccountKind discriminates account-stream events (spec.md §4.6).
type LichessAccountKind string

const (
	LichessChallenge         LichessAccountKind = "challenge"
	LichessChallengeCanceled LichessAccountKind = "challengeCanceled"
	LichessChallengeDeclined LichessAccountKind = "challengeDeclined"
	LichessGameStart         LichessAccountKind = "gameStart"
	LichessGameFinish        LichessAccountKind = "gameFinish"
)

// LichessGameKind discriminates per-game-stream events (spec.md §4.6).
type LichessGameKind string

const (
	LichessGameFull     LichessGameKind = "gameFull"
	LichessGameState    LichessGameKind = "gameState"
	LichessChatLine     LichessGameKind = "chatLine"
	LichessOpponentGone LichessGameKind = "opponentGone"
)

// LichessEvent is a tagged union over account-stream and per-game-stream
// payloads, flattened into plain fields rather than Go's nearest analogue of
// an enum (a sum-type interface) so callers can switch on AccountKind or
// GameKind directly, matching the teacher's handler-dispatch style
// (websocket.go's message switch).
type LichessEvent struct {
	// Account events (AccountKind is one of the Lichess* account constants).
	AccountKind LichessAccountKind

	ChallengeID      string
	ChallengerID     string
	ChallengerRating int
	ChallengerIsBot  bool
	Variant          string
	GameID           string

	// Game events (GameKind is one of the LichessGame* constants), always
	// scoped to GameID above.
	GameKind LichessGameKind

	GameFull  *GameFullPayload
	GameState *GameStatePayload
	ChatLine  *ChatLinePayload
}

// GameFullPayload mirrors the gameFull Lichess bot-stream message.
type GameFullPayload struct {
	WhiteID         string
	BlackID         string
	WhiteRatingKnown bool
	WhiteRating     int
	BlackRatingKnown bool
	BlackRating     int
	InitialFEN      string
	ClockInitialMs  int64
	ClockIncrementMs int64
	State           GameStatePayload
}

// GameStatePayload mirrors the gameState Lichess bot-stream message.
type GameStatePayload struct {
	Moves       string // space separated UCI moves
	WhiteTimeMs int64
	BlackTimeMs int64
	WhiteIncMs  int64
	BlackIncMs  int64
	Status      string // "started", "mate", "resign", "draw", ...
	Winner      string // "white", "black", or empty
}

// ChatLinePayload mirrors a Lichess game-chat message.
type ChatLinePayload struct {
	Username string
	Text     string
	Room     string
}

// ChatEvent is a line read from the external chat feed (spec.md §4.6),
// already trimmed to username + raw text; command parsing happens in
// package chatclient before this reaches the engine.
type ChatEvent struct {
	Username string
	Text     string
}
