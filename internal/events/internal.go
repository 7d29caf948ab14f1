package events

// Action is something the engine has decided to do and queued for the same
// loop iteration (or a later one) to execute — mirrors the original's
// engine::action::Action enum.
type Action struct {
	Lichess     *LichessAction
	Chat        *ChatAction
	FindNewGame bool
	SwitchGame  string // non-empty game id
	PlayClip    ClipKind
	Shutdown    bool
}

// ClipKind is a short audio/visual cue the presentation sink can choose to
// play (spec.md §4.1 "Clip emission", §6: "Actions include PlayClip(...)
// and Shutdown").
type ClipKind string

const (
	ClipCapture ClipKind = "capture"
	ClipMove    ClipKind = "move"
	ClipWin     ClipKind = "win"
	ClipLoss    ClipKind = "loss"
	ClipDraw    ClipKind = "draw"
	ClipLobby   ClipKind = "lobby"
	ClipStart   ClipKind = "start"
)

// LichessAccountAction mirrors lichess::action::AccountAction.
type LichessAccountAction struct {
	AcceptChallenge    string
	CancelChallenge    string
	DeclineChallenge   string
	DeclineReason      string
	ChallengeRandomBot bool
}

// LichessGameActionKind enumerates the per-game remote actions.
type LichessGameActionKind string

const (
	GameActionAbort     LichessGameActionKind = "abort"
	GameActionMove      LichessGameActionKind = "move"
	GameActionOfferDraw LichessGameActionKind = "offerDraw"
	GameActionResign    LichessGameActionKind = "resign"
)

// LichessAction mirrors lichess::action::Action: either an account-level
// action or a per-game one.
type LichessAction struct {
	Account *LichessAccountAction

	GameID     string
	GameAction LichessGameActionKind
}

// ChatAction is reserved for outbound chat actions (the spec's chat
// integration is read-only, so this currently carries nothing, matching the
// original's commented-out twitch.irc streaming).
type ChatAction struct{}

// GameNotificationKind enumerates per-game notification shapes (spec.md
// §4.1/§4.6, mirroring engine::events::internal::GameNotification).
type GameNotificationKind string

const (
	GameNewCurrent  GameNotificationKind = "newCurrentGame"
	GameStarted     GameNotificationKind = "gameStarted"
	GameAbortable   GameNotificationKind = "gameAbortable"
	GameFinished    GameNotificationKind = "gameFinished"
	GameOurTurn     GameNotificationKind = "ourTurn"
	GameTheirTurn   GameNotificationKind = "theirTurn"
	GamePlayerMoved GameNotificationKind = "playerMoved"
	GameTimer       GameNotificationKind = "timer"
)

// GameNotification is a per-game lifecycle notification.
type GameNotification struct {
	Kind   GameNotificationKind
	GameID string
	WasUs  bool // only meaningful for GamePlayerMoved
}

// NotificationKind enumerates the top-level notification shapes.
type NotificationKind string

const (
	NotifyChatCommand               NotificationKind = "chatCommand"
	NotifyVotingFinished             NotificationKind = "votingFinished"
	NotifyOutboundChallengeNullified NotificationKind = "outboundChallengeNullified"
	NotifyGameVotesChanged           NotificationKind = "gameVotesChanged"
	NotifySettingsChanged            NotificationKind = "settingsChanged"
	NotifyOpponentSearchStarted      NotificationKind = "opponentSearchStarted"
	NotifyGame                       NotificationKind = "game"
	NotifyPlayClip                   NotificationKind = "playClip"
)

// Notification is something that happened that observers (mainly the
// presentation sink) care about — mirrors engine::events::internal::Notification.
type Notification struct {
	Kind NotificationKind

	ChatUser    string
	ChatCommand string

	Game *GameNotification
}

// Event is either an Action or a Notification queued on the engine's
// internal loop (spec.md §4.1 step 2: "drain the internal queue").
type Event struct {
	Action       *Action
	Notification *Notification
}

// Queue is the engine's internal event queue: FIFO, bounded by a 4096-event
// buffer, non-blocking to poll. It mirrors the original's crossbeam_channel-backed EventQueue,
// using a buffered Go channel instead since the engine is the sole reader
// and every other goroutine in the process is only ever a writer.
type Queue struct {
	ch chan Event
}

// NewQueue creates an internal event queue. The buffer is generous because
// a burst of notifications (e.g. every vote tick) must never block the
// producer — producers here run inside the same loop iteration that drains
// the queue, so a full channel would deadlock the engine.
func NewQueue() *Queue {
	return &Queue{ch: make(chan Event, 4096)}
}

// Sender is the producer half of Queue, handed out to components that need
// to raise actions or notifications without owning the queue itself.
type Sender struct {
	ch chan<- Event
}

// Sender returns a handle producers can hold onto independently of Queue.
func (q *Queue) Sender() Sender {
	return Sender{ch: q.ch}
}

// PushAction enqueues an Action.
func (s Sender) PushAction(a Action) {
	s.ch <- Event{Action: &a}
}

// PushNotification enqueues a Notification.
func (s Sender) PushNotification(n Notification) {
	s.ch <- Event{Notification: &n}
}

// Next drains one queued event without blocking. It mirrors the original's
// EventQueue::next(): only receive if something is already buffered, so the
// caller's "else sleep" branch is driven entirely by Go's select default.
func (q *Queue) Next() (Event, bool) {
	select {
	case e := <-q.ch:
		return e, true
	default:
		return Event{}, false
	}
}
