// Package engine is the single event loop at the center of the system
// (spec.md §4.1), grounded on the original's engine/mod.rs: one goroutine
// owns every piece of mutable state (games, votes, challenges, settings),
// so nothing here needs a mutex. Every other goroutine in the process
// (streams, chat, scheduled timers) only ever writes to the shared
// events.Queue or events.ExternalEvent channel — never to engine state
// directly.
package engine

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"chess-crowd/internal/challenge"
	"chess-crowd/internal/chatclient"
	"chess-crowd/internal/chessboard"
	"chess-crowd/internal/events"
	"chess-crowd/internal/lichessapi"
	"chess-crowd/internal/lichessgame"
	"chess-crowd/internal/model"
	"chess-crowd/internal/presentation"
	"chess-crowd/internal/telemetry"
	"chess-crowd/internal/votes"
)

// GameStreamer starts and stops per-game event streams — satisfied by
// *lichessapi.Stream; split out as an interface so the engine can be
// driven by a fake in tests without a real HTTP client.
type GameStreamer interface {
	StreamGame(ctx context.Context, gameID string)
	StopGame(gameID string)
}

// clockPlan is one candidate time control the random-opponent challenge
// flow can pick from (spec.md §4.1's find_new_opponent clock selection).
type clockPlan struct {
	mode              votes.GameMode
	limitSeconds      int
	incrementSeconds  int
}

var candidatePlans = []clockPlan{
	{mode: votes.ModeBullet, limitSeconds: 120, incrementSeconds: 1},
	{limitSeconds: 300, incrementSeconds: 3}, // blitz, always a candidate
	{mode: votes.ModeRapid, limitSeconds: 600, incrementSeconds: 10},
	{mode: votes.ModeClassical, limitSeconds: 1800, incrementSeconds: 0},
}

// GameAbortGrace is how long a newly started game is given before the
// engine walks away from it (spec.md §4.1 "Game-start aborting"). Lichess's
// abort endpoint only succeeds before a first move is made, so scheduling
// this unconditionally for every game — including ones we keep playing —
// is harmless: by the time it fires on an active game, Abort is already a
// no-op semantic error, and is logged as such (spec.md §8 scenario 4).
const GameAbortGrace = 30 * time.Second

// Deps bundles everything the engine needs from the outside world.
type Deps struct {
	OurID     string
	Actor     lichessapi.Actor
	External  <-chan events.ExternalEvent
	Streamer  GameStreamer
	Hub       *presentation.Hub
	Telemetry *telemetry.Store
	Rng       *rand.Rand
}

// Engine is the crowd-play event loop.
type Engine struct {
	ourID     string
	actor     lichessapi.Actor
	external  <-chan events.ExternalEvent
	streamer  GameStreamer
	hub       *presentation.Hub
	store     *telemetry.Store
	rng       *rand.Rand

	queue      *events.Queue
	games      *lichessgame.Manager
	gameVotes  map[string]*votes.GameTracker
	settings   *votes.SettingsTracker
	challenges *challenge.Manager

	model    *model.Model
	running  bool
	lastTick time.Time

	// SetupDelay is exposed for tests to skip the real startup pause.
	SetupDelay time.Duration
}

// New builds an Engine from its dependencies.
func New(d Deps) *Engine {
	rng := d.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Engine{
		ourID:      d.OurID,
		actor:      d.Actor,
		external:   d.External,
		streamer:   d.Streamer,
		hub:        d.Hub,
		store:      d.Telemetry,
		rng:        rng,
		queue:      events.NewQueue(),
		games:      lichessgame.NewManager(),
		gameVotes:  map[string]*votes.GameTracker{},
		settings:   votes.NewSettingsTracker(),
		challenges: challenge.New(d.OurID),
		model:      model.New(),
		SetupDelay: 3 * time.Second,
	}
}

// Sender exposes the engine's internal queue producer to code outside the
// engine that needs to raise actions or notifications on its loop.
func (e *Engine) Sender() events.Sender { return e.queue.Sender() }

// Model returns the current presentation snapshot, safe to call from the
// admin HTTP handler since the engine never mutates it concurrently with a
// read — reads only ever happen between ticks, driven by the same
// single-goroutine contract as everything else here. In practice the admin
// server runs on its own goroutine, so this copy exists to avoid a data
// race on the map fields nested inside Model.
func (e *Engine) Model() *model.Model {
	return e.model
}

// Setup subscribes to external sources (the caller is expected to have
// already started them) and pauses briefly to let the first account-stream
// events arrive, mirroring the original's setup(): subscribe_to_all then a
// short fixed sleep before the main loop starts consuming anything.
func (e *Engine) Setup(ctx context.Context) {
	select {
	case <-time.After(e.SetupDelay):
	case <-ctx.Done():
	}
}

// Run drives the event loop until ctx is canceled or a Shutdown action is
// processed — mirrors the original's run()/process() pair: each iteration
// ticks the clocks if a second has passed, polls one external event (or
// sleeps 1ms if there's none), then drains one internal event
// unconditionally (spec.md §4.1 steps 1-3).
func (e *Engine) Run(ctx context.Context) {
	e.running = true
	e.lastTick = time.Now()
	for e.running {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e.tickClocks()

		if ev, ok := e.pollExternal(); ok {
			e.processExternalEvent(ctx, ev)
		} else {
			time.Sleep(time.Millisecond)
		}

		if qe, ok := e.queue.Next(); ok {
			e.processQueueEvent(ctx, qe)
		}
	}
}

// tickClocks advances every tracked game's clock once at least a second has
// elapsed since the last tick, and tells viewers the current game's timer
// moved (spec.md §4.1 main-cycle step 1, §4.2's advance_clocks).
func (e *Engine) tickClocks() {
	now := time.Now()
	elapsed := now.Sub(e.lastTick)
	if elapsed < time.Second {
		return
	}
	e.lastTick = now
	e.games.AdvanceClocks(elapsed.Milliseconds())
	if id := e.games.CurrentID(); id != "" {
		e.sender().PushNotification(events.Notification{Kind: events.NotifyGame, Game: &events.GameNotification{
			Kind: events.GameTimer, GameID: id,
		}})
		e.refreshModel()
	}
}

func (e *Engine) pollExternal() (events.ExternalEvent, bool) {
	select {
	case ev := <-e.external:
		return ev, true
	default:
		return events.ExternalEvent{}, false
	}
}

func (e *Engine) processQueueEvent(ctx context.Context, qe events.Event) {
	if qe.Action != nil {
		e.processAction(ctx, *qe.Action)
	}
	if qe.Notification != nil {
		e.processNotification(*qe.Notification)
	}
}

func (e *Engine) processExternalEvent(ctx context.Context, ev events.ExternalEvent) {
	if ev.Lichess != nil {
		e.processLichessEvent(ctx, *ev.Lichess)
	}
	if ev.Chat != nil {
		e.processChatEvent(*ev.Chat)
	}
}

// --- Lichess events -------------------------------------------------------

func (e *Engine) processLichessEvent(ctx context.Context, ev events.LichessEvent) {
	if ev.GameKind != "" {
		e.processGameEvent(ctx, ev)
		return
	}
	e.processAccountEvent(ctx, ev)
}

func (e *Engine) processAccountEvent(ctx context.Context, ev events.LichessEvent) {
	switch ev.AccountKind {
	case events.LichessChallenge:
		// Lichess echoes challenges we create ourselves back on this same
		// account stream. Our own outbound challenge is already recorded
		// synchronously in challengeRandomBot; the echo carries nothing new
		// and, since our account is itself a bot, would otherwise trip the
		// no-bot-opponent policy and self-decline (spec.md §4.4).
		if ev.ChallengerID == e.ourID {
			return
		}
		e.decideInboundChallenge(ev)
	case events.LichessChallengeCanceled, events.LichessChallengeDeclined:
		if e.challenges.Nullify(ev.ChallengeID) {
			e.sender().PushNotification(events.Notification{Kind: events.NotifyOutboundChallengeNullified})
			e.sender().PushAction(events.Action{FindNewGame: true})
		}
	case events.LichessGameStart:
		e.challenges.CancelOutbound()
		if e.streamer != nil {
			e.streamer.StreamGame(ctx, ev.GameID)
		}
	case events.LichessGameFinish:
		// The authoritative finish signal is the per-game stream's terminal
		// gameState, handled in processGameEvent; this account-stream echo
		// only matters if we somehow never saw it (e.g. missed a reconnect).
		if g, ok := e.games.Get(ev.GameID); ok && !g.Finished {
			e.finishGame(ev.GameID)
		}
	}
}

// decideInboundChallenge applies the standard-variant, no-bot-opponent
// policy the original's process_challenge_created enforces before ever
// accepting an inbound challenge.
func (e *Engine) decideInboundChallenge(ev events.LichessEvent) {
	if ev.Variant != "" && ev.Variant != "standard" {
		e.sender().PushAction(events.Action{Lichess: &events.LichessAction{
			Account: &events.LichessAccountAction{DeclineChallenge: ev.ChallengeID, DeclineReason: "standard"},
		}})
		return
	}
	if ev.ChallengerIsBot {
		e.sender().PushAction(events.Action{Lichess: &events.LichessAction{
			Account: &events.LichessAccountAction{DeclineChallenge: ev.ChallengeID, DeclineReason: "later"},
		}})
		return
	}
	e.sender().PushAction(events.Action{Lichess: &events.LichessAction{
		Account: &events.LichessAccountAction{AcceptChallenge: ev.ChallengeID},
	}})
}

func (e *Engine) processGameEvent(ctx context.Context, ev events.LichessEvent) {
	switch ev.GameKind {
	case events.LichessGameFull:
		e.onGameFull(ctx, ev)
	case events.LichessGameState:
		e.onGameState(ctx, ev)
	case events.LichessChatLine:
		if ev.ChatLine != nil && e.store != nil {
			e.store.LogEvent("lichessChat", ev.GameID, fmt.Sprintf("%s: %s", ev.ChatLine.Username, ev.ChatLine.Text))
		}
	case events.LichessOpponentGone:
		if e.store != nil {
			e.store.LogEvent("opponentGone", ev.GameID, "")
		}
	}
}

// onGameFull is process_game_start (spec.md §4.2): it registers a newly
// started game and notifies the rest of the engine, but does not itself
// decide whether the game becomes current — that's processNotification's
// reaction to the GameStarted notification below, which also arms the
// game-start abort timer.
func (e *Engine) onGameFull(ctx context.Context, ev events.LichessEvent) {
	if ev.GameFull == nil {
		return
	}
	if _, exists := e.games.Get(ev.GameID); exists {
		// process_game_start is idempotent: a reconnect can replay the same
		// gameFull message for a game we already know about.
		return
	}
	game := lichessgame.FromGameFull(ev.GameID, e.ourID, *ev.GameFull)
	e.games.Add(game)
	e.gameVotes[ev.GameID] = votes.NewGameTracker(game.Speed)

	if game.Finished {
		e.finishGame(ev.GameID)
		return
	}
	e.sender().PushNotification(events.Notification{Kind: events.NotifyGame, Game: &events.GameNotification{
		Kind: events.GameStarted, GameID: ev.GameID,
	}})
	e.refreshModel()
}

func (e *Engine) onGameState(ctx context.Context, ev events.LichessEvent) {
	game, ok := e.games.Get(ev.GameID)
	if !ok || ev.GameState == nil {
		return
	}
	movesBefore := len(game.Moves)
	prevBoard := game.Board
	wasOurTurn := game.OurTurn()
	finished := game.ApplyState(*ev.GameState)

	if len(game.Moves) > movesBefore {
		e.sender().PushNotification(events.Notification{Kind: events.NotifyGame, Game: &events.GameNotification{
			Kind: events.GamePlayerMoved, GameID: ev.GameID, WasUs: wasOurTurn,
		}})
		e.sender().PushAction(events.Action{PlayClip: moveClip(prevBoard, game.Moves)})
	}

	if finished {
		e.finishGame(ev.GameID)
		return
	}
	if e.games.CurrentID() == ev.GameID {
		e.advanceTurnState(ev.GameID)
	}
	e.refreshModel()
}

// advanceTurnState enables or disables gameID's vote tracker to match whose
// turn it is, and (re)starts the voting window when it becomes our turn —
// mirrors the original's post-move turn dispatch inside process_lichess_event.
func (e *Engine) advanceTurnState(gameID string) {
	game, ok := e.games.Get(gameID)
	if !ok {
		return
	}
	tracker := e.gameVotes[gameID]
	if tracker == nil {
		return
	}
	if game.OurTurn() {
		tracker.Enable()
		tracker.ScheduleWindow(e.sender(), gameID)
		e.sender().PushNotification(events.Notification{Kind: events.NotifyGame, Game: &events.GameNotification{
			Kind: events.GameOurTurn, GameID: gameID,
		}})
	} else {
		tracker.CancelWindow()
		tracker.Disable()
		e.sender().PushNotification(events.Notification{Kind: events.NotifyGame, Game: &events.GameNotification{
			Kind: events.GameTheirTurn, GameID: gameID,
		}})
	}
}

func (e *Engine) finishGame(gameID string) {
	if tracker, ok := e.gameVotes[gameID]; ok {
		tracker.CancelWindow()
		delete(e.gameVotes, gameID)
	}
	wasCurrent := e.games.CurrentID() == gameID
	if game, ok := e.games.Get(gameID); ok {
		e.sender().PushAction(events.Action{PlayClip: finishClip(game.Winner)})
	}
	e.games.Finish(gameID)
	if wasCurrent {
		// Finish deliberately leaves the map/currentID alone (spec.md §4.2);
		// touching Current() here performs the lazy forget, which clears
		// currentID (so findNewGame's idempotence check doesn't mistake this
		// just-finished game for one still in progress) and retains the game
		// as LastFinished for presentation.
		e.games.Current()
	}
	if e.streamer != nil {
		e.streamer.StopGame(gameID)
	}
	e.sender().PushNotification(events.Notification{Kind: events.NotifyGame, Game: &events.GameNotification{
		Kind: events.GameFinished, GameID: gameID,
	}})
	if e.store != nil {
		e.store.LogEvent("gameFinished", gameID, "")
	}
	if wasCurrent {
		e.sender().PushAction(events.Action{FindNewGame: true})
	}
	e.refreshModel()
}

// moveClip classifies the clip to play for the move just appended to
// moves — Capture if its destination square was occupied on the
// pre-move board, else Move (spec.md §4.1 "Clip emission").
func moveClip(prevBoard *chessboard.Board, moves []string) events.ClipKind {
	if prevBoard == nil || len(moves) == 0 {
		return events.ClipMove
	}
	mv, err := chessboard.ParseUCI(moves[len(moves)-1])
	if err != nil {
		return events.ClipMove
	}
	if prevBoard.GetPiece(mv.To) != 0 {
		return events.ClipCapture
	}
	return events.ClipMove
}

// finishClip classifies the clip to play on game finish: Win/Loss by
// comparing the recorded winner against our color, else Draw (spec.md §4.1
// "Clip emission").
func finishClip(winner string) events.ClipKind {
	switch winner {
	case "us":
		return events.ClipWin
	case "them":
		return events.ClipLoss
	default:
		return events.ClipDraw
	}
}

// --- Chat ------------------------------------------------------------------

func (e *Engine) processChatEvent(ev events.ChatEvent) {
	cmd, ok := chatclient.Parse(ev.Text)
	if !ok {
		return
	}
	e.model.PushCommand(model.Command{User: ev.Username, Command: cmd.Verb})
	e.sender().PushNotification(events.Notification{
		Kind: events.NotifyChatCommand, ChatUser: ev.Username, ChatCommand: cmd.Verb,
	})

	switch cmd.Verb {
	case "delay":
		e.recordGameVote(ev.Username, votes.Vote{Kind: votes.VoteDelay})
	case "draw":
		e.recordGameVote(ev.Username, votes.Vote{Kind: votes.VoteDraw})
	case "resign":
		e.recordGameVote(ev.Username, votes.Vote{Kind: votes.VoteResign})
	case "move":
		if cmd.Arg != "" {
			e.recordGameVote(ev.Username, votes.Vote{Kind: votes.VoteMove, UCI: cmd.Arg})
		}
	case "bullet":
		e.recordSettingsVote(ev.Username, votes.ModeBullet, cmd.Arg)
	case "rapid":
		e.recordSettingsVote(ev.Username, votes.ModeRapid, cmd.Arg)
	case "classical":
		e.recordSettingsVote(ev.Username, votes.ModeClassical, cmd.Arg)
	}
}

func (e *Engine) recordGameVote(user string, v votes.Vote) {
	id := e.games.CurrentID()
	if id == "" {
		return
	}
	tracker := e.gameVotes[id]
	if tracker == nil {
		return
	}
	tracker.AddVote(user, v)
	e.sender().PushNotification(events.Notification{Kind: events.NotifyGameVotesChanged})
	e.refreshModel()
}

func (e *Engine) recordSettingsVote(user string, mode votes.GameMode, arg string) {
	switch strings.ToLower(arg) {
	case "on", "":
		e.settings.AddVote(user, mode, true)
	case "off":
		e.settings.AddVote(user, mode, false)
	default:
		return
	}
	e.sender().PushNotification(events.Notification{Kind: events.NotifySettingsChanged})
	e.refreshModel()
}

// --- Actions -----------------------------------------------------------------

func (e *Engine) processAction(ctx context.Context, a events.Action) {
	if a.Shutdown {
		e.running = false
		return
	}
	if a.Lichess != nil {
		e.processLichessAction(ctx, *a.Lichess)
	}
	if a.FindNewGame {
		e.findNewGame(ctx)
	}
	if a.SwitchGame != "" {
		e.switchGame(a.SwitchGame)
	}
	if a.PlayClip != "" && e.hub != nil {
		e.hub.Publish(events.ClipEvent(a.PlayClip))
	}
}

func (e *Engine) processLichessAction(ctx context.Context, a events.LichessAction) {
	if a.Account != nil {
		e.processAccountAction(ctx, *a.Account)
		return
	}
	game, ok := e.games.Get(a.GameID)
	if !ok {
		return
	}
	var err error
	switch a.GameAction {
	case events.GameActionAbort:
		err = e.actor.Abort(ctx, a.GameID)
	case events.GameActionMove:
		e.makeMove(ctx, game)
		return
	case events.GameActionOfferDraw:
		err = e.actor.OfferDraw(ctx, a.GameID)
	case events.GameActionResign:
		err = e.actor.Resign(ctx, a.GameID)
	}
	if err != nil {
		log.Printf("[Engine] game action %s on %s failed: %v", a.GameAction, a.GameID, err)
	}
}

func (e *Engine) processAccountAction(ctx context.Context, a events.LichessAccountAction) {
	var err error
	switch {
	case a.AcceptChallenge != "":
		err = e.actor.AcceptChallenge(ctx, a.AcceptChallenge)
	case a.CancelChallenge != "":
		err = e.actor.CancelChallenge(ctx, a.CancelChallenge)
		if e.challenges.Nullify(a.CancelChallenge) {
			e.sender().PushNotification(events.Notification{Kind: events.NotifyOutboundChallengeNullified})
			e.sender().PushAction(events.Action{FindNewGame: true})
		}
	case a.DeclineChallenge != "":
		err = e.actor.DeclineChallenge(ctx, a.DeclineChallenge, a.DeclineReason)
	case a.ChallengeRandomBot:
		e.challengeRandomBot(ctx)
		return
	}
	if err != nil {
		log.Printf("[Engine] account action failed: %v", err)
	}
}

// makeMove tallies the current turn's votes and commits a move (or a draw
// offer, a resignation, or an extra delay) — mirrors the original's
// process_game_vote / make_move dispatch. Illegal move votes and empty
// ballots both fall back to a uniformly random legal move (spec.md §9).
func (e *Engine) makeMove(ctx context.Context, game *lichessgame.Game) {
	tracker := e.gameVotes[game.ID]
	if tracker == nil {
		return
	}

	top, ok := tracker.TopVote()
	if !ok {
		e.playRandomLegalMove(ctx, game, tracker)
		return
	}

	switch top.Kind {
	case votes.VoteDelay:
		tracker.AddDelay()
		tracker.ResetVoting()
		tracker.ScheduleWindow(e.sender(), game.ID)
		e.sender().PushNotification(events.Notification{Kind: events.NotifyGameVotesChanged})
		return
	case votes.VoteDraw:
		if err := e.actor.OfferDraw(ctx, game.ID); err != nil {
			log.Printf("[Engine] offer draw on %s failed: %v", game.ID, err)
		}
		tracker.Reset()
	case votes.VoteResign:
		if err := e.actor.Resign(ctx, game.ID); err != nil {
			log.Printf("[Engine] resign on %s failed: %v", game.ID, err)
		}
		tracker.Reset()
	case votes.VoteMove:
		if _, ok := chessboard.LegalUCIMove(game.Board, top.UCI); !ok {
			e.playRandomLegalMove(ctx, game, tracker)
			return
		}
		e.commitMove(ctx, game, top.UCI, tracker)
	}
}

func (e *Engine) playRandomLegalMove(ctx context.Context, game *lichessgame.Game, tracker *votes.GameTracker) {
	legal := chessboard.LegalMoves(game.Board)
	candidates := make([]string, len(legal))
	for i, m := range legal {
		candidates[i] = m.UCI()
	}
	uci, ok := votes.RandomLegalFallback(candidates)
	if !ok {
		return
	}
	e.commitMove(ctx, game, uci, tracker)
}

func (e *Engine) commitMove(ctx context.Context, game *lichessgame.Game, uci string, tracker *votes.GameTracker) {
	if err := e.actor.MakeMove(ctx, game.ID, uci); err != nil {
		log.Printf("[Engine] move %s on %s failed: %v", uci, game.ID, err)
		return
	}
	if e.store != nil {
		e.store.LogEvent("move", game.ID, uci)
	}
	tracker.Reset()
}

// findNewGame is idempotent: if a current game is already in progress it
// does nothing, leaving games, current_game_id and any outbound challenge
// untouched (spec.md §4.1 "Find-new-game is idempotent", testable property
// P8). Touching Current() here also does the lazy cleanup of a just-
// finished current entry, reconciling with process_game_finish's
// deliberately-deferred removal (spec.md §4.2). Otherwise it prefers
// switching to an already-running game over starting a new search, and
// only challenges a stranger if no outbound challenge is already pending —
// mirrors the original's find_new_game/find_new_opponent.
func (e *Engine) findNewGame(ctx context.Context) {
	if _, ok := e.games.Current(); ok {
		return
	}
	if id, ok := e.games.OldestGameID(); ok {
		e.switchGame(id)
		return
	}
	if _, ok := e.challenges.Outstanding(); ok {
		return
	}
	e.sender().PushAction(events.Action{Lichess: &events.LichessAction{
		Account: &events.LichessAccountAction{ChallengeRandomBot: true},
	}})
}

func (e *Engine) switchGame(id string) {
	if !e.games.SwitchGame(id) {
		if e.games.CurrentID() == "" {
			// Refused because the target had already finished, not because
			// a live current game is blocking it — try the search again.
			e.sender().PushAction(events.Action{FindNewGame: true})
		}
		return
	}
	e.sender().PushNotification(events.Notification{Kind: events.NotifyGame, Game: &events.GameNotification{
		Kind: events.GameNewCurrent, GameID: id,
	}})
	e.advanceTurnState(id)
	e.refreshModel()
}

// challengeRandomBot picks an eligible online bot (no TOS violation, not
// disabled, with a valid blitz record), weighted toward lower-rated bots,
// and a time control drawn from whichever modes chat currently has
// enabled, then issues the challenge — mirrors the original's
// challenge_random_bot. An empty eligible set or a failed challenge
// re-enqueues the search (spec.md §4.1); an empty clock candidate list
// gives up silently instead (blitz is always a candidate, so pickClockPlan
// only reports an empty list defensively).
func (e *Engine) challengeRandomBot(ctx context.Context) {
	bots, err := e.actor.GetOnlineBots(ctx, 50)
	if err != nil {
		log.Printf("[Engine] listing online bots failed: %v", err)
		return
	}
	var eligible []lichessapi.Bot
	for _, b := range bots {
		if b.ID == e.ourID || b.TOSViolation || b.Disabled || !b.PlaysBlitz() {
			continue
		}
		eligible = append(eligible, b)
	}
	if len(eligible) == 0 {
		log.Printf("[Engine] no eligible bots online to challenge, retrying")
		e.requeueChallengeSearch()
		return
	}
	plan, ok := e.pickClockPlan()
	if !ok {
		log.Printf("[Engine] no clock modes currently enabled for a random challenge")
		return
	}
	bot := e.pickWeightedBot(eligible)

	challengeID, err := e.actor.CreateChallenge(ctx, bot.Username, plan.limitSeconds, plan.incrementSeconds)
	if err != nil {
		log.Printf("[Engine] challenge to %s failed: %v", bot.Username, err)
		e.requeueChallengeSearch()
		return
	}
	e.challenges.Begin(e.sender(), challengeID, bot.Username)
	e.sender().PushNotification(events.Notification{Kind: events.NotifyOpponentSearchStarted})
	e.refreshModel()
}

func (e *Engine) requeueChallengeSearch() {
	e.sender().PushAction(events.Action{Lichess: &events.LichessAction{
		Account: &events.LichessAccountAction{ChallengeRandomBot: true},
	}})
}

// pickWeightedBot favors lower-rated bots: weight = 500_000/blitz_rating
// (spec.md §4.1), so e.g. a 1000-rated bot is five times as likely to be
// picked as a 5000-rated one.
func (e *Engine) pickWeightedBot(bots []lichessapi.Bot) lichessapi.Bot {
	weights := make([]int64, len(bots))
	var total int64
	for i, b := range bots {
		w := int64(500000 / b.BlitzRating())
		if w < 1 {
			w = 1
		}
		weights[i] = w
		total += w
	}
	pick := e.rng.Int63n(total)
	for i, w := range weights {
		if pick < w {
			return bots[i]
		}
		pick -= w
	}
	return bots[len(bots)-1]
}

// pickClockPlan draws uniformly among blitz and whichever other modes chat
// currently has enabled (spec.md §4.5: settings votes gate which speeds the
// random-opponent search will consider). Blitz is always a candidate, so
// the false return only matters as a defensive guard against an empty
// slice.
func (e *Engine) pickClockPlan() (clockPlan, bool) {
	settings := e.settings.Model()
	var candidates []clockPlan
	for _, c := range candidatePlans {
		switch c.mode {
		case votes.ModeBullet:
			if !settings.GameModes.Bullet {
				continue
			}
		case votes.ModeRapid:
			if !settings.GameModes.Rapid {
				continue
			}
		case votes.ModeClassical:
			if !settings.GameModes.Classical {
				continue
			}
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return clockPlan{}, false
	}
	return candidates[e.rng.Intn(len(candidates))], true
}

// --- Notifications / presentation ------------------------------------------

func (e *Engine) processNotification(n events.Notification) {
	if e.hub != nil {
		e.hub.Publish(events.FromNotification(n))
	}
	if n.Game == nil {
		return
	}
	switch n.Game.Kind {
	case events.GameStarted:
		// Game-start aborting (spec.md §4.1): a newly started game that
		// isn't already current gets switched to immediately and given a
		// 30s grace period to actually start before the engine walks away.
		if e.games.CurrentID() != n.Game.GameID {
			e.sender().PushAction(events.Action{SwitchGame: n.Game.GameID})
			e.scheduleGameAbort(n.Game.GameID)
		}
	case events.GameAbortable:
		e.sender().PushAction(events.Action{Lichess: &events.LichessAction{
			GameID: n.Game.GameID, GameAction: events.GameActionAbort,
		}})
	}
}

// scheduleGameAbort raises a GameAbortable notification GameAbortGrace
// after a game starts. Like challenge.Manager's cancel timer, the goroutine
// never touches engine state directly — it only pushes onto the shared
// queue, so the engine remains the sole mutator (spec.md §5).
func (e *Engine) scheduleGameAbort(gameID string) {
	sender := e.sender()
	go func() {
		time.Sleep(GameAbortGrace)
		sender.PushNotification(events.Notification{Kind: events.NotifyGame, Game: &events.GameNotification{
			Kind: events.GameAbortable, GameID: gameID,
		}})
	}()
}

// refreshModel recomputes the full presentation snapshot from current
// engine state and publishes it — called after anything that changes what
// viewers should see (spec.md §3).
func (e *Engine) refreshModel() {
	m := e.model
	m.Settings = e.settings.Model()

	game, ok := e.games.Current()
	if !ok {
		game, ok = e.games.LastFinished()
	}
	if !ok {
		m.State = model.State{Kind: model.StateUnknown}
		m.Board = nil
		m.Votes = model.GameVotes{Votes: map[string]model.VoteStats{}}
		if out, waiting := e.challenges.Outstanding(); waiting {
			m.State = model.State{Kind: model.StateChallengingUser, ChallengedUserID: out.Opponent}
		}
		if e.hub != nil {
			e.hub.PublishModel(m)
		}
		return
	}

	m.Title = model.Title{URL: "https://lichess.org/" + game.ID, Speed: string(game.Speed), Clock: game.Clock}
	m.Board = game.Board
	m.MoveHistory = game.Moves
	m.Us = model.Player{Name: e.ourID, Color: game.Us, Rating: game.OurRating, Timer: game.OurTimer}
	m.Opponent = model.Player{Name: game.OpponentID, Color: game.Us.Other(), Rating: game.OppRating, Timer: game.OppTimer}

	switch {
	case game.Finished:
		m.State = model.State{Kind: model.StateGameFinished}
	case game.OurTurn():
		m.State = model.State{Kind: model.StateOurTurn}
	default:
		m.State = model.State{Kind: model.StateTheirTurn}
	}

	if tracker, ok := e.gameVotes[game.ID]; ok {
		m.Votes = tracker.Model()
	}

	if e.hub != nil {
		e.hub.PublishModel(m)
	}
}

// sender is a small indirection so the many call sites above read as
// e.sender().PushAction(...) without storing a redundant copy on Engine.
func (e *Engine) sender() events.Sender { return e.queue.Sender() }
