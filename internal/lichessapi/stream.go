package lichessapi

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"chess-crowd/internal/events"
)

// reconnectDelay matches the reference client's retry-after-error pause.
const reconnectDelay = 5 * time.Second

// Stream subscribes to the account event stream and, on demand, per-game
// streams, fanning everything into one channel the engine polls — grounded
// on the reference client's streamLichessEvents/streamGameEvents
// (reconnect via sleep-then-recurse) and the teacher's eventbus.go
// watchLoop (reconnect-with-sleep over a long-lived stream).
type Stream struct {
	baseURL    string
	token      string
	httpClient *http.Client
	out        chan events.ExternalEvent

	mu          sync.Mutex
	activeGames map[string]chan struct{}
}

// NewStream creates a Stream against baseURL using token for bearer auth,
// publishing every event onto out. Accepting out rather than owning a
// private channel lets the caller fan multiple external sources (this
// stream, chatclient) into the single channel the engine polls (spec.md
// §4.6).
func NewStream(baseURL, token string, out chan events.ExternalEvent) *Stream {
	return &Stream{
		baseURL:     baseURL,
		token:       token,
		httpClient:  &http.Client{}, // no timeout: these are long-lived ndjson streams
		out:         out,
		activeGames: map[string]chan struct{}{},
	}
}

// Events implements events.ExternalSource.
func (s *Stream) Events() <-chan events.ExternalEvent { return s.out }

// Run subscribes to the account stream and blocks, reconnecting on every
// error until ctx is canceled (mirrors engine::events::external's
// subscribe_to_all called once at startup).
func (s *Stream) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.streamAccount(ctx); err != nil {
			log.Printf("[LichessAPI] account stream error: %v, reconnecting in %s", err, reconnectDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Stream) request(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/x-ndjson")
	return s.httpClient.Do(req)
}

func (s *Stream) streamAccount(ctx context.Context) error {
	resp, err := s.request(ctx, "/api/stream/event")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			log.Printf("[LichessAPI] malformed account event: %v", err)
			continue
		}
		var kind string
		_ = json.Unmarshal(raw["type"], &kind)
		if ev, ok := parseAccountEvent(kind, raw); ok {
			s.out <- events.ExternalEvent{Lichess: &ev}
		}
	}
	return scanner.Err()
}

func parseAccountEvent(kind string, raw map[string]json.RawMessage) (events.LichessEvent, bool) {
	switch kind {
	case "challenge":
		var payload struct {
			Challenge struct {
				ID         string `json:"id"`
				Status     string `json:"status"`
				Challenger struct {
					ID     string `json:"id"`
					Rating int    `json:"rating"`
					Title  string `json:"title"`
				} `json:"challenger"`
				Variant struct {
					Key string `json:"key"`
				} `json:"variant"`
			} `json:"challenge"`
		}
		if err := json.Unmarshal(raw["challenge"], &payload.Challenge); err != nil {
			return events.LichessEvent{}, false
		}
		return events.LichessEvent{
			AccountKind:      events.LichessChallenge,
			ChallengeID:      payload.Challenge.ID,
			ChallengerID:     payload.Challenge.Challenger.ID,
			ChallengerRating: payload.Challenge.Challenger.Rating,
			ChallengerIsBot:  payload.Challenge.Challenger.Title == "BOT",
			Variant:          payload.Challenge.Variant.Key,
		}, true
	case "challengeCanceled":
		var challenge struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(raw["challenge"], &challenge)
		return events.LichessEvent{AccountKind: events.LichessChallengeCanceled, ChallengeID: challenge.ID}, true
	case "challengeDeclined":
		var challenge struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(raw["challenge"], &challenge)
		return events.LichessEvent{AccountKind: events.LichessChallengeDeclined, ChallengeID: challenge.ID}, true
	case "gameStart":
		var game struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(raw["game"], &game)
		return events.LichessEvent{AccountKind: events.LichessGameStart, GameID: game.ID}, true
	case "gameFinish":
		var game struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(raw["game"], &game)
		return events.LichessEvent{AccountKind: events.LichessGameFinish, GameID: game.ID}, true
	default:
		return events.LichessEvent{}, false
	}
}

// StreamGame starts streaming gameID's events if it isn't already being
// streamed, reconnecting on transient errors but giving up once the game
// itself reports being over (mirrors the reference client's
// streamGameEvents / doneCh pattern).
func (s *Stream) StreamGame(ctx context.Context, gameID string) {
	s.mu.Lock()
	if _, exists := s.activeGames[gameID]; exists {
		s.mu.Unlock()
		return
	}
	done := make(chan struct{})
	s.activeGames[gameID] = done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.activeGames, gameID)
			s.mu.Unlock()
		}()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			default:
			}

			finished, err := s.streamGameOnce(ctx, gameID)
			if err != nil {
				log.Printf("[LichessAPI] game %s stream error: %v, reconnecting in %s", gameID, err, reconnectDelay)
			}
			if finished {
				return
			}
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
}

// StopGame stops streaming gameID, if it was being streamed.
func (s *Stream) StopGame(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if done, ok := s.activeGames[gameID]; ok {
		close(done)
		delete(s.activeGames, gameID)
	}
}

func (s *Stream) streamGameOnce(ctx context.Context, gameID string) (finished bool, err error) {
	resp, err := s.request(ctx, "/api/bot/game/stream/"+gameID)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			log.Printf("[LichessAPI] malformed game event for %s: %v", gameID, err)
			continue
		}
		var kind string
		_ = json.Unmarshal(raw["type"], &kind)

		ev, done := parseGameEvent(gameID, kind, raw)
		s.out <- events.ExternalEvent{Lichess: &ev}
		if done {
			return true, nil
		}
	}
	return false, scanner.Err()
}

func parseGameEvent(gameID, kind string, raw map[string]json.RawMessage) (events.LichessEvent, bool) {
	switch kind {
	case "gameFull":
		var full struct {
			White struct {
				ID     string `json:"id"`
				Rating int    `json:"rating"`
			} `json:"white"`
			Black struct {
				ID     string `json:"id"`
				Rating int    `json:"rating"`
			} `json:"black"`
			InitialFEN string `json:"initialFen"`
			Clock      struct {
				Initial   int64 `json:"initial"`
				Increment int64 `json:"increment"`
			} `json:"clock"`
			State struct {
				Moves       string `json:"moves"`
				WhiteTimeMs int64  `json:"wtime"`
				BlackTimeMs int64  `json:"btime"`
				WhiteIncMs  int64  `json:"winc"`
				BlackIncMs  int64  `json:"binc"`
				Status      string `json:"status"`
				Winner      string `json:"winner"`
			} `json:"state"`
		}
		_ = json.Unmarshal(raw["white"], &full.White)
		_ = json.Unmarshal(raw["black"], &full.Black)
		_ = json.Unmarshal(raw["initialFen"], &full.InitialFEN)
		_ = json.Unmarshal(raw["clock"], &full.Clock)
		_ = json.Unmarshal(raw["state"], &full.State)

		initialFEN := full.InitialFEN
		if initialFEN == "" {
			initialFEN = "startpos"
		}

		return events.LichessEvent{
			GameID:   gameID,
			GameKind: events.LichessGameFull,
			GameFull: &events.GameFullPayload{
				WhiteID:          full.White.ID,
				BlackID:          full.Black.ID,
				WhiteRatingKnown: full.White.Rating != 0,
				WhiteRating:      full.White.Rating,
				BlackRatingKnown: full.Black.Rating != 0,
				BlackRating:      full.Black.Rating,
				InitialFEN:       initialFEN,
				ClockInitialMs:   full.Clock.Initial,
				ClockIncrementMs: full.Clock.Increment,
				State: events.GameStatePayload{
					Moves:       full.State.Moves,
					WhiteTimeMs: full.State.WhiteTimeMs,
					BlackTimeMs: full.State.BlackTimeMs,
					WhiteIncMs:  full.State.WhiteIncMs,
					BlackIncMs:  full.State.BlackIncMs,
					Status:      full.State.Status,
					Winner:      full.State.Winner,
				},
			},
		}, false
	case "gameState":
		var state struct {
			Moves       string `json:"moves"`
			WhiteTimeMs int64  `json:"wtime"`
			BlackTimeMs int64  `json:"btime"`
			WhiteIncMs  int64  `json:"winc"`
			BlackIncMs  int64  `json:"binc"`
			Status      string `json:"status"`
			Winner      string `json:"winner"`
		}
		_ = json.Unmarshal(mustMarshal(raw), &state)
		payload := events.GameStatePayload{
			Moves: state.Moves, WhiteTimeMs: state.WhiteTimeMs, BlackTimeMs: state.BlackTimeMs,
			WhiteIncMs: state.WhiteIncMs, BlackIncMs: state.BlackIncMs,
			Status: state.Status, Winner: state.Winner,
		}
		finished := state.Status != "" && state.Status != "started" && state.Status != "created"
		return events.LichessEvent{
			GameID: gameID, GameKind: events.LichessGameState, GameState: &payload,
		}, finished
	case "chatLine":
		var chat events.ChatLinePayload
		_ = json.Unmarshal(mustMarshal(raw), &chat)
		return events.LichessEvent{GameID: gameID, GameKind: events.LichessChatLine, ChatLine: &chat}, false
	case "opponentGone":
		return events.LichessEvent{GameID: gameID, GameKind: events.LichessOpponentGone}, false
	default:
		return events.LichessEvent{GameID: gameID}, false
	}
}

func mustMarshal(raw map[string]json.RawMessage) []byte {
	b, _ := json.Marshal(raw)
	return b
}
