// Package lichessapi is the HTTP client for the remote bot-play API,
// grounded on the other_examples reference client
// (973dc99a_idushes-lichess-bot-agent__lichess_client.go.go): bearer-token
// auth, plain net/http, ndjson streams read with bufio.Scanner. It adds the
// outbound pacer (pacer.go) the reference client lacked.
package lichessapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AccountInfo is the bot's own account (GET /api/account).
type AccountInfo struct {
	ID       string
	Username string
}

// BotPerf reports whether the bot plays a given speed class, how many
// rated games it has in it, and its current rating there.
type BotPerf struct {
	Games  int
	Rating int
}

// Bot is one entry from the online-bots listing.
type Bot struct {
	ID           string
	Username     string
	TOSViolation bool
	Disabled     bool
	Perfs        map[string]BotPerf
}

// PlaysBlitz reports whether the bot has a valid blitz record — rated
// games and a nonzero rating — used to filter bots with no usable blitz
// history out of random-opponent selection (spec.md §4.1, §9, grounded on
// the original's challenge_random_bot filter).
func (b Bot) PlaysBlitz() bool {
	perf, ok := b.Perfs["blitz"]
	return ok && perf.Games > 0 && perf.Rating > 0
}

// BlitzRating returns the bot's blitz rating, or 0 if it has none.
func (b Bot) BlitzRating() int {
	return b.Perfs["blitz"].Rating
}

// Actor is every remote action the engine can issue, mirroring the
// original's lichess::action::Actor.
type Actor interface {
	GetAccount(ctx context.Context) (AccountInfo, error)
	GetOnlineBots(ctx context.Context, count int) ([]Bot, error)
	CreateChallenge(ctx context.Context, username string, limitSeconds, incrementSeconds int) (challengeID string, err error)
	AcceptChallenge(ctx context.Context, challengeID string) error
	CancelChallenge(ctx context.Context, challengeID string) error
	DeclineChallenge(ctx context.Context, challengeID, reason string) error
	Abort(ctx context.Context, gameID string) error
	MakeMove(ctx context.Context, gameID, uci string) error
	OfferDraw(ctx context.Context, gameID string) error
	Resign(ctx context.Context, gameID string) error
}

// Client is the default Actor implementation.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	pacer      *Pacer
}

// NewClient creates a Client against baseURL (e.g. "https://lichess.org")
// using token for bearer auth. One call is allowed per pacingInterval.
func NewClient(baseURL, token string, pacingInterval time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		pacer:      NewPacer(pacingInterval),
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s returned %s: %s", req.URL.Path, resp.Status, string(body))
	}
	return resp, nil
}

// GetAccount fetches the bot's own account info.
func (c *Client) GetAccount(ctx context.Context) (AccountInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/account", nil)
	if err != nil {
		return AccountInfo{}, err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return AccountInfo{}, err
	}
	defer resp.Body.Close()

	var account struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return AccountInfo{}, fmt.Errorf("decoding account info: %w", err)
	}
	return AccountInfo{ID: account.ID, Username: account.Username}, nil
}

// GetOnlineBots lists up to count online bot accounts, reading an ndjson
// stream the way the reference client reads the event stream.
func (c *Client) GetOnlineBots(ctx context.Context, count int) ([]Bot, error) {
	path := "/api/bot/online?nb=" + strconv.Itoa(count)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var bots []Bot
	decoder := json.NewDecoder(resp.Body)
	for decoder.More() {
		var raw struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			TosViolation bool `json:"tosViolation"`
			Disabled bool   `json:"disabled"`
			Perfs    map[string]struct {
				Games  int `json:"games"`
				Rating int `json:"rating"`
			} `json:"perfs"`
		}
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding online bots stream: %w", err)
		}
		perfs := make(map[string]BotPerf, len(raw.Perfs))
		for key, p := range raw.Perfs {
			perfs[key] = BotPerf{Games: p.Games, Rating: p.Rating}
		}
		bots = append(bots, Bot{
			ID:           raw.ID,
			Username:     raw.Username,
			TOSViolation: raw.TosViolation,
			Disabled:     raw.Disabled,
			Perfs:        perfs,
		})
	}
	return bots, nil
}

// CreateChallenge issues a rated challenge against username at the given
// clock settings, matching the original's create_challenge (rated=true,
// rules "noGiveTime,noRematch").
func (c *Client) CreateChallenge(ctx context.Context, username string, limitSeconds, incrementSeconds int) (string, error) {
	form := url.Values{
		"rated":          {"true"},
		"clock.limit":    {strconv.Itoa(limitSeconds)},
		"clock.increment": {strconv.Itoa(incrementSeconds)},
		"variant":        {"standard"},
		"rules":          {"noGiveTime,noRematch"},
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/challenge/"+url.PathEscape(username), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var created struct {
		Challenge struct {
			ID string `json:"id"`
		} `json:"challenge"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decoding created challenge: %w", err)
	}
	return created.Challenge.ID, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// AcceptChallenge accepts an incoming challenge.
func (c *Client) AcceptChallenge(ctx context.Context, challengeID string) error {
	return c.postForm(ctx, "/api/challenge/"+url.PathEscape(challengeID)+"/accept", nil)
}

// CancelChallenge cancels an outbound challenge that was never accepted.
func (c *Client) CancelChallenge(ctx context.Context, challengeID string) error {
	return c.postForm(ctx, "/api/challenge/"+url.PathEscape(challengeID)+"/cancel", nil)
}

// DeclineChallenge declines an incoming challenge with reason.
func (c *Client) DeclineChallenge(ctx context.Context, challengeID, reason string) error {
	return c.postForm(ctx, "/api/challenge/"+url.PathEscape(challengeID)+"/decline", url.Values{"reason": {reason}})
}

// Abort aborts a game that hasn't progressed far enough to count.
func (c *Client) Abort(ctx context.Context, gameID string) error {
	return c.postForm(ctx, "/api/bot/game/"+url.PathEscape(gameID)+"/abort", nil)
}

// MakeMove submits a UCI move for gameID.
func (c *Client) MakeMove(ctx context.Context, gameID, uci string) error {
	return c.postForm(ctx, "/api/bot/game/"+url.PathEscape(gameID)+"/move/"+url.PathEscape(uci), nil)
}

// OfferDraw offers (or accepts) a draw in gameID.
func (c *Client) OfferDraw(ctx context.Context, gameID string) error {
	return c.postForm(ctx, "/api/bot/game/"+url.PathEscape(gameID)+"/draw/yes", nil)
}

// Resign resigns gameID.
func (c *Client) Resign(ctx context.Context, gameID string) error {
	return c.postForm(ctx, "/api/bot/game/"+url.PathEscape(gameID)+"/resign", nil)
}
