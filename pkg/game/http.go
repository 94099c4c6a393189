package game

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cbodonnell/hokm/pkg/state"
)

var _ RuleEngine = &HTTPRuleEngine{}

// HTTPRuleEngine calls a rule engine service over HTTP. Every action is a
// POST to <base>/rooms/<room>/<action> answering {"state": {...}}.
type HTTPRuleEngine struct {
	baseURL string
	client  *http.Client
}

type NewHTTPRuleEngineOptions struct {
	BaseURL string
	Timeout time.Duration
	// Client overrides the default HTTP client.
	Client *http.Client
}

// NewHTTPRuleEngine creates a new HTTPRuleEngine.
func NewHTTPRuleEngine(opts NewHTTPRuleEngineOptions) (*HTTPRuleEngine, error) {
	if _, err := url.ParseRequestURI(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid rule engine url: %v", err)
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPRuleEngine{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  client,
	}, nil
}

type ruleEngineRequest struct {
	Players []string `json:"players,omitempty"`
	Player  string   `json:"player,omitempty"`
	Suit    string   `json:"suit,omitempty"`
	Card    string   `json:"card,omitempty"`
}

type ruleEngineResponse struct {
	State state.Snapshot `json:"state"`
	Error string         `json:"error,omitempty"`
}

func (e *HTTPRuleEngine) AssignTeams(ctx context.Context, room string, players []string) (state.Snapshot, error) {
	return e.do(ctx, room, "assign-teams", &ruleEngineRequest{Players: players})
}

func (e *HTTPRuleEngine) DealInitialHand(ctx context.Context, room string) (state.Snapshot, error) {
	return e.do(ctx, room, "deal", &ruleEngineRequest{})
}

func (e *HTTPRuleEngine) SelectHokm(ctx context.Context, room, player, suit string) (state.Snapshot, error) {
	return e.do(ctx, room, "select-hokm", &ruleEngineRequest{Player: player, Suit: suit})
}

func (e *HTTPRuleEngine) PlayCard(ctx context.Context, room, player, card string) (state.Snapshot, error) {
	return e.do(ctx, room, "play-card", &ruleEngineRequest{Player: player, Card: card})
}

func (e *HTTPRuleEngine) StartNewRound(ctx context.Context, room string) (state.Snapshot, error) {
	return e.do(ctx, room, "new-round", &ruleEngineRequest{})
}

func (e *HTTPRuleEngine) do(ctx context.Context, room, action string, body *ruleEngineRequest) (state.Snapshot, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %v", action, err)
	}

	endpoint := fmt.Sprintf("%s/rooms/%s/%s", e.baseURL, url.PathEscape(room), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %v", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call rule engine: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule engine response: %v", err)
	}

	out := &ruleEngineResponse{}
	if err := json.Unmarshal(respBody, out); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("rule engine error %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, fmt.Errorf("failed to decode rule engine response: %v", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &RuleError{Action: action, Status: resp.StatusCode, Reason: out.Error}
	}
	if out.State == nil {
		return nil, fmt.Errorf("rule engine returned no state for %s", action)
	}
	return out.State, nil
}

// RuleError is an action rejected by the rule engine, e.g. an illegal card.
type RuleError struct {
	Action string
	Status int
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule engine rejected %s (%d): %s", e.Action, e.Status, e.Reason)
}
